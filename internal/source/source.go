// Package source yields the ordered URL pairs a batch compares. Pairs come
// from a CSV of URL columns, from the records an external load run logged,
// or are synthesized from a parameterized URL scheme.
package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmpty is wrapped by sources that produced no pairs at all.
var ErrEmpty = errors.New("no pairs")

// Pair is one unit of work. Index is 1-based and fixes the pair's position
// in every report. A pair with an empty URL on either side is skipped by the
// pipeline but keeps its index.
type Pair struct {
	Index int
	URL1  string
	URL2  string
	// External is the logged record this pair was derived from, if any.
	External *LogRecord
}

// Skipped reports whether the pair lacks a URL on either side.
func (p Pair) Skipped() bool {
	return p.URL1 == "" || p.URL2 == ""
}

// Source produces pairs in input order.
type Source interface {
	Pairs(ctx context.Context) ([]Pair, error)
}

// Error reports a source that could not be read. It is the only failure that
// aborts a batch.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s source: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
