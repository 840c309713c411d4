package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultIterations is the synthesized pair count when none is configured.
const DefaultIterations = 10

// URLBuilder constructs a primary URL per iteration.
type URLBuilder interface {
	Build() (string, error)
}

// Synth derives pairs from built URLs: the secondary URL is the primary with
// its first occurrence of BaseURL replaced by BaseURL2.
type Synth struct {
	Iterations int
	Builder    URLBuilder
	BaseURL    string
	BaseURL2   string
}

// Pairs builds Iterations pairs.
func (s *Synth) Pairs(ctx context.Context) ([]Pair, error) {
	if s.Builder == nil {
		return nil, &Error{Source: "synth", Err: errors.New("no url builder")}
	}
	if s.BaseURL == "" || s.BaseURL2 == "" {
		return nil, &Error{Source: "synth", Err: errors.New("both base urls are required")}
	}

	n := s.Iterations
	if n <= 0 {
		n = DefaultIterations
	}

	pairs := make([]Pair, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		url1, err := s.Builder.Build()
		if err != nil {
			return nil, &Error{Source: "synth", Err: fmt.Errorf("iteration %d: %w", i, err)}
		}
		pairs = append(pairs, Pair{
			Index: i,
			URL1:  url1,
			URL2:  strings.Replace(url1, s.BaseURL, s.BaseURL2, 1),
		})
	}
	return pairs, nil
}
