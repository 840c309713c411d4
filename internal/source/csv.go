package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	DefaultColumn1 = "url1"
	DefaultColumn2 = "url2"
)

// CSV reads pairs from a delimited file with a header row. Either Path or
// Reader must be set; Reader wins when both are.
type CSV struct {
	Path    string
	Reader  io.Reader
	Column1 string
	Column2 string
}

// Pairs returns one pair per data row. Rows with a missing value are kept
// with an empty URL so their index is not reused.
func (c *CSV) Pairs(ctx context.Context) ([]Pair, error) {
	col1, col2 := c.Column1, c.Column2
	if col1 == "" {
		col1 = DefaultColumn1
	}
	if col2 == "" {
		col2 = DefaultColumn2
	}

	rows, err := c.read(col1, col2)
	if err != nil {
		return nil, &Error{Source: "csv", Err: err}
	}
	if len(rows) == 0 {
		return nil, &Error{Source: "csv", Err: ErrEmpty}
	}

	pairs := make([]Pair, 0, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pairs = append(pairs, Pair{Index: i + 1, URL1: row[0], URL2: row[1]})
	}
	return pairs, nil
}

func (c *CSV) read(columns ...string) ([][]string, error) {
	r := c.Reader
	if r == nil {
		if c.Path == "" {
			return nil, errors.New("no path or reader")
		}
		f, err := os.Open(c.Path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return readColumns(r, columns...)
}

// readColumns returns the named columns of every data row, trimmed. A short
// row yields empty values for the columns it lacks.
func readColumns(r io.Reader, columns ...string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	positions := make([]int, len(columns))
	for i, name := range columns {
		positions[i] = -1
		for j, h := range header {
			if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
				positions[i] = j
				break
			}
		}
		if positions[i] < 0 {
			return nil, fmt.Errorf("column %q not found in header", name)
		}
	}

	var rows [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}

		row := make([]string, len(columns))
		for i, pos := range positions {
			if pos < len(record) {
				row[i] = strings.TrimSpace(record[pos])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
