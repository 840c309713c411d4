package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/storage"
)

// Column is one field of a row report.
type Column struct {
	Header string
	Value  func(e *storage.Entry) string
}

var (
	leadColumns = []Column{
		{"Row", func(e *storage.Entry) string { return strconv.Itoa(e.Index) }},
		{"URL1", func(e *storage.Entry) string { return e.URL1 }},
		{"URL2", func(e *storage.Entry) string { return e.URL2 }},
		{"Success", func(e *storage.Entry) string { return strconv.FormatBool(e.Record.Success) }},
		{"ResponseTime(ms)", func(e *storage.Entry) string { return strconv.FormatInt(e.Record.ResponseTimeMs(), 10) }},
		{"URL1_Status", func(e *storage.Entry) string { return strconv.Itoa(e.Record.Status1) }},
		{"URL2_Status", func(e *storage.Entry) string { return strconv.Itoa(e.Record.Status2) }},
		{"URL1_Size", func(e *storage.Entry) string { return strconv.Itoa(e.Record.Size1) }},
		{"URL2_Size", func(e *storage.Entry) string { return strconv.Itoa(e.Record.Size2) }},
	}

	imageColumns = []Column{
		{"Width1", dimension(func(d *compare.Dimensions) int { return d.Width1 })},
		{"Height1", dimension(func(d *compare.Dimensions) int { return d.Height1 })},
		{"Width2", dimension(func(d *compare.Dimensions) int { return d.Width2 })},
		{"Height2", dimension(func(d *compare.Dimensions) int { return d.Height2 })},
		{"DiffPixels", diffPixels},
		{"Similarity%", similarity},
	}

	textColumns = []Column{
		{"TextMatch", textMatch},
		{"Similarity%", similarity},
	}

	tailColumns = []Column{
		{"Error", func(e *storage.Entry) string { return string(e.Record.ErrorKind) }},
		{"ErrorDetails", func(e *storage.Entry) string { return e.Record.ErrorDetail }},
	}

	schemas = map[compare.Kind][]Column{
		compare.KindImage: concat(leadColumns, imageColumns, tailColumns),
		compare.KindText:  concat(leadColumns, textColumns, tailColumns),
	}
)

func concat(groups ...[]Column) []Column {
	var out []Column
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func dimension(pick func(*compare.Dimensions) int) func(*storage.Entry) string {
	return func(e *storage.Entry) string {
		if e.Record.Image == nil || e.Record.Image.Dimensions == nil {
			return ""
		}
		return strconv.Itoa(pick(e.Record.Image.Dimensions))
	}
}

func diffPixels(e *storage.Entry) string {
	img := e.Record.Image
	if img == nil || img.Similarity == nil {
		return ""
	}
	return strconv.Itoa(img.DiffPixels)
}

func similarity(e *storage.Entry) string {
	sim, ok := e.Record.Similarity()
	if !ok {
		return ""
	}
	return formatPercent(sim)
}

func textMatch(e *storage.Entry) string {
	t := e.Record.Text
	if t == nil || t.Similarity == nil {
		return ""
	}
	return strconv.FormatBool(t.ExactMatch)
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// RowSchema returns the columns of the row report for kind.
func RowSchema(kind compare.Kind) ([]Column, error) {
	cols, ok := schemas[kind]
	if !ok {
		return nil, fmt.Errorf("no row schema for kind %q", kind)
	}
	return cols, nil
}

// Headers returns the header names of cols.
func Headers(cols []Column) []string {
	h := make([]string, len(cols))
	for i, c := range cols {
		h[i] = c.Header
	}
	return h
}

// WriteRows writes one CSV row per entry, in the order given.
func WriteRows(w io.Writer, kind compare.Kind, entries []*storage.Entry) error {
	cols, err := RowSchema(kind)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(Headers(cols)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(cols))
	for _, e := range entries {
		for i, c := range cols {
			row[i] = c.Value(e)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", e.Index, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}
