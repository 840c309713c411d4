package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/source"
	"github.com/FranksOps/synapse/internal/storage"
)

// MergedRow pairs a logged record with the comparison made for it. Detailed
// is nil for records that were not compared.
type MergedRow struct {
	source.LogRecord
	Detailed *compare.Record `json:"detailedComparison,omitempty"`
}

// Merge joins records with entries by position: entry Index n belongs to the
// n-th record. Every record yields a row.
func Merge(records []source.LogRecord, entries []*storage.Entry) []MergedRow {
	byIndex := make(map[int]*storage.Entry, len(entries))
	for _, e := range entries {
		byIndex[e.Index] = e
	}

	rows := make([]MergedRow, len(records))
	for i, r := range records {
		rows[i] = MergedRow{LogRecord: r}
		if e, ok := byIndex[i+1]; ok {
			rec := e.Record
			rows[i].Detailed = &rec
		}
	}
	return rows
}

var mergedHeaders = []string{
	"Iteration", "URL1", "URL2", "LoadTest_ResponseTime(ms)", "URL1_Status", "URL2_Status",
	"URL1_Size", "URL2_Size", "LoadTest_SizeMatch", "LoadTest_Similarity%",
	"Pixelmatch_Success", "Pixelmatch_ResponseTime(ms)", "Image_Width1", "Image_Height1",
	"Image_Width2", "Image_Height2", "Pixelmatch_DiffPixels", "Pixelmatch_Similarity%",
	"TextMatch", "Error", "ErrorDetails", "Timestamp",
}

// WriteMergedCSV writes the logged fields and the fresh comparison fields
// side by side. Comparison columns are empty for records not compared.
func WriteMergedCSV(w io.Writer, rows []MergedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(mergedHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range rows {
		line := []string{
			strconv.Itoa(r.Iteration),
			r.URL1,
			r.URL2,
			formatFloat(r.ResponseTime),
			strconv.Itoa(r.URL1Status),
			strconv.Itoa(r.URL2Status),
			strconv.Itoa(r.URL1Size),
			strconv.Itoa(r.URL2Size),
			optBool(r.SizeMatch),
			optFloat(r.Similarity),
		}

		detail := make([]string, 11)
		if d := r.Detailed; d != nil {
			e := &storage.Entry{Record: *d}
			detail = []string{
				strconv.FormatBool(d.Success),
				strconv.FormatInt(d.ResponseTimeMs(), 10),
				dimension(func(x *compare.Dimensions) int { return x.Width1 })(e),
				dimension(func(x *compare.Dimensions) int { return x.Height1 })(e),
				dimension(func(x *compare.Dimensions) int { return x.Width2 })(e),
				dimension(func(x *compare.Dimensions) int { return x.Height2 })(e),
				diffPixels(e),
				similarity(e),
				textMatch(e),
				string(d.ErrorKind),
				d.ErrorDetail,
			}
		}
		line = append(line, detail...)
		line = append(line, r.Timestamp)

		if err := cw.Write(line); err != nil {
			return fmt.Errorf("write row %d: %w", r.Iteration, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush rows: %w", err)
	}
	return nil
}

// WriteMergedJSON dumps every merged row.
func WriteMergedJSON(w io.Writer, rows []MergedRow) error {
	if rows == nil {
		rows = []MergedRow{}
	}
	return WriteJSON(w, rows)
}

var basicHeaders = []string{
	"Iteration", "URL1", "URL2", "ResponseTime(ms)", "URL1_Status", "URL2_Status",
	"URL1_Size", "URL2_Size", "SizeMatch", "Similarity%", "Timestamp",
}

// WriteBasicCSV writes the logged records as they were captured.
func WriteBasicCSV(w io.Writer, records []source.LogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(basicHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{
			strconv.Itoa(r.Iteration),
			r.URL1,
			r.URL2,
			formatFloat(r.ResponseTime),
			strconv.Itoa(r.URL1Status),
			strconv.Itoa(r.URL2Status),
			strconv.Itoa(r.URL1Size),
			strconv.Itoa(r.URL2Size),
			optBool(r.SizeMatch),
			optFloat(r.Similarity),
			r.Timestamp,
		}); err != nil {
			return fmt.Errorf("write row %d: %w", r.Iteration, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MergedSummary aggregates a merged run. Records that were never compared
// count as failed.
type MergedSummary struct {
	Timestamp   time.Time      `json:"timestamp"`
	Totals      Totals         `json:"totals"`
	Performance Performance    `json:"performance"`
	Errors      map[string]int `json:"errors"`
}

// Performance holds the mean timings of a merged run, in milliseconds, and
// the mean similarity of successful comparisons.
type Performance struct {
	AvgLoadTestResponseTime float64 `json:"avgLoadTestResponseTime"`
	AvgDetailedResponseTime float64 `json:"avgDetailedResponseTime"`
	AvgSimilarity           float64 `json:"avgSimilarity"`
}

// Totals are the outcome counts of a merged run.
type Totals struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	NotCompared int     `json:"notCompared"`
	SuccessRate float64 `json:"successRate"`
}

// SummarizeMerged derives the merged summary at now.
func SummarizeMerged(rows []MergedRow, now time.Time) MergedSummary {
	var s MergedSummary
	s.Timestamp = now
	s.Errors = make(map[string]int)

	var loadMs, detailMs, sim float64
	var compared int
	for _, r := range rows {
		s.Totals.Total++
		loadMs += r.ResponseTime

		d := r.Detailed
		if d == nil {
			s.Totals.NotCompared++
			continue
		}
		compared++
		detailMs += float64(d.ResponseTimeMs())

		if d.Success {
			s.Totals.Successful++
			if v, ok := d.Similarity(); ok {
				sim += v
			}
		} else {
			s.Errors[string(d.ErrorKind)]++
		}
	}
	s.Totals.Failed = s.Totals.Total - s.Totals.Successful

	if s.Totals.Total > 0 {
		s.Totals.SuccessRate = round2(float64(s.Totals.Successful) / float64(s.Totals.Total) * 100)
		s.Performance.AvgLoadTestResponseTime = round2(loadMs / float64(s.Totals.Total))
	}
	if compared > 0 {
		s.Performance.AvgDetailedResponseTime = round2(detailMs / float64(compared))
	}
	if s.Totals.Successful > 0 {
		s.Performance.AvgSimilarity = round2(sim / float64(s.Totals.Successful))
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}

func optFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return formatFloat(*f)
}
