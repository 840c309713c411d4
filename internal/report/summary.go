// Package report renders batch results: per-row CSV tables, aggregate
// summaries in JSON, text and HTML, and the merged artifacts that put an
// external load run's records beside fresh comparisons.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/template"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/storage"
)

// Summary contains aggregated metrics about a batch. It is derived once from
// the finished entries.
type Summary struct {
	Kind              compare.Kind   `json:"kind"`
	Total             int            `json:"total"`
	Successful        int            `json:"successful"`
	Failed            int            `json:"failed"`
	SuccessRate       float64        `json:"successRate"`
	AvgResponseTimeMs float64        `json:"avgResponseTimeMs"`
	AvgSimilarity     float64        `json:"avgSimilarity"`
	ExactMatches      int            `json:"exactMatches"`
	ErrorKinds        map[string]int `json:"errors"`
	StartTime         time.Time      `json:"startTime"`
	EndTime           time.Time      `json:"endTime"`
}

// Summarize computes the summary of entries. Averages are rounded to two
// decimals; the similarity mean covers successful entries only.
func Summarize(kind compare.Kind, entries []*storage.Entry) Summary {
	s := Summary{
		Kind:       kind,
		ErrorKinds: make(map[string]int),
	}

	if len(entries) == 0 {
		return s
	}

	s.StartTime = entries[0].CreatedAt
	s.EndTime = entries[0].CreatedAt

	var totalMs, totalSim float64
	for _, e := range entries {
		rec := e.Record
		s.Total++
		totalMs += float64(rec.ResponseTimeMs())

		if rec.Success {
			s.Successful++
			if sim, ok := rec.Similarity(); ok {
				totalSim += sim
			}
			if rec.Text != nil && rec.Text.ExactMatch {
				s.ExactMatches++
			}
		} else {
			s.Failed++
			s.ErrorKinds[string(rec.ErrorKind)]++
		}

		if e.CreatedAt.Before(s.StartTime) {
			s.StartTime = e.CreatedAt
		}
		if e.CreatedAt.After(s.EndTime) {
			s.EndTime = e.CreatedAt
		}
	}

	s.SuccessRate = round2(float64(s.Successful) / float64(s.Total) * 100)
	s.AvgResponseTimeMs = round2(totalMs / float64(s.Total))
	if s.Successful > 0 {
		s.AvgSimilarity = round2(totalSim / float64(s.Successful))
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

var textTmpl = template.Must(template.New("textReport").Parse(`Synapse Comparison Summary
--------------------------
Type:          {{.Kind}}
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Total:         {{.Total}}
Successful:    {{.Successful}}
Failed:        {{.Failed}}
Success Rate:  {{printf "%.2f" .SuccessRate}}%
Avg Response:  {{printf "%.0f" .AvgResponseTimeMs}}ms
{{- if eq (print .Kind) "text"}}
Exact Matches: {{.ExactMatches}}/{{.Successful}}
{{- else}}
Avg Similarity: {{printf "%.2f" .AvgSimilarity}}%
{{- end}}

Errors:
{{- range $kind, $count := .ErrorKinds}}
  {{$kind}}: {{$count}}
{{- else}}
  None
{{- end}}
`))

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	if err := textTmpl.Execute(w, summary); err != nil {
		return fmt.Errorf("render text summary: %w", err)
	}
	return nil
}

var htmlTmpl = template.Must(template.New("htmlReport").Parse(`<!DOCTYPE html>
<html>
<head>
<title>Synapse Comparison Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Synapse Comparison Report ({{.Kind}})</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}}</p>

  <div class="stat-card">
    <div>Total Pairs</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Failed</div>
    <div class="stat-val" style="color: {{if gt .Failed 0}}red{{else}}green{{end}};">{{.Failed}}</div>
  </div>
  <div class="stat-card">
    <div>Success Rate</div>
    <div class="stat-val">{{printf "%.2f" .SuccessRate}}%</div>
  </div>
  <div class="stat-card">
    <div>Avg Similarity</div>
    <div class="stat-val">{{printf "%.2f" .AvgSimilarity}}%</div>
  </div>
  <div class="stat-card">
    <div>Avg Response</div>
    <div class="stat-val">{{printf "%.0f" .AvgResponseTimeMs}}ms</div>
  </div>

  <h3>Errors By Kind</h3>
  <table>
    <tr><th>Kind</th><th>Count</th></tr>
    {{- range $kind, $count := .ErrorKinds}}
    <tr><td>{{$kind}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`))

// WriteHTML writes a basic HTML report to the provided writer.
func WriteHTML(w io.Writer, summary Summary) error {
	if err := htmlTmpl.Execute(w, summary); err != nil {
		return fmt.Errorf("render html summary: %w", err)
	}
	return nil
}
