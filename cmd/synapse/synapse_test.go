package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/synapse/internal/report"
	"github.com/FranksOps/synapse/internal/storage"
	"github.com/FranksOps/synapse/internal/storage/registry"
)

const stamp = "2024-05-06_07-08-09"

var fixedNamer = report.Namer{Now: func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }}

func quietLogger() *slog.Logger {
	return newLogger(&bytes.Buffer{}, false)
}

func defaultRunFlags(t *testing.T) runFlags {
	return runFlags{output: t.TempDir(), concurrency: 2, fingerprint: "go", storage: registry.None}
}

func pngBytes(t *testing.T, dots int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	for _, p := range []image.Point{{2, 2}, {5, 2}, {7, 5}, {2, 7}, {5, 7}}[:dots] {
		img.SetNRGBA(p.X, p.Y, color.NRGBA{A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func textServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a/1", "/b/1", "/a", "/b":
			fmt.Fprint(w, "hello")
		case "/a/2":
			fmt.Fprint(w, "hello")
		case "/b/2":
			fmt.Fprint(w, "world")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, true).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestCompareCommand_Text(t *testing.T) {
	ts := textServer(t)
	in := writeInput(t, "pairs.csv", fmt.Sprintf("url1,url2\n%[1]s/a/1,%[1]s/b/1\n%[1]s/a/2,%[1]s/b/2\n,%[1]s/b/3\n", ts.URL))

	opts := compareOptions{
		csvPath:  in,
		column1:  "url1",
		column2:  "url2",
		kind:     "text",
		timeout:  5 * time.Second,
		runFlags: defaultRunFlags(t),
		namer:    fixedNamer,
	}

	var out bytes.Buffer
	require.NoError(t, opts.run(context.Background(), &out, quietLogger()))

	assert.Contains(t, out.String(), "Exact Matches: 1/2")

	rows := readCSV(t, filepath.Join(opts.output, "text-comparison-"+stamp+".csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, "TextMatch", rows[0][9])
	assert.Equal(t, []string{"1", "true", "true", "100"}, []string{rows[1][0], rows[1][3], rows[1][9], rows[1][10]})
	assert.Equal(t, []string{"2", "true", "false", "0"}, []string{rows[2][0], rows[2][3], rows[2][9], rows[2][10]})

	for _, ext := range []string{"json", "txt", "html"} {
		assert.FileExists(t, filepath.Join(opts.output, "summary-"+stamp+"."+ext))
	}

	data, err := os.ReadFile(filepath.Join(opts.output, "summary-"+stamp+".json"))
	require.NoError(t, err)
	var summary report.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 100.0, summary.SuccessRate)
}

func TestCompareCommand_ImageWithArchive(t *testing.T) {
	same, dotted := pngBytes(t, 0), pngBytes(t, 5)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		if strings.HasPrefix(r.URL.Path, "/dotted") {
			w.Write(dotted)
			return
		}
		w.Write(same)
	}))
	defer ts.Close()

	in := writeInput(t, "pairs.csv", fmt.Sprintf("left,right\n%[1]s/a.png,%[1]s/b.png\n%[1]s/a.png,%[1]s/dotted.png\n", ts.URL))
	flags := defaultRunFlags(t)
	flags.storage = registry.SQLite
	flags.dsn = filepath.Join(t.TempDir(), "archive.db")
	flags.diffDir = filepath.Join(t.TempDir(), "diffs")

	opts := compareOptions{
		csvPath:  in,
		column1:  "left",
		column2:  "right",
		kind:     "image",
		timeout:  5 * time.Second,
		runFlags: flags,
		namer:    fixedNamer,
	}

	var out bytes.Buffer
	require.NoError(t, opts.run(context.Background(), &out, quietLogger()))

	rows := readCSV(t, filepath.Join(opts.output, "image-comparison-"+stamp+".csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"0", "100"}, rows[1][13:15])
	assert.Equal(t, []string{"5", "95"}, rows[2][13:15])

	masks, err := filepath.Glob(filepath.Join(flags.diffDir, "diff-*.png"))
	require.NoError(t, err)
	assert.Len(t, masks, 1, "only the differing pair gets a mask")

	b, err := registry.Open(context.Background(), registry.SQLite, flags.dsn)
	require.NoError(t, err)
	defer b.Close()
	entries, err := b.Query(context.Background(), storage.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].Index)
	assert.Equal(t, 5, entries[1].Record.Image.DiffPixels)
}

func TestCompareCommand_Errors(t *testing.T) {
	opts := compareOptions{kind: "audio", runFlags: defaultRunFlags(t)}
	assert.Error(t, opts.run(context.Background(), &bytes.Buffer{}, quietLogger()))

	opts = compareOptions{
		csvPath:  filepath.Join(t.TempDir(), "missing.csv"),
		column1:  "url1",
		column2:  "url2",
		kind:     "text",
		runFlags: defaultRunFlags(t),
	}
	assert.Error(t, opts.run(context.Background(), &bytes.Buffer{}, quietLogger()))

	opts.csvPath = writeInput(t, "pairs.csv", "url1,url2\n")
	opts.fingerprint = "netscape"
	assert.Error(t, opts.run(context.Background(), &bytes.Buffer{}, quietLogger()))
}

func TestPostprocessCommand(t *testing.T) {
	ts := textServer(t)
	line := func(iter int, path string, status int) string {
		return fmt.Sprintf(`time="2024-05-06T07:08:09Z" level=info msg=%q source=console`,
			fmt.Sprintf(`{"type":"comparison","iteration":%d,"url1":"%[2]s/a/%[3]s","url2":"%[2]s/b/%[3]s","responseTime":12,"url1Status":200,"url2Status":%[4]d,"url1Size":5,"url2Size":5}`,
				iter, ts.URL, path, status))
	}
	logPath := writeInput(t, "k6.log", strings.Join([]string{
		"running (0m01.0s), 1/1 VUs",
		line(0, "1", 200),
		line(1, "2", 500),
		line(2, "2", 200),
		"default ✓ [======================================] 1 VUs  00m01.0s/10m0s  3/3 shared iters",
	}, "\n"))

	opts := postprocessOptions{
		logPath:  logPath,
		kind:     "text",
		timeout:  5 * time.Second,
		runFlags: defaultRunFlags(t),
		namer:    fixedNamer,
	}

	var out bytes.Buffer
	require.NoError(t, opts.run(context.Background(), &out, quietLogger()))
	assert.Contains(t, out.String(), "Records: 3, compared successfully: 2, failed: 1, not compared: 1")

	basic := readCSV(t, filepath.Join(opts.output, "basic-comparison-"+stamp+".csv"))
	assert.Len(t, basic, 4)
	assert.FileExists(t, filepath.Join(opts.output, resultsFile))

	detailed := readCSV(t, filepath.Join(opts.output, "detailed-comparison-"+stamp+".csv"))
	require.Len(t, detailed, 4)
	assert.Equal(t, "true", detailed[1][10])
	assert.Equal(t, "true", detailed[1][18])
	assert.Equal(t, "", detailed[2][10], "record with a 500 is not re-compared")
	assert.Equal(t, "false", detailed[3][18])

	data, err := os.ReadFile(filepath.Join(opts.output, "comparison-summary-"+stamp+".json"))
	require.NoError(t, err)
	var summary report.MergedSummary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, 3, summary.Totals.Total)
	assert.Equal(t, 12.0, summary.Performance.AvgLoadTestResponseTime)
}

func TestPostprocessCommand_NothingToCompare(t *testing.T) {
	logPath := writeInput(t, "results.json", `[{"iteration":0,"url1":"http://a","url2":"http://b","url1Status":503,"url2Status":200}]`)
	opts := postprocessOptions{logPath: logPath, kind: "image", runFlags: defaultRunFlags(t), namer: fixedNamer}

	var out bytes.Buffer
	require.NoError(t, opts.run(context.Background(), &out, quietLogger()))
	assert.Contains(t, out.String(), "not compared: 1")

	empty := postprocessOptions{logPath: writeInput(t, "empty.log", "nothing here\n"), kind: "image", runFlags: defaultRunFlags(t)}
	assert.ErrorContains(t, empty.run(context.Background(), &bytes.Buffer{}, quietLogger()), "no comparison records")
}

func TestRunCommand_ComparisonOnly(t *testing.T) {
	ts := textServer(t)
	cfgPath := writeInput(t, "synapse.yaml", fmt.Sprintf(`
name: smoke
baseUrl: %[1]s/a
execution:
  iterations: 4
  concurrent: 2
parameters:
  - name: id
    type: integer
    min: 1
    max: 9
comparison:
  enabled: true
  type: text
  baseUrl2: %[1]s/b
`, ts.URL))

	opts := runOptions{
		configPath:     cfgPath,
		comparisonOnly: true,
		seed:           42,
		runFlags:       defaultRunFlags(t),
		namer:          fixedNamer,
	}

	var out bytes.Buffer
	notChanged := func(string) bool { return false }
	require.NoError(t, opts.run(context.Background(), notChanged, &out, quietLogger()))
	assert.Contains(t, out.String(), "Exact Matches: 4/4")

	rows := readCSV(t, filepath.Join(opts.output, "text-comparison-"+stamp+".csv"))
	require.Len(t, rows, 5)
	for _, row := range rows[1:] {
		assert.True(t, strings.HasPrefix(row[1], ts.URL+"/a?id="), row[1])
		assert.Equal(t, strings.Replace(row[1], "/a?", "/b?", 1), row[2])
	}
}

func TestRunCommand_Guards(t *testing.T) {
	opts := runOptions{configPath: "unused.yaml", runFlags: defaultRunFlags(t)}
	err := opts.run(context.Background(), func(string) bool { return false }, &bytes.Buffer{}, quietLogger())
	assert.ErrorContains(t, err, "--comparison-only")

	disabled := writeInput(t, "synapse.yaml", "name: x\nbaseUrl: http://a.example\n")
	opts = runOptions{configPath: disabled, comparisonOnly: true, runFlags: defaultRunFlags(t)}
	err = opts.run(context.Background(), func(string) bool { return false }, &bytes.Buffer{}, quietLogger())
	assert.ErrorContains(t, err, "not enabled")
}
