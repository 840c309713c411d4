package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LogRecord is one comparison logged by the external load engine.
type LogRecord struct {
	Type         string   `json:"type,omitempty"`
	Iteration    int      `json:"iteration"`
	URL1         string   `json:"url1"`
	URL2         string   `json:"url2"`
	ResponseTime float64  `json:"responseTime"`
	URL1Status   int      `json:"url1Status"`
	URL2Status   int      `json:"url2Status"`
	URL1Size     int      `json:"url1Size"`
	URL2Size     int      `json:"url2Size"`
	Timestamp    string   `json:"timestamp,omitempty"`
	TextMatch    *bool    `json:"textMatch,omitempty"`
	SizeMatch    *bool    `json:"sizeMatch,omitempty"`
	Similarity   *float64 `json:"similarity,omitempty"`
}

// Succeeded reports whether both logged statuses are 2xx.
func (r LogRecord) Succeeded() bool {
	return is2xx(r.URL1Status) && is2xx(r.URL2Status)
}

func is2xx(code int) bool {
	return code >= 200 && code < 300
}

// LogFormat selects how a log is parsed.
type LogFormat string

const (
	// LogFormatAuto treats input starting with '[' as a JSON array and
	// anything else as a console log.
	LogFormatAuto LogFormat = ""
	// LogFormatJSON is a JSON array of records.
	LogFormatJSON LogFormat = "json"
	// LogFormatConsole is free-form console output in which each record is
	// a {"type":"comparison",...} object, possibly quoted in a msg="..." field.
	LogFormatConsole LogFormat = "console"
)

const comparisonMarker = `{"type":"comparison"`

// Log reads the records of an external load run. Only records whose statuses
// are both 2xx become pairs; Records returns all of them for merging.
type Log struct {
	Path   string
	Reader io.Reader
	Format LogFormat

	records []LogRecord
	loaded  bool
}

// Records parses the log once and returns every record in log order.
func (l *Log) Records() ([]LogRecord, error) {
	if l.loaded {
		return l.records, nil
	}

	data, err := l.readAll()
	if err != nil {
		return nil, &Error{Source: "log", Err: err}
	}

	format := l.Format
	if format == LogFormatAuto {
		format = LogFormatConsole
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
			format = LogFormatJSON
		}
	}

	var records []LogRecord
	switch format {
	case LogFormatJSON:
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, &Error{Source: "log", Err: fmt.Errorf("decode records: %w", err)}
		}
	case LogFormatConsole:
		records, err = ScrapeConsole(bytes.NewReader(data))
		if err != nil {
			return nil, &Error{Source: "log", Err: err}
		}
	default:
		return nil, &Error{Source: "log", Err: fmt.Errorf("unknown format %q", format)}
	}

	l.records = records
	l.loaded = true
	return records, nil
}

// Pairs returns a pair for every record with two 2xx statuses. The pair
// index is the record's 1-based position in the log.
func (l *Log) Pairs(ctx context.Context) ([]Pair, error) {
	records, err := l.Records()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &Error{Source: "log", Err: ErrEmpty}
	}

	var pairs []Pair
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := &records[i]
		if !rec.Succeeded() {
			continue
		}
		pairs = append(pairs, Pair{Index: i + 1, URL1: rec.URL1, URL2: rec.URL2, External: rec})
	}
	return pairs, nil
}

func (l *Log) readAll() ([]byte, error) {
	if l.Reader != nil {
		return io.ReadAll(l.Reader)
	}
	if l.Path == "" {
		return nil, errors.New("no path or reader")
	}
	return os.ReadFile(l.Path)
}

// ScrapeConsole extracts comparison records from console output. Lines that
// do not hold a parseable record are ignored.
func ScrapeConsole(r io.Reader) ([]LogRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []LogRecord
	for sc.Scan() {
		payload, ok := comparisonPayload(sc.Text())
		if !ok {
			continue
		}

		var rec LogRecord
		if err := json.NewDecoder(strings.NewReader(payload)).Decode(&rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan console log: %w", err)
	}
	return records, nil
}

// comparisonPayload finds the JSON object of a comparison record in a line,
// either verbatim or as the quoted msg field of a structured log line.
func comparisonPayload(line string) (string, bool) {
	if i := strings.Index(line, comparisonMarker); i >= 0 {
		return line[i:], true
	}

	i := strings.Index(line, `msg="`)
	if i < 0 {
		return "", false
	}
	quoted, err := strconv.QuotedPrefix(line[i+len("msg="):])
	if err != nil {
		return "", false
	}
	msg, err := strconv.Unquote(quoted)
	if err != nil || !strings.HasPrefix(msg, comparisonMarker) {
		return "", false
	}
	return msg, true
}
