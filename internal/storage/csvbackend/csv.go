package csvbackend

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"run_id",
	"index",
	"url1",
	"url2",
	"kind",
	"success",
	"response_time_ms",
	"status1",
	"status2",
	"size1",
	"size2",
	"error_kind",
	"error_detail",
	"payload_json",
	"created_at",
}

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open csv store: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv store: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, entry *storage.Entry) error {
	rec := entry.Record

	var payload any = rec.Text
	if rec.Image != nil {
		payload = rec.Image
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	row := []string{
		entry.ID,
		entry.RunID,
		strconv.Itoa(entry.Index),
		entry.URL1,
		entry.URL2,
		string(rec.Kind),
		strconv.FormatBool(rec.Success),
		strconv.FormatInt(rec.ResponseTimeMs(), 10),
		strconv.Itoa(rec.Status1),
		strconv.Itoa(rec.Status2),
		strconv.Itoa(rec.Size1),
		strconv.Itoa(rec.Size2),
		string(rec.ErrorKind),
		rec.ErrorDetail,
		string(payloadJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek csv store: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("write entry: %w", err)
	}

	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Seek to the beginning of the file to read all entries
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek csv store: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	// Read headers
	_, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return []*storage.Entry{}, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var matched []*storage.Entry

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read entry: %w", err)
		}

		if len(row) != len(headers) {
			continue // skip malformed rows
		}

		entry, err := decodeRow(row)
		if err != nil {
			continue
		}

		if filter.Match(entry) {
			matched = append(matched, entry)
		}
	}

	return filter.Page(matched), nil
}

func decodeRow(row []string) (*storage.Entry, error) {
	index, _ := strconv.Atoi(row[2])
	success, _ := strconv.ParseBool(row[6])
	responseMs, _ := strconv.ParseInt(row[7], 10, 64)
	status1, _ := strconv.Atoi(row[8])
	status2, _ := strconv.Atoi(row[9])
	size1, _ := strconv.Atoi(row[10])
	size2, _ := strconv.Atoi(row[11])
	createdAt, _ := time.Parse(time.RFC3339Nano, row[15])

	rec := compare.Record{
		Kind:         compare.Kind(row[5]),
		Success:      success,
		ResponseTime: time.Duration(responseMs) * time.Millisecond,
		Status1:      status1,
		Status2:      status2,
		Size1:        size1,
		Size2:        size2,
		ErrorKind:    compare.ErrorKind(row[12]),
		ErrorDetail:  row[13],
	}

	switch rec.Kind {
	case compare.KindImage:
		rec.Image = &compare.ImagePayload{}
		if err := json.Unmarshal([]byte(row[14]), rec.Image); err != nil {
			return nil, err
		}
	case compare.KindText:
		rec.Text = &compare.TextPayload{}
		if err := json.Unmarshal([]byte(row[14]), rec.Text); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", rec.Kind)
	}

	return &storage.Entry{
		ID:        row[0],
		RunID:     row[1],
		Index:     index,
		URL1:      row[3],
		URL2:      row[4],
		Record:    rec,
		CreatedAt: createdAt,
	}, nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
