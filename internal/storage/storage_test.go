package storage

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
)

func entry(run string, idx int, success bool) *Entry {
	rec := compare.Record{Kind: compare.KindText, Success: success, Text: &compare.TextPayload{}}
	if !success {
		rec.ErrorKind = compare.ErrFetchFailed
	}
	return &Entry{ID: run + "-" + string(rune('a'+idx)), RunID: run, Index: idx, Record: rec, CreatedAt: time.Now()}
}

func TestFilter_Match(t *testing.T) {
	boolTrue := true
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	e := entry("r1", 1, false)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"run match", Filter{RunID: "r1"}, true},
		{"run mismatch", Filter{RunID: "r2"}, false},
		{"success mismatch", Filter{Success: &boolTrue}, false},
		{"error kind match", Filter{ErrorKind: compare.ErrFetchFailed}, true},
		{"error kind mismatch", Filter{ErrorKind: compare.ErrDecodeError}, false},
		{"since past", Filter{Since: &past}, true},
		{"since future", Filter{Since: &future}, false},
	}

	for _, tt := range tests {
		if got := tt.filter.Match(e); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestFilter_Page(t *testing.T) {
	entries := []*Entry{entry("r2", 1, true), entry("r1", 3, true), entry("r1", 1, true), entry("r1", 2, true)}

	got := Filter{}.Page(entries)
	order := []struct {
		run string
		idx int
	}{{"r1", 1}, {"r1", 2}, {"r1", 3}, {"r2", 1}}
	for i, o := range order {
		if got[i].RunID != o.run || got[i].Index != o.idx {
			t.Errorf("position %d: expected %s/%d, got %s/%d", i, o.run, o.idx, got[i].RunID, got[i].Index)
		}
	}

	if got := (Filter{Offset: 1, Limit: 2}).Page(entries); len(got) != 2 || got[0].Index != 2 {
		t.Errorf("unexpected page %+v", got)
	}
	if got := (Filter{Offset: 10}).Page(entries); len(got) != 0 {
		t.Errorf("expected empty page, got %d entries", len(got))
	}
}

// Ensure Backend interface exists and is implementable
type mockBackend struct{}

func (m *mockBackend) Save(ctx context.Context, entry *Entry) error { return nil }
func (m *mockBackend) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	return nil, nil
}
func (m *mockBackend) Close() error { return nil }

func TestBackendInterface(t *testing.T) {
	var b Backend = &mockBackend{}
	_ = b
}
