// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/storage"
)

func pct(v float64) *float64 { return &v }

// Entries returns three entries of one run, saved out of index order by Run.
func Entries(runID string, now time.Time) []*storage.Entry {
	return []*storage.Entry{
		{
			ID: runID + "-2", RunID: runID, Index: 2,
			URL1: "http://a.test/2.png", URL2: "http://b.test/2.png",
			Record: compare.Record{
				Kind: compare.KindImage, ResponseTime: 40 * time.Millisecond,
				Status1: 200, Status2: 200, Size1: 300, Size2: 310,
				ErrorKind: compare.ErrDimensionMismatch, ErrorDetail: "image dimensions mismatch: 10x10 vs 20x10",
				Image: &compare.ImagePayload{Dimensions: &compare.Dimensions{Width1: 10, Height1: 10, Width2: 20, Height2: 10}, DiffPixels: -1, Similarity: pct(0)},
			},
			CreatedAt: now.Add(-1 * time.Hour),
		},
		{
			ID: runID + "-1", RunID: runID, Index: 1,
			URL1: "http://a.test/1.png", URL2: "http://b.test/1.png",
			Record: compare.Record{
				Kind: compare.KindImage, Success: true, ResponseTime: 25 * time.Millisecond,
				Status1: 200, Status2: 200, Size1: 300, Size2: 300,
				Image: &compare.ImagePayload{Dimensions: &compare.Dimensions{Width1: 10, Height1: 10, Width2: 10, Height2: 10}, DiffPixels: 5, Similarity: pct(95)},
			},
			CreatedAt: now.Add(-2 * time.Hour),
		},
		{
			ID: runID + "-3", RunID: runID, Index: 3,
			URL1: "http://a.test/3.png", URL2: "http://b.test/3.png",
			Record: compare.Record{
				Kind: compare.KindImage, ResponseTime: 5 * time.Millisecond,
				Status1: 404, Status2: 200,
				ErrorKind: compare.ErrFetchFailed, ErrorDetail: "URL1: HTTP 404, URL2: OK",
				Image: &compare.ImagePayload{},
			},
			CreatedAt: now.Add(-30 * time.Minute),
		},
	}
}

// Run saves Entries into b and checks ordering, filters and paging.
func Run(t *testing.T, b storage.Backend, runID string) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for _, e := range Entries(runID, now) {
		if err := b.Save(ctx, e); err != nil {
			t.Fatalf("Failed to save entry %s: %v", e.ID, err)
		}
	}

	all, err := b.Query(ctx, storage.Filter{RunID: runID})
	if err != nil {
		t.Fatalf("Failed to query all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(all))
	}
	for i, e := range all {
		if e.Index != i+1 {
			t.Errorf("Expected index %d at position %d, got %d", i+1, i, e.Index)
		}
	}

	first := all[0]
	if first.URL2 != "http://b.test/1.png" {
		t.Errorf("Expected url2 http://b.test/1.png, got %s", first.URL2)
	}
	if !first.Record.Success || first.Record.Image == nil {
		t.Fatalf("Expected successful image record, got %+v", first.Record)
	}
	if first.Record.Image.DiffPixels != 5 {
		t.Errorf("Expected 5 diff pixels, got %d", first.Record.Image.DiffPixels)
	}
	if sim, ok := first.Record.Similarity(); !ok || sim != 95 {
		t.Errorf("Expected similarity 95, got %v (present %v)", sim, ok)
	}
	if first.Record.ResponseTimeMs() != 25 {
		t.Errorf("Expected 25ms, got %d", first.Record.ResponseTimeMs())
	}

	mismatch := all[1]
	if sim, ok := mismatch.Record.Similarity(); !ok || sim != 0 {
		t.Errorf("Expected dimension mismatch to keep similarity 0, got %v (present %v)", sim, ok)
	}
	if d := mismatch.Record.Image.Dimensions; d == nil || d.Width2 != 20 {
		t.Errorf("Expected dimensions to survive, got %+v", d)
	}

	failed := all[2]
	if _, ok := failed.Record.Similarity(); ok {
		t.Errorf("Expected no similarity on fetch failure")
	}
	if failed.Record.ErrorDetail != "URL1: HTTP 404, URL2: OK" {
		t.Errorf("Unexpected error detail %q", failed.Record.ErrorDetail)
	}

	boolTrue := true
	ok, err := b.Query(ctx, storage.Filter{RunID: runID, Success: &boolTrue})
	if err != nil {
		t.Fatalf("Failed to query by success: %v", err)
	}
	if len(ok) != 1 || ok[0].Index != 1 {
		t.Errorf("Expected only entry 1 for success filter, got %d entries", len(ok))
	}

	byKind, err := b.Query(ctx, storage.Filter{RunID: runID, ErrorKind: compare.ErrFetchFailed})
	if err != nil {
		t.Fatalf("Failed to query by error kind: %v", err)
	}
	if len(byKind) != 1 || byKind[0].Index != 3 {
		t.Errorf("Expected only entry 3 for FetchFailed, got %d entries", len(byKind))
	}

	since := now.Add(-90 * time.Minute)
	recent, err := b.Query(ctx, storage.Filter{RunID: runID, Since: &since})
	if err != nil {
		t.Fatalf("Failed to query by since: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("Expected 2 entries since %v, got %d", since, len(recent))
	}

	page, err := b.Query(ctx, storage.Filter{RunID: runID, Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("Failed to query page: %v", err)
	}
	if len(page) != 1 || page[0].Index != 2 {
		t.Errorf("Expected entry 2 for offset 1 limit 1, got %d entries", len(page))
	}
}
