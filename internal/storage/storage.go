package storage

import (
	"context"
	"sort"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
)

// Entry is one compared pair of a run.
type Entry struct {
	ID        string         `json:"id"`
	RunID     string         `json:"runId"`
	Index     int            `json:"index"` // 1-based position of the pair in its source
	URL1      string         `json:"url1"`
	URL2      string         `json:"url2"`
	Record    compare.Record `json:"record"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filter allows querying for specific entries.
type Filter struct {
	RunID     string
	Success   *bool
	ErrorKind compare.ErrorKind
	Since     *time.Time
	Limit     int
	Offset    int
}

// Backend defines the interface for storing and querying comparison entries.
// Query returns entries ordered by run and then by index.
type Backend interface {
	Save(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
	Close() error
}

// Match reports whether e passes the predicate part of f.
func (f Filter) Match(e *Entry) bool {
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	if f.Success != nil && e.Record.Success != *f.Success {
		return false
	}
	if f.ErrorKind != "" && e.Record.ErrorKind != f.ErrorKind {
		return false
	}
	if f.Since != nil && e.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page orders entries the way Backend.Query does and applies Offset and
// Limit. It is for backends that filter in memory.
func (f Filter) Page(entries []*Entry) []*Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].RunID != entries[j].RunID {
			return entries[i].RunID < entries[j].RunID
		}
		return entries[i].Index < entries[j].Index
	})

	if f.Offset > 0 {
		if f.Offset >= len(entries) {
			return []*Entry{}
		}
		entries = entries[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(entries) {
		entries = entries[:f.Limit]
	}
	return entries
}
