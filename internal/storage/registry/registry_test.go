package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/FranksOps/synapse/internal/storage"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := Open(ctx, "", "")
	if err != nil || b != nil {
		t.Fatalf("Expected nil backend for empty name, got %v, %v", b, err)
	}

	for _, name := range []string{CSV, NDJSON, SQLite} {
		b, err := Open(ctx, name, filepath.Join(dir, "store."+name))
		if err != nil {
			t.Fatalf("Failed to open %s: %v", name, err)
		}
		if _, err := b.Query(ctx, storage.Filter{}); err != nil {
			t.Errorf("%s: query on empty store failed: %v", name, err)
		}
		b.Close()
	}

	if _, err := Open(ctx, "redis", "x"); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := Open(ctx, CSV, ""); err == nil {
		t.Error("Expected error for missing dsn")
	}
}
