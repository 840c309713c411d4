// Package registry opens a storage.Backend by name.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranksOps/synapse/internal/storage"
	"github.com/FranksOps/synapse/internal/storage/csvbackend"
	"github.com/FranksOps/synapse/internal/storage/jsonbackend"
	"github.com/FranksOps/synapse/internal/storage/postgres"
	"github.com/FranksOps/synapse/internal/storage/sqlite"
)

// Names of the available backends.
const (
	None     = "none"
	CSV      = "csv"
	NDJSON   = "ndjson"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Open returns the backend called name, opened on dsn. For the file backends
// dsn is a path. None or an empty name returns a nil backend and no error.
func Open(ctx context.Context, name, dsn string) (storage.Backend, error) {
	if name == "" || name == None {
		return nil, nil
	}
	if dsn == "" {
		return nil, errors.New("storage dsn is required")
	}

	var (
		b   storage.Backend
		err error
	)
	switch name {
	case CSV:
		b, err = csvbackend.New(dsn)
	case NDJSON:
		b, err = jsonbackend.New(dsn)
	case SQLite:
		b, err = sqlite.New(dsn)
	case Postgres:
		b, err = postgres.New(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", name, err)
	}
	return b, nil
}
