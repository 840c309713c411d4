package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/synapse/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS comparison_entries (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	url1 TEXT NOT NULL,
	url2 TEXT NOT NULL,
	kind TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	error_kind TEXT NOT NULL,
	record TEXT NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS comparison_entries_run_idx ON comparison_entries (run_id, idx);
`

// New creates a new SQLite-backed storage.Backend.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, entry *storage.Entry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := `
	INSERT INTO comparison_entries (
		id, run_id, idx, url1, url2, kind, success, error_kind, record, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = b.db.ExecContext(ctx, query,
		entry.ID,
		entry.RunID,
		entry.Index,
		entry.URL1,
		entry.URL2,
		string(entry.Record.Kind),
		entry.Record.Success,
		string(entry.Record.ErrorKind),
		string(recordJSON),
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT id, run_id, idx, url1, url2, record, created_at FROM comparison_entries WHERE 1=1`
	args := []any{}

	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	if filter.Success != nil {
		query += ` AND success = ?`
		args = append(args, *filter.Success)
	}
	if filter.ErrorKind != "" {
		query += ` AND error_kind = ?`
		args = append(args, string(filter.ErrorKind))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY run_id, idx`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*storage.Entry
	for rows.Next() {
		var e storage.Entry
		var recordJSON string

		err := rows.Scan(&e.ID, &e.RunID, &e.Index, &e.URL1, &e.URL2, &recordJSON, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", e.ID, err)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
