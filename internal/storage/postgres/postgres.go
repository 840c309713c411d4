package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/synapse/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
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
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS comparison_entries_run_idx ON comparison_entries (run_id, idx);
`

// New creates a new Postgres-backed storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, schema)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, entry *storage.Entry) error {
	recordJSON, err := json.Marshal(entry.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := `
	INSERT INTO comparison_entries (
		id, run_id, idx, url1, url2, kind, success, error_kind, record, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = b.pool.Exec(ctx, query,
		entry.ID,
		entry.RunID,
		entry.Index,
		entry.URL1,
		entry.URL2,
		string(entry.Record.Kind),
		entry.Record.Success,
		string(entry.Record.ErrorKind),
		recordJSON,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Entry, error) {
	query := `SELECT id, run_id, idx, url1, url2, record, created_at FROM comparison_entries WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.RunID != "" {
		query += fmt.Sprintf(` AND run_id = $%d`, paramCount)
		args = append(args, filter.RunID)
		paramCount++
	}
	if filter.Success != nil {
		query += fmt.Sprintf(` AND success = $%d`, paramCount)
		args = append(args, *filter.Success)
		paramCount++
	}
	if filter.ErrorKind != "" {
		query += fmt.Sprintf(` AND error_kind = $%d`, paramCount)
		args = append(args, string(filter.ErrorKind))
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY run_id, idx`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []*storage.Entry
	for rows.Next() {
		var e storage.Entry
		var recordJSON []byte

		err := rows.Scan(&e.ID, &e.RunID, &e.Index, &e.URL1, &e.URL2, &recordJSON, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if err := json.Unmarshal(recordJSON, &e.Record); err != nil {
			return nil, fmt.Errorf("decode record %s: %w", e.ID, err)
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
