// Package pipeline drives a comparator over the pairs of a source. Pairs may
// run concurrently, but each result lands in the slot of its input position,
// so a batch is always in source order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/metrics"
	"github.com/FranksOps/synapse/internal/source"
	"github.com/FranksOps/synapse/internal/storage"
	"github.com/FranksOps/synapse/pkg/ratelimit"
)

// Comparer compares one pair. *compare.Comparator satisfies it.
type Comparer interface {
	Compare(ctx context.Context, url1, url2 string) compare.Record
}

// Progress is called after each comparison with the number finished so far.
// Calls are serialized and done increases by one each time.
type Progress func(done, total int, entry *storage.Entry)

// Config configures a Pipeline. Only Comparer and Kind are required.
type Config struct {
	Comparer Comparer
	Kind     compare.Kind
	// Concurrency bounds how many pairs are compared at once. Default 1.
	Concurrency int
	// Limiter, when set, spaces out pair dispatches.
	Limiter *ratelimit.Limiter
	// Backend, when set, receives every entry. Save failures are logged.
	Backend storage.Backend
	// Metrics records each comparison in the prometheus collectors.
	Metrics  bool
	Progress Progress
	Logger   *slog.Logger
}

// Batch is the ordered result of one run.
type Batch struct {
	RunID      string
	Kind       compare.Kind
	Entries    []*storage.Entry
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline runs batches.
type Pipeline struct {
	config Config
	logger *slog.Logger
}

// New returns a Pipeline for cfg.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Comparer == nil {
		return nil, errors.New("pipeline: comparer is required")
	}
	if _, err := compare.ParseKind(string(cfg.Kind)); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{config: cfg, logger: logger}, nil
}

// Run compares every pair of src. It fails only if src cannot be read or
// yields nothing; per-pair failures are recorded in the entries. If ctx is
// cancelled mid-run, the entries finished so far are returned with ctx.Err().
func (p *Pipeline) Run(ctx context.Context, src source.Source) (*Batch, error) {
	pairs, err := src.Pairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("read pairs: %w", source.ErrEmpty)
	}

	batch := &Batch{
		RunID:     uuid.NewString(),
		Kind:      p.config.Kind,
		StartedAt: time.Now(),
	}

	work := make([]source.Pair, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Skipped() {
			p.logger.Warn("skipping pair with missing url", "index", pair.Index, "url1", pair.URL1, "url2", pair.URL2)
			batch.Skipped++
			continue
		}
		work = append(work, pair)
	}

	p.logger.Info("starting batch", "run_id", batch.RunID, "kind", batch.Kind, "pairs", len(work), "skipped", batch.Skipped, "concurrency", p.config.Concurrency)

	slots := make([]*storage.Entry, len(work))

	var (
		progressMu sync.Mutex
		done       int
	)

	g := new(errgroup.Group)
	g.SetLimit(p.config.Concurrency)

	for i, pair := range work {
		// A nil limiter only reports cancellation.
		if err := p.config.Limiter.Wait(ctx); err != nil {
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			entry := p.compare(ctx, batch.RunID, pair)
			slots[i] = entry

			if p.config.Progress != nil {
				progressMu.Lock()
				done++
				p.config.Progress(done, len(work), entry)
				progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	batch.Entries = make([]*storage.Entry, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			batch.Entries = append(batch.Entries, e)
		}
	}
	batch.FinishedAt = time.Now()

	p.logger.Info("batch finished", "run_id", batch.RunID, "entries", len(batch.Entries), "elapsed", batch.FinishedAt.Sub(batch.StartedAt))

	if err := ctx.Err(); err != nil {
		return batch, err
	}
	return batch, nil
}

func (p *Pipeline) compare(ctx context.Context, runID string, pair source.Pair) *storage.Entry {
	rec := p.config.Comparer.Compare(ctx, pair.URL1, pair.URL2)

	entry := &storage.Entry{
		ID:        uuid.NewString(),
		RunID:     runID,
		Index:     pair.Index,
		URL1:      pair.URL1,
		URL2:      pair.URL2,
		Record:    rec,
		CreatedAt: time.Now().UTC(),
	}

	if rec.Success {
		p.logger.Debug("pair compared", "index", pair.Index, "response_time_ms", rec.ResponseTimeMs())
	} else {
		p.logger.Debug("pair failed", "index", pair.Index, "error_kind", rec.ErrorKind, "detail", rec.ErrorDetail)
	}

	if p.config.Metrics {
		metrics.RecordComparison(rec)
	}

	if p.config.Backend != nil {
		// Finished comparisons are saved even if the run is cancelled.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := p.config.Backend.Save(saveCtx, entry); err != nil {
			p.logger.Error("failed to save entry", "index", pair.Index, "error", err)
			if p.config.Metrics {
				metrics.StorageFailures.Inc()
			}
		}
	}

	return entry
}
