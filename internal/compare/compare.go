// Package compare runs one differential comparison: both sides of a pair are
// fetched concurrently and the bodies handed to the evaluator for the
// configured kind. Every fault is folded into the returned Record.
package compare

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/FranksOps/synapse/internal/fetcher"
	"github.com/FranksOps/synapse/internal/similarity"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultThreshold = similarity.DefaultThreshold
)

// Config is shared read-only by every comparison of a batch.
type Config struct {
	Kind    Kind          `validate:"required,oneof=image text"`
	Timeout time.Duration `validate:"gte=0"`
	// Threshold is the per-pixel colour tolerance in [0,1]; nil means
	// DefaultThreshold and 0 is exact matching.
	Threshold *float64 `validate:"omitempty,gte=0,lte=1"`
	// IncludeAA counts anti-aliased pixels as differences.
	IncludeAA bool
	// DiffSink, when set, receives the diff visualisation of every image
	// pair that compared successfully with at least one differing pixel.
	DiffSink func(url1, url2 string, mask *image.NRGBA)
}

// WithDefaults fills the zero timeout and an unset threshold.
func (c Config) WithDefaults() Config {
	if c.Kind == "" {
		c.Kind = KindImage
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Threshold == nil {
		t := DefaultThreshold
		c.Threshold = &t
	}
	return c
}

// Validate checks field ranges.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

// Fetcher is the single-resource fetch used for each side of a pair.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts fetcher.Options) *fetcher.Outcome
}

// Comparator compares URL pairs. It is safe for concurrent use.
type Comparator struct {
	config  Config
	fetcher Fetcher
	logger  *slog.Logger
}

// New validates cfg after applying defaults.
func New(cfg Config, f Fetcher, logger *slog.Logger) (*Comparator, error) {
	if f == nil {
		return nil, errors.New("compare: fetcher cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid comparison config: %w", err)
	}

	return &Comparator{config: cfg, fetcher: f, logger: logger}, nil
}

// Config returns the effective configuration.
func (c *Comparator) Config() Config {
	return c.config
}

// Compare fetches url1 and url2 concurrently and evaluates the bodies. It
// always returns a well-formed record; a failure on one side never cancels
// the other.
func (c *Comparator) Compare(ctx context.Context, url1, url2 string) (rec Record) {
	rec = newRecord(c.config.Kind)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("comparison panicked", "url1", url1, "url2", url2, "panic", p)
			rec.fail(ErrComparisonFailed, fmt.Sprint(p))
			rec.ResponseTime = time.Since(start)
		}
	}()

	opts := fetcher.Options{Timeout: c.config.Timeout}
	if c.config.Kind == KindImage {
		opts.ContentTypePrefix = "image/"
	}

	var out1, out2 *fetcher.Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out1 = c.fetchSide(ctx, url1, opts)
	}()
	go func() {
		defer wg.Done()
		out2 = c.fetchSide(ctx, url2, opts)
	}()
	wg.Wait()

	rec.ResponseTime = time.Since(start)
	rec.Status1, rec.Status2 = out1.StatusCode, out2.StatusCode
	rec.Size1, rec.Size2 = len(out1.Body), len(out2.Body)

	for i, o := range []*fetcher.Outcome{out1, out2} {
		if o.BlockedBy != "" {
			c.logger.Warn("fetch blocked by bot protection", "side", fmt.Sprintf("URL%d", i+1), "url1", url1, "url2", url2, "provider", o.BlockedBy, "status", o.StatusCode)
		}
	}

	if !out1.OK || !out2.OK {
		rec.fail(ErrFetchFailed, fmt.Sprintf("URL1: %s, URL2: %s", sideMessage(out1), sideMessage(out2)))
		c.logger.Debug("fetch failed", "url1", url1, "url2", url2, "detail", rec.ErrorDetail)
		return rec
	}

	switch c.config.Kind {
	case KindImage:
		c.evaluateImage(&rec, url1, url2, out1.Body, out2.Body)
	case KindText:
		res := similarity.CompareText(out1.Body, out2.Body)
		rec.Success = true
		rec.Text.ExactMatch = res.ExactMatch
		rec.Text.Similarity = percent(res.Similarity)
	}
	return rec
}

// fetchSide turns a panic inside one fetch into a failed outcome so the
// sibling goroutine and the WaitGroup are unaffected.
func (c *Comparator) fetchSide(ctx context.Context, rawURL string, opts fetcher.Options) (out *fetcher.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = &fetcher.Outcome{Error: fmt.Sprint(p)}
		}
	}()

	out = c.fetcher.Fetch(ctx, rawURL, opts)
	if out == nil {
		out = &fetcher.Outcome{Error: "no outcome"}
	}
	return out
}

func (c *Comparator) evaluateImage(rec *Record, url1, url2 string, b1, b2 []byte) {
	opts := similarity.ImageOptions{
		Threshold: *c.config.Threshold,
		IncludeAA: c.config.IncludeAA,
	}

	var (
		mask *image.NRGBA
		res  similarity.ImageResult
		err  error
	)
	if c.config.DiffSink != nil {
		mask, res, err = similarity.DiffImage(b1, b2, opts)
	} else {
		res, err = similarity.CompareImagesWith(b1, b2, opts)
	}

	var (
		dimErr *similarity.DimensionMismatchError
		decErr *similarity.DecodeError
	)
	switch {
	case err == nil:
		rec.Success = true
	case errors.As(err, &dimErr):
		rec.fail(ErrDimensionMismatch, err.Error())
	case errors.As(err, &decErr):
		rec.fail(ErrDecodeError, err.Error())
		return
	default:
		rec.fail(ErrComparisonFailed, err.Error())
		return
	}

	rec.Image.Dimensions = &Dimensions{
		Width1: res.Width1, Height1: res.Height1,
		Width2: res.Width2, Height2: res.Height2,
	}
	rec.Image.DiffPixels = res.DiffPixels
	rec.Image.Similarity = percent(res.Similarity)

	if mask != nil && res.DiffPixels > 0 {
		c.config.DiffSink(url1, url2, mask)
	}
}

func sideMessage(o *fetcher.Outcome) string {
	if o.OK {
		return "OK"
	}
	return o.Error
}
