package main

import (
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/FranksOps/synapse/internal/compare"
	"github.com/FranksOps/synapse/internal/fetcher"
	"github.com/FranksOps/synapse/internal/fingerprint"
	"github.com/FranksOps/synapse/internal/metrics"
	"github.com/FranksOps/synapse/internal/pipeline"
	"github.com/FranksOps/synapse/internal/report"
	"github.com/FranksOps/synapse/internal/storage"
	"github.com/FranksOps/synapse/internal/storage/registry"
	"github.com/FranksOps/synapse/pkg/proxy"
	"github.com/FranksOps/synapse/pkg/ratelimit"
	"github.com/FranksOps/synapse/pkg/useragent"
)

// runFlags are the transport, pacing and sink settings shared by every
// command that runs a batch.
type runFlags struct {
	output      string
	concurrency int
	rps         float64
	jitter      float64
	fingerprint string
	userAgents  string
	insecure    bool
	proxies     string
	maxBody     int64
	storage     string
	dsn         string
	metricsPort int
	diffDir     string
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.output, "output", "o", "./output", "Output directory")
	fs.IntVarP(&f.concurrency, "concurrency", "c", 1, "Pairs compared at once")
	fs.Float64Var(&f.rps, "rps", 0, "Maximum pair dispatches per second (0 = unlimited)")
	fs.Float64Var(&f.jitter, "jitter", 0, "Random extra delay between dispatches, as a fraction of the interval")
	fs.StringVar(&f.fingerprint, "fingerprint", string(fingerprint.ProfileGo), "TLS fingerprint profile (go, chrome, firefox, safari, random)")
	fs.StringVar(&f.userAgents, "user-agents", "", "Comma or newline separated User-Agent rotation list")
	fs.BoolVar(&f.insecure, "insecure", false, "Skip TLS certificate verification")
	fs.StringVar(&f.proxies, "proxies", "", "File of egress proxy URLs, one per line, rotated per fetch")
	fs.Int64Var(&f.maxBody, "max-body-bytes", 0, "Fail fetches whose body exceeds this many bytes (0 = unlimited)")
	fs.StringVar(&f.storage, "storage", registry.None, "Result archive backend (none, csv, ndjson, sqlite, postgres)")
	fs.StringVar(&f.dsn, "dsn", "", "Archive path, or connection string for postgres")
	fs.IntVar(&f.metricsPort, "metrics-port", 0, "Expose Prometheus metrics on this port (0 = disabled)")
	fs.StringVar(&f.diffDir, "diff-dir", "", "Write a diff PNG for every image pair with differing pixels into this directory")
}

// batchRunner bundles a pipeline with the resources it holds open.
type batchRunner struct {
	*pipeline.Pipeline
	backend storage.Backend
	metrics *metrics.Server
}

func (r *batchRunner) Close(ctx context.Context) {
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			slog.Error("failed to close archive", "error", err)
		}
	}
	if err := r.metrics.Stop(ctx); err != nil {
		slog.Error("failed to stop metrics server", "error", err)
	}
}

// newRunner wires the fetcher, comparator, archive and metrics for one batch.
func (f *runFlags) newRunner(ctx context.Context, cfg compare.Config, logger *slog.Logger) (*batchRunner, error) {
	profile, err := fingerprint.ParseProfile(f.fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if f.proxies != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(f.proxies); err != nil {
			return nil, err
		}
		logger.Info("routing fetches through proxies", "count", proxies.Len())
	}

	fetch, err := fetcher.New(fetcher.Config{
		UAPool:             useragent.NewPool(useragent.ParseList(f.userAgents)...),
		Fingerprint:        profile,
		InsecureSkipVerify: f.insecure,
		MaxBodyBytes:       f.maxBody,
		Proxies:            proxies,
	})
	if err != nil {
		return nil, err
	}

	if f.diffDir != "" && cfg.Kind == compare.KindImage {
		if err := os.MkdirAll(f.diffDir, 0o755); err != nil {
			return nil, fmt.Errorf("create diff dir: %w", err)
		}
		cfg.DiffSink = diffWriter(f.diffDir, logger)
	}

	comparator, err := compare.New(cfg, fetch, logger)
	if err != nil {
		return nil, err
	}

	backend, err := registry.Open(ctx, f.storage, f.dsn)
	if err != nil {
		return nil, err
	}

	r := &batchRunner{backend: backend}
	if f.metricsPort > 0 {
		r.metrics = metrics.Start(f.metricsPort)
		logger.Info("metrics server started", "port", f.metricsPort)
	}

	var limiter *ratelimit.Limiter
	if f.rps > 0 {
		limiter = ratelimit.NewLimiter(f.rps, f.jitter)
	}

	r.Pipeline, err = pipeline.New(pipeline.Config{
		Comparer:    comparator,
		Kind:        comparator.Config().Kind,
		Concurrency: f.concurrency,
		Limiter:     limiter,
		Backend:     backend,
		Metrics:     f.metricsPort > 0,
		Progress:    logProgress(logger),
		Logger:      logger,
	})
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	return r, nil
}

// diffWriter saves masks as diff-<hash of the pair>.png so reruns of the same
// pair overwrite their previous mask.
func diffWriter(dir string, logger *slog.Logger) func(url1, url2 string, mask *image.NRGBA) {
	return func(url1, url2 string, mask *image.NRGBA) {
		h := fnv.New64a()
		h.Write([]byte(url1))
		h.Write([]byte{0})
		h.Write([]byte(url2))
		path := filepath.Join(dir, fmt.Sprintf("diff-%016x.png", h.Sum64()))

		if err := writeFile(path, func(w io.Writer) error { return png.Encode(w, mask) }); err != nil {
			logger.Error("failed to write diff image", "url1", url1, "url2", url2, "error", err)
			return
		}
		logger.Debug("diff image written", "url1", url1, "url2", url2, "path", path)
	}
}

// logProgress logs roughly every tenth of a batch.
func logProgress(logger *slog.Logger) pipeline.Progress {
	return func(done, total int, _ *storage.Entry) {
		step := max(total/10, 1)
		if done%step == 0 || done == total {
			logger.Info("progress", "done", done, "total", total)
		}
	}
}

// writeFile creates path and streams write into it.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// writeBatchReports writes the row report and the summary renderings of
// batch into dir and returns the summary.
func writeBatchReports(dir string, namer report.Namer, batch *pipeline.Batch) (report.Summary, []string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report.Summary{}, nil, fmt.Errorf("create output dir: %w", err)
	}

	summary := report.Summarize(batch.Kind, batch.Entries)
	prefix := string(batch.Kind) + "-comparison"

	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{namer.Path(dir, prefix, "csv"), func(w io.Writer) error { return report.WriteRows(w, batch.Kind, batch.Entries) }},
		{namer.Path(dir, "summary", "json"), func(w io.Writer) error { return report.WriteJSON(w, summary) }},
		{namer.Path(dir, "summary", "txt"), func(w io.Writer) error { return report.WriteText(w, summary) }},
		{namer.Path(dir, "summary", "html"), func(w io.Writer) error { return report.WriteHTML(w, summary) }},
	}

	paths := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if err := writeFile(o.path, o.write); err != nil {
			return summary, paths, err
		}
		paths = append(paths, o.path)
	}
	return summary, paths, nil
}

func relPaths(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if rel, err := filepath.Rel(dir, p); err == nil {
			out[i] = rel
		} else {
			out[i] = p
		}
	}
	return out
}
