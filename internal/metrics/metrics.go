package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FranksOps/synapse/internal/compare"
)

var (
	ComparisonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_comparisons_total",
			Help: "Total number of pair comparisons by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ComparisonDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synapse_comparison_duration_seconds",
			Help:    "Wall-clock time to fetch both sides of a pair in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	FetchedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "synapse_fetched_bytes_total",
			Help: "Total bytes downloaded across both sides of all pairs",
		},
		[]string{"kind"},
	)

	SimilarityPercent = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "synapse_similarity_percent",
			Help:    "Similarity of successfully compared pairs",
			Buckets: []float64{50, 80, 90, 95, 99, 99.9, 100},
		},
		[]string{"kind"},
	)

	StorageFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synapse_storage_failures_total",
			Help: "Total number of entries that could not be persisted",
		},
	)
)

// RecordComparison updates the metrics for one comparison record.
func RecordComparison(rec compare.Record) {
	kind := string(rec.Kind)

	outcome := "success"
	if !rec.Success {
		outcome = string(rec.ErrorKind)
	}

	ComparisonsTotal.WithLabelValues(kind, outcome).Inc()
	ComparisonDuration.WithLabelValues(kind).Observe(rec.ResponseTime.Seconds())
	FetchedBytesTotal.WithLabelValues(kind).Add(float64(rec.Size1 + rec.Size2))

	if sim, ok := rec.Similarity(); ok && rec.Success {
		SimilarityPercent.WithLabelValues(kind).Observe(sim)
	}
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
