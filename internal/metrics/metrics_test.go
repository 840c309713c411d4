package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/synapse/internal/compare"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(18888)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	sim := 97.5
	RecordComparison(compare.Record{
		Kind:         compare.KindImage,
		Success:      true,
		ResponseTime: 1 * time.Second,
		Size1:        11,
		Size2:        9,
		Image:        &compare.ImagePayload{DiffPixels: 3, Similarity: &sim},
	})
	RecordComparison(compare.Record{
		Kind:      compare.KindText,
		ErrorKind: compare.ErrFetchFailed,
		Text:      &compare.TextPayload{},
	})

	resp, err := http.Get("http://localhost:18888/metrics")
	if err != nil {
		t.Fatalf("failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}

	output := string(body)

	for _, want := range []string{
		`synapse_comparisons_total{kind="image",outcome="success"} 1`,
		`synapse_comparisons_total{kind="text",outcome="FetchFailed"} 1`,
		`synapse_comparison_duration_seconds_bucket`,
		`synapse_fetched_bytes_total{kind="image"} 20`,
		`synapse_similarity_percent_count{kind="image"} 1`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in metrics output", want)
		}
	}

	if strings.Contains(output, `synapse_similarity_percent_count{kind="text"}`) {
		t.Errorf("failed comparisons must not feed the similarity histogram")
	}
}

func TestServerStop_Nil(t *testing.T) {
	var s *Server
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("expected nil error stopping nil server, got %v", err)
	}
}
