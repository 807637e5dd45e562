package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestMetricsServer(t *testing.T) {
	srv := Start(8898)
	// Give it a tiny bit of time to start up
	time.Sleep(100 * time.Millisecond)

	defer srv.Stop(context.Background())

	RecordForward("indexer", 200, 250*time.Millisecond)
	PollTicksTotal.WithLabelValues("pending").Inc()
	PagesScrapedTotal.WithLabelValues("ok").Inc()

	resp, err := http.Get("http://localhost:8898/metrics")
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

	if !strings.Contains(output, `serpdesk_forward_requests_total{service="indexer",status="200"}`) {
		t.Errorf("expected serpdesk_forward_requests_total for indexer")
	}
	if !strings.Contains(output, "serpdesk_forward_duration_seconds_bucket") {
		t.Errorf("expected serpdesk_forward_duration_seconds metric")
	}
	if !strings.Contains(output, `serpdesk_poll_ticks_total{outcome="pending"}`) {
		t.Errorf("expected serpdesk_poll_ticks_total metric")
	}
	if !strings.Contains(output, `serpdesk_pages_scraped_total{outcome="ok"}`) {
		t.Errorf("expected serpdesk_pages_scraped_total metric")
	}
}
