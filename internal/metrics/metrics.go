package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ForwardRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdesk_forward_requests_total",
			Help: "Total requests relayed by the proxy forwarders",
		},
		[]string{"service", "status"},
	)

	ForwardDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serpdesk_forward_duration_seconds",
			Help:    "Duration of forwarded downstream calls in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service"},
	)

	DownstreamErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdesk_downstream_errors_total",
			Help: "Non-success responses and transport failures from wrapped services",
		},
		[]string{"service", "kind"},
	)

	PollTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdesk_poll_ticks_total",
			Help: "Status poll ticks issued per task outcome",
		},
		[]string{"outcome"},
	)

	PagesScrapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdesk_pages_scraped_total",
			Help: "Pages fetched during SERP enrichment",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serpdesk_http_requests_total",
			Help: "API requests handled, labelled by method and status",
		},
		[]string{"method", "status"},
	)

	ScrapeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serpdesk_scrape_duration_seconds",
			Help:    "End-to-end duration of a SERP scrape run in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

// RecordForward updates the forwarder metrics for one relayed call.
func RecordForward(service string, status int, duration time.Duration) {
	ForwardRequestsTotal.WithLabelValues(service, strconv.Itoa(status)).Inc()
	ForwardDuration.WithLabelValues(service).Observe(duration.Seconds())
}

// Server encapsulates an HTTP server exposing /metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
