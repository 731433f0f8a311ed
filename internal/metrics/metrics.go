// Package metrics exposes Prometheus collectors for the scraping core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScrapesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscrape_scrapes_total",
			Help: "Scrapes executed against the platform, by query kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feedscrape_scrape_duration_seconds",
			Help:    "Duration of scrapes in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"kind"},
	)

	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscrape_records_extracted_total",
			Help: "Records returned by scrapes",
		},
		[]string{"kind"},
	)

	ExtractionDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feedscrape_extraction_degraded_total",
			Help: "Extraction passes that skipped containers or missed fields",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscrape_cache_lookups_total",
			Help: "Cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	GateWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feedscrape_gate_wait_seconds",
			Help:    "Time spent waiting for the request gate",
			Buckets: []float64{0.01, 0.1, 1, 5, 15, 30, 60, 120},
		},
	)

	SessionLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscrape_session_launches_total",
			Help: "Browser session launches by result",
		},
		[]string{"result"},
	)

	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedscrape_auth_attempts_total",
			Help: "Login attempts by final state and reason",
		},
		[]string{"result", "reason"},
	)
)

// ObserveScrape records one finished scrape.
func ObserveScrape(kind, outcome string, records int, elapsed time.Duration) {
	ScrapesTotal.WithLabelValues(kind, outcome).Inc()
	ScrapeDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if records > 0 {
		RecordsExtracted.WithLabelValues(kind).Add(float64(records))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
