// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlconsole_pages_total",
			Help: "Total pages fetched, labeled by site and outcome status.",
		},
		[]string{"site", "status"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlconsole_jobs_total",
			Help: "Total jobs run, labeled by mode and terminal status.",
		},
		[]string{"mode", "status"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawlconsole_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies, labeled by site.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"site"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crawlconsole_active_workers",
			Help: "Number of workers currently fetching a page.",
		},
	)

	politenessWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawlconsole_politeness_wait_seconds",
			Help:    "Histogram of per-origin politeness wait durations.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"site"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawlconsole_http_requests_total",
			Help: "Total API requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)
)

// SanitizeSite extracts a lowercase hostname from a URL, "unknown" on failure.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns the http.Handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one fetch outcome.
func ObservePage(site, status string, elapsed time.Duration) {
	sanitized := SanitizeSite(site)
	pagesTotal.WithLabelValues(sanitized, status).Inc()
	fetchDurationSeconds.WithLabelValues(sanitized).Observe(elapsed.Seconds())
}

// ObserveJob records one job reaching a terminal status.
func ObserveJob(mode, status string) {
	jobsTotal.WithLabelValues(mode, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() { activeWorkers.Inc() }

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() { activeWorkers.Dec() }

// ObservePolitenessWait records how long a fetch waited on the origin budget.
func ObservePolitenessWait(site string, waited time.Duration) {
	politenessWaitSeconds.WithLabelValues(SanitizeSite(site)).Observe(waited.Seconds())
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method string, code int) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
