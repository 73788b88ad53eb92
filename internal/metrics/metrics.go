// Package metrics exposes Prometheus collectors for the bookmarks service.
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
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	bookmarkOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmark_operations_total",
			Help: "Total number of bookmark operations, labeled by operation and result.",
		},
		[]string{"operation", "result"},
	)

	enrichmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmark_enrichment_total",
			Help: "Total number of metadata enrichment attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookmark_fetch_duration_seconds",
			Help:    "Histogram of page fetch latencies, labeled by fetcher and result.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"fetcher", "result"},
	)

	fetchedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookmark_fetched_bytes_total",
			Help: "Total number of page bytes fetched, labeled by site.",
		},
		[]string{"site"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookmark_fetch_rate_limit_delay_seconds",
			Help:    "Time spent waiting for a per-site fetch token.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"site"},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveOperation counts a bookmark operation outcome.
func ObserveOperation(operation, result string) {
	bookmarkOperationsTotal.WithLabelValues(operation, result).Inc()
}

// ObserveEnrichment counts an enrichment outcome
// (fetched, fetch_failed, cache_hit, disabled).
func ObserveEnrichment(outcome string) {
	enrichmentTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(fetcher, site string, ok bool, bytesFetched int, duration time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	fetchDurationSeconds.WithLabelValues(fetcher, result).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchedBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveRateLimitDelay records how long a fetch waited for its site's token.
func ObserveRateLimitDelay(site string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}
