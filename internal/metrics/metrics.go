// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerClassifierScore     prometheus.Histogram
	crawlerEscalationsTotal    *prometheus.CounterVec
	crawlerItemsTotal          *prometheus.CounterVec
	crawlerActiveCoordinators  prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of page fetches, labeled by site, tier and outcome.",
			},
			[]string{"site", "tier", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of content bytes fetched, labeled by tier.",
			},
			[]string{"tier"},
		)

		crawlerClassifierScore = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_classifier_score",
				Help:    "Distribution of SPA classifier scores.",
				Buckets: prometheus.LinearBuckets(0, 1, 20),
			},
		)

		crawlerEscalationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_escalations_total",
				Help: "Total number of static fetches promoted to a browser render, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_queue_items_total",
				Help: "Total number of backlog items processed, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerActiveCoordinators = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_coordinators",
				Help: "Number of coordinators currently draining a backlog.",
			},
		)

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
	})
}

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
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt for the given tier.
func ObserveFetch(site, tier, outcome string, bytesFetched int) {
	Init()
	crawlerPagesTotal.WithLabelValues(SanitizeSite(site), tier, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(tier).Add(float64(bytesFetched))
	}
}

// ObserveScore records a classifier score.
func ObserveScore(score int) {
	Init()
	crawlerClassifierScore.Observe(float64(score))
}

// ObserveEscalation increments the escalation counter for site.
func ObserveEscalation(site string) {
	Init()
	crawlerEscalationsTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveItem increments the backlog item counter for the given status.
func ObserveItem(status string) {
	Init()
	crawlerItemsTotal.WithLabelValues(status).Inc()
}

// IncActiveCoordinators increments the active coordinators gauge.
func IncActiveCoordinators() {
	Init()
	crawlerActiveCoordinators.Inc()
}

// DecActiveCoordinators decrements the active coordinators gauge.
func DecActiveCoordinators() {
	Init()
	crawlerActiveCoordinators.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
