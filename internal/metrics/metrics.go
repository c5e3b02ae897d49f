// Package metrics exposes Prometheus collectors for discovery, lookup, and delivery.
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

// Delivery outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDryRun  = "dry_run"
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	discoveredCompaniesTotal   *prometheus.CounterVec
	sourceFailuresTotal        *prometheus.CounterVec
	lookupRequestsTotal        *prometheus.CounterVec
	lookupDurationSeconds      prometheus.Histogram
	contactsPersistedTotal     *prometheus.CounterVec
	deliveriesTotal            *prometheus.CounterVec
	sendRunsTotal              *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		discoveredCompaniesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_discovered_companies_total",
				Help: "Companies emitted by discovery sources before deduplication, labeled by source.",
			},
			[]string{"source"},
		)

		sourceFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_source_failures_total",
				Help: "Discovery source invocations that failed, labeled by source.",
			},
			[]string{"source"},
		)

		lookupRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_lookup_requests_total",
				Help: "Contact lookup API calls, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		lookupDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prospector_lookup_duration_seconds",
				Help:    "Latency of contact lookup API calls.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		contactsPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_contacts_persisted_total",
				Help: "Newly inserted contacts, labeled by priority.",
			},
			[]string{"priority"},
		)

		deliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_deliveries_total",
				Help: "Outbound message attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sendRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "prospector_send_runs_total",
				Help: "Send-queue runs, labeled by final state.",
			},
			[]string{"state"},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "prospector_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit and pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"scope"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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

// ObserveDiscovered adds n discovered companies for source.
func ObserveDiscovered(source string, n int) {
	Init()
	if n > 0 {
		discoveredCompaniesTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveSourceFailure counts a failed source invocation.
func ObserveSourceFailure(source string) {
	Init()
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// ObserveLookup records a lookup call and its latency.
func ObserveLookup(outcome string, duration time.Duration) {
	Init()
	lookupRequestsTotal.WithLabelValues(outcome).Inc()
	lookupDurationSeconds.Observe(duration.Seconds())
}

// ObserveContactPersisted counts a newly inserted contact.
func ObserveContactPersisted(priority string) {
	Init()
	contactsPersistedTotal.WithLabelValues(priority).Inc()
}

// ObserveDelivery counts a delivery attempt by outcome.
func ObserveDelivery(outcome string) {
	Init()
	deliveriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSendRun counts a finished send-queue run.
func ObserveSendRun(state string) {
	Init()
	sendRunsTotal.WithLabelValues(state).Inc()
}

// ObserveHTTPRequest records an HTTP request served by the status server.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit or pacing wait.
func ObserveRateLimitDelay(scope string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(scope).Observe(duration.Seconds())
}
