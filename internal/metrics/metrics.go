package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics ───────────────────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledwatcher",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledwatcher",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// ── Sampling pass metrics ──────────────────────────────────────────────

var (
	PassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledwatcher",
		Subsystem: "sampler",
		Name:      "pass_total",
		Help:      "Total number of sampling passes by outcome.",
	}, []string{"status"})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ledwatcher",
		Subsystem: "sampler",
		Name:      "pass_duration_seconds",
		Help:      "Duration of a full sampling pass in seconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	AddressSampleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledwatcher",
		Subsystem: "sampler",
		Name:      "address_sample_total",
		Help:      "Per-address snapshot attempts by outcome.",
	}, []string{"status"})

	FaucetGrantTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledwatcher",
		Subsystem: "faucet",
		Name:      "grant_total",
		Help:      "Faucet grant requests by outcome.",
	}, []string{"status"})
)
