// Package metrics exposes the server's Prometheus instrumentation.
//
// A dedicated registry keeps the scrape surface limited to what this service
// defines, without the default Go runtime collectors' noise.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var (
	// EvaluationsTotal counts completed evaluation requests by outcome
	// ("ok" | "error").
	EvaluationsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigmaqc",
		Name:      "evaluations_total",
		Help:      "Completed evaluation requests by outcome.",
	}, []string{"outcome"})

	// RuleHitsTotal counts detected rule violations by rule code.
	RuleHitsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigmaqc",
		Name:      "rule_hits_total",
		Help:      "Detected Westgard rule violations by rule code.",
	}, []string{"rule"})

	// EvaluationDuration observes the wall time of one engine pass.
	EvaluationDuration = promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: "sigmaqc",
		Name:      "evaluation_duration_seconds",
		Help:      "Wall time of one rule-engine evaluation.",
		Buckets:   prometheus.ExponentialBuckets(100e-6, 4, 8),
	})

	// LiveAnalytes tracks the number of analytes with a live evaluation in
	// the store.
	LiveAnalytes = promauto.With(registry).NewGauge(prometheus.GaugeOpts{
		Namespace: "sigmaqc",
		Name:      "live_analytes",
		Help:      "Analytes with a non-stale evaluation in the store.",
	})

	// HTTPRequestsTotal counts REST requests by method and status code.
	HTTPRequestsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "sigmaqc",
		Name:      "http_requests_total",
		Help:      "REST API requests by method and status code.",
	}, []string{"method", "code"})
)

// Handler returns the HTTP handler serving the registry in Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
