// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors for teamcast.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	apiCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamcast",
			Name:      "provider_api_calls_total",
			Help:      "Upstream provider API calls by provider and operation",
		},
		[]string{"provider", "operation"},
	)

	programsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamcast",
			Name:      "programs_generated_total",
			Help:      "EPG programs emitted by kind (game, pregame, postgame, idle, offseason)",
		},
		[]string{"kind"},
	)

	generationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "teamcast",
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of full EPG generation runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	streamsMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamcast",
			Name:      "streams_matched_total",
			Help:      "Stream matching outcomes by tier (1-4, single_event, cache, miss)",
		},
		[]string{"tier"},
	)

	lifecycleOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "teamcast",
			Name:      "lifecycle_channel_ops_total",
			Help:      "Managed channel operations by kind (create, update, delete, reactivate)",
		},
		[]string{"op"},
	)
)

// APICall records one upstream provider call.
func APICall(provider, operation string) {
	apiCalls.WithLabelValues(provider, operation).Inc()
}

// ProgramGenerated records one emitted program of the given kind.
func ProgramGenerated(kind string) {
	programsGenerated.WithLabelValues(kind).Inc()
}

// GenerationObserved records a completed generation run duration in seconds.
func GenerationObserved(seconds float64) {
	generationDuration.Observe(seconds)
}

// StreamMatched records a stream matching outcome.
func StreamMatched(tier string) {
	streamsMatched.WithLabelValues(tier).Inc()
}

// LifecycleOp records a managed channel operation.
func LifecycleOp(op string) {
	lifecycleOps.WithLabelValues(op).Inc()
}
