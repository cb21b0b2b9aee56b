// Package metrics provides Prometheus metrics collectors for the chat gateway.
//
// Purpose:
//
//	This package defines and exports Prometheus metrics for session
//	lifecycle operations, identity resolution and Edge Gate decisions.
//	Metrics are registered globally and exposed via the /metrics endpoint.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Key Responsibilities:
//   - Define metric collectors (counters)
//   - Register metrics with the default Prometheus registry
//   - Provide helper functions to record metric values
//
// Usage:
//
//	Metrics are automatically registered when the package is imported.
//	Use the exported functions to record metric values:
//	  metrics.RecordSignInStart()
//	  metrics.RecordCallback("success")
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "chat_gateway"
	subsystem = "auth"
)

var (
	// SignInsTotal counts sign-in initiations.
	SignInsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sign_ins_total",
			Help:      "Total number of sign-in initiations",
		},
	)

	// CallbacksTotal counts OAuth callback completions by result.
	CallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "callbacks_total",
			Help:      "Total number of OAuth callback completions by result",
		},
		[]string{"result"}, // result: success, failure, network_failure
	)

	// SessionsCreatedTotal counts session cookies minted, by kind.
	SessionsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_created_total",
			Help:      "Total number of session cookies created by kind",
		},
		[]string{"kind"}, // kind: provider, virtual
	)

	// SessionsClearedTotal counts session cookie deletions, by kind.
	SessionsClearedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_cleared_total",
			Help:      "Total number of session cookies cleared by kind",
		},
		[]string{"kind"}, // kind: provider, virtual, expired_virtual
	)

	// ResolutionsTotal counts identity resolution passes by winning tier.
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resolutions_total",
			Help:      "Total number of identity resolution passes by tier",
		},
		[]string{"tier"}, // tier: mock, virtual, provider, none
	)

	// GateDecisionsTotal counts Edge Gate admission decisions.
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total number of Edge Gate admission decisions",
		},
		[]string{"decision"}, // decision: pass, unauthorized, redirect
	)

	// ProviderFailuresTotal counts caught provider call failures by operation.
	ProviderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "provider_failures_total",
			Help:      "Total number of caught identity provider call failures by operation",
		},
		[]string{"operation"}, // operation: start_sign_in, complete_callback, get_context, start_sign_out
	)
)

// RecordSignInStart records a sign-in initiation.
func RecordSignInStart() {
	SignInsTotal.Inc()
}

// RecordCallback records an OAuth callback completion.
func RecordCallback(result string) {
	CallbacksTotal.WithLabelValues(result).Inc()
}

// RecordSessionCreated records a minted session cookie.
func RecordSessionCreated(kind string) {
	SessionsCreatedTotal.WithLabelValues(kind).Inc()
}

// RecordSessionCleared records a cleared session cookie.
func RecordSessionCleared(kind string) {
	SessionsClearedTotal.WithLabelValues(kind).Inc()
}

// RecordResolution records an identity resolution pass.
func RecordResolution(tier string) {
	ResolutionsTotal.WithLabelValues(tier).Inc()
}

// RecordGateDecision records an Edge Gate admission decision.
func RecordGateDecision(decision string) {
	GateDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordProviderFailure records a caught provider call failure.
func RecordProviderFailure(operation string) {
	ProviderFailuresTotal.WithLabelValues(operation).Inc()
}
