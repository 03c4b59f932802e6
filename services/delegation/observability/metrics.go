// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the delegation
// service.
//
// # Description
//
// Metrics cover the dispatch path (delegation counts by pair and status,
// duration histograms, active delegation gauge), the safety layer
// (guardrail rejections by violation kind), and graph mirror health
// (failed best-effort writes). They are exposed on the /metrics endpoint
// for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// The package-level record helpers are no-ops until InitMetrics has run,
// so unit tests exercise the dispatch path without touching the default
// registry.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "aleutian"

// Subsystem for delegation metrics.
const delegationSubsystem = "delegation"

// =============================================================================
// Metric Definitions
// =============================================================================

// DelegationMetrics holds all Prometheus metrics for delegation dispatch.
type DelegationMetrics struct {
	// DelegationsTotal counts completed delegations.
	// Labels: from_agent, to_agent, status (success, failed, timeout)
	DelegationsTotal *prometheus.CounterVec

	// DelegationDurationSeconds measures agent execution duration.
	// Labels: to_agent, status
	DelegationDurationSeconds *prometheus.HistogramVec

	// RejectionsTotal counts guardrail and dispatch rejections.
	// Labels: kind (depth_violation, circular_violation, ...)
	RejectionsTotal *prometheus.CounterVec

	// ActiveDelegations tracks delegations currently in flight.
	ActiveDelegations prometheus.Gauge

	// GraphWriteFailures counts best-effort graph mirror writes that
	// failed. Labels: operation (record, finalize)
	GraphWriteFailures *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, initialized by InitMetrics.
var DefaultMetrics *DelegationMetrics

// InitMetrics creates and registers all delegation metrics.
//
// # Description
//
// Call once at application startup. Calling twice panics on duplicate
// registration, matching promauto semantics.
func InitMetrics() *DelegationMetrics {
	DefaultMetrics = &DelegationMetrics{
		DelegationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delegationSubsystem,
				Name:      "delegations_total",
				Help:      "Completed delegations by agent pair and terminal status",
			},
			[]string{"from_agent", "to_agent", "status"},
		),

		DelegationDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: delegationSubsystem,
				Name:      "duration_seconds",
				Help:      "Delegated agent execution duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"to_agent", "status"},
		),

		RejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delegationSubsystem,
				Name:      "rejections_total",
				Help:      "Delegations rejected before dispatch, by violation kind",
			},
			[]string{"kind"},
		),

		ActiveDelegations: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: delegationSubsystem,
				Name:      "active_delegations",
				Help:      "Delegations currently in flight",
			},
		),

		GraphWriteFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: delegationSubsystem,
				Name:      "graph_write_failures_total",
				Help:      "Best-effort graph mirror writes that failed, by operation",
			},
			[]string{"operation"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Record Helpers
// =============================================================================

// RecordDelegation records one completed delegation.
func RecordDelegation(from, to, status string, durationMS int64) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.DelegationsTotal.WithLabelValues(from, to, status).Inc()
	DefaultMetrics.DelegationDurationSeconds.WithLabelValues(to, status).
		Observe(float64(durationMS) / 1000.0)
}

// RecordRejection records a guardrail or dispatch rejection.
func RecordRejection(kind string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.RejectionsTotal.WithLabelValues(kind).Inc()
}

// DelegationStarted increments the in-flight gauge.
func DelegationStarted() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ActiveDelegations.Inc()
}

// DelegationEnded decrements the in-flight gauge.
func DelegationEnded() {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.ActiveDelegations.Dec()
}

// RecordGraphWriteFailure records a failed graph mirror write.
func RecordGraphWriteFailure(operation string) {
	if DefaultMetrics == nil {
		return
	}
	DefaultMetrics.GraphWriteFailures.WithLabelValues(operation).Inc()
}
