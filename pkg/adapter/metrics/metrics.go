// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics registers the Prometheus collectors of the sync
// agent. Each Metrics instance owns a dedicated registry, so test
// suites may instantiate it repeatedly without collector collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scramsync/scramsync/pkg/core/model"
)

// Metrics aggregates the collectors of the sync agent.
type Metrics struct {
	registry *prometheus.Registry

	// Operations counts the audited operations by type and result.
	Operations *prometheus.CounterVec

	// QueueDepth tracks the current admin event queue occupancy.
	QueueDepth prometheus.Gauge

	// QueueDropped counts the events which were dropped because the
	// queue was full.
	QueueDropped prometheus.Counter

	// RetriesScheduled counts the event deliveries which failed
	// transiently and were scheduled for another attempt.
	RetriesScheduled prometheus.Counter

	// TerminalFailures counts the events whose retry budget ran out.
	TerminalFailures prometheus.Counter

	// Reconciliations counts the reconciliation runs by outcome.
	Reconciliations *prometheus.CounterVec

	// BreakerState reports each circuit breaker state as a number
	// (0 closed, 1 half-open, 2 open).
	BreakerState *prometheus.GaugeVec

	// PurgedOperations counts the audit rows removed by retention.
	PurgedOperations prometheus.Counter
}

// New instantiates the collectors over a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scramsync_operations_total",
			Help: "Audited SCRAM operations by type and result.",
		}, []string{"op_type", "result", "error_code"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scramsync_event_queue_depth",
			Help: "Current admin event queue occupancy.",
		}),
		QueueDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "scramsync_event_queue_dropped_total",
			Help: "Admin events dropped due to a full queue.",
		}),
		RetriesScheduled: factory.NewCounter(prometheus.CounterOpts{
			Name: "scramsync_event_retries_scheduled_total",
			Help: "Event deliveries scheduled for a retry attempt.",
		}),
		TerminalFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "scramsync_event_terminal_failures_total",
			Help: "Events which exhausted their retry budget.",
		}),
		Reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scramsync_reconciliations_total",
			Help: "Reconciliation runs by outcome.",
		}, []string{"outcome"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scramsync_breaker_state",
			Help: "Circuit breaker state " +
				"(0 closed, 1 half-open, 2 open).",
		}, []string{"dependency"}),
		PurgedOperations: factory.NewCounter(prometheus.CounterOpts{
			Name: "scramsync_purged_operations_total",
			Help: "Audit operation rows removed by retention purges.",
		}),
	}
}

// ObserveOperation bumps the operations counter for one audit row.
func (m *Metrics) ObserveOperation(op *model.Operation) {
	m.Operations.WithLabelValues(
		string(op.OpType), string(op.Result), op.ErrorCode,
	).Inc()
}

// ObserveReconciliation bumps the reconciliation outcome counter.
func (m *Metrics) ObserveReconciliation(outcome string) {
	m.Reconciliations.WithLabelValues(outcome).Inc()
}

// ObservePurged adds the removed row count of one purge round.
func (m *Metrics) ObservePurged(n int64) {
	m.PurgedOperations.Add(float64(n))
}

// SetQueueDepth records the current event queue occupancy.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// EventDropped counts one event evicted or rejected by a full queue.
func (m *Metrics) EventDropped() {
	m.QueueDropped.Inc()
}

// RetryScheduled counts one event delivery scheduled for a retry.
func (m *Metrics) RetryScheduled() {
	m.RetriesScheduled.Inc()
}

// TerminalFailure counts one event whose retry budget ran out.
func (m *Metrics) TerminalFailure() {
	m.TerminalFailures.Inc()
}

// SetBreakerState maps a breaker state name onto its numeric gauge.
func (m *Metrics) SetBreakerState(dependency, state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	m.BreakerState.WithLabelValues(dependency).Set(v)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry, promhttp.HandlerOpts{},
	)
}
