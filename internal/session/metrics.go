// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authsync Contributors

package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for the synchronizer.
type Metrics struct {
	EventsApplied       *prometheus.CounterVec
	ActionFailures      *prometheus.CounterVec
	ProfileLoadsSkipped prometheus.Counter
	ProfileResultsStale prometheus.Counter
}

// NewMetrics creates and registers synchronizer metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsync_events_applied_total",
				Help: "Total number of auth events applied by type",
			},
			[]string{"type"},
		),
		ActionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authsync_action_failures_total",
				Help: "Total number of failed credential actions by action",
			},
			[]string{"action"},
		),
		ProfileLoadsSkipped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authsync_profile_loads_skipped_total",
				Help: "Total number of profile loads skipped because a fetch for the same user was already in flight",
			},
		),
		ProfileResultsStale: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authsync_profile_results_stale_total",
				Help: "Total number of profile load results discarded because the identity changed while the fetch was in flight",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.EventsApplied)
		reg.MustRegister(m.ActionFailures)
		reg.MustRegister(m.ProfileLoadsSkipped)
		reg.MustRegister(m.ProfileResultsStale)
	}

	return m
}
