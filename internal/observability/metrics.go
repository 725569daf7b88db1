// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains custom Prometheus metrics for CareDesk.
type Metrics struct {
	LoginAttempts    *prometheus.CounterVec
	ProvisioningOps  *prometheus.CounterVec
	ReadinessState   prometheus.Gauge
	MigrationsFailed prometheus.Counter
}

// NewMetrics creates and registers custom CareDesk metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caredesk_login_attempts_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		ProvisioningOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caredesk_provisioning_operations_total",
				Help: "Total number of provisioning operations by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ReadinessState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "caredesk_readiness_state",
				Help: "Startup gate state: 0 waiting for storage, 1 migrating, 2 serving",
			},
		),
		MigrationsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caredesk_migration_failures_total",
				Help: "Total number of failed migration runs",
			},
		),
	}

	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.ProvisioningOps)
	reg.MustRegister(m.ReadinessState)
	reg.MustRegister(m.MigrationsFailed)

	return m
}

// RecordLoginAttempt increments the login attempt counter for an outcome.
func (m *Metrics) RecordLoginAttempt(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordProvisioningOp increments the provisioning counter.
// kind is "database" or "extension"; outcome is "created", "exists", or "failed".
func (m *Metrics) RecordProvisioningOp(kind, outcome string) {
	m.ProvisioningOps.WithLabelValues(kind, outcome).Inc()
}

// RecordReadinessState sets the readiness gauge to the gate's numeric state.
func (m *Metrics) RecordReadinessState(state int) {
	m.ReadinessState.Set(float64(state))
}

// RecordMigrationFailure increments the migration failure counter.
func (m *Metrics) RecordMigrationFailure() {
	m.MigrationsFailed.Inc()
}
