// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	metrics "github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the settlement core's operational metrics
type Metrics struct {
	metricsInstance metrics.Metrics
	labeled         *prometheus.Registry

	// Settlement metrics
	SubmissionsAccepted metrics.Counter
	SubmissionsRejected *prometheus.CounterVec
	PayoutsTotal        prometheus.Counter
	PayoutVolume        prometheus.Counter

	// Gate metrics
	FraudBlocked     *prometheus.CounterVec
	NullifierReplays metrics.Counter
	ProofsRejected   metrics.Counter

	// Performance metrics
	SettleDuration metrics.Histogram
}

// New creates a metrics instance using luxfi/metric. Labeled counters
// go on a side registry; both registries gather into one export.
func New() (*Metrics, error) {
	factory := metrics.NewPrometheusFactory()
	metricsInstance := factory.New("attrib")

	m := &Metrics{
		metricsInstance: metricsInstance,
		labeled:         prometheus.NewRegistry(),
	}

	m.SubmissionsAccepted = metricsInstance.NewCounter(
		"settlement_accepted_total",
		"Total number of conversions accepted and paid",
	)
	m.NullifierReplays = metricsInstance.NewCounter(
		"nullifier_replays_total",
		"Total number of replayed nullifiers rejected",
	)
	m.ProofsRejected = metricsInstance.NewCounter(
		"admission_proofs_rejected_total",
		"Total number of proofs rejected at admission",
	)
	m.SettleDuration = metricsInstance.NewHistogram(
		"settlement_duration_seconds",
		"Time to settle one conversion submission",
		prometheus.DefBuckets,
	)

	m.SubmissionsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attrib_settlement_rejected_total",
		Help: "Total number of conversions rejected by reason",
	}, []string{"reason"})
	m.FraudBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attrib_fraud_blocked_total",
		Help: "Total number of conversions blocked by the fraud gate, by cause",
	}, []string{"cause"})
	m.PayoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attrib_treasury_payouts_total",
		Help: "Total number of publisher payouts",
	})
	m.PayoutVolume = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attrib_treasury_payout_volume",
		Help: "Total amount paid out to publishers",
	})
	m.labeled.MustRegister(m.SubmissionsRejected, m.FraudBlocked, m.PayoutsTotal, m.PayoutVolume)

	return m, nil
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	gatherers := prometheus.Gatherers{m.labeled}
	if registry := m.metricsInstance.Registry(); registry != nil {
		gatherers = append(gatherers, registry)
	}
	return gatherers
}
