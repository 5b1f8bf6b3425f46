// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package analytics accumulates per-campaign conversion metrics. Reads
// on privacy-enabled campaigns pass through calibrated Laplace noise
// drawn from a cryptographic source, metered by a per-campaign privacy
// budget; ratios always derive from the raw stored values.
package analytics

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

var ErrPrivacyBudgetExhausted = errors.New("privacy budget exhausted")

// Metrics is a campaign's conversion record
type Metrics struct {
	CampaignID      uint64    `json:"campaign_id"`
	Conversions     uint64    `json:"conversions"`
	TotalSpend      uint64    `json:"total_spend"`
	LastConversion  time.Time `json:"last_conversion"`
	PrivacyEnabled  bool      `json:"privacy_enabled"`
}

// Config tunes the differential privacy mechanism
type Config struct {
	// Epsilon is the privacy cost charged per noised read
	Epsilon float64
	// EpsilonBudget is the total privacy budget per campaign; reads
	// beyond it are refused rather than served with weaker noise
	EpsilonBudget float64
	// SpendSensitivity is the largest fee one conversion can add to
	// total spend, used to calibrate the spend counter's noise
	SpendSensitivity uint64
}

// DefaultConfig returns conservative privacy parameters
func DefaultConfig() Config {
	return Config{
		Epsilon:          0.1,
		EpsilonBudget:    10,
		SpendSensitivity: 1,
	}
}

// Aggregator accumulates conversion counters and spend per campaign
type Aggregator struct {
	mu      sync.RWMutex
	metrics map[uint64]*Metrics
	spent   map[uint64]float64 // consumed epsilon per campaign

	cfg    Config
	policy authz.Authorizer
	events *events.Emitter
	log    log.Logger
}

// NewAggregator creates an analytics aggregator
func NewAggregator(cfg Config, policy authz.Authorizer, emitter *events.Emitter, logger log.Logger) *Aggregator {
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultConfig().Epsilon
	}
	if cfg.EpsilonBudget <= 0 {
		cfg.EpsilonBudget = DefaultConfig().EpsilonBudget
	}
	if cfg.SpendSensitivity == 0 {
		cfg.SpendSensitivity = 1
	}
	return &Aggregator{
		metrics: make(map[uint64]*Metrics),
		spent:   make(map[uint64]float64),
		cfg:     cfg,
		policy:  policy,
		events:  emitter,
		log:     logger,
	}
}

// Record adds one accepted conversion and its fee to the campaign's
// running totals. Invoked once per accepted conversion.
func (a *Aggregator) Record(campaignID uint64, amount uint64) {
	a.mu.Lock()
	m := a.metricsLocked(campaignID)
	m.Conversions++
	m.TotalSpend += amount
	m.LastConversion = time.Now()
	a.mu.Unlock()

	a.events.Emit(events.Event{
		Type:       events.EventMetricsUpdated,
		CampaignID: campaignID,
		Amount:     amount,
	})
}

func (a *Aggregator) metricsLocked(campaignID uint64) *Metrics {
	m, ok := a.metrics[campaignID]
	if !ok {
		m = &Metrics{CampaignID: campaignID}
		a.metrics[campaignID] = m
	}
	return m
}

// GetMetrics returns the campaign's metrics. With privacy enabled the
// counters are perturbed with Laplace noise and the read is charged
// against the campaign's privacy budget; the result is floored at zero.
func (a *Aggregator) GetMetrics(campaignID uint64) (Metrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.getLocked(campaignID)
}

func (a *Aggregator) getLocked(campaignID uint64) (Metrics, error) {
	m, ok := a.metrics[campaignID]
	if !ok {
		return Metrics{CampaignID: campaignID}, nil
	}
	out := *m

	if !m.PrivacyEnabled {
		return out, nil
	}

	// Two noised counters per read, so the read costs 2·epsilon.
	cost := 2 * a.cfg.Epsilon
	if a.spent[campaignID]+cost > a.cfg.EpsilonBudget {
		return Metrics{}, ErrPrivacyBudgetExhausted
	}
	a.spent[campaignID] += cost

	out.Conversions = perturb(m.Conversions, 1, a.cfg.Epsilon)
	out.TotalSpend = perturb(m.TotalSpend, a.cfg.SpendSensitivity, a.cfg.Epsilon)
	return out, nil
}

// BatchMetrics mirrors GetMetrics per id, applying noise independently
// for each privacy-enabled campaign
func (a *Aggregator) BatchMetrics(campaignIDs []uint64) ([]Metrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Metrics, len(campaignIDs))
	for i, id := range campaignIDs {
		m, err := a.getLocked(id)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}

// RemainingBudget returns the campaign's unspent privacy budget
func (a *Aggregator) RemainingBudget(campaignID uint64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg.EpsilonBudget - a.spent[campaignID]
}

// GetConversionRate derives conversions over the supplied impression
// count from raw stored metrics. Zero denominator yields zero.
func (a *Aggregator) GetConversionRate(campaignID uint64, impressions uint64) decimal.Decimal {
	if impressions == 0 {
		return decimal.Zero
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	m, ok := a.metrics[campaignID]
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromUint64(m.Conversions).Div(decimal.NewFromUint64(impressions))
}

// GetAverageCost derives spend per conversion from raw stored metrics.
// Zero conversions yields zero.
func (a *Aggregator) GetAverageCost(campaignID uint64) decimal.Decimal {
	a.mu.RLock()
	defer a.mu.RUnlock()

	m, ok := a.metrics[campaignID]
	if !ok || m.Conversions == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(m.TotalSpend).Div(decimal.NewFromUint64(m.Conversions))
}

// SetPrivacyEnabled toggles differential privacy for a campaign
func (a *Aggregator) SetPrivacyEnabled(caller ids.Identity, campaignID uint64, enabled bool) error {
	if !a.policy.Allowed(caller, authz.ActionTogglePrivacy) {
		return authz.ErrNotAuthorized
	}

	a.mu.Lock()
	a.metricsLocked(campaignID).PrivacyEnabled = enabled
	a.mu.Unlock()
	return nil
}

// ResetMetrics zeroes a campaign's record and privacy spend
func (a *Aggregator) ResetMetrics(caller ids.Identity, campaignID uint64) error {
	if !a.policy.Allowed(caller, authz.ActionResetMetrics) {
		return authz.ErrNotAuthorized
	}

	a.mu.Lock()
	privacy := false
	if m, ok := a.metrics[campaignID]; ok {
		privacy = m.PrivacyEnabled
	}
	a.metrics[campaignID] = &Metrics{CampaignID: campaignID, PrivacyEnabled: privacy}
	a.spent[campaignID] = 0
	a.mu.Unlock()

	a.log.Info("metrics reset", "campaign", campaignID)
	return nil
}
