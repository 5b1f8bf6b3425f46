// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

func newTestAggregator(owner ids.Identity, cfg Config) *Aggregator {
	return NewAggregator(cfg, authz.NewSingleOwner(owner), events.NewEmitter(), log.NoOp())
}

func TestRecordAccumulates(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	agg.Record(1, 100)
	agg.Record(1, 250)
	agg.Record(2, 40)

	m, err := agg.GetMetrics(1)
	require.NoError(err)
	require.Equal(uint64(2), m.Conversions)
	require.Equal(uint64(350), m.TotalSpend)
	require.False(m.LastConversion.IsZero())

	m, err = agg.GetMetrics(2)
	require.NoError(err)
	require.Equal(uint64(1), m.Conversions)
}

func TestUnknownCampaignZeroValued(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	m, err := agg.GetMetrics(99)
	require.NoError(err)
	require.Equal(uint64(99), m.CampaignID)
	require.Equal(uint64(0), m.Conversions)
	require.Equal(uint64(0), m.TotalSpend)
}

func TestPrivacyNoiseNeverNegative(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()

	// Tiny epsilon makes the noise enormous; a generous budget lets us
	// sample it many times. The floor must hold regardless.
	agg := newTestAggregator(owner, Config{
		Epsilon:          0.01,
		EpsilonBudget:    1e9,
		SpendSensitivity: 100,
	})

	agg.Record(1, 100)
	require.NoError(agg.SetPrivacyEnabled(owner, 1, true))

	for i := 0; i < 200; i++ {
		m, err := agg.GetMetrics(1)
		require.NoError(err)

		// uint64 wraparound from a negative noised value would land far
		// above any plausible counter
		require.Less(m.Conversions, uint64(1<<40))
		require.Less(m.TotalSpend, uint64(1<<40))
	}
}

func TestPrivacyBudgetExhaustion(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()

	// Budget of 1.25 at epsilon 0.125 allows exactly five reads of two
	// counters each. Both values are exact in binary so the accounting
	// has no rounding slack.
	agg := newTestAggregator(owner, Config{
		Epsilon:          0.125,
		EpsilonBudget:    1.25,
		SpendSensitivity: 1,
	})

	agg.Record(1, 10)
	require.NoError(agg.SetPrivacyEnabled(owner, 1, true))

	for i := 0; i < 5; i++ {
		_, err := agg.GetMetrics(1)
		require.NoError(err)
	}

	_, err := agg.GetMetrics(1)
	require.ErrorIs(err, ErrPrivacyBudgetExhausted)
	require.Equal(0.0, agg.RemainingBudget(1))

	// Raw-derived ratios stay available past exhaustion
	require.True(agg.GetAverageCost(1).Equal(decimal.NewFromInt(10)))
}

func TestPrivacyDisabledReadsAreFree(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	agg.Record(1, 10)
	for i := 0; i < 1000; i++ {
		m, err := agg.GetMetrics(1)
		require.NoError(err)
		require.Equal(uint64(1), m.Conversions)
	}
	require.Equal(DefaultConfig().EpsilonBudget, agg.RemainingBudget(1))
}

func TestConversionRate(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	require.True(agg.GetConversionRate(1, 0).IsZero())
	require.True(agg.GetConversionRate(1, 100).IsZero())

	for i := 0; i < 25; i++ {
		agg.Record(1, 4)
	}

	rate := agg.GetConversionRate(1, 1000)
	require.True(rate.Equal(decimal.RequireFromString("0.025")), "rate = %s", rate)
}

func TestAverageCost(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	require.True(agg.GetAverageCost(1).IsZero())

	agg.Record(1, 100)
	agg.Record(1, 50)

	require.True(agg.GetAverageCost(1).Equal(decimal.NewFromInt(75)))
}

func TestBatchMetrics(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	agg.Record(1, 10)
	agg.Record(3, 30)

	out, err := agg.BatchMetrics([]uint64{1, 2, 3})
	require.NoError(err)
	require.Len(out, 3)
	require.Equal(uint64(1), out[0].Conversions)
	require.Equal(uint64(0), out[1].Conversions)
	require.Equal(uint64(30), out[2].TotalSpend)
}

func TestResetMetrics(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	agg := newTestAggregator(owner, Config{
		Epsilon:       0.1,
		EpsilonBudget: 1.0,
	})

	agg.Record(1, 10)
	require.NoError(agg.SetPrivacyEnabled(owner, 1, true))
	_, err := agg.GetMetrics(1)
	require.NoError(err)
	require.Less(agg.RemainingBudget(1), 1.0)

	require.ErrorIs(agg.ResetMetrics(ids.GenerateTestIdentity(), 1), authz.ErrNotAuthorized)
	require.NoError(agg.ResetMetrics(owner, 1))

	// Counters and privacy spend are zeroed; the privacy flag survives
	require.Equal(1.0, agg.RemainingBudget(1))
	m, err := agg.GetMetrics(1)
	require.NoError(err)
	require.True(m.PrivacyEnabled)
}

func TestSetPrivacyRequiresAuthorization(t *testing.T) {
	require := require.New(t)
	agg := newTestAggregator(ids.GenerateTestIdentity(), DefaultConfig())

	err := agg.SetPrivacyEnabled(ids.GenerateTestIdentity(), 1, true)
	require.ErrorIs(err, authz.ErrNotAuthorized)
}

func TestLaplaceSamplesCenteredOnValue(t *testing.T) {
	require := require.New(t)

	// With moderate epsilon the noised mean over many samples should sit
	// near the true value. Scale is sensitivity/epsilon = 10, so the
	// sample mean of 2000 draws stays well within ±5 of 1000.
	var sum float64
	const n = 2000
	for i := 0; i < n; i++ {
		sum += float64(perturb(1000, 1, 0.1))
	}
	mean := sum / n
	require.InDelta(1000, mean, 5)
}
