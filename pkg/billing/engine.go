// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package billing

import (
	"errors"
	"fmt"

	"github.com/luxfi/attrib/pkg/campaign"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
	"github.com/luxfi/attrib/pkg/treasury"
)

var (
	ErrWeightOutOfRange   = errors.New("weight out of range")
	ErrCampaignInactive   = errors.New("campaign not active")
	ErrInsufficientBudget = errors.New("insufficient remaining budget")
)

// MaxWeight bounds the conversion quality multiplier
const MaxWeight = 100

// Rates holds the base fee per pricing model
type Rates struct {
	PerAction  uint64
	PerLead    uint64
	PerInstall uint64
}

// Engine computes conversion fees and meters them against campaign
// budgets, paying publishers through the treasury
type Engine struct {
	// identity is the engine's spender identity on the vault
	identity         ids.Identity
	defaultPublisher ids.Identity

	rates  Rates
	ledger *campaign.Ledger
	vault  *treasury.Vault
	events *events.Emitter
	log    log.Logger
}

// NewEngine creates a billing engine
func NewEngine(
	identity ids.Identity,
	defaultPublisher ids.Identity,
	rates Rates,
	ledger *campaign.Ledger,
	vault *treasury.Vault,
	emitter *events.Emitter,
	logger log.Logger,
) *Engine {
	return &Engine{
		identity:         identity,
		defaultPublisher: defaultPublisher,
		rates:            rates,
		ledger:           ledger,
		vault:            vault,
		events:           emitter,
		log:              logger,
	}
}

// Identity returns the engine's spender identity
func (e *Engine) Identity() ids.Identity {
	return e.identity
}

// CalculateFee computes the fee for a conversion of the given quality
// weight. Zero weight is normalized to 1. Weight scales the fee only
// under per-action pricing; per-lead and per-install bill flat.
func (e *Engine) CalculateFee(campaignID uint64, weight uint32) (uint64, error) {
	if weight > MaxWeight {
		return 0, ErrWeightOutOfRange
	}
	if weight == 0 {
		weight = 1
	}

	c, err := e.ledger.Get(campaignID)
	if err != nil {
		return 0, err
	}

	switch c.Pricing {
	case campaign.PerAction:
		return e.rates.PerAction * uint64(weight), nil
	case campaign.PerLead:
		return e.rates.PerLead, nil
	case campaign.PerInstall:
		return e.rates.PerInstall, nil
	default:
		return 0, campaign.ErrBadPricingModel
	}
}

// ProcessConversion bills one accepted conversion: accrues the spend
// against the campaign budget, then debits the campaign's balance to
// its publisher. Returns the fee charged.
func (e *Engine) ProcessConversion(campaignID uint64, n ids.ID, weight uint32) (uint64, error) {
	c, err := e.ledger.Get(campaignID)
	if err != nil {
		return 0, err
	}
	if !c.Active {
		return 0, ErrCampaignInactive
	}

	fee, err := e.CalculateFee(campaignID, weight)
	if err != nil {
		return 0, err
	}

	// Accrue before paying. RecordSpend checks and adds under one
	// lock, so of two claims racing for the last budget unit only one
	// reaches the vault; the loser is rejected here with no money
	// moved.
	if err := e.ledger.RecordSpend(campaignID, fee); err != nil {
		if errors.Is(err, campaign.ErrSpendExceedsBudget) {
			return 0, ErrInsufficientBudget
		}
		return 0, err
	}

	recipient := c.Publisher
	if recipient.IsEmpty() {
		recipient = e.defaultPublisher
	}

	if err := e.vault.Debit(e.identity, campaignID, recipient, fee); err != nil {
		if relErr := e.ledger.ReleaseSpend(campaignID, fee); relErr != nil {
			e.log.Error("spend release failed after payout failure", "campaign", campaignID, "fee", fee, "error", relErr)
		}
		return 0, fmt.Errorf("payout failed: %w", err)
	}

	if after, err := e.ledger.Get(campaignID); err == nil && after.Spent >= after.Budget {
		e.events.Emit(events.Event{
			Type:       events.EventBudgetExhausted,
			CampaignID: campaignID,
			Amount:     after.Spent,
		})
		e.log.Info("campaign budget exhausted", "campaign", campaignID)
	}

	e.log.Debug("conversion billed", "campaign", campaignID, "nullifier", n, "fee", fee)
	return fee, nil
}

// EstimateBatchCost sums CalculateFee over the given weights. An empty
// list costs zero.
func (e *Engine) EstimateBatchCost(campaignID uint64, weights []uint32) (uint64, error) {
	var total uint64
	for _, w := range weights {
		fee, err := e.CalculateFee(campaignID, w)
		if err != nil {
			return 0, err
		}
		total += fee
	}
	return total, nil
}
