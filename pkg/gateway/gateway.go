// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway sequences proof admission, replay prevention, fraud
// gating, billing and analytics into one atomic accept-or-reject
// decision per submitted conversion.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/attrib/pkg/admission"
	"github.com/luxfi/attrib/pkg/analytics"
	"github.com/luxfi/attrib/pkg/billing"
	"github.com/luxfi/attrib/pkg/campaign"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/fraud"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
	"github.com/luxfi/attrib/pkg/metric"
	"github.com/luxfi/attrib/pkg/nullifier"
)

// State tracks a submission through the settlement pipeline
type State string

const (
	StateReceived State = "received"
	StateAdmitted State = "admitted"
	StateBilled   State = "billed"
	StateRecorded State = "recorded"
	StateAccepted State = "accepted"
	StateRejected State = "rejected"
)

// Rejection reasons surfaced to callers
const (
	ReasonNotActive     = "campaign not active"
	ReasonNullifierUsed = "nullifier used"
	ReasonFraudGate     = "fraud gate"
	ReasonProofInvalid  = "proof invalid"
	ReasonBillingFailed = "billing failed"

	// ReasonRegistryUnavailable marks an infrastructure failure, not a
	// verdict on the claim; the caller may retry the same submission.
	ReasonRegistryUnavailable = "nullifier registry unavailable"
)

// DefaultWeight is the quality weight applied when a submission does
// not carry one
const DefaultWeight = 1

// Submission is one conversion claim
type Submission struct {
	CampaignID           uint64
	ClickCommitment      ids.ID
	ConversionCommitment ids.ID
	Nullifier            ids.ID
	Proof                *admission.Proof
	User                 ids.Identity
	Device               ids.Identity
	Weight               uint32
}

// Outcome is the settled result of one submission
type Outcome struct {
	ReceiptID uuid.UUID `json:"receipt_id"`
	State     State     `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Fee       uint64    `json:"fee"`
	SettledAt time.Time `json:"settled_at"`
}

// Accepted reports whether the submission settled
func (o Outcome) Accepted() bool {
	return o.State == StateAccepted
}

// Receipt is the durable record of an accepted conversion
type Receipt struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uint64    `json:"campaign_id"`
	Nullifier  ids.ID    `json:"nullifier"`
	Fee        uint64    `json:"fee"`
	SettledAt  time.Time `json:"settled_at"`
}

// Batch carries parallel submission arrays. All arrays must have equal
// length or the whole batch is rejected before any entry is processed.
type Batch struct {
	CampaignIDs           []uint64
	ClickCommitments      []ids.ID
	ConversionCommitments []ids.ID
	Nullifiers            []ids.ID
	Proofs                []*admission.Proof
	Users                 []ids.Identity
	Devices               []ids.Identity
	Weights               []uint32
}

// ErrBatchLengthMismatch rejects a batch whose arrays differ in length
var ErrBatchLengthMismatch = errors.New("batch arrays differ in length")

// Validate checks the batch arrays line up
func (b *Batch) Validate() error {
	n := len(b.CampaignIDs)
	if len(b.ClickCommitments) != n ||
		len(b.ConversionCommitments) != n ||
		len(b.Nullifiers) != n ||
		len(b.Proofs) != n ||
		len(b.Users) != n ||
		len(b.Devices) != n {
		return ErrBatchLengthMismatch
	}
	// Weights are optional as a whole but must line up when present.
	if len(b.Weights) != 0 && len(b.Weights) != n {
		return ErrBatchLengthMismatch
	}
	return nil
}

// Gateway is the settlement orchestrator
type Gateway struct {
	ledger    *campaign.Ledger
	registry  nullifier.Registry
	admitter  *admission.Admitter
	gate      *fraud.Gate
	engine    *billing.Engine
	analytics *analytics.Aggregator

	mu       sync.RWMutex
	receipts map[uuid.UUID]Receipt

	events  *events.Emitter
	metrics *metric.Metrics
	log     log.Logger
}

// New creates a settlement gateway. Metrics may be nil.
func New(
	ledger *campaign.Ledger,
	registry nullifier.Registry,
	admitter *admission.Admitter,
	gate *fraud.Gate,
	engine *billing.Engine,
	agg *analytics.Aggregator,
	emitter *events.Emitter,
	m *metric.Metrics,
	logger log.Logger,
) *Gateway {
	return &Gateway{
		ledger:    ledger,
		registry:  registry,
		admitter:  admitter,
		gate:      gate,
		engine:    engine,
		analytics: agg,
		receipts:  make(map[uuid.UUID]Receipt),
		events:    emitter,
		metrics:   m,
		log:       logger,
	}
}

// Submit settles one conversion claim. Either every effect lands — the
// nullifier is consumed, the publisher is paid, spend accrues, metrics
// record — or none does: the nullifier reservation is rolled back when
// billing fails after admission.
func (g *Gateway) Submit(ctx context.Context, sub Submission) Outcome {
	start := time.Now()

	if !g.ledger.IsActive(sub.CampaignID) {
		return g.reject(sub, ReasonNotActive)
	}

	used, err := g.registry.IsUsed(ctx, sub.Nullifier)
	if err != nil {
		g.log.Error("nullifier lookup failed", "error", err)
		return g.reject(sub, ReasonRegistryUnavailable)
	}
	if used {
		g.observeReplay()
		return g.reject(sub, ReasonNullifierUsed)
	}

	if err := g.gate.Check(sub.User, sub.Device); err != nil {
		g.observeFraud(err)
		return g.reject(sub, ReasonFraudGate)
	}

	if err := g.admitter.Admit(ctx, sub.CampaignID, sub.ClickCommitment, sub.ConversionCommitment, sub.Nullifier, sub.Proof); err != nil {
		if errors.Is(err, admission.ErrNullifierUsed) {
			g.observeReplay()
			return g.reject(sub, ReasonNullifierUsed)
		}
		g.observeProofReject()
		return g.reject(sub, ReasonProofInvalid)
	}

	// Admission passed; hold the nullifier for the commit phase.
	if err := g.registry.Reserve(ctx, sub.Nullifier); err != nil {
		if errors.Is(err, nullifier.ErrAlreadyUsed) || errors.Is(err, nullifier.ErrReserved) {
			g.observeReplay()
			return g.reject(sub, ReasonNullifierUsed)
		}
		g.log.Error("nullifier reserve failed", "error", err)
		return g.reject(sub, ReasonRegistryUnavailable)
	}

	weight := sub.Weight
	if weight == 0 {
		weight = DefaultWeight
	}

	fee, err := g.engine.ProcessConversion(sub.CampaignID, sub.Nullifier, weight)
	if err != nil {
		// Roll the reservation back: a conversion that paid nobody
		// must not burn its nullifier.
		if relErr := g.registry.Release(ctx, sub.Nullifier); relErr != nil {
			g.log.Error("reservation release failed", "nullifier", sub.Nullifier, "error", relErr)
		}
		g.gate.RecordOutcome(sub.User, sub.Device, false)
		g.log.Debug("billing rejected submission", "campaign", sub.CampaignID, "error", err)
		return g.reject(sub, ReasonBillingFailed)
	}

	if err := g.registry.Commit(ctx, sub.Nullifier); err != nil {
		// The payout has settled; losing the commit would reopen the
		// nullifier for replay. Surface loudly, keep the acceptance.
		g.log.Error("nullifier commit failed after payout", "nullifier", sub.Nullifier, "error", err)
	}

	g.analytics.Record(sub.CampaignID, fee)
	g.gate.RecordOutcome(sub.User, sub.Device, true)

	receipt := Receipt{
		ID:         uuid.New(),
		CampaignID: sub.CampaignID,
		Nullifier:  sub.Nullifier,
		Fee:        fee,
		SettledAt:  time.Now(),
	}
	g.mu.Lock()
	g.receipts[receipt.ID] = receipt
	g.mu.Unlock()

	g.events.Emit(events.Event{
		Type:       events.EventConversionAccepted,
		CampaignID: sub.CampaignID,
		Subject:    sub.User,
		Nullifier:  sub.Nullifier,
		Amount:     fee,
	})
	g.observeAccept(time.Since(start), fee)

	return Outcome{
		ReceiptID: receipt.ID,
		State:     StateAccepted,
		Fee:       fee,
		SettledAt: receipt.SettledAt,
	}
}

// BatchSubmit settles each entry independently in order. One entry's
// rejection does not abort later entries.
func (g *Gateway) BatchSubmit(ctx context.Context, batch Batch) ([]Outcome, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(batch.CampaignIDs))
	for i := range batch.CampaignIDs {
		sub := Submission{
			CampaignID:           batch.CampaignIDs[i],
			ClickCommitment:      batch.ClickCommitments[i],
			ConversionCommitment: batch.ConversionCommitments[i],
			Nullifier:            batch.Nullifiers[i],
			Proof:                batch.Proofs[i],
			User:                 batch.Users[i],
			Device:               batch.Devices[i],
		}
		if len(batch.Weights) > 0 {
			sub.Weight = batch.Weights[i]
		}
		outcomes[i] = g.Submit(ctx, sub)
	}
	return outcomes, nil
}

// GetReceipt returns the receipt for an accepted conversion
func (g *Gateway) GetReceipt(id uuid.UUID) (Receipt, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.receipts[id]
	return r, ok
}

func (g *Gateway) reject(sub Submission, reason string) Outcome {
	g.events.Emit(events.Event{
		Type:       events.EventConversionRejected,
		CampaignID: sub.CampaignID,
		Subject:    sub.User,
		Nullifier:  sub.Nullifier,
		Reason:     reason,
	})
	if g.metrics != nil {
		g.metrics.SubmissionsRejected.WithLabelValues(reason).Inc()
	}
	return Outcome{
		State:     StateRejected,
		Reason:    reason,
		SettledAt: time.Now(),
	}
}

func (g *Gateway) observeAccept(d time.Duration, fee uint64) {
	if g.metrics == nil {
		return
	}
	g.metrics.SubmissionsAccepted.Inc()
	g.metrics.PayoutsTotal.Inc()
	g.metrics.PayoutVolume.Add(float64(fee))
	g.metrics.SettleDuration.Observe(d.Seconds())
}

func (g *Gateway) observeReplay() {
	if g.metrics != nil {
		g.metrics.NullifierReplays.Inc()
	}
}

func (g *Gateway) observeProofReject() {
	if g.metrics != nil {
		g.metrics.ProofsRejected.Inc()
	}
}

func (g *Gateway) observeFraud(cause error) {
	if g.metrics != nil {
		g.metrics.FraudBlocked.WithLabelValues(cause.Error()).Inc()
	}
}
