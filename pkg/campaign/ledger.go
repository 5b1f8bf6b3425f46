// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package campaign

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

var (
	ErrZeroBudget          = errors.New("budget must be positive")
	ErrBadPricingModel     = errors.New("unknown pricing model")
	ErrEmptyMetadata       = errors.New("metadata reference must not be empty")
	ErrNotFound            = errors.New("campaign not found")
	ErrNotOwner            = errors.New("caller is not the campaign owner")
	ErrNotActive           = errors.New("campaign not active")
	ErrBudgetBelowSpent    = errors.New("new budget below recorded spend")
	ErrSpendExceedsBudget  = errors.New("spend would exceed budget")
	ErrReleaseExceedsSpent = errors.New("release exceeds recorded spend")
)

// PricingModel selects how conversions are billed
type PricingModel uint8

const (
	PerAction PricingModel = iota
	PerLead
	PerInstall
)

// Valid reports whether the pricing model is known
func (m PricingModel) Valid() bool {
	return m <= PerInstall
}

// Campaign is an advertiser campaign record
type Campaign struct {
	ID          uint64
	Owner       ids.Identity
	Budget      uint64
	Spent       uint64
	Pricing     PricingModel
	MetadataRef string
	Active      bool
	CreatedAt   time.Time

	// Root is the current trusted commitment over off-chain
	// click/conversion pairs. Proofs bind to the latest value only.
	Root ids.ID

	// Publisher receives debits for this campaign's conversions.
	// Empty means the billing engine's default payout identity.
	Publisher ids.Identity
}

// Ledger owns campaign records
type Ledger struct {
	mu        sync.RWMutex
	campaigns map[uint64]*Campaign
	byOwner   map[ids.Identity][]uint64
	nextID    uint64

	policy authz.Authorizer
	events *events.Emitter
	log    log.Logger
}

// NewLedger creates a campaign ledger
func NewLedger(policy authz.Authorizer, emitter *events.Emitter, logger log.Logger) *Ledger {
	return &Ledger{
		campaigns: make(map[uint64]*Campaign),
		byOwner:   make(map[ids.Identity][]uint64),
		nextID:    1,
		policy:    policy,
		events:    emitter,
		log:       logger,
	}
}

// Register creates a new active campaign and returns its id
func (l *Ledger) Register(owner ids.Identity, budget uint64, pricing PricingModel, metadataRef string) (uint64, error) {
	if budget == 0 {
		return 0, ErrZeroBudget
	}
	if !pricing.Valid() {
		return 0, ErrBadPricingModel
	}
	if metadataRef == "" {
		return 0, ErrEmptyMetadata
	}

	l.mu.Lock()
	id := l.nextID
	l.nextID++

	l.campaigns[id] = &Campaign{
		ID:          id,
		Owner:       owner,
		Budget:      budget,
		Pricing:     pricing,
		MetadataRef: metadataRef,
		Active:      true,
		CreatedAt:   time.Now(),
	}
	l.byOwner[owner] = append(l.byOwner[owner], id)
	l.mu.Unlock()

	l.events.Emit(events.Event{
		Type:       events.EventCampaignCreated,
		CampaignID: id,
		Subject:    owner,
		Amount:     budget,
	})
	l.log.Info("campaign registered", "campaign", id, "budget", budget, "pricing", pricing)

	return id, nil
}

// UpdateBudget changes a campaign's budget ceiling. Owner-only; the new
// budget must cover what has already been spent.
func (l *Ledger) UpdateBudget(caller ids.Identity, id uint64, newBudget uint64) error {
	l.mu.Lock()
	c, ok := l.campaigns[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if c.Owner != caller {
		l.mu.Unlock()
		return ErrNotOwner
	}
	if !c.Active {
		l.mu.Unlock()
		return ErrNotActive
	}
	if newBudget < c.Spent {
		l.mu.Unlock()
		return ErrBudgetBelowSpent
	}
	c.Budget = newBudget
	l.mu.Unlock()

	l.events.Emit(events.Event{
		Type:       events.EventBudgetChanged,
		CampaignID: id,
		Subject:    caller,
		Amount:     newBudget,
	})

	return nil
}

// Close deactivates a campaign. A closed campaign cannot be closed again.
func (l *Ledger) Close(caller ids.Identity, id uint64) error {
	l.mu.Lock()
	c, ok := l.campaigns[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	if c.Owner != caller {
		l.mu.Unlock()
		return ErrNotOwner
	}
	if !c.Active {
		l.mu.Unlock()
		return ErrNotActive
	}
	c.Active = false
	l.mu.Unlock()

	l.events.Emit(events.Event{
		Type:       events.EventCampaignClosed,
		CampaignID: id,
		Subject:    caller,
	})
	l.log.Info("campaign closed", "campaign", id)

	return nil
}

// Get returns a copy of the campaign record
func (l *Ledger) Get(id uint64) (Campaign, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.campaigns[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return *c, nil
}

// IsActive reports whether the campaign exists and is active
func (l *Ledger) IsActive(id uint64) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.campaigns[id]
	return ok && c.Active
}

// ListByOwner returns the ids of all campaigns registered by owner
func (l *Ledger) ListByOwner(owner ids.Identity) []uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]uint64, len(l.byOwner[owner]))
	copy(out, l.byOwner[owner])
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RecordSpend accrues spend against the budget. Called by the billing
// engine after a confirmed payment; rejects any accrual that would push
// spent past budget even if the caller's own check raced.
func (l *Ledger) RecordSpend(id uint64, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if c.Spent+amount > c.Budget {
		return ErrSpendExceedsBudget
	}
	c.Spent += amount
	return nil
}

// ReleaseSpend backs an accrual out of the campaign after the payment it
// reserved budget for could not be completed.
func (l *Ledger) ReleaseSpend(id uint64, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	if amount > c.Spent {
		return ErrReleaseExceedsSpent
	}
	c.Spent -= amount
	return nil
}

// SetRoot installs a new commitment root for the campaign. Only the
// trusted updater may call; in-flight proofs bound to the previous root
// are rejected from this point on.
func (l *Ledger) SetRoot(caller ids.Identity, id uint64, root ids.ID) error {
	if !l.policy.Allowed(caller, authz.ActionUpdateRoot) {
		return authz.ErrNotAuthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Root = root
	return nil
}

// Root returns the campaign's current commitment root
func (l *Ledger) Root(id uint64) (ids.ID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.campaigns[id]
	if !ok {
		return ids.Empty, ErrNotFound
	}
	return c.Root, nil
}

// SetPublisher assigns the payout identity for a campaign
func (l *Ledger) SetPublisher(caller ids.Identity, id uint64, publisher ids.Identity) error {
	if !l.policy.Allowed(caller, authz.ActionAssignPublisher) {
		return authz.ErrNotAuthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.campaigns[id]
	if !ok {
		return ErrNotFound
	}
	c.Publisher = publisher
	return nil
}
