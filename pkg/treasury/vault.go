// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

var (
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrLengthMismatch      = errors.New("campaign and amount arrays differ in length")
	ErrBadDepositTotal     = errors.New("deposit amounts do not sum to attached total")
	ErrNotAuthorized       = errors.New("caller not an authorized spender")
	ErrInsufficientBalance = errors.New("insufficient campaign balance")
	ErrInsufficientVault   = errors.New("insufficient undesignated balance")
	ErrTimelockRequired    = errors.New("large transfer requires an expired timelock")
	ErrTimelockActive      = errors.New("timelock has not expired")
	ErrUnknownTimelock     = errors.New("unknown timelock")
)

// TransferRail moves funds to a recipient on an external ledger or
// payment rail. Send is synchronous; the rail defines its own timeout
// behavior and reports it here as a plain error.
type TransferRail interface {
	Send(to ids.Identity, amount uint64) error
}

// Config tunes vault policy
type Config struct {
	// LargeTransferLimit is the debit size at or above which an expired
	// timelock must accompany the transfer. Zero disables the gate.
	LargeTransferLimit uint64
	// TimelockDelay is the release delay for initialized timelocks
	TimelockDelay time.Duration
}

// DefaultTimelockDelay gates large transfers for two days
const DefaultTimelockDelay = 48 * time.Hour

// Vault holds per-campaign balances plus an undesignated balance, and
// restricts debits to the authorized-spender set. A campaign's balance
// is actual available funds, distinct from its budget ceiling.
type Vault struct {
	mu           sync.Mutex
	balances     map[uint64]uint64
	undesignated uint64
	spenders     map[ids.Identity]struct{}
	timelocks    map[uuid.UUID]time.Time

	owner  ids.Identity
	cfg    Config
	rail   TransferRail
	policy authz.Authorizer
	events *events.Emitter
	log    log.Logger
	now    func() time.Time
}

// NewVault creates a treasury vault
func NewVault(owner ids.Identity, rail TransferRail, cfg Config, policy authz.Authorizer, emitter *events.Emitter, logger log.Logger) *Vault {
	if cfg.TimelockDelay <= 0 {
		cfg.TimelockDelay = DefaultTimelockDelay
	}
	return &Vault{
		balances:  make(map[uint64]uint64),
		spenders:  make(map[ids.Identity]struct{}),
		timelocks: make(map[uuid.UUID]time.Time),
		owner:     owner,
		cfg:       cfg,
		rail:      rail,
		policy:    policy,
		events:    emitter,
		log:       logger,
		now:       time.Now,
	}
}

// Deposit credits a campaign's balance. Anyone may fund any campaign.
func (v *Vault) Deposit(campaignID uint64, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	v.balances[campaignID] += amount
	v.mu.Unlock()

	v.log.Debug("deposit", "campaign", campaignID, "amount", amount)
	return nil
}

// BatchDeposit credits several campaigns in one call. The amounts must
// sum to the attached total; any mismatch rejects the whole batch with
// no partial credits.
func (v *Vault) BatchDeposit(campaignIDs []uint64, amounts []uint64, total uint64) error {
	if len(campaignIDs) != len(amounts) {
		return ErrLengthMismatch
	}

	var sum uint64
	for _, a := range amounts {
		if a == 0 {
			return ErrZeroAmount
		}
		if sum+a < sum {
			// The true sum does not fit uint64, so it cannot equal
			// any representable total.
			return ErrBadDepositTotal
		}
		sum += a
	}
	if sum != total {
		return ErrBadDepositTotal
	}

	v.mu.Lock()
	for i, id := range campaignIDs {
		v.balances[id] += amounts[i]
	}
	v.mu.Unlock()

	return nil
}

// DepositVault credits the undesignated balance
func (v *Vault) DepositVault(amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	v.undesignated += amount
	v.mu.Unlock()
	return nil
}

// Debit pays out of a campaign's balance to a recipient. Only an
// authorized spender or the owner may call. The balance is decremented
// only after the rail confirms the transfer, so a failed send leaves
// no trace.
func (v *Vault) Debit(caller ids.Identity, campaignID uint64, recipient ids.Identity, amount uint64) error {
	return v.debit(caller, campaignID, recipient, amount, uuid.Nil)
}

// DebitWithTimelock pays out a large transfer gated by a previously
// initialized, now-expired timelock.
func (v *Vault) DebitWithTimelock(caller ids.Identity, campaignID uint64, recipient ids.Identity, amount uint64, transferID uuid.UUID) error {
	return v.debit(caller, campaignID, recipient, amount, transferID)
}

func (v *Vault) debit(caller ids.Identity, campaignID uint64, recipient ids.Identity, amount uint64, transferID uuid.UUID) error {
	if amount == 0 {
		return ErrZeroAmount
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if caller != v.owner {
		if _, ok := v.spenders[caller]; !ok {
			return ErrNotAuthorized
		}
	}

	timelockGated := false
	if v.cfg.LargeTransferLimit > 0 && amount >= v.cfg.LargeTransferLimit {
		releaseAt, ok := v.timelocks[transferID]
		if !ok {
			return ErrTimelockRequired
		}
		if v.now().Before(releaseAt) {
			return ErrTimelockActive
		}
		timelockGated = true
	}

	if v.balances[campaignID] < amount {
		return ErrInsufficientBalance
	}

	if err := v.rail.Send(recipient, amount); err != nil {
		return fmt.Errorf("transfer rail: %w", err)
	}
	v.balances[campaignID] -= amount

	// The timelock is consumed only by the transfer it released; a
	// debit that fails upstream leaves it usable for the retry.
	if timelockGated {
		delete(v.timelocks, transferID)
	}

	v.events.Emit(events.Event{
		Type:       events.EventPaymentMade,
		CampaignID: campaignID,
		Subject:    recipient,
		Amount:     amount,
	})
	v.log.Info("debit settled", "campaign", campaignID, "recipient", recipient, "amount", amount)

	return nil
}

// Withdraw moves funds out of the undesignated balance, independent of
// campaign balances. Owner-only.
func (v *Vault) Withdraw(caller ids.Identity, recipient ids.Identity, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if !v.policy.Allowed(caller, authz.ActionWithdraw) {
		return authz.ErrNotAuthorized
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.undesignated < amount {
		return ErrInsufficientVault
	}

	if err := v.rail.Send(recipient, amount); err != nil {
		return fmt.Errorf("transfer rail: %w", err)
	}
	v.undesignated -= amount

	return nil
}

// Balance returns a campaign's available funds
func (v *Vault) Balance(campaignID uint64) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[campaignID]
}

// VaultBalance returns the undesignated balance
func (v *Vault) VaultBalance() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.undesignated
}

// AuthorizeSpender adds an identity to the spender allow-list. Only the
// billing engine's identity should ever be authorized.
func (v *Vault) AuthorizeSpender(caller, spender ids.Identity) error {
	if !v.policy.Allowed(caller, authz.ActionManageSpenders) {
		return authz.ErrNotAuthorized
	}

	v.mu.Lock()
	v.spenders[spender] = struct{}{}
	v.mu.Unlock()
	return nil
}

// RevokeSpender removes an identity from the spender allow-list
func (v *Vault) RevokeSpender(caller, spender ids.Identity) error {
	if !v.policy.Allowed(caller, authz.ActionManageSpenders) {
		return authz.ErrNotAuthorized
	}

	v.mu.Lock()
	delete(v.spenders, spender)
	v.mu.Unlock()
	return nil
}

// IsAuthorizedSpender reports allow-list membership
func (v *Vault) IsAuthorizedSpender(spender ids.Identity) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.spenders[spender]
	return ok
}

// NewTransferID mints an opaque transfer identifier
func NewTransferID() uuid.UUID {
	return uuid.New()
}

// InitializeTimelock associates a release time (now + configured
// delay) with the transfer identifier.
func (v *Vault) InitializeTimelock(transferID uuid.UUID) time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()

	releaseAt := v.now().Add(v.cfg.TimelockDelay)
	v.timelocks[transferID] = releaseAt
	return releaseAt
}

// IsTimelockExpired reports whether the transfer's timelock has passed
func (v *Vault) IsTimelockExpired(transferID uuid.UUID) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	releaseAt, ok := v.timelocks[transferID]
	if !ok {
		return false, ErrUnknownTimelock
	}
	return !v.now().Before(releaseAt), nil
}
