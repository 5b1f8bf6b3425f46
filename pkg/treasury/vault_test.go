// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

func newTestVault(owner ids.Identity, cfg Config) (*Vault, *MemoryRail) {
	rail := NewMemoryRail()
	v := NewVault(owner, rail, cfg, authz.NewSingleOwner(owner), events.NewEmitter(), log.NoOp())
	return v, rail
}

func TestDepositAndBalance(t *testing.T) {
	require := require.New(t)
	v, _ := newTestVault(ids.GenerateTestIdentity(), Config{})

	require.ErrorIs(v.Deposit(1, 0), ErrZeroAmount)
	require.NoError(v.Deposit(1, 500))
	require.NoError(v.Deposit(1, 250))
	require.Equal(uint64(750), v.Balance(1))
	require.Equal(uint64(0), v.Balance(2))
}

func TestDebitAccounting(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, rail := newTestVault(owner, Config{})

	publisher := ids.GenerateTestIdentity()
	require.NoError(v.Deposit(1, 1000))

	require.NoError(v.Debit(owner, 1, publisher, 300))
	require.NoError(v.Debit(owner, 1, publisher, 200))
	require.Equal(uint64(500), v.Balance(1))
	require.Equal(uint64(500), rail.TotalSent(publisher))
}

func TestOverdraftLeavesBalanceUnchanged(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, rail := newTestVault(owner, Config{})

	require.NoError(v.Deposit(1, 100))
	err := v.Debit(owner, 1, ids.GenerateTestIdentity(), 101)
	require.ErrorIs(err, ErrInsufficientBalance)
	require.Equal(uint64(100), v.Balance(1))
	require.Empty(rail.Transfers())
}

func TestFailedRailSendLeavesBalanceUnchanged(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, rail := newTestVault(owner, Config{})

	require.NoError(v.Deposit(1, 100))

	railErr := errors.New("rail unavailable")
	rail.FailNext = railErr

	err := v.Debit(owner, 1, ids.GenerateTestIdentity(), 50)
	require.ErrorIs(err, railErr)
	require.Equal(uint64(100), v.Balance(1))

	// The rail recovers and the retry settles
	require.NoError(v.Debit(owner, 1, ids.GenerateTestIdentity(), 50))
	require.Equal(uint64(50), v.Balance(1))
}

func TestSpenderAuthorization(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, _ := newTestVault(owner, Config{})

	spender := ids.GenerateTestIdentity()
	require.NoError(v.Deposit(1, 100))

	require.ErrorIs(v.Debit(spender, 1, ids.GenerateTestIdentity(), 10), ErrNotAuthorized)

	require.ErrorIs(v.AuthorizeSpender(spender, spender), authz.ErrNotAuthorized)
	require.NoError(v.AuthorizeSpender(owner, spender))
	require.True(v.IsAuthorizedSpender(spender))
	require.NoError(v.Debit(spender, 1, ids.GenerateTestIdentity(), 10))

	require.NoError(v.RevokeSpender(owner, spender))
	require.False(v.IsAuthorizedSpender(spender))
	require.ErrorIs(v.Debit(spender, 1, ids.GenerateTestIdentity(), 10), ErrNotAuthorized)
}

func TestBatchDepositAtomicity(t *testing.T) {
	require := require.New(t)
	v, _ := newTestVault(ids.GenerateTestIdentity(), Config{})

	err := v.BatchDeposit([]uint64{1, 2}, []uint64{100}, 100)
	require.ErrorIs(err, ErrLengthMismatch)

	err = v.BatchDeposit([]uint64{1, 2}, []uint64{100, 200}, 301)
	require.ErrorIs(err, ErrBadDepositTotal)
	require.Equal(uint64(0), v.Balance(1))
	require.Equal(uint64(0), v.Balance(2))

	require.NoError(v.BatchDeposit([]uint64{1, 2}, []uint64{100, 200}, 300))
	require.Equal(uint64(100), v.Balance(1))
	require.Equal(uint64(200), v.Balance(2))
}

func TestBatchDepositOverflowingSumRejected(t *testing.T) {
	require := require.New(t)
	v, _ := newTestVault(ids.GenerateTestIdentity(), Config{})

	// The amounts wrap around uint64 so that the truncated sum matches
	// the attached total; the batch must still be refused outright.
	err := v.BatchDeposit(
		[]uint64{1, 2, 3},
		[]uint64{1 << 63, 1 << 63, 5},
		5,
	)
	require.ErrorIs(err, ErrBadDepositTotal)
	require.Equal(uint64(0), v.Balance(1))
	require.Equal(uint64(0), v.Balance(2))
	require.Equal(uint64(0), v.Balance(3))
}

func TestWithdrawOwnerOnly(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, rail := newTestVault(owner, Config{})

	recipient := ids.GenerateTestIdentity()
	require.NoError(v.DepositVault(400))

	require.ErrorIs(v.Withdraw(ids.GenerateTestIdentity(), recipient, 100), authz.ErrNotAuthorized)
	require.ErrorIs(v.Withdraw(owner, recipient, 401), ErrInsufficientVault)

	require.NoError(v.Withdraw(owner, recipient, 150))
	require.Equal(uint64(250), v.VaultBalance())
	require.Equal(uint64(150), rail.TotalSent(recipient))

	// Campaign balances are untouched by vault withdrawals
	require.Equal(uint64(0), v.Balance(1))
}

func TestLargeTransferTimelock(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, _ := newTestVault(owner, Config{
		LargeTransferLimit: 1000,
		TimelockDelay:      time.Hour,
	})

	now := time.Now()
	v.now = func() time.Time { return now }

	publisher := ids.GenerateTestIdentity()
	require.NoError(v.Deposit(1, 5000))

	// Below the limit needs no timelock
	require.NoError(v.Debit(owner, 1, publisher, 999))

	// At or above the limit, a plain debit is refused
	require.ErrorIs(v.Debit(owner, 1, publisher, 1000), ErrTimelockRequired)

	transferID := NewTransferID()
	releaseAt := v.InitializeTimelock(transferID)
	require.Equal(now.Add(time.Hour), releaseAt)

	expired, err := v.IsTimelockExpired(transferID)
	require.NoError(err)
	require.False(expired)
	require.ErrorIs(v.DebitWithTimelock(owner, 1, publisher, 1000, transferID), ErrTimelockActive)

	now = now.Add(time.Hour)
	expired, err = v.IsTimelockExpired(transferID)
	require.NoError(err)
	require.True(expired)
	require.NoError(v.DebitWithTimelock(owner, 1, publisher, 1000, transferID))
	require.Equal(uint64(3001), v.Balance(1))

	// A timelock is consumed on use
	require.ErrorIs(v.DebitWithTimelock(owner, 1, publisher, 1000, transferID), ErrTimelockRequired)

	_, err = v.IsTimelockExpired(NewTransferID())
	require.ErrorIs(err, ErrUnknownTimelock)
}

func TestTimelockSurvivesFailedTransfer(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	v, rail := newTestVault(owner, Config{
		LargeTransferLimit: 1000,
		TimelockDelay:      time.Hour,
	})

	now := time.Now()
	v.now = func() time.Time { return now }

	publisher := ids.GenerateTestIdentity()
	transferID := NewTransferID()
	v.InitializeTimelock(transferID)
	now = now.Add(time.Hour)

	// The balance check fails; the timelock must remain armed
	err := v.DebitWithTimelock(owner, 1, publisher, 1000, transferID)
	require.ErrorIs(err, ErrInsufficientBalance)

	require.NoError(v.Deposit(1, 2000))

	// The rail fails; the timelock must still remain armed
	railErr := errors.New("rail unavailable")
	rail.FailNext = railErr
	err = v.DebitWithTimelock(owner, 1, publisher, 1000, transferID)
	require.ErrorIs(err, railErr)
	require.Equal(uint64(2000), v.Balance(1))

	// The retry settles with the same timelock, which is then consumed
	require.NoError(v.DebitWithTimelock(owner, 1, publisher, 1000, transferID))
	require.Equal(uint64(1000), v.Balance(1))
	require.ErrorIs(v.DebitWithTimelock(owner, 1, publisher, 1000, transferID), ErrTimelockRequired)
}

func BenchmarkDebit(b *testing.B) {
	owner := ids.GenerateTestIdentity()
	v, _ := newTestVault(owner, Config{})
	publisher := ids.GenerateTestIdentity()

	_ = v.Deposit(1, uint64(b.N)+1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = v.Debit(owner, 1, publisher, 1)
	}
}
