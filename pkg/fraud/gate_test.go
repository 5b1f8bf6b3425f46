// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fraud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

func newTestGate(owner ids.Identity) *Gate {
	return NewGate(authz.NewSingleOwner(owner), events.NewEmitter(), log.NoOp())
}

func TestUnknownUserPassesCheck(t *testing.T) {
	require := require.New(t)
	gate := newTestGate(ids.GenerateTestIdentity())

	require.NoError(gate.Check(ids.GenerateTestIdentity(), ids.GenerateTestIdentity()))
}

func TestLazyInitialization(t *testing.T) {
	require := require.New(t)
	gate := newTestGate(ids.GenerateTestIdentity())

	user := ids.GenerateTestIdentity()
	device := ids.GenerateTestIdentity()

	// Unknown identities report zero-valued records
	require.Equal(uint8(0), gate.UserReputation(user).Score)
	require.Equal(uint8(0), gate.DeviceScore(device))

	gate.RecordOutcome(user, device, true)

	require.Equal(uint8(InitialScore+1), gate.UserReputation(user).Score)
	require.Equal(uint8(InitialScore+1), gate.DeviceScore(device))
}

func TestScoreMonotonicity(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	gate := newTestGate(owner)

	user := ids.GenerateTestIdentity()
	device := ids.GenerateTestIdentity()

	gate.RecordOutcome(user, device, true)
	base := gate.UserReputation(user).Score

	gate.RecordOutcome(user, device, true)
	require.Equal(base+1, gate.UserReputation(user).Score)

	gate.RecordOutcome(user, device, false)
	require.Equal(base, gate.UserReputation(user).Score)

	// Capped at 100
	require.NoError(gate.SetUserScore(owner, user, MaxScore))
	gate.RecordOutcome(user, device, true)
	require.Equal(uint8(MaxScore), gate.UserReputation(user).Score)

	// Floored at 0
	require.NoError(gate.SetUserScore(owner, user, 0))
	gate.RecordOutcome(user, device, false)
	require.Equal(uint8(0), gate.UserReputation(user).Score)
}

func TestBlacklistOverridesEverything(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	gate := newTestGate(owner)

	user := ids.GenerateTestIdentity()
	device := ids.GenerateTestIdentity()

	require.NoError(gate.SetUserScore(owner, user, MaxScore))
	require.NoError(gate.Blacklist(owner, user))
	require.ErrorIs(gate.Check(user, device), ErrBlacklisted)

	require.NoError(gate.Whitelist(owner, user))
	require.NoError(gate.Check(user, device))
}

func TestLowScoresRejected(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	gate := newTestGate(owner)

	user := ids.GenerateTestIdentity()
	device := ids.GenerateTestIdentity()

	require.NoError(gate.SetUserScore(owner, user, FraudThreshold-1))
	require.ErrorIs(gate.Check(user, device), ErrLowReputation)

	require.NoError(gate.SetUserScore(owner, user, FraudThreshold))
	require.NoError(gate.Check(user, device))

	require.NoError(gate.SetDeviceScore(owner, device, FraudThreshold-1))
	require.ErrorIs(gate.Check(user, device), ErrLowDeviceTrust)
}

func TestRateLimitWindow(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	gate := newTestGate(owner)

	now := time.Now()
	gate.now = func() time.Time { return now }

	user := ids.GenerateTestIdentity()
	device := ids.GenerateTestIdentity()

	for i := 0; i < WindowCap; i++ {
		require.NoError(gate.Check(user, device))
		gate.RecordOutcome(user, device, true)
	}
	require.ErrorIs(gate.Check(user, device), ErrRateLimited)

	// Window elapses; the counter resets
	now = now.Add(RateWindow)
	require.NoError(gate.Check(user, device))
	gate.RecordOutcome(user, device, true)
	require.Equal(uint32(1), gate.UserReputation(user).WindowCount)
}

func TestOverCapPenalty(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	gate := newTestGate(owner)

	now := time.Now()
	gate.now = func() time.Time { return now }

	user := ids.GenerateTestIdentity()
	device := ids.GenerateTestIdentity()

	for i := 0; i <= WindowCap; i++ {
		gate.RecordOutcome(user, device, true)
	}

	// The over-cap outcome takes the extra penalty on top of the
	// success increment
	rep := gate.UserReputation(user)
	require.Equal(uint8(InitialScore+WindowCap+1-overCapPenalty), rep.Score)
}

func TestScoreOverridesValidated(t *testing.T) {
	require := require.New(t)
	owner := ids.GenerateTestIdentity()
	gate := newTestGate(owner)

	user := ids.GenerateTestIdentity()

	require.ErrorIs(gate.SetUserScore(owner, user, 101), ErrScoreOutOfRange)
	require.ErrorIs(gate.SetDeviceScore(owner, user, 200), ErrScoreOutOfRange)
	require.ErrorIs(gate.SetUserScore(ids.GenerateTestIdentity(), user, 80), authz.ErrNotAuthorized)
	require.ErrorIs(gate.Blacklist(ids.GenerateTestIdentity(), user), authz.ErrNotAuthorized)
}

func TestBatchReputation(t *testing.T) {
	require := require.New(t)
	gate := newTestGate(ids.GenerateTestIdentity())

	known := ids.GenerateTestIdentity()
	unknown := ids.GenerateTestIdentity()
	gate.RecordOutcome(known, ids.GenerateTestIdentity(), true)

	reps := gate.BatchReputation([]ids.Identity{known, unknown})
	require.Len(reps, 2)
	require.Equal(uint8(InitialScore+1), reps[0].Score)
	require.Equal(uint8(0), reps[1].Score)
	require.Equal(unknown, reps[1].User)
}
