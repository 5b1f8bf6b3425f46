// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fraud

import (
	"errors"
	"sync"
	"time"

	"github.com/luxfi/attrib/pkg/authz"
	"github.com/luxfi/attrib/pkg/events"
	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

var (
	ErrBlacklisted    = errors.New("user blacklisted")
	ErrLowReputation  = errors.New("user reputation below threshold")
	ErrRateLimited    = errors.New("conversion rate limit reached")
	ErrLowDeviceTrust = errors.New("device trust below threshold")
	ErrScoreOutOfRange = errors.New("score out of range")
)

const (
	// InitialScore is assigned on first contact
	InitialScore = 50
	// MaxScore bounds reputation and device trust
	MaxScore = 100
	// FraudThreshold is the minimum score to pass the gate
	FraudThreshold = 20
	// RateWindow is the sliding conversion window
	RateWindow = time.Hour
	// WindowCap is the conversion cap per user per window
	WindowCap = 10
	// overCapPenalty is applied on top of the failure decrement when a
	// user pushes past the window cap
	overCapPenalty = 5
)

// Reputation is a user's trust state
type Reputation struct {
	User            ids.Identity
	Score           uint8
	WindowCount     uint32
	LastConversion  time.Time
	Blacklisted     bool
}

// Gate screens conversions against reputation, device trust and a
// per-user rate limit
type Gate struct {
	mu      sync.RWMutex
	users   map[ids.Identity]*Reputation
	devices map[ids.Identity]uint8

	policy authz.Authorizer
	events *events.Emitter
	log    log.Logger
	now    func() time.Time
}

// NewGate creates a fraud gate
func NewGate(policy authz.Authorizer, emitter *events.Emitter, logger log.Logger) *Gate {
	return &Gate{
		users:   make(map[ids.Identity]*Reputation),
		devices: make(map[ids.Identity]uint8),
		policy:  policy,
		events:  emitter,
		log:     logger,
		now:     time.Now,
	}
}

// Check screens a user/device pair. The first failing check decides
// the rejection; nil means legitimate. Checking never mutates state.
func (g *Gate) Check(user, device ids.Identity) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rep, known := g.users[user]
	if known {
		if rep.Blacklisted {
			return ErrBlacklisted
		}
		if rep.Score < FraudThreshold {
			return ErrLowReputation
		}
		if rep.WindowCount >= WindowCap && g.now().Sub(rep.LastConversion) < RateWindow {
			return ErrRateLimited
		}
	}

	if score, seen := g.devices[device]; seen && score < FraudThreshold {
		return ErrLowDeviceTrust
	}

	return nil
}

// RecordOutcome adjusts reputation after a conversion attempt. Scores
// move by one per outcome, bounded to [0,100]; a user that pushes past
// the window cap takes an extra penalty and raises a suspicious
// activity event.
func (g *Gate) RecordOutcome(user, device ids.Identity, success bool) {
	g.mu.Lock()

	rep := g.userLocked(user)
	if _, seen := g.devices[device]; !seen {
		g.devices[device] = InitialScore
	}

	now := g.now()
	if now.Sub(rep.LastConversion) >= RateWindow {
		rep.WindowCount = 0
	}
	rep.WindowCount++
	rep.LastConversion = now

	if success {
		if rep.Score < MaxScore {
			rep.Score++
		}
		if g.devices[device] < MaxScore {
			g.devices[device]++
		}
	} else {
		if rep.Score > 0 {
			rep.Score--
		}
		if g.devices[device] > 0 {
			g.devices[device]--
		}
	}

	suspicious := rep.WindowCount > WindowCap
	if suspicious {
		if rep.Score > overCapPenalty {
			rep.Score -= overCapPenalty
		} else {
			rep.Score = 0
		}
	}
	score := rep.Score
	windowCount := rep.WindowCount
	g.mu.Unlock()

	g.events.Emit(events.Event{
		Type:    events.EventScoreUpdated,
		Subject: user,
		Amount:  uint64(score),
	})
	if suspicious {
		g.events.Emit(events.Event{
			Type:    events.EventSuspiciousActivity,
			Subject: user,
		})
		g.log.Warn("suspicious conversion rate", "user", user, "window_count", windowCount)
	}
}

func (g *Gate) userLocked(user ids.Identity) *Reputation {
	rep, ok := g.users[user]
	if !ok {
		rep = &Reputation{User: user, Score: InitialScore}
		g.users[user] = rep
	}
	return rep
}

// Blacklist hard-blocks a user
func (g *Gate) Blacklist(caller, user ids.Identity) error {
	return g.setBlacklist(caller, user, true)
}

// Whitelist removes a user's hard block
func (g *Gate) Whitelist(caller, user ids.Identity) error {
	return g.setBlacklist(caller, user, false)
}

func (g *Gate) setBlacklist(caller, user ids.Identity, blocked bool) error {
	if !g.policy.Allowed(caller, authz.ActionOverrideScore) {
		return authz.ErrNotAuthorized
	}

	g.mu.Lock()
	g.userLocked(user).Blacklisted = blocked
	g.mu.Unlock()

	g.events.Emit(events.Event{
		Type:    events.EventBlacklistChanged,
		Subject: user,
		Metadata: map[string]interface{}{
			"blacklisted": blocked,
		},
	})
	return nil
}

// SetUserScore overrides a user's reputation score
func (g *Gate) SetUserScore(caller, user ids.Identity, score uint8) error {
	if !g.policy.Allowed(caller, authz.ActionOverrideScore) {
		return authz.ErrNotAuthorized
	}
	if score > MaxScore {
		return ErrScoreOutOfRange
	}

	g.mu.Lock()
	g.userLocked(user).Score = score
	g.mu.Unlock()

	g.events.Emit(events.Event{
		Type:    events.EventScoreUpdated,
		Subject: user,
		Amount:  uint64(score),
	})
	return nil
}

// SetDeviceScore overrides a device's trust score
func (g *Gate) SetDeviceScore(caller, device ids.Identity, score uint8) error {
	if !g.policy.Allowed(caller, authz.ActionOverrideScore) {
		return authz.ErrNotAuthorized
	}
	if score > MaxScore {
		return ErrScoreOutOfRange
	}

	g.mu.Lock()
	g.devices[device] = score
	g.mu.Unlock()

	g.events.Emit(events.Event{
		Type:    events.EventScoreUpdated,
		Subject: device,
		Amount:  uint64(score),
	})
	return nil
}

// UserReputation returns a copy of the user's reputation record.
// Unknown users return a zero-valued record.
func (g *Gate) UserReputation(user ids.Identity) Reputation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if rep, ok := g.users[user]; ok {
		return *rep
	}
	return Reputation{User: user}
}

// BatchReputation returns one record per requested identity
func (g *Gate) BatchReputation(users []ids.Identity) []Reputation {
	out := make([]Reputation, len(users))
	for i, user := range users {
		out[i] = g.UserReputation(user)
	}
	return out
}

// DeviceScore returns the device's trust score, zero if unknown
func (g *Gate) DeviceScore(device ids.Identity) uint8 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.devices[device]
}
