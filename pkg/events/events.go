// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package events

import (
	"sync"
	"time"

	"github.com/luxfi/attrib/pkg/ids"
)

// Type identifies a settlement event
type Type string

const (
	EventCampaignCreated    Type = "campaign_created"
	EventCampaignClosed     Type = "campaign_closed"
	EventBudgetChanged      Type = "budget_changed"
	EventBudgetExhausted    Type = "budget_exhausted"
	EventConversionAccepted Type = "conversion_accepted"
	EventConversionRejected Type = "conversion_rejected"
	EventPaymentMade        Type = "payment_made"
	EventMetricsUpdated     Type = "metrics_updated"
	EventScoreUpdated       Type = "score_updated"
	EventSuspiciousActivity Type = "suspicious_activity"
	EventBlacklistChanged   Type = "blacklist_changed"
)

// Event is a single state-transition notification. Each transition
// emits exactly one event.
type Event struct {
	Type       Type                   `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	CampaignID uint64                 `json:"campaign_id,omitempty"`
	Subject    ids.Identity           `json:"subject,omitempty"`
	Nullifier  ids.ID                 `json:"nullifier,omitempty"`
	Amount     uint64                 `json:"amount,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Emitter fans events out to subscribers. Emission never blocks the
// settlement path: a subscriber that falls behind drops events.
type Emitter struct {
	mu   sync.RWMutex
	subs []chan Event
}

// NewEmitter creates a new event emitter
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Subscribe registers a new subscriber with the given buffer size
func (e *Emitter) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan Event, buffer)

	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()

	return ch
}

// Emit delivers an event to every subscriber
func (e *Emitter) Emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// Buffer full, drop event
		}
	}
}

// Close closes all subscriber channels
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}
