// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package treasury

import (
	"sync"

	"github.com/luxfi/attrib/pkg/ids"
)

// Transfer is one confirmed rail movement
type Transfer struct {
	To     ids.Identity
	Amount uint64
}

// MemoryRail is a transfer rail that records transfers in memory. It
// stands in for the external payment rail in tests and single-node
// deployments; transfers can be replayed into a real rail later.
type MemoryRail struct {
	mu        sync.Mutex
	transfers []Transfer

	// FailNext makes the next Send fail, for exercising rollback paths
	FailNext error
}

// NewMemoryRail creates an in-memory rail
func NewMemoryRail() *MemoryRail {
	return &MemoryRail{}
}

// Send records the transfer
func (r *MemoryRail) Send(to ids.Identity, amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailNext != nil {
		err := r.FailNext
		r.FailNext = nil
		return err
	}

	r.transfers = append(r.transfers, Transfer{To: to, Amount: amount})
	return nil
}

// Transfers returns a copy of all recorded transfers
func (r *MemoryRail) Transfers() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// TotalSent sums recorded transfers to the given recipient
func (r *MemoryRail) TotalSent(to ids.Identity) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total uint64
	for _, t := range r.transfers {
		if t.To == to {
			total += t.Amount
		}
	}
	return total
}
