// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admission validates conversion proofs before settlement. It
// is a pure check: admitting a proof never consumes its nullifier, so
// the same call serves both live submissions and batch pre-checks.
package admission

import (
	"context"
	"errors"

	"github.com/luxfi/attrib/pkg/ids"
	"github.com/luxfi/attrib/pkg/log"
)

var (
	ErrNullifierUsed    = errors.New("nullifier already used")
	ErrDegenerateProof  = errors.New("degenerate proof shape")
	ErrInputArity       = errors.New("wrong public input arity")
	ErrInputMismatch    = errors.New("public input does not match expected value")
	ErrProofInvalid     = errors.New("proof verification failed")
	ErrUnknownCampaign  = errors.New("unknown campaign")
)

// NumPublicInputs is the fixed public-input arity: click commitment,
// conversion commitment, campaign root.
const NumPublicInputs = 3

// Proof is a Groth16-shaped proof over three public inputs
type Proof struct {
	A []byte `json:"a"`
	B []byte `json:"b"`
	C []byte `json:"c"`

	PublicInputs []ids.ID `json:"public_inputs"`
}

// Degenerate reports whether any group element is missing or all-zero.
// A cheap filter before the pairing check.
func (p *Proof) Degenerate() bool {
	for _, el := range [][]byte{p.A, p.B, p.C} {
		if len(el) == 0 {
			return true
		}
		zero := true
		for _, b := range el {
			if b != 0 {
				zero = false
				break
			}
		}
		if zero {
			return true
		}
	}
	return false
}

// Verifier checks cryptographic validity of an admitted proof. Invalid
// proofs return false, never an error; malformed input is caught before
// this call.
type Verifier interface {
	Verify(publicInputs [NumPublicInputs]ids.ID, proof *Proof) bool
}

// RootReader provides the current commitment root per campaign
type RootReader interface {
	Root(campaignID uint64) (ids.ID, error)
}

// UsedChecker reports whether a nullifier has been consumed
type UsedChecker interface {
	IsUsed(ctx context.Context, n ids.ID) (bool, error)
}

// Admitter validates proof shape and public-input binding, delegating
// cryptographic validity to the external verifier
type Admitter struct {
	roots     RootReader
	nullifier UsedChecker
	verifier  Verifier
	log       log.Logger
}

// NewAdmitter creates a proof admitter
func NewAdmitter(roots RootReader, used UsedChecker, verifier Verifier, logger log.Logger) *Admitter {
	return &Admitter{
		roots:     roots,
		nullifier: used,
		verifier:  verifier,
		log:       logger,
	}
}

// Admit checks a conversion proof, short-circuiting on the first
// failure. The order is fixed: replay, shape, arity, binding, then the
// expensive cryptographic check.
func (a *Admitter) Admit(
	ctx context.Context,
	campaignID uint64,
	clickCommitment ids.ID,
	conversionCommitment ids.ID,
	n ids.ID,
	proof *Proof,
) error {
	used, err := a.nullifier.IsUsed(ctx, n)
	if err != nil {
		return err
	}
	if used {
		return ErrNullifierUsed
	}

	if proof == nil || proof.Degenerate() {
		return ErrDegenerateProof
	}

	if len(proof.PublicInputs) != NumPublicInputs {
		return ErrInputArity
	}

	root, err := a.roots.Root(campaignID)
	if err != nil {
		return ErrUnknownCampaign
	}

	expected := [NumPublicInputs]ids.ID{clickCommitment, conversionCommitment, root}
	for i, input := range proof.PublicInputs {
		if input != expected[i] {
			a.log.Debug("public input mismatch", "campaign", campaignID, "index", i)
			return ErrInputMismatch
		}
	}

	if !a.verifier.Verify(expected, proof) {
		return ErrProofInvalid
	}

	return nil
}
