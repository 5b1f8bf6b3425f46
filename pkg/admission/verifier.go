// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package admission

import (
	"github.com/luxfi/attrib/pkg/crypto"
	"github.com/luxfi/attrib/pkg/ids"
)

// Serialized group element sizes: a G1 point is two base-field
// coordinates, a G2 point is four.
const (
	G1Len = 2 * ElementLen
	G2Len = 4 * ElementLen
)

// DevVerifier is a stand-in for the external proving system. It checks
// that A and B carry canonically encoded coordinates, then binds the
// proof to its public inputs with a hash check instead of a pairing
// check: C must equal H(A || B || inputs). Use a real Groth16 or Halo2
// verifier in production.
type DevVerifier struct{}

var baseField = NewBaseField()

// Verify checks element encoding and the hash binding
func (DevVerifier) Verify(publicInputs [NumPublicInputs]ids.ID, proof *Proof) bool {
	if len(proof.A) != G1Len || !baseField.CanonicalElement(proof.A) {
		return false
	}
	if len(proof.B) != G2Len || !baseField.CanonicalElement(proof.B) {
		return false
	}
	return string(proof.C) == string(devBinding(proof.A, proof.B, publicInputs))
}

func devBinding(a, b []byte, inputs [NumPublicInputs]ids.ID) []byte {
	data := append([]byte{}, a...)
	data = append(data, b...)
	for _, in := range inputs {
		data = append(data, in[:]...)
	}
	return crypto.CreateCommitment(data)
}

// NewDevProof constructs a proof the DevVerifier accepts for the given
// public inputs. Test and tooling helper.
func NewDevProof(clickCommitment, conversionCommitment, root ids.ID) *Proof {
	a := randElement(G1Len / ElementLen)
	b := randElement(G2Len / ElementLen)

	inputs := [NumPublicInputs]ids.ID{clickCommitment, conversionCommitment, root}
	return &Proof{
		A:            a,
		B:            b,
		C:            devBinding(a, b, inputs),
		PublicInputs: inputs[:],
	}
}

func randElement(limbs int) []byte {
	out := make([]byte, 0, limbs*ElementLen)
	for i := 0; i < limbs; i++ {
		v, err := baseField.Rand()
		if err != nil {
			panic(err)
		}
		out = append(out, baseField.Bytes(v)...)
	}
	return out
}
