// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package admission

import (
	"crypto/rand"
	"math/big"
)

// ElementLen is the byte length of one serialized field element
const ElementLen = 32

// Field is modular arithmetic over one of the BN254 fields. Proof group
// elements carry coordinates in the base field; public inputs are
// reduced into the scalar field by the circuit.
type Field struct {
	Modulus *big.Int
}

// NewBaseField returns the BN254 base field
func NewBaseField() *Field {
	m, _ := new(big.Int).SetString("21888242871839275222246405745257275088696311157297823662689037894645226208583", 10)
	return &Field{Modulus: m}
}

// NewScalarField returns the BN254 scalar field
func NewScalarField() *Field {
	m, _ := new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495617", 10)
	return &Field{Modulus: m}
}

// Add returns a+b mod p
func (f *Field) Add(a, b *big.Int) *big.Int {
	r := new(big.Int).Add(a, b)
	return r.Mod(r, f.Modulus)
}

// Sub returns a-b mod p
func (f *Field) Sub(a, b *big.Int) *big.Int {
	r := new(big.Int).Sub(a, b)
	return r.Mod(r, f.Modulus)
}

// Mul returns a*b mod p
func (f *Field) Mul(a, b *big.Int) *big.Int {
	r := new(big.Int).Mul(a, b)
	return r.Mod(r, f.Modulus)
}

// Neg returns -a mod p
func (f *Field) Neg(a *big.Int) *big.Int {
	r := new(big.Int).Neg(a)
	return r.Mod(r, f.Modulus)
}

// Rand draws a uniform field element
func (f *Field) Rand() (*big.Int, error) {
	return rand.Int(rand.Reader, f.Modulus)
}

// Reduce maps arbitrary bytes into the field
func (f *Field) Reduce(b []byte) *big.Int {
	r := new(big.Int).SetBytes(b)
	return r.Mod(r, f.Modulus)
}

// Bytes serializes a field element to its fixed-width big-endian form
func (f *Field) Bytes(a *big.Int) []byte {
	out := make([]byte, ElementLen)
	a.FillBytes(out)
	return out
}

// Canonical reports whether the limb is a fixed-width encoding of a
// value below the modulus. Verifiers reject non-canonical encodings
// outright rather than reducing them, so a group element has exactly
// one accepted serialization.
func (f *Field) Canonical(limb []byte) bool {
	if len(limb) != ElementLen {
		return false
	}
	return new(big.Int).SetBytes(limb).Cmp(f.Modulus) < 0
}

// CanonicalElement checks every limb of a serialized group element
func (f *Field) CanonicalElement(el []byte) bool {
	if len(el) == 0 || len(el)%ElementLen != 0 {
		return false
	}
	for i := 0; i < len(el); i += ElementLen {
		if !f.Canonical(el[i : i+ElementLen]) {
			return false
		}
	}
	return true
}
