// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package analytics

import (
	"crypto/rand"
	"encoding/binary"
	"math"
)

// perturb adds Laplace noise calibrated to sensitivity/epsilon and
// floors the result at zero
func perturb(value uint64, sensitivity uint64, epsilon float64) uint64 {
	scale := float64(sensitivity) / epsilon
	noised := float64(value) + laplace(scale)
	if noised < 0 {
		return 0
	}
	return uint64(math.Round(noised))
}

// laplace samples Laplace(0, scale) by inverse transform over a
// uniform draw from crypto/rand
func laplace(scale float64) float64 {
	// u uniform in (-0.5, 0.5), excluding the endpoints so the log
	// below stays finite
	u := uniform() - 0.5
	for u == -0.5 || u == 0.5 {
		u = uniform() - 0.5
	}
	return -scale * sign(u) * math.Log(1-2*math.Abs(u))
}

// uniform draws a float64 in [0, 1) from crypto/rand
func uniform() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; a broken
		// entropy source must not silently disable the noise
		panic(err)
	}
	// 53 bits of mantissa
	v := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(v) / (1 << 53)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
