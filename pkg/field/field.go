// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharemac.
//
// go-sharemac is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package field provides the prime modulus that defines the arithmetic
// domain shared by key derivation, secret sharing and the compact MAC.
package field

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
)

// DefaultPrime is the modulus used when no parameter file overrides it.
const DefaultPrime uint64 = 222863

// maxCubeBits bounds p so that p³ and the per-slot accumulators stay
// exact in signed 64-bit arithmetic.
const maxCubeBits = 62

var (
	// ErrNotPrime is returned when the modulus fails a primality test.
	ErrNotPrime = errors.New("field: modulus is not prime")

	// ErrModulusTooLarge is returned when p³ does not fit the precision budget.
	ErrModulusTooLarge = errors.New("field: modulus too large for precision budget")
)

// Modulus is an immutable prime modulus with its derived digit sizes.
type Modulus struct {
	p    uint64
	bits int
}

// New validates p and returns its Modulus.
func New(p uint64) (Modulus, error) {
	if p < 3 || !new(big.Int).SetUint64(p).ProbablyPrime(32) {
		return Modulus{}, fmt.Errorf("%w: %d", ErrNotPrime, p)
	}
	b := bitLen(p)
	if 3*b > maxCubeBits {
		return Modulus{}, fmt.Errorf("%w: %d needs %d bits, p³ needs %d > %d",
			ErrModulusTooLarge, p, b, 3*b, maxCubeBits)
	}
	return Modulus{p: p, bits: b}, nil
}

// Default returns the modulus for DefaultPrime.
func Default() Modulus {
	m, err := New(DefaultPrime)
	if err != nil {
		panic("field: default prime rejected: " + err.Error())
	}
	return m
}

// bitLen returns ceil(log2(p)).
func bitLen(p uint64) int {
	b := bits.Len64(p)
	if p&(p-1) == 0 {
		b--
	}
	return b
}

// P returns the prime.
func (m Modulus) P() uint64 { return m.p }

// Bits returns ceil(log2(p)).
func (m Modulus) Bits() int { return m.bits }

// BytesPerValue returns the number of key-stream bytes consumed per field element.
func (m Modulus) BytesPerValue() int { return (m.bits + 7) / 8 }

// Square returns p².
func (m Modulus) Square() uint64 { return m.p * m.p }

// Cube returns p³.
func (m Modulus) Cube() uint64 { return m.p * m.p * m.p }

// Reduce returns v mod p.
func (m Modulus) Reduce(v uint64) uint64 { return v % m.p }

// DivMod returns the quotient and remainder of v by p.
func (m Modulus) DivMod(v uint64) (q, r uint64) {
	return v / m.p, v % m.p
}

// IsZero reports whether m is the zero value.
func (m Modulus) IsZero() bool { return m.p == 0 }

// String implements fmt.Stringer.
func (m Modulus) String() string {
	return fmt.Sprintf("p=%d (%d bits)", m.p, m.bits)
}
