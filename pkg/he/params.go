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

package he

import (
	"errors"
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

const (
	// MinHeadroomBits is the fixed-point headroom required between the
	// scale and the largest encoded magnitude p³.
	MinHeadroomBits = 20

	// EncoderPrecision is the bit precision of the encoder FFT.
	EncoderPrecision = 128

	// prec128Threshold is the log scale above which lattigo switches to
	// 128-bit precision and rescales by two primes at a time.
	prec128Threshold = 64
)

var (
	// ErrPrecision is returned when p³ does not fit the fixed-point budget.
	ErrPrecision = errors.New("he: modulus too large for precision budget")

	// ErrInsufficientDepth is returned when the modulus chain cannot absorb
	// the multiplications the verifier performs.
	ErrInsufficientDepth = errors.New("he: insufficient multiplicative depth")

	// ErrInvalidParams is returned for malformed parameter sets.
	ErrInvalidParams = errors.New("he: invalid parameters")
)

// Params describes a CKKS parameter set.
type Params struct {
	LogN     int
	LogScale int
	LogQ     []int
	LogP     []int
}

// DefaultParams returns LogN 14 (8192 slots) at a 2^90 scale.
func DefaultParams() Params {
	return Params{
		LogN:     14,
		LogScale: 90,
		LogQ:     []int{60, 60, 60, 45, 45, 45, 45},
		LogP:     []int{61},
	}
}

// Slots returns the number of packed values per ciphertext.
func (p Params) Slots() int {
	return 1 << (p.LogN - 1)
}

// PrimesPerRescale returns how many Q primes one rescale removes.
func (p Params) PrimesPerRescale() int {
	if p.LogScale > prec128Threshold {
		return 2
	}
	return 1
}

// Depth returns the number of plaintext or ciphertext multiplications the
// chain supports.
func (p Params) Depth() int {
	return (len(p.LogQ) - 1) / p.PrimesPerRescale()
}

// Literal returns the lattigo literal for p.
func (p Params) Literal() ckks.ParametersLiteral {
	return ckks.ParametersLiteral{
		LogN:            p.LogN,
		LogQ:            append([]int(nil), p.LogQ...),
		LogP:            append([]int(nil), p.LogP...),
		LogDefaultScale: p.LogScale,
	}
}

// Validate checks structural constraints before lattigo sees the literal.
func (p Params) Validate() error {
	if p.LogN < 10 || p.LogN > 17 {
		return fmt.Errorf("%w: logN %d", ErrInvalidParams, p.LogN)
	}
	if len(p.LogQ) == 0 || len(p.LogP) == 0 {
		return fmt.Errorf("%w: empty modulus chain", ErrInvalidParams)
	}
	if p.LogScale <= 0 {
		return fmt.Errorf("%w: log scale %d", ErrInvalidParams, p.LogScale)
	}
	if p.Depth() < 1 {
		return fmt.Errorf("%w: %d Q primes, %d per rescale", ErrInsufficientDepth, len(p.LogQ), p.PrimesPerRescale())
	}
	return nil
}

// CheckPrecision rejects primes whose cube cannot be represented exactly
// under the scale, or that overflow the modulus at the level reached after
// one plaintext multiplication.
func (p Params) CheckPrecision(mod field.Modulus) error {
	if err := p.Validate(); err != nil {
		return err
	}
	cubeBits := 3 * math.Log2(float64(mod.P()))
	if headroom := float64(p.LogScale) - cubeBits; headroom < MinHeadroomBits {
		return fmt.Errorf("%w: p³ needs %.1f bits, scale 2^%d leaves %.1f bits headroom (min %d)",
			ErrPrecision, cubeBits, p.LogScale, headroom, MinHeadroomBits)
	}

	remaining := len(p.LogQ) - p.PrimesPerRescale()
	qBits := 0
	for _, b := range p.LogQ[:remaining] {
		qBits += b
	}
	if need := cubeBits + float64(p.LogScale) + 1; need > float64(qBits) {
		return fmt.Errorf("%w: p³·Δ needs %.1f bits, level %d holds %d",
			ErrPrecision, need, remaining-1, qBits)
	}
	return nil
}
