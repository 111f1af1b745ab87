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

package sharing

import (
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
)

// RecombineHE reconstructs encrypted secrets from encrypted shares of one
// ciphertext group. Since (x_int − b) mod 2 = x_int + b − 2·b·x_int,
//
//	x = x_int·p(1−2b) + x_frac + (p·b − t)
//
// so x_int is multiplied by p(1−2b) and rescaled, x_frac receives the
// additive plaintext p·b − t, and both terms are added at the lower level.
func RecombineHE(ctx *he.Context, ctXFrac, ctXInt *rlwe.Ciphertext, bl Blinding, mod field.Modulus) (*rlwe.Ciphertext, error) {
	n := bl.Len()
	if n > ctx.Slots() {
		return nil, fmt.Errorf("%w: %d blinding pairs for %d slots", ErrLengthMismatch, n, ctx.Slots())
	}
	p := int64(mod.P())
	mult := make([]int64, n)
	add := make([]int64, n)
	for i := 0; i < n; i++ {
		b := int64(bl.B[i])
		mult[i] = p * (1 - 2*b)
		add[i] = p*b - int64(bl.T[i])
	}

	scaled, err := ctx.MulPlainRescale(ctXInt, mult)
	if err != nil {
		return nil, fmt.Errorf("sharing: recombine x_int: %w", err)
	}
	shifted, err := ctx.AddPlain(ctXFrac, add)
	if err != nil {
		return nil, fmt.Errorf("sharing: recombine x_frac: %w", err)
	}
	out, err := ctx.Add(scaled, shifted)
	if err != nil {
		return nil, fmt.Errorf("sharing: recombine: %w", err)
	}
	return out, nil
}

const (
	// Threshold is the largest tolerated |decoded − expected|.
	Threshold = 1.0

	// MaxReported caps the mismatches a report collects.
	MaxReported = 10
)

// Mismatch is one reconstructed value that missed its expectation.
type Mismatch struct {
	Index    int
	Expected uint64
	Got      float64
}

// Report is the outcome of a reconstruction check.
type Report struct {
	Valid        bool
	InvalidCount int
	Mismatches   []Mismatch
	Checked      int
}

// CheckReconstruction compares decoded ciphertext groups against the
// original secrets. Group j covers items [j·slots, j·slots+len); the scan
// stops after MaxReported mismatches.
func CheckReconstruction(decoded [][]float64, original []uint64, slots int) Report {
	rep := Report{Valid: true}
	for j, group := range decoded {
		for k := 0; k < slots && k < len(group); k++ {
			idx := j*slots + k
			if idx >= len(original) || rep.InvalidCount >= MaxReported {
				break
			}
			rep.Checked++
			if math.Abs(group[k]-float64(original[idx])) < Threshold {
				continue
			}
			rep.Valid = false
			rep.InvalidCount++
			rep.Mismatches = append(rep.Mismatches, Mismatch{Index: idx, Expected: original[idx], Got: group[k]})
		}
	}
	if rep.Checked < len(original) && rep.InvalidCount < MaxReported {
		// groups missing from decoded never verified
		rep.Valid = false
	}
	return rep
}
