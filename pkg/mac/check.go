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

package mac

import (
	"fmt"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
)

const (
	// Epsilon is the exclusive bound on |diff| for a valid lane.
	Epsilon = 1.0

	// MaxReported stops the scan once this many invalid lanes are found.
	MaxReported = 10
)

// Mismatch locates one invalid lane.
type Mismatch struct {
	Ciphertext int
	Index      int
	Diff       float64
}

// Result is the outcome of a MAC check.
type Result struct {
	Valid        bool
	InvalidCount int
	Mismatches   []Mismatch
	Checked      int
}

// Truncated reports whether the scan stopped at MaxReported.
func (r Result) Truncated() bool {
	return r.InvalidCount >= MaxReported
}

// Check decrypts the difference ciphertexts and scans them. For compact
// MACs only diffs[0] is inspected over min(slots, inputSize) lanes;
// otherwise diffs[i] covers items [i·slots, min((i+1)·slots, inputSize)).
func (v *Verifier) Check(diffs []*rlwe.Ciphertext, inputSize, slots int, compact bool) (Result, error) {
	if len(diffs) == 0 {
		return Result{}, ErrNoCiphertexts
	}
	n := keyderiv.NumGroups(inputSize, slots)
	if compact {
		n = 1
	}
	if len(diffs) < n {
		return Result{}, fmt.Errorf("%w: %d difference ciphertexts for %d groups", ErrGroupLength, len(diffs), n)
	}
	decoded := make([][]float64, n)
	for i := 0; i < n; i++ {
		vals, err := v.ctx.Decrypt(diffs[i])
		if err != nil {
			return Result{}, fmt.Errorf("mac: decrypt difference %d: %w", i, err)
		}
		decoded[i] = vals
	}
	return CheckPlain(decoded, inputSize, slots, compact), nil
}

// CheckPlain scans decoded difference vectors in the clear.
func CheckPlain(diffs [][]float64, inputSize, slots int, compact bool) Result {
	n := keyderiv.NumGroups(inputSize, slots)
	if compact {
		n = 1
	}
	res := Result{Valid: len(diffs) >= n}
	for i := 0; i < n && i < len(diffs); i++ {
		for j := 0; j < slots && i*slots+j < inputSize && j < len(diffs[i]); j++ {
			if res.InvalidCount >= MaxReported {
				return res
			}
			res.Checked++
			if math.Abs(diffs[i][j]) < Epsilon {
				continue
			}
			res.Valid = false
			res.InvalidCount++
			res.Mismatches = append(res.Mismatches, Mismatch{Ciphertext: i, Index: j, Diff: diffs[i][j]})
		}
	}
	return res
}
