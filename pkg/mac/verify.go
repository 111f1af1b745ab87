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
	"errors"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
)

// ErrNoCiphertexts is returned when there is nothing to accumulate or check.
var ErrNoCiphertexts = errors.New("mac: no ciphertexts")

// EncryptedSingleTag holds the encrypted unbatched tag of one ciphertext
// group.
type EncryptedSingleTag struct {
	ZQ *rlwe.Ciphertext
	ZR *rlwe.Ciphertext
}

// EncryptedCompactTag holds the encrypted optimized tag. AlphaInt
// encrypts alpha_int·p³ and BetaInt encrypts beta_int·p².
type EncryptedCompactTag struct {
	Part1    *rlwe.Ciphertext
	AlphaInt *rlwe.Ciphertext
	BetaInt  *rlwe.Ciphertext
}

// Verifier recomputes MACs over encrypted shares.
type Verifier struct {
	ctx *he.Context
	mod field.Modulus
}

// NewVerifier returns a verifier evaluating under ctx.
func NewVerifier(ctx *he.Context, mod field.Modulus) *Verifier {
	return &Verifier{ctx: ctx, mod: mod}
}

// Context returns the evaluation context.
func (v *Verifier) Context() *he.Context {
	return v.ctx
}

func toInt64(src []uint64) []int64 {
	out := make([]int64, len(src))
	for i, u := range src {
		out[i] = int64(u)
	}
	return out
}

// carrySigns returns the multiplier sign·scale and the constant d·scale
// for each masked carry bit: the carry is bit ⊕ d = d + (1−2d)·bit.
func carrySigns(d []uint8, n int, scale int64) (mult, add []int64) {
	mult = make([]int64, n)
	add = make([]int64, n)
	for i := 0; i < n; i++ {
		di := int64(d[i] & 1)
		mult[i] = (1 - 2*di) * scale
		add[i] = di * scale
	}
	return mult, add
}

// VerifyBatchedY computes Σ a_int·x_int + a_frac·x_frac lane-wise for the
// first keys.Len() lanes.
func (v *Verifier) VerifyBatchedY(keys keyderiv.KeyVector, ctXInt, ctXFrac *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	termInt, err := v.ctx.MulPlainRescale(ctXInt, toInt64(keys.AInt))
	if err != nil {
		return nil, fmt.Errorf("mac: a_int·x_int: %w", err)
	}
	termFrac, err := v.ctx.MulPlainRescale(ctXFrac, toInt64(keys.AFrac))
	if err != nil {
		return nil, fmt.Errorf("mac: a_frac·x_frac: %w", err)
	}
	return v.ctx.Add(termInt, termFrac)
}

// AccumulateY sums per-group partial MACs.
func (v *Verifier) AccumulateY(parts []*rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if len(parts) == 0 {
		return nil, ErrNoCiphertexts
	}
	acc := parts[0]
	for _, ct := range parts[1:] {
		next, err := v.ctx.Add(acc, ct)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

// VerifyBatchedYTag rebuilds y − b from an encrypted optimized tag for n
// lanes:
//
//	y = part1 + p³·(α_int ⊕ d_α) + p²·(β_int ⊕ d_β) − p²·c_α − p·c_β
func (v *Verifier) VerifyBatchedYTag(keys keyderiv.KeyVector, n int, tag EncryptedCompactTag) (*rlwe.Ciphertext, error) {
	if !keys.IsBatched() {
		return nil, keyderiv.ErrNotBatched
	}
	if keys.Len() < n || len(keys.Batch.DBeta) < n {
		return nil, fmt.Errorf("%w: %d keys for %d lanes", ErrKeyLength, keys.Len(), n)
	}
	p := int64(v.mod.P())
	p2, p3 := p*p, p*p*p

	multA, _ := carrySigns(keys.DAlpha, n, 1)
	multB, _ := carrySigns(keys.Batch.DBeta, n, 1)
	constant := make([]int64, n)
	for i := 0; i < n; i++ {
		constant[i] = p3*int64(keys.DAlpha[i]&1) + p2*int64(keys.Batch.DBeta[i]&1) -
			p2*int64(keys.CAlpha[i]) - p*int64(keys.Batch.CBeta[i]) - int64(keys.B[i])
	}

	alpha, err := v.ctx.MulPlainRescale(tag.AlphaInt, multA)
	if err != nil {
		return nil, fmt.Errorf("mac: alpha carry: %w", err)
	}
	beta, err := v.ctx.MulPlainRescale(tag.BetaInt, multB)
	if err != nil {
		return nil, fmt.Errorf("mac: beta carry: %w", err)
	}
	acc, err := v.ctx.Add(alpha, beta)
	if err != nil {
		return nil, err
	}
	if acc, err = v.ctx.Add(acc, tag.Part1); err != nil {
		return nil, err
	}
	return v.ctx.AddPlain(acc, constant)
}

// VerifyCompactUnbatched returns the difference (a·x) − (y − b) for the n
// lanes of one unbatched group, with
//
//	y = p²·(z_q ⊕ d_α) + z_r − p·c_α
//
// When square is set the difference is squared so every lane is
// non-negative.
func (v *Verifier) VerifyCompactUnbatched(keys keyderiv.KeyVector, ctXInt, ctXFrac *rlwe.Ciphertext, tag EncryptedSingleTag, square bool, n int) (*rlwe.Ciphertext, error) {
	if keys.Len() < n {
		return nil, fmt.Errorf("%w: %d keys for %d lanes", ErrKeyLength, keys.Len(), n)
	}
	keys = keys.Slice(0, n)
	p := int64(v.mod.P())
	p2 := p * p

	mult, add := carrySigns(keys.DAlpha, n, p2)
	for i := 0; i < n; i++ {
		add[i] -= p*int64(keys.CAlpha[i]) + int64(keys.B[i])
	}

	carry, err := v.ctx.MulPlainRescale(tag.ZQ, mult)
	if err != nil {
		return nil, fmt.Errorf("mac: z_q carry: %w", err)
	}
	yTag, err := v.ctx.Add(carry, tag.ZR)
	if err != nil {
		return nil, err
	}
	if yTag, err = v.ctx.AddPlain(yTag, add); err != nil {
		return nil, err
	}

	y, err := v.VerifyBatchedY(keys, ctXInt, ctXFrac)
	if err != nil {
		return nil, err
	}
	diff, err := v.Difference(y, yTag)
	if err != nil {
		return nil, err
	}
	if !square {
		return diff, nil
	}
	return v.ctx.SquareRelinRescale(diff)
}

// Difference returns y − yTag. Valid lanes decode to zero.
func (v *Verifier) Difference(y, yTag *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	return v.ctx.Sub(y, yTag)
}

// VerifyCompact runs the full compact verification: one partial MAC per
// column group, accumulated and compared against the encrypted tag. The
// returned ciphertext covers s.Lanes() lanes.
func (v *Verifier) VerifyCompact(s *keyderiv.Schedule, ctXInt, ctXFrac []*rlwe.Ciphertext, tag EncryptedCompactTag) (*rlwe.Ciphertext, error) {
	if len(ctXInt) != s.NumGroups() || len(ctXFrac) != s.NumGroups() {
		return nil, fmt.Errorf("%w: %d groups, %d x_int and %d x_frac ciphertexts",
			ErrGroupLength, s.NumGroups(), len(ctXInt), len(ctXFrac))
	}
	parts := make([]*rlwe.Ciphertext, s.NumGroups())
	for j := range parts {
		y, err := v.VerifyBatchedY(s.Group(j), ctXInt[j], ctXFrac[j])
		if err != nil {
			return nil, fmt.Errorf("mac: group %d: %w", j, err)
		}
		parts[j] = y
	}
	y, err := v.AccumulateY(parts)
	if err != nil {
		return nil, err
	}
	yTag, err := v.VerifyBatchedYTag(s.Constants, s.Lanes(), tag)
	if err != nil {
		return nil, err
	}
	return v.Difference(y, yTag)
}
