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

// Package mac implements the compact MAC over shares: tag generation in
// the clear and verification over CKKS ciphertexts. Every tag component
// is bounded to [0,p) or {0,1}, or packs such components in powers of p
// below p³, so it stays exact under fixed-point encoding.
package mac

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
)

var (
	// ErrGroupLength is returned when share vectors do not cover the
	// declared input size.
	ErrGroupLength = errors.New("mac: group length mismatch")

	// ErrKeyLength is returned when a key vector is shorter than the data.
	ErrKeyLength = errors.New("mac: key vector too short")

	// ErrOverflow is returned when an accumulated value reaches p³.
	ErrOverflow = errors.New("mac: accumulator exceeds p³")
)

// SingleTag is the unbatched tag of one share.
type SingleTag struct {
	ZQ        uint64 // y_alpha_int, masked carry bit
	AlphaFrac uint64
	YR        uint64
}

// ZR returns the packed remainder p·alpha_frac + y_r that is stored and
// encrypted in place of the two separate residues.
func (t SingleTag) ZR(mod field.Modulus) uint64 {
	return mod.P()*t.AlphaFrac + t.YR
}

// SingleCompact tags one share with the keys of index i:
//
//	y = a_int·x_int + a_frac·x_frac + b = p·y_q + y_r
//	y_q + c_alpha = p·q + alpha_frac,  z_q = (q + d_alpha) mod 2
func SingleCompact(keys keyderiv.KeyVector, i int, xInt, xFrac uint64, mod field.Modulus) (SingleTag, error) {
	if i < 0 || i >= keys.Len() {
		return SingleTag{}, fmt.Errorf("%w: index %d of %d", ErrKeyLength, i, keys.Len())
	}
	y := keys.AInt[i]*xInt + keys.AFrac[i]*xFrac + keys.B[i]
	yq, yr := mod.DivMod(y)
	q, alphaFrac := mod.DivMod(yq + keys.CAlpha[i])
	return SingleTag{
		ZQ:        (q + uint64(keys.DAlpha[i])) & 1,
		AlphaFrac: alphaFrac,
		YR:        yr,
	}, nil
}

// SingleTags tags every share of xInt/xFrac with the matching index of keys.
func SingleTags(keys keyderiv.KeyVector, xInt, xFrac []uint64, mod field.Modulus) ([]SingleTag, error) {
	if len(xInt) != len(xFrac) {
		return nil, fmt.Errorf("%w: %d x_int, %d x_frac", ErrGroupLength, len(xInt), len(xFrac))
	}
	if keys.Len() < len(xInt) {
		return nil, fmt.Errorf("%w: %d keys for %d shares", ErrKeyLength, keys.Len(), len(xInt))
	}
	out := make([]SingleTag, len(xInt))
	for i := range xInt {
		tag, err := SingleCompact(keys, i, xInt[i], xFrac[i], mod)
		if err != nil {
			return nil, err
		}
		out[i] = tag
	}
	return out, nil
}

// OptimizedTag is the two-vector form of the batched tag.
type OptimizedTag struct {
	// Part1[i] = alpha_frac·p² + beta_frac·p + y_r.
	Part1 []uint64
	// Part2[i] = alpha_int<<1 | beta_int.
	Part2 []byte
}

// Len returns the number of entries.
func (t OptimizedTag) Len() int {
	return len(t.Part1)
}

// UnpackPart2 splits a packed carry byte.
func UnpackPart2(b byte) (alphaInt, betaInt uint8) {
	return (b >> 1) & 1, b & 1
}

// PackPart2 is the inverse of UnpackPart2.
func PackPart2(alphaInt, betaInt uint8) byte {
	return (alphaInt&1)<<1 | betaInt&1
}

// BatchedOptimized decomposes each y into y = p·y_q + y_r and
// y_q = p·alpha + beta, applies the alpha and beta correction pairs and
// packs the result. keys must carry the batch extension.
func BatchedOptimized(keys keyderiv.KeyVector, yVec []uint64, mod field.Modulus) (OptimizedTag, error) {
	ct, err := decompose(keys, yVec, mod)
	if err != nil {
		return OptimizedTag{}, err
	}
	return ct.Optimized(mod), nil
}

// decompose applies the two-level p-ary decomposition with the batch
// constants of keys.
func decompose(keys keyderiv.KeyVector, yVec []uint64, mod field.Modulus) (CompactTag, error) {
	if !keys.IsBatched() {
		return CompactTag{}, keyderiv.ErrNotBatched
	}
	n := len(yVec)
	if len(keys.CAlpha) < n || len(keys.Batch.CBeta) < n {
		return CompactTag{}, fmt.Errorf("%w: %d constants for %d entries", ErrKeyLength, len(keys.CAlpha), n)
	}
	cube := mod.Cube()
	tag := newCompactTag(n)
	for i, y := range yVec {
		if y >= cube {
			return CompactTag{}, fmt.Errorf("%w: entry %d", ErrOverflow, i)
		}
		yq, yr := mod.DivMod(y)
		alpha, beta := mod.DivMod(yq)

		qa, alphaFrac := mod.DivMod(alpha + keys.CAlpha[i])
		qb, betaFrac := mod.DivMod(beta + keys.Batch.CBeta[i])

		tag.YR[i] = yr
		tag.AlphaInt[i] = uint8((qa + uint64(keys.DAlpha[i])) & 1)
		tag.AlphaFrac[i] = alphaFrac
		tag.BetaInt[i] = uint8((qb + uint64(keys.Batch.DBeta[i])) & 1)
		tag.BetaFrac[i] = betaFrac
	}
	return tag, nil
}
