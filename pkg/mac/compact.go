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

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
)

// CompactTag is the five-vector tag, one entry per ciphertext lane.
type CompactTag struct {
	YR        []uint64
	AlphaInt  []uint8
	AlphaFrac []uint64
	BetaInt   []uint8
	BetaFrac  []uint64
}

func newCompactTag(n int) CompactTag {
	return CompactTag{
		YR:        make([]uint64, n),
		AlphaInt:  make([]uint8, n),
		AlphaFrac: make([]uint64, n),
		BetaInt:   make([]uint8, n),
		BetaFrac:  make([]uint64, n),
	}
}

// Len returns the number of lanes.
func (t CompactTag) Len() int {
	return len(t.YR)
}

// Optimized packs the tag into its two-vector form.
func (t CompactTag) Optimized(mod field.Modulus) OptimizedTag {
	p, p2 := mod.P(), mod.Square()
	out := OptimizedTag{
		Part1: make([]uint64, t.Len()),
		Part2: make([]byte, t.Len()),
	}
	for i := range t.YR {
		out.Part1[i] = t.AlphaFrac[i]*p2 + t.BetaFrac[i]*p + t.YR[i]
		out.Part2[i] = PackPart2(t.AlphaInt[i], t.BetaInt[i])
	}
	return out
}

// Unpack recovers the five-vector form from an optimized tag.
func (t OptimizedTag) Unpack(mod field.Modulus) CompactTag {
	out := newCompactTag(t.Len())
	for i, v := range t.Part1 {
		q, yr := mod.DivMod(v)
		af, bf := mod.DivMod(q)
		out.YR[i], out.AlphaFrac[i], out.BetaFrac[i] = yr, af, bf
		out.AlphaInt[i], out.BetaInt[i] = UnpackPart2(t.Part2[i])
	}
	return out
}

// AccumulateLanes folds the shares of every column group into one value
// per lane: y[k] = Σ_j a_int[j][k]·x_int[j·slots+k] + a_frac[j][k]·x_frac[j·slots+k],
// plus the lane's b once.
func AccumulateLanes(s *keyderiv.Schedule, xInt, xFrac []uint64) ([]uint64, error) {
	if len(xInt) != s.InputSize || len(xFrac) != s.InputSize {
		return nil, fmt.Errorf("%w: schedule covers %d items, got %d x_int and %d x_frac",
			ErrGroupLength, s.InputSize, len(xInt), len(xFrac))
	}
	lanes := s.Lanes()
	y := make([]uint64, lanes)
	copy(y, s.Constants.B[:lanes])
	for j := 0; j < s.NumGroups(); j++ {
		g := s.Groups[j]
		n := s.GroupLength(j)
		if len(g.AInt) < n || len(g.AFrac) < n {
			return nil, fmt.Errorf("%w: group %d has %d keys for %d items", ErrGroupLength, j, len(g.AInt), n)
		}
		base := j * s.Slots
		for k := 0; k < n; k++ {
			y[k] += g.AInt[k]*xInt[base+k] + g.AFrac[k]*xFrac[base+k]
		}
	}
	return y, nil
}

// Compact tags inputSize shares packed into slots lanes. The batch
// constants of group 0 correct every lane.
func Compact(s *keyderiv.Schedule, xInt, xFrac []uint64, mod field.Modulus) (CompactTag, error) {
	y, err := AccumulateLanes(s, xInt, xFrac)
	if err != nil {
		return CompactTag{}, err
	}
	return decompose(s.Constants, y, mod)
}
