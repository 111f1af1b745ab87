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

// SingleResidual evaluates the unbatched verification equation in the
// clear. It is zero exactly when tag authenticates (xInt, xFrac) at i.
func SingleResidual(keys keyderiv.KeyVector, i int, xInt, xFrac uint64, tag SingleTag, mod field.Modulus) int64 {
	p := int64(mod.P())
	q := int64((tag.ZQ ^ uint64(keys.DAlpha[i])) & 1)
	y := p*p*q + int64(tag.ZR(mod)) - p*int64(keys.CAlpha[i]) - int64(keys.B[i])
	ax := int64(keys.AInt[i]*xInt + keys.AFrac[i]*xFrac)
	return ax - y
}

// CompactResidual evaluates the compact verification equation in the
// clear, one value per lane.
func CompactResidual(s *keyderiv.Schedule, xInt, xFrac []uint64, tag OptimizedTag, mod field.Modulus) ([]int64, error) {
	y, err := AccumulateLanes(s, xInt, xFrac)
	if err != nil {
		return nil, err
	}
	if tag.Len() < len(y) || len(tag.Part2) < len(y) {
		return nil, fmt.Errorf("%w: tag has %d lanes, need %d", ErrGroupLength, tag.Len(), len(y))
	}
	p := int64(mod.P())
	p2, p3 := p*p, p*p*p
	k := s.Constants
	out := make([]int64, len(y))
	for i := range y {
		ai, bi := UnpackPart2(tag.Part2[i])
		qa := int64((ai ^ k.DAlpha[i]) & 1)
		qb := int64((bi ^ k.Batch.DBeta[i]) & 1)
		rebuilt := int64(tag.Part1[i]) + p3*qa + p2*qb - p2*int64(k.CAlpha[i]) - p*int64(k.Batch.CBeta[i])
		out[i] = int64(y[i]) - rebuilt
	}
	return out, nil
}
