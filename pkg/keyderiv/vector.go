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

package keyderiv

// KeyVector holds per-item MAC keys. All slices share one length. The
// batched schemes additionally need a beta correction pair, carried by
// the optional Batch extension.
type KeyVector struct {
	AInt   []uint64
	AFrac  []uint64
	B      []uint64
	CAlpha []uint64
	DAlpha []uint8

	Batch *BatchExtension
}

// BatchExtension carries the second digit-correction pair.
type BatchExtension struct {
	CBeta []uint64
	DBeta []uint8
}

func newKeyVector(n int, batched bool) KeyVector {
	kv := KeyVector{
		AInt:   make([]uint64, n),
		AFrac:  make([]uint64, n),
		B:      make([]uint64, n),
		CAlpha: make([]uint64, n),
		DAlpha: make([]uint8, n),
	}
	if batched {
		kv.Batch = &BatchExtension{
			CBeta: make([]uint64, n),
			DBeta: make([]uint8, n),
		}
	}
	return kv
}

// Len returns the number of items covered by the vector.
func (kv KeyVector) Len() int {
	return len(kv.AInt)
}

// IsBatched reports whether the beta correction pair is present.
func (kv KeyVector) IsBatched() bool {
	return kv.Batch != nil
}

// Clone returns a deep copy.
func (kv KeyVector) Clone() KeyVector {
	out := KeyVector{
		AInt:   cloneU64(kv.AInt),
		AFrac:  cloneU64(kv.AFrac),
		B:      cloneU64(kv.B),
		CAlpha: cloneU64(kv.CAlpha),
		DAlpha: cloneU8(kv.DAlpha),
	}
	if kv.Batch != nil {
		out.Batch = &BatchExtension{
			CBeta: cloneU64(kv.Batch.CBeta),
			DBeta: cloneU8(kv.Batch.DBeta),
		}
	}
	return out
}

// Slice returns a deep copy of items [from, to).
func (kv KeyVector) Slice(from, to int) KeyVector {
	out := KeyVector{
		AInt:   cloneU64(kv.AInt[from:to]),
		AFrac:  cloneU64(kv.AFrac[from:to]),
		B:      cloneU64(kv.B[from:to]),
		CAlpha: cloneU64(kv.CAlpha[from:to]),
		DAlpha: cloneU8(kv.DAlpha[from:to]),
	}
	if kv.Batch != nil {
		out.Batch = &BatchExtension{
			CBeta: cloneU64(kv.Batch.CBeta[from:to]),
			DBeta: cloneU8(kv.Batch.DBeta[from:to]),
		}
	}
	return out
}

func cloneU64(s []uint64) []uint64 {
	if s == nil {
		return nil
	}
	out := make([]uint64, len(s))
	copy(out, s)
	return out
}

func cloneU8(s []uint8) []uint8 {
	if s == nil {
		return nil
	}
	out := make([]uint8, len(s))
	copy(out, s)
	return out
}
