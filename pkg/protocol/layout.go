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

package protocol

import (
	"fmt"

	"github.com/jeremyhahn/go-sharemac/pkg/record"
)

// Layout fixes the position of every ciphertext in a bundle.
//
// Unbatched bundles are group-major, one ciphertext per UnbatchedIndex
// vector per group. Batched bundles hold X_INT and X_FRAC for each group
// followed by the three tag vectors, which span a single group of lanes.
type Layout struct {
	Batched bool
	Groups  int
}

// Entry names the vector held at one bundle position.
type Entry struct {
	Vector int
	Group  int
	// Tag is set for batched tag vectors, which are not split by group.
	Tag bool
}

// Name returns the vector's record name.
func (e Entry) Name(batched bool) string {
	if batched {
		return record.BatchedIndex(e.Vector).String()
	}
	return record.UnbatchedIndex(e.Vector).String()
}

// Count returns the number of ciphertexts in the bundle.
func (l Layout) Count() int {
	if l.Batched {
		return 2*l.Groups + int(record.NumBatched-record.BatchedTR)
	}
	return l.Groups * int(record.NumUnbatched)
}

// Unbatched returns the position of vector idx of group j.
func (l Layout) Unbatched(j int, idx record.UnbatchedIndex) int {
	return j*int(record.NumUnbatched) + int(idx)
}

// BatchedShare returns the position of X_INT or X_FRAC of group j.
func (l Layout) BatchedShare(j int, idx record.BatchedIndex) int {
	return 2*j + int(idx)
}

// BatchedTag returns the position of a tag vector (SQ_TR and after).
func (l Layout) BatchedTag(idx record.BatchedIndex) int {
	return 2*l.Groups + int(idx-record.BatchedTR)
}

// Entries lists the bundle positions in order.
func (l Layout) Entries() []Entry {
	out := make([]Entry, 0, l.Count())
	if !l.Batched {
		for j := 0; j < l.Groups; j++ {
			for v := record.UnbatchedXInt; v < record.NumUnbatched; v++ {
				out = append(out, Entry{Vector: int(v), Group: j})
			}
		}
		return out
	}
	for j := 0; j < l.Groups; j++ {
		out = append(out,
			Entry{Vector: int(record.BatchedXInt), Group: j},
			Entry{Vector: int(record.BatchedXFrac), Group: j})
	}
	for v := record.BatchedTR; v < record.NumBatched; v++ {
		out = append(out, Entry{Vector: int(v), Tag: true})
	}
	return out
}

func (l Layout) check(n int) error {
	if n != l.Count() {
		return fmt.Errorf("%w: %d ciphertexts, layout holds %d", ErrBundleSize, n, l.Count())
	}
	return nil
}
