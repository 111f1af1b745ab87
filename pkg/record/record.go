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

// Package record defines the fixed-width little-endian objects written by
// the data owner and parsed by the auxiliary server.
//
// Each stored object has a Kind. The Kind selects a Decoder that splits
// the object into the plaintext vectors the auxiliary server encrypts.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/mac"
)

var (
	// ErrUnknownKind is returned for a Kind outside the defined set.
	ErrUnknownKind = errors.New("record: unknown kind")

	// ErrSize is returned when an object does not match its layout.
	ErrSize = errors.New("record: size mismatch")

	// ErrWrongMode is returned when a kind is decoded into a set of the
	// other mode.
	ErrWrongMode = errors.New("record: kind not valid for mode")
)

// Kind identifies a stored object.
type Kind int

const (
	KindShare Kind = iota
	KindUnbatchedTag
	KindTagPart1
	KindTagPart2
)

// String returns the object name of the kind.
func (k Kind) String() string {
	switch k {
	case KindShare:
		return "shares"
	case KindUnbatchedTag:
		return "tag_sq"
	case KindTagPart1:
		return "tag_part1"
	case KindTagPart2:
		return "tag_part2"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ItemSize returns the bytes per item.
func (k Kind) ItemSize() int {
	switch k {
	case KindShare:
		return 16
	case KindUnbatchedTag:
		return 24
	case KindTagPart1:
		return 8
	case KindTagPart2:
		return 1
	default:
		return 0
	}
}

// Kinds returns the objects stored for a dataset of the given mode.
func Kinds(batched bool) []Kind {
	if batched {
		return []Kind{KindShare, KindTagPart1, KindTagPart2}
	}
	return []Kind{KindShare, KindUnbatchedTag}
}

// Layout returns the exact object size for n items.
func Layout(kind Kind, n int) (int, error) {
	size := kind.ItemSize()
	if size == 0 {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
	return size * n, nil
}

// EncodeShares writes (x_int, x_frac) pairs.
func EncodeShares(xInt, xFrac []uint64) ([]byte, error) {
	if len(xInt) != len(xFrac) {
		return nil, fmt.Errorf("%w: %d x_int, %d x_frac", ErrSize, len(xInt), len(xFrac))
	}
	out := make([]byte, 0, len(xInt)*KindShare.ItemSize())
	for i := range xInt {
		out = binary.LittleEndian.AppendUint64(out, xInt[i])
		out = binary.LittleEndian.AppendUint64(out, xFrac[i])
	}
	return out, nil
}

// EncodeUnbatchedTags writes (z_qmskd, z_r, y_r) triples.
func EncodeUnbatchedTags(tags []mac.SingleTag, mod field.Modulus) []byte {
	out := make([]byte, 0, len(tags)*KindUnbatchedTag.ItemSize())
	for _, t := range tags {
		out = binary.LittleEndian.AppendUint64(out, t.ZQ)
		out = binary.LittleEndian.AppendUint64(out, t.ZR(mod))
		out = binary.LittleEndian.AppendUint64(out, t.YR)
	}
	return out
}

// EncodeTagPart1 writes the packed residues of an optimized tag.
func EncodeTagPart1(part1 []uint64) []byte {
	out := make([]byte, 0, len(part1)*KindTagPart1.ItemSize())
	for _, v := range part1 {
		out = binary.LittleEndian.AppendUint64(out, v)
	}
	return out
}

// EncodeTagPart2 writes the packed carry bytes of an optimized tag.
func EncodeTagPart2(part2 []byte) []byte {
	return append([]byte(nil), part2...)
}

// EncodeOptimizedTag returns the part1 and part2 objects of tag.
func EncodeOptimizedTag(tag mac.OptimizedTag) (part1, part2 []byte) {
	return EncodeTagPart1(tag.Part1), EncodeTagPart2(tag.Part2)
}
