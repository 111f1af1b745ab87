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

package record

import (
	"encoding/binary"
	"fmt"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

// UnbatchedIndex orders the vectors of an unbatched dataset.
type UnbatchedIndex int

const (
	UnbatchedXInt UnbatchedIndex = iota
	UnbatchedXFrac
	UnbatchedZR
	UnbatchedYR
	UnbatchedZQ
	NumUnbatched
)

var unbatchedNames = [...]string{"x_int", "x_frac", "sq_zr", "sq_yr", "sq_zq"}

func (i UnbatchedIndex) String() string {
	if i < 0 || i >= NumUnbatched {
		return fmt.Sprintf("unbatched(%d)", int(i))
	}
	return unbatchedNames[i]
}

// BatchedIndex orders the vectors of a batched dataset.
type BatchedIndex int

const (
	BatchedXInt BatchedIndex = iota
	BatchedXFrac
	BatchedTR
	BatchedAlphaInt
	BatchedBetaInt
	NumBatched
)

var batchedNames = [...]string{"x_int", "x_frac", "sq_tr", "sr_alpha_int", "sr_beta_int"}

func (i BatchedIndex) String() string {
	if i < 0 || i >= NumBatched {
		return fmt.Sprintf("batched(%d)", int(i))
	}
	return batchedNames[i]
}

// Set holds the plaintext vectors of one dataset, indexed by
// UnbatchedIndex or BatchedIndex.
type Set struct {
	Batched bool
	// Items is the number of shares; tag vectors of compact datasets hold
	// Lanes entries.
	Items   int
	Lanes   int
	Vectors [][]uint64
}

// NewSet allocates the vectors of a dataset. lanes is ignored for
// unbatched sets.
func NewSet(batched bool, items, lanes int) *Set {
	n := int(NumUnbatched)
	if batched {
		n = int(NumBatched)
	}
	s := &Set{Batched: batched, Items: items, Lanes: lanes, Vectors: make([][]uint64, n)}
	for i := range s.Vectors {
		size := items
		if batched && i >= int(BatchedTR) {
			size = lanes
		}
		s.Vectors[i] = make([]uint64, size)
	}
	if !batched {
		s.Lanes = items
	}
	return s
}

// Len returns the number of vectors.
func (s *Set) Len() int {
	return len(s.Vectors)
}

// Count returns the items a kind holds in this set.
func (s *Set) Count(kind Kind) int {
	switch kind {
	case KindTagPart1, KindTagPart2:
		return s.Lanes
	default:
		return s.Items
	}
}

// Decoder parses one stored object into a Set.
type Decoder interface {
	Kind() Kind
	Decode(data []byte, dst *Set) error
}

// DecoderFor returns the decoding strategy for kind.
func DecoderFor(kind Kind, mod field.Modulus) (Decoder, error) {
	switch kind {
	case KindShare:
		return shareDecoder{}, nil
	case KindUnbatchedTag:
		return unbatchedTagDecoder{}, nil
	case KindTagPart1:
		return part1Decoder{}, nil
	case KindTagPart2:
		return part2Decoder{cube: mod.Cube(), square: mod.Square()}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
	}
}

func checkSize(kind Kind, data []byte, n int) error {
	want, err := Layout(kind, n)
	if err != nil {
		return err
	}
	if len(data) != want {
		return fmt.Errorf("%w: %s holds %d bytes, layout is %d", ErrSize, kind, len(data), want)
	}
	return nil
}

type shareDecoder struct{}

func (shareDecoder) Kind() Kind { return KindShare }

// X_INT and X_FRAC share their positions in both index orders.
func (shareDecoder) Decode(data []byte, dst *Set) error {
	if err := checkSize(KindShare, data, dst.Items); err != nil {
		return err
	}
	xInt, xFrac := dst.Vectors[BatchedXInt], dst.Vectors[BatchedXFrac]
	for i := 0; i < dst.Items; i++ {
		off := i * 16
		xInt[i] = binary.LittleEndian.Uint64(data[off:])
		xFrac[i] = binary.LittleEndian.Uint64(data[off+8:])
	}
	return nil
}

type unbatchedTagDecoder struct{}

func (unbatchedTagDecoder) Kind() Kind { return KindUnbatchedTag }

func (unbatchedTagDecoder) Decode(data []byte, dst *Set) error {
	if dst.Batched {
		return fmt.Errorf("%w: %s in batched set", ErrWrongMode, KindUnbatchedTag)
	}
	if err := checkSize(KindUnbatchedTag, data, dst.Items); err != nil {
		return err
	}
	zq, zr, yr := dst.Vectors[UnbatchedZQ], dst.Vectors[UnbatchedZR], dst.Vectors[UnbatchedYR]
	for i := 0; i < dst.Items; i++ {
		off := i * 24
		zq[i] = binary.LittleEndian.Uint64(data[off:])
		zr[i] = binary.LittleEndian.Uint64(data[off+8:])
		yr[i] = binary.LittleEndian.Uint64(data[off+16:])
	}
	return nil
}

type part1Decoder struct{}

func (part1Decoder) Kind() Kind { return KindTagPart1 }

func (part1Decoder) Decode(data []byte, dst *Set) error {
	if !dst.Batched {
		return fmt.Errorf("%w: %s in unbatched set", ErrWrongMode, KindTagPart1)
	}
	if err := checkSize(KindTagPart1, data, dst.Lanes); err != nil {
		return err
	}
	tr := dst.Vectors[BatchedTR]
	for i := 0; i < dst.Lanes; i++ {
		tr[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return nil
}

// part2Decoder unpacks the carry byte and lifts each bit to the power of
// p it is weighted by in the tag equation.
type part2Decoder struct {
	cube, square uint64
}

func (part2Decoder) Kind() Kind { return KindTagPart2 }

func (d part2Decoder) Decode(data []byte, dst *Set) error {
	if !dst.Batched {
		return fmt.Errorf("%w: %s in unbatched set", ErrWrongMode, KindTagPart2)
	}
	if err := checkSize(KindTagPart2, data, dst.Lanes); err != nil {
		return err
	}
	alpha, beta := dst.Vectors[BatchedAlphaInt], dst.Vectors[BatchedBetaInt]
	for i, b := range data {
		alpha[i] = uint64((b>>1)&1) * d.cube
		beta[i] = uint64(b&1) * d.square
	}
	return nil
}
