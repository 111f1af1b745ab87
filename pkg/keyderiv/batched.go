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

import (
	"fmt"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

// DeriveA reads count multiplier pairs from the cursor. Each pair consumes
// 2·BytesPerValue bytes with a_int and a_frac bytes interleaved,
// least significant first.
func DeriveA(cur *Cursor, count int, mod field.Modulus) (aInt, aFrac []uint64, err error) {
	if count <= 0 {
		return nil, nil, ErrInvalidLength
	}
	bpv := mod.BytesPerValue()
	buf := make([]byte, 2*bpv)
	aInt = make([]uint64, count)
	aFrac = make([]uint64, count)
	for i := 0; i < count; i++ {
		if err := cur.Next(buf); err != nil {
			return nil, nil, fmt.Errorf("keyderiv: derive a[%d]: %w", i, err)
		}
		var vi, vf uint64
		for j := bpv - 1; j >= 0; j-- {
			vi = vi<<8 | uint64(buf[2*j])
			vf = vf<<8 | uint64(buf[2*j+1])
		}
		aInt[i] = mod.Reduce(vi)
		aFrac[i] = mod.Reduce(vf)
	}
	return aInt, aFrac, nil
}

// DeriveBCD reads amount sets of batch constants starting at startOffset.
// Each set is 3·BytesPerValue interleaved bytes of b, c_alpha and c_beta
// followed by one byte holding d_alpha (bit 0) and d_beta (bit 1). The
// cursor position is restored before returning.
func DeriveBCD(cur *Cursor, amount, startOffset int, mod field.Modulus) (KeyVector, error) {
	if amount <= 0 {
		return KeyVector{}, ErrInvalidLength
	}
	saved := cur.Pos()
	defer func() { _ = cur.Seek(saved) }()

	if err := cur.Seek(startOffset); err != nil {
		return KeyVector{}, err
	}

	bpv := mod.BytesPerValue()
	buf := make([]byte, 3*bpv+1)
	kv := KeyVector{
		B:      make([]uint64, amount),
		CAlpha: make([]uint64, amount),
		DAlpha: make([]uint8, amount),
		Batch: &BatchExtension{
			CBeta: make([]uint64, amount),
			DBeta: make([]uint8, amount),
		},
	}
	for i := 0; i < amount; i++ {
		if err := cur.Next(buf); err != nil {
			return KeyVector{}, fmt.Errorf("keyderiv: derive bcd[%d]: %w", i, err)
		}
		var b, ca, cb uint64
		for j := bpv - 1; j >= 0; j-- {
			b = b<<8 | uint64(buf[3*j])
			ca = ca<<8 | uint64(buf[3*j+1])
			cb = cb<<8 | uint64(buf[3*j+2])
		}
		d := buf[3*bpv]
		kv.B[i] = mod.Reduce(b)
		kv.CAlpha[i] = mod.Reduce(ca)
		kv.Batch.CBeta[i] = mod.Reduce(cb)
		kv.DAlpha[i] = d & 1
		kv.Batch.DBeta[i] = (d >> 1) & 1
	}
	return kv, nil
}

// DeriveShareFromStream reads one (t, b) sharing pair: BytesPerValue
// little-endian bytes for t followed by one byte whose low bit is b.
func DeriveShareFromStream(cur *Cursor, mod field.Modulus) (t, b uint64, err error) {
	bpv := mod.BytesPerValue()
	buf := make([]byte, bpv+1)
	if err := cur.Next(buf); err != nil {
		return 0, 0, fmt.Errorf("keyderiv: derive share: %w", err)
	}
	return mod.Reduce(littleEndian(buf[:bpv])), uint64(buf[bpv] & 1), nil
}

// ShareStreamLength returns the stream bytes needed to share n values.
func ShareStreamLength(n, bpv int) int {
	return n * (bpv + 1)
}

// NumGroups returns ceil(inputSize/slots).
func NumGroups(inputSize, slots int) int {
	if inputSize <= 0 || slots <= 0 {
		return 0
	}
	return (inputSize + slots - 1) / slots
}

// GroupLength returns the number of items in group j. Every group but the
// last is full; the last holds inputSize mod slots, or slots when the input
// divides evenly.
func GroupLength(inputSize, slots, j int) int {
	n := NumGroups(inputSize, slots)
	if j < 0 || j >= n {
		return 0
	}
	if j < n-1 {
		return slots
	}
	if rem := inputSize % slots; rem != 0 {
		return rem
	}
	return slots
}

// ScheduleStreamLength returns the stream bytes CompactSchedule consumes.
func ScheduleStreamLength(inputSize, slots, bpv int) int {
	return constantsRegion(slots, bpv) + NumGroups(inputSize, slots)*slots*2*bpv
}

func constantsRegion(slots, bpv int) int {
	return slots * (3*bpv + 1)
}

// Schedule is the key schedule of the compact MAC. Groups[j] carries the
// multipliers of column group j; Constants carries the batch-constant
// additive and correction terms applied once per lane.
type Schedule struct {
	InputSize int
	Slots     int
	Groups    []KeyVector
	Constants KeyVector
}

// NumGroups returns the number of column groups.
func (s *Schedule) NumGroups() int {
	return len(s.Groups)
}

// Lanes returns min(InputSize, Slots).
func (s *Schedule) Lanes() int {
	return min(s.InputSize, s.Slots)
}

// GroupLength returns the declared length of group j.
func (s *Schedule) GroupLength(j int) int {
	return GroupLength(s.InputSize, s.Slots, j)
}

// Group returns group j merged with the batch constants, truncated to the
// group's length.
func (s *Schedule) Group(j int) KeyVector {
	n := s.GroupLength(j)
	c := s.Constants.Slice(0, n)
	c.AInt = cloneU64(s.Groups[j].AInt[:n])
	c.AFrac = cloneU64(s.Groups[j].AFrac[:n])
	return c
}

// CompactSchedule derives the compact MAC keys for inputSize items packed
// into slots lanes. Batch constants occupy the first slots·(3·bpv+1)
// stream bytes, followed by one slots·2·bpv multiplier region per group.
func CompactSchedule(stream *Stream, inputSize, slots int, mod field.Modulus) (*Schedule, error) {
	if inputSize <= 0 || slots <= 0 {
		return nil, ErrInvalidLength
	}
	bpv := mod.BytesPerValue()
	if need := ScheduleStreamLength(inputSize, slots, bpv); stream.Len() < need {
		return nil, fmt.Errorf("%w: schedule needs %d bytes, stream has %d",
			ErrStreamExhausted, need, stream.Len())
	}

	cur := stream.Cursor()
	lanes := min(inputSize, slots)
	constants, err := DeriveBCD(&cur, lanes, 0, mod)
	if err != nil {
		return nil, err
	}

	base := constantsRegion(slots, bpv)
	groups := make([]KeyVector, NumGroups(inputSize, slots))
	for j := range groups {
		if err := cur.Seek(base + j*slots*2*bpv); err != nil {
			return nil, err
		}
		aInt, aFrac, err := DeriveA(&cur, GroupLength(inputSize, slots, j), mod)
		if err != nil {
			return nil, fmt.Errorf("keyderiv: group %d: %w", j, err)
		}
		groups[j] = KeyVector{AInt: aInt, AFrac: aFrac}
	}

	constants.AInt = cloneU64(groups[0].AInt)
	constants.AFrac = cloneU64(groups[0].AFrac)
	return &Schedule{
		InputSize: inputSize,
		Slots:     slots,
		Groups:    groups,
		Constants: constants,
	}, nil
}
