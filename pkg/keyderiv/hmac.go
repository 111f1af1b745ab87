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
	"crypto/hmac"
	"crypto/sha256"
	"strconv"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

const (
	// LabelShare is the domain separation label for sharing parameters.
	LabelShare = "storage_test_"

	// LabelMAC is the domain separation label for MAC keys.
	LabelMAC = "storage_test_MAC_"

	// BlockSize is the width of one unbatched derivation block.
	BlockSize = sha256.Size

	// windowSize is the number of big-endian bytes read per MAC key.
	windowSize = 7
)

// HMACDeriver derives per-index key material with HMAC-SHA256. One
// 32-byte block is produced per (label, index) pair.
type HMACDeriver struct {
	seed []byte
	mod  field.Modulus
}

// NewHMACDeriver returns a deriver keyed by seed.
func NewHMACDeriver(seed []byte, mod field.Modulus) (*HMACDeriver, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	s := make([]byte, len(seed))
	copy(s, seed)
	return &HMACDeriver{seed: s, mod: mod}, nil
}

// Modulus returns the field the deriver reduces into.
func (d *HMACDeriver) Modulus() field.Modulus {
	return d.mod
}

// Block returns HMAC-SHA256(seed, label || decimal(index)).
func (d *HMACDeriver) Block(label string, index uint64) ([]byte, error) {
	h := hmac.New(sha256.New, d.seed)
	h.Write([]byte(label))
	h.Write([]byte(strconv.FormatUint(index, 10)))
	out := h.Sum(nil)
	if len(out) != BlockSize {
		return nil, ErrDerivedLength
	}
	return out, nil
}

// DeriveMAC returns unbatched MAC keys for indices [start, start+amount).
func (d *HMACDeriver) DeriveMAC(start uint64, amount int) (KeyVector, error) {
	if amount <= 0 {
		return KeyVector{}, ErrInvalidLength
	}
	kv := newKeyVector(amount, false)
	for i := 0; i < amount; i++ {
		block, err := d.Block(LabelMAC, start+uint64(i))
		if err != nil {
			return KeyVector{}, err
		}
		kv.AInt[i] = d.mod.Reduce(bigEndian(block[0:7]))
		kv.AFrac[i] = d.mod.Reduce(bigEndian(block[7:14]))
		kv.CAlpha[i] = d.mod.Reduce(bigEndian(block[14:21]))
		kv.B[i] = d.mod.Reduce(bigEndian(block[24:31]))
		kv.DAlpha[i] = block[31] % 2
	}
	return kv, nil
}

// DeriveShare returns the blinding residue t and bit b for index.
func (d *HMACDeriver) DeriveShare(index uint64) (t, b uint64, err error) {
	block, err := d.Block(LabelShare, index)
	if err != nil {
		return 0, 0, err
	}
	bpv := d.mod.BytesPerValue()
	bInit := maskedLittleEndian(block[:bpv], d.mod.Bits())
	tInit := maskedLittleEndian(block[bpv:2*bpv], d.mod.Bits())
	return tInit % d.mod.P(), bInit / d.mod.P(), nil
}

func bigEndian(b []byte) uint64 {
	var v uint64
	for _, c := range b[:windowSize] {
		v = v<<8 | uint64(c)
	}
	return v
}

func littleEndian(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// maskedLittleEndian reads b little-endian with the top byte truncated so
// the result has at most nbits bits.
func maskedLittleEndian(b []byte, nbits int) uint64 {
	top := nbits % 8
	if top == 0 {
		top = 8
	}
	buf := make([]byte, len(b))
	copy(buf, b)
	buf[len(buf)-1] &= byte(1<<top - 1)
	return littleEndian(buf)
}
