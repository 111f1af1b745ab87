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

package he

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
)

// ErrMalformedBundle is returned when a bundle cannot be parsed.
var ErrMalformedBundle = errors.New("he: malformed bundle")

// maxBlobSize bounds a single entry so a corrupt length cannot trigger a
// huge allocation.
const maxBlobSize = 1 << 30

// WriteBlobs writes a uint32 big-endian count followed by each blob as a
// uint64 big-endian length and its bytes.
func WriteBlobs(w io.Writer, blobs [][]byte) (int64, error) {
	if uint64(len(blobs)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d entries", ErrMalformedBundle, len(blobs))
	}
	var (
		hdr [8]byte
		n   int64
	)
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(blobs)))
	m, err := w.Write(hdr[:4])
	n += int64(m)
	if err != nil {
		return n, err
	}
	for _, b := range blobs {
		binary.BigEndian.PutUint64(hdr[:], uint64(len(b)))
		m, err = w.Write(hdr[:])
		n += int64(m)
		if err != nil {
			return n, err
		}
		m, err = w.Write(b)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ReadBlobs parses the WriteBlobs format.
func ReadBlobs(r io.Reader) ([][]byte, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrMalformedBundle, err)
	}
	count := binary.BigEndian.Uint32(hdr[:4])
	blobs := make([][]byte, 0, min(int(count), 1024))
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("%w: entry %d length: %v", ErrMalformedBundle, i, err)
		}
		size := binary.BigEndian.Uint64(hdr[:])
		if size > maxBlobSize {
			return nil, fmt.Errorf("%w: entry %d declares %d bytes", ErrMalformedBundle, i, size)
		}
		b := make([]byte, size)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, fmt.Errorf("%w: entry %d body: %v", ErrMalformedBundle, i, err)
		}
		blobs = append(blobs, b)
	}
	return blobs, nil
}

// PackBlobs returns the WriteBlobs encoding of blobs.
func PackBlobs(blobs [][]byte) []byte {
	var buf bytes.Buffer
	_, _ = WriteBlobs(&buf, blobs)
	return buf.Bytes()
}

// UnpackBlobs parses data and rejects trailing bytes.
func UnpackBlobs(data []byte) ([][]byte, error) {
	r := bytes.NewReader(data)
	blobs, err := ReadBlobs(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedBundle, r.Len())
	}
	return blobs, nil
}

// Bundle is an ordered list of ciphertexts shipped as one unit.
type Bundle struct {
	Ciphertexts []*rlwe.Ciphertext
}

// Len returns the number of ciphertexts.
func (b *Bundle) Len() int {
	return len(b.Ciphertexts)
}

// Marshal serializes the bundle.
func (b *Bundle) Marshal() ([]byte, error) {
	blobs := make([][]byte, len(b.Ciphertexts))
	for i, ct := range b.Ciphertexts {
		data, err := MarshalCiphertext(ct)
		if err != nil {
			return nil, fmt.Errorf("he: bundle entry %d: %w", i, err)
		}
		blobs[i] = data
	}
	return PackBlobs(blobs), nil
}

// WriteTo streams the serialized bundle to w.
func (b *Bundle) WriteTo(w io.Writer) (int64, error) {
	data, err := b.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// UnmarshalBundle parses a bundle produced under c's parameters.
func (c *Context) UnmarshalBundle(data []byte) (*Bundle, error) {
	blobs, err := UnpackBlobs(data)
	if err != nil {
		return nil, err
	}
	out := &Bundle{Ciphertexts: make([]*rlwe.Ciphertext, len(blobs))}
	for i, blob := range blobs {
		ct, err := c.UnmarshalCiphertext(blob)
		if err != nil {
			return nil, fmt.Errorf("he: bundle entry %d: %w", i, err)
		}
		out.Ciphertexts[i] = ct
	}
	return out, nil
}
