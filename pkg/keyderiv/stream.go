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
	"crypto/sha512"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"
)

// ChunkSize is the number of bytes produced per HKDF expansion.
const ChunkSize = sha512.Size

// Stream is an immutable, pre-expanded key stream.
type Stream struct {
	data []byte
}

// Expand derives length bytes from keyTag. Chunk i is
// HKDF-SHA512(keyTag, nil salt, info || decimal(i)); the trailing chunk is
// truncated to fit.
func Expand(keyTag, info []byte, length int) (*Stream, error) {
	if len(keyTag) == 0 {
		return nil, ErrInvalidSeed
	}
	if length <= 0 {
		return nil, ErrInvalidLength
	}

	data := make([]byte, 0, length)
	chunk := make([]byte, ChunkSize)
	for i := 0; len(data) < length; i++ {
		label := make([]byte, 0, len(info)+20)
		label = append(label, info...)
		label = strconv.AppendInt(label, int64(i), 10)

		r := hkdf.New(sha512.New, keyTag, nil, label)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, fmt.Errorf("keyderiv: expand chunk %d: %w", i, err)
		}
		n := min(ChunkSize, length-len(data))
		data = append(data, chunk[:n]...)
	}
	return &Stream{data: data}, nil
}

// Len returns the stream length in bytes.
func (s *Stream) Len() int {
	return len(s.data)
}

// Cursor returns a cursor positioned at offset zero.
func (s *Stream) Cursor() Cursor {
	return Cursor{stream: s}
}

// Cursor reads a Stream sequentially. Cursors are values: copying one
// yields an independent reader over the same bytes.
type Cursor struct {
	stream *Stream
	pos    int
}

// NextByte returns the byte under the cursor and advances it.
func (c *Cursor) NextByte() (byte, error) {
	if c.stream == nil || c.pos >= len(c.stream.data) {
		return 0, ErrStreamExhausted
	}
	b := c.stream.data[c.pos]
	c.pos++
	return b, nil
}

// Next fills dst from the stream.
func (c *Cursor) Next(dst []byte) error {
	if c.stream == nil || c.Remaining() < len(dst) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrStreamExhausted, len(dst), c.pos, c.Remaining())
	}
	copy(dst, c.stream.data[c.pos:])
	c.pos += len(dst)
	return nil
}

// Pos returns the current offset.
func (c *Cursor) Pos() int {
	return c.pos
}

// Seek moves the cursor to offset.
func (c *Cursor) Seek(offset int) error {
	if c.stream == nil || offset < 0 || offset > len(c.stream.data) {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}
	c.pos = offset
	return nil
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	if c.stream == nil {
		return 0
	}
	return len(c.stream.data) - c.pos
}
