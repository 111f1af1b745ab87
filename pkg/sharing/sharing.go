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

// Package sharing splits secrets in [0,p) into a blinded carry bit and a
// blinded residue, and reconstructs them either in the clear or under
// homomorphic encryption.
package sharing

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
)

var (
	// ErrValueOutOfRange is returned for secrets outside [0,p).
	ErrValueOutOfRange = errors.New("sharing: value out of range")

	// ErrBlindingOutOfRange is returned when t ∉ [0,p) or b ∉ {0,1}.
	ErrBlindingOutOfRange = errors.New("sharing: blinding out of range")

	// ErrLengthMismatch is returned when parallel vectors disagree in length.
	ErrLengthMismatch = errors.New("sharing: length mismatch")
)

// Share is the blinded encoding of one secret.
type Share struct {
	XInt  uint64
	XFrac uint64
}

// Split computes x_int = (⌊(x+t)/p⌋ + b) mod 2 and x_frac = (x+t) mod p.
func Split(x, t, b uint64, mod field.Modulus) (Share, error) {
	if x >= mod.P() {
		return Share{}, fmt.Errorf("%w: %d >= %d", ErrValueOutOfRange, x, mod.P())
	}
	if t >= mod.P() || b > 1 {
		return Share{}, fmt.Errorf("%w: t=%d b=%d", ErrBlindingOutOfRange, t, b)
	}
	k, r := mod.DivMod(x + t)
	return Share{XInt: (k + b) & 1, XFrac: r}, nil
}

// Reconstruct inverts Split: x = x_frac + p·((x_int − b) mod 2) − t.
func Reconstruct(s Share, t, b uint64, mod field.Modulus) uint64 {
	k := (s.XInt ^ b) & 1
	return s.XFrac + mod.P()*k - t
}

// Blinding is the per-item (t, b) sequence. It is re-derived on demand and
// never stored with the shares.
type Blinding struct {
	T []uint64
	B []uint64
}

// Len returns the number of items.
func (bl Blinding) Len() int {
	return len(bl.T)
}

// Slice returns items [from, to).
func (bl Blinding) Slice(from, to int) Blinding {
	return Blinding{T: bl.T[from:to], B: bl.B[from:to]}
}

// DeriveBlinding derives n blinding pairs with the HMAC deriver starting
// at index start.
func DeriveBlinding(d *keyderiv.HMACDeriver, start uint64, n int) (Blinding, error) {
	bl := Blinding{T: make([]uint64, n), B: make([]uint64, n)}
	for i := 0; i < n; i++ {
		t, b, err := d.DeriveShare(start + uint64(i))
		if err != nil {
			return Blinding{}, fmt.Errorf("sharing: derive blinding %d: %w", i, err)
		}
		bl.T[i], bl.B[i] = t, b
	}
	return bl, nil
}

// DeriveBlindingStream derives n blinding pairs from a key stream cursor.
func DeriveBlindingStream(cur *keyderiv.Cursor, n int, mod field.Modulus) (Blinding, error) {
	bl := Blinding{T: make([]uint64, n), B: make([]uint64, n)}
	for i := 0; i < n; i++ {
		t, b, err := keyderiv.DeriveShareFromStream(cur, mod)
		if err != nil {
			return Blinding{}, fmt.Errorf("sharing: derive blinding %d: %w", i, err)
		}
		bl.T[i], bl.B[i] = t, b
	}
	return bl, nil
}

// Vectors holds shares column-wise, the layout the MAC and the encryptor
// consume.
type Vectors struct {
	XInt  []uint64
	XFrac []uint64
}

// Len returns the number of shares.
func (v Vectors) Len() int {
	return len(v.XInt)
}

// Engine shares and reconstructs vectors of secrets.
type Engine struct {
	mod field.Modulus
}

// NewEngine returns an engine over mod.
func NewEngine(mod field.Modulus) *Engine {
	return &Engine{mod: mod}
}

// Modulus returns the engine's field.
func (e *Engine) Modulus() field.Modulus {
	return e.mod
}

// Apply shares values[i] with blinding pair i.
func (e *Engine) Apply(values []uint64, bl Blinding) (Vectors, error) {
	if len(values) != bl.Len() {
		return Vectors{}, fmt.Errorf("%w: %d values, %d blinding pairs", ErrLengthMismatch, len(values), bl.Len())
	}
	out := Vectors{XInt: make([]uint64, len(values)), XFrac: make([]uint64, len(values))}
	for i, x := range values {
		s, err := Split(x, bl.T[i], bl.B[i], e.mod)
		if err != nil {
			return Vectors{}, fmt.Errorf("sharing: item %d: %w", i, err)
		}
		out.XInt[i], out.XFrac[i] = s.XInt, s.XFrac
	}
	return out, nil
}

// ShareAll shares values with per-index HMAC blinding starting at index 0.
func (e *Engine) ShareAll(d *keyderiv.HMACDeriver, values []uint64) (Vectors, error) {
	bl, err := DeriveBlinding(d, 0, len(values))
	if err != nil {
		return Vectors{}, err
	}
	return e.Apply(values, bl)
}

// ShareStream shares values with blinding read from cur.
func (e *Engine) ShareStream(cur *keyderiv.Cursor, values []uint64) (Vectors, error) {
	bl, err := DeriveBlindingStream(cur, len(values), e.mod)
	if err != nil {
		return Vectors{}, err
	}
	return e.Apply(values, bl)
}

// ReconstructAll recovers the secrets in the clear.
func (e *Engine) ReconstructAll(v Vectors, bl Blinding) ([]uint64, error) {
	if v.Len() != bl.Len() || len(v.XFrac) != v.Len() {
		return nil, fmt.Errorf("%w: %d shares, %d blinding pairs", ErrLengthMismatch, v.Len(), bl.Len())
	}
	out := make([]uint64, v.Len())
	for i := range out {
		out[i] = Reconstruct(Share{XInt: v.XInt[i], XFrac: v.XFrac[i]}, bl.T[i], bl.B[i], e.mod)
	}
	return out, nil
}
