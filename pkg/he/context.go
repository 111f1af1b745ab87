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

// Package he wraps lattigo's CKKS scheme with the level and scale
// bookkeeping the share and MAC verifiers rely on. Every encoded value is
// an exact integer; plaintexts are encoded through a 128-bit FFT so values
// up to p³ survive encoding without rounding.
package he

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"
)

var (
	// ErrNoSecretKey is returned when decrypting with a public context.
	ErrNoSecretKey = errors.New("he: context has no secret key")

	// ErrNoRelinKey is returned when squaring without a relinearization key.
	ErrNoRelinKey = errors.New("he: context has no relinearization key")

	// ErrTooManyValues is returned when a vector exceeds the slot count.
	ErrTooManyValues = errors.New("he: vector longer than slot count")

	// ErrLevel is returned for unreachable target levels.
	ErrLevel = errors.New("he: invalid level")
)

// Context holds the parameters, keys and evaluators of one CKKS instance.
// A Context is not safe for concurrent use; ShallowCopy one per goroutine.
type Context struct {
	params    ckks.Parameters
	keys      *KeySet
	encoder   *ckks.Encoder
	encryptor *rlwe.Encryptor
	decryptor *rlwe.Decryptor
	evaluator *ckks.Evaluator
}

// NewParameters instantiates the lattigo parameters for p.
func NewParameters(p Params) (ckks.Parameters, error) {
	if err := p.Validate(); err != nil {
		return ckks.Parameters{}, err
	}
	params, err := ckks.NewParametersFromLiteral(p.Literal())
	if err != nil {
		return ckks.Parameters{}, fmt.Errorf("he: parameters: %w", err)
	}
	return params, nil
}

// NewContext generates a fresh key set for p.
func NewContext(p Params) (*Context, error) {
	params, err := NewParameters(p)
	if err != nil {
		return nil, err
	}
	kgen := rlwe.NewKeyGenerator(params)
	sk, pk := kgen.GenKeyPairNew()
	rlk := kgen.GenRelinearizationKeyNew(sk)
	return newContext(params, &KeySet{Secret: sk, Public: pk, Relin: rlk})
}

// NewContextFromKeys builds a context around an existing key set. A key
// set without a secret key yields an encrypt-only context.
func NewContextFromKeys(p Params, keys *KeySet) (*Context, error) {
	if keys == nil || keys.Public == nil {
		return nil, fmt.Errorf("%w: public key required", ErrInvalidParams)
	}
	params, err := NewParameters(p)
	if err != nil {
		return nil, err
	}
	return newContext(params, keys)
}

func newContext(params ckks.Parameters, keys *KeySet) (*Context, error) {
	c := &Context{
		params:    params,
		keys:      keys,
		encoder:   ckks.NewEncoder(params, EncoderPrecision),
		encryptor: rlwe.NewEncryptor(params, keys.Public),
	}
	if keys.Secret != nil {
		c.decryptor = rlwe.NewDecryptor(params, keys.Secret)
	}
	var evk rlwe.EvaluationKeySet
	if keys.Relin != nil {
		evk = rlwe.NewMemEvaluationKeySet(keys.Relin)
	}
	c.evaluator = ckks.NewEvaluator(params, evk)
	return c, nil
}

// PublicContext returns an encrypt-only view sharing c's public key.
func (c *Context) PublicContext() *Context {
	pub := &KeySet{Public: c.keys.Public}
	out, _ := newContext(c.params, pub)
	return out
}

// ShallowCopy returns a context sharing read-only state with c but owning
// its own encoder, encryptor, decryptor and evaluator buffers.
func (c *Context) ShallowCopy() *Context {
	out := &Context{
		params:    c.params,
		keys:      c.keys,
		encoder:   c.encoder.ShallowCopy(),
		encryptor: c.encryptor.ShallowCopy(),
		evaluator: c.evaluator.ShallowCopy(),
	}
	if c.decryptor != nil {
		out.decryptor = c.decryptor.ShallowCopy()
	}
	return out
}

// Parameters returns the lattigo parameters.
func (c *Context) Parameters() ckks.Parameters { return c.params }

// Keys returns the key set.
func (c *Context) Keys() *KeySet { return c.keys }

// Slots returns the number of values per ciphertext.
func (c *Context) Slots() int { return c.params.MaxSlots() }

// MaxLevel returns the level of fresh ciphertexts.
func (c *Context) MaxLevel() int { return c.params.MaxLevel() }

// CanDecrypt reports whether the context holds a secret key.
func (c *Context) CanDecrypt() bool { return c.decryptor != nil }

// Encode encodes values at level with the default scale.
func (c *Context) Encode(values []int64, level int) (*rlwe.Plaintext, error) {
	return c.EncodeAtScale(values, level, c.params.DefaultScale())
}

// EncodeAtScale encodes values at level and scale. Unused slots are zero.
func (c *Context) EncodeAtScale(values []int64, level int, scale rlwe.Scale) (*rlwe.Plaintext, error) {
	if len(values) > c.Slots() {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyValues, len(values), c.Slots())
	}
	if level < 0 || level > c.MaxLevel() {
		return nil, fmt.Errorf("%w: %d", ErrLevel, level)
	}
	vec := make([]*big.Float, c.Slots())
	for i := range vec {
		vec[i] = new(big.Float).SetPrec(EncoderPrecision)
		if i < len(values) {
			vec[i].SetInt64(values[i])
		}
	}
	pt := ckks.NewPlaintext(c.params, level)
	pt.Scale = scale
	if err := c.encoder.Encode(vec, pt); err != nil {
		return nil, fmt.Errorf("he: encode: %w", err)
	}
	return pt, nil
}

// Encrypt encodes and encrypts values at the maximum level.
func (c *Context) Encrypt(values []int64) (*rlwe.Ciphertext, error) {
	pt, err := c.Encode(values, c.MaxLevel())
	if err != nil {
		return nil, err
	}
	ct, err := c.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("he: encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt decrypts and decodes ct into one float per slot.
func (c *Context) Decrypt(ct *rlwe.Ciphertext) ([]float64, error) {
	if c.decryptor == nil {
		return nil, ErrNoSecretKey
	}
	pt := c.decryptor.DecryptNew(ct)
	out := make([]float64, c.Slots())
	if err := c.encoder.Decode(pt, out); err != nil {
		return nil, fmt.Errorf("he: decode: %w", err)
	}
	return out, nil
}

// MulPlainRescale multiplies ct by an integer vector and rescales. The
// plaintext scale is chosen so the rescaled product lands exactly on the
// default scale.
func (c *Context) MulPlainRescale(ct *rlwe.Ciphertext, values []int64) (*rlwe.Ciphertext, error) {
	if ct.Level() < c.params.LevelsConsumedPerRescaling() {
		return nil, fmt.Errorf("%w: level %d cannot be rescaled", ErrLevel, ct.Level())
	}
	scale := c.params.GetOptimalScalingFactor(ct.Scale, c.params.DefaultScale(), ct.Level())
	pt, err := c.EncodeAtScale(values, ct.Level(), scale)
	if err != nil {
		return nil, err
	}
	out, err := c.evaluator.MulNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("he: mul plain: %w", err)
	}
	if err := c.evaluator.Rescale(out, out); err != nil {
		return nil, fmt.Errorf("he: rescale: %w", err)
	}
	out.Scale = c.params.DefaultScale()
	return out, nil
}

// AddPlain adds an integer vector encoded at ct's level and scale.
func (c *Context) AddPlain(ct *rlwe.Ciphertext, values []int64) (*rlwe.Ciphertext, error) {
	pt, err := c.EncodeAtScale(values, ct.Level(), ct.Scale)
	if err != nil {
		return nil, err
	}
	out, err := c.evaluator.AddNew(ct, pt)
	if err != nil {
		return nil, fmt.Errorf("he: add plain: %w", err)
	}
	return out, nil
}

// Add returns a+b after dropping the higher operand to the lower level.
func (c *Context) Add(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	a, b = c.match(a, b)
	out, err := c.evaluator.AddNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("he: add: %w", err)
	}
	return out, nil
}

// Sub returns a-b after level matching.
func (c *Context) Sub(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	a, b = c.match(a, b)
	out, err := c.evaluator.SubNew(a, b)
	if err != nil {
		return nil, fmt.Errorf("he: sub: %w", err)
	}
	return out, nil
}

func (c *Context) match(a, b *rlwe.Ciphertext) (*rlwe.Ciphertext, *rlwe.Ciphertext) {
	switch {
	case a.Level() > b.Level():
		a, _ = c.DropTo(a, b.Level())
	case b.Level() > a.Level():
		b, _ = c.DropTo(b, a.Level())
	}
	return a, b
}

// DropTo returns a copy of ct mod-switched down to level.
func (c *Context) DropTo(ct *rlwe.Ciphertext, level int) (*rlwe.Ciphertext, error) {
	if level < 0 || level > ct.Level() {
		return nil, fmt.Errorf("%w: cannot drop %d to %d", ErrLevel, ct.Level(), level)
	}
	out := ct.CopyNew()
	if d := out.Level() - level; d > 0 {
		c.evaluator.DropLevel(out, d)
	}
	return out, nil
}

// SquareRelinRescale returns ct², relinearized and rescaled. The result
// keeps its true scale.
func (c *Context) SquareRelinRescale(ct *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
	if c.keys.Relin == nil {
		return nil, ErrNoRelinKey
	}
	if ct.Level() < c.params.LevelsConsumedPerRescaling() {
		return nil, fmt.Errorf("%w: level %d cannot be rescaled", ErrLevel, ct.Level())
	}
	out, err := c.evaluator.MulRelinNew(ct, ct)
	if err != nil {
		return nil, fmt.Errorf("he: square: %w", err)
	}
	if err := c.evaluator.Rescale(out, out); err != nil {
		return nil, fmt.Errorf("he: rescale: %w", err)
	}
	return out, nil
}

// MarshalCiphertext serializes ct.
func MarshalCiphertext(ct *rlwe.Ciphertext) ([]byte, error) {
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("he: marshal ciphertext: %w", err)
	}
	return data, nil
}

// UnmarshalCiphertext deserializes a ciphertext produced under c's parameters.
func (c *Context) UnmarshalCiphertext(data []byte) (*rlwe.Ciphertext, error) {
	ct := rlwe.NewCiphertext(c.params, 1, c.MaxLevel())
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("he: unmarshal ciphertext: %w", err)
	}
	return ct, nil
}
