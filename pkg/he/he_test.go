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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// testParams returns the default chain on a smaller ring.
func testParams() Params {
	p := DefaultParams()
	p.LogN = 12
	return p
}

func newTestContext(t *testing.T) *Context {
	t.Helper()
	ctx, err := NewContext(testParams())
	require.NoError(t, err)
	return ctx
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 8192, p.Slots())
	assert.Equal(t, 2, p.PrimesPerRescale())
	assert.Equal(t, 3, p.Depth())
	require.NoError(t, p.CheckPrecision(field.Default()))
}

func TestCheckPrecision(t *testing.T) {
	wide, err := field.New(1048573)
	require.NoError(t, err)

	tests := []struct {
		name    string
		params  Params
		mod     field.Modulus
		wantErr error
	}{
		{name: "default", params: DefaultParams(), mod: field.Default()},
		{name: "twenty bit prime", params: DefaultParams(), mod: wide},
		{
			name:    "scale too small",
			params:  Params{LogN: 14, LogScale: 60, LogQ: []int{60, 60, 60}, LogP: []int{61}},
			mod:     field.Default(),
			wantErr: ErrPrecision,
		},
		{
			name:    "chain too short for product",
			params:  Params{LogN: 14, LogScale: 90, LogQ: []int{60, 45, 45}, LogP: []int{61}},
			mod:     field.Default(),
			wantErr: ErrPrecision,
		},
		{
			name:    "no depth",
			params:  Params{LogN: 14, LogScale: 90, LogQ: []int{60, 45}, LogP: []int{61}},
			mod:     field.Default(),
			wantErr: ErrInsufficientDepth,
		},
		{
			name:    "bad logN",
			params:  Params{LogN: 4, LogScale: 90, LogQ: []int{60, 45, 45}, LogP: []int{61}},
			mod:     field.Default(),
			wantErr: ErrInvalidParams,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.CheckPrecision(tt.mod)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestContext_EncryptDecrypt(t *testing.T) {
	ctx := newTestContext(t)
	p := field.DefaultPrime
	cube := int64(p * p * p)

	values := []int64{12345, -7, 0, cube, -cube + 3}
	ct, err := ctx.Encrypt(values)
	require.NoError(t, err)
	assert.Equal(t, ctx.MaxLevel(), ct.Level())

	got, err := ctx.Decrypt(ct)
	require.NoError(t, err)
	require.Len(t, got, ctx.Slots())
	for i, v := range values {
		assert.InDelta(t, float64(v), got[i], 4, "slot %d", i)
	}
	for i := len(values); i < ctx.Slots(); i++ {
		assert.InDelta(t, 0, got[i], 1e-3)
	}

	_, err = ctx.Encrypt(make([]int64, ctx.Slots()+1))
	assert.ErrorIs(t, err, ErrTooManyValues)
}

func TestContext_MulPlainRescale(t *testing.T) {
	ctx := newTestContext(t)
	p := int64(field.DefaultPrime)

	ct, err := ctx.Encrypt([]int64{1, 0, 1, 5})
	require.NoError(t, err)

	out, err := ctx.MulPlainRescale(ct, []int64{p * p * p, -p * p * p, -p * p, 3})
	require.NoError(t, err)
	assert.Equal(t, ctx.MaxLevel()-2, out.Level())
	assert.Equal(t, 0, out.Scale.Cmp(ctx.Parameters().DefaultScale()))

	got, err := ctx.Decrypt(out)
	require.NoError(t, err)
	assert.InDelta(t, float64(p*p*p), got[0], 4)
	assert.InDelta(t, 0, got[1], 1e-2)
	assert.InDelta(t, float64(-p*p), got[2], 1e-2)
	assert.InDelta(t, 15, got[3], 1e-3)

	// a second multiplication keeps the scale exact
	twice, err := ctx.MulPlainRescale(out, []int64{2, 2, 2, 2})
	require.NoError(t, err)
	got, err = ctx.Decrypt(twice)
	require.NoError(t, err)
	assert.InDelta(t, 30, got[3], 1e-3)
}

func TestContext_AddSubAcrossLevels(t *testing.T) {
	ctx := newTestContext(t)

	a, err := ctx.Encrypt([]int64{10, 20})
	require.NoError(t, err)
	b, err := ctx.Encrypt([]int64{1, 2})
	require.NoError(t, err)
	b, err = ctx.MulPlainRescale(b, []int64{100, 100})
	require.NoError(t, err)

	sum, err := ctx.Add(a, b)
	require.NoError(t, err)
	assert.Equal(t, b.Level(), sum.Level())
	assert.Equal(t, ctx.MaxLevel(), a.Level(), "operands are not modified")

	diff, err := ctx.Sub(sum, a)
	require.NoError(t, err)

	shifted, err := ctx.AddPlain(diff, []int64{-100, -200})
	require.NoError(t, err)

	got, err := ctx.Decrypt(sum)
	require.NoError(t, err)
	assert.InDelta(t, 110, got[0], 1e-3)
	assert.InDelta(t, 220, got[1], 1e-3)

	got, err = ctx.Decrypt(shifted)
	require.NoError(t, err)
	assert.InDelta(t, 0, got[0], 1e-3)
	assert.InDelta(t, 0, got[1], 1e-3)
}

func TestContext_DropTo(t *testing.T) {
	ctx := newTestContext(t)
	ct, err := ctx.Encrypt([]int64{42})
	require.NoError(t, err)

	low, err := ctx.DropTo(ct, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, low.Level())
	assert.Equal(t, ctx.MaxLevel(), ct.Level())

	got, err := ctx.Decrypt(low)
	require.NoError(t, err)
	assert.InDelta(t, 42, got[0], 1e-3)

	_, err = ctx.DropTo(low, 3)
	assert.ErrorIs(t, err, ErrLevel)
}

func TestContext_SquareRelinRescale(t *testing.T) {
	ctx := newTestContext(t)
	ct, err := ctx.Encrypt([]int64{3, -4, 0})
	require.NoError(t, err)
	ct, err = ctx.MulPlainRescale(ct, []int64{1, 1, 1})
	require.NoError(t, err)

	sq, err := ctx.SquareRelinRescale(ct)
	require.NoError(t, err)
	assert.Equal(t, ct.Level()-2, sq.Level())

	got, err := ctx.Decrypt(sq)
	require.NoError(t, err)
	assert.InDelta(t, 9, got[0], 1e-3)
	assert.InDelta(t, 16, got[1], 1e-3)
	assert.InDelta(t, 0, got[2], 1e-3)

	pub := ctx.PublicContext()
	_, err = pub.SquareRelinRescale(ct)
	assert.ErrorIs(t, err, ErrNoRelinKey)
}

func TestPublicContext(t *testing.T) {
	ctx := newTestContext(t)
	pub := ctx.PublicContext()
	assert.False(t, pub.CanDecrypt())

	ct, err := pub.Encrypt([]int64{7})
	require.NoError(t, err)

	_, err = pub.Decrypt(ct)
	assert.ErrorIs(t, err, ErrNoSecretKey)

	got, err := ctx.Decrypt(ct)
	require.NoError(t, err)
	assert.InDelta(t, 7, got[0], 1e-3)
}

func TestShallowCopy(t *testing.T) {
	ctx := newTestContext(t)
	cp := ctx.ShallowCopy()

	ct, err := cp.Encrypt([]int64{99})
	require.NoError(t, err)
	got, err := ctx.Decrypt(ct)
	require.NoError(t, err)
	assert.InDelta(t, 99, got[0], 1e-3)
}

func TestBundle(t *testing.T) {
	ctx := newTestContext(t)
	var cts []*rlwe.Ciphertext
	for i := int64(0); i < 3; i++ {
		ct, err := ctx.Encrypt([]int64{i * 11})
		require.NoError(t, err)
		cts = append(cts, ct)
	}
	low, err := ctx.MulPlainRescale(cts[2], []int64{2})
	require.NoError(t, err)
	cts[2] = low

	b := &Bundle{Ciphertexts: cts}
	data, err := b.Marshal()
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())

	parsed, err := ctx.UnmarshalBundle(data)
	require.NoError(t, err)
	require.Equal(t, 3, parsed.Len())
	assert.Equal(t, low.Level(), parsed.Ciphertexts[2].Level())

	for i, want := range []float64{0, 11, 44} {
		got, err := ctx.Decrypt(parsed.Ciphertexts[i])
		require.NoError(t, err)
		assert.InDelta(t, want, got[0], 1e-3)
	}

	_, err = ctx.UnmarshalBundle(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrMalformedBundle)
	_, err = ctx.UnmarshalBundle(append(data, 0))
	assert.ErrorIs(t, err, ErrMalformedBundle)
}

func TestBlobs(t *testing.T) {
	blobs := [][]byte{[]byte("a"), {}, []byte("xyz")}
	data := PackBlobs(blobs)
	assert.Equal(t, 4+3*8+4, len(data))
	assert.Equal(t, []byte{0, 0, 0, 3}, data[:4])

	out, err := UnpackBlobs(data)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []byte("xyz"), out[2])
	assert.Empty(t, out[1])

	_, err = UnpackBlobs([]byte{0, 0})
	assert.ErrorIs(t, err, ErrMalformedBundle)
}

func TestKeys(t *testing.T) {
	ctx := newTestContext(t)

	data, err := MarshalKeys(ctx.Keys())
	require.NoError(t, err)
	ks, err := UnmarshalKeys(ctx.Parameters(), data)
	require.NoError(t, err)
	require.NotNil(t, ks.Secret)
	require.NotNil(t, ks.Relin)

	restored, err := NewContextFromKeys(testParams(), ks)
	require.NoError(t, err)
	ct, err := ctx.Encrypt([]int64{5})
	require.NoError(t, err)
	got, err := restored.Decrypt(ct)
	require.NoError(t, err)
	assert.InDelta(t, 5, got[0], 1e-3)

	backend := storage.NewMemory()
	require.NoError(t, SaveKeys(backend, ctx.Keys()))

	pubOnly, err := LoadKeys(backend, ctx.Parameters(), true)
	require.NoError(t, err)
	assert.Nil(t, pubOnly.Secret)
	assert.NotNil(t, pubOnly.Public)

	full, err := LoadKeys(backend, ctx.Parameters(), false)
	require.NoError(t, err)
	assert.NotNil(t, full.Secret)
	assert.NotNil(t, full.Relin)

	_, err = LoadKeys(storage.NewMemory(), ctx.Parameters(), true)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = NewContextFromKeys(testParams(), &KeySet{})
	assert.ErrorIs(t, err, ErrInvalidParams)
}
