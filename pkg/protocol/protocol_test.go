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
	"context"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/record"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

var (
	testCtxOnce sync.Once
	testCtx     *he.Context
	testCtxErr  error
)

// sharedContext builds one LogN 12 context for the whole package.
func sharedContext(t *testing.T) *he.Context {
	t.Helper()
	testCtxOnce.Do(func() {
		params := he.DefaultParams()
		params.LogN = 12
		testCtx, testCtxErr = he.NewContext(params)
	})
	require.NoError(t, testCtxErr)
	return testCtx
}

type parties struct {
	backend  storage.Backend
	owner    *Owner
	aux      *Auxiliary
	verifier *Verifier
}

func newParties(t *testing.T, batched bool) *parties {
	t.Helper()
	ctx := sharedContext(t)
	mod := field.Default()
	backend := storage.NewMemory()
	seeds := keyderiv.NewSeedSource(backend, nil)

	owner, err := NewOwner(OwnerConfig{
		Backend: backend, Seeds: seeds, Modulus: mod, Slots: ctx.Slots(), Batched: batched,
	})
	require.NoError(t, err)
	aux, err := NewAuxiliary(AuxiliaryConfig{Backend: backend, Context: ctx.PublicContext(), Modulus: mod, Workers: 2})
	require.NoError(t, err)
	verifier, err := NewVerifier(VerifierConfig{Backend: backend, Seeds: seeds, Context: ctx, Modulus: mod})
	require.NoError(t, err)
	return &parties{backend: backend, owner: owner, aux: aux, verifier: verifier}
}

func randomValues(r *rand.Rand, n int, mod field.Modulus) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.Uint64N(mod.P())
	}
	return out
}

func TestLayout(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		count  int
	}{
		{"unbatched one group", Layout{Batched: false, Groups: 1}, 5},
		{"unbatched three groups", Layout{Batched: false, Groups: 3}, 15},
		{"batched one group", Layout{Batched: true, Groups: 1}, 5},
		{"batched three groups", Layout{Batched: true, Groups: 3}, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := tt.layout.Entries()
			assert.Equal(t, tt.count, tt.layout.Count())
			assert.Len(t, entries, tt.count)
			assert.NoError(t, tt.layout.check(tt.count))
			assert.ErrorIs(t, tt.layout.check(tt.count+1), ErrBundleSize)
		})
	}

	u := Layout{Groups: 3}
	assert.Equal(t, 7, u.Unbatched(1, record.UnbatchedZR))
	assert.Equal(t, Entry{Vector: int(record.UnbatchedZR), Group: 1}, u.Entries()[7])
	assert.Equal(t, "sq_zr", u.Entries()[7].Name(false))

	b := Layout{Batched: true, Groups: 3}
	assert.Equal(t, 5, b.BatchedShare(2, record.BatchedXFrac))
	assert.Equal(t, 6, b.BatchedTag(record.BatchedTR))
	assert.Equal(t, 8, b.BatchedTag(record.BatchedBetaInt))
	assert.Equal(t, Entry{Vector: int(record.BatchedAlphaInt), Tag: true}, b.Entries()[7])
	assert.Equal(t, "sr_alpha_int", b.Entries()[7].Name(true))
}

func TestManifestValidate(t *testing.T) {
	mod := field.Default()
	valid := Manifest{Version: ManifestVersion, InputSize: 10, Slots: 4, Prime: mod.P()}
	require.NoError(t, valid.Validate(mod))
	assert.Equal(t, 3, valid.Groups())
	assert.Equal(t, 4, valid.Lanes())

	tests := []struct {
		name   string
		mutate func(*Manifest)
	}{
		{"version", func(m *Manifest) { m.Version = 2 }},
		{"input size", func(m *Manifest) { m.InputSize = 0 }},
		{"slots", func(m *Manifest) { m.Slots = -1 }},
		{"prime", func(m *Manifest) { m.Prime = 7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			assert.ErrorIs(t, m.Validate(mod), ErrManifest)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, batched := range []bool{false, true} {
		name := "unbatched"
		if batched {
			name = "batched"
		}
		t.Run(name, func(t *testing.T) {
			p := newParties(t, batched)
			mod := field.Default()
			slots := sharedContext(t).Slots()
			values := randomValues(rand.New(rand.NewPCG(41, 42)), slots+100, mod)
			ctx := context.Background()

			m, err := p.owner.Upload(ctx, "readings", values, UploadOptions{})
			require.NoError(t, err)
			assert.Equal(t, batched, m.Batched)
			assert.Equal(t, 2, m.Groups())
			assert.NotEmpty(t, m.ID)

			loaded, err := p.aux.Manifest("readings")
			require.NoError(t, err)
			assert.Equal(t, m.ID, loaded.ID)

			bundle, err := p.aux.EncryptDataset(ctx, "readings")
			require.NoError(t, err)
			assert.Equal(t, m.Layout().Count(), bundle.Len())

			rep, err := p.verifier.Verify(ctx, "readings", bundle, VerifyOptions{Expected: values})
			require.NoError(t, err)
			assert.True(t, rep.MAC.Valid)
			assert.Zero(t, rep.MAC.InvalidCount)
			require.NotNil(t, rep.Shares)
			assert.True(t, rep.Shares.Valid)
			assert.True(t, rep.Valid())
			assert.Equal(t, values, rep.Values)
		})
	}
}

func TestRoundTrip_SerializedBundle(t *testing.T) {
	p := newParties(t, true)
	values := randomValues(rand.New(rand.NewPCG(43, 44)), 64, field.Default())
	ctx := context.Background()

	_, err := p.owner.Upload(ctx, "small", values, UploadOptions{})
	require.NoError(t, err)
	bundle, err := p.aux.EncryptDataset(ctx, "small")
	require.NoError(t, err)

	data, err := bundle.Marshal()
	require.NoError(t, err)
	parsed, err := sharedContext(t).UnmarshalBundle(data)
	require.NoError(t, err)

	rep, err := p.verifier.Verify(ctx, "small", parsed, VerifyOptions{})
	require.NoError(t, err)
	assert.True(t, rep.Valid())
	assert.Nil(t, rep.Shares)
	assert.Nil(t, rep.Values)
}

func TestTamperedShares(t *testing.T) {
	slots := sharedContext(t).Slots()
	target := slots + 33

	tests := []struct {
		name       string
		batched    bool
		ciphertext int
		index      int
	}{
		{"unbatched", false, 1, 33},
		{"batched", true, 0, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newParties(t, tt.batched)
			mod := field.Default()
			values := randomValues(rand.New(rand.NewPCG(45, 46)), slots+100, mod)
			ctx := context.Background()

			_, err := p.owner.Upload(ctx, "d", values, UploadOptions{})
			require.NoError(t, err)

			key := storage.DatasetPrefix + "d/" + record.KindShare.String()
			data, err := p.backend.Get(key)
			require.NoError(t, err)
			off := target*record.KindShare.ItemSize() + 8
			xFrac := binary.LittleEndian.Uint64(data[off:])
			binary.LittleEndian.PutUint64(data[off:], (xFrac+1)%mod.P())
			require.NoError(t, p.backend.Put(key, data, nil))

			bundle, err := p.aux.EncryptDataset(ctx, "d")
			require.NoError(t, err)
			rep, err := p.verifier.Verify(ctx, "d", bundle, VerifyOptions{Square: true})
			require.NoError(t, err)

			assert.False(t, rep.Valid())
			require.Equal(t, 1, rep.MAC.InvalidCount)
			assert.Equal(t, tt.ciphertext, rep.MAC.Mismatches[0].Ciphertext)
			assert.Equal(t, tt.index, rep.MAC.Mismatches[0].Index)
		})
	}
}

func TestUpload_Errors(t *testing.T) {
	p := newParties(t, false)
	ctx := context.Background()

	_, err := p.owner.Upload(ctx, "d", nil, UploadOptions{})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = p.owner.Upload(ctx, "../escape", []uint64{1}, UploadOptions{})
	assert.ErrorIs(t, err, storage.ErrInvalidID)

	_, err = p.owner.Upload(ctx, "d", []uint64{field.DefaultPrime}, UploadOptions{})
	assert.Error(t, err)

	first, err := p.owner.Upload(ctx, "d", []uint64{1, 2, 3}, UploadOptions{})
	require.NoError(t, err)
	_, err = p.owner.Upload(ctx, "d", []uint64{4}, UploadOptions{})
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	second, err := p.owner.Upload(ctx, "d", []uint64{4}, UploadOptions{Force: true})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 1, second.InputSize)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.owner.Upload(cancelled, "other", []uint64{1}, UploadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerify_Errors(t *testing.T) {
	p := newParties(t, false)
	ctx := context.Background()
	values := []uint64{10, 20, 30}

	_, err := p.owner.Upload(ctx, "d", values, UploadOptions{})
	require.NoError(t, err)
	bundle, err := p.aux.EncryptDataset(ctx, "d")
	require.NoError(t, err)

	_, err = p.verifier.Verify(ctx, "missing", bundle, VerifyOptions{})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	short := &he.Bundle{Ciphertexts: bundle.Ciphertexts[:2]}
	_, err = p.verifier.Verify(ctx, "d", short, VerifyOptions{})
	assert.ErrorIs(t, err, ErrBundleSize)

	_, err = p.verifier.Verify(ctx, "d", nil, VerifyOptions{})
	assert.ErrorIs(t, err, ErrBundleSize)

	_, err = p.verifier.Verify(ctx, "d", bundle, VerifyOptions{Expected: []uint64{1}})
	assert.Error(t, err)

	_, err = p.aux.EncryptDataset(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewParties_Errors(t *testing.T) {
	ctx := sharedContext(t)
	mod := field.Default()
	backend := storage.NewMemory()
	seeds := keyderiv.NewSeedSource(backend, nil)

	_, err := NewOwner(OwnerConfig{Seeds: seeds, Modulus: mod, Slots: 8})
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewOwner(OwnerConfig{Backend: backend, Seeds: seeds, Modulus: mod})
	assert.ErrorIs(t, err, ErrSlotMismatch)

	_, err = NewAuxiliary(AuxiliaryConfig{Backend: backend, Modulus: mod})
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewVerifier(VerifierConfig{Backend: backend, Seeds: seeds, Context: ctx.PublicContext(), Modulus: mod})
	assert.ErrorIs(t, err, he.ErrNoSecretKey)
}

func TestSlotMismatch(t *testing.T) {
	ctx := sharedContext(t)
	mod := field.Default()
	backend := storage.NewMemory()
	seeds := keyderiv.NewSeedSource(backend, nil)

	owner, err := NewOwner(OwnerConfig{Backend: backend, Seeds: seeds, Modulus: mod, Slots: 16})
	require.NoError(t, err)
	_, err = owner.Upload(context.Background(), "d", []uint64{1, 2}, UploadOptions{})
	require.NoError(t, err)

	aux, err := NewAuxiliary(AuxiliaryConfig{Backend: backend, Context: ctx, Modulus: mod})
	require.NoError(t, err)
	_, err = aux.EncryptDataset(context.Background(), "d")
	assert.ErrorIs(t, err, ErrSlotMismatch)
}
