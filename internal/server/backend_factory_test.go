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

package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/internal/config"
	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
	"github.com/jeremyhahn/go-sharemac/pkg/storage/file"
)

func TestNewStorageBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		b, err := NewStorageBackend(ctx, config.StorageConfig{Backend: config.BackendMemory, Retries: 3})
		require.NoError(t, err)
		assert.IsType(t, &storage.MemoryBackend{}, b)
	})

	t.Run("file with retries", func(t *testing.T) {
		dir := t.TempDir()
		b, err := NewStorageBackend(ctx, config.StorageConfig{Backend: config.BackendFile, Path: dir, Retries: 2})
		require.NoError(t, err)
		defer func() { _ = b.Close() }()

		require.NoError(t, b.Put("datasets/d/shares", []byte{1}, nil))
		_, err = os.Stat(filepath.Join(dir, "datasets", "d", "shares"))
		assert.NoError(t, err)
		// retries never mask a permanent error
		_, err = b.Get("missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("file without retries", func(t *testing.T) {
		b, err := NewStorageBackend(ctx, config.StorageConfig{Backend: config.BackendFile, Path: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &file.FileStorage{}, b)
	})

	t.Run("s3 without bucket", func(t *testing.T) {
		_, err := NewStorageBackend(ctx, config.StorageConfig{Backend: config.BackendS3})
		assert.Error(t, err)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewStorageBackend(ctx, config.StorageConfig{Backend: "tape"})
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestNewSealer_Disabled(t *testing.T) {
	s, err := NewSealer(context.Background(), config.CryptoConfig{})
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestLoadParamFile(t *testing.T) {
	pf, err := LoadParamFile(config.CryptoConfig{})
	require.NoError(t, err)
	assert.Equal(t, he.DefaultParamFile(), pf)

	path := filepath.Join(t.TempDir(), "enc_params.txt")
	custom := he.DefaultParamFile()
	custom.PolyDegree = 8192
	require.NoError(t, os.WriteFile(path, []byte(custom.Format()), 0600))
	pf, err = LoadParamFile(config.CryptoConfig{ParamFile: path})
	require.NoError(t, err)
	assert.Equal(t, 8192, pf.PolyDegree)
	assert.Equal(t, 4096, pf.MaxCiphertextEntries())

	_, err = LoadParamFile(config.CryptoConfig{ParamFile: filepath.Join(t.TempDir(), "none")})
	assert.Error(t, err)
}

func TestBuild(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Backend: config.BackendFile, Path: t.TempDir()}
	cfg.Crypto.SeedDir = t.TempDir()

	t.Run("auxiliary", func(t *testing.T) {
		c, err := Build(context.Background(), cfg, BuildOptions{})
		require.NoError(t, err)
		defer func() { assert.NoError(t, c.Close()) }()

		assert.NotNil(t, c.Storage)
		assert.Nil(t, c.Keys)
		assert.Nil(t, c.Seeds)
		assert.Equal(t, field.DefaultPrime, c.Modulus.P())
		assert.Equal(t, he.DefaultParams(), c.Params)

		_, err = c.OwnerContext()
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
		_, err = c.GenerateKeys()
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
		// no keys generated yet
		_, err = c.PublicContext()
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("owner", func(t *testing.T) {
		c, err := Build(context.Background(), cfg, BuildOptions{Owner: true})
		require.NoError(t, err)
		defer func() { assert.NoError(t, c.Close()) }()

		assert.NotNil(t, c.Keys)
		require.NotNil(t, c.Seeds)
		seed, err := c.Seeds.LoadOrCreate(context.Background(), "key_DS.txt", 32)
		require.NoError(t, err)
		assert.Len(t, seed, 32)
		_, err = os.Stat(filepath.Join(cfg.Crypto.SeedDir, "seeds", "key_DS.txt"))
		assert.NoError(t, err)
	})

	t.Run("bad param file", func(t *testing.T) {
		bad := *cfg
		bad.Crypto.ParamFile = filepath.Join(t.TempDir(), "missing.txt")
		_, err := Build(context.Background(), &bad, BuildOptions{})
		assert.Error(t, err)
	})
}

func TestGenerateKeys_Split(t *testing.T) {
	comp, ownerCtx := testComponents(t)
	assert.True(t, ownerCtx.CanDecrypt())

	ok, err := comp.Storage.Exists(he.SecretKeyPath)
	require.NoError(t, err)
	assert.False(t, ok, "secret key must not reach shared storage")
	ok, err = comp.Storage.Exists(he.PublicKeyPath)
	require.NoError(t, err)
	assert.True(t, ok)

	full, err := comp.OwnerContext()
	require.NoError(t, err)
	assert.True(t, full.CanDecrypt())
	pub, err := comp.PublicContext()
	require.NoError(t, err)
	assert.False(t, pub.CanDecrypt())
}
