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
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-sharemac/internal/config"
	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
	"github.com/jeremyhahn/go-sharemac/pkg/storage/file"
	"github.com/jeremyhahn/go-sharemac/pkg/storage/s3"
)

// Components are the collaborators built from a configuration and shared
// by the CLI and the auxiliary server.
type Components struct {
	// Storage is the shared, untrusted storage holding datasets and the
	// public HE key.
	Storage storage.Backend
	// Keys is the owner's local key store under seed_dir. It is nil when
	// the components were built without owner material.
	Keys  storage.Backend
	Seeds *keyderiv.SeedSource

	ParamFile he.ParamFile
	Params    he.Params
	Modulus   field.Modulus
}

// NewLogger builds the slog adapter described by cfg.
func NewLogger(cfg config.LoggingConfig, out io.Writer) (*logger.SlogAdapter, error) {
	level, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level:  level,
		Format: cfg.Format,
		Output: out,
	}), nil
}

// NewStorageBackend creates the shared storage backend. Remote backends
// are wrapped with retries.
func NewStorageBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	var (
		b   storage.Backend
		err error
	)
	switch cfg.Backend {
	case config.BackendMemory, "":
		return storage.NewMemory(), nil
	case config.BackendFile:
		b, err = file.New(cfg.Path)
	case config.BackendS3:
		s3cfg := s3.DefaultConfig()
		s3cfg.Bucket = cfg.Bucket
		if cfg.Region != "" {
			s3cfg.Region = cfg.Region
		}
		s3cfg.Endpoint = cfg.Endpoint
		s3cfg.UsePathStyle = cfg.UsePathStyle
		b, err = s3.New(ctx, s3cfg)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend: %q", config.ErrInvalidConfig, cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", cfg.Backend, err)
	}
	if cfg.Retries == 0 {
		return b, nil
	}
	policy := storage.DefaultRetryPolicy()
	policy.MaxRetries = cfg.Retries
	return storage.WithRetry(b, policy), nil
}

// NewKeyStore opens the owner's local key directory.
func NewKeyStore(cfg config.CryptoConfig) (storage.Backend, error) {
	ks, err := file.New(cfg.SeedDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}
	return ks, nil
}

// NewSealer returns the KMS seed sealer, or nil when no KMS key is
// configured.
func NewSealer(ctx context.Context, cfg config.CryptoConfig) (keyderiv.Sealer, error) {
	if cfg.KMSKeyID == "" {
		return nil, nil
	}
	sealer, err := keyderiv.NewKMSSealer(ctx, keyderiv.KMSConfig{
		KeyID:    cfg.KMSKeyID,
		Region:   cfg.KMSRegion,
		Endpoint: cfg.KMSEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KMS sealer: %w", err)
	}
	return sealer, nil
}

// LoadParamFile reads the configured enc-param file, or the defaults.
func LoadParamFile(cfg config.CryptoConfig) (he.ParamFile, error) {
	if cfg.ParamFile == "" {
		return he.DefaultParamFile(), nil
	}
	return he.LoadParamFile(cfg.ParamFile)
}

// BuildOptions selects which components Build creates.
type BuildOptions struct {
	// Owner opens the local key store and seed source.
	Owner bool
}

// Build creates the components described by cfg.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Components, error) {
	pf, err := LoadParamFile(cfg.Crypto)
	if err != nil {
		return nil, err
	}
	params, err := pf.Params()
	if err != nil {
		return nil, err
	}
	mod, err := pf.Modulus()
	if err != nil {
		return nil, err
	}
	if err := params.CheckPrecision(mod); err != nil {
		return nil, err
	}

	c := &Components{ParamFile: pf, Params: params, Modulus: mod}
	if c.Storage, err = NewStorageBackend(ctx, cfg.Storage); err != nil {
		return nil, err
	}
	if !opts.Owner {
		return c, nil
	}

	if c.Keys, err = NewKeyStore(cfg.Crypto); err != nil {
		_ = c.Close()
		return nil, err
	}
	sealer, err := NewSealer(ctx, cfg.Crypto)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Seeds = keyderiv.NewSeedSource(c.Keys, sealer)
	return c, nil
}

// PublicContext loads the encrypt-only HE context from shared storage.
func (c *Components) PublicContext() (*he.Context, error) {
	return loadContext(c.Storage, c.Params, true)
}

// OwnerContext loads the full HE key set from the local key store.
func (c *Components) OwnerContext() (*he.Context, error) {
	if c.Keys == nil {
		return nil, fmt.Errorf("%w: no local key store", config.ErrInvalidConfig)
	}
	return loadContext(c.Keys, c.Params, false)
}

// GenerateKeys creates a fresh HE key set. The full set goes to the local
// key store and only the public key to shared storage.
func (c *Components) GenerateKeys() (*he.Context, error) {
	if c.Keys == nil {
		return nil, fmt.Errorf("%w: no local key store", config.ErrInvalidConfig)
	}
	hc, err := he.NewContext(c.Params)
	if err != nil {
		return nil, err
	}
	if err := he.SaveKeys(c.Keys, hc.Keys()); err != nil {
		return nil, err
	}
	if err := he.SaveKeys(c.Storage, &he.KeySet{Public: hc.Keys().Public}); err != nil {
		return nil, err
	}
	return hc, nil
}

func loadContext(b storage.Backend, p he.Params, publicOnly bool) (*he.Context, error) {
	params, err := he.NewParameters(p)
	if err != nil {
		return nil, err
	}
	keys, err := he.LoadKeys(b, params, publicOnly)
	if err != nil {
		return nil, err
	}
	return he.NewContextFromKeys(p, keys)
}

// Close closes every backend that was opened.
func (c *Components) Close() error {
	var errs []error
	if c.Storage != nil {
		errs = append(errs, c.Storage.Close())
	}
	if c.Keys != nil {
		errs = append(errs, c.Keys.Close())
	}
	return errors.Join(errs...)
}
