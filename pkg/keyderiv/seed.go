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
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// Seed names under which the protocol keeps its key material.
const (
	SeedShare = "key_DS.txt"
	SeedTagSq = "key_sq.txt"
	SeedTagSr = "key_sr.txt"
)

// DefaultSeedSize is the length of generated seeds in bytes.
const DefaultSeedSize = 32

// SeedAlgorithm selects the passphrase KDF.
type SeedAlgorithm string

const (
	AlgorithmArgon2id SeedAlgorithm = "argon2id"
	AlgorithmPBKDF2   SeedAlgorithm = "pbkdf2"
)

// SeedParams controls passphrase stretching.
type SeedParams struct {
	Algorithm  SeedAlgorithm
	KeyLength  uint32
	Time       uint32
	Memory     uint32
	Threads    uint8
	Iterations int
}

// DefaultSeedParams returns Argon2id parameters suitable for interactive use.
func DefaultSeedParams() SeedParams {
	return SeedParams{
		Algorithm:  AlgorithmArgon2id,
		KeyLength:  DefaultSeedSize,
		Time:       1,
		Memory:     64 * 1024,
		Threads:    4,
		Iterations: 600000,
	}
}

// SeedFromPassphrase stretches a passphrase into seed material.
func SeedFromPassphrase(pass, salt []byte, params SeedParams) ([]byte, error) {
	if len(pass) == 0 {
		return nil, ErrInvalidSeed
	}
	if params.KeyLength == 0 {
		return nil, ErrInvalidLength
	}
	switch params.Algorithm {
	case AlgorithmArgon2id, "":
		return argon2.IDKey(pass, salt, params.Time, params.Memory, params.Threads, params.KeyLength), nil
	case AlgorithmPBKDF2:
		if params.Iterations <= 0 {
			return nil, ErrInvalidLength
		}
		return pbkdf2.Key(pass, salt, params.Iterations, int(params.KeyLength), sha256.New), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, params.Algorithm)
	}
}

// RandomSeed returns n bytes from crypto/rand.
func RandomSeed(n int) ([]byte, error) {
	if n <= 0 {
		return nil, ErrInvalidLength
	}
	seed := make([]byte, n)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("keyderiv: random seed: %w", err)
	}
	return seed, nil
}

// Sealer wraps seeds before they reach storage.
type Sealer interface {
	Seal(ctx context.Context, plaintext []byte) ([]byte, error)
	Open(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// SeedSource loads and stores named seeds in a storage backend. Seeds are
// kept hex encoded, optionally sealed first.
type SeedSource struct {
	backend storage.Backend
	sealer  Sealer
	prefix  string
}

// NewSeedSource returns a source rooted at "seeds/". A nil sealer stores
// seeds unwrapped.
func NewSeedSource(backend storage.Backend, sealer Sealer) *SeedSource {
	return &SeedSource{backend: backend, sealer: sealer, prefix: "seeds/"}
}

func (s *SeedSource) path(name string) string {
	return s.prefix + name
}

// Load returns the named seed.
func (s *SeedSource) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := s.backend.Get(s.path(name))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, name)
		}
		return nil, fmt.Errorf("keyderiv: load seed %s: %w", name, err)
	}
	raw, err := hex.DecodeString(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("keyderiv: decode seed %s: %w", name, err)
	}
	if s.sealer != nil {
		raw, err = s.sealer.Open(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("keyderiv: open seed %s: %w", name, err)
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidSeed, name)
	}
	return raw, nil
}

// Store writes the named seed, overwriting any previous value.
func (s *SeedSource) Store(ctx context.Context, name string, seed []byte) error {
	if len(seed) == 0 {
		return ErrInvalidSeed
	}
	data := seed
	if s.sealer != nil {
		var err error
		data, err = s.sealer.Seal(ctx, seed)
		if err != nil {
			return fmt.Errorf("keyderiv: seal seed %s: %w", name, err)
		}
	}
	enc := []byte(hex.EncodeToString(data) + "\n")
	if err := s.backend.Put(s.path(name), enc, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("keyderiv: store seed %s: %w", name, err)
	}
	return nil
}

// LoadOrCreate returns the named seed, generating and storing a random one
// of size bytes if none exists.
func (s *SeedSource) LoadOrCreate(ctx context.Context, name string, size int) ([]byte, error) {
	seed, err := s.Load(ctx, name)
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, ErrSeedNotFound) {
		return nil, err
	}
	seed, err = RandomSeed(size)
	if err != nil {
		return nil, err
	}
	if err := s.Store(ctx, name, seed); err != nil {
		return nil, err
	}
	return seed, nil
}
