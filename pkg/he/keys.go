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
	"errors"
	"fmt"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/ckks"

	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// Storage keys of the HE key set.
const (
	PublicKeyPath = "he/public.key"
	SecretKeyPath = "he/secret.key"
	RelinKeyPath  = "he/relin.key"
)

// KeySet holds the CKKS keys. Secret and Relin are nil for the auxiliary
// server, which only encrypts.
type KeySet struct {
	Secret *rlwe.SecretKey
	Public *rlwe.PublicKey
	Relin  *rlwe.RelinearizationKey
}

// MarshalKeys serializes ks as a three-entry blob list (secret, public,
// relin); missing keys are empty entries.
func MarshalKeys(ks *KeySet) ([]byte, error) {
	blobs := make([][]byte, 3)
	var err error
	if ks.Secret != nil {
		if blobs[0], err = ks.Secret.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("he: marshal secret key: %w", err)
		}
	}
	if ks.Public != nil {
		if blobs[1], err = ks.Public.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("he: marshal public key: %w", err)
		}
	}
	if ks.Relin != nil {
		if blobs[2], err = ks.Relin.MarshalBinary(); err != nil {
			return nil, fmt.Errorf("he: marshal relinearization key: %w", err)
		}
	}
	return PackBlobs(blobs), nil
}

// UnmarshalKeys parses the MarshalKeys format.
func UnmarshalKeys(params ckks.Parameters, data []byte) (*KeySet, error) {
	blobs, err := UnpackBlobs(data)
	if err != nil {
		return nil, err
	}
	if len(blobs) != 3 {
		return nil, fmt.Errorf("%w: key set has %d entries", ErrMalformedBundle, len(blobs))
	}
	return decodeKeys(params, blobs[0], blobs[1], blobs[2])
}

func decodeKeys(params ckks.Parameters, sk, pk, rlk []byte) (*KeySet, error) {
	ks := &KeySet{}
	if len(sk) > 0 {
		ks.Secret = rlwe.NewSecretKey(params)
		if err := ks.Secret.UnmarshalBinary(sk); err != nil {
			return nil, fmt.Errorf("he: unmarshal secret key: %w", err)
		}
	}
	if len(pk) > 0 {
		ks.Public = rlwe.NewPublicKey(params)
		if err := ks.Public.UnmarshalBinary(pk); err != nil {
			return nil, fmt.Errorf("he: unmarshal public key: %w", err)
		}
	}
	if len(rlk) > 0 {
		ks.Relin = rlwe.NewRelinearizationKey(params)
		if err := ks.Relin.UnmarshalBinary(rlk); err != nil {
			return nil, fmt.Errorf("he: unmarshal relinearization key: %w", err)
		}
	}
	return ks, nil
}

// SaveKeys writes each present key under its storage path.
func SaveKeys(backend storage.Backend, ks *KeySet) error {
	put := func(path string, m interface{ MarshalBinary() ([]byte, error) }) error {
		data, err := m.MarshalBinary()
		if err != nil {
			return fmt.Errorf("he: marshal %s: %w", path, err)
		}
		if err := backend.Put(path, data, storage.DefaultOptions()); err != nil {
			return fmt.Errorf("he: store %s: %w", path, err)
		}
		return nil
	}
	if ks.Public == nil {
		return fmt.Errorf("%w: public key required", ErrInvalidParams)
	}
	if err := put(PublicKeyPath, ks.Public); err != nil {
		return err
	}
	if ks.Secret != nil {
		if err := put(SecretKeyPath, ks.Secret); err != nil {
			return err
		}
	}
	if ks.Relin != nil {
		if err := put(RelinKeyPath, ks.Relin); err != nil {
			return err
		}
	}
	return nil
}

// LoadKeys reads the key set. With publicOnly set the secret and
// relinearization keys are not read.
func LoadKeys(backend storage.Backend, params ckks.Parameters, publicOnly bool) (*KeySet, error) {
	get := func(path string, required bool) ([]byte, error) {
		data, err := backend.Get(path)
		if err != nil {
			if !required && errors.Is(err, storage.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("he: load %s: %w", path, err)
		}
		return data, nil
	}

	pk, err := get(PublicKeyPath, true)
	if err != nil {
		return nil, err
	}
	if publicOnly {
		return decodeKeys(params, nil, pk, nil)
	}
	sk, err := get(SecretKeyPath, true)
	if err != nil {
		return nil, err
	}
	rlk, err := get(RelinKeyPath, false)
	if err != nil {
		return nil, err
	}
	return decodeKeys(params, sk, pk, rlk)
}
