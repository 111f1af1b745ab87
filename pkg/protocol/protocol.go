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

// Package protocol wires the three parties together. The Owner shares and
// tags a dataset and uploads it; the Auxiliary server encrypts the stored
// records into a ciphertext bundle; the Verifier re-derives the keys and
// checks the bundle homomorphically.
//
// Each dataset lives under datasets/<name>/ in the storage backend:
//
//	manifest.json   upload metadata, written last
//	shares          x_int, x_frac records
//	tag_sq          unbatched tags
//	tag_part1       batched tag, packed residues
//	tag_part2       batched tag, carry bits
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// ManifestKey is the object name of a dataset's manifest.
const ManifestKey = "manifest.json"

// ManifestVersion is the manifest format written by this package.
const ManifestVersion = 1

var (
	// ErrConfig is returned for incomplete party configuration.
	ErrConfig = errors.New("protocol: invalid configuration")

	// ErrEmptyDataset is returned when uploading no values.
	ErrEmptyDataset = errors.New("protocol: empty dataset")

	// ErrManifest is returned for a missing or inconsistent manifest.
	ErrManifest = errors.New("protocol: invalid manifest")

	// ErrBundleSize is returned when a bundle does not match the dataset
	// layout.
	ErrBundleSize = errors.New("protocol: bundle size mismatch")

	// ErrSlotMismatch is returned when the HE context packs a different
	// number of slots than the dataset was tagged for.
	ErrSlotMismatch = errors.New("protocol: slot count mismatch")
)

// Manifest describes an uploaded dataset. The auxiliary server needs it
// to size the records it reads.
type Manifest struct {
	Version   int       `json:"version"`
	ID        string    `json:"id"`
	Dataset   string    `json:"dataset"`
	InputSize int       `json:"input_size"`
	Batched   bool      `json:"batched"`
	Slots     int       `json:"slots"`
	Prime     uint64    `json:"prime"`
	CreatedAt time.Time `json:"created_at"`
}

// Lanes returns the width of the batched tag vectors.
func (m *Manifest) Lanes() int {
	return min(m.InputSize, m.Slots)
}

// Groups returns the number of ciphertext groups.
func (m *Manifest) Groups() int {
	return keyderiv.NumGroups(m.InputSize, m.Slots)
}

// Layout returns the bundle layout of the dataset.
func (m *Manifest) Layout() Layout {
	return Layout{Batched: m.Batched, Groups: m.Groups()}
}

// Validate checks the manifest against the modulus in use.
func (m *Manifest) Validate(mod field.Modulus) error {
	switch {
	case m.Version != ManifestVersion:
		return fmt.Errorf("%w: version %d", ErrManifest, m.Version)
	case m.InputSize <= 0:
		return fmt.Errorf("%w: input size %d", ErrManifest, m.InputSize)
	case m.Slots <= 0:
		return fmt.Errorf("%w: slots %d", ErrManifest, m.Slots)
	case m.Prime != mod.P():
		return fmt.Errorf("%w: prime %d, expected %d", ErrManifest, m.Prime, mod.P())
	}
	return nil
}

func writeManifest(ns *storage.Namespace, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("protocol: encode manifest: %w", err)
	}
	if err := ns.Put(ManifestKey, data, storage.DefaultOptions()); err != nil {
		return fmt.Errorf("protocol: store %s%s: %w", ns.Prefix(), ManifestKey, err)
	}
	return nil
}

// LoadManifest reads and validates the manifest of dataset.
func LoadManifest(b storage.Backend, dataset string, mod field.Modulus) (*Manifest, error) {
	ns, err := storage.DatasetNamespace(b, dataset)
	if err != nil {
		return nil, err
	}
	return readManifest(ns, mod)
}

func readManifest(ns *storage.Namespace, mod field.Modulus) (*Manifest, error) {
	data, err := ns.Get(ManifestKey)
	if err != nil {
		return nil, fmt.Errorf("protocol: load %s%s: %w", ns.Prefix(), ManifestKey, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifest, err)
	}
	if err := m.Validate(mod); err != nil {
		return nil, err
	}
	return &m, nil
}
