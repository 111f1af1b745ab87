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

import "errors"

var (
	// ErrDerivedLength is returned when a keyed hash does not produce the
	// expected block width. It is a configuration error and is never retried.
	ErrDerivedLength = errors.New("keyderiv: derivation failed - length not as expected")

	// ErrStreamExhausted is returned when a cursor is asked for more bytes
	// than the expanded stream holds. It indicates a size-accounting bug.
	ErrStreamExhausted = errors.New("keyderiv: stream exhausted")

	// ErrInvalidSeed is returned for empty seed material.
	ErrInvalidSeed = errors.New("keyderiv: invalid seed")

	// ErrInvalidLength is returned for negative or zero sizes.
	ErrInvalidLength = errors.New("keyderiv: invalid length")

	// ErrInvalidOffset is returned when seeking outside the stream.
	ErrInvalidOffset = errors.New("keyderiv: invalid offset")

	// ErrNotBatched is returned when a batched key vector is required.
	ErrNotBatched = errors.New("keyderiv: key vector has no batch extension")

	// ErrUnsupportedAlgorithm is returned for unknown passphrase KDFs.
	ErrUnsupportedAlgorithm = errors.New("keyderiv: unsupported algorithm")

	// ErrSeedNotFound is returned when a named seed is not stored.
	ErrSeedNotFound = errors.New("keyderiv: seed not found")
)
