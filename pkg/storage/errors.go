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

package storage

import "errors"

var (
	// ErrClosed is returned by every operation on a closed backend.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound is returned when no object is stored under a key.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned when a write would replace an object
	// the caller asked to keep.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrInvalidID is returned for empty or unsafe keys and names.
	ErrInvalidID = errors.New("storage: invalid ID")

	// ErrInvalidData is returned when a stored object is shorter than its
	// declared layout or otherwise malformed.
	ErrInvalidData = errors.New("storage: invalid data")
)
