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

import (
	"fmt"
	"strings"
)

// DatasetPrefix is the root of every dataset namespace.
const DatasetPrefix = "datasets/"

// Namespace is a view of a backend that prefixes every key. Closing a
// namespace does not close the underlying backend.
type Namespace struct {
	backend Backend
	prefix  string
}

// NewNamespace returns a view of b rooted at prefix. A trailing slash is
// added when missing.
func NewNamespace(b Backend, prefix string) *Namespace {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Namespace{backend: b, prefix: prefix}
}

// ValidateName checks that name is usable as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a separator", ErrInvalidID, name)
	}
	return nil
}

// DatasetNamespace returns the view holding the objects of dataset name.
func DatasetNamespace(b Backend, name string) (*Namespace, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return NewNamespace(b, DatasetPrefix+name), nil
}

// ListDatasets returns the names of all datasets stored in b.
func ListDatasets(b Backend) ([]string, error) {
	keys, err := b.List(DatasetPrefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for _, k := range keys {
		name, _, ok := strings.Cut(strings.TrimPrefix(k, DatasetPrefix), "/")
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Prefix returns the key prefix of the view.
func (n *Namespace) Prefix() string {
	return n.prefix
}

// Backend returns the underlying backend.
func (n *Namespace) Backend() Backend {
	return n.backend
}

func (n *Namespace) Get(key string) ([]byte, error) {
	return n.backend.Get(n.prefix + key)
}

func (n *Namespace) Put(key string, value []byte, opts *Options) error {
	return n.backend.Put(n.prefix+key, value, opts)
}

func (n *Namespace) Delete(key string) error {
	return n.backend.Delete(n.prefix + key)
}

// List returns keys relative to the namespace.
func (n *Namespace) List(prefix string) ([]string, error) {
	keys, err := n.backend.List(n.prefix + prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.prefix))
	}
	return out, nil
}

func (n *Namespace) Exists(key string) (bool, error) {
	return n.backend.Exists(n.prefix + key)
}

// Close is a no-op.
func (n *Namespace) Close() error {
	return nil
}

// GetSized reads key and returns its first size bytes. It fails with
// ErrInvalidData when fewer bytes are stored.
func GetSized(b Backend, key string, size int) ([]byte, error) {
	data, err := b.Get(key)
	if err != nil {
		return nil, fmt.Errorf("storage: get %q: %w", key, err)
	}
	if len(data) < size {
		return nil, fmt.Errorf("%w: %q holds %d bytes, expected %d", ErrInvalidData, key, len(data), size)
	}
	return data[:size], nil
}
