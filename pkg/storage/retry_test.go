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
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

// flakyBackend fails the first failures calls of every operation.
type flakyBackend struct {
	Backend
	failures int32
	calls    atomic.Int32
}

func (f *flakyBackend) fail() error {
	if f.calls.Add(1) <= f.failures {
		return errTransient
	}
	return nil
}

func (f *flakyBackend) Get(key string) ([]byte, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.Backend.Get(key)
}

func (f *flakyBackend) Put(key string, value []byte, opts *Options) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Backend.Put(key, value, opts)
}

func fastPolicy(retries uint64) RetryPolicy {
	return RetryPolicy{
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestWithRetry_RecoversFromTransientErrors(t *testing.T) {
	flaky := &flakyBackend{Backend: NewMemory(), failures: 2}
	b := WithRetry(flaky, fastPolicy(3))

	require.NoError(t, b.Put("k", []byte("v"), nil))
	assert.Equal(t, int32(3), flaky.calls.Load())

	flaky.calls.Store(0)
	got, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestWithRetry_GivesUp(t *testing.T) {
	flaky := &flakyBackend{Backend: NewMemory(), failures: 10}
	b := WithRetry(flaky, fastPolicy(2))

	err := b.Put("k", []byte("v"), nil)
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestWithRetry_PermanentErrors(t *testing.T) {
	flaky := &flakyBackend{Backend: NewMemory()}
	b := WithRetry(flaky, fastPolicy(5))

	_, err := b.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int32(1), flaky.calls.Load())

	ok, err := b.Exists("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Close())
	_, err = b.List("")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, b.Delete("k"), ErrClosed)
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(ErrNotFound))
	assert.True(t, IsPermanent(ErrClosed))
	assert.True(t, IsPermanent(errors.Join(errTransient, ErrInvalidData)))
	assert.False(t, IsPermanent(errTransient))
	assert.False(t, IsPermanent(nil))
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()
	assert.Equal(t, uint64(3), p.MaxRetries)
	assert.Greater(t, p.MaxInterval, p.InitialInterval)
}
