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
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the exponential backoff of WithRetry.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy returns three retries starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// IsPermanent reports whether err will not go away on retry.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidData)
}

type retryBackend struct {
	next   Backend
	policy RetryPolicy
}

// WithRetry wraps b so every operation is retried on transient errors.
// Permanent errors are returned after the first attempt.
func WithRetry(b Backend, policy RetryPolicy) Backend {
	return &retryBackend{next: b, policy: policy}
}

func (r *retryBackend) backOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		bo.InitialInterval = r.policy.InitialInterval
	}
	if r.policy.MaxInterval > 0 {
		bo.MaxInterval = r.policy.MaxInterval
	}
	if r.policy.Multiplier > 0 {
		bo.Multiplier = r.policy.Multiplier
	}
	bo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(bo, r.policy.MaxRetries)
}

func (r *retryBackend) do(op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.backOff())
}

func (r *retryBackend) Get(key string) ([]byte, error) {
	var data []byte
	err := r.do(func() error {
		var err error
		data, err = r.next.Get(key)
		return err
	})
	return data, err
}

func (r *retryBackend) Put(key string, value []byte, opts *Options) error {
	return r.do(func() error {
		return r.next.Put(key, value, opts)
	})
}

func (r *retryBackend) Delete(key string) error {
	return r.do(func() error {
		return r.next.Delete(key)
	})
}

func (r *retryBackend) List(prefix string) ([]string, error) {
	var keys []string
	err := r.do(func() error {
		var err error
		keys, err = r.next.List(prefix)
		return err
	})
	return keys, err
}

func (r *retryBackend) Exists(key string) (bool, error) {
	var ok bool
	err := r.do(func() error {
		var err error
		ok, err = r.next.Exists(key)
		return err
	})
	return ok, err
}

func (r *retryBackend) Close() error {
	return r.next.Close()
}
