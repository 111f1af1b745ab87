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

package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, Burst: 10})
	defer limiter.Stop()

	assert.True(t, limiter.IsEnabled())
	stats := limiter.Stats()
	assert.True(t, stats.Enabled)
	assert.Equal(t, 10, stats.Burst)
	assert.InDelta(t, 60, stats.RatePerMinute, 1e-9)
}

func TestNew_Defaults(t *testing.T) {
	limiter := New(nil)
	assert.False(t, limiter.IsEnabled())
	assert.True(t, limiter.Allow("anyone"))

	limiter = New(&Config{Enabled: true, RequestsPerMinute: 30})
	defer limiter.Stop()
	assert.Equal(t, 30, limiter.Stats().Burst)
}

func TestAllow_Burst(t *testing.T) {
	// one token per hour, so nothing refills during the test
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 5, MaxIdle: time.Hour})
	defer limiter.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("client"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("client"))
	// other clients have their own bucket
	assert.True(t, limiter.Allow("other"))
}

func TestWait(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	defer limiter.Stop()

	require.NoError(t, limiter.Wait(context.Background(), "client"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx, "client"))

	disabled := New(&Config{})
	assert.NoError(t, disabled.Wait(ctx, "client"))
}

func TestCleanup(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60, MaxIdle: time.Minute})
	defer limiter.Stop()

	limiter.Allow("client-1")
	limiter.Allow("client-2")
	require.Equal(t, 2, limiter.Stats().ActiveClients)

	limiter.cleanup(time.Now())
	assert.Equal(t, 2, limiter.Stats().ActiveClients)

	limiter.cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, limiter.Stats().ActiveClients)
}

func TestStop_Idempotent(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 60})
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestMiddleware(t *testing.T) {
	limiter := New(&Config{Enabled: true, RequestsPerMinute: 1, Burst: 2})
	defer limiter.Stop()

	handler := Middleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/datasets/d/ciphertexts", nil)
		req.RemoteAddr = "192.168.1.1:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, serve().Code)
	assert.Equal(t, http.StatusOK, serve().Code)
	rr := serve()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 198.51.100.1"},
			remoteAddr: "192.168.1.1:1234",
			expected:   "203.0.113.1",
		},
		{
			name:       "X-Real-IP",
			headers:    map[string]string{"X-Real-IP": "203.0.113.2"},
			remoteAddr: "192.168.1.1:1234",
			expected:   "203.0.113.2",
		},
		{
			name:       "RemoteAddr host",
			remoteAddr: "192.168.1.1:1234",
			expected:   "192.168.1.1",
		},
		{
			name:       "RemoteAddr without port",
			remoteAddr: "192.168.1.1",
			expected:   "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(req))
		})
	}
}
