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

package health

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

func healthy(ctx context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy}
}

func TestLiveAndStartup(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusHealthy, c.Live(context.Background()).Status)

	assert.False(t, c.IsStarted())
	assert.Equal(t, StatusUnhealthy, c.Startup(context.Background()).Status)

	c.MarkStarted()
	assert.True(t, c.IsStarted())
	assert.Equal(t, StatusHealthy, c.Startup(context.Background()).Status)

	c.MarkNotStarted()
	assert.False(t, c.IsStarted())
	assert.GreaterOrEqual(t, c.Uptime(), time.Duration(0))
}

func TestReady(t *testing.T) {
	c := NewChecker()

	results := c.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, "default", results[0].Name)

	c.RegisterCheck("zeta", healthy)
	c.RegisterCheck("alpha", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded, Message: "slow"}
	})
	c.RegisterCheck("ignored", nil)

	results = c.Ready(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "alpha", results[0].Name)
	assert.Equal(t, "zeta", results[1].Name)
	assert.False(t, c.IsHealthy(context.Background()))

	c.UnregisterCheck("alpha")
	assert.True(t, c.IsHealthy(context.Background()))
}

func TestReady_Timeout(t *testing.T) {
	c := NewChecker()
	c.SetTimeout(20 * time.Millisecond)
	c.SetTimeout(0)
	c.RegisterCheck("hang", func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{}
	})

	results := c.Ready(context.Background())
	require.Len(t, results, 1)
	assert.Equal(t, StatusUnhealthy, results[0].Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), results[0].Error)
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name string
		in   []Status
		want Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.in))
			for i, s := range tt.in {
				results[i] = CheckResult{Status: s}
			}
			assert.Equal(t, tt.want, AggregateStatus(results))
		})
	}
}

func TestStorageCheck(t *testing.T) {
	b := storage.NewMemory()
	check := StorageCheck("storage", b)

	result := check(context.Background())
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "storage", result.Name)

	require.NoError(t, b.Close())
	result = check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Error, storage.ErrClosed.Error())
}

func TestConcurrency(t *testing.T) {
	c := NewChecker()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.RegisterCheck("check", healthy)
			c.MarkStarted()
		}()
		go func() {
			defer wg.Done()
			_ = c.Ready(context.Background())
			_ = c.Startup(context.Background())
		}()
	}
	wg.Wait()
	assert.True(t, c.IsHealthy(context.Background()))
}
