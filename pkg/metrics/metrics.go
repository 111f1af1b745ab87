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

// Package metrics provides Prometheus instrumentation for sharing, tagging,
// encryption and verification, plus the auxiliary server's HTTP surface.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all metrics.
	Namespace = "sharemac"

	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelScheme     = "scheme"
	LabelResult     = "result"
	LabelKind       = "kind"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	StatusSuccess = "success"
	StatusError   = "error"

	ResultValid   = "valid"
	ResultInvalid = "invalid"

	SchemeUnbatched = "unbatched"
	SchemeCompact   = "compact"
	SchemeShares    = "shares"

	OpShare   = "share"
	OpMAC     = "mac"
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
	OpVerify  = "verify"
	OpStore   = "store"
	OpLoad    = "load"
	OpDerive  = "derive"
)

var (
	// OperationsTotal counts operations by name and outcome.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration observes operation latency. HE operations on
	// large datasets take seconds, so the buckets reach a minute.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of operations in seconds",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{LabelOperation},
	)

	// VerificationsTotal counts completed checks by scheme and result.
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verifications_total",
			Help:      "Total number of MAC and share checks by scheme and result",
		},
		[]string{LabelScheme, LabelResult},
	)

	// InvalidItemsTotal counts invalid lanes reported by checks.
	InvalidItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "invalid_items_total",
			Help:      "Total number of invalid items found by checks",
		},
		[]string{LabelScheme},
	)

	// CiphertextsTotal counts ciphertexts produced by the auxiliary server.
	CiphertextsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ciphertexts_total",
			Help:      "Total number of ciphertexts produced by vector kind",
		},
		[]string{LabelKind},
	)

	// ActiveConnections tracks in-flight HTTP requests.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records one operation outcome and its duration.
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// Track starts timing operation. The returned function records the
// outcome from err:
//
//	done := metrics.Track(metrics.OpEncrypt)
//	defer func() { done(err) }()
func Track(operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		status := StatusSuccess
		if err != nil {
			status = StatusError
		}
		RecordOperation(operation, status, time.Since(start).Seconds())
	}
}

// RecordVerification records a check of scheme with its invalid count.
func RecordVerification(scheme string, valid bool, invalid int) {
	if !enabled.Load() {
		return
	}
	result := ResultValid
	if !valid {
		result = ResultInvalid
	}
	VerificationsTotal.WithLabelValues(scheme, result).Inc()
	if invalid > 0 {
		InvalidItemsTotal.WithLabelValues(scheme).Add(float64(invalid))
	}
}

// RecordCiphertexts adds n ciphertexts of a vector kind.
func RecordCiphertexts(kind string, n int) {
	if !enabled.Load() {
		return
	}
	CiphertextsTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
