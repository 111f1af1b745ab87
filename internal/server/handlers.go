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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/health"
	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
	"github.com/jeremyhahn/go-sharemac/pkg/record"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// DatasetListResponse lists the stored datasets.
type DatasetListResponse struct {
	Datasets []string `json:"datasets"`
}

// HealthCheckResponse is the body of the health endpoints.
type HealthCheckResponse struct {
	Status  health.Status        `json:"status"`
	Message string               `json:"message,omitempty"`
	Checks  []health.CheckResult `json:"checks,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorResponse(w http.ResponseWriter, err error, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: err.Error(), Message: message, Code: statusCode}, statusCode)
}

// statusCode maps an error to its HTTP status.
func statusCode(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrSlotMismatch):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrManifest),
		errors.Is(err, record.ErrSize),
		errors.Is(err, he.ErrTooManyValues):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	log := s.log().WithContext(r.Context()).WithError(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", logger.String("path", r.URL.Path), logger.Int("status", code))
		writeErrorResponse(w, errInternal, "", code)
		return
	}
	log.Warn("request rejected", logger.String("path", r.URL.Path), logger.Int("status", code))
	writeErrorResponse(w, err, http.StatusText(code), code)
}

// LivenessHandler handles GET /health/live.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	res := s.healthChecker.Live(r.Context())
	code := http.StatusOK
	if res.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthCheckResponse{Status: res.Status, Message: res.Message}, code)
}

// ReadinessHandler handles GET /health/ready. It probes the storage
// backend.
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	results := s.healthChecker.Ready(r.Context())
	status := health.AggregateStatus(results)
	code := http.StatusOK
	if status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthCheckResponse{Status: status, Checks: results}, code)
}

// StartupHandler handles GET /health/startup.
func (s *Server) StartupHandler(w http.ResponseWriter, r *http.Request) {
	res := s.healthChecker.Startup(r.Context())
	code := http.StatusOK
	if res.Status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthCheckResponse{Status: res.Status, Message: res.Message}, code)
}
