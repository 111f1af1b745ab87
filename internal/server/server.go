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

// Package server runs the auxiliary server: an HTTP service that encrypts
// stored datasets under the owner's public key and streams the resulting
// ciphertext bundles back.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-sharemac/internal/config"
	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/health"
	"github.com/jeremyhahn/go-sharemac/pkg/metrics"
	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
	"github.com/jeremyhahn/go-sharemac/pkg/ratelimit"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// CiphertextCountHeader carries the number of ciphertexts in a bundle
// response.
const CiphertextCountHeader = "X-Ciphertext-Count"

// collectInterval is the resource collector period.
const collectInterval = 30 * time.Second

// Options are the collaborators of a Server.
type Options struct {
	Auxiliary *protocol.Auxiliary
	// Backend is probed by the readiness check and listed by the dataset
	// index.
	Backend storage.Backend
	Logger  logger.Logger
}

// Server is the auxiliary HTTP server.
type Server struct {
	config  *config.Config
	aux     *protocol.Auxiliary
	backend storage.Backend

	mu      sync.RWMutex
	logger  logger.Logger
	limiter *ratelimit.Limiter

	healthChecker *health.Checker
	handler       http.Handler
	httpServer    *http.Server
}

// New creates a server. It does not start listening.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil || opts.Auxiliary == nil || opts.Backend == nil {
		return nil, fmt.Errorf("%w: server requires a config, an auxiliary and a backend", config.ErrInvalidConfig)
	}

	s := &Server{
		config:  cfg,
		aux:     opts.Auxiliary,
		backend: opts.Backend,
		logger:  logger.OrNoOp(opts.Logger),
		limiter: newLimiter(cfg.RateLimit),
	}

	s.healthChecker = health.NewChecker()
	if cfg.Health.CheckTimeout > 0 {
		s.healthChecker.SetTimeout(cfg.Health.CheckTimeout)
	}
	s.healthChecker.RegisterCheck("storage", health.StorageCheck("storage", opts.Backend))

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	s.handler = s.setupRouter()
	return s, nil
}

func newLimiter(cfg config.RateLimitConfig) *ratelimit.Limiter {
	return ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.Enabled,
		RequestsPerMinute: cfg.RequestsPerMin,
		Burst:             cfg.Burst,
	})
}

func (s *Server) log() logger.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

func (s *Server) rateLimiter() *ratelimit.Limiter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limiter
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// HealthChecker returns the server's health checker.
func (s *Server) HealthChecker() *health.Checker {
	return s.healthChecker
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(CorrelationMiddleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)

	if s.config.Health.Enabled {
		r.Get("/health/live", s.LivenessHandler)
		r.Get("/health/ready", s.ReadinessHandler)
		r.Get("/health/startup", s.StartupHandler)
	}
	if s.config.Metrics.Enabled {
		r.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.RateLimitMiddleware())
		r.Get("/datasets", s.ListDatasetsHandler)
		r.Get("/datasets/{name}/manifest", s.ManifestHandler)
		r.Get("/datasets/{name}/ciphertexts", s.CiphertextsHandler)
	})

	return r
}

// Start binds the listener and serves in the background. Serve errors
// other than a clean shutdown are sent on the returned channel.
func (s *Server) Start() (<-chan error, error) {
	addr := s.config.Server.Addr()
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(lis), nil
}

// Serve serves on lis in the background.
func (s *Server) Serve(lis net.Listener) <-chan error {
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.healthChecker.MarkStarted()
	s.log().Info("auxiliary server started",
		logger.String("address", lis.Addr().String()),
		logger.Bool("metrics", s.config.Metrics.Enabled),
		logger.Bool("ratelimit", s.config.RateLimit.Enabled))
	return errCh
}

// Run starts the server and blocks until ctx is done or serving fails,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	timeout := s.config.Server.ShutdownTimeout
	errCh, err := s.Start()
	if err != nil {
		return err
	}

	collectCtx, stopCollector := context.WithCancel(ctx)
	defer stopCollector()
	if s.config.Metrics.Enabled {
		go metrics.NewResourceCollector(collectInterval).Run(collectCtx)
	}

	select {
	case err := <-errCh:
		if err != nil {
			_ = s.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log().Info("shutting down auxiliary server")
	s.healthChecker.MarkNotStarted()
	s.rateLimiter().Stop()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log().Info("auxiliary server stopped")
	return nil
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM.
func SetupSignalHandler() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// ListDatasetsHandler handles GET /api/v1/datasets.
func (s *Server) ListDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	names, err := storage.ListDatasets(s.backend)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, DatasetListResponse{Datasets: names}, http.StatusOK)
}

// ManifestHandler handles GET /api/v1/datasets/{name}/manifest.
func (s *Server) ManifestHandler(w http.ResponseWriter, r *http.Request) {
	m, err := s.aux.Manifest(chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, m, http.StatusOK)
}

// CiphertextsHandler handles GET /api/v1/datasets/{name}/ciphertexts. The
// body is the size-prefixed bundle.
func (s *Server) CiphertextsHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	bundle, err := s.aux.EncryptDataset(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := bundle.Marshal()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set(CiphertextCountHeader, strconv.Itoa(bundle.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.log().WithContext(r.Context()).Warn("bundle write failed",
			logger.String("dataset", name), logger.Error(err))
	}
}
