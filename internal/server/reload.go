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
	"fmt"
	"io"

	"github.com/jeremyhahn/go-sharemac/internal/config"
	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
)

// Reload applies the logging and rate limit sections of cfg without a
// restart. Storage, crypto and listener changes need a restart.
func (s *Server) Reload(cfg *config.Config, logOut io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.config
	// notices go to the logger in effect when the reload began so a
	// stricter new level cannot hide them
	prev := s.logger
	if cfg.Logging != old.Logging {
		l, err := NewLogger(cfg.Logging, logOut)
		if err != nil {
			return fmt.Errorf("failed to reload logging configuration: %w", err)
		}
		prev.Info("logging configuration updated",
			logger.String("level", cfg.Logging.Level),
			logger.String("format", cfg.Logging.Format))
		s.logger = l
	}

	if cfg.RateLimit != old.RateLimit {
		s.limiter.Stop()
		s.limiter = newLimiter(cfg.RateLimit)
		prev.Info("rate limit updated",
			logger.Bool("enabled", cfg.RateLimit.Enabled),
			logger.Int("requests_per_min", cfg.RateLimit.RequestsPerMin),
			logger.Int("burst", cfg.RateLimit.Burst))
	}

	next := *old
	next.Logging = cfg.Logging
	next.RateLimit = cfg.RateLimit
	s.config = &next
	return nil
}
