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

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeremyhahn/go-sharemac/internal/config"
	"github.com/jeremyhahn/go-sharemac/internal/server"
	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "/etc/sharemac/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sharemac auxiliary server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv(config.EnvPrefix + "CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	if err := run(*configPath); err != nil {
		slog.Error("Auxiliary server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := server.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	log.Info("starting auxiliary server",
		logger.String("config", configPath),
		logger.String("version", version),
		logger.String("storage", cfg.Storage.Backend))

	ctx, stop := server.SetupSignalHandler()
	defer stop()

	comp, err := server.Build(ctx, cfg, server.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = comp.Close() }()

	pub, err := comp.PublicContext()
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}
	aux, err := protocol.NewAuxiliary(protocol.AuxiliaryConfig{
		Backend: comp.Storage,
		Context: pub,
		Modulus: comp.Modulus,
		Workers: cfg.Crypto.Workers,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Options{Auxiliary: aux, Backend: comp.Storage, Logger: log})
	if err != nil {
		return err
	}

	go reloadOnHangup(ctx, srv, configPath, log)

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("auxiliary server stopped successfully")
	return nil
}

// reloadOnHangup re-reads the configuration on SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, srv *server.Server, configPath string, log logger.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Error("reload failed", logger.Error(err))
				continue
			}
			if err := srv.Reload(cfg, os.Stderr); err != nil {
				log.Error("reload failed", logger.Error(err))
			}
		}
	}
}
