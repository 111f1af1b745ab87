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

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-sharemac/internal/config"
	"github.com/jeremyhahn/go-sharemac/internal/server"
	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "sharemac/skip-config"

// Viper keys bound to persistent flags. Keys mirror the YAML layout.
const (
	keyConfig      = "config"
	keyOutput      = "output"
	keyVerbose     = "verbose"
	keyLogLevel    = "logging.level"
	keyStorage     = "storage.backend"
	keyStoragePath = "storage.path"
	keyBucket      = "storage.bucket"
	keyEndpoint    = "storage.endpoint"
	keySeedDir     = "crypto.seed_dir"
	keyParamFile   = "crypto.param_file"
	keyKMSKeyID    = "crypto.kms_key_id"
	keyBatched     = "crypto.batched"
)

// app is the state shared by every command of one invocation.
type app struct {
	out    io.Writer
	errOut io.Writer
	v      *viper.Viper

	cfg     *config.Config
	printer *Printer
	log     logger.Logger
	verbose bool
}

func newApp(out, errOut io.Writer) *app {
	return &app{
		out:     out,
		errOut:  errOut,
		v:       viper.New(),
		printer: NewPrinter(string(OutputFormatText), out),
		log:     logger.NoOp{},
	}
}

func (a *app) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "config file (env SHAREMAC_CONFIG)")
	flags.StringP("output", "o", string(OutputFormatText), "output format (text, json)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("storage", "", "storage backend (memory, file, s3)")
	flags.String("storage-path", "", "root directory of the file storage backend")
	flags.String("bucket", "", "bucket of the s3 storage backend")
	flags.String("endpoint", "", "endpoint of an S3-compatible server")
	flags.String("seed-dir", "", "local directory holding seeds and HE keys")
	flags.String("param-file", "", "encryption parameter file")
	flags.String("kms-key-id", "", "AWS KMS key wrapping the seeds")
	flags.Bool("batched", true, "use the compact batched MAC")

	bind := map[string]string{
		keyConfig:      "config",
		keyOutput:      "output",
		keyVerbose:     "verbose",
		keyLogLevel:    "log-level",
		keyStorage:     "storage",
		keyStoragePath: "storage-path",
		keyBucket:      "bucket",
		keyEndpoint:    "endpoint",
		keySeedDir:     "seed-dir",
		keyParamFile:   "param-file",
		keyKMSKeyID:    "kms-key-id",
		keyBatched:     "batched",
	}
	for key, name := range bind {
		// the flag names are declared above, so binding cannot fail
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}
	_ = a.v.BindEnv(keyConfig, config.EnvPrefix+"CONFIG")
}

// load resolves the configuration: defaults, then the config file, then
// SHAREMAC_* variables, then explicitly set flags.
func (a *app) load(cmd *cobra.Command) error {
	a.verbose = a.v.GetBool(keyVerbose)
	format := a.v.GetString(keyOutput)
	switch OutputFormat(format) {
	case OutputFormatText, OutputFormatJSON:
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
	a.printer = NewPrinter(format, a.out)

	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}

	path := a.v.GetString(keyConfig)
	cfg, err := config.Read(path)
	if err != nil {
		return err
	}
	a.applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.Logging
	if a.verbose {
		logCfg.Level = "debug"
	}
	l, err := server.NewLogger(logCfg, a.errOut)
	if err != nil {
		return err
	}
	a.log = l
	a.printVerbose("config: %q storage: %s seed_dir: %s batched: %t",
		path, cfg.Storage.Backend, cfg.Crypto.SeedDir, cfg.Crypto.Batched)
	return nil
}

// applyFlags copies flags the user set onto cfg. Unset flags leave the
// file and environment values alone.
func (a *app) applyFlags(cfg *config.Config) {
	strs := map[string]*string{
		keyLogLevel:    &cfg.Logging.Level,
		keyStorage:     &cfg.Storage.Backend,
		keyStoragePath: &cfg.Storage.Path,
		keyBucket:      &cfg.Storage.Bucket,
		keyEndpoint:    &cfg.Storage.Endpoint,
		keySeedDir:     &cfg.Crypto.SeedDir,
		keyParamFile:   &cfg.Crypto.ParamFile,
		keyKMSKeyID:    &cfg.Crypto.KMSKeyID,
	}
	for key, dst := range strs {
		if a.v.IsSet(key) {
			*dst = a.v.GetString(key)
		}
	}
	if a.v.IsSet(keyBatched) {
		cfg.Crypto.Batched = a.v.GetBool(keyBatched)
	}
}

// components builds the storage, key and parameter collaborators.
func (a *app) components(ctx context.Context, owner bool) (*server.Components, error) {
	c, err := server.Build(ctx, a.cfg, server.BuildOptions{Owner: owner})
	if err != nil {
		return nil, err
	}
	a.printVerbose("parameters: prime %d, %d slots", c.Modulus.P(), c.Params.Slots())
	return c, nil
}
