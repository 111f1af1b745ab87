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
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// seedNames are the seeds keygen creates.
var seedNames = []string{keyderiv.SeedShare, keyderiv.SeedTagSq, keyderiv.SeedTagSr}

// passphraseEnv supplies the keygen passphrase when --passphrase is not set.
const passphraseEnv = "SHAREMAC_PASSPHRASE"

func newKeygenCommand(a *app) *cobra.Command {
	var (
		force      bool
		passphrase string
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate HE keys and MAC seeds",
		Long: `Generate a CKKS key pair and the share and MAC seeds.

The full key set and the seeds stay in the local seed directory. Only the
public key is copied to the dataset storage, where the auxiliary server
reads it. With a passphrase the seeds are derived deterministically, so
the same passphrase restores them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				passphrase = os.Getenv(passphraseEnv)
			}
			ctx := cmd.Context()
			comp, err := a.components(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = comp.Close() }()

			if !force {
				if err := checkNoKeys(cmd, comp.Keys, comp.Seeds); err != nil {
					return err
				}
			}

			hc, err := comp.GenerateKeys()
			if err != nil {
				return fmt.Errorf("failed to generate keys: %w", err)
			}
			a.log.Info("generated HE keys", logger.Int("slots", hc.Slots()))

			for _, name := range seedNames {
				seed, err := newSeed(name, passphrase)
				if err != nil {
					return err
				}
				if err := comp.Seeds.Store(ctx, name, seed); err != nil {
					return err
				}
				a.printVerbose("stored seed %s", name)
			}

			return a.printer.PrintKeygen(KeygenResult{
				SeedDir:    a.cfg.Crypto.SeedDir,
				Seeds:      seedNames,
				Passphrase: passphrase != "",
				Slots:      hc.Slots(),
				PublicKey:  a.cfg.Storage.Backend + ":" + he.PublicKeyPath,
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace existing keys and seeds")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "derive the seeds from a passphrase (env "+passphraseEnv+")")
	return cmd
}

// checkNoKeys refuses to overwrite key material.
func checkNoKeys(cmd *cobra.Command, keys storage.Backend, seeds *keyderiv.SeedSource) error {
	ok, err := keys.Exists(he.SecretKeyPath)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%w: HE keys (use --force to replace)", storage.ErrAlreadyExists)
	}
	for _, name := range seedNames {
		_, err := seeds.Load(cmd.Context(), name)
		if err == nil {
			return fmt.Errorf("%w: seed %s (use --force to replace)", storage.ErrAlreadyExists, name)
		}
		if !errors.Is(err, keyderiv.ErrSeedNotFound) {
			return err
		}
	}
	return nil
}

// newSeed returns a random seed, or one stretched from passphrase with a
// salt bound to the seed name.
func newSeed(name, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return keyderiv.RandomSeed(keyderiv.DefaultSeedSize)
	}
	return keyderiv.SeedFromPassphrase([]byte(passphrase), []byte("sharemac/"+name), keyderiv.DefaultSeedParams())
}
