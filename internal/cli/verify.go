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

	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
)

// ErrRejected is returned when a bundle fails verification.
var ErrRejected = errors.New("bundle rejected")

func newVerifyCommand(a *app) *cobra.Command {
	var (
		bundlePath string
		expected   string
		opts       protocol.VerifyOptions
	)
	cmd := &cobra.Command{
		Use:   "verify <dataset>",
		Short: "Verify a ciphertext bundle against the dataset MAC",
		Long: `Re-derive the dataset keys from the local seeds, evaluate the MAC over
the encrypted shares and decrypt the differences. The command fails when
any lane is invalid. --expected additionally recombines the shares and
compares them against the original values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundlePath == "" {
				return errors.New("--bundle is required")
			}
			if expected != "" {
				values, err := readValues(expected, cmd.InOrStdin())
				if err != nil {
					return err
				}
				opts.Expected = values
			}

			ctx := cmd.Context()
			comp, err := a.components(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = comp.Close() }()

			hc, err := comp.OwnerContext()
			if err != nil {
				return fmt.Errorf("failed to load secret key: %w", err)
			}
			data, err := os.ReadFile(bundlePath)
			if err != nil {
				return err
			}
			bundle, err := hc.UnmarshalBundle(data)
			if err != nil {
				return err
			}

			v, err := protocol.NewVerifier(protocol.VerifierConfig{
				Backend: comp.Storage,
				Seeds:   comp.Seeds,
				Context: hc,
				Modulus: comp.Modulus,
				Logger:  a.log,
			})
			if err != nil {
				return err
			}
			rep, err := v.Verify(ctx, args[0], bundle, opts)
			if err != nil {
				return err
			}
			if err := a.printer.PrintReport(rep); err != nil {
				return err
			}
			if !rep.Valid() {
				return fmt.Errorf("%w: %s", ErrRejected, args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "ciphertext bundle file")
	cmd.Flags().StringVar(&expected, "expected", "", "file of the original values, - for stdin")
	cmd.Flags().BoolVar(&opts.Square, "square", false, "square unbatched differences before decryption")
	cmd.Flags().BoolVar(&opts.Recombine, "recombine", false, "decrypt the recombined values")
	return cmd
}
