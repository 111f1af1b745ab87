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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
)

func newShareCommand(a *app) *cobra.Command {
	var (
		input string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "share <dataset>",
		Short: "Share, tag and upload a dataset",
		Long: `Split each value of the input into masked shares, compute the MAC over
the shares and upload both to storage under the dataset name. Values are
unsigned integers below the field prime, separated by whitespace or
commas. Missing seeds are generated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := readValues(input, cmd.InOrStdin())
			if err != nil {
				return err
			}
			a.printVerbose("read %d values from %s", len(values), input)

			ctx := cmd.Context()
			comp, err := a.components(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = comp.Close() }()

			owner, err := protocol.NewOwner(protocol.OwnerConfig{
				Backend: comp.Storage,
				Seeds:   comp.Seeds,
				Modulus: comp.Modulus,
				Slots:   comp.Params.Slots(),
				Batched: a.cfg.Crypto.Batched,
				Logger:  a.log,
			})
			if err != nil {
				return err
			}
			m, err := owner.Upload(ctx, args[0], values, protocol.UploadOptions{Force: force})
			if err != nil {
				return fmt.Errorf("failed to upload %s: %w", args[0], err)
			}
			return a.printer.PrintManifest(m)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "file of values, - for stdin")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing dataset")
	return cmd
}
