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
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharemac/internal/server"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
)

func newParamsCommand(a *app) *cobra.Command {
	var (
		initPath string
		force    bool
	)
	cmd := &cobra.Command{
		Use:   "params",
		Short: "Validate and print the encryption parameters",
		Long: `Print the encryption parameter file in use after checking that its
prime, polynomial degree and modulus chain form a usable parameter set.
With --init a file holding the default parameters is written instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if initPath != "" {
				return a.initParams(initPath, force)
			}
			pf, err := server.LoadParamFile(a.cfg.Crypto)
			if err != nil {
				return err
			}
			if err := checkParams(pf); err != nil {
				return err
			}
			return a.printer.PrintParams(pf)
		},
	}
	cmd.Flags().StringVar(&initPath, "init", "", "write the default parameter file to this path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file with --init")
	return cmd
}

func (a *app) initParams(path string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	pf := he.DefaultParamFile()
	if _, err := f.WriteString(pf.Format()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return a.printer.PrintSuccess(fmt.Sprintf("Wrote default parameters to %s", path))
}

func checkParams(pf he.ParamFile) error {
	mod, err := pf.Modulus()
	if err != nil {
		return err
	}
	p, err := pf.Params()
	if err != nil {
		return err
	}
	return p.CheckPrecision(mod)
}
