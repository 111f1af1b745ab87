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

// Package cli implements the sharemac command line tool.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the command tree. Output goes to out, diagnostics
// and logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	app := newApp(out, errOut)

	rootCmd := &cobra.Command{
		Use:   "sharemac",
		Short: "sharemac - verifiable secret-shared storage",
		Long: `sharemac splits a dataset into masked shares, authenticates it with
information-theoretic MACs and stores it on untrusted storage. An auxiliary
server encrypts the stored records under the owner's CKKS public key; the
owner verifies the returned ciphertexts homomorphically.

Workflow:
  sharemac keygen                 create HE keys and MAC seeds
  sharemac share <dataset>        share, tag and upload values
  sharemac encrypt <dataset>      encrypt a stored dataset into a bundle
  sharemac verify <dataset>       verify a bundle against the MAC`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load(cmd)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	app.bindFlags(rootCmd)

	rootCmd.AddCommand(newVersionCommand(app))
	rootCmd.AddCommand(newKeygenCommand(app))
	rootCmd.AddCommand(newParamsCommand(app))
	rootCmd.AddCommand(newShareCommand(app))
	rootCmd.AddCommand(newEncryptCommand(app))
	rootCmd.AddCommand(newVerifyCommand(app))
	rootCmd.AddCommand(newDatasetsCommand(app))
	rootCmd.AddCommand(newDemoCommand(app))
	return rootCmd
}

// Execute runs the CLI against os.Args and reports a failure on stderr.
func Execute() error {
	root := NewRootCommand(os.Stdout, os.Stderr)
	err := root.Execute()
	if err != nil {
		printer := NewPrinter(outputFormat(root), os.Stderr)
		_ = printer.PrintError(err)
	}
	return err
}

func outputFormat(cmd *cobra.Command) string {
	f := cmd.PersistentFlags().Lookup("output")
	if f == nil {
		return string(OutputFormatText)
	}
	return f.Value.String()
}

// printVerbose writes a diagnostic line when verbose mode is on.
func (a *app) printVerbose(format string, args ...any) {
	if a.verbose {
		fmt.Fprintf(a.errOut, "[VERBOSE] "+format+"\n", args...)
	}
}
