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
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharemac/internal/server"
	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
)

// fetchRetries bounds the attempts against a remote auxiliary server.
const fetchRetries = 3

func newEncryptCommand(a *app) *cobra.Command {
	var (
		out     string
		remote  string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "encrypt <dataset>",
		Short: "Encrypt a stored dataset into a ciphertext bundle",
		Long: `Run the auxiliary role: read the dataset's records from storage, encrypt
them under the public key and write the ciphertext bundle to a file.
With --server the bundle is fetched from a running auxiliary server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New("--out is required")
			}
			var (
				res BundleResult
				err error
			)
			if remote != "" {
				res, err = a.fetchBundle(cmd.Context(), remote, args[0], out, timeout)
			} else {
				res, err = a.encryptLocal(cmd.Context(), args[0], out)
			}
			if err != nil {
				return err
			}
			return a.printer.PrintBundle(res)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "bundle output file")
	cmd.Flags().StringVar(&remote, "server", "", "auxiliary server base URL")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout with --server")
	return cmd
}

func (a *app) encryptLocal(ctx context.Context, dataset, out string) (BundleResult, error) {
	comp, err := a.components(ctx, false)
	if err != nil {
		return BundleResult{}, err
	}
	defer func() { _ = comp.Close() }()

	pub, err := comp.PublicContext()
	if err != nil {
		return BundleResult{}, fmt.Errorf("failed to load public key: %w", err)
	}
	aux, err := protocol.NewAuxiliary(protocol.AuxiliaryConfig{
		Backend: comp.Storage,
		Context: pub,
		Modulus: comp.Modulus,
		Workers: a.cfg.Crypto.Workers,
		Logger:  a.log,
	})
	if err != nil {
		return BundleResult{}, err
	}
	bundle, err := aux.EncryptDataset(ctx, dataset)
	if err != nil {
		return BundleResult{}, err
	}

	f, err := os.Create(out)
	if err != nil {
		return BundleResult{}, err
	}
	n, err := bundle.WriteTo(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return BundleResult{}, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return BundleResult{Dataset: dataset, Path: out, Ciphertexts: bundle.Len(), Bytes: n}, nil
}

// fetchBundle downloads a bundle from an auxiliary server. Connection
// failures and 5xx responses are retried with exponential backoff.
func (a *app) fetchBundle(ctx context.Context, base, dataset, out string, timeout time.Duration) (BundleResult, error) {
	endpoint := strings.TrimRight(base, "/") + "/api/v1/datasets/" + url.PathEscape(dataset) + "/ciphertexts"
	client := &http.Client{Timeout: timeout}

	var (
		data  []byte
		count int
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := client.Do(req)
		if err != nil {
			a.log.Warn("bundle fetch failed", logger.String("url", endpoint), logger.Error(err))
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("auxiliary server returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			if resp.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}
		data = body
		count, _ = strconv.Atoi(resp.Header.Get(server.CiphertextCountHeader))
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), fetchRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return BundleResult{}, err
	}

	if err := os.WriteFile(out, data, 0644); err != nil {
		return BundleResult{}, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return BundleResult{
		Dataset:     dataset,
		Path:        out,
		Ciphertexts: count,
		Bytes:       int64(len(data)),
		Remote:      base,
	}, nil
}
