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
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharemac/internal/server"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
	"github.com/jeremyhahn/go-sharemac/pkg/record"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

const demoDataset = "demo"

// demoOptions controls one in-memory protocol run.
type demoOptions struct {
	Size    int
	Batched bool
	Tamper  bool
	Square  bool
}

func newDemoCommand(a *app) *cobra.Command {
	var opts demoOptions
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full protocol in memory on random data",
		Long: `Generate keys, share and tag random values, encrypt them as the
auxiliary server would and verify the bundle, all in memory. The MAC
scheme follows --batched. --tamper
corrupts one stored share before encryption; the run then succeeds only
if the verifier rejects the bundle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Batched = a.cfg.Crypto.Batched
			rep, err := a.runDemo(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := a.printer.PrintReport(rep); err != nil {
				return err
			}
			if rep.Valid() == opts.Tamper {
				return fmt.Errorf("%w: unexpected outcome (tampered=%t)", ErrRejected, opts.Tamper)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Size, "size", 100, "number of random values")
	cmd.Flags().BoolVar(&opts.Tamper, "tamper", false, "corrupt a share before encryption")
	cmd.Flags().BoolVar(&opts.Square, "square", false, "square unbatched differences")
	return cmd
}

func (a *app) runDemo(ctx context.Context, opts demoOptions) (*protocol.Report, error) {
	if opts.Size <= 0 {
		return nil, errors.New("--size must be positive")
	}
	pf, err := server.LoadParamFile(a.cfg.Crypto)
	if err != nil {
		return nil, err
	}
	params, err := pf.Params()
	if err != nil {
		return nil, err
	}
	mod, err := pf.Modulus()
	if err != nil {
		return nil, err
	}
	if err := params.CheckPrecision(mod); err != nil {
		return nil, err
	}

	keys := storage.NewMemory()
	comp := &server.Components{
		Storage:   storage.NewMemory(),
		Keys:      keys,
		Seeds:     keyderiv.NewSeedSource(keys, nil),
		ParamFile: pf,
		Params:    params,
		Modulus:   mod,
	}
	defer func() { _ = comp.Close() }()

	a.printVerbose("generating keys: %d slots", params.Slots())
	ownerCtx, err := comp.GenerateKeys()
	if err != nil {
		return nil, err
	}
	pub, err := comp.PublicContext()
	if err != nil {
		return nil, err
	}

	values := make([]uint64, opts.Size)
	for i := range values {
		values[i] = rand.Uint64N(mod.P())
	}

	owner, err := protocol.NewOwner(protocol.OwnerConfig{
		Backend: comp.Storage, Seeds: comp.Seeds, Modulus: mod,
		Slots: params.Slots(), Batched: opts.Batched, Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	if _, err := owner.Upload(ctx, demoDataset, values, protocol.UploadOptions{}); err != nil {
		return nil, err
	}
	if opts.Tamper {
		if err := tamperShare(comp.Storage, demoDataset, mod.P()); err != nil {
			return nil, err
		}
		a.printVerbose("tampered with item 0")
	}

	aux, err := protocol.NewAuxiliary(protocol.AuxiliaryConfig{
		Backend: comp.Storage, Context: pub, Modulus: mod,
		Workers: a.cfg.Crypto.Workers, Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	bundle, err := aux.EncryptDataset(ctx, demoDataset)
	if err != nil {
		return nil, err
	}
	a.printVerbose("encrypted %d ciphertexts", bundle.Len())

	v, err := protocol.NewVerifier(protocol.VerifierConfig{
		Backend: comp.Storage, Seeds: comp.Seeds, Context: ownerCtx,
		Modulus: mod, Logger: a.log,
	})
	if err != nil {
		return nil, err
	}
	expected := values
	if opts.Tamper {
		expected = nil
	}
	return v.Verify(ctx, demoDataset, bundle, protocol.VerifyOptions{Square: opts.Square, Expected: expected})
}

// tamperShare shifts the x_frac share of item 0 by one.
func tamperShare(b storage.Backend, dataset string, p uint64) error {
	key := storage.DatasetPrefix + dataset + "/" + record.KindShare.String()
	data, err := b.Get(key)
	if err != nil {
		return err
	}
	if len(data) < record.KindShare.ItemSize() {
		return fmt.Errorf("%w: share record too short", record.ErrSize)
	}
	xFrac := binary.LittleEndian.Uint64(data[8:])
	binary.LittleEndian.PutUint64(data[8:], (xFrac+1)%p)
	return b.Put(key, data, nil)
}
