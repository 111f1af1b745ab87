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

package protocol

import (
	"context"
	"fmt"
	"runtime"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"golang.org/x/sync/errgroup"

	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/metrics"
	"github.com/jeremyhahn/go-sharemac/pkg/record"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// AuxiliaryConfig configures the auxiliary server.
type AuxiliaryConfig struct {
	Backend storage.Backend
	// Context supplies the public key. A context holding a secret key is
	// reduced to its public view.
	Context *he.Context
	Modulus field.Modulus
	// Workers bounds concurrent group encryptions; zero means GOMAXPROCS.
	Workers int
	Logger  logger.Logger
}

// Auxiliary loads stored records and encrypts them for the owner.
type Auxiliary struct {
	backend storage.Backend
	ctx     *he.Context
	mod     field.Modulus
	workers int
	log     logger.Logger
}

// NewAuxiliary returns an auxiliary server for cfg.
func NewAuxiliary(cfg AuxiliaryConfig) (*Auxiliary, error) {
	if cfg.Backend == nil || cfg.Context == nil {
		return nil, fmt.Errorf("%w: auxiliary requires a backend and an HE context", ErrConfig)
	}
	if cfg.Modulus.IsZero() {
		return nil, field.ErrNotPrime
	}
	ctx := cfg.Context
	if ctx.CanDecrypt() {
		ctx = ctx.PublicContext()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Auxiliary{
		backend: cfg.Backend,
		ctx:     ctx,
		mod:     cfg.Modulus,
		workers: workers,
		log:     logger.OrNoOp(cfg.Logger),
	}, nil
}

// Manifest returns the validated manifest of dataset.
func (a *Auxiliary) Manifest(dataset string) (*Manifest, error) {
	return LoadManifest(a.backend, dataset, a.mod)
}

// EncryptDataset encrypts every vector of dataset, one ciphertext per
// vector per group, ordered by Layout.
func (a *Auxiliary) EncryptDataset(ctx context.Context, dataset string) (*he.Bundle, error) {
	ns, err := storage.DatasetNamespace(a.backend, dataset)
	if err != nil {
		return nil, err
	}
	m, err := readManifest(ns, a.mod)
	if err != nil {
		return nil, err
	}
	if m.Slots != a.ctx.Slots() {
		return nil, fmt.Errorf("%w: dataset %s packs %d slots, context has %d",
			ErrSlotMismatch, dataset, m.Slots, a.ctx.Slots())
	}

	set, err := a.load(ns, m)
	if err != nil {
		return nil, err
	}
	bundle, err := a.encrypt(ctx, m, set)
	if err != nil {
		return nil, err
	}

	a.log.WithContext(ctx).Info("dataset encrypted",
		logger.String("dataset", dataset),
		logger.Int("items", m.InputSize),
		logger.Int("ciphertexts", bundle.Len()))
	return bundle, nil
}

// load reads and decodes every record of the dataset.
func (a *Auxiliary) load(ns *storage.Namespace, m *Manifest) (set *record.Set, err error) {
	done := metrics.Track(metrics.OpLoad)
	defer func() { done(err) }()

	set = record.NewSet(m.Batched, m.InputSize, m.Lanes())
	for _, kind := range record.Kinds(m.Batched) {
		size, err := record.Layout(kind, set.Count(kind))
		if err != nil {
			return nil, err
		}
		data, err := storage.GetSized(ns, kind.String(), size)
		if err != nil {
			return nil, err
		}
		dec, err := record.DecoderFor(kind, a.mod)
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(data, set); err != nil {
			return nil, fmt.Errorf("protocol: %s%s: %w", ns.Prefix(), kind, err)
		}
	}
	return set, nil
}

// encrypt runs one goroutine per group. Each owns a shallow copy of the
// context and writes only its own bundle positions.
func (a *Auxiliary) encrypt(ctx context.Context, m *Manifest, set *record.Set) (bundle *he.Bundle, err error) {
	done := metrics.Track(metrics.OpEncrypt)
	defer func() { done(err) }()

	layout := m.Layout()
	entries := layout.Entries()
	cts := make([]*rlwe.Ciphertext, len(entries))

	// positions per group; batched tag vectors form one extra group
	work := make([][]int, m.Groups()+1)
	for pos, e := range entries {
		g := e.Group
		if e.Tag {
			g = m.Groups()
		}
		work[g] = append(work[g], pos)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, positions := range work {
		if len(positions) == 0 {
			continue
		}
		g.Go(func() error {
			hc := a.ctx.ShallowCopy()
			for _, pos := range positions {
				if err := gctx.Err(); err != nil {
					return err
				}
				e := entries[pos]
				ct, err := hc.Encrypt(toInt64(vectorSlice(set, m, e)))
				if err != nil {
					return fmt.Errorf("protocol: encrypt %s group %d: %w", e.Name(m.Batched), e.Group, err)
				}
				cts[pos] = ct
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, e := range entries {
		metrics.RecordCiphertexts(e.Name(m.Batched), 1)
	}
	return &he.Bundle{Ciphertexts: cts}, nil
}

// vectorSlice returns the values an entry encrypts.
func vectorSlice(set *record.Set, m *Manifest, e Entry) []uint64 {
	v := set.Vectors[e.Vector]
	if e.Tag {
		return v
	}
	from := e.Group * m.Slots
	return v[from : from+keyderiv.GroupLength(m.InputSize, m.Slots, e.Group)]
}

func toInt64(src []uint64) []int64 {
	out := make([]int64, len(src))
	for i, v := range src {
		out[i] = int64(v)
	}
	return out
}
