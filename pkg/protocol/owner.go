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
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/mac"
	"github.com/jeremyhahn/go-sharemac/pkg/metrics"
	"github.com/jeremyhahn/go-sharemac/pkg/record"
	"github.com/jeremyhahn/go-sharemac/pkg/sharing"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// OwnerConfig configures a data owner.
type OwnerConfig struct {
	// Backend receives the dataset records.
	Backend storage.Backend
	// Seeds holds the owner's key seeds. Missing seeds are generated on
	// first upload.
	Seeds   *keyderiv.SeedSource
	Modulus field.Modulus
	// Slots is the HE slot count the tags are batched for.
	Slots   int
	Batched bool
	Logger  logger.Logger
}

// UploadOptions controls a single upload.
type UploadOptions struct {
	// Force replaces an existing dataset of the same name.
	Force bool
}

// Owner shares, tags and uploads datasets.
type Owner struct {
	backend storage.Backend
	seeds   *keyderiv.SeedSource
	engine  *sharing.Engine
	mod     field.Modulus
	slots   int
	batched bool
	log     logger.Logger
}

// NewOwner returns an owner for cfg.
func NewOwner(cfg OwnerConfig) (*Owner, error) {
	if cfg.Backend == nil || cfg.Seeds == nil {
		return nil, fmt.Errorf("%w: owner requires a backend and a seed source", ErrConfig)
	}
	if cfg.Modulus.IsZero() {
		return nil, field.ErrNotPrime
	}
	if cfg.Slots <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrSlotMismatch, cfg.Slots)
	}
	return &Owner{
		backend: cfg.Backend,
		seeds:   cfg.Seeds,
		engine:  sharing.NewEngine(cfg.Modulus),
		mod:     cfg.Modulus,
		slots:   cfg.Slots,
		batched: cfg.Batched,
		log:     logger.OrNoOp(cfg.Logger),
	}, nil
}

func (o *Owner) loadSeed(ctx context.Context, name string) ([]byte, error) {
	return o.seeds.LoadOrCreate(ctx, name, keyderiv.DefaultSeedSize)
}

// Upload shares values, computes their MAC and writes the dataset. An
// existing dataset is refused with storage.ErrAlreadyExists unless
// opts.Force is set.
func (o *Owner) Upload(ctx context.Context, dataset string, values []uint64, opts UploadOptions) (*Manifest, error) {
	if len(values) == 0 {
		return nil, ErrEmptyDataset
	}
	ns, err := storage.DatasetNamespace(o.backend, dataset)
	if err != nil {
		return nil, err
	}
	exists, err := ns.Exists(ManifestKey)
	if err != nil {
		return nil, fmt.Errorf("protocol: check %s: %w", dataset, err)
	}
	if exists && !opts.Force {
		return nil, fmt.Errorf("%w: dataset %s", storage.ErrAlreadyExists, dataset)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log := o.log.WithContext(ctx).With(logger.String("dataset", dataset))
	n := len(values)

	km, err := deriveKeys(ctx, o.loadSeed, o.mod, n, o.slots, o.batched)
	if err != nil {
		return nil, err
	}

	shares, err := o.share(values, km.blinding)
	if err != nil {
		return nil, err
	}

	objects, err := o.tag(shares, km)
	if err != nil {
		return nil, err
	}
	shareData, err := record.EncodeShares(shares.XInt, shares.XFrac)
	if err != nil {
		return nil, err
	}
	objects[record.KindShare] = shareData

	m := &Manifest{
		Version:   ManifestVersion,
		ID:        uuid.NewString(),
		Dataset:   dataset,
		InputSize: n,
		Batched:   o.batched,
		Slots:     o.slots,
		Prime:     o.mod.P(),
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store(ns, objects, m); err != nil {
		return nil, err
	}

	log.Info("dataset uploaded",
		logger.String("id", m.ID),
		logger.Int("items", n),
		logger.Bool("batched", o.batched),
		logger.Int("groups", m.Groups()))
	return m, nil
}

func (o *Owner) share(values []uint64, bl sharing.Blinding) (v sharing.Vectors, err error) {
	done := metrics.Track(metrics.OpShare)
	defer func() { done(err) }()
	return o.engine.Apply(values, bl)
}

// tag returns the encoded tag objects of the dataset.
func (o *Owner) tag(shares sharing.Vectors, km keyMaterial) (objects map[record.Kind][]byte, err error) {
	done := metrics.Track(metrics.OpMAC)
	defer func() { done(err) }()

	if !o.batched {
		tags, err := mac.SingleTags(km.unbatched, shares.XInt, shares.XFrac, o.mod)
		if err != nil {
			return nil, err
		}
		return map[record.Kind][]byte{
			record.KindUnbatchedTag: record.EncodeUnbatchedTags(tags, o.mod),
		}, nil
	}

	tag, err := mac.Compact(km.schedule, shares.XInt, shares.XFrac, o.mod)
	if err != nil {
		return nil, err
	}
	part1, part2 := record.EncodeOptimizedTag(tag.Optimized(o.mod))
	return map[record.Kind][]byte{
		record.KindTagPart1: part1,
		record.KindTagPart2: part2,
	}, nil
}

// store writes the records and then the manifest, so a dataset without a
// manifest is an incomplete upload.
func (o *Owner) store(ns *storage.Namespace, objects map[record.Kind][]byte, m *Manifest) (err error) {
	done := metrics.Track(metrics.OpStore)
	defer func() { done(err) }()

	for _, kind := range record.Kinds(o.batched) {
		key := kind.String()
		if err := ns.Put(key, objects[kind], storage.DefaultOptions()); err != nil {
			return fmt.Errorf("protocol: store %s%s: %w", ns.Prefix(), key, err)
		}
	}
	return writeManifest(ns, m)
}
