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
	"math"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"

	"github.com/jeremyhahn/go-sharemac/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/mac"
	"github.com/jeremyhahn/go-sharemac/pkg/metrics"
	"github.com/jeremyhahn/go-sharemac/pkg/record"
	"github.com/jeremyhahn/go-sharemac/pkg/sharing"
	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

// VerifierConfig configures the owner's verification side.
type VerifierConfig struct {
	// Backend holds the dataset manifests.
	Backend storage.Backend
	Seeds   *keyderiv.SeedSource
	// Context must hold the secret key.
	Context *he.Context
	Modulus field.Modulus
	Logger  logger.Logger
}

// VerifyOptions selects the optional checks of a verification.
type VerifyOptions struct {
	// Square squares each unbatched difference before decryption.
	Square bool
	// Recombine reconstructs the encrypted secrets and decrypts them into
	// Report.Values.
	Recombine bool
	// Expected, when set, is compared against the recombined secrets.
	// It implies Recombine.
	Expected []uint64
}

// Report is the outcome of verifying one bundle.
type Report struct {
	Dataset string
	MAC     mac.Result
	// Shares is set when the recombined secrets were compared against
	// expected values.
	Shares *sharing.Report
	// Values holds the recombined secrets when requested.
	Values []uint64
}

// Valid reports whether every check that ran passed.
func (r *Report) Valid() bool {
	if !r.MAC.Valid {
		return false
	}
	return r.Shares == nil || r.Shares.Valid
}

// Verifier checks ciphertext bundles returned by the auxiliary server.
type Verifier struct {
	backend storage.Backend
	seeds   *keyderiv.SeedSource
	ctx     *he.Context
	macs    *mac.Verifier
	mod     field.Modulus
	log     logger.Logger
}

// NewVerifier returns a verifier for cfg.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if cfg.Backend == nil || cfg.Seeds == nil || cfg.Context == nil {
		return nil, fmt.Errorf("%w: verifier requires a backend, a seed source and an HE context", ErrConfig)
	}
	if !cfg.Context.CanDecrypt() {
		return nil, he.ErrNoSecretKey
	}
	if cfg.Modulus.IsZero() {
		return nil, field.ErrNotPrime
	}
	return &Verifier{
		backend: cfg.Backend,
		seeds:   cfg.Seeds,
		ctx:     cfg.Context,
		macs:    mac.NewVerifier(cfg.Context, cfg.Modulus),
		mod:     cfg.Modulus,
		log:     logger.OrNoOp(cfg.Logger),
	}, nil
}

// Verify re-derives the dataset keys from the seeds and checks bundle.
// A failed MAC is reported in the Report, not as an error.
func (v *Verifier) Verify(ctx context.Context, dataset string, bundle *he.Bundle, opts VerifyOptions) (rep *Report, err error) {
	done := metrics.Track(metrics.OpVerify)
	defer func() { done(err) }()

	m, err := LoadManifest(v.backend, dataset, v.mod)
	if err != nil {
		return nil, err
	}
	if m.Slots != v.ctx.Slots() {
		return nil, fmt.Errorf("%w: dataset %s packs %d slots, context has %d",
			ErrSlotMismatch, dataset, m.Slots, v.ctx.Slots())
	}
	if bundle == nil {
		return nil, fmt.Errorf("%w: no bundle", ErrBundleSize)
	}
	layout := m.Layout()
	if err := layout.check(bundle.Len()); err != nil {
		return nil, err
	}
	if opts.Expected != nil && len(opts.Expected) != m.InputSize {
		return nil, fmt.Errorf("%w: %d expected values for %d items",
			sharing.ErrLengthMismatch, len(opts.Expected), m.InputSize)
	}

	km, err := deriveKeys(ctx, v.seeds.Load, v.mod, m.InputSize, m.Slots, m.Batched)
	if err != nil {
		return nil, err
	}

	rep = &Report{Dataset: dataset}
	scheme := metrics.SchemeUnbatched
	if m.Batched {
		scheme = metrics.SchemeCompact
		rep.MAC, err = v.verifyCompact(m, layout, bundle.Ciphertexts, km)
	} else {
		rep.MAC, err = v.verifyUnbatched(m, layout, bundle.Ciphertexts, km, opts.Square)
	}
	if err != nil {
		return nil, err
	}
	metrics.RecordVerification(scheme, rep.MAC.Valid, rep.MAC.InvalidCount)

	if opts.Recombine || opts.Expected != nil {
		decoded, err := v.recombine(ctx, m, layout, bundle.Ciphertexts, km.blinding)
		if err != nil {
			return nil, err
		}
		rep.Values = roundValues(decoded, m.InputSize, m.Slots)
		if opts.Expected != nil {
			shares := sharing.CheckReconstruction(decoded, opts.Expected, m.Slots)
			rep.Shares = &shares
			metrics.RecordVerification(metrics.SchemeShares, shares.Valid, shares.InvalidCount)
		}
	}

	log := v.log.WithContext(ctx).With(logger.String("dataset", dataset))
	if rep.Valid() {
		log.Info("bundle verified", logger.Int("items", m.InputSize), logger.Bool("batched", m.Batched))
	} else {
		log.Warn("bundle rejected",
			logger.Int("invalid_mac", rep.MAC.InvalidCount),
			logger.Bool("truncated", rep.MAC.Truncated()))
	}
	return rep, nil
}

func (v *Verifier) verifyUnbatched(m *Manifest, layout Layout, cts []*rlwe.Ciphertext, km keyMaterial, square bool) (mac.Result, error) {
	diffs := make([]*rlwe.Ciphertext, m.Groups())
	for j := range diffs {
		from := j * m.Slots
		n := keyderiv.GroupLength(m.InputSize, m.Slots, j)
		at := func(idx record.UnbatchedIndex) *rlwe.Ciphertext {
			return cts[layout.Unbatched(j, idx)]
		}
		diff, err := v.macs.VerifyCompactUnbatched(km.unbatched.Slice(from, from+n),
			at(record.UnbatchedXInt), at(record.UnbatchedXFrac),
			mac.EncryptedSingleTag{ZQ: at(record.UnbatchedZQ), ZR: at(record.UnbatchedZR)},
			square, n)
		if err != nil {
			return mac.Result{}, fmt.Errorf("protocol: verify group %d: %w", j, err)
		}
		diffs[j] = diff
	}
	return v.decryptCheck(diffs, m, false)
}

func (v *Verifier) verifyCompact(m *Manifest, layout Layout, cts []*rlwe.Ciphertext, km keyMaterial) (mac.Result, error) {
	xInt := make([]*rlwe.Ciphertext, m.Groups())
	xFrac := make([]*rlwe.Ciphertext, m.Groups())
	for j := range xInt {
		xInt[j] = cts[layout.BatchedShare(j, record.BatchedXInt)]
		xFrac[j] = cts[layout.BatchedShare(j, record.BatchedXFrac)]
	}
	tag := mac.EncryptedCompactTag{
		Part1:    cts[layout.BatchedTag(record.BatchedTR)],
		AlphaInt: cts[layout.BatchedTag(record.BatchedAlphaInt)],
		BetaInt:  cts[layout.BatchedTag(record.BatchedBetaInt)],
	}
	diff, err := v.macs.VerifyCompact(km.schedule, xInt, xFrac, tag)
	if err != nil {
		return mac.Result{}, fmt.Errorf("protocol: verify compact: %w", err)
	}
	return v.decryptCheck([]*rlwe.Ciphertext{diff}, m, true)
}

func (v *Verifier) decryptCheck(diffs []*rlwe.Ciphertext, m *Manifest, compact bool) (res mac.Result, err error) {
	done := metrics.Track(metrics.OpDecrypt)
	defer func() { done(err) }()
	return v.macs.Check(diffs, m.InputSize, m.Slots, compact)
}

// recombine reconstructs and decrypts the secrets group by group.
func (v *Verifier) recombine(ctx context.Context, m *Manifest, layout Layout, cts []*rlwe.Ciphertext, bl sharing.Blinding) (decoded [][]float64, err error) {
	done := metrics.Track(metrics.OpDecrypt)
	defer func() { done(err) }()

	decoded = make([][]float64, m.Groups())
	for j := range decoded {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ctXInt, ctXFrac *rlwe.Ciphertext
		if m.Batched {
			ctXInt = cts[layout.BatchedShare(j, record.BatchedXInt)]
			ctXFrac = cts[layout.BatchedShare(j, record.BatchedXFrac)]
		} else {
			ctXInt = cts[layout.Unbatched(j, record.UnbatchedXInt)]
			ctXFrac = cts[layout.Unbatched(j, record.UnbatchedXFrac)]
		}
		from := j * m.Slots
		n := keyderiv.GroupLength(m.InputSize, m.Slots, j)
		ct, err := sharing.RecombineHE(v.ctx, ctXFrac, ctXInt, bl.Slice(from, from+n), v.mod)
		if err != nil {
			return nil, fmt.Errorf("protocol: recombine group %d: %w", j, err)
		}
		if decoded[j], err = v.ctx.Decrypt(ct); err != nil {
			return nil, err
		}
	}
	return decoded, nil
}

// roundValues flattens decoded groups into inputSize secrets. Negative
// noise around zero rounds to zero.
func roundValues(decoded [][]float64, inputSize, slots int) []uint64 {
	out := make([]uint64, inputSize)
	for i := range out {
		x := math.Round(decoded[i/slots][i%slots])
		if x > 0 {
			out[i] = uint64(x)
		}
	}
	return out
}
