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

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/metrics"
	"github.com/jeremyhahn/go-sharemac/pkg/sharing"
)

// MACSeedName returns the seed that keys the MAC of a dataset: key_sr.txt
// for the batched tag, key_sq.txt otherwise.
func MACSeedName(batched bool) string {
	if batched {
		return keyderiv.SeedTagSr
	}
	return keyderiv.SeedTagSq
}

// keyMaterial is everything an owner re-derives from its seeds for one
// dataset.
type keyMaterial struct {
	blinding  sharing.Blinding
	unbatched keyderiv.KeyVector
	schedule  *keyderiv.Schedule
}

type seedLoader func(ctx context.Context, name string) ([]byte, error)

// deriveKeys derives the blinding and MAC keys for n items. Unbatched
// datasets use the per-index HMAC deriver; batched datasets read HKDF
// streams.
func deriveKeys(ctx context.Context, load seedLoader, mod field.Modulus, n, slots int, batched bool) (km keyMaterial, err error) {
	done := metrics.Track(metrics.OpDerive)
	defer func() { done(err) }()

	shareSeed, err := load(ctx, keyderiv.SeedShare)
	if err != nil {
		return keyMaterial{}, err
	}
	macSeed, err := load(ctx, MACSeedName(batched))
	if err != nil {
		return keyMaterial{}, err
	}

	if !batched {
		shareKeys, err := keyderiv.NewHMACDeriver(shareSeed, mod)
		if err != nil {
			return keyMaterial{}, err
		}
		if km.blinding, err = sharing.DeriveBlinding(shareKeys, 0, n); err != nil {
			return keyMaterial{}, err
		}
		macKeys, err := keyderiv.NewHMACDeriver(macSeed, mod)
		if err != nil {
			return keyMaterial{}, err
		}
		if km.unbatched, err = macKeys.DeriveMAC(0, n); err != nil {
			return keyMaterial{}, fmt.Errorf("protocol: derive mac keys: %w", err)
		}
		return km, nil
	}

	bpv := mod.BytesPerValue()
	shareStream, err := keyderiv.Expand(shareSeed, []byte(keyderiv.LabelShare), keyderiv.ShareStreamLength(n, bpv))
	if err != nil {
		return keyMaterial{}, fmt.Errorf("protocol: share stream: %w", err)
	}
	cur := shareStream.Cursor()
	if km.blinding, err = sharing.DeriveBlindingStream(&cur, n, mod); err != nil {
		return keyMaterial{}, err
	}
	macStream, err := keyderiv.Expand(macSeed, []byte(keyderiv.LabelMAC), keyderiv.ScheduleStreamLength(n, slots, bpv))
	if err != nil {
		return keyMaterial{}, fmt.Errorf("protocol: mac stream: %w", err)
	}
	if km.schedule, err = keyderiv.CompactSchedule(macStream, n, slots, mod); err != nil {
		return keyMaterial{}, fmt.Errorf("protocol: mac schedule: %w", err)
	}
	return km, nil
}
