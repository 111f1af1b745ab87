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

package mac

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
	"github.com/jeremyhahn/go-sharemac/pkg/keyderiv"
	"github.com/jeremyhahn/go-sharemac/pkg/sharing"
)

var (
	shareSeed = []byte("mac-test-share-seed-0123456789ab")
	tagSeed   = []byte("mac-test-tag-seed-0123456789abcd")
)

func randomValues(r *rand.Rand, n int, mod field.Modulus) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = r.Uint64N(mod.P())
	}
	return out
}

func shareHMAC(t *testing.T, values []uint64, mod field.Modulus) sharing.Vectors {
	t.Helper()
	d, err := keyderiv.NewHMACDeriver(shareSeed, mod)
	require.NoError(t, err)
	v, err := sharing.NewEngine(mod).ShareAll(d, values)
	require.NoError(t, err)
	return v
}

func unbatchedKeys(t *testing.T, n int, mod field.Modulus) keyderiv.KeyVector {
	t.Helper()
	d, err := keyderiv.NewHMACDeriver(tagSeed, mod)
	require.NoError(t, err)
	kv, err := d.DeriveMAC(0, n)
	require.NoError(t, err)
	return kv
}

func schedule(t *testing.T, inputSize, slots int, mod field.Modulus) *keyderiv.Schedule {
	t.Helper()
	s, err := keyderiv.Expand(tagSeed, []byte(keyderiv.LabelMAC),
		keyderiv.ScheduleStreamLength(inputSize, slots, mod.BytesPerValue()))
	require.NoError(t, err)
	sched, err := keyderiv.CompactSchedule(s, inputSize, slots, mod)
	require.NoError(t, err)
	return sched
}

func TestSingleCompact(t *testing.T) {
	mod := field.Default()
	r := rand.New(rand.NewPCG(7, 8))
	const n = 2000
	values := randomValues(r, n, mod)
	v := shareHMAC(t, values, mod)
	keys := unbatchedKeys(t, n, mod)

	tags, err := SingleTags(keys, v.XInt, v.XFrac, mod)
	require.NoError(t, err)
	require.Len(t, tags, n)

	for i, tag := range tags {
		require.LessOrEqual(t, tag.ZQ, uint64(1))
		require.Less(t, tag.AlphaFrac, mod.P())
		require.Less(t, tag.YR, mod.P())
		require.Less(t, tag.ZR(mod), mod.Square())
		require.Zero(t, SingleResidual(keys, i, v.XInt[i], v.XFrac[i], tag, mod), "item %d", i)
	}
}

func TestSingleCompact_DetectsTampering(t *testing.T) {
	mod := field.Default()
	r := rand.New(rand.NewPCG(9, 10))
	const n = 500
	values := randomValues(r, n, mod)
	v := shareHMAC(t, values, mod)
	keys := unbatchedKeys(t, n, mod)
	tags, err := SingleTags(keys, v.XInt, v.XFrac, mod)
	require.NoError(t, err)

	for i := 0; i < n; i++ {
		if keys.AFrac[i] != 0 {
			assert.NotZero(t, SingleResidual(keys, i, v.XInt[i], v.XFrac[i]+1, tags[i], mod))
		}
		if keys.AInt[i] != 0 {
			assert.NotZero(t, SingleResidual(keys, i, v.XInt[i]^1, v.XFrac[i], tags[i], mod))
		}
		flipped := tags[i]
		flipped.ZQ ^= 1
		assert.NotZero(t, SingleResidual(keys, i, v.XInt[i], v.XFrac[i], flipped, mod))

		shifted := tags[i]
		shifted.YR++
		assert.Equal(t, int64(-1), SingleResidual(keys, i, v.XInt[i], v.XFrac[i], shifted, mod))
	}
}

func TestSingleTags_Errors(t *testing.T) {
	mod := field.Default()
	keys := unbatchedKeys(t, 2, mod)

	_, err := SingleTags(keys, []uint64{0, 1}, []uint64{5}, mod)
	assert.ErrorIs(t, err, ErrGroupLength)

	_, err = SingleTags(keys, []uint64{0, 1, 0}, []uint64{5, 6, 7}, mod)
	assert.ErrorIs(t, err, ErrKeyLength)

	_, err = SingleCompact(keys, 2, 0, 0, mod)
	assert.ErrorIs(t, err, ErrKeyLength)
}

func TestBatchedOptimized(t *testing.T) {
	mod := field.Default()
	p := mod.P()
	sched := schedule(t, 64, 64, mod)
	keys := sched.Constants

	r := rand.New(rand.NewPCG(11, 12))
	y := make([]uint64, 64)
	for i := range y {
		y[i] = r.Uint64N(mod.Cube())
	}
	y[0], y[1] = 0, mod.Cube()-1

	tag, err := BatchedOptimized(keys, y, mod)
	require.NoError(t, err)
	require.Equal(t, len(y), tag.Len())

	full := tag.Unpack(mod)
	assert.Equal(t, tag, full.Optimized(mod))
	for i := range y {
		require.Less(t, tag.Part1[i], mod.Cube())
		require.LessOrEqual(t, tag.Part2[i], byte(3))

		qa := int64((full.AlphaInt[i] ^ keys.DAlpha[i]) & 1)
		qb := int64((full.BetaInt[i] ^ keys.Batch.DBeta[i]) & 1)
		alpha := int64(p)*qa + int64(full.AlphaFrac[i]) - int64(keys.CAlpha[i])
		beta := int64(p)*qb + int64(full.BetaFrac[i]) - int64(keys.Batch.CBeta[i])
		rebuilt := int64(p)*(int64(p)*alpha+beta) + int64(full.YR[i])
		require.Equal(t, int64(y[i]), rebuilt, "entry %d", i)
	}
}

func TestBatchedOptimized_Errors(t *testing.T) {
	mod := field.Default()
	sched := schedule(t, 4, 4, mod)

	_, err := BatchedOptimized(sched.Constants, []uint64{mod.Cube()}, mod)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = BatchedOptimized(sched.Constants, make([]uint64, 5), mod)
	assert.ErrorIs(t, err, ErrKeyLength)

	unbatched := unbatchedKeys(t, 4, mod)
	_, err = BatchedOptimized(unbatched, make([]uint64, 4), mod)
	assert.ErrorIs(t, err, keyderiv.ErrNotBatched)
}

func TestPart2(t *testing.T) {
	for _, tt := range []struct {
		alpha, beta uint8
		packed      byte
	}{
		{0, 0, 0}, {0, 1, 1}, {1, 0, 2}, {1, 1, 3},
	} {
		assert.Equal(t, tt.packed, PackPart2(tt.alpha, tt.beta))
		a, b := UnpackPart2(tt.packed)
		assert.Equal(t, tt.alpha, a)
		assert.Equal(t, tt.beta, b)
	}
}

func TestCompact(t *testing.T) {
	mod := field.Default()
	r := rand.New(rand.NewPCG(13, 14))

	tests := []struct {
		name             string
		inputSize, slots int
	}{
		{name: "single item", inputSize: 1, slots: 8},
		{name: "partial lanes", inputSize: 5, slots: 8},
		{name: "exact groups", inputSize: 16, slots: 8},
		{name: "short last group", inputSize: 10, slots: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := randomValues(r, tt.inputSize, mod)
			v := shareHMAC(t, values, mod)
			sched := schedule(t, tt.inputSize, tt.slots, mod)

			tag, err := Compact(sched, v.XInt, v.XFrac, mod)
			require.NoError(t, err)
			require.Equal(t, sched.Lanes(), tag.Len())

			res, err := CompactResidual(sched, v.XInt, v.XFrac, tag.Optimized(mod), mod)
			require.NoError(t, err)
			for k, d := range res {
				assert.Zero(t, d, "lane %d", k)
			}

			// tamper with the last item
			last := tt.inputSize - 1
			lane := last % tt.slots
			group := last / tt.slots
			xFrac := append([]uint64(nil), v.XFrac...)
			xFrac[last]++
			res, err = CompactResidual(sched, v.XInt, xFrac, tag.Optimized(mod), mod)
			require.NoError(t, err)
			assert.Equal(t, int64(sched.Groups[group].AFrac[lane]), res[lane])
		})
	}
}

func TestCompact_Errors(t *testing.T) {
	mod := field.Default()
	sched := schedule(t, 10, 4, mod)

	_, err := Compact(sched, make([]uint64, 9), make([]uint64, 9), mod)
	assert.ErrorIs(t, err, ErrGroupLength)

	_, err = Compact(sched, make([]uint64, 10), make([]uint64, 11), mod)
	assert.ErrorIs(t, err, ErrGroupLength)

	_, err = CompactResidual(sched, make([]uint64, 10), make([]uint64, 10), OptimizedTag{}, mod)
	assert.ErrorIs(t, err, ErrGroupLength)
}

func TestCheckPlain(t *testing.T) {
	tests := []struct {
		name      string
		diffs     [][]float64
		inputSize int
		slots     int
		compact   bool
		want      Result
	}{
		{
			name:      "all valid",
			diffs:     [][]float64{{0.2, -0.4, 0}, {0.9, 5}},
			inputSize: 4, slots: 3,
			want: Result{Valid: true, Checked: 4},
		},
		{
			name:      "lanes beyond input size ignored",
			diffs:     [][]float64{{0, 0, 0}, {0, 7, 7}},
			inputSize: 4, slots: 3,
			want: Result{Valid: true, Checked: 4},
		},
		{
			name:      "mismatch in second ciphertext",
			diffs:     [][]float64{{0, 0, 0}, {-1.0, 0}},
			inputSize: 5, slots: 3,
			want: Result{InvalidCount: 1, Checked: 5, Mismatches: []Mismatch{{Ciphertext: 1, Index: 0, Diff: -1}}},
		},
		{
			name:      "compact checks one ciphertext",
			diffs:     [][]float64{{0, 3, 0}},
			inputSize: 10, slots: 3, compact: true,
			want: Result{InvalidCount: 1, Checked: 3, Mismatches: []Mismatch{{Ciphertext: 0, Index: 1, Diff: 3}}},
		},
		{
			name:      "missing ciphertext",
			diffs:     [][]float64{{0, 0}},
			inputSize: 4, slots: 2,
			want: Result{Checked: 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckPlain(tt.diffs, tt.inputSize, tt.slots, tt.compact))
		})
	}
}

func TestCheckPlain_StopsAtMaxReported(t *testing.T) {
	diffs := [][]float64{make([]float64, 64)}
	for i := range diffs[0] {
		diffs[0][i] = 42
	}
	res := CheckPlain(diffs, 64, 64, false)
	assert.False(t, res.Valid)
	assert.Equal(t, MaxReported, res.InvalidCount)
	assert.Len(t, res.Mismatches, MaxReported)
	assert.Equal(t, MaxReported, res.Checked)
	assert.True(t, res.Truncated())
}
