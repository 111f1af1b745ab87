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

package keyderiv

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

func TestDeriveBCD_RestoresPosition(t *testing.T) {
	mod := field.Default()
	bpv := mod.BytesPerValue()
	s, err := Expand(testSeed, nil, 1024)
	require.NoError(t, err)

	cur := s.Cursor()
	require.NoError(t, cur.Seek(500))

	kv, err := DeriveBCD(&cur, 16, 0, mod)
	require.NoError(t, err)
	assert.Equal(t, 500, cur.Pos())
	require.True(t, kv.IsBatched())

	for i := 0; i < 16; i++ {
		assert.Less(t, kv.B[i], mod.P())
		assert.Less(t, kv.CAlpha[i], mod.P())
		assert.Less(t, kv.Batch.CBeta[i], mod.P())
		d := s.data[i*(3*bpv+1)+3*bpv]
		assert.Equal(t, d&1, kv.DAlpha[i])
		assert.Equal(t, (d>>1)&1, kv.Batch.DBeta[i])
	}

	again, err := DeriveBCD(&cur, 16, 0, mod)
	require.NoError(t, err)
	assert.Equal(t, kv, again)

	_, err = DeriveBCD(&cur, 1000, 0, mod)
	assert.ErrorIs(t, err, ErrStreamExhausted)
	assert.Equal(t, 500, cur.Pos())
}

func TestDeriveA_Interleaving(t *testing.T) {
	mod := field.Default()
	s := &Stream{data: []byte{0x01, 0x02, 0x03, 0x04, 0x00, 0x00}}
	cur := s.Cursor()

	aInt, aFrac, err := DeriveA(&cur, 1, mod)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0301), aInt[0])
	assert.Equal(t, uint64(0x0402), aFrac[0])
	assert.Equal(t, 6, cur.Pos())
}

func TestGroupLength(t *testing.T) {
	tests := []struct {
		inputSize, slots int
		want             []int
	}{
		{inputSize: 10, slots: 4, want: []int{4, 4, 2}},
		{inputSize: 8, slots: 4, want: []int{4, 4}},
		{inputSize: 3, slots: 4, want: []int{3}},
		{inputSize: 8193, slots: 8192, want: []int{8192, 1}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.inputSize, tt.slots), func(t *testing.T) {
			require.Equal(t, len(tt.want), NumGroups(tt.inputSize, tt.slots))
			for j, w := range tt.want {
				assert.Equal(t, w, GroupLength(tt.inputSize, tt.slots, j))
			}
			assert.Zero(t, GroupLength(tt.inputSize, tt.slots, len(tt.want)))
		})
	}
	assert.Zero(t, NumGroups(0, 4))
}

func TestCompactSchedule(t *testing.T) {
	mod := field.Default()
	bpv := mod.BytesPerValue()
	inputSize, slots := 10, 4

	length := ScheduleStreamLength(inputSize, slots, bpv)
	assert.Equal(t, slots*(3*bpv+1)+3*slots*2*bpv, length)

	s, err := Expand(testSeed, []byte(LabelMAC), length)
	require.NoError(t, err)

	sched, err := CompactSchedule(s, inputSize, slots, mod)
	require.NoError(t, err)
	require.Equal(t, 3, sched.NumGroups())
	assert.Equal(t, 4, sched.Lanes())
	assert.Equal(t, 4, sched.Constants.Len())
	assert.True(t, sched.Constants.IsBatched())

	for j, want := range []int{4, 4, 2} {
		assert.Len(t, sched.Groups[j].AInt, want)
		g := sched.Group(j)
		assert.Equal(t, want, g.Len())
		assert.Len(t, g.B, want)
		assert.True(t, g.IsBatched())
	}

	// group multipliers come from their own region
	cur := s.Cursor()
	require.NoError(t, cur.Seek(slots*(3*bpv+1)+2*slots*2*bpv))
	aInt, aFrac, err := DeriveA(&cur, 2, mod)
	require.NoError(t, err)
	assert.Equal(t, aInt, sched.Groups[2].AInt)
	assert.Equal(t, aFrac, sched.Groups[2].AFrac)

	again, err := CompactSchedule(s, inputSize, slots, mod)
	require.NoError(t, err)
	assert.Equal(t, sched, again)
}

func TestCompactSchedule_Errors(t *testing.T) {
	mod := field.Default()
	s, err := Expand(testSeed, nil, 16)
	require.NoError(t, err)

	_, err = CompactSchedule(s, 10, 4, mod)
	assert.ErrorIs(t, err, ErrStreamExhausted)

	_, err = CompactSchedule(s, 0, 4, mod)
	assert.ErrorIs(t, err, ErrInvalidLength)
}
