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

package he

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

const sampleParamFile = `# encryption parameters
222863

# SEAL style degree
16384
90
60 60 60 45 45 45 45 61
`

func TestParseParamFile(t *testing.T) {
	pf, err := ParseParamFile(strings.NewReader(sampleParamFile))
	require.NoError(t, err)

	assert.Equal(t, field.DefaultPrime, pf.Prime)
	assert.Equal(t, 16384, pf.PolyDegree)
	assert.Equal(t, 8192, pf.MaxCiphertextEntries())
	assert.Equal(t, 90, pf.LogScale)
	assert.Equal(t, []int{60, 60, 60, 45, 45, 45, 45, 61}, pf.BitSizes)

	params, err := pf.Params()
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), params)

	mod, err := pf.Modulus()
	require.NoError(t, err)
	assert.Equal(t, field.DefaultPrime, mod.P())
}

func TestParseParamFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{name: "empty", input: "", wantErr: ErrInsufficientLines},
		{name: "three lines", input: "222863\n16384\n90\n", wantErr: ErrInsufficientLines},
		{name: "comments only", input: "# a\n# b\n\n", wantErr: ErrInsufficientLines},
		{name: "five lines", input: "222863\n16384\n90\n60 61\n1\n", wantErr: ErrTooManyLines},
		{name: "bad prime", input: "abc\n16384\n90\n60 61\n", wantErr: ErrBadValue, wantMsg: "line 1"},
		{name: "bad degree after comment", input: "# x\n222863\n16k\n90\n60 61\n", wantErr: ErrBadValue, wantMsg: "line 3"},
		{name: "bad bit size", input: "222863\n16384\n90\n60 x 61\n", wantErr: ErrBadValue, wantMsg: "line 4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParamFile(strings.NewReader(tt.input))
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestParamFile_Params_Errors(t *testing.T) {
	_, err := ParamFile{PolyDegree: 1000, BitSizes: []int{60, 61}, LogScale: 40}.Params()
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = ParamFile{PolyDegree: 4096, BitSizes: []int{60}, LogScale: 40}.Params()
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestParamFile_FormatRoundTrip(t *testing.T) {
	pf := DefaultParamFile()
	path := filepath.Join(t.TempDir(), "params.txt")
	require.NoError(t, os.WriteFile(path, []byte(pf.Format()), 0600))

	loaded, err := LoadParamFile(path)
	require.NoError(t, err)
	assert.Equal(t, pf, loaded)

	_, err = LoadParamFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
