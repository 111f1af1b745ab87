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
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/jeremyhahn/go-sharemac/pkg/field"
)

var (
	ErrTooManyLines      = errors.New("he: param file: too many lines")
	ErrInsufficientLines = errors.New("he: param file: insufficient lines")
	ErrBadValue          = errors.New("he: param file: failed to read value")
)

// paramLines is the number of value lines in a parameter file.
const paramLines = 4

// ParamFile is a parsed encryption parameter file. Blank lines and lines
// starting with '#' are ignored; the four value lines are the prime, the
// polynomial degree, the log2 scale and the space separated modulus bit
// sizes with the special prime last.
type ParamFile struct {
	Prime      uint64
	PolyDegree int
	LogScale   int
	BitSizes   []int
}

// MaxCiphertextEntries returns the slot count for the polynomial degree.
func (f ParamFile) MaxCiphertextEntries() int {
	return f.PolyDegree / 2
}

// Modulus validates and returns the field modulus.
func (f ParamFile) Modulus() (field.Modulus, error) {
	return field.New(f.Prime)
}

// Params converts the file into a CKKS parameter set.
func (f ParamFile) Params() (Params, error) {
	if f.PolyDegree <= 0 || f.PolyDegree&(f.PolyDegree-1) != 0 {
		return Params{}, fmt.Errorf("%w: polynomial degree %d is not a power of two", ErrInvalidParams, f.PolyDegree)
	}
	if len(f.BitSizes) < 2 {
		return Params{}, fmt.Errorf("%w: need at least two modulus bit sizes", ErrInvalidParams)
	}
	n := len(f.BitSizes)
	p := Params{
		LogN:     bits.TrailingZeros(uint(f.PolyDegree)),
		LogScale: f.LogScale,
		LogQ:     append([]int(nil), f.BitSizes[:n-1]...),
		LogP:     []int{f.BitSizes[n-1]},
	}
	return p, p.Validate()
}

// ParseParamFile reads a parameter file.
func ParseParamFile(r io.Reader) (ParamFile, error) {
	var (
		pf     ParamFile
		values []string
		lineNo []int
	)
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(values) == paramLines {
			return ParamFile{}, ErrTooManyLines
		}
		values = append(values, line)
		lineNo = append(lineNo, n)
	}
	if err := sc.Err(); err != nil {
		return ParamFile{}, fmt.Errorf("he: param file: %w", err)
	}
	if len(values) < paramLines {
		return ParamFile{}, fmt.Errorf("%w: got %d of %d", ErrInsufficientLines, len(values), paramLines)
	}

	bad := func(i int) error {
		return fmt.Errorf("%w from line %d: %q", ErrBadValue, lineNo[i], values[i])
	}

	prime, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return ParamFile{}, bad(0)
	}
	degree, err := strconv.Atoi(values[1])
	if err != nil {
		return ParamFile{}, bad(1)
	}
	logScale, err := strconv.Atoi(values[2])
	if err != nil {
		return ParamFile{}, bad(2)
	}
	for _, f := range strings.Fields(values[3]) {
		b, err := strconv.Atoi(f)
		if err != nil {
			return ParamFile{}, bad(3)
		}
		pf.BitSizes = append(pf.BitSizes, b)
	}

	pf.Prime = prime
	pf.PolyDegree = degree
	pf.LogScale = logScale
	return pf, nil
}

// LoadParamFile parses the file at path.
func LoadParamFile(path string) (ParamFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return ParamFile{}, fmt.Errorf("he: open param file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ParseParamFile(f)
}

// DefaultParamFile returns the parameter file equivalent of DefaultParams.
func DefaultParamFile() ParamFile {
	p := DefaultParams()
	return ParamFile{
		Prime:      field.DefaultPrime,
		PolyDegree: 1 << p.LogN,
		LogScale:   p.LogScale,
		BitSizes:   append(append([]int(nil), p.LogQ...), p.LogP...),
	}
}

// Format renders the file in its text form.
func (f ParamFile) Format() string {
	var sb strings.Builder
	sb.WriteString("# prime\n")
	fmt.Fprintf(&sb, "%d\n", f.Prime)
	sb.WriteString("# polynomial degree\n")
	fmt.Fprintf(&sb, "%d\n", f.PolyDegree)
	sb.WriteString("# log2 scale\n")
	fmt.Fprintf(&sb, "%d\n", f.LogScale)
	sb.WriteString("# modulus bit sizes\n")
	for i, b := range f.BitSizes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.Itoa(b))
	}
	sb.WriteByte('\n')
	return sb.String()
}
