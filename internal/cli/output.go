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
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jeremyhahn/go-sharemac/pkg/he"
	"github.com/jeremyhahn/go-sharemac/pkg/protocol"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// KeygenResult summarizes the key material created by keygen.
type KeygenResult struct {
	SeedDir    string   `json:"seed_dir"`
	Seeds      []string `json:"seeds"`
	Passphrase bool     `json:"passphrase"`
	Slots      int      `json:"slots"`
	PublicKey  string   `json:"public_key"`
}

// BundleResult summarizes a ciphertext bundle written by encrypt.
type BundleResult struct {
	Dataset     string `json:"dataset"`
	Path        string `json:"path"`
	Ciphertexts int    `json:"ciphertexts"`
	Bytes       int64  `json:"bytes"`
	Remote      string `json:"remote,omitempty"`
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// PrintManifest prints an uploaded dataset's manifest
func (p *Printer) PrintManifest(m *protocol.Manifest) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(m)
	case OutputFormatText:
		scheme := "unbatched"
		if m.Batched {
			scheme = "batched"
		}
		fmt.Fprintf(p.writer, "Dataset:     %s\n", m.Dataset)
		fmt.Fprintf(p.writer, "ID:          %s\n", m.ID)
		fmt.Fprintf(p.writer, "Items:       %d\n", m.InputSize)
		fmt.Fprintf(p.writer, "MAC:         %s\n", scheme)
		fmt.Fprintf(p.writer, "Slots:       %d\n", m.Slots)
		fmt.Fprintf(p.writer, "Groups:      %d\n", m.Groups())
		fmt.Fprintf(p.writer, "Ciphertexts: %d\n", m.Layout().Count())
		fmt.Fprintf(p.writer, "Prime:       %d\n", m.Prime)
		fmt.Fprintf(p.writer, "Created:     %s\n", m.CreatedAt.Format(time.RFC3339))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintDatasets prints the names of the stored datasets
func (p *Printer) PrintDatasets(names []string) error {
	switch p.format {
	case OutputFormatJSON:
		if names == nil {
			names = []string{}
		}
		return p.printJSON(map[string]interface{}{
			"datasets": names,
		})
	case OutputFormatText:
		if len(names) == 0 {
			fmt.Fprintln(p.writer, "No datasets found")
			return nil
		}
		fmt.Fprintln(p.writer, "Datasets:")
		for _, n := range names {
			fmt.Fprintf(p.writer, "  - %s\n", n)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintParams prints an encryption parameter file
func (p *Printer) PrintParams(pf he.ParamFile) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"prime":       pf.Prime,
			"poly_degree": pf.PolyDegree,
			"log_scale":   pf.LogScale,
			"bit_sizes":   pf.BitSizes,
			"slots":       pf.MaxCiphertextEntries(),
		})
	case OutputFormatText:
		sizes := make([]string, len(pf.BitSizes))
		for i, b := range pf.BitSizes {
			sizes[i] = fmt.Sprint(b)
		}
		fmt.Fprintf(p.writer, "Prime:             %d\n", pf.Prime)
		fmt.Fprintf(p.writer, "Polynomial degree: %d\n", pf.PolyDegree)
		fmt.Fprintf(p.writer, "Scale:             2^%d\n", pf.LogScale)
		fmt.Fprintf(p.writer, "Modulus bit sizes: %s\n", strings.Join(sizes, " "))
		fmt.Fprintf(p.writer, "Slots:             %d\n", pf.MaxCiphertextEntries())
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintKeygen prints the outcome of key generation
func (p *Printer) PrintKeygen(r KeygenResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Generated HE keys (%d slots)\n", r.Slots)
		fmt.Fprintf(p.writer, "Public key: %s\n", r.PublicKey)
		source := "random"
		if r.Passphrase {
			source = "passphrase"
		}
		fmt.Fprintf(p.writer, "Seeds (%s) in %s:\n", source, r.SeedDir)
		for _, s := range r.Seeds {
			fmt.Fprintf(p.writer, "  - %s\n", s)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintBundle prints a summary of a written ciphertext bundle
func (p *Printer) PrintBundle(r BundleResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(r)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Encrypted %s: %d ciphertexts, %d bytes written to %s\n",
			r.Dataset, r.Ciphertexts, r.Bytes, r.Path)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintReport prints a verification report
func (p *Printer) PrintReport(r *protocol.Report) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"dataset": r.Dataset,
			"valid":   r.Valid(),
			"mac": map[string]interface{}{
				"valid":         r.MAC.Valid,
				"invalid_count": r.MAC.InvalidCount,
				"truncated":     r.MAC.Truncated(),
				"checked":       r.MAC.Checked,
				"mismatches":    macMismatches(r),
			},
		}
		if r.Shares != nil {
			mm := make([]map[string]interface{}, len(r.Shares.Mismatches))
			for i, m := range r.Shares.Mismatches {
				mm[i] = map[string]interface{}{
					"index":    m.Index,
					"expected": m.Expected,
					"got":      m.Got,
				}
			}
			out["shares"] = map[string]interface{}{
				"valid":         r.Shares.Valid,
				"invalid_count": r.Shares.InvalidCount,
				"checked":       r.Shares.Checked,
				"mismatches":    mm,
			}
		}
		if r.Values != nil {
			out["values"] = r.Values
		}
		return p.printJSON(out)
	case OutputFormatText:
		status := "VALID"
		if !r.Valid() {
			status = "INVALID"
		}
		fmt.Fprintf(p.writer, "Dataset %s: %s\n", r.Dataset, status)
		fmt.Fprintf(p.writer, "MAC: %d lanes checked, %d invalid", r.MAC.Checked, r.MAC.InvalidCount)
		if r.MAC.Truncated() {
			fmt.Fprint(p.writer, " (scan stopped early)")
		}
		fmt.Fprintln(p.writer)
		for _, m := range r.MAC.Mismatches {
			fmt.Fprintf(p.writer, "  ciphertext %d index %d: difference %.4f\n", m.Ciphertext, m.Index, m.Diff)
		}
		if r.Shares != nil {
			fmt.Fprintf(p.writer, "Shares: %d values checked, %d invalid\n", r.Shares.Checked, r.Shares.InvalidCount)
			for _, m := range r.Shares.Mismatches {
				fmt.Fprintf(p.writer, "  index %d: expected %d, got %.4f\n", m.Index, m.Expected, m.Got)
			}
		}
		if r.Values != nil {
			fmt.Fprintf(p.writer, "Values: %v\n", r.Values)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func macMismatches(r *protocol.Report) []map[string]interface{} {
	mm := make([]map[string]interface{}, len(r.MAC.Mismatches))
	for i, m := range r.MAC.Mismatches {
		mm[i] = map[string]interface{}{
			"ciphertext": m.Ciphertext,
			"index":      m.Index,
			"diff":       m.Diff,
		}
	}
	return mm
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
