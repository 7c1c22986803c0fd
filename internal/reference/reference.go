// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package reference holds the known-correct irradiance for every
// (spectrum, solar-simulator intensity) pair used during calibration.
package reference

import (
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"

	"github.com/relabs-tech/irradiance_calibration/internal/table"
)

// Column names of the reference CSV.
const (
	ColSpectrum   = "spectrum"
	ColIntensity  = "intensity"
	ColIrradiance = "irradiance"
)

// Key identifies one reference entry.
type Key struct {
	Spectrum  string
	Intensity int
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%d", k.Spectrum, k.Intensity)
}

// Table maps (spectrum, intensity) to irradiance in W/m².
type Table struct {
	entries    map[Key]float64
	duplicates []Key
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[Key]float64)}
}

// Set stores irradiance for key. A second Set for the same key replaces the
// earlier value and records the key as a duplicate.
func (t *Table) Set(key Key, irradiance float64) {
	if _, exists := t.entries[key]; exists {
		t.duplicates = append(t.duplicates, key)
	}
	t.entries[key] = irradiance
}

// Lookup returns the irradiance for (spectrum, intensity). The boolean is
// false when no entry exists.
func (t *Table) Lookup(spectrum string, intensity int) (float64, bool) {
	v, ok := t.entries[Key{Spectrum: spectrum, Intensity: intensity}]
	return v, ok
}

// Len returns the number of distinct keys.
func (t *Table) Len() int { return len(t.entries) }

// Duplicates lists keys that appeared more than once, in the order the
// repeats were seen.
func (t *Table) Duplicates() []Key {
	return append([]Key(nil), t.duplicates...)
}

// Spectra returns the distinct spectrum names, sorted.
func (t *Table) Spectra() []string {
	seen := make(map[string]struct{})
	for k := range t.entries {
		seen[k.Spectrum] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Load reads the reference CSV at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference table: %w", err)
	}
	defer f.Close()

	return Read(f, path)
}

// Read parses a reference CSV with columns spectrum, intensity, irradiance.
// Any unparseable intensity or irradiance aborts the load.
func Read(r io.Reader, source string) (*Table, error) {
	tbl, err := table.Read(r, source)
	if err != nil {
		return nil, err
	}
	cols, err := tbl.Require(ColSpectrum, ColIntensity, ColIrradiance)
	if err != nil {
		return nil, err
	}
	spectrumCol, intensityCol, irradianceCol := cols[0], cols[1], cols[2]

	ref := NewTable()
	for i, row := range tbl.Rows {
		intensity, err := strconv.Atoi(row[intensityCol])
		if err != nil {
			return nil, &table.MalformedInputError{
				Source: source,
				Line:   tbl.LineOf(i),
				Column: tbl.Header[intensityCol],
				Value:  row[intensityCol],
				Err:    err,
			}
		}
		irradiance, err := strconv.ParseFloat(row[irradianceCol], 64)
		if err != nil {
			return nil, &table.MalformedInputError{
				Source: source,
				Line:   tbl.LineOf(i),
				Column: tbl.Header[irradianceCol],
				Value:  row[irradianceCol],
				Err:    err,
			}
		}
		ref.Set(Key{Spectrum: row[spectrumCol], Intensity: intensity}, irradiance)
	}

	for _, k := range ref.duplicates {
		log.Printf("reference: duplicate entry %s in %s, keeping the last value", k, source)
	}
	return ref, nil
}
