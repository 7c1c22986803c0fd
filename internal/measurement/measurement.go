// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package measurement loads sensor readings taken under a known spectrum.
package measurement

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/relabs-tech/irradiance_calibration/internal/table"
)

// Required column names. Other columns are ignored.
const (
	ColCount     = "CH0"
	ColIntensity = "Intensity"
)

var errFractional = errors.New("intensity is not an integer")

// Record is one sensor reading at a simulator intensity.
type Record struct {
	Spectrum  string
	Intensity int
	Count     float64
}

// Load reads the measurement CSV at path and tags every row with spectrum.
func Load(path, spectrum string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open measurements for %s: %w", spectrum, err)
	}
	defer f.Close()

	return Read(f, path, spectrum)
}

// Read parses measurement rows from r.
func Read(r io.Reader, source, spectrum string) ([]Record, error) {
	tbl, err := table.Read(r, source)
	if err != nil {
		return nil, err
	}
	cols, err := tbl.Require(ColCount, ColIntensity)
	if err != nil {
		return nil, err
	}
	countCol, intensityCol := cols[0], cols[1]

	records := make([]Record, 0, tbl.Len())
	for i, row := range tbl.Rows {
		count, err := strconv.ParseFloat(row[countCol], 64)
		if err != nil {
			return nil, &table.MalformedInputError{
				Source: source,
				Line:   tbl.LineOf(i),
				Column: tbl.Header[countCol],
				Value:  row[countCol],
				Err:    err,
			}
		}
		intensity, err := ParseIntensity(row[intensityCol])
		if err != nil {
			return nil, &table.MalformedInputError{
				Source: source,
				Line:   tbl.LineOf(i),
				Column: tbl.Header[intensityCol],
				Value:  row[intensityCol],
				Err:    err,
			}
		}
		records = append(records, Record{Spectrum: spectrum, Intensity: intensity, Count: count})
	}
	return records, nil
}

// ParseIntensity accepts integers and integral decimals such as "120.00".
func ParseIntensity(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, errFractional
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, strconv.ErrRange
	}
	return int(f), nil
}
