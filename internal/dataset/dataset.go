// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package dataset pairs measurements with reference irradiance and builds
// the training set handed to the fitter.
package dataset

import (
	"sort"

	"github.com/relabs-tech/irradiance_calibration/internal/measurement"
)

// Sample is one (raw count, reference irradiance) pair.
type Sample struct {
	Count      float64 `json:"count"`
	Irradiance float64 `json:"irradiance"`
}

// TrainingSet is ordered ascending by count.
type TrainingSet []Sample

// Counts returns the count column.
func (s TrainingSet) Counts() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.Count
	}
	return out
}

// Irradiances returns the irradiance column.
func (s TrainingSet) Irradiances() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.Irradiance
	}
	return out
}

// Lookuper resolves the reference irradiance for a spectrum and intensity.
type Lookuper interface {
	Lookup(spectrum string, intensity int) (float64, bool)
}

// Join keeps the records that have a reference entry, in input order.
// The second return value is the number of records dropped.
func Join(records []measurement.Record, ref Lookuper) ([]Sample, int) {
	samples := make([]Sample, 0, len(records))
	dropped := 0
	for _, r := range records {
		irr, ok := ref.Lookup(r.Spectrum, r.Intensity)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, Sample{Count: r.Count, Irradiance: irr})
	}
	return samples, dropped
}

// Merge concatenates the per-spectrum sample sets and sorts by count.
// Samples with equal counts keep their concatenation order.
func Merge(sets ...[]Sample) TrainingSet {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make(TrainingSet, 0, n)
	for _, s := range sets {
		out = append(out, s...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count < out[j].Count })
	return out
}
