// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/relabs-tech/irradiance_calibration/internal/diagnostics"
	"github.com/relabs-tech/irradiance_calibration/internal/fit"
)

const resultSchemaVersion = 1

// SpectrumSummary describes how one measurement file contributed.
type SpectrumSummary struct {
	Spectrum string `json:"spectrum"`
	File     string `json:"file"`
	Records  int    `json:"records"`
	Samples  int    `json:"samples"`
	Dropped  int    `json:"dropped"`
}

// SolverInfo records how the coefficients were found.
type SolverInfo struct {
	Method       string  `json:"method"`
	InitialGuess string  `json:"initial_guess"`
	InitialA     float64 `json:"initial_a"`
	InitialB     float64 `json:"initial_b"`
	Iterations   int     `json:"iterations"`
}

// OutputFiles lists the artefacts written by a run.
type OutputFiles struct {
	FitPlot      string `json:"fit_plot"`
	ResidualPlot string `json:"residual_plot"`
	SummaryCard  string `json:"summary_card,omitempty"`
	Result       string `json:"result"`
}

// CalibrationResult is the JSON document written after every run.
// Apply as: irradiance [W/m²] = A * counts^B.
type CalibrationResult struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	Model         string `json:"model"`

	A        float64  `json:"a"`
	B        float64  `json:"b"`
	RSquared *float64 `json:"r_squared"` // null when observed irradiance has no variance
	MAE      float64  `json:"mae"`
	SSR      float64  `json:"ssr"`

	Samples int               `json:"samples"`
	Dropped int               `json:"dropped"`
	Spectra []SpectrumSummary `json:"spectra"`
	Solver  SolverInfo        `json:"solver"`
	Files   OutputFiles       `json:"files"`

	Notes []string `json:"notes,omitempty"`
}

func newCalibrationResult(res *fit.Result, guess fit.Guess, rep *diagnostics.Report, spectra []SpectrumSummary, at time.Time) CalibrationResult {
	out := CalibrationResult{
		SchemaVersion: resultSchemaVersion,
		CalibrationAt: at.Format(time.RFC3339),
		Model:         "a*counts^b",
		A:             res.A,
		B:             res.B,
		MAE:           rep.MAE,
		SSR:           rep.SSR,
		Samples:       len(rep.Counts),
		Spectra:       spectra,
		Solver: SolverInfo{
			Method:       res.Method.String(),
			InitialGuess: guess.String(),
			InitialA:     res.Initial.A,
			InitialB:     res.Initial.B,
			Iterations:   res.Iterations,
		},
	}
	if rep.HasRSquared() {
		r2 := rep.RSquared
		out.RSquared = &r2
	}
	for _, s := range spectra {
		out.Dropped += s.Dropped
	}
	return out
}

// WriteResult stores res as indented JSON.
func WriteResult(path string, res CalibrationResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	return nil
}

// ReadResult loads a result written by WriteResult.
func ReadResult(path string) (*CalibrationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res CalibrationResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &res, nil
}
