// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package diagnostics measures how well a fitted model explains the
// training samples.
package diagnostics

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/irradiance_calibration/internal/dataset"
	"github.com/relabs-tech/irradiance_calibration/internal/fit"
)

var (
	// ErrEmptySet is returned when there is nothing to evaluate.
	ErrEmptySet = errors.New("diagnostics: empty training set")
	// ErrZeroVariance is returned alongside a report whose observed values
	// are all equal, leaving R² undefined.
	ErrZeroVariance = errors.New("diagnostics: observed irradiance has zero variance, R² undefined")
)

// Report holds per-sample predictions and aggregate fit statistics.
type Report struct {
	Model     fit.Model
	Counts    []float64
	Observed  []float64
	Predicted []float64
	Residuals []float64 // observed - predicted

	MAE      float64
	RSquared float64 // NaN when ErrZeroVariance was returned
	SSR      float64
	SST      float64
}

// HasRSquared reports whether R² is defined.
func (r *Report) HasRSquared() bool { return !math.IsNaN(r.RSquared) }

// MaxAbsResidual returns the largest residual magnitude.
func (r *Report) MaxAbsResidual() float64 {
	var m float64
	for _, v := range r.Residuals {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// Evaluate computes predictions, residuals, MAE and R² for model on set.
func Evaluate(model fit.Model, set dataset.TrainingSet) (*Report, error) {
	if len(set) == 0 {
		return nil, ErrEmptySet
	}

	n := len(set)
	rep := &Report{
		Model:     model,
		Counts:    set.Counts(),
		Observed:  set.Irradiances(),
		Predicted: make([]float64, n),
		Residuals: make([]float64, n),
	}

	abs := make([]float64, n)
	for i, x := range rep.Counts {
		rep.Predicted[i] = model.Predict(x)
		rep.Residuals[i] = rep.Observed[i] - rep.Predicted[i]
		abs[i] = math.Abs(rep.Residuals[i])
	}
	rep.MAE = floats.Sum(abs) / float64(n)
	rep.SSR = floats.Dot(rep.Residuals, rep.Residuals)

	mean := stat.Mean(rep.Observed, nil)
	for _, y := range rep.Observed {
		d := y - mean
		rep.SST += d * d
	}

	if rep.SST == 0 {
		rep.RSquared = math.NaN()
		return rep, ErrZeroVariance
	}
	rep.RSquared = 1 - rep.SSR/rep.SST
	return rep, nil
}
