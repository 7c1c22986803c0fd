// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relabs-tech/irradiance_calibration/internal/config"
	"github.com/relabs-tech/irradiance_calibration/internal/dataset"
	"github.com/relabs-tech/irradiance_calibration/internal/diagnostics"
	"github.com/relabs-tech/irradiance_calibration/internal/fit"
	"github.com/relabs-tech/irradiance_calibration/internal/measurement"
	"github.com/relabs-tech/irradiance_calibration/internal/reference"
	"github.com/relabs-tech/irradiance_calibration/internal/render"
)

// Pipeline stages, in execution order.
const (
	StageLoad        = "load"
	StageJoin        = "join"
	StageFit         = "fit"
	StageDiagnostics = "diagnostics"
	StageRender      = "render"
	StageResult      = "result"
	StagePublish     = "publish"
)

// Observer is told when each stage starts. Progress runs from 0 to 100.
type Observer interface {
	Stage(name string, progress float64)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(name string, progress float64)

func (f ObserverFunc) Stage(name string, progress float64) { f(name, progress) }

type nopObserver struct{}

func (nopObserver) Stage(string, float64) {}

// Outcome is everything a successful run produced.
type Outcome struct {
	Fit      *fit.Result
	Report   *diagnostics.Report
	Result   CalibrationResult
	Warnings []string
}

// RunCalibration loads the reference table and every measurement file named
// in cfg, fits the power law, writes plots and the result file, and
// publishes the result when pub is non-nil. The context is checked between
// stages.
func RunCalibration(ctx context.Context, cfg *config.Config, obs Observer, pub Publisher) (*Outcome, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	var warnings []string
	warn := func(format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		log.Printf("calibration: warning: %s", msg)
		warnings = append(warnings, msg)
	}

	// ---- 1) Load inputs ----
	obs.Stage(StageLoad, 0)
	ref, err := reference.Load(cfg.ReferenceFile)
	if err != nil {
		return nil, err
	}
	log.Printf("calibration: loaded %d reference entries from %s", ref.Len(), cfg.ReferenceFile)
	// reference.Load has already logged these.
	for _, k := range ref.Duplicates() {
		warnings = append(warnings, fmt.Sprintf("duplicate reference entry %s, last value used", k))
	}

	records := make([][]measurement.Record, len(cfg.Measurements))
	for i, src := range cfg.Measurements {
		recs, err := measurement.Load(src.Path, src.Spectrum)
		if err != nil {
			return nil, err
		}
		records[i] = recs
		log.Printf("calibration: loaded %d %s measurements from %s", len(recs), src.Spectrum, src.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ---- 2) Join against the reference ----
	obs.Stage(StageJoin, 15)
	sets := make([][]dataset.Sample, len(records))
	spectra := make([]SpectrumSummary, len(records))
	for i, src := range cfg.Measurements {
		samples, dropped := dataset.Join(records[i], ref)
		sets[i] = samples
		spectra[i] = SpectrumSummary{
			Spectrum: src.Spectrum,
			File:     src.Path,
			Records:  len(records[i]),
			Samples:  len(samples),
			Dropped:  dropped,
		}
		if dropped > 0 {
			warn("%s: %d of %d records have no reference irradiance and were skipped", src.Spectrum, dropped, len(records[i]))
		}
	}
	set := dataset.Merge(sets...)
	log.Printf("calibration: training set has %d samples", len(set))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ---- 3) Fit ----
	obs.Stage(StageFit, 30)
	opts := cfg.FitOptions()
	res, err := fit.Fit(set, opts)
	if err != nil {
		return nil, err
	}
	log.Printf("calibration: %s converged in %d iterations: a=%g b=%g", res.Method, res.Iterations, res.A, res.B)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ---- 4) Diagnostics ----
	obs.Stage(StageDiagnostics, 50)
	rep, err := diagnostics.Evaluate(res.Model, set)
	switch {
	case errors.Is(err, diagnostics.ErrZeroVariance):
		warn("%v", err)
	case err != nil:
		return nil, err
	}

	// ---- 5) Render ----
	obs.Stage(StageRender, 65)
	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	files := OutputFiles{
		FitPlot:      cfg.OutputPath(cfg.PlotFitFile),
		ResidualPlot: cfg.OutputPath(cfg.PlotResidualFile),
		SummaryCard:  cfg.OutputPath(cfg.PlotSummaryFile),
		Result:       cfg.OutputPath(cfg.ResultFile),
	}
	plotOpts := render.Options{DPI: cfg.PlotDPI, WidthIn: cfg.PlotWidthIn, HeightIn: cfg.PlotHeightIn}
	if err := render.WritePlots(rep, files.FitPlot, files.ResidualPlot, plotOpts); err != nil {
		return nil, err
	}
	dropped := 0
	for _, s := range spectra {
		dropped += s.Dropped
	}
	if files.SummaryCard != "" {
		summary := render.Summary{
			A:           res.A,
			B:           res.B,
			RSquared:    rep.RSquared,
			HasRSquared: rep.HasRSquared(),
			MAE:         rep.MAE,
			Samples:     len(set),
			Dropped:     dropped,
			Method:      res.Method.String(),
		}
		if err := render.SaveSummaryCard(summary, files.SummaryCard); err != nil {
			return nil, err
		}
	}
	log.Printf("calibration: plots written to %s and %s", files.FitPlot, files.ResidualPlot)

	// ---- 6) Result file ----
	obs.Stage(StageResult, 85)
	out := newCalibrationResult(res, opts.Guess, rep, spectra, time.Now())
	out.Files = files
	out.Notes = warnings
	if err := WriteResult(files.Result, out); err != nil {
		return nil, err
	}
	log.Printf("calibration: saved results to %s", files.Result)

	// ---- 7) Publish ----
	if pub != nil {
		obs.Stage(StagePublish, 95)
		payload, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal calibration result: %w", err)
		}
		if err := pub.Publish(cfg.MQTTTopic, payload); err != nil {
			warn("publish to %s failed: %v", cfg.MQTTTopic, err)
		} else {
			log.Printf("calibration: published result to %s", cfg.MQTTTopic)
		}
	}

	return &Outcome{Fit: res, Report: rep, Result: out, Warnings: warnings}, nil
}
