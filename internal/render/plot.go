// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package render draws the calibration plots and the summary card.
package render

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/relabs-tech/irradiance_calibration/internal/diagnostics"
)

// Default output geometry.
const (
	DefaultDPI      = 150
	DefaultWidthIn  = 6.4
	DefaultHeightIn = 4.8
)

var (
	sampleColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	curveColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// Options controls the PNG geometry.
type Options struct {
	DPI      int
	WidthIn  float64
	HeightIn float64
}

// DefaultOptions returns a 6.4x4.8 inch canvas at 150 DPI.
func DefaultOptions() Options {
	return Options{DPI: DefaultDPI, WidthIn: DefaultWidthIn, HeightIn: DefaultHeightIn}
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.WidthIn <= 0 {
		o.WidthIn = DefaultWidthIn
	}
	if o.HeightIn <= 0 {
		o.HeightIn = DefaultHeightIn
	}
	return o
}

// FitPlot shows the observed samples against counts with the fitted curve.
func FitPlot(rep *diagnostics.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Fitting results (y = axᵇ)"
	p.X.Label.Text = "Raw counts"
	p.Y.Label.Text = "Irradiance [W/m²]"

	pts := make(plotter.XYs, len(rep.Counts))
	for i := range rep.Counts {
		pts[i] = plotter.XY{X: rep.Counts[i], Y: rep.Observed[i]}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build sample scatter: %w", err)
	}
	sc.GlyphStyle.Color = sampleColor
	sc.GlyphStyle.Radius = vg.Points(2)
	sc.GlyphStyle.Shape = draw.CircleGlyph{}

	curve := plotter.NewFunction(rep.Model.Predict)
	curve.XMin = floats.Min(rep.Counts)
	curve.XMax = floats.Max(rep.Counts)
	curve.Samples = 200
	curve.LineStyle.Color = curveColor
	curve.LineStyle.Width = vg.Points(1.5)

	p.Add(sc, curve)
	p.Legend.Add("Measurements", sc)
	p.Legend.Add("Fitted curve", curve)
	p.Legend.Top = true
	p.Legend.Left = true
	return p, nil
}

// ResidualPlot shows observed minus predicted against counts with a dashed
// zero line.
func ResidualPlot(rep *diagnostics.Report) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Residuals of fitted curve (mean error: %.2f)", rep.MAE)
	p.X.Label.Text = "Raw counts"
	p.Y.Label.Text = "Residuals"

	pts := make(plotter.XYs, len(rep.Counts))
	for i := range rep.Counts {
		pts[i] = plotter.XY{X: rep.Counts[i], Y: rep.Residuals[i]}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build residual scatter: %w", err)
	}
	sc.GlyphStyle.Color = sampleColor
	sc.GlyphStyle.Radius = vg.Points(2)
	sc.GlyphStyle.Shape = draw.CircleGlyph{}

	zero, err := plotter.NewLine(plotter.XYs{
		{X: floats.Min(rep.Counts), Y: 0},
		{X: floats.Max(rep.Counts), Y: 0},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build zero line: %w", err)
	}
	zero.LineStyle.Color = curveColor
	zero.LineStyle.Dashes = []vg.Length{vg.Points(5), vg.Points(3)}

	p.Add(sc, zero)
	return p, nil
}

// SavePNG renders p to path at the configured size and resolution.
func SavePNG(p *plot.Plot, path string, opts Options) error {
	opts = opts.withDefaults()
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(opts.WidthIn)*vg.Inch, vg.Length(opts.HeightIn)*vg.Inch),
		vgimg.UseDPI(opts.DPI),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// WritePlots renders the fit and residual plots for rep.
func WritePlots(rep *diagnostics.Report, fitPath, residualPath string, opts Options) error {
	if len(rep.Counts) == 0 {
		return diagnostics.ErrEmptySet
	}
	fp, err := FitPlot(rep)
	if err != nil {
		return err
	}
	if err := SavePNG(fp, fitPath, opts); err != nil {
		return err
	}
	rp, err := ResidualPlot(rep)
	if err != nil {
		return err
	}
	return SavePNG(rp, residualPath, opts)
}
