package render

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relabs-tech/irradiance_calibration/internal/diagnostics"
	"github.com/relabs-tech/irradiance_calibration/internal/fit"
)

func testReport() *diagnostics.Report {
	return &diagnostics.Report{
		Model:     fit.Model{A: 2.5, B: 1},
		Counts:    []float64{100, 200, 400},
		Observed:  []float64{251, 499, 1001},
		Predicted: []float64{250, 500, 1000},
		Residuals: []float64{1, -1, 1},
		MAE:       1,
		RSquared:  0.99,
	}
}

func decodeConfig(t *testing.T, path string) image.Config {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return cfg
}

func TestWritePlotsProducesPNGs(t *testing.T) {
	dir := t.TempDir()
	fitPath := filepath.Join(dir, "fit.png")
	resPath := filepath.Join(dir, "residuals.png")

	if err := WritePlots(testReport(), fitPath, resPath, DefaultOptions()); err != nil {
		t.Fatalf("WritePlots: %v", err)
	}
	for _, path := range []string{fitPath, resPath} {
		cfg := decodeConfig(t, path)
		if cfg.Width != 960 || cfg.Height != 720 {
			t.Errorf("%s: expected 960x720, got %dx%d", path, cfg.Width, cfg.Height)
		}
	}
}

func TestSavePNGHonoursDPI(t *testing.T) {
	p, err := FitPlot(testReport())
	if err != nil {
		t.Fatalf("FitPlot: %v", err)
	}
	path := filepath.Join(t.TempDir(), "small.png")
	if err := SavePNG(p, path, Options{DPI: 50, WidthIn: 4, HeightIn: 2}); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	cfg := decodeConfig(t, path)
	if cfg.Width != 200 || cfg.Height != 100 {
		t.Errorf("expected 200x100, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPlotTitles(t *testing.T) {
	rep := testReport()
	fp, err := FitPlot(rep)
	if err != nil {
		t.Fatal(err)
	}
	if fp.Title.Text != "Fitting results (y = axᵇ)" || fp.X.Label.Text != "Raw counts" {
		t.Errorf("unexpected fit plot labels %q / %q", fp.Title.Text, fp.X.Label.Text)
	}
	rp, err := ResidualPlot(rep)
	if err != nil {
		t.Fatal(err)
	}
	if rp.Title.Text != "Residuals of fitted curve (mean error: 1.00)" {
		t.Errorf("unexpected residual title %q", rp.Title.Text)
	}
}

func TestWritePlotsRejectsEmptyReport(t *testing.T) {
	dir := t.TempDir()
	err := WritePlots(&diagnostics.Report{}, filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png"), DefaultOptions())
	if err == nil {
		t.Fatal("expected error for empty report")
	}
}

func TestSummaryCard(t *testing.T) {
	s := Summary{A: 2.5, B: 1, RSquared: math.NaN(), MAE: 0.5, Samples: 2, Method: "lm"}
	lines := s.Lines()
	if !strings.Contains(strings.Join(lines, "\n"), "n/a") {
		t.Errorf("expected undefined R2 marker, got %v", lines)
	}

	img := SummaryCard(s)
	if img.Bounds().Dx() != cardWidth {
		t.Errorf("unexpected card width %d", img.Bounds().Dx())
	}
	dark := 0
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			if img.RGBAAt(x, y) != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Error("expected text pixels on the card")
	}

	path := filepath.Join(t.TempDir(), "summary.png")
	if err := SaveSummaryCard(s, path); err != nil {
		t.Fatalf("SaveSummaryCard: %v", err)
	}
	if cfg := decodeConfig(t, path); cfg.Width != cardWidth {
		t.Errorf("unexpected saved width %d", cfg.Width)
	}
}
