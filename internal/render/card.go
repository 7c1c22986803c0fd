package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cardWidth      = 320
	cardLineHeight = 16
	cardMargin     = 10
)

// Summary is the content of the summary card.
type Summary struct {
	A, B        float64
	RSquared    float64
	HasRSquared bool
	MAE         float64
	Samples     int
	Dropped     int
	Method      string
}

// Lines returns the card text, one entry per row.
func (s Summary) Lines() []string {
	r2 := "R2 = n/a (zero variance)"
	if s.HasRSquared {
		r2 = fmt.Sprintf("R2 = %.4f", s.RSquared)
	}
	return []string{
		"Irradiance calibration",
		fmt.Sprintf("a = %.6g", s.A),
		fmt.Sprintf("b = %.6g", s.B),
		r2,
		fmt.Sprintf("MAE = %.2f W/m2", s.MAE),
		fmt.Sprintf("samples = %d (dropped %d)", s.Samples, s.Dropped),
		"method = " + s.Method,
	}
}

// SummaryCard draws the summary as black 7x13 text on white.
func SummaryCard(s Summary) *image.RGBA {
	lines := s.Lines()
	height := 2*cardMargin + len(lines)*cardLineHeight
	img := image.NewRGBA(image.Rect(0, 0, cardWidth, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.White}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{color.Black},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(cardMargin, cardMargin+(i+1)*cardLineHeight-3)
		drawer.DrawString(line)
	}
	return img
}

// SaveSummaryCard writes the card for s as a PNG.
func SaveSummaryCard(s Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := png.Encode(f, SummaryCard(s)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
