package reference

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relabs-tech/irradiance_calibration/internal/table"
)

func TestReadBuildsLookup(t *testing.T) {
	in := "spectrum,intensity,irradiance\nAM0,100,500.0\nAM1.5G,100,1000.0\nAM0,50,250.25\n"
	ref, err := Read(strings.NewReader(in), "ref.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	cases := []struct {
		spectrum  string
		intensity int
		want      float64
		found     bool
	}{
		{"AM0", 100, 500.0, true},
		{"AM1.5G", 100, 1000.0, true},
		{"AM0", 50, 250.25, true},
		{"AM0", 75, 0, false},
		{"AM1.5D", 100, 0, false},
	}
	for _, c := range cases {
		got, ok := ref.Lookup(c.spectrum, c.intensity)
		if ok != c.found || got != c.want {
			t.Errorf("Lookup(%q, %d) = (%v, %v), want (%v, %v)", c.spectrum, c.intensity, got, ok, c.want, c.found)
		}
	}
	if ref.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", ref.Len())
	}
	if got := ref.Spectra(); len(got) != 2 || got[0] != "AM0" || got[1] != "AM1.5G" {
		t.Errorf("unexpected spectra %v", got)
	}
}

func TestDuplicateKeepsLastValue(t *testing.T) {
	in := "spectrum,intensity,irradiance\nAM0,100,500\nAM0,100,510\nAM0,100,520\n"
	ref, err := Read(strings.NewReader(in), "dup.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	got, ok := ref.Lookup("AM0", 100)
	if !ok || got != 520 {
		t.Fatalf("expected last value 520, got (%v, %v)", got, ok)
	}
	dups := ref.Duplicates()
	if len(dups) != 2 || dups[0] != (Key{Spectrum: "AM0", Intensity: 100}) {
		t.Errorf("unexpected duplicates %v", dups)
	}
}

func TestMalformedRowsAbortLoad(t *testing.T) {
	cases := map[string]string{
		"intensity":  "spectrum,intensity,irradiance\nAM0,100,500\nAM0,1o0,500\n",
		"irradiance": "spectrum,intensity,irradiance\nAM0,100,five hundred\n",
		"fractional": "spectrum,intensity,irradiance\nAM0,100.5,500\n",
	}
	for name, in := range cases {
		_, err := Read(strings.NewReader(in), name)
		var mErr *table.MalformedInputError
		if !errors.As(err, &mErr) {
			t.Errorf("%s: expected MalformedInputError, got %v", name, err)
		}
	}
}

func TestMalformedErrorPointsAtLine(t *testing.T) {
	in := "spectrum,intensity,irradiance\nAM0,100,500\nAM0,200,bad\n"
	_, err := Read(strings.NewReader(in), "ref.csv")
	var mErr *table.MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if mErr.Line != 3 || mErr.Column != "irradiance" || mErr.Value != "bad" {
		t.Errorf("unexpected error details: %+v", mErr)
	}
}

func TestMissingColumn(t *testing.T) {
	_, err := Read(strings.NewReader("spectrum,irradiance\nAM0,1\n"), "ref.csv")
	var mErr *table.MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spectrum_reference.csv")
	if err := os.WriteFile(path, []byte("spectrum,intensity,irradiance\nAM0,100,500\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ref, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v, ok := ref.Lookup("AM0", 100); !ok || v != 500 {
		t.Errorf("unexpected lookup (%v, %v)", v, ok)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestMalformedErrorLineCountsBlankLines(t *testing.T) {
	in := "spectrum,intensity,irradiance\n\nAM0,100,500\n\nAM0,200,bad\n"
	_, err := Read(strings.NewReader(in), "ref.csv")
	var mErr *table.MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if mErr.Line != 5 {
		t.Errorf("expected line 5, got %d", mErr.Line)
	}
}
