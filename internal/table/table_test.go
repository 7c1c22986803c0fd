package table

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestReadResolvesColumnsCaseInsensitively(t *testing.T) {
	in := "Spectrum, Intensity ,irradiance\nAM0,100,500.5\nAM1.5G,100,1000\n"
	tbl, err := Read(strings.NewReader(in), "ref.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if tbl.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", tbl.Len())
	}
	idx, err := tbl.Require("spectrum", "INTENSITY", "Irradiance")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if got := tbl.Rows[1][idx[2]]; got != "1000" {
		t.Errorf("expected irradiance 1000, got %q", got)
	}
}

func TestReadRejectsRaggedRow(t *testing.T) {
	in := "a,b\n1,2\n3\n"
	_, err := Read(strings.NewReader(in), "x.csv")
	var mErr *MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if mErr.Line != 3 {
		t.Errorf("expected line 3, got %d", mErr.Line)
	}
}

func TestReadRejectsEmptyInput(t *testing.T) {
	_, err := Read(strings.NewReader(""), "empty.csv")
	var mErr *MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestRequireReportsMissingColumn(t *testing.T) {
	tbl := New("CH0", "CH1")
	_, err := tbl.Require("CH0", "Intensity")
	var mErr *MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if mErr.Column != "Intensity" {
		t.Errorf("expected column Intensity, got %q", mErr.Column)
	}
}

func TestWriteRoundTripsHeaderAndRows(t *testing.T) {
	tbl := New("Time", "CH0")
	if err := tbl.Append("10:31:58", "19373"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := tbl.Append("only-one"); err == nil {
		t.Fatalf("expected error for short row")
	}

	var buf bytes.Buffer
	if err := tbl.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := buf.String(), "Time,CH0\n10:31:58,19373\n"; got != want {
		t.Errorf("unexpected output %q, want %q", got, want)
	}
}

func TestLineNumbersSkipBlankLines(t *testing.T) {
	in := "a,b\n1,2\n\n\n3,4\n\n5\n"
	_, err := Read(strings.NewReader(in), "x.csv")
	var mErr *MalformedInputError
	if !errors.As(err, &mErr) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if mErr.Line != 7 {
		t.Errorf("expected line 7, got %d", mErr.Line)
	}

	tbl, err := Read(strings.NewReader("a,b\n\n1,2\n\n3,4\n"), "x.csv")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := tbl.LineOf(0); got != 3 {
		t.Errorf("LineOf(0) = %d, want 3", got)
	}
	if got := tbl.LineOf(1); got != 5 {
		t.Errorf("LineOf(1) = %d, want 5", got)
	}
}
