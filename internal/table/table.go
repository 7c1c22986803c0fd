// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package table reads and writes the comma-separated, header-first tables
// exchanged between the calibration tools.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MalformedInputError reports a row or header that cannot be interpreted.
// Line is 1-based and counts the header row.
type MalformedInputError struct {
	Source string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *MalformedInputError) Error() string {
	var b strings.Builder
	b.WriteString("malformed input")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " line %d", e.Line)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " column %q", e.Column)
	}
	if e.Value != "" {
		fmt.Fprintf(&b, " value %q", e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MalformedInputError) Unwrap() error { return e.Err }

// Table is an in-memory CSV table. Rows never include the header.
type Table struct {
	Source string
	Header []string
	Rows   [][]string

	index map[string]int
	lines []int // source line of each read row
}

// New returns an empty table with the given header.
func New(header ...string) *Table {
	t := &Table{Header: append([]string(nil), header...)}
	t.buildIndex()
	return t
}

// ReadFile opens path, reads the whole table and closes the file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	return Read(f, path)
}

// Read parses a CSV stream whose first record is the header. Rows shorter
// or longer than the header are rejected.
func Read(r io.Reader, source string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &MalformedInputError{Source: source, Line: 1, Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, &MalformedInputError{Source: source, Line: 1, Err: err}
	}

	t := &Table{Source: source, Header: trimAll(header)}
	t.buildIndex()

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &MalformedInputError{Source: source, Line: line, Err: err}
		}
		// Blank lines are skipped by the reader, so count from its position.
		line, _ := cr.FieldPos(0)
		if len(rec) != len(t.Header) {
			return nil, &MalformedInputError{
				Source: source,
				Line:   line,
				Err:    fmt.Errorf("expected %d fields, got %d", len(t.Header), len(rec)),
			}
		}
		t.Rows = append(t.Rows, trimAll(rec))
		t.lines = append(t.lines, line)
	}

	return t, nil
}

// Column returns the index of the named column. Matching ignores case and
// surrounding whitespace.
func (t *Table) Column(name string) (int, bool) {
	i, ok := t.index[normalize(name)]
	return i, ok
}

// Require resolves every named column or fails with a MalformedInputError
// pointing at the header row.
func (t *Table) Require(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		c, ok := t.Column(name)
		if !ok {
			return nil, &MalformedInputError{
				Source: t.Source,
				Line:   1,
				Column: name,
				Err:    errors.New("required column missing"),
			}
		}
		idx[i] = c
	}
	return idx, nil
}

// Append adds a row. The row must have one field per header column.
func (t *Table) Append(row ...string) error {
	if len(row) != len(t.Header) {
		return fmt.Errorf("row has %d fields, header has %d", len(row), len(t.Header))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }

// LineOf maps a row index to its 1-based line number in the source file.
// Rows added with Append are numbered as if the file had no blank lines.
func (t *Table) LineOf(row int) int {
	if row >= 0 && row < len(t.lines) {
		return t.lines[row]
	}
	return row + 2
}

// Write emits the header followed by all rows.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFile writes the table to path, replacing any existing file.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write table: %w", err)
	}
	return f.Close()
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := normalize(h)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, v := range rec {
		out[i] = strings.TrimSpace(v)
	}
	return out
}
