// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package serialog converts TSL2591 serial-monitor captures into CSV tables.
//
// A capture interleaves intensity markers with sensor lines:
//
//	120
//	10:31:58.809 -> 1049268,19373,10005,18482.34,935.77,48.63,27.56
//
// A line made only of digits sets the solar-simulator intensity applied to
// every following sensor line.
package serialog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/relabs-tech/irradiance_calibration/internal/table"
)

// NoIntensity marks rows captured before any intensity line.
const NoIntensity = -1

const arrow = " -> "

// Header is the column layout of converted tables.
var Header = []string{"Time", "ArduinoTime", "Intensity", "CH0", "CH1", "Lux", "Irradiance", "Error", "Temperature"}

// Convert reads a capture and returns the converted table. Row order follows
// the capture.
func Convert(r io.Reader, source string) (*table.Table, error) {
	out := table.New(Header...)
	out.Source = source
	intensity := NoIntensity

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if isDigits(line) {
			v, err := strconv.Atoi(line)
			if err != nil {
				return nil, &table.MalformedInputError{Source: source, Line: lineNum, Column: "Intensity", Value: line, Err: err}
			}
			intensity = v
			continue
		}

		fields := strings.Split(strings.Replace(line, arrow, ",", 1), ",")
		if len(fields) != len(Header)-1 {
			return nil, &table.MalformedInputError{
				Source: source,
				Line:   lineNum,
				Value:  line,
				Err:    fmt.Errorf("expected %d fields, got %d", len(Header)-1, len(fields)),
			}
		}
		row := make([]string, 0, len(Header))
		row = append(row, fields[:2]...)
		row = append(row, strconv.Itoa(intensity))
		row = append(row, fields[2:]...)
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
		if err := out.Append(row...); err != nil {
			return nil, &table.MalformedInputError{Source: source, Line: lineNum, Value: line, Err: err}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return out, nil
}

// OutputPath returns path with its extension replaced by .csv.
func OutputPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".csv"
}

// ConvertFile converts the capture at path and writes it next to the input.
// It returns the path written.
func ConvertFile(path string) (string, error) {
	out := OutputPath(path)
	if out == path {
		return "", errors.New("input already has a .csv extension, refusing to overwrite it")
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	tbl, err := Convert(f, path)
	if err != nil {
		return "", err
	}
	if err := tbl.WriteFile(out); err != nil {
		return "", err
	}
	return out, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
