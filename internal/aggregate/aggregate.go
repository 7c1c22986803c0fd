// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package aggregate collapses repeated sensor readings into one row per
// intensity step or per burst of readings taken close together in time.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/irradiance_calibration/internal/table"
)

// TimeLayout parses serial-monitor timestamps with or without milliseconds.
const TimeLayout = "15:04:05.999999999"

// DefaultGap separates time groups.
const DefaultGap = time.Minute

// KeySpec configures ByKey.
type KeySpec struct {
	Key  string   // grouping column
	Mode []string // categorical columns, most frequent value
	Mean []string // numeric columns, mean rounded to 2 decimals
}

// TimeSpec configures ByTime.
type TimeSpec struct {
	Time string
	Mean []string
	Gap  time.Duration
}

// ByKey groups rows sharing a key value. When every key is a number, keys
// are compared by value and written in their shortest form, and groups are
// ordered numerically; otherwise keys are compared and ordered as text.
func ByKey(in *table.Table, spec KeySpec) (*table.Table, error) {
	keyCol, err := in.Require(spec.Key)
	if err != nil {
		return nil, err
	}
	modeCols, err := in.Require(spec.Mode...)
	if err != nil {
		return nil, err
	}
	meanCols, err := in.Require(spec.Mean...)
	if err != nil {
		return nil, err
	}

	numeric := allNumeric(in, keyCol[0])
	groups := make(map[string][]int)
	var keys []string
	for i, row := range in.Rows {
		k := row[keyCol[0]]
		if numeric {
			// 120 and 120.00 are the same intensity.
			v, _ := strconv.ParseFloat(k, 64)
			k = strconv.FormatFloat(v, 'f', -1, 64)
		}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	sortKeys(keys)

	header := []string{in.Header[keyCol[0]]}
	for _, c := range modeCols {
		header = append(header, in.Header[c])
	}
	for _, c := range meanCols {
		header = append(header, in.Header[c])
	}
	out := table.New(header...)

	for _, k := range keys {
		rows := groups[k]
		rec := []string{k}
		for _, c := range modeCols {
			rec = append(rec, mode(in, rows, c))
		}
		for _, c := range meanCols {
			m, err := mean(in, rows, c)
			if err != nil {
				return nil, err
			}
			rec = append(rec, m)
		}
		if err := out.Append(rec...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ByTime starts a new group whenever consecutive timestamps are more than
// spec.Gap apart. Each group reports its first time (seconds precision) and
// the rounded mean of the numeric columns.
func ByTime(in *table.Table, spec TimeSpec) (*table.Table, error) {
	if spec.Gap <= 0 {
		spec.Gap = DefaultGap
	}
	timeCol, err := in.Require(spec.Time)
	if err != nil {
		return nil, err
	}
	meanCols, err := in.Require(spec.Mean...)
	if err != nil {
		return nil, err
	}

	header := []string{in.Header[timeCol[0]]}
	for _, c := range meanCols {
		header = append(header, in.Header[c])
	}
	out := table.New(header...)

	flush := func(first time.Time, rows []int) error {
		rec := []string{first.Format("15:04:05")}
		for _, c := range meanCols {
			m, err := mean(in, rows, c)
			if err != nil {
				return err
			}
			rec = append(rec, m)
		}
		return out.Append(rec...)
	}

	var (
		group []int
		first time.Time
		prev  time.Time
	)
	for i, row := range in.Rows {
		ts, err := time.Parse(TimeLayout, row[timeCol[0]])
		if err != nil {
			return nil, &table.MalformedInputError{
				Source: in.Source,
				Line:   in.LineOf(i),
				Column: in.Header[timeCol[0]],
				Value:  row[timeCol[0]],
				Err:    err,
			}
		}
		if len(group) > 0 && ts.Sub(prev) > spec.Gap {
			if err := flush(first, group); err != nil {
				return nil, err
			}
			group = group[:0]
		}
		if len(group) == 0 {
			first = ts
		}
		group = append(group, i)
		prev = ts
	}
	if len(group) > 0 {
		if err := flush(first, group); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mean(in *table.Table, rows []int, col int) (string, error) {
	vals := make([]float64, 0, len(rows))
	for _, r := range rows {
		v, err := strconv.ParseFloat(in.Rows[r][col], 64)
		if err != nil {
			return "", &table.MalformedInputError{
				Source: in.Source,
				Line:   in.LineOf(r),
				Column: in.Header[col],
				Value:  in.Rows[r][col],
				Err:    err,
			}
		}
		vals = append(vals, v)
	}
	return formatRounded(stat.Mean(vals, nil)), nil
}

// mode returns the most frequent value; ties go to the smallest value.
func mode(in *table.Table, rows []int, col int) string {
	counts := make(map[string]int)
	for _, r := range rows {
		counts[in.Rows[r][col]]++
	}
	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sortKeys(values)

	best := values[0]
	for _, v := range values[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

func allNumeric(in *table.Table, col int) bool {
	for _, row := range in.Rows {
		if _, err := strconv.ParseFloat(row[col], 64); err != nil {
			return false
		}
	}
	return true
}

// sortKeys orders numerically when every value is a number, else lexically.
func sortKeys(keys []string) {
	nums := make(map[string]float64, len(keys))
	for _, k := range keys {
		v, err := strconv.ParseFloat(k, 64)
		if err != nil {
			sort.Strings(keys)
			return
		}
		nums[k] = v
	}
	sort.SliceStable(keys, func(i, j int) bool { return nums[keys[i]] < nums[keys[j]] })
}

func formatRounded(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// String describes the spec for log lines.
func (s KeySpec) String() string {
	return fmt.Sprintf("key=%s mode=%v mean=%v", s.Key, s.Mode, s.Mean)
}
