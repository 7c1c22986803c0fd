// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/aggregate/main.go
//
// Collapses converted captures into one row per intensity step (-by intensity)
// or per burst of readings no more than -gap apart (-by time).
//
// Run:
//
//	go run ./cmd/aggregate -by intensity -o data/AM0_grouped.csv AM0.csv
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/relabs-tech/irradiance_calibration/internal/aggregate"
	"github.com/relabs-tech/irradiance_calibration/internal/table"
)

func main() {
	by := flag.String("by", "intensity", "Grouping: intensity or time")
	key := flag.String("key", "Intensity", "Grouping column for -by intensity")
	timeCol := flag.String("time", "Time", "Timestamp column for -by time")
	modeCols := flag.String("mode", "", "Comma-separated columns aggregated by most frequent value")
	meanCols := flag.String("mean", "CH0,CH1,Lux,Irradiance,Error", "Comma-separated columns aggregated by mean")
	gap := flag.Duration("gap", aggregate.DefaultGap, "Largest gap between readings of one group for -by time")
	output := flag.String("o", "grouped.csv", "Output CSV path")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] input.csv\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	in, err := table.ReadFile(flag.Arg(0))
	if err != nil {
		fatal(err)
	}

	var out *table.Table
	switch *by {
	case "intensity", "key":
		spec := aggregate.KeySpec{Key: *key, Mode: splitList(*modeCols), Mean: splitList(*meanCols)}
		log.Printf("aggregate: grouping %s by %s", flag.Arg(0), spec)
		out, err = aggregate.ByKey(in, spec)
	case "time":
		out, err = aggregate.ByTime(in, aggregate.TimeSpec{Time: *timeCol, Mean: splitList(*meanCols), Gap: *gap})
	default:
		fmt.Fprintf(os.Stderr, "ERROR: unknown -by %q (expected intensity or time)\n", *by)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}

	if err := out.WriteFile(*output); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %d groups from %d rows: %s\n", out.Len(), in.Len(), *output)
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
