// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/raw2csv/main.go
//
// Converts TSL2591 serial-monitor captures to CSV. Each output is written
// next to its input with a .csv extension.
//
// Run:
//
//	go run ./cmd/raw2csv capture.txt [more.txt ...]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/irradiance_calibration/internal/serialog"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s capture.txt [more.txt ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	for _, path := range flag.Args() {
		out, err := serialog.ConvertFile(path)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote: %s\n", out)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
