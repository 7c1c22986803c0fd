// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Fits the TSL2591 irradiance response
//
//	irradiance [W/m²] = a * counts^b
//
// to the measurements listed in the configuration file, joined against the
// reference irradiance of each spectrum.
//
// Output:
//
//	Fit and residual plots, a summary card and a JSON result file under OUTPUT_DIR.
//	The result is also published to MQTT_TOPIC when MQTT_BROKER is set.
//
// Run:
//
//	go run ./cmd/calibration -config calibration_config.txt
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/relabs-tech/irradiance_calibration/internal/app"
	"github.com/relabs-tech/irradiance_calibration/internal/config"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to configuration file (empty to use defaults and environment only)")
	flag.Parse()

	fmt.Println("=== Irradiance Calibration (y = a*x^b) ===")

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()

	var pub app.Publisher
	if cfg.MQTTBroker != "" {
		p, err := app.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			fatal(err)
		}
		defer p.Close()
		pub = p
	}

	obs := app.ObserverFunc(func(stage string, _ float64) {
		fmt.Printf("-> %s\n", stage)
	})

	out, err := app.RunCalibration(context.Background(), cfg, obs, pub)
	if err != nil {
		fatal(err)
	}

	fmt.Println()
	fmt.Printf("Fitted coefficients: a = %v, b = %v\n", out.Fit.A, out.Fit.B)
	if out.Result.RSquared != nil {
		fmt.Printf("R-squared: %.4f\n", *out.Result.RSquared)
	} else {
		fmt.Println("R-squared: undefined (reference irradiance has zero variance)")
	}
	fmt.Printf("Mean absolute error: %.2f W/m²\n", out.Result.MAE)
	fmt.Printf("Samples: %d (dropped %d)\n", out.Result.Samples, out.Result.Dropped)
	for _, w := range out.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Printf("Saved to %s\n", out.Result.Files.Result)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}
