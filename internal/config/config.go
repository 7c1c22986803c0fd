// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/relabs-tech/irradiance_calibration/internal/fit"
)

// DefaultPath is the configuration file read by the binaries.
const DefaultPath = "calibration_config.txt"

// MeasurementSource names the CSV holding readings for one spectrum.
type MeasurementSource struct {
	Spectrum string
	Path     string
}

// Config holds all application configuration values.
type Config struct {
	// Inputs
	ReferenceFile string
	Measurements  []MeasurementSource

	// Fit
	FitMethod        fit.Method
	FitInitialGuess  fit.Guess
	FitInitialA      float64
	FitInitialB      float64
	FitMaxIterations int
	FitTolerance     float64

	// Outputs, relative names resolve against OutputDir
	OutputDir        string
	PlotFitFile      string
	PlotResidualFile string
	PlotSummaryFile  string
	PlotDPI          int
	PlotWidthIn      float64
	PlotHeightIn     float64
	ResultFile       string

	// MQTT (publishing is skipped when MQTTBroker is empty)
	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	// Web Server
	WebServerPort int
}

// Keys lists every recognised key, in file order.
var Keys = []string{
	"REFERENCE_FILE",
	"MEASUREMENTS",
	"FIT_METHOD",
	"FIT_INITIAL_GUESS",
	"FIT_INITIAL_A",
	"FIT_INITIAL_B",
	"FIT_MAX_ITERATIONS",
	"FIT_TOLERANCE",
	"OUTPUT_DIR",
	"PLOT_FIT_FILE",
	"PLOT_RESIDUAL_FILE",
	"PLOT_SUMMARY_FILE",
	"PLOT_DPI",
	"PLOT_WIDTH_IN",
	"PLOT_HEIGHT_IN",
	"RESULT_FILE",
	"MQTT_BROKER",
	"MQTT_CLIENT_ID",
	"MQTT_TOPIC",
	"WEB_SERVER_PORT",
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is not set anywhere.
func Default() *Config {
	return &Config{
		ReferenceFile: "data/spectrum_reference.csv",
		Measurements: []MeasurementSource{
			{Spectrum: "AM0", Path: "data/AM0_grouped.csv"},
			{Spectrum: "AM1.5G", Path: "data/AM15G_grouped.csv"},
		},
		FitMethod:        fit.MethodLevenbergMarquardt,
		FitInitialGuess:  fit.GuessLogLinear,
		FitInitialA:      1,
		FitInitialB:      1,
		FitMaxIterations: fit.DefaultMaxIterations,
		FitTolerance:     fit.DefaultTolerance,
		OutputDir:        ".",
		PlotFitFile:      "fitted_results.png",
		PlotResidualFile: "residuals.png",
		PlotSummaryFile:  "summary.png",
		PlotDPI:          150,
		PlotWidthIn:      6.4,
		PlotHeightIn:     4.8,
		ResultFile:       "irradiance_calibration.json",
		MQTTClientID:     "irradiance-calibration",
		MQTTTopic:        "calibration/irradiance",
		WebServerPort:    8080,
	}
}

// Load reads the configuration file, then applies the environment overlay
// (.env file and process environment) on top of it. An empty configPath
// skips the file.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.readFile(configPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) readFile(configPath string) error {
	file, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// applyEnv loads an optional .env file and lets any set variable override
// the file value for the same key.
func (c *Config) applyEnv() error {
	_ = godotenv.Load()

	for _, key := range Keys {
		value, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := c.setValue(key, strings.TrimSpace(value)); err != nil {
			return fmt.Errorf("environment: %w", err)
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Inputs
	case "REFERENCE_FILE":
		c.ReferenceFile = value
	case "MEASUREMENTS":
		sources, err := ParseMeasurements(value)
		if err != nil {
			return fmt.Errorf("invalid MEASUREMENTS %q: %w", value, err)
		}
		c.Measurements = sources

	// Fit
	case "FIT_METHOD":
		m, err := fit.ParseMethod(value)
		if err != nil {
			return err
		}
		c.FitMethod = m
	case "FIT_INITIAL_GUESS":
		g, err := fit.ParseGuess(value)
		if err != nil {
			return err
		}
		c.FitInitialGuess = g
	case "FIT_INITIAL_A":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FIT_INITIAL_A %q: %w", value, err)
		}
		c.FitInitialA = v
	case "FIT_INITIAL_B":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FIT_INITIAL_B %q: %w", value, err)
		}
		c.FitInitialB = v
	case "FIT_MAX_ITERATIONS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FIT_MAX_ITERATIONS %q: %w", value, err)
		}
		if v < 1 || v > 100000 {
			return fmt.Errorf("FIT_MAX_ITERATIONS must be 1-100000, got %d", v)
		}
		c.FitMaxIterations = v
	case "FIT_TOLERANCE":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid FIT_TOLERANCE %q: %w", value, err)
		}
		if v <= 0 || v >= 1 {
			return fmt.Errorf("FIT_TOLERANCE must be in (0, 1), got %g", v)
		}
		c.FitTolerance = v

	// Outputs
	case "OUTPUT_DIR":
		c.OutputDir = value
	case "PLOT_FIT_FILE":
		c.PlotFitFile = value
	case "PLOT_RESIDUAL_FILE":
		c.PlotResidualFile = value
	case "PLOT_SUMMARY_FILE":
		c.PlotSummaryFile = value
	case "PLOT_DPI":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PLOT_DPI %q: %w", value, err)
		}
		if v < 10 || v > 1200 {
			return fmt.Errorf("PLOT_DPI must be 10-1200, got %d", v)
		}
		c.PlotDPI = v
	case "PLOT_WIDTH_IN":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid PLOT_WIDTH_IN %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("PLOT_WIDTH_IN must be positive, got %g", v)
		}
		c.PlotWidthIn = v
	case "PLOT_HEIGHT_IN":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid PLOT_HEIGHT_IN %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("PLOT_HEIGHT_IN must be positive, got %g", v)
		}
		c.PlotHeightIn = v
	case "RESULT_FILE":
		c.ResultFile = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_TOPIC":
		c.MQTTTopic = value

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// ParseMeasurements parses "SPECTRUM=path;SPECTRUM=path".
func ParseMeasurements(value string) ([]MeasurementSource, error) {
	var out []MeasurementSource
	seen := make(map[string]bool)
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("entry %q is not SPECTRUM=path", item)
		}
		spectrum, path := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if spectrum == "" || path == "" {
			return nil, fmt.Errorf("entry %q has an empty spectrum or path", item)
		}
		if seen[spectrum] {
			return nil, fmt.Errorf("spectrum %q listed twice", spectrum)
		}
		seen[spectrum] = true
		out = append(out, MeasurementSource{Spectrum: spectrum, Path: path})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no measurement files listed")
	}
	return out, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.ReferenceFile == "" {
		return fmt.Errorf("REFERENCE_FILE is required")
	}
	if len(c.Measurements) == 0 {
		return fmt.Errorf("MEASUREMENTS is required")
	}
	if c.PlotFitFile == "" || c.PlotResidualFile == "" {
		return fmt.Errorf("PLOT_FIT_FILE and PLOT_RESIDUAL_FILE are required")
	}
	if c.ResultFile == "" {
		return fmt.Errorf("RESULT_FILE is required")
	}
	if c.MQTTBroker != "" && c.MQTTTopic == "" {
		return fmt.Errorf("MQTT_TOPIC is required when MQTT_BROKER is set")
	}
	return nil
}

// OutputPath resolves name against OutputDir. Absolute names and an empty
// OutputDir leave name unchanged.
func (c *Config) OutputPath(name string) string {
	if name == "" || filepath.IsAbs(name) || c.OutputDir == "" {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// FitOptions converts the fit keys to solver options.
func (c *Config) FitOptions() fit.Options {
	opts := fit.DefaultOptions()
	opts.Method = c.FitMethod
	opts.Guess = c.FitInitialGuess
	opts.InitialA = c.FitInitialA
	opts.InitialB = c.FitInitialB
	opts.MaxIterations = c.FitMaxIterations
	opts.Tolerance = c.FitTolerance
	return opts
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
