// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fit estimates the power-law sensor response
//
//	irradiance = a * counts^b
//
// by nonlinear least squares over a training set.
package fit

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/irradiance_calibration/internal/dataset"
)

// Solver defaults.
const (
	DefaultMaxIterations     = 200
	DefaultTolerance         = 1e-10
	DefaultGradientTolerance = 1e-12
)

// Method selects the minimisation algorithm.
type Method int

const (
	MethodLevenbergMarquardt Method = iota
	MethodNelderMead
	MethodLBFGS
)

func (m Method) String() string {
	switch m {
	case MethodLevenbergMarquardt:
		return "lm"
	case MethodNelderMead:
		return "nelder-mead"
	case MethodLBFGS:
		return "lbfgs"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod accepts lm, nelder-mead and lbfgs.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lm", "levenberg-marquardt":
		return MethodLevenbergMarquardt, nil
	case "nelder-mead", "neldermead":
		return MethodNelderMead, nil
	case "lbfgs", "l-bfgs":
		return MethodLBFGS, nil
	}
	return 0, fmt.Errorf("unknown fit method %q (expected lm, nelder-mead or lbfgs)", s)
}

// Guess selects how the starting point is chosen.
type Guess int

const (
	// GuessLogLinear regresses ln(irradiance) on ln(counts).
	GuessLogLinear Guess = iota
	// GuessFixed starts from Options.InitialA and Options.InitialB.
	GuessFixed
)

func (g Guess) String() string {
	if g == GuessFixed {
		return "fixed"
	}
	return "loglinear"
}

// ParseGuess accepts loglinear and fixed.
func ParseGuess(s string) (Guess, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loglinear", "log-linear":
		return GuessLogLinear, nil
	case "fixed":
		return GuessFixed, nil
	}
	return 0, fmt.Errorf("unknown initial guess %q (expected loglinear or fixed)", s)
}

// Options configures a fit. Non-positive limits fall back to the defaults.
type Options struct {
	Method            Method
	Guess             Guess
	InitialA          float64
	InitialB          float64
	MaxIterations     int
	Tolerance         float64
	GradientTolerance float64
}

// DefaultOptions returns Levenberg-Marquardt from a log-linear guess.
func DefaultOptions() Options {
	return Options{
		Method:            MethodLevenbergMarquardt,
		Guess:             GuessLogLinear,
		InitialA:          1,
		InitialB:          1,
		MaxIterations:     DefaultMaxIterations,
		Tolerance:         DefaultTolerance,
		GradientTolerance: DefaultGradientTolerance,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.GradientTolerance <= 0 {
		o.GradientTolerance = DefaultGradientTolerance
	}
	return o
}

// Model holds the fitted coefficients.
type Model struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Predict returns a * count^b.
func (m Model) Predict(count float64) float64 {
	return m.A * math.Pow(count, m.B)
}

// Result is a fitted model together with solver metadata.
type Result struct {
	Model
	Initial    Model
	Method     Method
	Iterations int
	SSR        float64
}

// InvalidInputError reports a training set the fitter refuses to work on.
type InvalidInputError struct {
	Index  int
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("invalid fit input at sample %d: %s", e.Index, e.Reason)
	}
	return "invalid fit input: " + e.Reason
}

// DivergenceError reports a solver that did not reach a finite optimum.
type DivergenceError struct {
	Method     Method
	Iterations int
	Reason     string
	Err        error
}

func (e *DivergenceError) Error() string {
	msg := fmt.Sprintf("fit did not converge (%s, %d iterations): %s", e.Method, e.Iterations, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DivergenceError) Unwrap() error { return e.Err }

// Fit estimates a and b minimising the sum of squared residuals.
// The same set and options always produce the same coefficients.
func Fit(set dataset.TrainingSet, opts Options) (*Result, error) {
	if err := Validate(set); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	x, y := set.Counts(), set.Irradiances()
	start := InitialGuess(x, y, opts)

	var (
		m     Model
		iters int
		err   error
	)
	switch opts.Method {
	case MethodLevenbergMarquardt:
		m, iters, err = levenbergMarquardt(x, y, start, opts)
	case MethodNelderMead, MethodLBFGS:
		m, iters, err = minimize(x, y, start, opts)
	default:
		return nil, fmt.Errorf("unsupported fit method %s", opts.Method)
	}
	if err != nil {
		return nil, err
	}

	ssr := sumSquares(x, y, m)
	if !isFinite(m.A) || !isFinite(m.B) || !isFinite(ssr) {
		return nil, &DivergenceError{Method: opts.Method, Iterations: iters, Reason: "non-finite coefficients"}
	}
	return &Result{Model: m, Initial: start, Method: opts.Method, Iterations: iters, SSR: ssr}, nil
}

// Validate checks the preconditions of Fit.
func Validate(set dataset.TrainingSet) error {
	if len(set) < 2 {
		return &InvalidInputError{Index: -1, Reason: fmt.Sprintf("need at least 2 samples, got %d", len(set))}
	}
	for i, s := range set {
		if !isFinite(s.Count) || !isFinite(s.Irradiance) {
			return &InvalidInputError{Index: i, Reason: "non-finite value"}
		}
		if s.Count <= 0 {
			return &InvalidInputError{Index: i, Reason: fmt.Sprintf("count %v is not positive", s.Count)}
		}
	}
	return nil
}

// InitialGuess returns the solver starting point for x, y.
func InitialGuess(x, y []float64, opts Options) Model {
	if opts.Guess == GuessFixed {
		return Model{A: opts.InitialA, B: opts.InitialB}
	}
	fallback := Model{A: 1, B: 1}

	lx := make([]float64, len(x))
	ly := make([]float64, len(y))
	for i := range x {
		if y[i] <= 0 {
			return fallback
		}
		lx[i] = math.Log(x[i])
		ly[i] = math.Log(y[i])
	}
	alpha, beta := stat.LinearRegression(lx, ly, nil, false)
	m := Model{A: math.Exp(alpha), B: beta}
	if !isFinite(m.A) || !isFinite(m.B) || m.A == 0 {
		return fallback
	}
	return m
}

func sumSquares(x, y []float64, m Model) float64 {
	var s float64
	for i := range x {
		r := m.Predict(x[i]) - y[i]
		s += r * r
	}
	return s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
