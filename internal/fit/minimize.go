// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fit

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

const (
	// nmSimplexSize is the starting simplex edge in scaled coordinates.
	// Each restart that finds nothing better divides it by ten, up to
	// nmShrinks times, before the point is accepted.
	nmSimplexSize = 0.02
	nmShrinks     = 2
	// maxRestarts bounds the number of solver runs in one fit.
	maxRestarts = 10
	// settledGradient is the scaled gradient norm below which a run that
	// stopped on a failed line search is treated as sitting on the minimum.
	settledGradient = 1e-8
	// stallIterations is how long the best value may stay flat in one run.
	stallIterations = 20
)

// scaledProblem is SSR in the coordinates (u, b) where
//
//	a*x^b = sign * exp(u + b*(ln x - c))
//
// with c the mean of ln x. SSR is divided by Σy² so that tolerances are
// relative. Both coordinates then move predictions by comparable
// fractions, which the raw (a, b) pair does not.
type scaledProblem struct {
	lx    []float64 // ln x - c
	y     []float64
	c     float64
	sign  float64
	scale float64
}

func newScaledProblem(x, y []float64, start Model) (*scaledProblem, []float64, error) {
	if start.A == 0 || !isFinite(start.A) || !isFinite(start.B) {
		return nil, nil, errors.New("initial a must be finite and non-zero")
	}
	lx := make([]float64, len(x))
	for i, v := range x {
		lx[i] = math.Log(v)
	}
	c := stat.Mean(lx, nil)
	floats.AddConst(-c, lx)

	sp := &scaledProblem{lx: lx, y: y, c: c, sign: 1, scale: floats.Dot(y, y)}
	if start.A < 0 {
		sp.sign = -1
	}
	if sp.scale == 0 {
		sp.scale = 1
	}
	return sp, []float64{math.Log(math.Abs(start.A)) + start.B*c, start.B}, nil
}

func (sp *scaledProblem) model(p []float64) Model {
	return Model{A: sp.sign * math.Exp(p[0]-p[1]*sp.c), B: p[1]}
}

func (sp *scaledProblem) f(p []float64) float64 {
	var s float64
	for i, d := range sp.lx {
		r := sp.sign*math.Exp(p[0]+p[1]*d) - sp.y[i]
		s += r * r
	}
	return s / sp.scale
}

func (sp *scaledProblem) grad(grad, p []float64) {
	grad[0], grad[1] = 0, 0
	for i, d := range sp.lx {
		pred := sp.sign * math.Exp(p[0]+p[1]*d)
		r := pred - sp.y[i]
		grad[0] += 2 * r * pred
		grad[1] += 2 * r * pred * d
	}
	grad[0] /= sp.scale
	grad[1] /= sp.scale
}

func (sp *scaledProblem) gradNorm(p []float64) float64 {
	g := make([]float64, 2)
	sp.grad(g, p)
	return floats.Norm(g, math.Inf(1))
}

// minimize fits through gonum/optimize by minimising SSR directly.
func minimize(x, y []float64, start Model, opts Options) (Model, int, error) {
	sp, p, err := newScaledProblem(x, y, start)
	if err != nil {
		return Model{}, 0, &DivergenceError{Method: opts.Method, Reason: "bad initial guess", Err: err}
	}
	problem := optimize.Problem{Func: sp.f, Grad: sp.grad}
	if opts.Method == MethodNelderMead {
		return nelderMead(sp, problem, p, opts)
	}
	return lbfgs(sp, problem, p, opts)
}

func settings(opts Options) *optimize.Settings {
	return &optimize.Settings{
		MajorIterations:   opts.MaxIterations,
		GradientThreshold: opts.GradientTolerance,
		Converger: &optimize.FunctionConverge{
			Absolute:   opts.Tolerance * opts.Tolerance,
			Relative:   opts.Tolerance,
			Iterations: stallIterations,
		},
	}
}

// improves reports whether next is better than prev by more than the
// convergence tolerance.
func improves(prev, next float64, opts Options) bool {
	maxAbs := math.Max(math.Abs(prev), math.Abs(next))
	return prev-next > opts.Tolerance*maxAbs+opts.Tolerance*opts.Tolerance
}

// nelderMead restarts the simplex from the best point until a fresh
// simplex at the smallest size finds nothing better. A run whose best
// vertex never moved says only that its simplex was too coarse, so the
// next run uses a smaller one.
func nelderMead(sp *scaledProblem, problem optimize.Problem, p []float64, opts Options) (Model, int, error) {
	f := sp.f(p)
	shrinks := 0
	total := 0
	for run := 0; run < maxRestarts; run++ {
		size := nmSimplexSize / math.Pow(10, float64(shrinks))
		res, err := optimize.Minimize(problem, p, settings(opts), &optimize.NelderMead{SimplexSize: size})
		if res == nil {
			return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: "solver failed", Err: err}
		}
		total += res.Stats.MajorIterations
		if err != nil || res.Status.Early() {
			if err == nil {
				err = res.Status.Err()
			}
			return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: res.Status.String(), Err: err}
		}
		if !isFinite(res.F) {
			return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: "non-finite objective"}
		}

		moved := improves(f, res.F, opts)
		if res.F < f {
			p, f = res.X, res.F
		}
		if moved {
			continue
		}
		if shrinks == nmShrinks {
			return sp.model(p), total, nil
		}
		shrinks++
	}
	return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: "still improving after restarts"}
}

// lbfgs restarts with fresh curvature memory whenever a run stops on a
// failed line search away from the minimum.
func lbfgs(sp *scaledProblem, problem optimize.Problem, p []float64, opts Options) (Model, int, error) {
	total := 0
	for run := 0; run < maxRestarts; run++ {
		res, err := optimize.Minimize(problem, p, settings(opts), &optimize.LBFGS{})
		if res == nil {
			return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: "solver failed", Err: err}
		}
		total += res.Stats.MajorIterations
		if !isFinite(res.F) {
			return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: "non-finite objective"}
		}
		p = res.X

		if err == nil && !res.Status.Early() {
			return sp.model(p), total, nil
		}
		// A line search that can no longer make progress at a flat point
		// has run out of precision on the minimum.
		if sp.gradNorm(p) <= settledGradient {
			return sp.model(p), total, nil
		}
		if res.Status == optimize.IterationLimit {
			if err == nil {
				err = res.Status.Err()
			}
			return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: res.Status.String(), Err: err}
		}
	}
	return Model{}, total, &DivergenceError{Method: opts.Method, Iterations: total, Reason: "line search kept failing away from the minimum"}
}
