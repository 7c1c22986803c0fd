// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// lmTau scales the initial damping against the largest diagonal of JᵀJ.
	lmTau = 1e-3
	// exactFit stops the solver once SSR is negligible against Σy².
	exactFit = 1e-24
)

// lmState holds the residuals and normal equations at one parameter point.
type lmState struct {
	p   [2]float64
	r   []float64
	jtj *mat.SymDense
	g   *mat.VecDense
	ssr float64
}

func evaluate(x, y []float64, a, b float64) lmState {
	n := len(x)
	s := lmState{p: [2]float64{a, b}, r: make([]float64, n)}
	var j00, j01, j11, g0, g1 float64
	for i := 0; i < n; i++ {
		pow := math.Pow(x[i], b)
		r := a*pow - y[i]
		da := pow
		db := a * pow * math.Log(x[i])

		s.r[i] = r
		s.ssr += r * r
		j00 += da * da
		j01 += da * db
		j11 += db * db
		g0 += da * r
		g1 += db * r
	}
	s.jtj = mat.NewSymDense(2, []float64{j00, j01, j01, j11})
	s.g = mat.NewVecDense(2, []float64{g0, g1})
	return s
}

func (s lmState) finite() bool {
	return isFinite(s.ssr) && isFinite(s.g.AtVec(0)) && isFinite(s.g.AtVec(1))
}

// levenbergMarquardt runs a damped Gauss-Newton iteration with the Nielsen
// damping update. The step h solves (JᵀJ + μI)h = -Jᵀr.
func levenbergMarquardt(x, y []float64, start Model, opts Options) (Model, int, error) {
	cur := evaluate(x, y, start.A, start.B)
	if !cur.finite() {
		return Model{}, 0, &DivergenceError{Method: MethodLevenbergMarquardt, Reason: "initial guess gives non-finite residuals"}
	}

	stop := exactFit * floats.Dot(y, y)
	mu := lmTau * math.Max(cur.jtj.At(0, 0), cur.jtj.At(1, 1))
	if mu == 0 {
		mu = lmTau
	}
	nu := 2.0

	damped := mat.NewDense(2, 2, nil)
	negG := mat.NewVecDense(2, nil)
	var h mat.VecDense

	for iter := 0; ; iter++ {
		if cur.ssr <= stop || mat.Norm(cur.g, math.Inf(1)) <= opts.GradientTolerance {
			return Model{A: cur.p[0], B: cur.p[1]}, iter, nil
		}
		if iter >= opts.MaxIterations {
			return Model{}, iter, &DivergenceError{
				Method:     MethodLevenbergMarquardt,
				Iterations: iter,
				Reason:     "iteration limit reached",
			}
		}
		if math.IsInf(mu, 0) || math.IsNaN(mu) {
			return Model{}, iter, &DivergenceError{
				Method:     MethodLevenbergMarquardt,
				Iterations: iter,
				Reason:     "damping overflow",
			}
		}

		damped.Copy(cur.jtj)
		damped.Set(0, 0, damped.At(0, 0)+mu)
		damped.Set(1, 1, damped.At(1, 1)+mu)
		negG.ScaleVec(-1, cur.g)

		if err := h.SolveVec(damped, negG); err != nil {
			if _, ok := err.(mat.Condition); !ok {
				mu *= nu
				nu *= 2
				continue
			}
		}

		pNorm := math.Hypot(cur.p[0], cur.p[1])
		if mat.Norm(&h, 2) <= opts.Tolerance*(pNorm+opts.Tolerance) {
			return Model{A: cur.p[0], B: cur.p[1]}, iter, nil
		}

		next := evaluate(x, y, cur.p[0]+h.AtVec(0), cur.p[1]+h.AtVec(1))

		// Predicted reduction of 0.5·SSR for the linearised model.
		predicted := 0.5 * (mu*mat.Dot(&h, &h) - mat.Dot(&h, cur.g))
		rho := 0.5 * (cur.ssr - next.ssr) / predicted

		if next.finite() && predicted > 0 && rho > 0 {
			cur = next
			mu *= math.Max(1.0/3, 1-math.Pow(2*rho-1, 3))
			nu = 2
			continue
		}
		mu *= nu
		nu *= 2
	}
}
