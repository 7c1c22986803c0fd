package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/relabs-tech/irradiance_calibration/internal/dataset"
)

func powerLawSet(a, b float64, counts ...float64) dataset.TrainingSet {
	set := make(dataset.TrainingSet, len(counts))
	for i, c := range counts {
		set[i] = dataset.Sample{Count: c, Irradiance: a * math.Pow(c, b)}
	}
	return set
}

func TestFitRecoversPerfectPowerLaw(t *testing.T) {
	set := powerLawSet(2.5, 1.2, 10, 50, 100, 250, 500, 1000)
	res, err := Fit(set, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(res.A-2.5) > 1e-3 || math.Abs(res.B-1.2) > 1e-3 {
		t.Errorf("expected a=2.5 b=1.2, got a=%v b=%v", res.A, res.B)
	}
	if res.Method != MethodLevenbergMarquardt {
		t.Errorf("unexpected method %s", res.Method)
	}
}

func TestFitFromFixedGuess(t *testing.T) {
	set := powerLawSet(2.5, 1.2, 10, 50, 100, 250, 500, 1000)
	opts := DefaultOptions()
	opts.Guess = GuessFixed
	opts.InitialA = 2
	opts.InitialB = 1.1

	res, err := Fit(set, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(res.A-2.5) > 1e-3 || math.Abs(res.B-1.2) > 1e-3 {
		t.Errorf("expected a=2.5 b=1.2, got a=%v b=%v", res.A, res.B)
	}
	if res.Initial != (Model{A: 2, B: 1.1}) {
		t.Errorf("unexpected initial guess %+v", res.Initial)
	}
}

func TestFitIsIdempotent(t *testing.T) {
	set := dataset.TrainingSet{
		{Count: 120, Irradiance: 310},
		{Count: 260, Irradiance: 640},
		{Count: 400, Irradiance: 1010},
		{Count: 800, Irradiance: 2050},
	}
	first, err := Fit(set, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	second, err := Fit(set, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if first.Model != second.Model {
		t.Errorf("repeated fit differs: %+v vs %+v", first.Model, second.Model)
	}
}

func TestFitTwoPointsExact(t *testing.T) {
	set := dataset.TrainingSet{{Count: 200, Irradiance: 500}, {Count: 400, Irradiance: 1000}}
	res, err := Fit(set, DefaultOptions())
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(res.A-2.5) > 1e-6 || math.Abs(res.B-1) > 1e-6 {
		t.Errorf("expected a=2.5 b=1, got a=%v b=%v", res.A, res.B)
	}
}

func TestFitRejectsInvalidInput(t *testing.T) {
	cases := map[string]dataset.TrainingSet{
		"empty":     nil,
		"one":       {{Count: 10, Irradiance: 1}},
		"zero":      {{Count: 0, Irradiance: 0}, {Count: 10, Irradiance: 5}},
		"negative":  {{Count: -5, Irradiance: 1}, {Count: 10, Irradiance: 5}},
		"nan":       {{Count: 5, Irradiance: math.NaN()}, {Count: 10, Irradiance: 5}},
		"inf count": {{Count: math.Inf(1), Irradiance: 1}, {Count: 10, Irradiance: 5}},
	}
	for name, set := range cases {
		_, err := Fit(set, DefaultOptions())
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Errorf("%s: expected InvalidInputError, got %v", name, err)
		}
	}
}

func TestFitIterationLimitDiverges(t *testing.T) {
	set := powerLawSet(2.5, 1.2, 10, 50, 100, 250, 500, 1000)
	opts := DefaultOptions()
	opts.Guess = GuessFixed
	opts.InitialA = 100
	opts.InitialB = 0.1
	opts.MaxIterations = 1

	_, err := Fit(set, opts)
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("expected DivergenceError, got %v", err)
	}
	if div.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", div.Iterations)
	}
}

func TestFitNelderMead(t *testing.T) {
	set := powerLawSet(2.5, 1.2, 10, 50, 100, 250, 500, 1000)
	opts := DefaultOptions()
	opts.Method = MethodNelderMead
	opts.MaxIterations = 1000
	opts.Tolerance = 1e-8

	res, err := Fit(set, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(res.A-2.5) > 1e-3 || math.Abs(res.B-1.2) > 1e-3 {
		t.Errorf("expected a=2.5 b=1.2, got a=%v b=%v", res.A, res.B)
	}
	if res.Method != MethodNelderMead {
		t.Errorf("unexpected method %s", res.Method)
	}
}

// noisyPowerLawSet returns a*x^b with a fixed ±2% pattern of multiplicative
// error, over counts spread geometrically from 2e3 to 1.2e6.
func noisyPowerLawSet(a, b float64) dataset.TrainingSet {
	const n = 25
	set := make(dataset.TrainingSet, n)
	for i := range set {
		c := 2e3 * math.Pow(600, float64(i)/float64(n-1))
		noise := 1 + 0.02*math.Sin(1.7*float64(i)+0.3)
		set[i] = dataset.Sample{Count: c, Irradiance: a * math.Pow(c, b) * noise}
	}
	return set
}

// checkAgainstLM fits set with opts and compares the result to
// Levenberg-Marquardt from the same start.
func checkAgainstLM(t *testing.T, set dataset.TrainingSet, opts Options) {
	t.Helper()
	lmOpts := opts
	lmOpts.Method = MethodLevenbergMarquardt
	want, err := Fit(set, lmOpts)
	if err != nil {
		t.Fatalf("LM fit: %v", err)
	}

	got, err := Fit(set, opts)
	if err != nil {
		t.Fatalf("%s fit: %v", opts.Method, err)
	}
	if got.Model == got.Initial {
		t.Errorf("%s returned its starting point %+v unchanged", opts.Method, got.Initial)
	}
	if rel := (got.SSR - want.SSR) / want.SSR; rel > 1e-6 {
		t.Errorf("%s SSR %v exceeds LM SSR %v (relative %v)", opts.Method, got.SSR, want.SSR, rel)
	}
	if math.Abs(got.A-want.A)/want.A > 1e-3 || math.Abs(got.B-want.B) > 1e-4 {
		t.Errorf("%s a=%v b=%v, LM a=%v b=%v", opts.Method, got.A, got.B, want.A, want.B)
	}
}

func TestFitNelderMeadNoisyData(t *testing.T) {
	set := noisyPowerLawSet(0.004, 0.93)
	opts := DefaultOptions()
	opts.Method = MethodNelderMead
	opts.MaxIterations = 1000
	checkAgainstLM(t, set, opts)
}

func TestFitLBFGSNoisyData(t *testing.T) {
	set := noisyPowerLawSet(0.004, 0.93)
	opts := DefaultOptions()
	opts.Method = MethodLBFGS
	opts.MaxIterations = 1000
	checkAgainstLM(t, set, opts)
}

func TestFitLBFGSFromFixedGuess(t *testing.T) {
	set := noisyPowerLawSet(0.004, 0.93)
	opts := DefaultOptions()
	opts.Method = MethodLBFGS
	opts.Guess = GuessFixed
	opts.InitialA = 0.01
	opts.InitialB = 0.9
	opts.MaxIterations = 1000
	checkAgainstLM(t, set, opts)
}

func TestFitLBFGSPerfectPowerLaw(t *testing.T) {
	set := powerLawSet(2.5, 1.2, 10, 50, 100, 250, 500, 1000)
	opts := DefaultOptions()
	opts.Method = MethodLBFGS

	res, err := Fit(set, opts)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(res.A-2.5) > 1e-3 || math.Abs(res.B-1.2) > 1e-3 {
		t.Errorf("expected a=2.5 b=1.2, got a=%v b=%v", res.A, res.B)
	}
}

func TestMinimizeRejectsZeroInitialA(t *testing.T) {
	set := powerLawSet(2.5, 1.2, 10, 50, 100, 250)
	opts := DefaultOptions()
	opts.Method = MethodNelderMead
	opts.Guess = GuessFixed
	opts.InitialA = 0

	_, err := Fit(set, opts)
	var div *DivergenceError
	if !errors.As(err, &div) {
		t.Fatalf("expected DivergenceError, got %v", err)
	}
}

func TestInitialGuessFallsBack(t *testing.T) {
	x := []float64{1, 2, 3}
	got := InitialGuess(x, []float64{1, 0, 3}, DefaultOptions())
	if got != (Model{A: 1, B: 1}) {
		t.Errorf("expected fallback (1, 1), got %+v", got)
	}
	got = InitialGuess([]float64{5, 5}, []float64{1, 2}, DefaultOptions())
	if got != (Model{A: 1, B: 1}) {
		t.Errorf("expected fallback for constant counts, got %+v", got)
	}
}

func TestParseMethodAndGuess(t *testing.T) {
	for in, want := range map[string]Method{"lm": MethodLevenbergMarquardt, "Nelder-Mead": MethodNelderMead, "lbfgs": MethodLBFGS} {
		got, err := ParseMethod(in)
		if err != nil || got != want {
			t.Errorf("ParseMethod(%q) = (%v, %v), want %v", in, got, err, want)
		}
		if back, _ := ParseMethod(got.String()); back != got {
			t.Errorf("method %v does not round-trip through String", got)
		}
	}
	if _, err := ParseMethod("gauss"); err == nil {
		t.Errorf("expected error for unknown method")
	}
	if g, err := ParseGuess("fixed"); err != nil || g != GuessFixed {
		t.Errorf("ParseGuess(fixed) = (%v, %v)", g, err)
	}
	if _, err := ParseGuess("random"); err == nil {
		t.Errorf("expected error for unknown guess")
	}
}

func TestModelPredict(t *testing.T) {
	m := Model{A: 2.5, B: 1}
	if got := m.Predict(200); got != 500 {
		t.Errorf("Predict(200) = %v, want 500", got)
	}
}
