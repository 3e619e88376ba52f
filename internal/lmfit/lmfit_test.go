package lmfit

import (
	"errors"
	"math"
	"testing"
)

func linearModel(p, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = p[0] + p[1]*v
	}

	return out
}

func expModel(p, x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = p[0] * math.Exp(p[1]*v)
	}

	return out
}

func makeProblem(model ModelFunc, truth []float64, n int, sigma float64) Problem {
	x := make([]float64, n)
	for i := range n {
		x[i] = 2 * float64(i) / float64(n-1)
	}

	y := model(truth, x)
	sig := make([]float64, n)
	for i := range sig {
		sig[i] = sigma
	}

	return Problem{X: x, Y: y, Sigma: sig, Model: model}
}

func TestSolveLinear(t *testing.T) {
	truth := []float64{1.5, -2.25}
	prob := makeProblem(linearModel, truth, 9, 0.05)

	res, err := Solve(prob, []float64{0, 0}, Config{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	for i, want := range truth {
		if math.Abs(res.Params[i]-want) > 1e-8 {
			t.Errorf("param %d = %.12f, want %.12f", i, res.Params[i], want)
		}
	}

	if res.Chi2 > 1e-16 {
		t.Errorf("chi2 = %g, want ~0", res.Chi2)
	}

	if res.Iters == 0 {
		t.Error("expected at least one accepted iteration")
	}
}

func TestSolveNonlinear(t *testing.T) {
	truth := []float64{2, 0.7}
	prob := makeProblem(expModel, truth, 11, 0.02)

	res, err := Solve(prob, []float64{1, 0.3}, Config{})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	for i, want := range truth {
		if math.Abs(res.Params[i]-want) > 1e-6 {
			t.Errorf("param %d = %.9f, want %.9f", i, res.Params[i], want)
		}
	}

	if len(res.Curve) != len(prob.X) {
		t.Fatalf("curve length %d, want %d", len(res.Curve), len(prob.X))
	}

	for i, v := range res.Curve {
		if math.Abs(v-prob.Y[i]) > 1e-5 {
			t.Errorf("curve[%d] = %g, want %g", i, v, prob.Y[i])
		}
	}
}

func TestSolveFixedParameter(t *testing.T) {
	truth := []float64{1.5, 2}
	prob := makeProblem(linearModel, truth, 7, 0.05)

	res, err := Solve(prob, []float64{0, 2}, Config{Free: []bool{true, false}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if res.Params[1] != 2 {
		t.Errorf("fixed param moved to %g", res.Params[1])
	}

	if math.Abs(res.Params[0]-1.5) > 1e-8 {
		t.Errorf("free param = %.12f, want 1.5", res.Params[0])
	}
}

func TestSolvePenaltyPullsTowardsZero(t *testing.T) {
	// Constant model with five points at 0.8 and sigma 0.1, plus a zero
	// pull with uncertainty 0.5. The analytic optimum is 0.8*500/504.
	constModel := func(p, x []float64) []float64 {
		out := make([]float64, len(x))
		for i := range out {
			out[i] = p[0]
		}

		return out
	}

	x := []float64{0, 1, 2, 3, 4}
	y := []float64{0.8, 0.8, 0.8, 0.8, 0.8}
	sig := []float64{0.1, 0.1, 0.1, 0.1, 0.1}

	res, err := Solve(Problem{X: x, Y: y, Sigma: sig, Model: constModel},
		[]float64{0}, Config{Penalty: []float64{0.5}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	want := 0.8 * 500 / 504
	if math.Abs(res.Params[0]-want) > 1e-9 {
		t.Errorf("penalized optimum = %.12f, want %.12f", res.Params[0], want)
	}
}

func TestSolveAllFixed(t *testing.T) {
	truth := []float64{1, 1}
	prob := makeProblem(linearModel, truth, 5, 0.1)

	res, err := Solve(prob, []float64{3, -1}, Config{Free: []bool{false, false}})
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	if res.Params[0] != 3 || res.Params[1] != -1 {
		t.Errorf("params = %v, want init unchanged", res.Params)
	}

	if res.Iters != 0 {
		t.Errorf("iters = %d, want 0", res.Iters)
	}
}

func TestSolveIterationLimit(t *testing.T) {
	truth := []float64{2, 0.7}
	prob := makeProblem(expModel, truth, 11, 0.02)

	res, err := Solve(prob, []float64{0.2, 0.01}, Config{MaxIter: 1})
	if !errors.Is(err, ErrNoConvergence) {
		t.Fatalf("Solve error = %v, want ErrNoConvergence", err)
	}

	if len(res.Params) != 2 {
		t.Fatal("best-so-far parameters not returned")
	}
}

func TestSolveBadProblem(t *testing.T) {
	good := makeProblem(linearModel, []float64{1, 1}, 5, 0.1)

	tests := []struct {
		name   string
		mutate func(*Problem, *Config, *[]float64)
	}{
		{"nil model", func(p *Problem, _ *Config, _ *[]float64) { p.Model = nil }},
		{"no data", func(p *Problem, _ *Config, _ *[]float64) { p.X = nil; p.Y = nil; p.Sigma = nil }},
		{"length mismatch", func(p *Problem, _ *Config, _ *[]float64) { p.Y = p.Y[:3] }},
		{"zero sigma", func(p *Problem, _ *Config, _ *[]float64) { p.Sigma[2] = 0 }},
		{"nan data", func(p *Problem, _ *Config, _ *[]float64) { p.Y[0] = math.NaN() }},
		{"empty init", func(_ *Problem, _ *Config, init *[]float64) { *init = nil }},
		{"mask length", func(_ *Problem, c *Config, _ *[]float64) { c.Free = []bool{true} }},
		{"penalty length", func(_ *Problem, c *Config, _ *[]float64) { c.Penalty = []float64{1} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob := good
			prob.Y = append([]float64(nil), good.Y...)
			prob.Sigma = append([]float64(nil), good.Sigma...)
			cfg := Config{}
			init := []float64{0, 0, 0}

			tt.mutate(&prob, &cfg, &init)

			if _, err := Solve(prob, init, cfg); !errors.Is(err, ErrBadProblem) {
				t.Fatalf("Solve error = %v, want ErrBadProblem", err)
			}
		})
	}
}
