// Package lmfit implements a small Levenberg-Marquardt least squares solver
// for curve models with a handful of parameters.
//
// The solver minimizes the weighted sum of squared residuals
//
//	chi2(p) = sum_i ((y_i - model(p, x_i)) / sigma_i)^2
//
// over the free parameters. Individual parameters can be held fixed, and a
// soft penalty can pull selected parameters towards zero, implemented as an
// extra residual p_k/penalty_k. A larger penalty value therefore means a
// weaker pull.
//
// Jacobians are formed by central finite differences, and the damped normal
// equations are solved with [mat.VecDense.SolveVec]. Problems are expected
// to be small: a few parameters over at most a few hundred points.
package lmfit

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrBadProblem reports an inconsistent or underdetermined problem.
	ErrBadProblem = errors.New("lmfit: invalid problem")
	// ErrNoConvergence reports that the iteration limit was exhausted or
	// the damping factor grew beyond its ceiling.
	ErrNoConvergence = errors.New("lmfit: no convergence")
)

const (
	defaultMaxIter = 200
	defaultTol     = 1e-10

	lambdaInit   = 1e-3
	lambdaGrow   = 10
	lambdaShrink = 0.1
	lambdaMax    = 1e12

	diffStep  = 1e-6
	chi2Floor = 1e-30
	stepFloor = 1e-14
)

// ModelFunc evaluates the model curve for parameter vector p at every
// abscissa in x, returning a slice of len(x) values.
type ModelFunc func(p, x []float64) []float64

// Problem bundles the data to fit against and the model that generates the
// candidate curve.
type Problem struct {
	X     []float64 // abscissas
	Y     []float64 // observed values
	Sigma []float64 // per-point uncertainties, all > 0
	Model ModelFunc
}

// Config controls the optimization. The zero value fits all parameters
// freely with default iteration limits and no penalties.
type Config struct {
	// Free marks which parameters the solver may adjust. A nil slice
	// frees all of them; otherwise the length must match the parameter
	// vector.
	Free []bool
	// Penalty holds the per-parameter zero-pull uncertainty. Entries
	// that are zero (or a nil slice) disable the pull.
	Penalty []float64
	// MaxIter bounds the number of accepted iterations. Zero selects
	// the default of 200.
	MaxIter int
	// Tol is the relative chi-square decrease below which the fit is
	// considered converged. Zero selects the default of 1e-10.
	Tol float64
}

// Result holds the state of a finished fit.
type Result struct {
	Params []float64 // fitted parameter vector
	Curve  []float64 // model evaluated at Params over Problem.X
	Chi2   float64   // weighted sum of squared residuals, penalties included
	Iters  int       // accepted iterations
}

type solver struct {
	prob Problem
	cfg  Config

	free     []int // indices of adjustable parameters
	penalty  []int // indices of penalized parameters
	invSigma []float64

	diff []float64 // y - model scratch
}

// Solve fits the model parameters starting from init. The initial vector is
// not modified. On [ErrNoConvergence] the best parameters seen so far are
// still returned alongside the error.
func Solve(prob Problem, init []float64, cfg Config) (Result, error) {
	s, err := newSolver(prob, init, cfg)
	if err != nil {
		return Result{}, err
	}

	return s.run(init)
}

func newSolver(prob Problem, init []float64, cfg Config) (*solver, error) {
	n := len(prob.X)

	switch {
	case prob.Model == nil:
		return nil, fmt.Errorf("%w: nil model", ErrBadProblem)
	case n == 0:
		return nil, fmt.Errorf("%w: no data points", ErrBadProblem)
	case len(prob.Y) != n || len(prob.Sigma) != n:
		return nil, fmt.Errorf("%w: x/y/sigma lengths %d/%d/%d", ErrBadProblem, n, len(prob.Y), len(prob.Sigma))
	case len(init) == 0:
		return nil, fmt.Errorf("%w: empty parameter vector", ErrBadProblem)
	case cfg.Free != nil && len(cfg.Free) != len(init):
		return nil, fmt.Errorf("%w: free mask length %d for %d parameters", ErrBadProblem, len(cfg.Free), len(init))
	case cfg.Penalty != nil && len(cfg.Penalty) != len(init):
		return nil, fmt.Errorf("%w: penalty length %d for %d parameters", ErrBadProblem, len(cfg.Penalty), len(init))
	}

	for i := range n {
		if math.IsNaN(prob.X[i]) || math.IsNaN(prob.Y[i]) {
			return nil, fmt.Errorf("%w: NaN data at index %d", ErrBadProblem, i)
		}

		if prob.Sigma[i] <= 0 {
			return nil, fmt.Errorf("%w: sigma[%d] = %g", ErrBadProblem, i, prob.Sigma[i])
		}
	}

	if cfg.MaxIter <= 0 {
		cfg.MaxIter = defaultMaxIter
	}

	if cfg.Tol <= 0 {
		cfg.Tol = defaultTol
	}

	s := &solver{
		prob:     prob,
		cfg:      cfg,
		invSigma: make([]float64, n),
		diff:     make([]float64, n),
	}
	for i := range n {
		s.invSigma[i] = 1 / prob.Sigma[i]
	}

	for i := range init {
		if cfg.Free == nil || cfg.Free[i] {
			s.free = append(s.free, i)
		}

		if cfg.Penalty != nil && cfg.Penalty[i] > 0 {
			s.penalty = append(s.penalty, i)
		}
	}

	if len(s.free) > 0 && n+len(s.penalty) < len(s.free) {
		return nil, fmt.Errorf("%w: %d residuals for %d free parameters", ErrBadProblem, n+len(s.penalty), len(s.free))
	}

	return s, nil
}

// residuals fills r (length len(X)+len(penalty)) with the weighted data
// residuals followed by the penalty terms.
func (s *solver) residuals(p, r []float64) {
	n := len(s.prob.X)
	curve := s.prob.Model(p, s.prob.X)
	for i := range n {
		s.diff[i] = s.prob.Y[i] - curve[i]
	}
	vecmath.MulBlock(r[:n], s.diff, s.invSigma)

	for j, idx := range s.penalty {
		r[n+j] = -p[idx] / s.cfg.Penalty[idx]
	}
}

// jacobian fills column j of jac with the central difference of the
// residual vector along free parameter j.
func (s *solver) jacobian(p []float64, jac *mat.Dense, rp, rm []float64) {
	m := len(s.prob.X) + len(s.penalty)
	for j, idx := range s.free {
		p0 := p[idx]
		h := diffStep * math.Max(math.Abs(p0), 1)

		p[idx] = p0 + h
		s.residuals(p, rp)
		p[idx] = p0 - h
		s.residuals(p, rm)
		p[idx] = p0

		for i := range m {
			jac.Set(i, j, (rp[i]-rm[i])/(2*h))
		}
	}
}

//nolint:funlen
func (s *solver) run(init []float64) (Result, error) {
	np := len(init)
	m := len(s.prob.X) + len(s.penalty)

	p := make([]float64, np)
	copy(p, init)

	r := make([]float64, m)
	s.residuals(p, r)
	chi2 := floats.Dot(r, r)

	res := Result{Params: p, Chi2: chi2}
	finish := func() Result {
		res.Curve = s.prob.Model(res.Params, s.prob.X)
		return res
	}

	if len(s.free) == 0 || chi2 <= chi2Floor {
		return finish(), nil
	}

	nf := len(s.free)
	jac := mat.NewDense(m, nf, nil)
	rp := make([]float64, m)
	rm := make([]float64, m)
	rTry := make([]float64, m)
	pTry := make([]float64, np)

	lambda := lambdaInit

	for iter := 1; iter <= s.cfg.MaxIter; iter++ {
		s.jacobian(p, jac, rp, rm)

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)

		var grad mat.VecDense
		grad.MulVec(jac.T(), mat.NewVecDense(m, r))

		var stepNorm float64

		// Retry with stronger damping until a step lowers chi2.
		for {
			aug := mat.NewDense(nf, nf, nil)
			aug.Copy(&jtj)
			for k := range nf {
				d := jtj.At(k, k)
				if d == 0 {
					d = 1
				}

				aug.Set(k, k, jtj.At(k, k)+lambda*d)
			}

			var delta mat.VecDense
			if err := delta.SolveVec(aug, &grad); err != nil {
				lambda *= lambdaGrow
				if lambda > lambdaMax {
					return finish(), fmt.Errorf("%w: singular normal equations", ErrNoConvergence)
				}

				continue
			}

			copy(pTry, p)
			stepNorm = 0
			for j, idx := range s.free {
				d := delta.AtVec(j)
				pTry[idx] -= d
				stepNorm = math.Max(stepNorm, math.Abs(d))
			}

			s.residuals(pTry, rTry)
			chi2Try := floats.Dot(rTry, rTry)

			if chi2Try < chi2 {
				copy(p, pTry)
				copy(r, rTry)
				prev := chi2
				chi2 = chi2Try
				lambda = math.Max(lambda*lambdaShrink, 1e-12)

				res.Params = p
				res.Chi2 = chi2
				res.Iters = iter

				if prev-chi2 <= s.cfg.Tol*math.Max(prev, chi2Floor) || chi2 <= chi2Floor {
					return finish(), nil
				}

				break
			}

			// A rejected step this small cannot improve under stronger
			// damping either; the fit is at its numerical floor.
			if stepNorm <= stepFloor*math.Max(1, floats.Norm(p, math.Inf(1))) {
				return finish(), nil
			}

			lambda *= lambdaGrow
			if lambda > lambdaMax {
				return finish(), fmt.Errorf("%w: damping limit reached after %d iterations", ErrNoConvergence, iter)
			}
		}

		if stepNorm <= stepFloor*math.Max(1, floats.Norm(p, math.Inf(1))) {
			return finish(), nil
		}
	}

	return finish(), fmt.Errorf("%w: iteration limit %d reached", ErrNoConvergence, s.cfg.MaxIter)
}
