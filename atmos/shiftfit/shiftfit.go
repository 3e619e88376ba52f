// Package shiftfit aligns tabulated atmospheric quantity curves by fitting
// shift parameters in log space.
//
// A reference curve [Table] can be evaluated on an arbitrary abscissa grid
// under a parameter set [Params]: the curve is moved horizontally by DX,
// vertically by DY, and rescaled about its vertical center by 1+DScale.
// [Fit] recovers the parameters that best align a reference curve with
// observed data, using a damped least squares solver with optional soft
// constraints that pull individual shifts towards zero.
//
// Horizontal and vertical shifts are fitted by default; the scale factor is
// held at its initial value unless freed with [WithFreeScale].
package shiftfit

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-atmos/internal/lmfit"
	"gonum.org/v1/gonum/floats"
)

// ErrFitDiverged reports that the shift optimization did not converge.
var ErrFitDiverged = errors.New("shiftfit: shift fit diverged")

// Params are the shift parameters applied to a reference curve. Reserved is
// carried for layout compatibility and never fitted.
type Params struct {
	DX       float64 // horizontal shift along the depth axis
	DY       float64 // vertical shift of the quantity
	DScale   float64 // relative expansion about the vertical center
	Reserved float64
}

// Scaled returns the parameters multiplied by the factor c.
func (p Params) Scaled(c float64) Params {
	return Params{DX: c * p.DX, DY: c * p.DY, DScale: c * p.DScale, Reserved: c * p.Reserved}
}

func (p Params) vector() []float64 {
	return []float64{p.DX, p.DY, p.DScale, p.Reserved}
}

func paramsFromVector(v []float64) Params {
	return Params{DX: v[0], DY: v[1], DScale: v[2], Reserved: v[3]}
}

// Table is a tabulated reference curve with strictly increasing abscissas.
type Table struct {
	X []float64
	Y []float64
}

// Span returns the abscissa range covered by the table after a horizontal
// shift by dx.
func (t Table) Span(dx float64) (lo, hi float64) {
	if len(t.X) == 0 {
		return 0, 0
	}

	return t.X[0] + dx, t.X[len(t.X)-1] + dx
}

// Eval resamples the shifted curve onto the abscissas x. Points outside the
// shifted table are extrapolated linearly from the edge segments.
func (t Table) Eval(x []float64, p Params) []float64 {
	return t.evalVec(x, p.vector())
}

// EvalClipped is [Table.Eval] with the result clamped to the value range of
// ref. The fit uses this form to keep extrapolated tails bounded.
func (t Table) EvalClipped(x []float64, p Params, ref []float64) []float64 {
	out := t.evalVec(x, p.vector())
	clampToRange(out, ref)

	return out
}

func (t Table) evalVec(x []float64, pv []float64) []float64 {
	out := make([]float64, len(x))

	switch len(t.X) {
	case 0:
		return out
	case 1:
		for i := range out {
			out[i] = t.Y[0] + pv[1]
		}

		return out
	}

	dx, dy, dscale := pv[0], pv[1], pv[2]
	last := len(t.X) - 2

	for i, xi := range x {
		u := xi - dx

		j := sort.SearchFloat64s(t.X, u) - 1
		if j < 0 {
			j = 0
		} else if j > last {
			j = last
		}

		x0, x1 := t.X[j], t.X[j+1]
		y0, y1 := t.Y[j], t.Y[j+1]
		out[i] = y0 + (u-x0)*(y1-y0)/(x1-x0) + dy
	}

	if dscale != 0 {
		cen := 0.5 * (floats.Min(out) + floats.Max(out))
		for i := range out {
			out[i] = cen + (1+dscale)*(out[i]-cen)
		}
	}

	return out
}

func clampToRange(out, ref []float64) {
	if len(ref) == 0 {
		return
	}

	lo, hi := floats.Min(ref), floats.Max(ref)
	for i, v := range out {
		out[i] = math.Min(math.Max(v, lo), hi)
	}
}

// Result is the outcome of a shift fit.
type Result struct {
	Params Params    // fitted shift parameters
	Curve  []float64 // shifted reference evaluated on the data abscissas
	Chi2   float64   // weighted sum of squared residuals
	Iters  int       // accepted solver iterations
}

type config struct {
	clip      []float64
	penDX     float64
	penDY     float64
	freeScale bool
	maxIter   int
	tol       float64
}

// Option adjusts the fit configuration.
type Option func(*config)

// WithClip clamps every model evaluation during the fit to the value range
// of ref, so extrapolated tails cannot dominate the residuals.
func WithClip(ref []float64) Option {
	return func(c *config) { c.clip = ref }
}

// WithDXPenalty adds a soft pull of the horizontal shift towards zero with
// the given uncertainty. Larger values mean a weaker pull.
func WithDXPenalty(sigma float64) Option {
	return func(c *config) { c.penDX = sigma }
}

// WithDYPenalty adds a soft pull of the vertical shift towards zero with
// the given uncertainty.
func WithDYPenalty(sigma float64) Option {
	return func(c *config) { c.penDY = sigma }
}

// WithFreeScale releases the scale parameter DScale into the fit.
func WithFreeScale() Option {
	return func(c *config) { c.freeScale = true }
}

// WithMaxIter bounds the number of solver iterations.
func WithMaxIter(n int) Option {
	return func(c *config) { c.maxIter = n }
}

// WithTolerance sets the relative chi-square decrease that terminates the
// fit.
func WithTolerance(tol float64) Option {
	return func(c *config) { c.tol = tol }
}

// Fit aligns the reference curve with the observed data y over the
// abscissas x, starting from init. A nil sigma weights all points equally.
// The returned error wraps [ErrFitDiverged] when the solver fails to
// converge; the best parameters found are still returned alongside it.
func Fit(x, y, sigma []float64, init Params, ref Table, opts ...Option) (Result, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	if sigma == nil {
		sigma = make([]float64, len(x))
		for i := range sigma {
			sigma[i] = 1
		}
	}

	model := func(pv, xs []float64) []float64 {
		out := ref.evalVec(xs, pv)
		clampToRange(out, cfg.clip)

		return out
	}

	lres, err := lmfit.Solve(
		lmfit.Problem{X: x, Y: y, Sigma: sigma, Model: model},
		init.vector(),
		lmfit.Config{
			Free:    []bool{true, true, cfg.freeScale, false},
			Penalty: []float64{cfg.penDX, cfg.penDY, 0, 0},
			MaxIter: cfg.maxIter,
			Tol:     cfg.tol,
		},
	)

	res := Result{Chi2: lres.Chi2, Iters: lres.Iters, Curve: lres.Curve}
	if len(lres.Params) == len(init.vector()) {
		res.Params = paramsFromVector(lres.Params)
	}

	if err != nil {
		if errors.Is(err, lmfit.ErrNoConvergence) {
			return res, fmt.Errorf("%w after %d iterations", ErrFitDiverged, lres.Iters)
		}

		return res, fmt.Errorf("shiftfit: %w", err)
	}

	return res, nil
}
