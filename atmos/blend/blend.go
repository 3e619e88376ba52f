package blend

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-atmos/atmos/profile"
	"github.com/cwbudde/algo-atmos/atmos/shiftfit"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Sentinel errors reported by [Blend].
var (
	ErrMissingDepthScale = errors.New("blend: interpolation depth scale missing")
	ErrMissingQuantity   = errors.New("blend: required quantity missing")
	ErrUnstableShift     = errors.New("blend: unstable depth shift")
)

// Tunables of the shift interpolation scheme.
const (
	// minDepthStep is the minimum fractional step between consecutive
	// depth points. Smaller steps at the top of the atmosphere cause
	// wild shifts when resampling onto a common scale and are trimmed.
	minDepthStep = 0.01

	// shiftSigma is the uncertainty adopted for every point of a shift
	// fit. The absolute value is arbitrary, only ratios matter.
	shiftSigma = 0.05

	// shiftPenalty is the uncertainty of the zero pull on the
	// horizontal shift, applied to every fit.
	shiftPenalty = 0.5

	// Deep ends within endAnchorTol of endAnchorLog (in log10 of the
	// quantity) mark profiles whose extrapolated bottom may need to be
	// replaced by the deeper-reaching input.
	endAnchorLog = 4.2
	endAnchorTol = 0.1
)

type config struct {
	topTrim   int
	interpVar profile.DepthVar
	logger    *zap.Logger
}

// Option adjusts how a pair of models is blended.
type Option func(*config)

// WithTopTrim drops the first n depth points of both models before
// interpolation, in addition to the automatic trim of layers with tiny
// depth steps.
func WithTopTrim(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.topTrim = n
		}
	}
}

// WithInterpVar selects the depth scale the interpolation runs on. The
// default prefers TAU and falls back to RHOX.
func WithInterpVar(v profile.DepthVar) Option {
	return func(c *config) { c.interpVar = v }
}

// WithLogger routes fit diagnostics to the given logger. The default
// discards them.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// quantity is one atmospheric vector participating in the shift fits, in
// log10 after top trimming.
type quantity struct {
	name   string
	v1, v2 []float64
}

// Blend interpolates between two model atmospheres. A fraction of 0
// returns the first model, 1 the second; intermediate fractions mix them
// on a common depth scale built from the fitted shifts. Both models must
// carry TEMP, XNE, XNA, RHO and the interpolation depth scale, with
// strictly increasing positive depth vectors.
//
//nolint:funlen,gocognit,cyclop
func Blend(p1, p2 *profile.Atmosphere, frac float64, opts ...Option) (profile.Atmosphere, error) {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	iv, err := pickInterpVar(p1, p2, cfg.interpVar)
	if err != nil {
		return profile.Atmosphere{}, err
	}

	for _, q := range []struct {
		name   string
		d1, d2 []float64
	}{
		{"TEMP", p1.Temp, p2.Temp},
		{"XNE", p1.Xne, p2.Xne},
		{"XNA", p1.Xna, p2.Xna},
		{"RHO", p1.Rho, p2.Rho},
	} {
		if q.d1 == nil || q.d2 == nil {
			return profile.Atmosphere{}, fmt.Errorf("%w: %s", ErrMissingQuantity, q.name)
		}
	}

	d1raw := p1.DepthVector(iv)
	d2raw := p2.DepthVector(iv)

	itop1 := trimTop(d1raw, cfg.topTrim)
	itop2 := trimTop(d2raw, cfg.topTrim)

	depth1 := log10Slice(d1raw[itop1:])
	depth2 := log10Slice(d2raw[itop2:])
	ndep1 := len(depth1)
	ndep2 := len(depth2)

	if ndep1 < 2 || ndep2 < 2 {
		return profile.Atmosphere{}, fmt.Errorf("%w: %d and %d points left after top trim", ErrUnstableShift, ndep1, ndep2)
	}

	if itop1 > cfg.topTrim || itop2 > cfg.topTrim {
		cfg.logger.Debug("trimmed dense top layers",
			zap.Int("top1", itop1), zap.Int("top2", itop2))
	}

	// Quantities to shift, temperature first. The interpolation variable
	// itself is shifted too, so the output carries a consistent depth
	// vector. If the other depth scale is present in both models it
	// tags along.
	quants := []quantity{
		{"TEMP", log10Slice(p1.Temp[itop1:]), log10Slice(p2.Temp[itop2:])},
		{"XNE", log10Slice(p1.Xne[itop1:]), log10Slice(p2.Xne[itop2:])},
		{"XNA", log10Slice(p1.Xna[itop1:]), log10Slice(p2.Xna[itop2:])},
		{"RHO", log10Slice(p1.Rho[itop1:]), log10Slice(p2.Rho[itop2:])},
		{iv.String(), depth1, depth2},
	}

	switch {
	case iv == profile.VarTau && p1.Rhox != nil && p2.Rhox != nil:
		quants = append(quants, quantity{"RHOX", log10Slice(p1.Rhox[itop1:]), log10Slice(p2.Rhox[itop2:])})
	case iv == profile.VarRhox && p1.Tau != nil && p2.Tau != nil:
		quants = append(quants, quantity{"TAU", log10Slice(p1.Tau[itop1:]), log10Slice(p2.Tau[itop2:])})
	}

	// Initial guess for the temperature fit: align the depth and
	// temperature midpoints of the two models.
	mid1 := midpointIndex(quants[0].v1)
	mid2 := midpointIndex(quants[0].v2)
	init := shiftfit.Params{
		DX: depth1[mid1] - depth2[mid2],
		DY: quants[0].v1[mid1] - quants[0].v2[mid2],
	}

	sigma := make([]float64, ndep1)
	for i := range sigma {
		sigma[i] = shiftSigma
	}

	pars := make([]shiftfit.Params, len(quants))
	lo, hi := 0, ndep1

	for i, q := range quants {
		res, err := shiftfit.Fit(depth1[lo:hi], q.v1[lo:hi], sigma[lo:hi], init,
			shiftfit.Table{X: depth2, Y: q.v2},
			shiftfit.WithClip(q.v1),
			shiftfit.WithDXPenalty(shiftPenalty))
		if err != nil {
			return profile.Atmosphere{}, fmt.Errorf("blend: fitting %s: %w", q.name, err)
		}

		pars[i] = res.Params
		cfg.logger.Debug("fitted depth shift",
			zap.String("quantity", q.name),
			zap.Float64("dx", res.Params.DX),
			zap.Float64("dy", res.Params.DY),
			zap.Float64("chi2", res.Chi2),
			zap.Int("iters", res.Iters))

		// The temperature shift seeds the remaining fits, which are
		// restricted to the depth range both shifted models cover.
		if i == 0 {
			init = shiftfit.Params{DX: res.Params.DX}
			lo, hi = overlapRange(depth1, depth2[0]+init.DX, depth2[ndep2-1]+init.DX)

			if hi-lo < 2 {
				return profile.Atmosphere{}, fmt.Errorf("%w: temperature shift leaves %d overlapping points", ErrUnstableShift, hi-lo)
			}
		}
	}

	// The mean horizontal shift over all quantities builds the common
	// output depth scale.
	dxs := make([]float64, len(pars))
	for i, p := range pars {
		dxs[i] = p.DX
	}
	xsh := stat.Mean(dxs, nil)

	// Base the output depth scale on the input scale with fewer points.
	// Combine the two when they have the same number of points.
	var depth []float64
	switch {
	case ndep1 > ndep2:
		depth = make([]float64, ndep2)
		for i, v := range depth2 {
			depth[i] = v + xsh*(1-frac)
		}
	case ndep1 < ndep2:
		depth = make([]float64, ndep1)
		for i, v := range depth1 {
			depth[i] = v - xsh*frac
		}
	default:
		depth = make([]float64, ndep1)
		for i := range depth {
			depth[i] = (1-frac)*(depth1[i]-xsh*frac) + frac*(depth2[i]+xsh*(1-frac))
		}
	}

	vects := make([][]float64, len(quants))
	for i, q := range quants {
		vects[i] = blendQuantity(&cfg, q, pars[i], depth, depth1, depth2, frac)
	}

	return assemble(p1, p2, iv, quants, vects, depth, frac), nil
}

// blendQuantity evaluates both shifted models on the output depth scale
// and mixes them. Output points below the deeper end of both shifted
// models may be replaced by the deeper-reaching model when the mixed value
// falls outside the bracket of the two inputs near the expected anchor.
func blendQuantity(cfg *config, q quantity, par shiftfit.Params, depth, depth1, depth2 []float64, frac float64) []float64 {
	ndep1 := len(depth1)
	ndep2 := len(depth2)
	ndep := len(depth)

	x1max := depth1[ndep1-1] - par.DX*frac
	x2max := depth2[ndep2-1] + par.DX*(1-frac)

	v1f := shiftfit.Table{X: depth1, Y: q.v1}.Eval(depth, par.Scaled(-frac))
	v2f := shiftfit.Table{X: depth2, Y: q.v2}.Eval(depth, par.Scaled(1-frac))

	vect := make([]float64, ndep)
	for j := range vect {
		vect[j] = (1-frac)*v1f[j] + frac*v2f[j]
	}

	nup := 0
	for _, d := range depth {
		if d > x1max || d > x2max {
			nup++
		}
	}

	if nup >= 1 && math.Abs(frac-0.5) <= 0.5 && ndep1 == ndep2 {
		end1 := q.v1[ndep1-1]
		end2 := q.v2[ndep2-1]
		endB := vect[ndep-1]

		nearAnchor := math.Abs(end1-endAnchorLog) < endAnchorTol || math.Abs(end2-endAnchorLog) < endAnchorTol
		if median3(end1, endB, end2) != endB && nearAnchor {
			src := v1f
			if x1max < x2max {
				src = v2f
			}

			for j, d := range depth {
				if d > x1max || d > x2max {
					vect[j] = src[j]
				}
			}

			cfg.logger.Debug("replaced extrapolated deep end",
				zap.String("quantity", q.name), zap.Int("points", nup))
		}
	}

	return vect
}

// assemble builds the output model: scalars mixed by the fraction, blended
// vectors transformed back from log space, everything else carried over
// from the first model with vectors trimmed to the output depth count.
func assemble(p1, p2 *profile.Atmosphere, iv profile.DepthVar, quants []quantity, vects [][]float64, depth []float64, frac float64) profile.Atmosphere {
	ndep := len(depth)

	out := profile.Atmosphere{
		Teff:   (1-frac)*p1.Teff + frac*p2.Teff,
		Logg:   (1-frac)*p1.Logg + frac*p2.Logg,
		MonH:   (1-frac)*p1.MonH + frac*p2.MonH,
		Vturb:  (1-frac)*p1.Vturb + frac*p2.Vturb,
		Lonh:   (1-frac)*p1.Lonh + frac*p2.Lonh,
		Wlstd:  p1.Wlstd,
		Radius: p1.Radius,
		Depth:  p1.Depth,
		Interp: p1.Interp,
		Geom:   p1.Geom,
		Ndep:   ndep,
		Opflag: p1.Opflag,
	}

	for i := range out.Abund {
		out.Abund[i] = (1-frac)*p1.Abund[i] + frac*p2.Abund[i]
	}

	if p1.Height != nil && len(p1.Height) >= ndep {
		out.Height = headCopy(p1.Height, ndep)
	}

	// A depth scale present in only the first model cannot be blended
	// and is carried over trimmed.
	if iv == profile.VarTau && p1.Rhox != nil && p2.Rhox == nil && len(p1.Rhox) >= ndep {
		out.Rhox = headCopy(p1.Rhox, ndep)
	}

	if iv == profile.VarRhox && p1.Tau != nil && p2.Tau == nil && len(p1.Tau) >= ndep {
		out.Tau = headCopy(p1.Tau, ndep)
	}

	for i, q := range quants {
		v := pow10Slice(vects[i])
		switch q.name {
		case "TEMP":
			out.Temp = v
		case "XNE":
			out.Xne = v
		case "XNA":
			out.Xna = v
		case "RHO":
			out.Rho = v
		case "TAU":
			out.Tau = v
		case "RHOX":
			out.Rhox = v
		}
	}

	return out
}

func pickInterpVar(p1, p2 *profile.Atmosphere, want profile.DepthVar) (profile.DepthVar, error) {
	if want == profile.VarUnset {
		switch {
		case p1.Tau != nil && p2.Tau != nil:
			return profile.VarTau, nil
		case p1.Rhox != nil && p2.Rhox != nil:
			return profile.VarRhox, nil
		default:
			return profile.VarUnset, fmt.Errorf("%w: no depth scale common to both models", ErrMissingDepthScale)
		}
	}

	if p1.DepthVector(want) == nil || p2.DepthVector(want) == nil {
		return profile.VarUnset, fmt.Errorf("%w: %s not present in both models", ErrMissingDepthScale, want)
	}

	return want, nil
}

// trimTop advances the top index past depth layers whose fractional step
// is below minDepthStep.
func trimTop(d []float64, start int) int {
	itop := start
	if itop < 0 {
		itop = 0
	}

	if itop > len(d) {
		return len(d)
	}

	for itop+1 < len(d)-1 && d[itop+1]/d[itop]-1 <= minDepthStep {
		itop++
	}

	return itop
}

// midpointIndex locates the point closest to the midpoint between the
// second and the second to last value of the curve.
func midpointIndex(v []float64) int {
	target := 0.5 * (v[1] + v[len(v)-2])

	best := 0
	bestDiff := math.Inf(1)
	for i, x := range v {
		if d := math.Abs(x - target); d < bestDiff {
			best, bestDiff = i, d
		}
	}

	return best
}

// overlapRange returns the half-open index range of x covered by [lo, hi].
// x must be sorted in increasing order.
func overlapRange(x []float64, lo, hi float64) (int, int) {
	i0 := sort.SearchFloat64s(x, lo)

	i1 := sort.SearchFloat64s(x, hi)
	for i1 < len(x) && x[i1] <= hi {
		i1++
	}

	if i1 < i0 {
		i1 = i0
	}

	return i0, i1
}

// median3 returns the middle of three values without averaging.
func median3(a, b, c float64) float64 {
	lo, hi := math.Min(a, b), math.Max(a, b)
	switch {
	case c < lo:
		return lo
	case c > hi:
		return hi
	default:
		return c
	}
}

func log10Slice(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = mathLog10(x)
	}

	return out
}

func pow10Slice(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = mathPow10(x)
	}

	return out
}

func headCopy(v []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, v[:n])

	return out
}
