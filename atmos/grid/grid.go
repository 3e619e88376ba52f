package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-atmos/atmos/blend"
	"github.com/cwbudde/algo-atmos/atmos/profile"
	"go.uber.org/zap"
)

// Sentinel errors reported by [Interpolate].
var (
	ErrOutOfRange       = errors.New("grid: target outside grid range")
	ErrGeometryConflict = errors.New("grid: geometry conflict")
	ErrMissingVariable  = errors.New("grid: depth variable not present in grid")
)

// Solar constants anchoring the spherical radius computation.
const (
	solarRadius = 69.550e9 // cm
	solarLogg   = 4.44
)

// cornerTopTrim drops the top layer of every corner model during the
// metallicity blends. Grid models sometimes sample the uppermost layers
// with tiny mass column steps, which destabilize the depth shift fits.
const cornerTopTrim = 1

type config struct {
	depthVar  profile.DepthVar
	interpVar profile.DepthVar
	geom      profile.Geometry
	logger    *zap.Logger
}

// Option adjusts a single interpolation call.
type Option func(*config)

// WithDepthVar requests the depth scale stamped on the output for radiative
// transfer. The default follows the dataset hint and then prefers RHOX.
func WithDepthVar(v profile.DepthVar) Option {
	return func(c *config) { c.depthVar = v }
}

// WithInterpVar requests the depth scale the shift fits run on. The default
// follows the dataset hint and then prefers TAU.
func WithInterpVar(v profile.DepthVar) Option {
	return func(c *config) { c.interpVar = v }
}

// WithGeometry declares the geometry the caller intends to use. Requesting
// spherical from a grid that resolves plane parallel is a fatal conflict;
// the reverse is allowed and wins over the grid with a warning.
func WithGeometry(g profile.Geometry) Option {
	return func(c *config) { c.geom = g }
}

// WithLogger routes advisory diagnostics (extrapolation, ambiguous corner
// matches) and blend traces to the given logger. The default discards them.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// cornerSet holds the eight bracketing models, indexed by metallicity,
// gravity and temperature side (low then high).
type cornerSet [2][2][2]*profile.Atmosphere

// Interpolate builds the model atmosphere at the target parameters from the
// grid: the eight bracketing corner models are blended pairwise along
// metallicity, then gravity, then temperature, each fraction computed from
// the actual bracketing values. The output carries the resolved depth and
// interpolation scales and the geometry of the corners.
func Interpolate(ds *Dataset, teff, logg, monh float64, opts ...Option) (profile.Atmosphere, error) {
	cfg := config{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if ds == nil || len(ds.Models) == 0 {
		return profile.Atmosphere{}, fmt.Errorf("%w: no models", ErrInvalidDataset)
	}

	depthVar, interpVar, err := resolveVars(ds, &cfg)
	if err != nil {
		return profile.Atmosphere{}, err
	}

	corners, err := findCorners(ds, teff, logg, monh, cfg.logger)
	if err != nil {
		return profile.Atmosphere{}, err
	}

	out, err := cascade(corners, teff, logg, monh, interpVar, &cfg)
	if err != nil {
		return profile.Atmosphere{}, err
	}

	geom, radius := sphericalGeometry(corners, logg)
	switch {
	case cfg.geom == profile.GeomSpherical && geom == profile.GeomPlaneParallel:
		return profile.Atmosphere{}, fmt.Errorf("%w: spherical geometry requested, grid result is plane parallel", ErrGeometryConflict)
	case cfg.geom == profile.GeomPlaneParallel && geom == profile.GeomSpherical:
		cfg.logger.Warn("plane parallel geometry overrides spherical grid result",
			zap.Float64("radius", radius))
		geom, radius = profile.GeomPlaneParallel, 0
	}

	out.Depth = depthVar
	out.Interp = interpVar
	out.Geom = geom
	out.Radius = radius

	return out, nil
}

// findCorners brackets the target on all three axes and resolves the eight
// corner models. Gravity brackets are computed per metallicity boundary and
// temperature brackets per (metallicity, gravity) boundary, so irregular
// grids bracket correctly.
func findCorners(ds *Dataset, teff, logg, monh float64, log *zap.Logger) (*cornerSet, error) {
	mlo, mup, mext, err := bracket(ds.monhValues(), monh, "metallicity", true)
	if err != nil {
		return nil, err
	}

	if mext {
		log.Warn("extrapolating above grid maximum",
			zap.String("axis", "metallicity"), zap.Float64("target", monh), zap.Float64("max", mup))
	}

	mb := [2]float64{mlo, mup}

	var gb [2][2]float64
	for im, m := range mb {
		glo, gup, gext, err := bracket(ds.loggValues(m), logg, "gravity", true)
		if err != nil {
			return nil, err
		}

		if gext {
			log.Warn("extrapolating above grid maximum",
				zap.String("axis", "gravity"), zap.Float64("target", logg), zap.Float64("max", gup))
		}

		gb[im] = [2]float64{glo, gup}
	}

	var tb [2][2][2]float64
	for im := range mb {
		for ig := range gb[im] {
			tlo, tup, text, err := bracket(ds.teffValues(mb[im], gb[im][ig]), teff, "temperature", false)
			if err != nil {
				return nil, err
			}

			if text {
				log.Warn("extrapolating below grid minimum",
					zap.String("axis", "temperature"), zap.Float64("target", teff), zap.Float64("min", tlo))
			}

			tb[im][ig] = [2]float64{tlo, tup}
		}
	}

	var cs cornerSet
	for im := range cs {
		for ig := range cs[im] {
			for it := range cs[im][ig] {
				c, err := findModel(ds, tb[im][ig][it], gb[im][ig], mb[im], log)
				if err != nil {
					return nil, err
				}

				cs[im][ig][it] = c
			}
		}
	}

	log.Debug("bracketed interpolation target",
		zap.Float64s("metallicity", mb[:]),
		zap.Float64s("gravity low", gb[0][:]), zap.Float64s("gravity high", gb[1][:]))

	return &cs, nil
}

// bracket returns the two values of the sorted list enclosing target, equal
// on an exact node. Each axis permits extrapolation on one side only:
// metallicity and gravity above their maximum, temperature below its
// minimum; the extrap flag marks a one-sided result built from the two
// boundary values.
func bracket(list []float64, target float64, axis string, extrapAbove bool) (lo, hi float64, extrap bool, err error) {
	if len(list) == 0 {
		return 0, 0, false, fmt.Errorf("%w: no %s values in grid", ErrOutOfRange, axis)
	}

	minVal, maxVal := list[0], list[len(list)-1]

	switch {
	case extrapAbove && target < minVal:
		return 0, 0, false, fmt.Errorf("%w: %s %g below grid minimum %g", ErrOutOfRange, axis, target, minVal)
	case extrapAbove && target > maxVal:
		if len(list) < 2 {
			return 0, 0, false, fmt.Errorf("%w: single %s value %g cannot extrapolate to %g", ErrOutOfRange, axis, maxVal, target)
		}

		return list[len(list)-2], maxVal, true, nil
	case !extrapAbove && target > maxVal:
		return 0, 0, false, fmt.Errorf("%w: %s %g above grid maximum %g", ErrOutOfRange, axis, target, maxVal)
	case !extrapAbove && target < minVal:
		if len(list) < 2 {
			return 0, 0, false, fmt.Errorf("%w: single %s value %g cannot extrapolate to %g", ErrOutOfRange, axis, minVal, target)
		}

		return minVal, list[1], true, nil
	}

	i := sort.SearchFloat64s(list, target)
	if list[i] == target {
		return target, target, false, nil
	}

	return list[i-1], list[i], false, nil
}

// findModel resolves one corner key to a grid model. Multiple matches are
// advisory and the first wins; zero matches means the grid lacks a node the
// bracket search promised.
func findModel(ds *Dataset, teff, logg, monh float64, log *zap.Logger) (*profile.Atmosphere, error) {
	var first *profile.Atmosphere

	matches := 0
	for i := range ds.Models {
		m := &ds.Models[i]
		if m.Teff == teff && m.Logg == logg && m.MonH == monh {
			if first == nil {
				first = m
			}

			matches++
		}
	}

	if first == nil {
		return nil, fmt.Errorf("%w: no model at Teff=%g logg=%g [M/H]=%g", ErrOutOfRange, teff, logg, monh)
	}

	if matches > 1 {
		log.Warn("ambiguous corner model match", zap.Int("matches", matches),
			zap.Float64("teff", teff), zap.Float64("logg", logg), zap.Float64("monh", monh))
	}

	return first, nil
}

// cascade blends the eight corners down to one model: four metallicity
// blends with the top corner layer trimmed, two gravity blends, one
// temperature blend. Gravity and temperature fractions use the blended
// scalars of the previous stage.
func cascade(cs *cornerSet, teff, logg, monh float64, iv profile.DepthVar, cfg *config) (profile.Atmosphere, error) {
	var ms [2][2]profile.Atmosphere
	for ig := range 2 {
		for it := range 2 {
			lo, up := cs[0][ig][it], cs[1][ig][it]

			m, err := blendPair(lo, up, lo.MonH, up.MonH, monh, cornerTopTrim, iv, cfg)
			if err != nil {
				return profile.Atmosphere{}, fmt.Errorf("grid: metallicity blend: %w", err)
			}

			ms[ig][it] = m
		}
	}

	var gs [2]profile.Atmosphere
	for it := range 2 {
		lo, up := &ms[0][it], &ms[1][it]

		m, err := blendPair(lo, up, lo.Logg, up.Logg, logg, 0, iv, cfg)
		if err != nil {
			return profile.Atmosphere{}, fmt.Errorf("grid: gravity blend: %w", err)
		}

		gs[it] = m
	}

	out, err := blendPair(&gs[0], &gs[1], gs[0].Teff, gs[1].Teff, teff, 0, iv, cfg)
	if err != nil {
		return profile.Atmosphere{}, fmt.Errorf("grid: temperature blend: %w", err)
	}

	return out, nil
}

// blendPair interpolates between two models with the fraction implied by
// the axis values. Equal values mean the same model on both sides; the
// shift fits must not run then, and the result is the trimmed first model.
func blendPair(p1, p2 *profile.Atmosphere, v0, v1, target float64, topTrim int, iv profile.DepthVar, cfg *config) (profile.Atmosphere, error) {
	if v0 == v1 {
		cfg.logger.Debug("degenerate bracket, reusing node model", zap.Float64("value", v0))

		return blend.Trim(p1, topTrim, iv)
	}

	frac := (target - v0) / (v1 - v0)

	return blend.Blend(p1, p2, frac,
		blend.WithTopTrim(topTrim), blend.WithInterpVar(iv), blend.WithLogger(cfg.logger))
}

// sphericalGeometry decides the output geometry. The result is spherical
// only when every corner carries a height vector and a usable radius; the
// output radius then follows from the mean corner mass and the target
// gravity.
func sphericalGeometry(cs *cornerSet, logg float64) (profile.Geometry, float64) {
	sum := 0.0

	for im := range cs {
		for ig := range cs[im] {
			for it := range cs[im][ig] {
				c := cs[im][ig][it]
				if c.Radius <= 1 || c.Height == nil {
					return profile.GeomPlaneParallel, 0
				}

				sum += c.Logg - solarLogg - 2*math.Log10(solarRadius/c.Radius)
			}
		}
	}

	mass := math.Pow(10, sum/8)
	radius := solarRadius * math.Pow(10, 0.5*(solarLogg-logg+math.Log10(mass)))

	return profile.GeomSpherical, radius
}

// resolveVars picks the output depth scale and the interpolation scale.
// Precedence: caller option, dataset hint, first model hint, then RHOX for
// depth and TAU for interpolation, then whichever scale remains.
func resolveVars(ds *Dataset, cfg *config) (depth, interp profile.DepthVar, err error) {
	depth = cfg.depthVar
	if depth == profile.VarUnset {
		depth = ds.DefaultDepth
	}

	if depth == profile.VarUnset {
		depth = ds.Models[0].Depth
	}

	if depth == profile.VarUnset {
		switch {
		case ds.HasRhox():
			depth = profile.VarRhox
		case ds.HasTau():
			depth = profile.VarTau
		}
	}

	if err := checkVar(ds, depth, "depth"); err != nil {
		return profile.VarUnset, profile.VarUnset, err
	}

	interp = cfg.interpVar
	if interp == profile.VarUnset {
		interp = ds.DefaultInterp
	}

	if interp == profile.VarUnset {
		interp = ds.Models[0].Interp
	}

	if interp == profile.VarUnset {
		switch {
		case ds.HasTau():
			interp = profile.VarTau
		case ds.HasRhox():
			interp = profile.VarRhox
		}
	}

	if err := checkVar(ds, interp, "interpolation"); err != nil {
		return profile.VarUnset, profile.VarUnset, err
	}

	return depth, interp, nil
}

func checkVar(ds *Dataset, v profile.DepthVar, role string) error {
	if v != profile.VarRhox && v != profile.VarTau {
		return fmt.Errorf("%w: no %s scale available", ErrMissingVariable, role)
	}

	if !ds.hasVar(v) {
		return fmt.Errorf("%w: %s scale %s", ErrMissingVariable, role, v)
	}

	return nil
}
