package grid

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cwbudde/algo-atmos/atmos/profile"
)

// ErrInvalidDataset reports a dataset that cannot serve interpolation.
var ErrInvalidDataset = errors.New("grid: invalid dataset")

// Dataset is a loaded atmosphere grid: a flat list of reference models with
// metadata. The triple (Teff, Logg, MonH) of each model is its grid key;
// node spacing may be irregular and may differ between axes. Datasets are
// treated as immutable once loaded.
type Dataset struct {
	Models []profile.Atmosphere

	MaxDep  int    // largest layer count over all models
	Version string // grid version tag
	Source  string // identifier the dataset was loaded from

	// Optional selector hints applied when the caller does not choose.
	DefaultDepth  profile.DepthVar
	DefaultInterp profile.DepthVar
}

// NModels returns the number of reference models in the grid.
func (ds *Dataset) NModels() int { return len(ds.Models) }

// HasRhox reports whether the grid models carry a mass column scale.
func (ds *Dataset) HasRhox() bool {
	return len(ds.Models) > 0 && ds.Models[0].Rhox != nil
}

// HasTau reports whether the grid models carry an optical depth scale.
func (ds *Dataset) HasTau() bool {
	return len(ds.Models) > 0 && ds.Models[0].Tau != nil
}

// Validate checks every model and the structural uniformity interpolation
// relies on: all models carry the same set of depth scales, and no model
// exceeds MaxDep when it is set.
func (ds *Dataset) Validate() error {
	if len(ds.Models) == 0 {
		return fmt.Errorf("%w: no models", ErrInvalidDataset)
	}

	first := &ds.Models[0]
	for i := range ds.Models {
		m := &ds.Models[i]
		if err := m.Validate(); err != nil {
			return fmt.Errorf("grid: model %d: %w", i, err)
		}

		if (m.Rhox == nil) != (first.Rhox == nil) || (m.Tau == nil) != (first.Tau == nil) {
			return fmt.Errorf("%w: model %d carries different depth scales than model 0", ErrInvalidDataset, i)
		}

		if ds.MaxDep > 0 && m.Ndep > ds.MaxDep {
			return fmt.Errorf("%w: model %d has %d layers, metadata says at most %d", ErrInvalidDataset, i, m.Ndep, ds.MaxDep)
		}
	}

	return nil
}

func (ds *Dataset) hasVar(v profile.DepthVar) bool {
	return len(ds.Models) > 0 && ds.Models[0].DepthVector(v) != nil
}

// monhValues returns the distinct metallicities present in the grid, sorted
// ascending.
func (ds *Dataset) monhValues() []float64 {
	vals := make([]float64, 0, len(ds.Models))
	for i := range ds.Models {
		vals = append(vals, ds.Models[i].MonH)
	}

	return distinct(vals)
}

// loggValues returns the distinct gravities of models at the given
// metallicity, sorted ascending.
func (ds *Dataset) loggValues(monh float64) []float64 {
	var vals []float64
	for i := range ds.Models {
		if ds.Models[i].MonH == monh {
			vals = append(vals, ds.Models[i].Logg)
		}
	}

	return distinct(vals)
}

// teffValues returns the distinct temperatures of models at the given
// metallicity and gravity, sorted ascending.
func (ds *Dataset) teffValues(monh, logg float64) []float64 {
	var vals []float64
	for i := range ds.Models {
		if ds.Models[i].MonH == monh && ds.Models[i].Logg == logg {
			vals = append(vals, ds.Models[i].Teff)
		}
	}

	return distinct(vals)
}

func distinct(vals []float64) []float64 {
	if len(vals) == 0 {
		return nil
	}

	sort.Float64s(vals)

	out := vals[:1]
	for _, v := range vals[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}

	return out
}
