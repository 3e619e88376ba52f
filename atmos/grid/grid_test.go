package grid

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-atmos/atmos/profile"
	"github.com/cwbudde/algo-atmos/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testDataset(spherical bool) *Dataset {
	models := testutil.MakeGridModels(
		[]float64{5000, 5500, 6000},
		[]float64{4.0, 4.5},
		[]float64{-0.5, 0, 0.5},
		spherical,
	)

	return &Dataset{Models: models, MaxDep: 48, Version: "test-1", Source: "mem:test"}
}

func modelAt(t *testing.T, ds *Dataset, teff, logg, monh float64) *profile.Atmosphere {
	t.Helper()

	for i := range ds.Models {
		m := &ds.Models[i]
		if m.Teff == teff && m.Logg == logg && m.MonH == monh {
			return m
		}
	}

	t.Fatalf("no test model at Teff=%g logg=%g [M/H]=%g", teff, logg, monh)

	return nil
}

func TestInterpolateAtNode(t *testing.T) {
	ds := testDataset(false)

	out, err := Interpolate(ds, 5500, 4.5, 0)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	// An exact grid node reduces to the stored model with the top corner
	// layer trimmed, with no interpolation artifacts at all.
	m := modelAt(t, ds, 5500, 4.5, 0)

	if out.Ndep != m.Ndep-1 {
		t.Fatalf("Ndep = %d, want %d", out.Ndep, m.Ndep-1)
	}

	testutil.RequireSliceNearlyEqual(t, out.Rhox, m.Rhox[1:], 0)
	testutil.RequireSliceNearlyEqual(t, out.Tau, m.Tau[1:], 0)
	testutil.RequireSliceNearlyEqual(t, out.Temp, m.Temp[1:], 0)
	testutil.RequireSliceNearlyEqual(t, out.Xne, m.Xne[1:], 0)
	testutil.RequireSliceNearlyEqual(t, out.Xna, m.Xna[1:], 0)
	testutil.RequireSliceNearlyEqual(t, out.Rho, m.Rho[1:], 0)

	if out.Teff != 5500 || out.Logg != 4.5 || out.MonH != 0 {
		t.Errorf("scalars = %g/%g/%g, want 5500/4.5/0", out.Teff, out.Logg, out.MonH)
	}

	if out.Abund != m.Abund {
		t.Error("abundance pattern changed")
	}

	if out.Depth != profile.VarRhox || out.Interp != profile.VarTau {
		t.Errorf("selectors = %s/%s, want RHOX/TAU", out.Depth, out.Interp)
	}

	if out.Geom != profile.GeomPlaneParallel || out.Radius != 0 {
		t.Errorf("geometry = %s radius %g, want plane parallel", out.Geom, out.Radius)
	}
}

func TestInterpolateFitCounts(t *testing.T) {
	// Every shift fit inside a blend logs one debug entry, so the
	// observer counts exactly how often the fitter ran. Degenerate
	// bracket pairs log their own entry instead of fitting.
	tests := []struct {
		name             string
		teff, logg, monh float64
		wantFits         int
		wantDegen        int
	}{
		// All axes on nodes: every pair is degenerate, no fit may run.
		{"full node", 5500, 4.5, 0, 0, 7},
		// Metallicity on a node: the four metallicity pairs collapse,
		// the two gravity and one temperature blend fit six quantities
		// each (four structure quantities plus both depth scales).
		{"node metallicity only", 5250, 4.25, 0, 18, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			ds := testDataset(false)

			_, err := Interpolate(ds, tt.teff, tt.logg, tt.monh, WithLogger(zap.New(core)))
			if err != nil {
				t.Fatalf("Interpolate: %v", err)
			}

			if got := logs.FilterMessage("fitted depth shift").Len(); got != tt.wantFits {
				t.Fatalf("fit count = %d, want %d", got, tt.wantFits)
			}

			if got := logs.FilterMessage("degenerate bracket, reusing node model").Len(); got != tt.wantDegen {
				t.Fatalf("degenerate pair count = %d, want %d", got, tt.wantDegen)
			}
		})
	}
}

func TestInterpolateOffNode(t *testing.T) {
	ds := testDataset(false)

	out, err := Interpolate(ds, 5250, 4.25, 0.25)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	if err := out.Validate(); err != nil {
		t.Fatalf("output fails validation: %v", err)
	}

	if out.Teff != 5250 || out.Logg != 4.25 || out.MonH != 0.25 {
		t.Errorf("scalars = %g/%g/%g, want 5250/4.25/0.25", out.Teff, out.Logg, out.MonH)
	}

	if out.Ndep != 47 {
		t.Errorf("Ndep = %d, want 47", out.Ndep)
	}

	testutil.RequireIncreasing(t, out.Rhox)
	testutil.RequireIncreasing(t, out.Tau)
	testutil.RequireFinite(t, out.Temp)

	// The interpolated structure must sit between the bracketing node
	// structures quantity by quantity.
	cool := modelAt(t, ds, 5000, 4.0, 0)
	hot := modelAt(t, ds, 5500, 4.5, 0.5)

	mid := out.Ndep / 2
	if out.Temp[mid] <= cool.Temp[mid+1] || out.Temp[mid] >= hot.Temp[mid+1] {
		t.Errorf("Temp[%d] = %g outside bracket (%g, %g)",
			mid, out.Temp[mid], cool.Temp[mid+1], hot.Temp[mid+1])
	}
}

func TestInterpolateRangePolicy(t *testing.T) {
	tests := []struct {
		name             string
		teff, logg, monh float64
		wantErr          bool
		warn             string
	}{
		{"metallicity above max", 5250, 4.25, 0.8, false, "extrapolating above grid maximum"},
		{"metallicity below min", 5250, 4.25, -1.0, true, ""},
		{"gravity above max", 5250, 5.2, 0.25, false, "extrapolating above grid maximum"},
		{"gravity below min", 5250, 3.0, 0.25, true, ""},
		{"temperature below min", 4500, 4.25, 0.25, false, "extrapolating below grid minimum"},
		{"temperature above max", 6800, 4.25, 0.25, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			ds := testDataset(false)

			out, err := Interpolate(ds, tt.teff, tt.logg, tt.monh, WithLogger(zap.New(core)))

			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("error = %v, want ErrOutOfRange", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("Interpolate: %v", err)
			}

			if logs.FilterMessage(tt.warn).Len() == 0 {
				t.Fatalf("expected %q warning", tt.warn)
			}

			if err := out.Validate(); err != nil {
				t.Fatalf("output fails validation: %v", err)
			}
		})
	}
}

func TestInterpolateExtrapolatedScalars(t *testing.T) {
	ds := testDataset(false)

	out, err := Interpolate(ds, 5250, 4.25, 0.8)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	// Brackets (0, 0.5) with target 0.8 give fraction 1.6; the blended
	// metallicity extrapolates linearly.
	if math.Abs(out.MonH-0.8) > 1e-12 {
		t.Errorf("MonH = %g, want 0.8", out.MonH)
	}
}

func TestInterpolateSpherical(t *testing.T) {
	ds := testDataset(true)

	out, err := Interpolate(ds, 5250, 4.25, 0.25)
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	if out.Geom != profile.GeomSpherical {
		t.Fatalf("geometry = %s, want spherical", out.Geom)
	}

	// The synthetic models put every corner at exactly one solar mass,
	// so the output radius follows from the target gravity alone.
	want := solarRadius * math.Pow(10, 0.5*(solarLogg-4.25))
	testutil.RequireNearlyEqual(t, out.Radius, want, want*1e-12)

	if out.Height == nil || len(out.Height) != out.Ndep {
		t.Fatalf("height vector missing or wrong length %d", len(out.Height))
	}
}

func TestInterpolateGeometryConflict(t *testing.T) {
	pp := testDataset(false)

	_, err := Interpolate(pp, 5250, 4.25, 0.25, WithGeometry(profile.GeomSpherical))
	if !errors.Is(err, ErrGeometryConflict) {
		t.Fatalf("error = %v, want ErrGeometryConflict", err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	sph := testDataset(true)

	out, err := Interpolate(sph, 5250, 4.25, 0.25,
		WithGeometry(profile.GeomPlaneParallel), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	if out.Geom != profile.GeomPlaneParallel || out.Radius != 0 {
		t.Fatalf("geometry = %s radius %g, want plane parallel override", out.Geom, out.Radius)
	}

	if logs.FilterMessage("plane parallel geometry overrides spherical grid result").Len() != 1 {
		t.Fatal("expected geometry override warning")
	}
}

func TestInterpolateAmbiguousCorner(t *testing.T) {
	ds := testDataset(false)
	dup := modelAt(t, ds, 5000, 4.0, 0).Clone()
	ds.Models = append(ds.Models, dup)

	core, logs := observer.New(zapcore.DebugLevel)

	_, err := Interpolate(ds, 5250, 4.25, 0.25, WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("Interpolate: %v", err)
	}

	if logs.FilterMessage("ambiguous corner model match").Len() == 0 {
		t.Fatal("expected ambiguous corner warning")
	}
}

func TestInterpolateVarSelection(t *testing.T) {
	t.Run("caller options", func(t *testing.T) {
		ds := testDataset(false)

		out, err := Interpolate(ds, 5250, 4.25, 0.25,
			WithDepthVar(profile.VarTau), WithInterpVar(profile.VarRhox))
		if err != nil {
			t.Fatalf("Interpolate: %v", err)
		}

		if out.Depth != profile.VarTau || out.Interp != profile.VarRhox {
			t.Fatalf("selectors = %s/%s, want TAU/RHOX", out.Depth, out.Interp)
		}
	})

	t.Run("dataset hints", func(t *testing.T) {
		ds := testDataset(false)
		ds.DefaultDepth = profile.VarTau
		ds.DefaultInterp = profile.VarRhox

		out, err := Interpolate(ds, 5250, 4.25, 0.25)
		if err != nil {
			t.Fatalf("Interpolate: %v", err)
		}

		if out.Depth != profile.VarTau || out.Interp != profile.VarRhox {
			t.Fatalf("selectors = %s/%s, want dataset hints TAU/RHOX", out.Depth, out.Interp)
		}
	})

	t.Run("model hints", func(t *testing.T) {
		ds := testDataset(false)
		for i := range ds.Models {
			ds.Models[i].Depth = profile.VarTau
		}

		out, err := Interpolate(ds, 5250, 4.25, 0.25)
		if err != nil {
			t.Fatalf("Interpolate: %v", err)
		}

		if out.Depth != profile.VarTau {
			t.Fatalf("depth = %s, want model hint TAU", out.Depth)
		}
	})

	t.Run("tau only grid", func(t *testing.T) {
		ds := testDataset(false)
		for i := range ds.Models {
			ds.Models[i].Rhox = nil
		}

		out, err := Interpolate(ds, 5250, 4.25, 0.25)
		if err != nil {
			t.Fatalf("Interpolate: %v", err)
		}

		if out.Depth != profile.VarTau || out.Interp != profile.VarTau {
			t.Fatalf("selectors = %s/%s, want TAU/TAU", out.Depth, out.Interp)
		}
	})

	t.Run("requested scale missing", func(t *testing.T) {
		ds := testDataset(false)
		for i := range ds.Models {
			ds.Models[i].Tau = nil
		}

		_, err := Interpolate(ds, 5250, 4.25, 0.25, WithInterpVar(profile.VarTau))
		if !errors.Is(err, ErrMissingVariable) {
			t.Fatalf("error = %v, want ErrMissingVariable", err)
		}
	})

	t.Run("invalid selector", func(t *testing.T) {
		ds := testDataset(false)

		_, err := Interpolate(ds, 5250, 4.25, 0.25, WithDepthVar(profile.DepthVar(9)))
		if !errors.Is(err, ErrMissingVariable) {
			t.Fatalf("error = %v, want ErrMissingVariable", err)
		}
	})
}

func TestInterpolateEmptyDataset(t *testing.T) {
	if _, err := Interpolate(&Dataset{}, 5000, 4.0, 0); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("error = %v, want ErrInvalidDataset", err)
	}

	if _, err := Interpolate(nil, 5000, 4.0, 0); !errors.Is(err, ErrInvalidDataset) {
		t.Fatalf("error = %v, want ErrInvalidDataset", err)
	}
}

func TestDatasetValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := testDataset(false).Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if err := (&Dataset{}).Validate(); !errors.Is(err, ErrInvalidDataset) {
			t.Fatalf("error = %v, want ErrInvalidDataset", err)
		}
	})

	t.Run("broken model", func(t *testing.T) {
		ds := testDataset(false)
		ds.Models[3].Temp = ds.Models[3].Temp[:10]

		if err := ds.Validate(); !errors.Is(err, profile.ErrLengthMismatch) {
			t.Fatalf("error = %v, want ErrLengthMismatch", err)
		}
	})

	t.Run("mixed depth scales", func(t *testing.T) {
		ds := testDataset(false)
		ds.Models[5].Tau = nil

		if err := ds.Validate(); !errors.Is(err, ErrInvalidDataset) {
			t.Fatalf("error = %v, want ErrInvalidDataset", err)
		}
	})

	t.Run("maxdep too small", func(t *testing.T) {
		ds := testDataset(false)
		ds.MaxDep = 10

		if err := ds.Validate(); !errors.Is(err, ErrInvalidDataset) {
			t.Fatalf("error = %v, want ErrInvalidDataset", err)
		}
	})
}

func TestBracket(t *testing.T) {
	list := []float64{-1, 0, 1}

	tests := []struct {
		name        string
		target      float64
		extrapAbove bool
		lo, hi      float64
		extrap      bool
		wantErr     bool
	}{
		{"interior", 0.5, true, 0, 1, false, false},
		{"node", 0, true, 0, 0, false, false},
		{"low edge node", -1, true, -1, -1, false, false},
		{"high edge node", 1, true, 1, 1, false, false},
		{"above max extrapolates", 1.5, true, 0, 1, true, false},
		{"below min fails", -2, true, 0, 0, false, true},
		{"mirrored above max fails", 1.5, false, 0, 0, false, true},
		{"mirrored below min extrapolates", -2, false, -1, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi, extrap, err := bracket(list, tt.target, "test", tt.extrapAbove)

			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("error = %v, want ErrOutOfRange", err)
				}

				return
			}

			if err != nil {
				t.Fatalf("bracket: %v", err)
			}

			if lo != tt.lo || hi != tt.hi || extrap != tt.extrap {
				t.Fatalf("bracket = (%g, %g, %v), want (%g, %g, %v)", lo, hi, extrap, tt.lo, tt.hi, tt.extrap)
			}
		})
	}

	t.Run("single value", func(t *testing.T) {
		lo, hi, _, err := bracket([]float64{2}, 2, "test", true)
		if err != nil || lo != 2 || hi != 2 {
			t.Fatalf("bracket = (%g, %g, %v), want exact single node", lo, hi, err)
		}

		if _, _, _, err := bracket([]float64{2}, 3, "test", true); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("error = %v, want ErrOutOfRange for single-value extrapolation", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, _, _, err := bracket(nil, 0, "test", true); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("error = %v, want ErrOutOfRange", err)
		}
	})
}

func TestDistinct(t *testing.T) {
	got := distinct([]float64{3, 1, 2, 1, 3, 3})
	want := []float64{1, 2, 3}
	testutil.RequireSliceNearlyEqual(t, got, want, 0)

	if distinct(nil) != nil {
		t.Fatal("distinct(nil) must be nil")
	}
}
