package testutil

import (
	"math"

	"github.com/cwbudde/algo-atmos/atmos/profile"
)

// AtmoSpec parameterizes a synthetic model atmosphere. Every quantity is a
// smooth function of the log mass column, evaluated at (u - ShiftX) and
// offset by ShiftY in log10, so pairs of models with a known relative
// shift are easy to construct. Zero values select defaults: 48 layers
// starting at log rhox -1.2 with steps of 0.12.
type AtmoSpec struct {
	Teff float64
	Logg float64
	MonH float64

	Ndep        int
	LogRhoxTop  float64
	LogRhoxStep float64

	ShiftX float64 // moves the structure deeper in log depth
	ShiftY float64 // raises every quantity in log10

	Spherical bool    // attach a height vector and a radius
	Radius    float64 // overrides the gravity-derived radius (cm)
}

// MakeAtmo builds a synthetic model atmosphere from the spec. The result
// carries both depth scales, all four structure quantities, abundances and
// opacity flags, and passes [profile.Atmosphere.Validate].
func MakeAtmo(spec AtmoSpec) profile.Atmosphere {
	if spec.Ndep == 0 {
		spec.Ndep = 48
	}
	if spec.LogRhoxTop == 0 {
		spec.LogRhoxTop = -1.2
	}
	if spec.LogRhoxStep == 0 {
		spec.LogRhoxStep = 0.12
	}

	n := spec.Ndep
	a := profile.Atmosphere{
		Teff:   spec.Teff,
		Logg:   spec.Logg,
		MonH:   spec.MonH,
		Vturb:  2,
		Lonh:   1.5,
		Wlstd:  5000,
		Geom:   profile.GeomPlaneParallel,
		Ndep:   n,
		Rhox:   make([]float64, n),
		Tau:    make([]float64, n),
		Temp:   make([]float64, n),
		Xne:    make([]float64, n),
		Xna:    make([]float64, n),
		Rho:    make([]float64, n),
		Opflag: [profile.NOpflag]uint8{1, 1, 1},
	}

	tbase := math.Log10(spec.Teff) - 0.26
	for i := range n {
		u := spec.LogRhoxTop + spec.LogRhoxStep*float64(i)
		x := u - spec.ShiftX

		a.Rhox[i] = math.Pow(10, u)
		a.Tau[i] = math.Pow(10, x-2.45+spec.ShiftY)
		a.Temp[i] = math.Pow(10, tbase+0.022*x+0.012*x*x+spec.ShiftY)
		a.Xne[i] = math.Pow(10, 9.4+0.62*x+0.03*x*x+0.12*spec.MonH+0.10*(spec.Logg-4.4)+spec.ShiftY)
		a.Xna[i] = math.Pow(10, 13.9+0.58*x+0.02*x*x-0.08*spec.MonH+0.12*(spec.Logg-4.4)+spec.ShiftY)
		a.Rho[i] = math.Pow(10, -9.3+0.56*x+0.02*x*x+0.10*(spec.Logg-4.4)+spec.ShiftY)
	}

	a.Abund[0] = 0.9204
	a.Abund[1] = 0.0783
	for k := 2; k < profile.NAbund; k++ {
		a.Abund[k] = math.Pow(10, spec.MonH) * 3e-6 / float64(k)
	}

	if spec.Spherical {
		a.Geom = profile.GeomSpherical
		a.Radius = spec.Radius
		if a.Radius == 0 {
			a.Radius = 6.955e10 * math.Pow(10, (4.44-spec.Logg)/2)
		}

		a.Height = make([]float64, n)
		for i := range n {
			a.Height[i] = 2e7 * float64(n-1-i)
		}
	}

	return a
}

// MakeGridModels builds one synthetic model per (Teff, logg, [M/H])
// combination, ordered with Teff varying fastest.
func MakeGridModels(teffs, loggs, monhs []float64, spherical bool) []profile.Atmosphere {
	out := make([]profile.Atmosphere, 0, len(teffs)*len(loggs)*len(monhs))
	for _, m := range monhs {
		for _, g := range loggs {
			for _, t := range teffs {
				out = append(out, MakeAtmo(AtmoSpec{
					Teff: t, Logg: g, MonH: m, Spherical: spherical,
				}))
			}
		}
	}

	return out
}
