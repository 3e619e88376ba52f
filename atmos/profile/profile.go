package profile

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by [Atmosphere.Validate].
var (
	ErrNoDepthScale      = errors.New("profile: neither RHOX nor TAU present")
	ErrLengthMismatch    = errors.New("profile: vector length mismatch")
	ErrNonPositiveDepth  = errors.New("profile: depth values must be positive")
	ErrNonMonotonicDepth = errors.New("profile: depth scale not strictly increasing")
)

// Array dimensions fixed by the model atmosphere format.
const (
	// NAbund is the number of element abundance slots (H through Es).
	NAbund = 99
	// NOpflag is the number of continuous opacity switches.
	NOpflag = 20
)

// DepthVar selects the depth scale used for radiative transfer or for
// interpolation between models.
type DepthVar uint8

const (
	VarUnset DepthVar = iota
	VarRhox           // mass column density
	VarTau            // reference optical depth
)

// String returns the conventional upper-case tag for the depth variable.
func (v DepthVar) String() string {
	switch v {
	case VarRhox:
		return "RHOX"
	case VarTau:
		return "TAU"
	default:
		return "UNSET"
	}
}

// ParseDepthVar converts a tag such as "RHOX" or "TAU" into a [DepthVar].
// The empty string maps to [VarUnset].
func ParseDepthVar(s string) (DepthVar, error) {
	switch s {
	case "":
		return VarUnset, nil
	case "RHOX", "rhox":
		return VarRhox, nil
	case "TAU", "tau":
		return VarTau, nil
	default:
		return VarUnset, fmt.Errorf("profile: unknown depth variable %q", s)
	}
}

// Geometry describes the radiative transfer geometry of a model.
type Geometry uint8

const (
	GeomUnset Geometry = iota
	GeomPlaneParallel
	GeomSpherical
)

// String returns the conventional short tag for the geometry.
func (g Geometry) String() string {
	switch g {
	case GeomPlaneParallel:
		return "PP"
	case GeomSpherical:
		return "SPH"
	default:
		return "UNSET"
	}
}

// ParseGeometry converts a tag such as "PP" or "SPH" into a [Geometry].
// The empty string maps to [GeomUnset].
func ParseGeometry(s string) (Geometry, error) {
	switch s {
	case "":
		return GeomUnset, nil
	case "PP", "pp":
		return GeomPlaneParallel, nil
	case "SPH", "sph":
		return GeomSpherical, nil
	default:
		return GeomUnset, fmt.Errorf("profile: unknown geometry %q", s)
	}
}

// Atmosphere is a single 1-D model atmosphere. Scalar parameters identify
// the model inside a grid; vector fields hold the depth-dependent structure.
// A nil vector means the quantity is absent from the model.
type Atmosphere struct {
	Teff   float64 // effective temperature (K)
	Logg   float64 // log10 surface gravity (cgs)
	MonH   float64 // metallicity [M/H] relative to solar
	Vturb  float64 // microturbulence velocity (km/s)
	Lonh   float64 // mixing length parameter
	Wlstd  float64 // standard wavelength for TAU (Angstroms), 0 when unset
	Radius float64 // stellar radius (cm), meaningful when > 1

	Depth  DepthVar // depth scale for radiative transfer
	Interp DepthVar // depth scale for interpolation between models
	Geom   Geometry // radiative transfer geometry

	Ndep int // number of depth layers

	Rhox   []float64 // mass column density (g/cm^2)
	Tau    []float64 // optical depth at the standard wavelength
	Temp   []float64 // temperature (K)
	Xne    []float64 // electron number density (1/cm^3)
	Xna    []float64 // atomic number density (1/cm^3)
	Rho    []float64 // mass density (g/cm^3)
	Height []float64 // height above the reference radius (cm)

	Abund  [NAbund]float64 // element abundances relative to total nuclei
	Opflag [NOpflag]uint8  // continuous opacity switches, 1 = on
}

// DepthVector returns the vector backing the given depth variable, or nil
// when the model does not carry it.
func (a *Atmosphere) DepthVector(v DepthVar) []float64 {
	switch v {
	case VarRhox:
		return a.Rhox
	case VarTau:
		return a.Tau
	default:
		return nil
	}
}

// Validate checks the structural invariants of the model: a positive layer
// count, at least one depth scale, consistent vector lengths and strictly
// increasing positive depth scales.
func (a *Atmosphere) Validate() error {
	if a.Ndep <= 0 {
		return fmt.Errorf("%w: NDEP is %d", ErrLengthMismatch, a.Ndep)
	}

	if a.Rhox == nil && a.Tau == nil {
		return ErrNoDepthScale
	}

	vectors := []struct {
		name string
		data []float64
	}{
		{"RHOX", a.Rhox},
		{"TAU", a.Tau},
		{"TEMP", a.Temp},
		{"XNE", a.Xne},
		{"XNA", a.Xna},
		{"RHO", a.Rho},
		{"HEIGHT", a.Height},
	}
	for _, v := range vectors {
		if v.data == nil {
			continue
		}

		if len(v.data) != a.Ndep {
			return fmt.Errorf("%w: %s has %d layers, NDEP is %d", ErrLengthMismatch, v.name, len(v.data), a.Ndep)
		}
	}

	for _, d := range []struct {
		name string
		data []float64
	}{{"RHOX", a.Rhox}, {"TAU", a.Tau}} {
		if d.data == nil {
			continue
		}

		for i, x := range d.data {
			if x <= 0 {
				return fmt.Errorf("%w: %s[%d] = %g", ErrNonPositiveDepth, d.name, i, x)
			}

			if i > 0 && x <= d.data[i-1] {
				return fmt.Errorf("%w: %s[%d] = %g after %g", ErrNonMonotonicDepth, d.name, i, x, d.data[i-1])
			}
		}
	}

	return nil
}

// Clone returns a deep copy of the model with freshly allocated vectors.
func (a *Atmosphere) Clone() Atmosphere {
	out := *a
	out.Rhox = cloneSlice(a.Rhox)
	out.Tau = cloneSlice(a.Tau)
	out.Temp = cloneSlice(a.Temp)
	out.Xne = cloneSlice(a.Xne)
	out.Xna = cloneSlice(a.Xna)
	out.Rho = cloneSlice(a.Rho)
	out.Height = cloneSlice(a.Height)

	return out
}

func cloneSlice(s []float64) []float64 {
	if s == nil {
		return nil
	}

	out := make([]float64, len(s))
	copy(out, s)

	return out
}
