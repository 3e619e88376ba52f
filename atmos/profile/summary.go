package profile

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Summary condenses a model into the figures usually quoted when comparing
// atmospheres: the identifying parameters and the span of the structure
// vectors.
type Summary struct {
	Teff, Logg, MonH float64
	Geom             Geometry
	Ndep             int

	RhoxMin, RhoxMax float64 // 0 when RHOX is absent
	TauMin, TauMax   float64 // 0 when TAU is absent
	TempMin, TempMax float64
}

// Summarize computes the [Summary] of a model. Vector spans are left zero
// for quantities the model does not carry.
func Summarize(a *Atmosphere) Summary {
	s := Summary{
		Teff: a.Teff,
		Logg: a.Logg,
		MonH: a.MonH,
		Geom: a.Geom,
		Ndep: a.Ndep,
	}

	if len(a.Rhox) > 0 {
		s.RhoxMin, s.RhoxMax = floats.Min(a.Rhox), floats.Max(a.Rhox)
	}

	if len(a.Tau) > 0 {
		s.TauMin, s.TauMax = floats.Min(a.Tau), floats.Max(a.Tau)
	}

	if len(a.Temp) > 0 {
		s.TempMin, s.TempMax = floats.Min(a.Temp), floats.Max(a.Temp)
	}

	return s
}

// String formats the summary on a single line.
func (s Summary) String() string {
	return fmt.Sprintf("Teff=%.0fK logg=%.2f [M/H]=%+.2f %s ndep=%d T=[%.0f..%.0f]K",
		s.Teff, s.Logg, s.MonH, s.Geom, s.Ndep, s.TempMin, s.TempMax)
}
