package blend

import (
	"fmt"

	"github.com/cwbudde/algo-atmos/atmos/profile"
)

// Trim returns a copy of p with its uppermost depth layers removed, the same
// way a blend trims its inputs before fitting: n requested layers plus any
// further layers whose fractional depth step stays below the minimum. The
// depth scale v selects the vector the step rule runs on. Grid interpolation
// uses this for degenerate bracket pairs, where a full blend would reproduce
// the first model anyway.
func Trim(p *profile.Atmosphere, n int, v profile.DepthVar) (profile.Atmosphere, error) {
	d := p.DepthVector(v)
	if d == nil {
		return profile.Atmosphere{}, fmt.Errorf("%w: %s not present", ErrMissingDepthScale, v)
	}

	itop := trimTop(d, n)
	if len(d)-itop < 2 {
		return profile.Atmosphere{}, fmt.Errorf("%w: %d points left after top trim", ErrUnstableShift, len(d)-itop)
	}

	out := *p
	out.Ndep = p.Ndep - itop
	out.Rhox = tailCopy(p.Rhox, itop)
	out.Tau = tailCopy(p.Tau, itop)
	out.Temp = tailCopy(p.Temp, itop)
	out.Xne = tailCopy(p.Xne, itop)
	out.Xna = tailCopy(p.Xna, itop)
	out.Rho = tailCopy(p.Rho, itop)
	out.Height = tailCopy(p.Height, itop)

	return out, nil
}

func tailCopy(v []float64, start int) []float64 {
	if v == nil {
		return nil
	}

	out := make([]float64, len(v)-start)
	copy(out, v[start:])

	return out
}
