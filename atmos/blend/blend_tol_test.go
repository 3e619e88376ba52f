//go:build !fastmath

package blend

// Tolerances for tests that pin blended vectors against exact references.
// The log10/pow10 roundtrip sets the accuracy floor of the blend pipeline;
// the fastmath pair of this file loosens both bounds to the approximation
// error of the replacement transcendentals.
const (
	roundtripEps = 1e-12 // degenerate and self blends, pure roundtrip
	endpointEps  = 1e-9  // endpoint blends, adds the shift-fit residual
)
