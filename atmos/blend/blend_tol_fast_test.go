//go:build fastmath

package blend

// FastLog and FastExp carry roughly 1e-7 relative error per call, which
// dominates the roundtrip accuracy of the blend pipeline.
const (
	roundtripEps = 1e-5
	endpointEps  = 1e-5
)
