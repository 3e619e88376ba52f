// Package profile defines the 1-D model atmosphere structure shared by all
// interpolation packages.
//
// An [Atmosphere] tabulates physical quantities (temperature, electron and
// atomic number density, mass density) against atmospheric depth. Depth can
// be expressed on two scales:
//
//   - [VarRhox]: mass column density (g/cm^2)
//   - [VarTau]:  reference optical depth at the standard wavelength
//
// At least one depth scale must be present; models may carry both. All
// vectors are aligned index for index and share the length Ndep, with depth
// increasing from the outermost layer towards the interior.
//
// Reference profiles loaded from a grid are treated as immutable. Profiles
// produced by the blend and grid packages are freshly constructed per call
// and owned by the caller.
package profile
