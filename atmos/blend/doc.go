// Package blend interpolates between two model atmospheres, accounting for
// shifts in the depth scale between them.
//
// Interpolation runs in three steps:
//
//  1. The second atmosphere is fitted onto the first, individually for each
//     atmospheric quantity, using a horizontal shift of the log depth scale
//     and a vertical shift of the log quantity (see
//     [github.com/cwbudde/algo-atmos/atmos/shiftfit]). The temperature fit
//     runs first, seeded by aligning the curve midpoints, and its
//     horizontal shift seeds the remaining fits. A weak pull towards zero
//     keeps the horizontal shift from running away for cool models, where
//     temperature is nearly linear in depth.
//  2. The mean horizontal shift over all quantities builds the common
//     output depth scale, weighted by the interpolation fraction.
//  3. Each quantity is evaluated on the output scale from both shifted
//     models and mixed with the interpolation fraction.
//
// All interpolation happens on the logarithm of the tabulated quantities.
// A fraction of 0 reproduces the first model, 1 the second; fractions
// outside [0, 1] extrapolate in parameter space and are legitimate for
// grids whose coverage has ended.
package blend
