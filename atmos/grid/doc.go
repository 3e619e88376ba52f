// Package grid interpolates model atmospheres within a precomputed grid
// spanning effective temperature, surface gravity and metallicity.
//
// [Interpolate] locates the eight grid models bracketing a target parameter
// triple and blends them pairwise down the three axes with [blend.Blend]:
// four blends along metallicity, two along gravity and a final one along
// temperature. Bracketing handles irregular grids and permits one-sided
// extrapolation: above the largest metallicity or gravity and below the
// smallest temperature, each with an advisory warning. The opposite sides
// are hard bounds reported as [ErrOutOfRange].
//
// A [Dataset] is immutable once loaded and safe for concurrent readers.
// [Cache] memoizes the most recent dataset per source identifier and
// collapses concurrent loads of the same source.
package grid
