// Package gridfile reads and writes the binary container format for model
// atmosphere grids.
//
// A container holds one [grid.Dataset]: a grid version tag, the layer
// capacity, the default depth and interpolation scales, and the model
// records with their structure vectors, abundances and opacity flags. All
// integers and floats are little endian. [Read] rejects unknown format
// versions so the layout can evolve behind the version number, and a
// written container read back produces an identical dataset.
//
// [ReadFile] matches the [grid.LoaderFunc] signature and plugs directly
// into the dataset cache:
//
//	cache := grid.NewCache(grid.LoaderFunc(gridfile.ReadFile))
package gridfile
