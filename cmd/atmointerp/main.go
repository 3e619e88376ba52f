// Command atmointerp interpolates model atmospheres from a grid container.
//
// Usage:
//
//	atmointerp [flags]
//
// Single mode interpolates one atmosphere and prints a parameter summary
// followed by the depth-dependent structure. Batch mode reads a YAML target
// list and prints one summary line per target.
//
// Examples:
//
//	atmointerp -grid marcs.atmg -teff 5777 -logg 4.44 -monh 0
//	atmointerp -grid marcs.atmg -teff 4800 -logg 2.2 -monh -0.3 -interp tau
//	atmointerp -grid marcs.atmg -batch targets.yaml
//	atmointerp -v -grid marcs.atmg -teff 5777 -logg 4.44 -monh 0
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/cwbudde/algo-atmos/atmos/grid"
	"github.com/cwbudde/algo-atmos/atmos/profile"
	"github.com/cwbudde/algo-atmos/gridfile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

func main() {
	gridPath := flag.String("grid", "", "path to the grid container")
	teff := flag.Float64("teff", math.NaN(), "target effective temperature (K)")
	logg := flag.Float64("logg", math.NaN(), "target log10 surface gravity (cgs)")
	monh := flag.Float64("monh", math.NaN(), "target metallicity [M/H]")
	depth := flag.String("depth", "", "output depth scale (RHOX or TAU)")
	interp := flag.String("interp", "", "interpolation depth scale (RHOX or TAU)")
	geom := flag.String("geom", "", "force radiative transfer geometry (PP or SPH)")
	batch := flag.String("batch", "", "YAML batch configuration with a target list")
	verbose := flag.Bool("v", false, "enable debug logging")
	quiet := flag.Bool("quiet", false, "suppress diagnostics")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atmointerp [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Interpolates model atmospheres from a grid container.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  atmointerp -grid marcs.atmg -teff 5777 -logg 4.44 -monh 0\n")
		fmt.Fprintf(os.Stderr, "  atmointerp -grid marcs.atmg -batch targets.yaml\n")
	}
	flag.Parse()

	logger := newLogger(*verbose, *quiet)
	defer func() { _ = logger.Sync() }()

	cache := grid.NewCache(grid.LoaderFunc(gridfile.ReadFile))

	var err error
	if *batch != "" {
		err = runBatch(cache, *batch, *gridPath, *depth, *interp, *geom, logger)
	} else {
		err = runSingle(cache, *gridPath, *teff, *logg, *monh, *depth, *interp, *geom, logger)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose, quiet bool) *zap.Logger {
	if quiet {
		return zap.NewNop()
	}

	config := zap.NewDevelopmentConfig()
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := config.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: building logger: %v\n", err)
		return zap.NewNop()
	}

	return logger
}

// buildOptions converts the textual depth/interp/geom selectors into grid
// options. Empty selectors are left to the grid defaults.
func buildOptions(depth, interp, geom string, logger *zap.Logger) ([]grid.Option, error) {
	opts := []grid.Option{grid.WithLogger(logger)}

	dv, err := profile.ParseDepthVar(depth)
	if err != nil {
		return nil, err
	}

	if dv != profile.VarUnset {
		opts = append(opts, grid.WithDepthVar(dv))
	}

	iv, err := profile.ParseDepthVar(interp)
	if err != nil {
		return nil, err
	}

	if iv != profile.VarUnset {
		opts = append(opts, grid.WithInterpVar(iv))
	}

	g, err := profile.ParseGeometry(geom)
	if err != nil {
		return nil, err
	}

	if g != profile.GeomUnset {
		opts = append(opts, grid.WithGeometry(g))
	}

	return opts, nil
}

func runSingle(cache *grid.Cache, gridPath string, teff, logg, monh float64, depth, interp, geom string, logger *zap.Logger) error {
	if gridPath == "" {
		return errors.New("missing -grid")
	}

	if math.IsNaN(teff) || math.IsNaN(logg) || math.IsNaN(monh) {
		return errors.New("single mode needs -teff, -logg and -monh")
	}

	opts, err := buildOptions(depth, interp, geom, logger)
	if err != nil {
		return err
	}

	ds, err := cache.Load(gridPath)
	if err != nil {
		return err
	}

	out, err := grid.Interpolate(ds, teff, logg, monh, opts...)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, ds, &out)

	return printTable(os.Stdout, &out)
}

type batchConfig struct {
	Grid    string        `yaml:"grid"`
	Depth   string        `yaml:"depth"`
	Interp  string        `yaml:"interp"`
	Geom    string        `yaml:"geom"`
	Targets []batchTarget `yaml:"targets"`
}

type batchTarget struct {
	Teff float64 `yaml:"teff"`
	Logg float64 `yaml:"logg"`
	MonH float64 `yaml:"monh"`
}

func runBatch(cache *grid.Cache, path, gridFlag, depthFlag, interpFlag, geomFlag string, logger *zap.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var cfg batchConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Command line flags win over the batch file.
	gridPath := firstNonEmpty(gridFlag, cfg.Grid)
	if gridPath == "" {
		return errors.New("no grid in batch configuration or -grid flag")
	}

	if len(cfg.Targets) == 0 {
		return fmt.Errorf("%s lists no targets", path)
	}

	opts, err := buildOptions(
		firstNonEmpty(depthFlag, cfg.Depth),
		firstNonEmpty(interpFlag, cfg.Interp),
		firstNonEmpty(geomFlag, cfg.Geom),
		logger)
	if err != nil {
		return err
	}

	ds, err := cache.Load(gridPath)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Teff\tlogg\t[M/H]\tgeom\tlayers\tstatus\n")

	failed := 0

	for _, tgt := range cfg.Targets {
		out, err := grid.Interpolate(ds, tgt.Teff, tgt.Logg, tgt.MonH, opts...)
		if err != nil {
			failed++

			fmt.Fprintf(tw, "%.1f\t%.3f\t%+.3f\t-\t-\t%v\n", tgt.Teff, tgt.Logg, tgt.MonH, err)

			continue
		}

		fmt.Fprintf(tw, "%.1f\t%.3f\t%+.3f\t%s\t%d\tok\n", out.Teff, out.Logg, out.MonH, out.Geom, out.Ndep)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(cfg.Targets))
	}

	return nil
}

func printSummary(w io.Writer, ds *grid.Dataset, a *profile.Atmosphere) {
	fmt.Fprintf(w, "grid %s (%d models", ds.Source, ds.NModels())
	if ds.Version != "" {
		fmt.Fprintf(w, ", version %s", ds.Version)
	}
	fmt.Fprintln(w, ")")

	fmt.Fprintln(w, profile.Summarize(a))

	if a.Geom == profile.GeomSpherical {
		fmt.Fprintf(w, "radius %.4e cm\n", a.Radius)
	}

	fmt.Fprintf(w, "depth %s  interp %s\n\n", a.Depth, a.Interp)
}

type column struct {
	name   string
	format string
	v      []float64
}

func printTable(w io.Writer, a *profile.Atmosphere) error {
	var cols []column

	for _, c := range []column{
		{"RHOX", "%.5e", a.Rhox},
		{"TAU", "%.5e", a.Tau},
		{"TEMP", "%.1f", a.Temp},
		{"XNE", "%.5e", a.Xne},
		{"XNA", "%.5e", a.Xna},
		{"RHO", "%.5e", a.Rho},
		{"HEIGHT", "%.4e", a.Height},
	} {
		if c.v != nil {
			cols = append(cols, c)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprint(tw, "#")
	for _, c := range cols {
		fmt.Fprintf(tw, "\t%s", c.name)
	}
	fmt.Fprintln(tw)

	for i := range a.Ndep {
		fmt.Fprintf(tw, "%d", i+1)
		for _, c := range cols {
			fmt.Fprintf(tw, "\t"+c.format, c.v[i])
		}
		fmt.Fprintln(tw)
	}

	return tw.Flush()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
