package gridfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cwbudde/algo-atmos/atmos/grid"
	"github.com/cwbudde/algo-atmos/atmos/profile"
)

// FormatVersion is the container layout version written by [Write] and the
// only version [Read] accepts.
const FormatVersion = 1

var fileMagic = [4]byte{'A', 'T', 'M', 'G'}

var (
	// ErrBadMagic reports a file that is not a grid container.
	ErrBadMagic = errors.New("gridfile: not a grid container")
	// ErrVersion reports a container with an unknown layout version.
	ErrVersion = errors.New("gridfile: unsupported format version")
)

// Size guards against corrupt headers.
const (
	maxModels = 1 << 20
	maxLayers = 1 << 16
)

// vectorSlots fixes the on-disk order of the per-model vectors and the
// presence mask bit each one occupies.
var vectorSlots = []struct {
	name string
	bit  uint8
	ref  func(a *profile.Atmosphere) *[]float64
}{
	{"RHOX", 1 << 0, func(a *profile.Atmosphere) *[]float64 { return &a.Rhox }},
	{"TAU", 1 << 1, func(a *profile.Atmosphere) *[]float64 { return &a.Tau }},
	{"TEMP", 1 << 2, func(a *profile.Atmosphere) *[]float64 { return &a.Temp }},
	{"XNE", 1 << 3, func(a *profile.Atmosphere) *[]float64 { return &a.Xne }},
	{"XNA", 1 << 4, func(a *profile.Atmosphere) *[]float64 { return &a.Xna }},
	{"RHO", 1 << 5, func(a *profile.Atmosphere) *[]float64 { return &a.Rho }},
	{"HEIGHT", 1 << 6, func(a *profile.Atmosphere) *[]float64 { return &a.Height }},
}

// Read parses a grid container from r. The returned dataset passes
// [grid.Dataset.Validate]; a container that decodes but fails validation
// is rejected.
func Read(r io.Reader) (*grid.Dataset, error) {
	var magic [4]byte

	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("gridfile: reading magic: %w", err)
	}

	if magic != fileMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadMagic, magic[:])
	}

	var version uint16
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("gridfile: reading format version: %w", err)
	}

	if version != FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	tag, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("gridfile: reading version tag: %w", err)
	}

	var maxdep uint32
	if err := binary.Read(r, binary.LittleEndian, &maxdep); err != nil {
		return nil, fmt.Errorf("gridfile: reading layer capacity: %w", err)
	}

	var sel [2]uint8
	if err := binary.Read(r, binary.LittleEndian, &sel); err != nil {
		return nil, fmt.Errorf("gridfile: reading default selectors: %w", err)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("gridfile: reading model count: %w", err)
	}

	if count > maxModels || maxdep > maxLayers {
		return nil, fmt.Errorf("gridfile: implausible header (%d models, %d layers)", count, maxdep)
	}

	ds := &grid.Dataset{
		Models:        make([]profile.Atmosphere, 0, count),
		MaxDep:        int(maxdep),
		Version:       tag,
		DefaultDepth:  profile.DepthVar(sel[0]),
		DefaultInterp: profile.DepthVar(sel[1]),
	}

	for i := range int(count) {
		m, err := readModel(r, i)
		if err != nil {
			return nil, err
		}

		ds.Models = append(ds.Models, m)
	}

	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("gridfile: %w", err)
	}

	return ds, nil
}

// ReadFile reads the grid container at path and stamps the dataset source.
// The signature matches [grid.LoaderFunc].
func ReadFile(path string) (*grid.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gridfile: %w", err)
	}
	defer f.Close()

	ds, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("gridfile: reading %s: %w", path, err)
	}

	ds.Source = path

	return ds, nil
}

// Write serializes the dataset to w. The dataset is validated first so a
// written container always reads back cleanly.
func Write(w io.Writer, ds *grid.Dataset) error {
	if ds == nil {
		return fmt.Errorf("gridfile: nil dataset")
	}

	if err := ds.Validate(); err != nil {
		return fmt.Errorf("gridfile: %w", err)
	}

	if _, err := w.Write(fileMagic[:]); err != nil {
		return fmt.Errorf("gridfile: writing magic: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint16(FormatVersion)); err != nil {
		return fmt.Errorf("gridfile: writing format version: %w", err)
	}

	if err := writeString(w, ds.Version); err != nil {
		return fmt.Errorf("gridfile: writing version tag: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(ds.MaxDep)); err != nil {
		return fmt.Errorf("gridfile: writing layer capacity: %w", err)
	}

	sel := [2]uint8{uint8(ds.DefaultDepth), uint8(ds.DefaultInterp)}
	if err := binary.Write(w, binary.LittleEndian, sel); err != nil {
		return fmt.Errorf("gridfile: writing default selectors: %w", err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(len(ds.Models))); err != nil {
		return fmt.Errorf("gridfile: writing model count: %w", err)
	}

	for i := range ds.Models {
		if err := writeModel(w, &ds.Models[i], i); err != nil {
			return err
		}
	}

	return nil
}

// WriteFile writes the dataset to a grid container at path.
func WriteFile(path string, ds *grid.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gridfile: %w", err)
	}

	bw := bufio.NewWriter(f)

	if err := Write(bw, ds); err != nil {
		f.Close()
		return err
	}

	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("gridfile: flushing %s: %w", path, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("gridfile: closing %s: %w", path, err)
	}

	return nil
}

func readModel(r io.Reader, idx int) (profile.Atmosphere, error) {
	var a profile.Atmosphere

	scalars := []struct {
		name string
		dst  *float64
	}{
		{"teff", &a.Teff},
		{"logg", &a.Logg},
		{"monh", &a.MonH},
		{"vturb", &a.Vturb},
		{"lonh", &a.Lonh},
		{"wlstd", &a.Wlstd},
		{"radius", &a.Radius},
	}
	for _, s := range scalars {
		if err := binary.Read(r, binary.LittleEndian, s.dst); err != nil {
			return a, fmt.Errorf("gridfile: model %d: reading %s: %w", idx, s.name, err)
		}
	}

	var sel [3]uint8
	if err := binary.Read(r, binary.LittleEndian, &sel); err != nil {
		return a, fmt.Errorf("gridfile: model %d: reading selectors: %w", idx, err)
	}

	a.Depth = profile.DepthVar(sel[0])
	a.Interp = profile.DepthVar(sel[1])
	a.Geom = profile.Geometry(sel[2])

	var ndep uint32
	if err := binary.Read(r, binary.LittleEndian, &ndep); err != nil {
		return a, fmt.Errorf("gridfile: model %d: reading layer count: %w", idx, err)
	}

	if ndep > maxLayers {
		return a, fmt.Errorf("gridfile: model %d: implausible layer count %d", idx, ndep)
	}

	a.Ndep = int(ndep)

	var mask uint8
	if err := binary.Read(r, binary.LittleEndian, &mask); err != nil {
		return a, fmt.Errorf("gridfile: model %d: reading presence mask: %w", idx, err)
	}

	for _, slot := range vectorSlots {
		if mask&slot.bit == 0 {
			continue
		}

		v := make([]float64, ndep)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return a, fmt.Errorf("gridfile: model %d: reading %s: %w", idx, slot.name, err)
		}

		*slot.ref(&a) = v
	}

	if err := binary.Read(r, binary.LittleEndian, &a.Abund); err != nil {
		return a, fmt.Errorf("gridfile: model %d: reading abundances: %w", idx, err)
	}

	if err := binary.Read(r, binary.LittleEndian, &a.Opflag); err != nil {
		return a, fmt.Errorf("gridfile: model %d: reading opacity flags: %w", idx, err)
	}

	return a, nil
}

func writeModel(w io.Writer, a *profile.Atmosphere, idx int) error {
	scalars := []struct {
		name string
		v    float64
	}{
		{"teff", a.Teff},
		{"logg", a.Logg},
		{"monh", a.MonH},
		{"vturb", a.Vturb},
		{"lonh", a.Lonh},
		{"wlstd", a.Wlstd},
		{"radius", a.Radius},
	}
	for _, s := range scalars {
		if err := binary.Write(w, binary.LittleEndian, s.v); err != nil {
			return fmt.Errorf("gridfile: model %d: writing %s: %w", idx, s.name, err)
		}
	}

	sel := [3]uint8{uint8(a.Depth), uint8(a.Interp), uint8(a.Geom)}
	if err := binary.Write(w, binary.LittleEndian, sel); err != nil {
		return fmt.Errorf("gridfile: model %d: writing selectors: %w", idx, err)
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(a.Ndep)); err != nil {
		return fmt.Errorf("gridfile: model %d: writing layer count: %w", idx, err)
	}

	var mask uint8

	for _, slot := range vectorSlots {
		if *slot.ref(a) != nil {
			mask |= slot.bit
		}
	}

	if err := binary.Write(w, binary.LittleEndian, mask); err != nil {
		return fmt.Errorf("gridfile: model %d: writing presence mask: %w", idx, err)
	}

	for _, slot := range vectorSlots {
		v := *slot.ref(a)
		if v == nil {
			continue
		}

		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("gridfile: model %d: writing %s: %w", idx, slot.name, err)
		}
	}

	if err := binary.Write(w, binary.LittleEndian, a.Abund); err != nil {
		return fmt.Errorf("gridfile: model %d: writing abundances: %w", idx, err)
	}

	if err := binary.Write(w, binary.LittleEndian, a.Opflag); err != nil {
		return fmt.Errorf("gridfile: model %d: writing opacity flags: %w", idx, err)
	}

	return nil
}

// readString reads a uint16-length-prefixed UTF-8 string from r.
func readString(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}

	if length == 0 {
		return "", nil
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	return string(buf), nil
}

// writeString writes a uint16-length-prefixed UTF-8 string to w.
func writeString(w io.Writer, s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("string too long (%d bytes)", len(s))
	}

	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}

	if len(s) == 0 {
		return nil
	}

	_, err := io.WriteString(w, s)

	return err
}
