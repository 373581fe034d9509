// Package terrain turns elevation grids into printable solids: it maps a
// geographic grid into the build volume, triangulates the height field and
// closes it with walls and a floor.
package terrain

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Grid errors.
var (
	ErrGridShape          = errors.New("grid shape mismatch")
	ErrGridTooSmall       = errors.New("grid must have at least 2 rows and 2 columns")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
	ErrInvalidStep        = errors.New("step height must be positive")
)

// DegenerateGeometryError reports input that would collapse the model or
// divide by zero, such as a zero planar extent.
type DegenerateGeometryError struct {
	Reason string
}

func (e *DegenerateGeometryError) Error() string {
	return "degenerate geometry: " + e.Reason
}

// Unwrap lets errors.Is match ErrDegenerateGeometry.
func (e *DegenerateGeometryError) Unwrap() error {
	return ErrDegenerateGeometry
}

// ElevationGrid holds latitude, longitude and elevation (meters) samples on
// a rectangular grid. Rows run south to north, columns west to east. It is
// treated as read-only once built.
type ElevationGrid struct {
	Lat       *mat.Dense
	Lon       *mat.Dense
	Elevation *mat.Dense
}

// NewElevationGrid wraps three equal-shape matrices and validates them.
func NewElevationGrid(lat, lon, elevation *mat.Dense) (*ElevationGrid, error) {
	g := &ElevationGrid{Lat: lat, Lon: lon, Elevation: elevation}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// GridFromRows builds an ElevationGrid from row slices.
func GridFromRows(lat, lon, elevation [][]float64) (*ElevationGrid, error) {
	l, err := denseFromRows(lat)
	if err != nil {
		return nil, fmt.Errorf("lat: %w", err)
	}
	o, err := denseFromRows(lon)
	if err != nil {
		return nil, fmt.Errorf("lon: %w", err)
	}
	e, err := denseFromRows(elevation)
	if err != nil {
		return nil, fmt.Errorf("elevation: %w", err)
	}
	return NewElevationGrid(l, o, e)
}

// Dims returns the number of rows and columns.
func (g *ElevationGrid) Dims() (rows, cols int) {
	return g.Elevation.Dims()
}

// Validate checks the grid shape: all three arrays share one shape
// of at least 2x2.
func (g *ElevationGrid) Validate() error {
	if g.Lat == nil || g.Lon == nil || g.Elevation == nil {
		return fmt.Errorf("%w: missing array", ErrGridShape)
	}
	r, c := g.Elevation.Dims()
	if lr, lc := g.Lat.Dims(); lr != r || lc != c {
		return fmt.Errorf("%w: lat is %dx%d, elevation is %dx%d", ErrGridShape, lr, lc, r, c)
	}
	if or, oc := g.Lon.Dims(); or != r || oc != c {
		return fmt.Errorf("%w: lon is %dx%d, elevation is %dx%d", ErrGridShape, or, oc, r, c)
	}
	if r < 2 || c < 2 {
		return fmt.Errorf("%w: got %dx%d", ErrGridTooSmall, r, c)
	}
	return nil
}

// ElevationRange returns the minimum and maximum elevation in meters.
func (g *ElevationGrid) ElevationRange() (min, max float64) {
	return mat.Min(g.Elevation), mat.Max(g.Elevation)
}

// MetricGrid holds X, Y, Z positions in millimeters, one per grid cell.
type MetricGrid struct {
	X *mat.Dense
	Y *mat.Dense
	Z *mat.Dense
}

// Dims returns the number of rows and columns.
func (g *MetricGrid) Dims() (rows, cols int) {
	return g.Z.Dims()
}

// At returns the position of cell (i, j).
func (g *MetricGrid) At(i, j int) r3.Vec {
	return r3.Vec{X: g.X.At(i, j), Y: g.Y.At(i, j), Z: g.Z.At(i, j)}
}

// ZRange returns the minimum and maximum height.
func (g *MetricGrid) ZRange() (min, max float64) {
	return mat.Min(g.Z), mat.Max(g.Z)
}

// WithZ returns a grid sharing X and Y with g but using z for heights.
func (g *MetricGrid) WithZ(z *mat.Dense) *MetricGrid {
	return &MetricGrid{X: g.X, Y: g.Y, Z: z}
}

// CCW reports whether the grid's first quad, walked (0,0)->(0,1)->(1,0),
// turns counter-clockwise seen from +Z. Grids laid out with columns
// increasing in X and rows increasing in Y are counter-clockwise.
func (g *MetricGrid) CCW() bool {
	o := g.At(0, 0)
	right := r3.Sub(g.At(0, 1), o)
	up := r3.Sub(g.At(1, 0), o)
	return right.X*up.Y-right.Y*up.X >= 0
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrGridTooSmall
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrGridShape, i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}
