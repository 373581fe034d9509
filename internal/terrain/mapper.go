package terrain

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MetersPerDegreeLat is the length of one degree of latitude.
const MetersPerDegreeLat = 111320.0

// MapOptions controls how a geographic grid is fitted into the printer's
// build volume.
type MapOptions struct {
	VerticalExaggeration float64
	BuildVolumeMM        float64
	MarginMM             float64
	BaseThicknessMM      float64
}

// MapToBuildVolume projects g onto a local plane centered on the grid's mean
// position, scales it uniformly so both planar axes fit inside the build
// volume minus the margin on each side, centers it on the bed and lifts it
// so the lowest point sits at the base thickness.
func MapToBuildVolume(g *ElevationGrid, opts MapOptions) (*MetricGrid, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	rows, cols := g.Dims()
	n := rows * cols

	meanLat := stat.Mean(g.Lat.RawMatrix().Data, nil)
	meanLon := stat.Mean(g.Lon.RawMatrix().Data, nil)
	metersPerDegreeLon := MetersPerDegreeLat * math.Cos(meanLat*math.Pi/180)

	xs := make([]float64, 0, n)
	ys := make([]float64, 0, n)
	zs := make([]float64, 0, n)
	for i := range rows {
		for j := range cols {
			xs = append(xs, (g.Lon.At(i, j)-meanLon)*metersPerDegreeLon)
			ys = append(ys, (g.Lat.At(i, j)-meanLat)*MetersPerDegreeLat)
			zs = append(zs, g.Elevation.At(i, j)*opts.VerticalExaggeration)
		}
	}

	xMin, xMax := floats.Min(xs), floats.Max(xs)
	yMin, yMax := floats.Min(ys), floats.Max(ys)
	zMin := floats.Min(zs)
	xExtent, yExtent := xMax-xMin, yMax-yMin
	if xExtent <= 0 || yExtent <= 0 {
		return nil, &DegenerateGeometryError{Reason: "zero planar extent"}
	}

	usable := opts.BuildVolumeMM - 2*opts.MarginMM
	if usable <= 0 {
		return nil, &DegenerateGeometryError{Reason: "margin leaves no usable build area"}
	}
	scale := math.Min(usable/xExtent, usable/yExtent)

	xOffset := (opts.BuildVolumeMM - xExtent*scale) / 2
	yOffset := (opts.BuildVolumeMM - yExtent*scale) / 2
	for k := range xs {
		xs[k] = (xs[k]-xMin)*scale + xOffset
		ys[k] = (ys[k]-yMin)*scale + yOffset
		zs[k] = (zs[k]-zMin)*scale + opts.BaseThicknessMM
	}

	return &MetricGrid{
		X: mat.NewDense(rows, cols, xs),
		Y: mat.NewDense(rows, cols, ys),
		Z: mat.NewDense(rows, cols, zs),
	}, nil
}
