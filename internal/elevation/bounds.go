// Package elevation fetches elevation grids for a geographic area from an
// HTTP API or a synthetic generator, with an on-disk cache in front.
package elevation

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/terrain"
)

// Grid spacing constants.
const (
	EarthRadiusKM = 6371.0
	// MetersPerDegreeLon is a conservative length of one degree of
	// longitude at mid latitudes.
	MetersPerDegreeLon = 85000.0
)

// ErrInvalidBounds is returned for empty or inverted rectangles.
var ErrInvalidBounds = errors.New("invalid bounds")

// NewBounds returns the rectangle with X as longitude and Y as latitude.
func NewBounds(north, south, east, west float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: west, Y: south},
		Max: geom.Point{X: east, Y: north},
	}
}

// BoundsAround returns the square of half-width radiusKM centered on
// (lat, lon).
func BoundsAround(lat, lon, radiusKM float64) *geom.Bounds {
	dLat := radiusKM / EarthRadiusKM * 180 / math.Pi
	dLon := dLat / math.Cos(lat*math.Pi/180)
	return NewBounds(lat+dLat, lat-dLat, lon+dLon, lon-dLon)
}

// FromConfig resolves the configured location to a rectangle.
func FromConfig(loc config.LocationConfig) (*geom.Bounds, error) {
	switch {
	case loc.Bounds != nil:
		b := loc.Bounds
		return NewBounds(b.North, b.South, b.East, b.West), nil
	case loc.Center != nil:
		if loc.RadiusKM <= 0 {
			return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidBounds)
		}
		return BoundsAround(loc.Center.Lat, loc.Center.Lon, loc.RadiusKM), nil
	}
	return nil, fmt.Errorf("%w: no location configured", ErrInvalidBounds)
}

// ResolveBounds is FromConfig that also accepts an address, geocoded with
// gc and boxed like a center.
func ResolveBounds(ctx context.Context, loc config.LocationConfig, gc Geocoder) (*geom.Bounds, error) {
	if loc.Address == "" {
		return FromConfig(loc)
	}
	if loc.RadiusKM <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", ErrInvalidBounds)
	}
	if gc == nil {
		return nil, errors.New("geocoding an address needs a Google API key")
	}
	lat, lon, err := gc.Geocode(ctx, loc.Address)
	if err != nil {
		return nil, err
	}
	return BoundsAround(lat, lon, loc.RadiusKM), nil
}

// BoundsOf returns the rectangle covered by g.
func BoundsOf(g *terrain.ElevationGrid) *geom.Bounds {
	b := geom.NewBounds()
	rows, cols := g.Dims()
	for i := range rows {
		for j := range cols {
			b.Extend(geom.Point{X: g.Lon.At(i, j), Y: g.Lat.At(i, j)}.Bounds())
		}
	}
	return b
}

// AxisPoints spaces points evenly from start to end inclusive. The count
// is the number of whole resolutionM steps that fit plus one, never fewer
// than two.
func AxisPoints(start, end, resolutionM float64, latitude bool) []float64 {
	perDegree := MetersPerDegreeLon
	if latitude {
		perDegree = terrain.MetersPerDegreeLat
	}
	step := resolutionM / perDegree
	n := max(2, int((end-start)/step)+1)
	pts := floats.Span(make([]float64, n), start, end)
	pts[n-1] = end
	return pts
}

// Layout returns the latitude and longitude matrices for b sampled at
// resolutionM. Rows go south to north, columns west to east.
func Layout(b *geom.Bounds, resolutionM float64) (lat, lon *mat.Dense, err error) {
	if b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y {
		return nil, nil, fmt.Errorf("%w: %v to %v", ErrInvalidBounds, b.Min, b.Max)
	}
	if resolutionM <= 0 {
		return nil, nil, fmt.Errorf("%w: resolution %v", ErrInvalidBounds, resolutionM)
	}
	lats := AxisPoints(b.Min.Y, b.Max.Y, resolutionM, true)
	lons := AxisPoints(b.Min.X, b.Max.X, resolutionM, false)

	rows, cols := len(lats), len(lons)
	lat = mat.NewDense(rows, cols, nil)
	lon = mat.NewDense(rows, cols, nil)
	for i := range rows {
		for j := range cols {
			lat.Set(i, j, lats[i])
			lon.Set(i, j, lons[j])
		}
	}
	return lat, lon, nil
}
