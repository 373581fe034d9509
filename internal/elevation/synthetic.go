package elevation

import (
	"context"

	"github.com/aquilax/go-perlin"
	"github.com/ctessum/geom"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/terrain"
)

// Synthetic generates deterministic Perlin terrain for offline runs.
type Synthetic struct {
	Seed int64
	// BaseM and ReliefM set the lowest possible height and the height span.
	BaseM   float64
	ReliefM float64
	// Frequency is noise cycles per degree.
	Frequency float64

	noise *perlin.Perlin
}

// NewSynthetic returns a source with alpine-like defaults.
func NewSynthetic(seed int64) *Synthetic {
	return &Synthetic{
		Seed:      seed,
		BaseM:     500,
		ReliefM:   1500,
		Frequency: 150,
	}
}

func (s *Synthetic) generator() *perlin.Perlin {
	const (
		alpha   = 2.0 // smoothing
		beta    = 2.0 // frequency
		octaves = int32(3)
	)
	if s.noise == nil {
		s.noise = perlin.NewPerlin(alpha, beta, octaves, s.Seed)
	}
	return s.noise
}

// Name implements Source.
func (s *Synthetic) Name() string { return "synthetic" }

// At returns the height in meters at (lat, lon).
func (s *Synthetic) At(lat, lon float64) float64 {
	n := s.generator().Noise2D(lon*s.Frequency, lat*s.Frequency) // roughly -1..1
	n = max(-1, min(1, n))
	return s.BaseM + s.ReliefM*(n+1)/2
}

// Fetch implements Source.
func (s *Synthetic) Fetch(ctx context.Context, b *geom.Bounds, resolutionM float64) (*terrain.ElevationGrid, error) {
	lat, lon, err := Layout(b, resolutionM)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, cols := lat.Dims()
	elev := mat.NewDense(rows, cols, nil)
	elev.Apply(func(i, j int, _ float64) float64 {
		return s.At(lat.At(i, j), lon.At(i, j))
	}, elev)
	return terrain.NewElevationGrid(lat, lon, elev)
}
