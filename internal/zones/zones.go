// Package zones partitions a height (or slope) field into bands for
// multi-material printing and builds one closed shell per band.
package zones

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Epsilon is how far each band reaches past its nominal edges.
const Epsilon = 0.001

// MaxBands is the largest supported band count.
const MaxBands = 6

// ErrBandCount is returned for a band count outside [1, MaxBands].
var ErrBandCount = errors.New("band count out of range")

// Zone is a closed value interval tagged with its index. Index 0 is the
// base zone.
type Zone struct {
	Index int
	Min   float64
	Max   float64
}

// Contains reports whether v lies in [Min, Max].
func (z Zone) Contains(v float64) bool {
	return v >= z.Min && v <= z.Max
}

// Center returns the midpoint of the interval.
func (z Zone) Center() float64 {
	return (z.Min + z.Max) / 2
}

func (z Zone) String() string {
	return fmt.Sprintf("zone %d [%.3f, %.3f]", z.Index, z.Min, z.Max)
}

// Zones holds the base zone and the N equal-height bands over a value range.
type Zones struct {
	Min   float64
	Max   float64
	Base  Zone
	Bands []Zone // Bands[k-1] has Index k
}

// Partition splits [lo, hi] into n equal bands. Every band is widened by
// Epsilon on both sides so neighbours overlap and the union covers the
// whole range.
func Partition(lo, hi float64, n int) (*Zones, error) {
	if n < 1 || n > MaxBands {
		return nil, fmt.Errorf("%w: %d", ErrBandCount, n)
	}
	if lo > hi {
		lo, hi = hi, lo
	}

	z := &Zones{
		Min:   lo,
		Max:   hi,
		Base:  Zone{Index: 0, Min: lo - Epsilon, Max: hi + Epsilon},
		Bands: make([]Zone, n),
	}
	width := (hi - lo) / float64(n)
	for k := range n {
		bandLo := lo + float64(k)*width
		bandHi := lo + float64(k+1)*width
		if k == n-1 {
			bandHi = hi
		}
		z.Bands[k] = Zone{Index: k + 1, Min: bandLo - Epsilon, Max: bandHi + Epsilon}
	}
	return z, nil
}

// FromValues partitions the range of values into n bands.
func FromValues(values mat.Matrix, n int) (*Zones, error) {
	return Partition(mat.Min(values), mat.Max(values), n)
}

// Count returns the number of bands, not counting the base.
func (z *Zones) Count() int {
	return len(z.Bands)
}

// Assign returns the band index in [1, N] for v. Bands are scanned in
// ascending order and the first one containing v wins, so a value on a
// shared edge belongs to the lower band. A value no band contains goes to
// the band with the nearest center.
func (z *Zones) Assign(v float64) int {
	for _, b := range z.Bands {
		if b.Contains(v) {
			return b.Index
		}
	}
	best := z.Bands[0].Index
	bestDist := math.Inf(1)
	for _, b := range z.Bands {
		if d := math.Abs(v - b.Center()); d < bestDist {
			best, bestDist = b.Index, d
		}
	}
	return best
}

// Band returns zone k. Zero is the base zone.
func (z *Zones) Band(k int) (Zone, bool) {
	if k == 0 {
		return z.Base, true
	}
	if k < 1 || k > len(z.Bands) {
		return Zone{}, false
	}
	return z.Bands[k-1], true
}

// ZoneMap assigns each grid cell one band index.
type ZoneMap struct {
	Rows  int
	Cols  int
	Zones *Zones
	cells []int
}

// Map assigns every cell of values to a band.
func (z *Zones) Map(values mat.Matrix) *ZoneMap {
	rows, cols := values.Dims()
	zm := &ZoneMap{Rows: rows, Cols: cols, Zones: z, cells: make([]int, rows*cols)}
	for i := range rows {
		for j := range cols {
			zm.cells[i*cols+j] = z.Assign(values.At(i, j))
		}
	}
	return zm
}

// At returns the band of cell (i, j).
func (zm *ZoneMap) At(i, j int) int {
	return zm.cells[i*zm.Cols+j]
}

// Counts returns the number of cells per band; index 0 is unused.
func (zm *ZoneMap) Counts() []int {
	counts := make([]int, zm.Zones.Count()+1)
	for _, k := range zm.cells {
		counts[k]++
	}
	return counts
}
