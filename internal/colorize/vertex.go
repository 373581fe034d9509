package colorize

import (
	"image/color"
	"math"

	"github.com/Faultbox/terraprint/pkg/mesh"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Bucket maps a normalized value in [0, 1] to a palette index.
func Bucket(normalized float64, size int) int {
	idx := int(math.Floor(normalized * float64(size)))
	return max(0, min(idx, size-1))
}

// VertexIndices returns the palette index of every vertex. Heights are
// taken relative to baseThickness and normalized over the solid's own
// height range. A flat source grid (zero elevation range) or a flat solid
// puts every vertex in band 0.
func VertexIndices(vertices []r3.Vec, baseThickness, elevationRange float64, size int) []int {
	idx := make([]int, len(vertices))
	if len(vertices) == 0 || elevationRange == 0 || size <= 1 {
		return idx
	}

	z := make([]float64, len(vertices))
	for i, v := range vertices {
		z[i] = v.Z - baseThickness
	}
	lo, hi := floats.Min(z), floats.Max(z)
	if hi-lo == 0 {
		return idx
	}
	for i, v := range z {
		idx[i] = Bucket((v-lo)/(hi-lo), size)
	}
	return idx
}

// AssignVertexColors returns a copy of solid carrying one palette color
// per vertex. elevationRange is the max minus min of the source grid in
// meters.
func AssignVertexColors(solid *mesh.Mesh, p Palette, baseThickness, elevationRange float64) *mesh.Mesh {
	out := solid.Clone()
	indices := VertexIndices(solid.Vertices, baseThickness, elevationRange, p.Len())
	out.Colors = make([]color.RGBA, len(indices))
	for i, k := range indices {
		out.Colors[i] = p.At(k)
	}
	return out
}

// AssignZoneColors colors a solid built by terrain.BuildSolid from per-cell
// band indices (1-based). The solid's floor block repeats the surface
// block, so vertex v takes the band of cell v modulo the cell count.
func AssignZoneColors(solid *mesh.Mesh, p Palette, cellZones []int) *mesh.Mesh {
	out := solid.Clone()
	out.Colors = make([]color.RGBA, len(solid.Vertices))
	for v := range out.Colors {
		k := 1
		if len(cellZones) > 0 {
			k = cellZones[v%len(cellZones)]
		}
		out.Colors[v] = p.At(k - 1)
	}
	return out
}
