package terrain

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SlopeField returns the terrain slope in degrees at every cell. Gradients
// use central differences inside the grid and one-sided differences on
// the border.
func SlopeField(g *MetricGrid) *mat.Dense {
	rows, cols := g.Dims()
	out := mat.NewDense(rows, cols, nil)

	for i := range rows {
		for j := range cols {
			j0, j1 := max(j-1, 0), min(j+1, cols-1)
			i0, i1 := max(i-1, 0), min(i+1, rows-1)

			gx := gradient(g.Z.At(i, j1)-g.Z.At(i, j0), g.X.At(i, j1)-g.X.At(i, j0))
			gy := gradient(g.Z.At(i1, j)-g.Z.At(i0, j), g.Y.At(i1, j)-g.Y.At(i0, j))

			out.Set(i, j, math.Atan(math.Hypot(gx, gy))*180/math.Pi)
		}
	}
	return out
}

func gradient(dz, d float64) float64 {
	if d == 0 {
		return 0
	}
	return dz / d
}
