package zones

import (
	"fmt"
	"math"
	"testing"

	"github.com/Faultbox/terraprint/internal/terrain"
	"github.com/Faultbox/terraprint/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// metricGrid lays out a grid with 10 mm spacing and heights from f.
func metricGrid(rows, cols int, f func(i, j int) float64) *terrain.MetricGrid {
	x := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, cols, nil)
	z := mat.NewDense(rows, cols, nil)
	for i := range rows {
		for j := range cols {
			x.Set(i, j, 10+float64(j)*10)
			y.Set(i, j, 10+float64(i)*10)
			z.Set(i, j, 5+f(i, j))
		}
	}
	return &terrain.MetricGrid{X: x, Y: y, Z: z}
}

func hills(i, j int) float64 {
	return 20 + 15*math.Sin(float64(i)*0.7) + 12*math.Cos(float64(j)*0.45) + 0.3*float64(i*j)
}

func TestPartition_BandCount(t *testing.T) {
	for _, n := range []int{0, 7, -1} {
		_, err := Partition(0, 100, n)
		assert.ErrorIs(t, err, ErrBandCount, "n=%d", n)
	}
}

func TestPartition_CoversRange(t *testing.T) {
	for n := 1; n <= MaxBands; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			z, err := Partition(-12.5, 87.25, n)
			require.NoError(t, err)
			require.Equal(t, n, z.Count())

			assert.LessOrEqual(t, z.Bands[0].Min, z.Min)
			assert.GreaterOrEqual(t, z.Bands[n-1].Max, z.Max)
			for k := 1; k < n; k++ {
				// Neighbours overlap, so no value falls between them.
				assert.Less(t, z.Bands[k].Min, z.Bands[k-1].Max)
			}

			for s := 0; s <= 10000; s++ {
				v := z.Min + (z.Max-z.Min)*float64(s)/10000
				k := z.Assign(v)
				require.GreaterOrEqual(t, k, 1)
				require.LessOrEqual(t, k, n)
				band, ok := z.Band(k)
				require.True(t, ok)
				require.True(t, band.Contains(v), "%v assigned to %s", v, band)
				require.True(t, z.Base.Contains(v))
			}
		})
	}
}

func TestAssign_TieBreakGoesToLowerBand(t *testing.T) {
	z, err := Partition(0, 100, 4)
	require.NoError(t, err)

	assert.Equal(t, 1, z.Assign(25))
	assert.Equal(t, 2, z.Assign(50))
	assert.Equal(t, 3, z.Assign(75))
	assert.Equal(t, 1, z.Assign(0))
	assert.Equal(t, 4, z.Assign(100))
}

func TestAssign_NearestCenterFallback(t *testing.T) {
	z, err := Partition(0, 100, 4)
	require.NoError(t, err)

	assert.Equal(t, 4, z.Assign(1e6))
	assert.Equal(t, 1, z.Assign(-1e6))
	assert.Equal(t, 1, z.Assign(math.NaN()))
}

func TestPartition_ZeroRange(t *testing.T) {
	z, err := Partition(42, 42, 3)
	require.NoError(t, err)

	assert.Equal(t, 1, z.Assign(42))
	_, ok := z.Band(4)
	assert.False(t, ok)
}

// West-to-east ramp: the west column is band 1 and the east column band 4.
func TestScenario_RampBands(t *testing.T) {
	lat := mat.NewDense(5, 5, nil)
	lon := mat.NewDense(5, 5, nil)
	el := mat.NewDense(5, 5, nil)
	for i := range 5 {
		for j := range 5 {
			lat.Set(i, j, 46.5+float64(i)*0.002)
			lon.Set(i, j, 7.5+float64(j)*0.002)
			el.Set(i, j, float64(j)*25)
		}
	}
	grid, err := terrain.NewElevationGrid(lat, lon, el)
	require.NoError(t, err)
	m, err := terrain.MapToBuildVolume(grid, terrain.MapOptions{
		VerticalExaggeration: 1, BuildVolumeMM: 220, MarginMM: 10, BaseThicknessMM: 5,
	})
	require.NoError(t, err)

	z, err := FromValues(m.Z, 4)
	require.NoError(t, err)
	zm := z.Map(m.Z)

	for i := range 5 {
		assert.Equal(t, 1, zm.At(i, 0), "row %d west", i)
		assert.Equal(t, 4, zm.At(i, 4), "row %d east", i)
	}
	assert.Equal(t, []int{0, 10, 5, 5, 5}, zm.Counts())
}

func TestBuildLayers_ShellsWatertightAndDisjoint(t *testing.T) {
	g := metricGrid(12, 15, hills)

	for n := 1; n <= MaxBands; n++ {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			z, err := FromValues(g.Z, n)
			require.NoError(t, err)
			zm := z.Map(g.Z)

			set, err := BuildLayers(g, zm, LayerOptions{LayerThicknessMM: 2})
			require.NoError(t, err)
			require.NotNil(t, set.Base())
			assert.Equal(t, n+1, len(set.Layers)+len(set.Empty))

			for _, k := range set.Indices() {
				solid := set.Layers[k]
				topo := mesh.Analyze(solid)
				assert.True(t, topo.Watertight(), "%s: boundary=%v nonmanifold=%v", solid.Name, topo.Boundary, topo.NonManifold)
				assert.True(t, topo.WindingConsistent(), "%s: inconsistent=%v", solid.Name, topo.Inconsistent)
				assert.Greater(t, solid.SignedVolume(), 0.0, solid.Name)
				assert.Equal(t, LayerName(k), solid.Name)
			}

			// No grid vertex is used by two shells.
			owner := make(map[int]int)
			for k := 1; k <= n; k++ {
				fp := Footprint(zm, k)
				for i := range fp {
					for j := range fp[i] {
						if !fp[i][j] {
							continue
						}
						for _, v := range [][2]int{{i, j}, {i, j + 1}, {i + 1, j}, {i + 1, j + 1}} {
							idx := terrain.VertexIndex(v[0], v[1], zm.Cols)
							if prev, ok := owner[idx]; ok {
								require.Equal(t, prev, k, "vertex %d shared by zones %d and %d", idx, prev, k)
							}
							owner[idx] = k
						}
					}
				}
			}
		})
	}
}

func TestBuildShell_Thickness(t *testing.T) {
	g := metricGrid(4, 4, func(i, j int) float64 { return float64(i + j) })
	z, err := Partition(0, 1000, 1)
	require.NoError(t, err)
	zm := z.Map(g.Z)

	shell := BuildShell(g, zm, 1, 1.5)

	// Top and bottom copies alternate.
	require.Len(t, shell.Vertices, 2*16)
	for v := 0; v < len(shell.Vertices); v += 2 {
		assert.InDelta(t, 1.5, shell.Vertices[v].Z-shell.Vertices[v+1].Z, 1e-12)
	}
	// 9 quads with 4 faces each, 12 boundary sides with 2 faces each.
	assert.Len(t, shell.Faces, 9*4+12*2)
	assert.True(t, mesh.IsWatertight(shell))
}

func TestFootprint_RemovesPinch(t *testing.T) {
	// Zone 1 fills quads (0,0) and (1,1), which touch only at vertex (1,1).
	layout := [][]int{
		{1, 1, 2, 2},
		{1, 1, 1, 2},
		{2, 1, 1, 2},
		{2, 2, 2, 2},
	}
	z, err := Partition(0, 1, 2)
	require.NoError(t, err)
	zm := &ZoneMap{Rows: 4, Cols: 4, Zones: z}
	for _, row := range layout {
		zm.cells = append(zm.cells, row...)
	}

	fp := Footprint(zm, 1)
	want := [][]bool{
		{true, false, false},
		{false, false, false},
		{false, false, false},
	}
	assert.Equal(t, want, fp)

	g := metricGrid(4, 4, func(int, int) float64 { return 3 })
	shell := BuildShell(g, zm, 1, 2)
	assert.Len(t, shell.Vertices, 8)
	assert.Len(t, shell.Faces, 12)
	assert.True(t, mesh.IsWatertight(shell))
}

func TestBuildLayers_EmptyZone(t *testing.T) {
	// Two plateaus leave the middle band without cells.
	g := metricGrid(3, 4, func(_, j int) float64 {
		if j < 2 {
			return 0
		}
		return 100
	})
	z, err := FromValues(g.Z, 3)
	require.NoError(t, err)

	set, err := BuildLayers(g, z.Map(g.Z), LayerOptions{LayerThicknessMM: 2})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 3}, set.Indices())
	require.Len(t, set.Empty, 1)
	assert.Equal(t, 2, set.Empty[0].Zone)
	assert.Equal(t, 0, set.Empty[0].Cells)
	assert.Contains(t, set.Empty[0].Error(), "zone 2")
}

func TestBuildLayers_MinBaseThickness(t *testing.T) {
	g := metricGrid(3, 3, func(i, _ int) float64 { return float64(i) })
	z, err := FromValues(g.Z, 1)
	require.NoError(t, err)

	set, err := BuildLayers(g, z.Map(g.Z), LayerOptions{LayerThicknessMM: 1, MinBaseThicknessMM: 6.5})
	require.NoError(t, err)

	for k, v := range set.Base().Vertices[:9] {
		assert.GreaterOrEqual(t, v.Z, 6.5, "top vertex %d", k)
	}
	// The caller's grid is untouched.
	assert.Equal(t, 5.0, g.Z.At(0, 0))
}

func TestBuildLayers_Errors(t *testing.T) {
	g := metricGrid(3, 3, hills)
	z, err := FromValues(g.Z, 2)
	require.NoError(t, err)

	_, err = BuildLayers(g, z.Map(g.Z), LayerOptions{})
	assert.Error(t, err)

	_, err = BuildLayers(metricGrid(4, 3, hills), z.Map(g.Z), LayerOptions{LayerThicknessMM: 1})
	assert.ErrorIs(t, err, terrain.ErrGridShape)
}
