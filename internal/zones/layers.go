package zones

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/Faultbox/terraprint/internal/terrain"
	"github.com/Faultbox/terraprint/pkg/mesh"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// EmptyZoneCondition reports a band with no printable footprint. It is not
// fatal: the band is left out of the layer set.
type EmptyZoneCondition struct {
	Zone  int
	Cells int // cells assigned to the band
}

func (e *EmptyZoneCondition) Error() string {
	return fmt.Sprintf("zone %d is empty (%d cells, no complete quad)", e.Zone, e.Cells)
}

// LayerOptions configures BuildLayers.
type LayerOptions struct {
	// LayerThicknessMM is the height of each color shell above the terrain.
	LayerThicknessMM float64
	// MinBaseThicknessMM raises base heights below this value. Zero disables it.
	MinBaseThicknessMM float64
}

// LayerSet maps zone index to its solid. Zone 0 is the base.
type LayerSet struct {
	Layers map[int]*mesh.Mesh
	Empty  []*EmptyZoneCondition
}

// Base returns the base solid.
func (s *LayerSet) Base() *mesh.Mesh {
	return s.Layers[0]
}

// Indices returns the zone indices present, ascending.
func (s *LayerSet) Indices() []int {
	idx := make([]int, 0, len(s.Layers))
	for k := range s.Layers {
		idx = append(idx, k)
	}
	sort.Ints(idx)
	return idx
}

// LayerName is the mesh name used for zone k.
func LayerName(k int) string {
	return fmt.Sprintf("layer%02d", k)
}

// BuildLayers builds the base solid and one shell per non-empty band of zm.
// Shells are built concurrently; the result does not depend on scheduling.
func BuildLayers(g *terrain.MetricGrid, zm *ZoneMap, opts LayerOptions) (*LayerSet, error) {
	rows, cols := g.Dims()
	if zm.Rows != rows || zm.Cols != cols {
		return nil, fmt.Errorf("%w: zone map is %dx%d, grid is %dx%d", terrain.ErrGridShape, zm.Rows, zm.Cols, rows, cols)
	}
	if opts.LayerThicknessMM <= 0 {
		return nil, fmt.Errorf("layer thickness must be positive, got %v", opts.LayerThicknessMM)
	}

	base, err := buildBase(g, opts.MinBaseThicknessMM)
	if err != nil {
		return nil, fmt.Errorf("base: %w", err)
	}

	n := zm.Zones.Count()
	shells := make([]*mesh.Mesh, n+1)
	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for k := 1; k <= n; k++ {
		eg.Go(func() error {
			shells[k] = BuildShell(g, zm, k, opts.LayerThicknessMM)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	set := &LayerSet{Layers: map[int]*mesh.Mesh{0: base}}
	counts := zm.Counts()
	for k := 1; k <= n; k++ {
		if shells[k].IsEmpty() {
			set.Empty = append(set.Empty, &EmptyZoneCondition{Zone: k, Cells: counts[k]})
			continue
		}
		set.Layers[k] = shells[k]
	}
	return set, nil
}

func buildBase(g *terrain.MetricGrid, minThickness float64) (*mesh.Mesh, error) {
	if minThickness > 0 {
		rows, cols := g.Dims()
		z := mat.NewDense(rows, cols, nil)
		z.Apply(func(_, _ int, v float64) float64 {
			return max(v, minThickness)
		}, g.Z)
		g = g.WithZ(z)
	}
	rows, cols := g.Dims()
	solid, err := terrain.BuildSolid(terrain.BuildSurface(g), rows, cols)
	if err != nil {
		return nil, err
	}
	solid.Name = LayerName(0)
	return solid, nil
}

// Footprint returns, for every quad (i, j) with i < rows-1 and j < cols-1,
// whether it belongs to zone k's shell. A quad belongs when its four
// corners are in zone k. Quads that meet the rest of the footprint only
// at a corner are then removed, upper row first, until every vertex is
// manifold.
func Footprint(zm *ZoneMap, k int) [][]bool {
	qr, qc := zm.Rows-1, zm.Cols-1
	fp := make([][]bool, qr)
	for i := range qr {
		fp[i] = make([]bool, qc)
		for j := range qc {
			fp[i][j] = zm.At(i, j) == k && zm.At(i, j+1) == k &&
				zm.At(i+1, j) == k && zm.At(i+1, j+1) == k
		}
	}
	removePinches(fp)
	return fp
}

// removePinches clears diagonal-only quad pairs around interior grid
// vertices. For vertex (i, j) the surrounding quads are (i-1, j-1) and
// (i-1, j) below it and (i, j-1) and (i, j) above it.
func removePinches(fp [][]bool) {
	qr := len(fp)
	if qr < 2 {
		return
	}
	qc := len(fp[0])
	for changed := true; changed; {
		changed = false
		for i := 1; i < qr; i++ {
			for j := 1; j < qc; j++ {
				sw, se := fp[i-1][j-1], fp[i-1][j]
				nw, ne := fp[i][j-1], fp[i][j]
				switch {
				case sw && ne && !se && !nw:
					fp[i][j] = false
					changed = true
				case se && nw && !sw && !ne:
					fp[i][j-1] = false
					changed = true
				}
			}
		}
	}
}

// BuildShell builds the closed shell for zone k: a top sheet at terrain
// height plus thickness, a bottom sheet at terrain height and walls along
// every footprint edge that has no footprint quad on its other side.
// It returns an empty mesh when the footprint is empty.
func BuildShell(g *terrain.MetricGrid, zm *ZoneMap, k int, thickness float64) *mesh.Mesh {
	rows, cols := g.Dims()
	fp := Footprint(zm, k)
	ccw := g.CCW()
	shell := mesh.New(LayerName(k), nil, nil)

	in := func(i, j int) bool {
		return i >= 0 && j >= 0 && i < rows-1 && j < cols-1 && fp[i][j]
	}

	// top[v] and bottom[v] map grid vertex v to its shell vertices.
	top := make(map[int]int)
	bottom := make(map[int]int)
	vertex := func(i, j int) (int, int) {
		v := terrain.VertexIndex(i, j, cols)
		if t, ok := top[v]; ok {
			return t, bottom[v]
		}
		p := g.At(i, j)
		t := len(shell.Vertices)
		shell.Vertices = append(shell.Vertices, r3.Vec{X: p.X, Y: p.Y, Z: p.Z + thickness}, p)
		top[v], bottom[v] = t, t+1
		return t, t + 1
	}

	for i := range rows - 1 {
		for j := range cols - 1 {
			if !fp[i][j] {
				continue
			}
			// Corners in walking order around the quad.
			aT, aB := vertex(i, j)
			bT, bB := vertex(i, j+1)
			cT, cB := vertex(i+1, j+1)
			dT, dB := vertex(i+1, j)

			upper := terrain.QuadFaces(aT, bT, dT, cT, ccw)
			lower := terrain.QuadFaces(aB, bB, dB, cB, ccw)
			shell.Faces = append(shell.Faces,
				upper[0], upper[1],
				terrain.Reversed(lower[0]), terrain.Reversed(lower[1]),
			)

			sides := [4]struct {
				ni, nj int
				pT, pB int
				qT, qB int
			}{
				{i - 1, j, aT, aB, bT, bB}, // south
				{i, j + 1, bT, bB, cT, cB}, // east
				{i + 1, j, cT, cB, dT, dB}, // north
				{i, j - 1, dT, dB, aT, aB}, // west
			}
			for _, s := range sides {
				if in(s.ni, s.nj) {
					continue
				}
				wall := terrain.WallFaces(s.pT, s.qT, s.pB, s.qB, ccw)
				shell.Faces = append(shell.Faces, wall[0], wall[1])
			}
		}
	}
	return shell
}
