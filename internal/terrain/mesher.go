package terrain

import (
	"fmt"

	"github.com/Faultbox/terraprint/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// VertexIndex returns the row-major index of grid cell (i, j).
func VertexIndex(i, j, cols int) int {
	return i*cols + j
}

// QuadFaces triangulates the quad with corners v1=(i,j), v2=(i,j+1),
// v3=(i+1,j), v4=(i+1,j+1). The diagonal always runs v2-v3. ccw selects
// the winding that faces +Z for a counter-clockwise grid.
func QuadFaces(v1, v2, v3, v4 int, ccw bool) [2]mesh.Face {
	if ccw {
		return [2]mesh.Face{{v1, v2, v3}, {v2, v4, v3}}
	}
	return [2]mesh.Face{{v1, v3, v2}, {v2, v3, v4}}
}

// WallFaces joins the top edge p->q to its floor copy pb->qb. The edge is
// given in loop order; for a counter-clockwise loop the result faces
// outward.
func WallFaces(p, q, pb, qb int, ccw bool) [2]mesh.Face {
	if !ccw {
		p, q, pb, qb = q, p, qb, pb
	}
	return [2]mesh.Face{{p, pb, q}, {q, pb, qb}}
}

// Reversed flips the winding of a face.
func Reversed(f mesh.Face) mesh.Face {
	return mesh.Face{f[0], f[2], f[1]}
}

// BuildSurface triangulates the height field: one vertex per cell in
// row-major order and two triangles per quad, facing +Z.
func BuildSurface(g *MetricGrid) *mesh.Mesh {
	rows, cols := g.Dims()
	ccw := g.CCW()

	vertices := make([]r3.Vec, 0, rows*cols)
	for i := range rows {
		for j := range cols {
			vertices = append(vertices, g.At(i, j))
		}
	}

	faces := make([]mesh.Face, 0, 2*(rows-1)*(cols-1))
	for i := range rows - 1 {
		for j := range cols - 1 {
			tri := QuadFaces(
				VertexIndex(i, j, cols),
				VertexIndex(i, j+1, cols),
				VertexIndex(i+1, j, cols),
				VertexIndex(i+1, j+1, cols),
				ccw,
			)
			faces = append(faces, tri[0], tri[1])
		}
	}

	return mesh.New("surface", vertices, faces)
}

// PerimeterLoop returns the boundary vertex indices of a rows x cols grid
// in one continuous walk: first row left to right, last column without its
// corners, last row right to left, first column without its corners.
// Every boundary vertex appears exactly once.
func PerimeterLoop(rows, cols int) []int {
	loop := make([]int, 0, 2*(rows+cols)-4)
	for j := range cols {
		loop = append(loop, VertexIndex(0, j, cols))
	}
	for i := 1; i < rows-1; i++ {
		loop = append(loop, VertexIndex(i, cols-1, cols))
	}
	for j := cols - 1; j >= 0; j-- {
		loop = append(loop, VertexIndex(rows-1, j, cols))
	}
	for i := rows - 2; i >= 1; i-- {
		loop = append(loop, VertexIndex(i, 0, cols))
	}
	return loop
}

// BuildSolid closes an open surface produced by BuildSurface into a
// watertight solid. Every surface vertex gets a floor copy at Z=0; walls
// join the perimeter to the floor and the floor repeats the surface
// triangulation with reversed winding.
func BuildSolid(surface *mesh.Mesh, rows, cols int) (*mesh.Mesh, error) {
	if rows < 2 || cols < 2 {
		return nil, fmt.Errorf("%w: got %dx%d", ErrGridTooSmall, rows, cols)
	}
	n := rows * cols
	if len(surface.Vertices) != n {
		return nil, fmt.Errorf("%w: surface has %d vertices, grid is %dx%d", ErrGridShape, len(surface.Vertices), rows, cols)
	}
	ccw := surfaceCCW(surface, cols)

	vertices := make([]r3.Vec, 0, 2*n)
	vertices = append(vertices, surface.Vertices...)
	for _, v := range surface.Vertices {
		vertices = append(vertices, r3.Vec{X: v.X, Y: v.Y})
	}

	loop := PerimeterLoop(rows, cols)
	faces := make([]mesh.Face, 0, 2*len(surface.Faces)+2*len(loop))
	faces = append(faces, surface.Faces...)

	for k, p := range loop {
		q := loop[(k+1)%len(loop)]
		wall := WallFaces(p, q, p+n, q+n, ccw)
		faces = append(faces, wall[0], wall[1])
	}

	for _, f := range surface.Faces {
		faces = append(faces, Reversed(mesh.Face{f[0] + n, f[1] + n, f[2] + n}))
	}

	return mesh.New("solid", vertices, faces), nil
}

// surfaceCCW recovers the grid handedness from the first quad's corners.
func surfaceCCW(surface *mesh.Mesh, cols int) bool {
	o := surface.Vertices[0]
	right := r3.Sub(surface.Vertices[1], o)
	up := r3.Sub(surface.Vertices[cols], o)
	return right.X*up.Y-right.Y*up.X >= 0
}
