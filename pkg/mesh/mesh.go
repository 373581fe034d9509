// Package mesh provides the indexed triangle mesh shared by the terrain
// builders and the exporters, plus topology checks and repair.
package mesh

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrColorCount is returned when a color array does not match the vertex count.
var ErrColorCount = errors.New("mesh: color count does not match vertex count")

// Face is a triangle given as three vertex indices.
// Counter-clockwise order (viewed from outside) defines the outward side.
type Face [3]int

// Mesh is an indexed triangle mesh. Colors is optional; when present it
// holds one RGBA entry per vertex.
type Mesh struct {
	Name     string
	Vertices []r3.Vec
	Faces    []Face
	Colors   []color.RGBA
}

// Bounds is the axis-aligned bounding box of a mesh.
type Bounds struct {
	Min r3.Vec
	Max r3.Vec
}

// Size returns the extent of the box along each axis.
func (b Bounds) Size() r3.Vec {
	return r3.Sub(b.Max, b.Min)
}

// New creates a mesh from vertices and faces.
func New(name string, vertices []r3.Vec, faces []Face) *Mesh {
	return &Mesh{Name: name, Vertices: vertices, Faces: faces}
}

// Clone returns a deep copy. Nil slices stay nil.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{Name: m.Name}
	if m.Vertices != nil {
		out.Vertices = append([]r3.Vec(nil), m.Vertices...)
	}
	if m.Faces != nil {
		out.Faces = append([]Face(nil), m.Faces...)
	}
	if m.Colors != nil {
		out.Colors = append([]color.RGBA(nil), m.Colors...)
	}
	return out
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int {
	return len(m.Faces)
}

// IsEmpty reports whether the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return len(m.Faces) == 0
}

// Validate checks that every face index is in range and that the color
// array, if any, matches the vertex count.
func (m *Mesh) Validate() error {
	n := len(m.Vertices)
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("mesh %q: face %d references vertex %d of %d", m.Name, i, idx, n)
			}
		}
	}
	if m.Colors != nil && len(m.Colors) != n {
		return fmt.Errorf("mesh %q: %w (%d colors, %d vertices)", m.Name, ErrColorCount, len(m.Colors), n)
	}
	return nil
}

// Bounds computes the bounding box of all vertices.
// An empty mesh returns a zero box.
func (m *Mesh) Bounds() Bounds {
	if len(m.Vertices) == 0 {
		return Bounds{}
	}
	b := Bounds{
		Min: r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)},
		Max: r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)},
	}
	for _, v := range m.Vertices {
		updateBounds(&b, v)
	}
	return b
}

// FaceNormal returns the unnormalized normal of face i (twice its area in length).
func (m *Mesh) FaceNormal(i int) r3.Vec {
	f := m.Faces[i]
	a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// UnitNormal returns the normalized outward normal of face i, or the zero
// vector for a degenerate face.
func (m *Mesh) UnitNormal(i int) r3.Vec {
	n := m.FaceNormal(i)
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// FaceArea returns the area of face i.
func (m *Mesh) FaceArea(i int) float64 {
	return r3.Norm(m.FaceNormal(i)) / 2
}

// SignedVolume returns the volume enclosed by the mesh. It is positive
// when faces wind outward and only meaningful for closed meshes.
func (m *Mesh) SignedVolume() float64 {
	var vol float64
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		vol += r3.Dot(a, r3.Cross(b, c))
	}
	return vol / 6
}

// Append adds the vertices and faces of other to m, offsetting indices.
// Colors are kept only when both meshes carry them, or m is empty.
func (m *Mesh) Append(other *Mesh) {
	offset := len(m.Vertices)
	if offset == 0 && other.Colors != nil {
		m.Colors = append([]color.RGBA(nil), other.Colors...)
	} else if m.Colors != nil && other.Colors != nil {
		m.Colors = append(m.Colors, other.Colors...)
	} else {
		m.Colors = nil
	}
	m.Vertices = append(m.Vertices, other.Vertices...)
	for _, f := range other.Faces {
		m.Faces = append(m.Faces, Face{f[0] + offset, f[1] + offset, f[2] + offset})
	}
}

func updateBounds(b *Bounds, p r3.Vec) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Min.Z = math.Min(b.Min.Z, p.Z)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	b.Max.Z = math.Max(b.Max.Z, p.Z)
}
