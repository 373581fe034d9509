package preview

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/Faultbox/terraprint/pkg/mesh"
)

// View is a fixed orthographic camera, angles in degrees. Azimuth turns
// about the Z axis from +X; Elevation tilts up from the XY plane.
type View struct {
	Elevation float64
	Azimuth   float64
}

// DefaultView looks down at the model from the south-east corner.
var DefaultView = View{Elevation: 30, Azimuth: 45}

// ambient is the share of a face's color kept when it faces away from
// the light.
const ambient = 0.35

type camera struct {
	right, up, toward r3.Vec
	light             r3.Vec
}

func newCamera(v View) camera {
	el := v.Elevation * math.Pi / 180
	az := v.Azimuth * math.Pi / 180
	se, ce := math.Sincos(el)
	sa, ca := math.Sincos(az)

	c := camera{
		right:  r3.Vec{X: -sa, Y: ca},
		up:     r3.Vec{X: -se * ca, Y: -se * sa, Z: ce},
		toward: r3.Vec{X: ce * ca, Y: ce * sa, Z: se},
	}
	// Lit from over the viewer's left shoulder.
	c.light = r3.Unit(r3.Add(r3.Add(c.toward, c.up), r3.Scale(-0.5, c.right)))
	return c
}

// project returns screen coordinates and depth of p. Larger depth is
// closer to the viewer.
func (c camera) project(p r3.Vec) (x, y, depth float64) {
	return r3.Dot(p, c.right), r3.Dot(p, c.up), r3.Dot(p, c.toward)
}

// visibleFaces returns the faces turned toward the camera, farthest first.
func visibleFaces(m *mesh.Mesh, c camera) []int {
	var faces []int
	depth := make(map[int]float64)
	for i, f := range m.Faces {
		if r3.Dot(m.FaceNormal(i), c.toward) <= 0 {
			continue
		}
		centroid := r3.Add(r3.Add(m.Vertices[f[0]], m.Vertices[f[1]]), m.Vertices[f[2]])
		_, _, d := c.project(centroid)
		faces = append(faces, i)
		depth[i] = d
	}
	sort.SliceStable(faces, func(a, b int) bool {
		return depth[faces[a]] < depth[faces[b]]
	})
	return faces
}

// shadedMesh draws a mesh as Lambert-shaded polygons with an equal-aspect
// fit to the plot area. It ignores the plot's data coordinates.
type shadedMesh struct {
	m    *mesh.Mesh
	cam  camera
	cm   palette.ColorMap
	note string
}

func (s shadedMesh) Plot(c draw.Canvas, plt *plot.Plot) {
	const captionHeight = vg.Inch / 2

	xs := make([]float64, len(s.m.Vertices))
	ys := make([]float64, len(s.m.Vertices))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, v := range s.m.Vertices {
		xs[i], ys[i], _ = s.cam.project(v)
		minX, maxX = math.Min(minX, xs[i]), math.Max(maxX, xs[i])
		minY, maxY = math.Min(minY, ys[i]), math.Max(maxY, ys[i])
	}

	area := c.Rectangle
	area.Min.Y += captionHeight
	w, h := area.Size().X, area.Size().Y
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		span = 1
	}
	scale := math.Min(float64(w), float64(h)) / span
	cx := float64(area.Min.X+area.Max.X) / 2
	cy := float64(area.Min.Y+area.Max.Y) / 2
	midX, midY := (minX+maxX)/2, (minY+maxY)/2
	point := func(vi int) vg.Point {
		return vg.Point{
			X: vg.Length(cx + (xs[vi]-midX)*scale),
			Y: vg.Length(cy + (ys[vi]-midY)*scale),
		}
	}

	for _, fi := range visibleFaces(s.m, s.cam) {
		f := s.m.Faces[fi]
		k := ambient + (1-ambient)*math.Max(0, r3.Dot(s.m.UnitNormal(fi), s.cam.light))
		pts := []vg.Point{point(f[0]), point(f[1]), point(f[2])}
		c.FillPolygon(shade(s.faceColor(fi), k), pts)
	}

	sty := plt.Title.TextStyle
	sty.Font.Size = vg.Points(9)
	sty.XAlign = draw.XLeft
	sty.YAlign = draw.YBottom
	c.FillText(sty, vg.Point{X: c.Min.X, Y: c.Min.Y}, s.note)
}

// faceColor averages the vertex colors of a face, or maps its mean height.
func (s shadedMesh) faceColor(fi int) color.Color {
	f := s.m.Faces[fi]
	if s.m.Colors != nil {
		var r, g, b int
		for _, vi := range f {
			c := s.m.Colors[vi]
			r, g, b = r+int(c.R), g+int(c.G), b+int(c.B)
		}
		return color.RGBA{R: uint8(r / 3), G: uint8(g / 3), B: uint8(b / 3), A: 255}
	}
	z := (s.m.Vertices[f[0]].Z + s.m.Vertices[f[1]].Z + s.m.Vertices[f[2]].Z) / 3
	if c, err := s.cm.At(z); err == nil {
		return c
	}
	return color.Gray{Y: 160}
}

func shade(c color.Color, k float64) color.RGBA {
	r, g, b, _ := c.RGBA()
	scale := func(v uint32) uint8 { return uint8(float64(v>>8) * k) }
	return color.RGBA{R: scale(r), G: scale(g), B: scale(b), A: 255}
}

// caption summarizes the model size and counts.
func caption(m *mesh.Mesh) string {
	size := m.Bounds().Size()
	return fmt.Sprintf("Dimensions: %.1f x %.1f x %.1f mm\nVertices: %d | Faces: %d",
		size.X, size.Y, size.Z, m.VertexCount(), m.FaceCount())
}

// ShadedPlot draws the mesh as a shaded orthographic view from v, with a
// caption giving its size and counts.
func ShadedPlot(m *mesh.Mesh, title string, v View) (*plot.Plot, error) {
	if m.IsEmpty() {
		return nil, fmt.Errorf("preview: mesh %q is empty", m.Name)
	}
	b := m.Bounds()

	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.Add(shadedMesh{m: m, cam: newCamera(v), cm: colorMap(b.Min.Z, b.Max.Z), note: caption(m)})
	return p, nil
}
