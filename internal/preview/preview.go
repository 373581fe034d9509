// Package preview renders PNG previews of elevation grids and generated
// meshes. Previews are for people only; nothing reads them back.
package preview

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/Faultbox/terraprint/internal/colorize"
	"github.com/Faultbox/terraprint/internal/terrain"
	"github.com/Faultbox/terraprint/pkg/mesh"
)

// Kind selects the preview layout.
type Kind string

// Preview kinds.
const (
	Heatmap  Kind = "heatmap"
	MeshView Kind = "mesh"
	ThreeD   Kind = "3d"
	Combined Kind = "combined"
)

// ErrUnknownKind is returned for a preview kind outside the set above.
var ErrUnknownKind = errors.New("unknown preview kind")

// Default image size.
const (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
	dpi    = 96
)

// elevationXYZ adapts an elevation grid to plotter.GridXYZ. Columns run
// west to east, rows south to north.
type elevationXYZ struct {
	g *terrain.ElevationGrid
}

func (e elevationXYZ) Dims() (c, r int) {
	rows, cols := e.g.Dims()
	return cols, rows
}

func (e elevationXYZ) Z(c, r int) float64 { return e.g.Elevation.At(r, c) }
func (e elevationXYZ) X(c int) float64    { return e.g.Lon.At(0, c) }
func (e elevationXYZ) Y(r int) float64    { return e.g.Lat.At(r, 0) }

// colorMap returns the map used for heights, spanning [lo, hi].
func colorMap(lo, hi float64) palette.ColorMap {
	if hi <= lo {
		hi = lo + 1
	}
	cm := moreland.ExtendedBlackBody()
	cm.SetMin(lo)
	cm.SetMax(hi)
	return cm
}

// HeatmapPlot plots elevation in meters over longitude and latitude.
func HeatmapPlot(g *terrain.ElevationGrid, title string) *plot.Plot {
	lo, hi := g.ElevationRange()
	if hi <= lo {
		lo, hi = lo-0.5, hi+0.5
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"

	h := plotter.NewHeatMap(elevationXYZ{g}, colorMap(lo, hi).Palette(64))
	h.Min, h.Max = lo, hi
	p.Add(h)
	return p
}

// MeshPlot plots the mesh from above. Vertices carry their own colors
// when the mesh has them and are shaded by height otherwise.
func MeshPlot(m *mesh.Mesh, title string) (*plot.Plot, error) {
	if m.IsEmpty() {
		return nil, fmt.Errorf("preview: mesh %q is empty", m.Name)
	}

	// Draw low vertices first so the surface ends up on top.
	order := make([]int, len(m.Vertices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return m.Vertices[order[a]].Z < m.Vertices[order[b]].Z
	})

	xys := make(plotter.XYs, len(order))
	for k, v := range order {
		xys[k].X = m.Vertices[v].X
		xys[k].Y = m.Vertices[v].Y
	}
	s, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, err
	}

	b := m.Bounds()
	cm := colorMap(b.Min.Z, b.Max.Z)
	s.GlyphStyleFunc = func(k int) draw.GlyphStyle {
		v := order[k]
		c := color.Color(color.Gray{Y: 128})
		if m.Colors != nil {
			c = m.Colors[v]
		} else if hc, err := cm.At(m.Vertices[v].Z); err == nil {
			c = hc
		}
		return draw.GlyphStyle{Color: c, Radius: vg.Points(1.5), Shape: draw.CircleGlyph{}}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (mm)"
	p.Y.Label.Text = "Y (mm)"
	p.Add(s)
	return p, nil
}

// Render writes a preview of kind to path as PNG.
func Render(kind Kind, g *terrain.ElevationGrid, m *mesh.Mesh, title, path string) error {
	switch kind {
	case Heatmap:
		return HeatmapPlot(g, title).Save(Width, Height, path)
	case MeshView:
		p, err := MeshPlot(m, title)
		if err != nil {
			return err
		}
		return p.Save(Width, Height, path)
	case ThreeD:
		p, err := ShadedPlot(m, title, DefaultView)
		if err != nil {
			return err
		}
		return p.Save(Width, Height, path)
	case Combined:
		return renderCombined(g, m, title, path)
	}
	return fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
}

// renderCombined puts the shaded model and the heatmap side by side.
func renderCombined(g *terrain.ElevationGrid, m *mesh.Mesh, title, path string) error {
	model, err := ShadedPlot(m, title+" (model)", DefaultView)
	if err != nil {
		return err
	}
	heat := HeatmapPlot(g, title+" (elevation)")

	const w, h = 2 * Width, Height
	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(dpi))
	dc := draw.New(c)
	model.Draw(draw.Crop(dc, 0, -w/2, 0, 0))
	heat.Draw(draw.Crop(dc, w/2, 0, 0, 0))

	return writePNG(c, path)
}

func writePNG(c *vgimg.Canvas, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ColorReferencePath returns the path of the palette chart for a model
// file, e.g. out/alps.stl -> out/alps_colors.png.
func ColorReferencePath(modelPath string) string {
	ext := filepath.Ext(modelPath)
	return strings.TrimSuffix(modelPath, ext) + "_colors.png"
}

// ColorReference writes one horizontal bar per palette color, lowest band
// at the bottom, labeled with the color name.
func ColorReference(p colorize.Palette, path string) error {
	if p.Len() == 0 {
		return errors.New("preview: empty palette")
	}

	pl := plot.New()
	pl.Title.Text = "Filament colors"
	pl.X.Tick.Marker = plot.ConstantTicks(nil)

	labels := make([]string, p.Len())
	for i, c := range p.Colors {
		bar, err := plotter.NewBarChart(plotter.Values{1}, vg.Points(30))
		if err != nil {
			return err
		}
		bar.Horizontal = true
		bar.XMin = float64(i)
		bar.Color = c
		bar.LineStyle.Width = vg.Points(0.5)
		pl.Add(bar)

		labels[i] = fmt.Sprintf("%d: %s %s", i+1, p.Names[i], colorize.Hex(c))
	}
	pl.NominalY(labels...)

	return pl.Save(5*vg.Inch, vg.Length(p.Len())*vg.Inch/2+vg.Inch, path)
}
