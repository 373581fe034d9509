package preview

import (
	"errors"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/terraprint/internal/colorize"
	"github.com/Faultbox/terraprint/internal/terrain"
	"github.com/Faultbox/terraprint/pkg/mesh"
)

func testGrid(t *testing.T, flat bool) *terrain.ElevationGrid {
	t.Helper()
	lat := [][]float64{{46.50, 46.50, 46.50}, {46.51, 46.51, 46.51}}
	lon := [][]float64{{7.90, 7.91, 7.92}, {7.90, 7.91, 7.92}}
	elev := [][]float64{{100, 150, 200}, {120, 180, 260}}
	if flat {
		elev = [][]float64{{100, 100, 100}, {100, 100, 100}}
	}
	g, err := terrain.GridFromRows(lat, lon, elev)
	if err != nil {
		t.Fatalf("GridFromRows: %v", err)
	}
	return g
}

func testMesh() *mesh.Mesh {
	return mesh.New("tetra",
		[]r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 0}, {X: 0, Y: 10, Z: 0}, {X: 3, Y: 3, Z: 8}},
		[]mesh.Face{{0, 2, 1}, {0, 1, 3}, {1, 2, 3}, {2, 0, 3}},
	)
}

func checkPNG(t *testing.T, path string) (w, h int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return cfg.Width, cfg.Height
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	g := testGrid(t, false)
	m := testMesh()

	for _, kind := range []Kind{Heatmap, MeshView, ThreeD, Combined} {
		t.Run(string(kind), func(t *testing.T) {
			path := filepath.Join(dir, string(kind)+".png")
			if err := Render(kind, g, m, "test", path); err != nil {
				t.Fatalf("Render: %v", err)
			}
			checkPNG(t, path)
		})
	}
}

func TestRender_CombinedIsWide(t *testing.T) {
	path := filepath.Join(t.TempDir(), "combined.png")
	if err := Render(Combined, testGrid(t, false), testMesh(), "test", path); err != nil {
		t.Fatalf("Render: %v", err)
	}
	w, h := checkPNG(t, path)
	if w <= h {
		t.Errorf("combined preview is %dx%d, want wider than tall", w, h)
	}
}

func TestRender_FlatGrid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.png")
	if err := Render(Heatmap, testGrid(t, true), nil, "flat", path); err != nil {
		t.Fatalf("Render: %v", err)
	}
	checkPNG(t, path)
}

func TestRender_ColoredMesh(t *testing.T) {
	m := testMesh()
	m.Colors = []color.RGBA{
		{R: 255, A: 255}, {R: 255, A: 255}, {R: 255, A: 255}, {B: 255, A: 255},
	}
	path := filepath.Join(t.TempDir(), "mesh.png")
	if err := Render(MeshView, nil, m, "colored", path); err != nil {
		t.Fatalf("Render: %v", err)
	}
	checkPNG(t, path)
}

func TestRender_ThreeDShadesModel(t *testing.T) {
	m := testMesh()
	m.Colors = make([]color.RGBA, m.VertexCount())
	for i := range m.Colors {
		m.Colors[i] = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	}
	path := filepath.Join(t.TempDir(), "3d.png")
	if err := Render(ThreeD, nil, m, "tetra", path); err != nil {
		t.Fatalf("Render: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The middle of the image falls inside the projected solid.
	b := img.Bounds()
	r, g, _, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA()
	if r>>8 < g>>8+20 {
		t.Errorf("center pixel r=%d g=%d, want a shaded red face", r>>8, g>>8)
	}
}

func TestCamera_Project(t *testing.T) {
	cam := newCamera(View{})
	x, y, depth := cam.project(r3.Vec{X: 5, Y: 2, Z: 3})
	for name, got := range map[string][2]float64{
		"x": {x, 2}, "y": {y, 3}, "depth": {depth, 5},
	} {
		if math.Abs(got[0]-got[1]) > 1e-12 {
			t.Errorf("%s = %v, want %v", name, got[0], got[1])
		}
	}
}

func TestVisibleFaces(t *testing.T) {
	cube := mesh.New("cube",
		[]r3.Vec{
			{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1},
		},
		[]mesh.Face{
			{0, 2, 1}, {0, 3, 2}, {4, 5, 6}, {4, 6, 7}, {0, 1, 5}, {0, 5, 4},
			{3, 7, 6}, {3, 6, 2}, {0, 4, 7}, {0, 7, 3}, {1, 2, 6}, {1, 6, 5},
		},
	)
	cam := newCamera(DefaultView)

	faces := visibleFaces(cube, cam)
	if len(faces) != 6 {
		t.Fatalf("expected the top, back and right sides (6 faces), got %v", faces)
	}
	prev := math.Inf(-1)
	for _, fi := range faces {
		n := cube.FaceNormal(fi)
		if n.X < 0 || n.Y < 0 || n.Z < 0 {
			t.Errorf("face %d faces away from the camera", fi)
		}
		f := cube.Faces[fi]
		_, _, d := cam.project(r3.Add(r3.Add(cube.Vertices[f[0]], cube.Vertices[f[1]]), cube.Vertices[f[2]]))
		if d < prev {
			t.Errorf("face %d drawn after a nearer face", fi)
		}
		prev = d
	}
}

func TestCaption(t *testing.T) {
	got := caption(testMesh())
	for _, want := range []string{"Dimensions: 10.0 x 10.0 x 8.0 mm", "Vertices: 4 | Faces: 4"} {
		if !strings.Contains(got, want) {
			t.Errorf("caption %q missing %q", got, want)
		}
	}
}

func TestRender_Errors(t *testing.T) {
	dir := t.TempDir()
	err := Render(Kind("isometric"), testGrid(t, false), testMesh(), "x", filepath.Join(dir, "a.png"))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: got %v, want ErrUnknownKind", err)
	}
	if err := Render(MeshView, nil, &mesh.Mesh{Name: "empty"}, "x", filepath.Join(dir, "b.png")); err == nil {
		t.Error("empty mesh: expected error")
	}
}

func TestColorReference(t *testing.T) {
	p := colorize.ResolvePalette([]string{"green", "brown", "white"}, 3)
	path := filepath.Join(t.TempDir(), "alps_colors.png")
	if err := ColorReference(p, path); err != nil {
		t.Fatalf("ColorReference: %v", err)
	}
	checkPNG(t, path)

	if err := ColorReference(colorize.Palette{}, path); err == nil {
		t.Error("empty palette: expected error")
	}
}

func TestColorReferencePath(t *testing.T) {
	tests := map[string]string{
		"out/alps.stl": "out/alps_colors.png",
		"model.3mf":    "model_colors.png",
		"noext":        "noext_colors.png",
	}
	for in, want := range tests {
		if got := ColorReferencePath(in); got != want {
			t.Errorf("ColorReferencePath(%q) = %q, want %q", in, got, want)
		}
	}
}
