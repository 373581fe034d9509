package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/terrain"
	"github.com/Faultbox/terraprint/pkg/formats"
	"github.com/Faultbox/terraprint/pkg/mesh"
)

func elevationGrid(t *testing.T, rows, cols int, elev func(i, j int) float64) *terrain.ElevationGrid {
	t.Helper()
	lat := mat.NewDense(rows, cols, nil)
	lon := mat.NewDense(rows, cols, nil)
	el := mat.NewDense(rows, cols, nil)
	for i := range rows {
		for j := range cols {
			lat.Set(i, j, 46.5+float64(i)*0.0005)
			lon.Set(i, j, 7.9+float64(j)*0.0007)
			el.Set(i, j, elev(i, j))
		}
	}
	g, err := terrain.NewElevationGrid(lat, lon, el)
	require.NoError(t, err)
	return g
}

func ridge(i, j int) float64 {
	return 1800 + 250*math.Sin(float64(i)*0.6) + 180*math.Cos(float64(j)*0.5) + 4*float64(i*j)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Location.Bounds = &config.BoundsConfig{North: 46.51, South: 46.5, East: 7.91, West: 7.9}
	cfg.Elevation.Source = config.SourceSynthetic
	return cfg
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		colors   bool
		stepping bool
		want     Strategy
	}{
		{"plain stl", "stl", false, false, Single},
		{"plain 3mf", "3mf", false, false, Single},
		{"colors in stl", "stl", true, false, MultiLayer},
		{"colors in 3mf", "3mf", true, false, Colored},
		{"colors in amf", "amf", true, true, Colored},
		{"colors in obj", "OBJ", true, false, Colored},
		{"stepping only", "obj", false, true, MultiLayer},
		{"stepping stl", "stl", false, true, MultiLayer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Output.Format = tt.format
			cfg.Terrain.Colors.Enabled = tt.colors
			cfg.Terrain.HeightStepping.Enabled = tt.stepping

			got, err := Select(cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}

	cfg := testConfig()
	cfg.Output.Format = "ply"
	_, err := Select(cfg)
	assert.ErrorIs(t, err, formats.ErrUnknownFormat)
}

func TestGenerate_Single(t *testing.T) {
	cfg := testConfig()
	res, err := Generate(elevationGrid(t, 9, 12, ridge), cfg)
	require.NoError(t, err)

	assert.Equal(t, Single, res.Strategy)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	require.NotNil(t, res.Solid)
	assert.Nil(t, res.Layers)
	assert.Nil(t, res.Colors())
	assert.Empty(t, res.Warnings)

	assert.True(t, mesh.IsWatertight(res.Solid))
	assert.Greater(t, res.Solid.SignedVolume(), 0.0)
	report := res.Reports["terrain"]
	assert.True(t, report.Watertight)
	assert.Equal(t, 2*9*12, report.VerticesAfter)

	b := res.Bounds()
	assert.GreaterOrEqual(t, b.Min.X, 10-1e-9)
	assert.GreaterOrEqual(t, b.Min.Y, 10-1e-9)
	assert.LessOrEqual(t, b.Max.X, 210+1e-9)
	assert.LessOrEqual(t, b.Max.Y, 210+1e-9)
	assert.InDelta(t, 0, b.Min.Z, 1e-9)
	assert.Greater(t, b.Max.Z, cfg.Terrain.BaseThicknessMM)
}

func TestGenerate_Colored(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Format = "3mf"
	cfg.Terrain.Colors.Enabled = true
	cfg.Terrain.Colors.NumColors = 3
	cfg.Terrain.Colors.ColorNames = []string{"green", "brown", "white"}

	res, err := Generate(elevationGrid(t, 10, 10, ridge), cfg)
	require.NoError(t, err)
	require.Equal(t, Colored, res.Strategy)

	colors := res.Colors()
	require.Len(t, colors, res.Solid.VertexCount())
	assert.Equal(t, 3, res.Palette.Len())

	seen := make(map[int]bool)
	for _, c := range colors {
		idx := -1
		for k, pc := range res.Palette.Colors {
			if pc == c {
				idx = k
			}
		}
		require.GreaterOrEqual(t, idx, 0, "color %v not in palette", c)
		seen[idx] = true
	}
	assert.True(t, seen[0], "floor and low ground use the first color")
	assert.True(t, seen[2], "summit uses the last color")
	assert.True(t, mesh.IsWatertight(res.Solid))
}

func TestGenerate_ColoredSlope(t *testing.T) {
	cfg := testConfig()
	cfg.Output.Format = "amf"
	cfg.Terrain.Colors.Enabled = true
	cfg.Terrain.Colors.NumColors = 2
	cfg.Terrain.Colors.ColorMode = config.ColorModeSlope

	res, err := Generate(elevationGrid(t, 8, 8, ridge), cfg)
	require.NoError(t, err)
	require.Equal(t, Colored, res.Strategy)
	require.Len(t, res.Colors(), res.Solid.VertexCount())

	for _, c := range res.Colors() {
		assert.True(t, c == res.Palette.At(0) || c == res.Palette.At(1), "unexpected color %v", c)
	}
}

func TestGenerate_MultiLayer(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.Colors.Enabled = true
	cfg.Terrain.Colors.NumColors = 4

	res, err := Generate(elevationGrid(t, 14, 16, ridge), cfg)
	require.NoError(t, err)
	require.Equal(t, MultiLayer, res.Strategy)
	assert.Nil(t, res.Solid)

	require.Contains(t, res.Layers, 0)
	assert.Equal(t, 5, len(res.Layers)+len(res.Empty))
	assert.Equal(t, res.LayerIndices()[0], 0)
	assert.Len(t, res.Meshes(), len(res.Layers))

	for k, m := range res.Layers {
		report, ok := res.Reports[m.Name]
		require.True(t, ok, "no report for zone %d", k)
		assert.True(t, report.Watertight, "zone %d", k)
		assert.True(t, mesh.IsWatertight(m), "zone %d", k)
		assert.Greater(t, m.SignedVolume(), 0.0, "zone %d", k)
	}
	assert.Len(t, res.Warnings, len(res.Empty))

	merged := res.Merged()
	var faces int
	for _, m := range res.Layers {
		faces += m.FaceCount()
	}
	assert.Equal(t, faces, merged.FaceCount())
	assert.Equal(t, res.Bounds(), merged.Bounds())
}

func TestGenerate_SteppingOnly(t *testing.T) {
	cfg := testConfig()
	cfg.Terrain.HeightStepping.Enabled = true
	cfg.Terrain.HeightStepping.SmoothTransitions = false
	cfg.Terrain.HeightStepping.StepHeightMM = 3

	res, err := Generate(elevationGrid(t, 8, 9, ridge), cfg)
	require.NoError(t, err)
	require.Equal(t, MultiLayer, res.Strategy)
	assert.Equal(t, []int{0, 1}, res.LayerIndices())

	// Every stepped height is a whole number of steps above the lowest.
	lo := mat.Min(res.Grid.Z)
	rows, cols := res.Grid.Dims()
	for i := range rows {
		for j := range cols {
			steps := (res.Grid.Z.At(i, j) - lo) / 3
			assert.InDelta(t, math.Round(steps), steps, 1e-9)
		}
	}
}

func TestGenerate_Errors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.Terrain.Colors.Enabled = true
		cfg.Terrain.Colors.NumColors = 7

		_, err := Generate(elevationGrid(t, 4, 4, ridge), cfg)
		var verr *config.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "terrain.colors.num_colors", verr.Field)
	})

	t.Run("degenerate grid", func(t *testing.T) {
		lat := mat.NewDense(3, 3, nil)
		lon := mat.NewDense(3, 3, nil)
		el := mat.NewDense(3, 3, nil)
		for i := range 3 {
			for j := range 3 {
				lat.Set(i, j, 46.5)
				lon.Set(i, j, 7.9)
				el.Set(i, j, 100)
			}
		}
		g, err := terrain.NewElevationGrid(lat, lon, el)
		require.NoError(t, err)

		_, err = Generate(g, testConfig())
		assert.ErrorIs(t, err, terrain.ErrDegenerateGeometry)
	})
}

func TestGenerate_LogsRunID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	defer logger.SetLogger(zap.New(core))()

	res, err := Generate(elevationGrid(t, 4, 5, ridge), testConfig())
	require.NoError(t, err)

	started := logs.FilterMessage("generation started").All()
	require.Len(t, started, 1)
	fields := started[0].ContextMap()
	assert.Equal(t, res.RunID.String(), fields["run_id"])
	assert.Equal(t, "single", fields["strategy"])
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "terrain.3mf", OutputPath("terrain.stl", formats.ThreeMF))
	assert.Equal(t, "terrain.stl", OutputPath("terrain", formats.STL))
	assert.Equal(t, "out/peak_preview.png", PreviewPath("out/peak.obj"))
	assert.Equal(t, "out/peak_output", LayerDir("out/peak.stl"))
	assert.Equal(t,
		filepath.Join("out", "peak_output", "peak_layer02.stl"),
		LayerPath("out/peak.stl", 2, formats.STL))
}

func TestResult_Write(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "alps.stl")

	cfg := testConfig()
	cfg.Terrain.Colors.Enabled = true
	cfg.Terrain.Colors.NumColors = 2
	res, err := Generate(elevationGrid(t, 8, 8, ridge), cfg)
	require.NoError(t, err)

	paths, err := res.Write(filename, formats.STL)
	require.NoError(t, err)
	require.Len(t, paths, len(res.Layers))
	assert.Equal(t, LayerPath(filename, 0, formats.STL), paths[0])

	for i, k := range res.LayerIndices() {
		m, err := formats.LoadSTL(paths[i])
		require.NoError(t, err)
		assert.Equal(t, res.Layers[k].FaceCount(), m.FaceCount())
	}

	single := testConfig()
	single.Output.Format = "obj"
	res, err = Generate(elevationGrid(t, 5, 5, ridge), single)
	require.NoError(t, err)
	paths, err = res.Write(filename, formats.OBJ)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "alps.obj")}, paths)
	_, err = os.Stat(paths[0])
	assert.NoError(t, err)
}
