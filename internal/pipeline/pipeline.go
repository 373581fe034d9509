package pipeline

import (
	"fmt"
	"image/color"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/colorize"
	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/terrain"
	"github.com/Faultbox/terraprint/internal/zones"
	"github.com/Faultbox/terraprint/pkg/mesh"
)

// Result is the outcome of one generation run. Solid is set for Single
// and Colored, Layers for MultiLayer.
type Result struct {
	RunID    uuid.UUID
	Strategy Strategy
	Grid     *terrain.MetricGrid
	Palette  colorize.Palette

	Solid  *mesh.Mesh
	Layers map[int]*mesh.Mesh
	Empty  []*zones.EmptyZoneCondition

	Reports  map[string]mesh.RepairReport
	Warnings []error
}

// Colors returns the Solid's per-vertex colors, nil unless Colored.
func (r *Result) Colors() []color.RGBA {
	if r.Solid == nil {
		return nil
	}
	return r.Solid.Colors
}

// Meshes returns every produced solid, layers in ascending zone order.
func (r *Result) Meshes() []*mesh.Mesh {
	if r.Strategy != MultiLayer {
		return []*mesh.Mesh{r.Solid}
	}
	out := make([]*mesh.Mesh, 0, len(r.Layers))
	for _, k := range r.LayerIndices() {
		out = append(out, r.Layers[k])
	}
	return out
}

// LayerIndices returns the zone indices present in Layers, ascending.
func (r *Result) LayerIndices() []int {
	set := zones.LayerSet{Layers: r.Layers}
	return set.Indices()
}

// Bounds is the bounding box over every produced solid, i.e. the printed
// dimensions.
func (r *Result) Bounds() mesh.Bounds {
	var (
		b     mesh.Bounds
		first = true
	)
	for _, m := range r.Meshes() {
		if m.IsEmpty() {
			continue
		}
		mb := m.Bounds()
		if first {
			b, first = mb, false
			continue
		}
		b.Min.X, b.Min.Y, b.Min.Z = min(b.Min.X, mb.Min.X), min(b.Min.Y, mb.Min.Y), min(b.Min.Z, mb.Min.Z)
		b.Max.X, b.Max.Y, b.Max.Z = max(b.Max.X, mb.Max.X), max(b.Max.Y, mb.Max.Y), max(b.Max.Z, mb.Max.Z)
	}
	return b
}

// Merged returns every produced solid appended into one mesh, e.g. for a
// preview of a layered print.
func (r *Result) Merged() *mesh.Mesh {
	out := &mesh.Mesh{Name: "terrain"}
	for _, m := range r.Meshes() {
		out.Append(m)
	}
	return out
}

// Generate runs the whole geometry pipeline. Configuration and geometry
// errors abort it; repair and empty-zone issues are returned in
// Result.Warnings and logged.
func Generate(grid *terrain.ElevationGrid, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := Select(cfg)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:    uuid.New(),
		Strategy: strategy,
		Reports:  make(map[string]mesh.RepairReport),
	}
	log := logger.Log.With(zap.String("run_id", res.RunID.String()))
	rows, cols := grid.Dims()
	log.Info("generation started",
		zap.Stringer("strategy", strategy),
		zap.Int("rows", rows),
		zap.Int("cols", cols))

	t := cfg.Terrain
	g, err := terrain.MapToBuildVolume(grid, terrain.MapOptions{
		VerticalExaggeration: t.VerticalExaggeration,
		BuildVolumeMM:        cfg.Output.PrinterBedMM,
		MarginMM:             cfg.Output.MarginMM,
		BaseThicknessMM:      t.BaseThicknessMM,
	})
	if err != nil {
		return nil, fmt.Errorf("mapping to build volume: %w", err)
	}

	if t.HeightStepping.Enabled {
		mode := terrain.StepSharp
		if t.HeightStepping.SmoothTransitions {
			mode = terrain.StepSmooth
		}
		g, err = terrain.StepGrid(g, t.HeightStepping.StepHeightMM, mode)
		if err != nil {
			return nil, fmt.Errorf("height stepping: %w", err)
		}
		log.Debug("heights stepped",
			zap.Float64("step_mm", t.HeightStepping.StepHeightMM),
			zap.Stringer("mode", mode))
	}
	res.Grid = g

	bands := 1
	if t.Colors.Enabled {
		bands = t.Colors.NumColors
	}
	res.Palette = colorize.ResolvePalette(t.Colors.ColorNames, bands)

	switch strategy {
	case Single, Colored:
		solid, err := terrain.BuildSolid(terrain.BuildSurface(g), rows, cols)
		if err != nil {
			return nil, err
		}
		solid.Name = "terrain"
		if strategy == Colored {
			solid, err = colorSolid(solid, grid, g, cfg, res.Palette)
			if err != nil {
				return nil, err
			}
		}
		res.Solid = res.repair(log, solid, cfg)

	case MultiLayer:
		zm, err := zoneMap(grid, g, cfg, bands)
		if err != nil {
			return nil, err
		}
		set, err := zones.BuildLayers(g, zm, zones.LayerOptions{
			LayerThicknessMM:   t.Colors.LayerThicknessMM,
			MinBaseThicknessMM: cfg.Mesh.MinBaseThicknessMM,
		})
		if err != nil {
			return nil, fmt.Errorf("building layers: %w", err)
		}
		res.Layers = make(map[int]*mesh.Mesh, len(set.Layers))
		for _, k := range set.Indices() {
			res.Layers[k] = res.repair(log, set.Layers[k], cfg)
		}
		res.Empty = set.Empty
		for _, e := range set.Empty {
			log.Warn("empty zone skipped", zap.Int("zone", e.Zone), zap.Int("cells", e.Cells))
			res.Warnings = append(res.Warnings, e)
		}
	}

	log.Info("generation finished",
		zap.Int("solids", len(res.Meshes())),
		zap.Int("warnings", len(res.Warnings)))
	return res, nil
}

// repair normalizes m and records its report and warnings.
func (r *Result) repair(log *zap.Logger, m *mesh.Mesh, cfg *config.Config) *mesh.Mesh {
	out, report := mesh.Repair(m, mesh.RepairOptions{MergeTolerance: cfg.Mesh.MergeToleranceMM})
	r.Reports[m.Name] = report
	log.Debug("mesh repaired",
		zap.String("mesh", m.Name),
		zap.Int("vertices_before", report.VerticesBefore),
		zap.Int("faces_before", report.FacesBefore),
		zap.Int("vertices_after", report.VerticesAfter),
		zap.Int("faces_after", report.FacesAfter))
	for _, w := range report.Warnings {
		log.Warn("mesh integrity", zap.String("mesh", m.Name), zap.Error(w))
		r.Warnings = append(r.Warnings, w)
	}
	return out
}

// bandValues returns the per-cell values the bands partition: metric
// heights, or slope in degrees in slope mode.
func bandValues(g *terrain.MetricGrid, cfg *config.Config) mat.Matrix {
	if cfg.Terrain.Colors.Enabled && cfg.Terrain.Colors.ColorMode == config.ColorModeSlope {
		return terrain.SlopeField(g)
	}
	return g.Z
}

func zoneMap(grid *terrain.ElevationGrid, g *terrain.MetricGrid, cfg *config.Config, bands int) (*zones.ZoneMap, error) {
	values := bandValues(g, cfg)
	z, err := zones.FromValues(values, bands)
	if err != nil {
		return nil, err
	}
	lo, hi := grid.ElevationRange()
	logger.Debug("bands partitioned",
		zap.Int("bands", z.Count()),
		zap.Float64("elevation_min_m", lo),
		zap.Float64("elevation_max_m", hi))
	return z.Map(values), nil
}

func colorSolid(solid *mesh.Mesh, grid *terrain.ElevationGrid, g *terrain.MetricGrid, cfg *config.Config, p colorize.Palette) (*mesh.Mesh, error) {
	if cfg.Terrain.Colors.ColorMode == config.ColorModeSlope {
		zm, err := zoneMap(grid, g, cfg, p.Len())
		if err != nil {
			return nil, err
		}
		cells := make([]int, 0, zm.Rows*zm.Cols)
		for i := range zm.Rows {
			for j := range zm.Cols {
				cells = append(cells, zm.At(i, j))
			}
		}
		return colorize.AssignZoneColors(solid, p, cells), nil
	}
	lo, hi := grid.ElevationRange()
	return colorize.AssignVertexColors(solid, p, cfg.Terrain.BaseThicknessMM, hi-lo), nil
}
