// Package main is the terraprint command: it fetches elevation data for an
// area and writes printable terrain solids.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ctessum/geom"
	"go.uber.org/zap"

	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/elevation"
	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/pipeline"
	"github.com/Faultbox/terraprint/internal/preview"
	"github.com/Faultbox/terraprint/pkg/formats"
)

var (
	flagVerbose    = flag.Bool("verbose", false, "Print dimensions, color legend and repair details")
	flagClearCache = flag.Bool("clear-cache", false, "Remove all cached elevation data and exit")
	flagCacheInfo  = flag.Bool("cache-info", false, "Show elevation cache statistics and exit")
)

func main() {
	// Parse CLI flags first
	config.ParseFlags()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Sugar.Debugf("Config: %+v", cfg)

	if *flagClearCache || *flagCacheInfo {
		if err := cacheCommand(cfg); err != nil {
			logger.Error("cache command failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		} else {
			logger.Error("generation failed", zap.Error(err))
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	bounds, err := resolveBounds(ctx, cfg)
	if err != nil {
		return err
	}
	format, err := formats.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	src, closeSource, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	logger.Info("fetching elevation data",
		zap.String("source", src.Name()),
		zap.Float64("north", bounds.Max.Y),
		zap.Float64("south", bounds.Min.Y),
		zap.Float64("east", bounds.Max.X),
		zap.Float64("west", bounds.Min.X),
		zap.Float64("resolution_m", cfg.Terrain.ResolutionMeters))

	grid, err := src.Fetch(ctx, bounds, cfg.Terrain.ResolutionMeters)
	if err != nil {
		return fmt.Errorf("fetching elevation: %w", err)
	}
	lo, hi := grid.ElevationRange()
	rows, cols := grid.Dims()
	logger.Info("elevation grid ready",
		zap.Int("rows", rows),
		zap.Int("cols", cols),
		zap.Float64("min_m", lo),
		zap.Float64("max_m", hi))

	res, err := pipeline.Generate(grid, cfg)
	if err != nil {
		return err
	}

	paths, err := res.Write(cfg.Output.Filename, format)
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	for _, p := range paths {
		fmt.Println(p)
	}

	if cfg.Terrain.Colors.Enabled {
		ref := preview.ColorReferencePath(pipeline.OutputPath(cfg.Output.Filename, format))
		if err := preview.ColorReference(res.Palette, ref); err != nil {
			logger.Warn("color reference not written", zap.Error(err))
		} else {
			fmt.Println(ref)
		}
	}

	if cfg.Output.Preview {
		path := pipeline.PreviewPath(cfg.Output.Filename)
		kind := preview.Kind(cfg.Output.PreviewType)
		if err := preview.Render(kind, grid, res.Merged(), "Terrain", path); err != nil {
			logger.Warn("preview not written", zap.Error(err))
		} else {
			fmt.Println(path)
		}
	}

	if *flagVerbose {
		printSummary(res, cfg.Terrain.Colors.Enabled)
	}
	return nil
}

// resolveBounds turns the configured location into a rectangle, geocoding
// an address through Google Maps.
func resolveBounds(ctx context.Context, cfg *config.Config) (*geom.Bounds, error) {
	var gc elevation.Geocoder
	if cfg.Location.Address != "" {
		client, err := elevation.NewMapsClient(cfg.Elevation)
		if err != nil {
			return nil, err
		}
		gc = &elevation.GoogleGeocoder{Client: client}
		logger.Info("geocoding address", zap.String("address", cfg.Location.Address))
	}
	return elevation.ResolveBounds(ctx, cfg.Location, gc)
}

// openSource builds the configured elevation source, behind the cache when
// caching is enabled. A cache that cannot be opened is skipped.
func openSource(cfg *config.Config) (elevation.Source, func(), error) {
	src, err := elevation.NewSource(cfg.Elevation)
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Cache.Enabled {
		return src, func() {}, nil
	}

	cache, err := elevation.OpenCache(cfg.CachePath())
	if err != nil {
		logger.Warn("elevation cache disabled", zap.Error(err))
		return src, func() {}, nil
	}
	closeCache := func() {
		if err := cache.Close(); err != nil {
			logger.Warn("closing elevation cache", zap.Error(err))
		}
	}
	return &elevation.CachingSource{Source: src, Cache: cache}, closeCache, nil
}

func cacheCommand(cfg *config.Config) error {
	cache, err := elevation.OpenCache(cfg.CachePath())
	if err != nil {
		return err
	}
	defer cache.Close()

	if *flagClearCache {
		if err := cache.Clear(); err != nil {
			return err
		}
		fmt.Println("Elevation cache cleared")
	}
	if *flagCacheInfo {
		info, err := cache.Info()
		if err != nil {
			return err
		}
		fmt.Printf("Cache dir: %s\n", info.Dir)
		fmt.Printf("Entries:   %d\n", info.Entries)
		fmt.Printf("Size:      %.2f MB\n", float64(info.Bytes)/(1024*1024))
	}
	return nil
}

func printSummary(res *pipeline.Result, colors bool) {
	size := res.Bounds().Size()
	fmt.Println()
	fmt.Printf("Run:        %s\n", res.RunID)
	fmt.Printf("Strategy:   %s\n", res.Strategy)
	fmt.Printf("Dimensions: %.1f x %.1f x %.1f mm\n", size.X, size.Y, size.Z)

	if colors {
		fmt.Println()
		fmt.Println("Colors:")
		for _, line := range res.Palette.Legend() {
			fmt.Printf("  %s\n", line)
		}
	}

	fmt.Println()
	fmt.Println("Solids:")
	for _, m := range res.Meshes() {
		r := res.Reports[m.Name]
		fmt.Printf("  %-16s %7d vertices %7d faces  merged %d, holes filled %d, watertight %v\n",
			m.Name, r.VerticesAfter, r.FacesAfter, r.MergedVertices, r.FilledHoles, r.Watertight)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %v\n", w)
	}
}
