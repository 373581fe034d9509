package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/terraprint/pkg/formats"
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid configuration")

// MaxColors is the largest supported number of color bands.
const MaxColors = 6

// ValidationError names the offending setting. Generation aborts on it
// before any geometry work.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the configuration and returns the first problem found
// as a *ValidationError.
func (c *Config) Validate() error {
	if err := c.Location.validate(); err != nil {
		return err
	}
	if err := c.Terrain.validate(); err != nil {
		return err
	}

	o := c.Output
	if o.Filename == "" {
		return invalid("output.filename", "must not be empty")
	}
	if _, err := formats.ParseFormat(o.Format); err != nil {
		return invalid("output.format", "must be one of %v, got %q", formats.Formats(), o.Format)
	}
	if o.PrinterBedMM <= 0 {
		return invalid("output.printer_bed_mm", "must be positive, got %v", o.PrinterBedMM)
	}
	if o.MarginMM < 0 || 2*o.MarginMM >= o.PrinterBedMM {
		return invalid("output.margin_mm", "%v leaves no usable area on a %v mm bed", o.MarginMM, o.PrinterBedMM)
	}
	switch o.PreviewType {
	case "heatmap", "mesh", "3d", "combined":
	default:
		return invalid("output.preview_type", "must be heatmap, mesh, 3d or combined, got %q", o.PreviewType)
	}

	e := c.Elevation
	switch e.Source {
	case SourceOpenElevation:
		if e.URL == "" {
			return invalid("elevation.url", "must not be empty")
		}
		if e.BatchSize <= 0 {
			return invalid("elevation.batch_size", "must be positive, got %d", e.BatchSize)
		}
	case SourceGoogle:
		if e.APIKey == "" {
			return invalid("elevation.api_key", "the google source needs a key (--google-api-key or $%s)", EnvGoogleAPIKey)
		}
	case SourceSynthetic:
	default:
		return invalid("elevation.source", "unknown source %q", e.Source)
	}
	if c.Location.Address != "" && e.APIKey == "" {
		return invalid("elevation.api_key", "geocoding location.address needs a key (--google-api-key or $%s)", EnvGoogleAPIKey)
	}

	if c.Mesh.MergeToleranceMM <= 0 {
		return invalid("mesh.merge_tolerance_mm", "must be positive, got %v", c.Mesh.MergeToleranceMM)
	}
	return nil
}

func (l LocationConfig) validate() error {
	set := 0
	for _, ok := range []bool{l.Bounds != nil, l.Center != nil, l.Address != ""} {
		if ok {
			set++
		}
	}
	switch {
	case set == 0:
		return invalid("location", "one of bounds, center or address must be specified")
	case l.Address != "" && l.Bounds != nil:
		return invalid("location", "cannot specify both address and bounds")
	case set > 1:
		return invalid("location", "specify only one of bounds, center or address")
	}

	if b := l.Bounds; b != nil {
		if b.North <= b.South {
			return invalid("location.bounds", "north bound must be greater than south bound")
		}
		if b.East <= b.West {
			return invalid("location.bounds", "east bound must be greater than west bound")
		}
		if b.North > 90 || b.South < -90 {
			return invalid("location.bounds", "latitude must be within [-90, 90]")
		}
		return nil
	}

	if l.Address != "" {
		if l.RadiusKM <= 0 {
			return invalid("location.radius_km", "must be positive when address is used")
		}
		return nil
	}

	if l.Center.Lat < -90 || l.Center.Lat > 90 {
		return invalid("location.center.lat", "must be within [-90, 90], got %v", l.Center.Lat)
	}
	if l.RadiusKM <= 0 {
		return invalid("location.radius_km", "must be positive when center is used")
	}
	return nil
}

func (t TerrainConfig) validate() error {
	if t.ResolutionMeters <= 0 {
		return invalid("terrain.resolution_meters", "must be positive, got %v", t.ResolutionMeters)
	}
	if t.VerticalExaggeration <= 0 {
		return invalid("terrain.vertical_exaggeration", "must be positive, got %v", t.VerticalExaggeration)
	}
	if t.BaseThicknessMM <= 0 {
		return invalid("terrain.base_thickness_mm", "must be positive, got %v", t.BaseThicknessMM)
	}

	if t.Colors.Enabled {
		if t.Colors.NumColors < 1 || t.Colors.NumColors > MaxColors {
			return invalid("terrain.colors.num_colors", "must be between 1 and %d, got %d", MaxColors, t.Colors.NumColors)
		}
		if t.Colors.ColorMode != ColorModeElevation && t.Colors.ColorMode != ColorModeSlope {
			return invalid("terrain.colors.color_mode", "must be %q or %q, got %q", ColorModeElevation, ColorModeSlope, t.Colors.ColorMode)
		}
	}
	if t.HeightStepping.Enabled && t.HeightStepping.StepHeightMM <= 0 {
		return invalid("terrain.height_stepping.step_height_mm", "must be positive, got %v", t.HeightStepping.StepHeightMM)
	}
	if (t.Colors.Enabled || t.HeightStepping.Enabled) && t.Colors.LayerThicknessMM <= 0 {
		return invalid("terrain.colors.layer_thickness_mm", "must be positive, got %v", t.Colors.LayerThicknessMM)
	}
	return nil
}
