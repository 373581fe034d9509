// Package config handles terraprint configuration loading and management.
package config

import "time"

// Config holds all generation settings.
type Config struct {
	Location  LocationConfig  `yaml:"location"`
	Terrain   TerrainConfig   `yaml:"terrain"`
	Output    OutputConfig    `yaml:"output"`
	Elevation ElevationConfig `yaml:"elevation"`
	Cache     CacheConfig     `yaml:"cache"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LocationConfig selects the area to print. Exactly one of Bounds,
// Center or Address must be set; Center and Address also need RadiusKM.
type LocationConfig struct {
	Bounds   *BoundsConfig `yaml:"bounds,omitempty"`
	Center   *CenterConfig `yaml:"center,omitempty"`
	Address  string        `yaml:"address,omitempty"` // geocoded with Google
	RadiusKM float64       `yaml:"radius_km,omitempty"`
}

// BoundsConfig is a geographic rectangle in degrees.
type BoundsConfig struct {
	North float64 `yaml:"north"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	West  float64 `yaml:"west"`
}

// CenterConfig is a point in degrees.
type CenterConfig struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// TerrainConfig holds the geometry settings.
type TerrainConfig struct {
	ResolutionMeters     float64              `yaml:"resolution_meters"`
	VerticalExaggeration float64              `yaml:"vertical_exaggeration"`
	BaseThicknessMM      float64              `yaml:"base_thickness_mm"`
	HeightStepping       HeightSteppingConfig `yaml:"height_stepping"`
	Colors               ColorConfig          `yaml:"colors"`
}

// HeightSteppingConfig quantizes heights into terraces.
type HeightSteppingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	StepHeightMM      float64 `yaml:"step_height_mm"`
	SmoothTransitions bool    `yaml:"smooth_transitions"`
}

// ColorConfig controls multi-material output.
type ColorConfig struct {
	Enabled          bool     `yaml:"enabled"`
	NumColors        int      `yaml:"num_colors"`
	ColorMode        string   `yaml:"color_mode"` // "elevation" or "slope"
	ColorNames       []string `yaml:"color_names,omitempty"`
	LayerThicknessMM float64  `yaml:"layer_thickness_mm"`
}

// Color modes.
const (
	ColorModeElevation = "elevation"
	ColorModeSlope     = "slope"
)

// OutputConfig describes the produced files.
type OutputConfig struct {
	Filename     string  `yaml:"filename"`
	Format       string  `yaml:"format"` // stl, 3mf, amf, obj
	PrinterBedMM float64 `yaml:"printer_bed_mm"`
	MarginMM     float64 `yaml:"margin_mm"`
	Preview      bool    `yaml:"preview"`
	PreviewType  string  `yaml:"preview_type"` // heatmap, mesh, 3d, combined
}

// Elevation source names.
const (
	SourceOpenElevation = "open-elevation"
	SourceGoogle        = "google"
	SourceSynthetic     = "synthetic"
)

// EnvGoogleAPIKey supplies the Google Maps key when neither the file nor
// the flag sets one.
const EnvGoogleAPIKey = "GOOGLE_MAPS_API_KEY"

// ElevationConfig selects and tunes the elevation source.
type ElevationConfig struct {
	Source     string        `yaml:"source"`
	URL        string        `yaml:"url"`
	BatchSize  int           `yaml:"batch_size"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Seed       int64         `yaml:"seed"` // synthetic source only

	// APIKey is the Google Maps key used by the google source and for
	// address geocoding.
	APIKey    string `yaml:"api_key,omitempty"`
	GoogleURL string `yaml:"google_url,omitempty"` // overrides the Maps API host
}

// CacheConfig holds elevation cache settings.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // empty means CacheDir()
}

// MeshConfig holds repair and layer tuning.
type MeshConfig struct {
	MergeToleranceMM   float64 `yaml:"merge_tolerance_mm"`
	MinBaseThicknessMM float64 `yaml:"min_base_thickness_mm"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values. The location is
// left unset; it has to come from a file or flags.
func Default() *Config {
	return &Config{
		Terrain: TerrainConfig{
			ResolutionMeters:     30,
			VerticalExaggeration: 2.0,
			BaseThicknessMM:      5.0,
			HeightStepping: HeightSteppingConfig{
				Enabled:           false,
				StepHeightMM:      2.0,
				SmoothTransitions: true,
			},
			Colors: ColorConfig{
				Enabled:          false,
				NumColors:        1,
				ColorMode:        ColorModeElevation,
				LayerThicknessMM: 2.0,
			},
		},
		Output: OutputConfig{
			Filename:     "terrain.stl",
			Format:       "stl",
			PrinterBedMM: 220,
			MarginMM:     10,
			PreviewType:  "3d",
		},
		Elevation: ElevationConfig{
			Source:     SourceOpenElevation,
			URL:        "https://api.open-elevation.com/api/v1/lookup",
			BatchSize:  100,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			Seed:       1,
		},
		Cache: CacheConfig{
			Enabled: true,
		},
		Mesh: MeshConfig{
			MergeToleranceMM:   1e-5,
			MinBaseThicknessMM: 1.0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
