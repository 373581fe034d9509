package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file (or pass it as the first argument)")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile    = flag.String("log-file", "", "Write logs to this file as well")
	flagOutput     = flag.String("output", "", "Output filename")
	flagFormat     = flag.String("format", "", "Output format: stl, 3mf, amf, obj")
	flagColors     = flag.Int("colors", 0, "Enable multi-color output with this many bands")
	flagStepping   = flag.Bool("stepping", false, "Enable height stepping")
	flagSource     = flag.String("source", "", "Elevation source: open-elevation, google, synthetic")
	flagGoogleKey  = flag.String("google-api-key", "", "Google Maps API key (default $GOOGLE_MAPS_API_KEY)")
	flagResolution = flag.Float64("resolution", 0, "Grid resolution in meters")
	flagNoCache    = flag.Bool("no-cache", false, "Disable elevation data caching")
	flagPreview    = flag.String("preview", "", "Write a PNG preview: heatmap, mesh, 3d, combined")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config
// flag or as the first positional argument.
func ConfigPath() string {
	if *flagConfig != "" {
		return *flagConfig
	}
	return flag.Arg(0)
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagOutput != "" {
		cfg.Output.Filename = *flagOutput
	}
	if *flagFormat != "" {
		cfg.Output.Format = *flagFormat
	}
	if *flagColors > 0 {
		cfg.Terrain.Colors.Enabled = true
		cfg.Terrain.Colors.NumColors = *flagColors
	}
	if *flagStepping {
		cfg.Terrain.HeightStepping.Enabled = true
	}
	if *flagSource != "" {
		cfg.Elevation.Source = *flagSource
	}
	if *flagGoogleKey != "" {
		cfg.Elevation.APIKey = *flagGoogleKey
	}
	if *flagResolution > 0 {
		cfg.Terrain.ResolutionMeters = *flagResolution
	}
	if *flagNoCache {
		cfg.Cache.Enabled = false
	}
	if *flagPreview != "" {
		cfg.Output.Preview = true
		cfg.Output.PreviewType = *flagPreview
	}
}
