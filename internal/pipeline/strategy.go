// Package pipeline turns an elevation grid and a configuration into the
// repaired solids that get exported.
package pipeline

import (
	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/pkg/formats"
)

// Strategy is the closed set of generation paths.
type Strategy int

const (
	// Single builds one uncolored solid.
	Single Strategy = iota
	// MultiLayer builds a base solid plus one shell per color band,
	// exported as separate files.
	MultiLayer
	// Colored builds one solid with per-vertex colors.
	Colored
)

func (s Strategy) String() string {
	switch s {
	case Single:
		return "single"
	case MultiLayer:
		return "multi-layer"
	case Colored:
		return "colored"
	default:
		return "unknown"
	}
}

// Select picks the strategy once from configuration. Colors go into the
// file itself when the format can carry them; otherwise colors or
// stepping produce separate layer files.
func Select(cfg *config.Config) (Strategy, error) {
	f, err := formats.ParseFormat(cfg.Output.Format)
	if err != nil {
		return Single, err
	}
	colors := cfg.Terrain.Colors.Enabled
	switch {
	case colors && f.SupportsColor():
		return Colored, nil
	case colors || cfg.Terrain.HeightStepping.Enabled:
		return MultiLayer, nil
	default:
		return Single, nil
	}
}
