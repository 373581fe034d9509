package elevation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ctessum/geom"

	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/terrain"
)

// Source supplies an elevation grid for a rectangle.
type Source interface {
	// Name identifies the source in cache keys and logs.
	Name() string
	Fetch(ctx context.Context, b *geom.Bounds, resolutionM float64) (*terrain.ElevationGrid, error)
}

// NewSource builds the configured source without a cache.
func NewSource(cfg config.ElevationConfig) (Source, error) {
	switch cfg.Source {
	case config.SourceOpenElevation:
		return &OpenElevation{
			URL:        cfg.URL,
			BatchSize:  cfg.BatchSize,
			MaxRetries: cfg.MaxRetries,
			Client:     &http.Client{Timeout: cfg.Timeout},
		}, nil
	case config.SourceGoogle:
		client, err := NewMapsClient(cfg)
		if err != nil {
			return nil, err
		}
		return &Google{
			Client:     client,
			BatchSize:  GoogleBatchSize,
			MaxRetries: cfg.MaxRetries,
		}, nil
	case config.SourceSynthetic:
		return NewSynthetic(cfg.Seed), nil
	}
	return nil, fmt.Errorf("unknown elevation source %q", cfg.Source)
}
