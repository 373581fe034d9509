package elevation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ctessum/geom"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/terrain"
)

// GoogleBatchSize is the number of points per Google Elevation request.
// The API takes at most 512.
const GoogleBatchSize = 500

// ErrAddressNotFound is returned when geocoding yields no result.
var ErrAddressNotFound = errors.New("address not found")

// NewMapsClient builds a Google Maps client from the elevation settings.
func NewMapsClient(cfg config.ElevationConfig, opts ...maps.ClientOption) (*maps.Client, error) {
	base := []maps.ClientOption{
		maps.WithAPIKey(cfg.APIKey),
		maps.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.GoogleURL != "" {
		base = append(base, maps.WithBaseURL(cfg.GoogleURL))
	}
	c, err := maps.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google maps client: %w", err)
	}
	return c, nil
}

// Google queries the Google Maps Elevation API. Retries and failed
// batches behave as for OpenElevation.
type Google struct {
	Client     *maps.Client
	BatchSize  int
	MaxRetries int

	// RetryInterval overrides the initial backoff interval.
	RetryInterval time.Duration
}

// Name implements Source.
func (g *Google) Name() string { return config.SourceGoogle }

// Fetch implements Source.
func (g *Google) Fetch(ctx context.Context, b *geom.Bounds, resolutionM float64) (*terrain.ElevationGrid, error) {
	batch := g.BatchSize
	if batch <= 0 || batch > GoogleBatchSize {
		batch = GoogleBatchSize
	}
	return fetchBatched(ctx, g.Name(), b, resolutionM, batch, g.lookup)
}

func (g *Google) lookup(ctx context.Context, points []location) ([]float64, error) {
	req := &maps.ElevationRequest{Locations: make([]maps.LatLng, len(points))}
	for i, p := range points {
		req.Locations[i] = maps.LatLng{Lat: p.Latitude, Lng: p.Longitude}
	}

	var values []float64
	op := func() error {
		results, err := g.Client.Elevation(ctx, req)
		if err != nil {
			if deniedStatus(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(results) != len(points) {
			return backoff.Permanent(fmt.Errorf("google elevation returned %d results for %d points", len(results), len(points)))
		}
		values = make([]float64, len(results))
		for i, r := range results {
			values[i] = r.Elevation
		}
		return nil
	}
	err := retry(ctx, op, g.RetryInterval, g.MaxRetries)
	return values, err
}

// deniedStatus reports whether a Maps API error names a status that a
// retry cannot fix.
func deniedStatus(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "REQUEST_DENIED") || strings.Contains(msg, "INVALID_REQUEST")
}

// Geocoder resolves a free-form address to a point in degrees.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// GoogleGeocoder geocodes with the Google Geocoding API, taking the first
// match.
type GoogleGeocoder struct {
	Client *maps.Client
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	results, err := g.Client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return 0, 0, fmt.Errorf("geocoding %q: %w", address, err)
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrAddressNotFound, address)
	}
	loc := results[0].Geometry.Location
	logger.Named("elevation").Info("geocoded address",
		zap.String("address", address),
		zap.String("match", results[0].FormattedAddress),
		zap.Float64("lat", loc.Lat),
		zap.Float64("lon", loc.Lng))
	return loc.Lat, loc.Lng, nil
}
