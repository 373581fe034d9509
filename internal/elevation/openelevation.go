package elevation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ctessum/geom"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/terrain"
)

// DefaultBatchSize is the number of points per open-elevation request.
const DefaultBatchSize = 100

// OpenElevation queries an open-elevation compatible lookup endpoint.
// A batch that still fails after retries is filled with 0 m and logged;
// the fetch carries on with the next batch.
type OpenElevation struct {
	URL        string
	BatchSize  int
	MaxRetries int
	Client     *http.Client

	// RetryInterval overrides the initial backoff interval.
	RetryInterval time.Duration
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type lookupRequest struct {
	Locations []location `json:"locations"`
}

type lookupResponse struct {
	Results []struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// Name implements Source.
func (o *OpenElevation) Name() string { return "open-elevation" }

// Fetch implements Source.
func (o *OpenElevation) Fetch(ctx context.Context, b *geom.Bounds, resolutionM float64) (*terrain.ElevationGrid, error) {
	batch := o.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	return fetchBatched(ctx, o.Name(), b, resolutionM, batch, o.lookup)
}

// fetchBatched lays out the grid for b and looks its points up batch by
// batch. A batch whose lookup fails is left at 0 m.
func fetchBatched(ctx context.Context, name string, b *geom.Bounds, resolutionM float64, batch int,
	lookup func(context.Context, []location) ([]float64, error)) (*terrain.ElevationGrid, error) {
	lat, lon, err := Layout(b, resolutionM)
	if err != nil {
		return nil, err
	}
	rows, cols := lat.Dims()
	log := logger.Named("elevation")
	log.Info("fetching elevation",
		zap.String("source", name),
		zap.Int("rows", rows),
		zap.Int("cols", cols))

	points := make([]location, 0, rows*cols)
	for i := range rows {
		for j := range cols {
			points = append(points, location{Latitude: lat.At(i, j), Longitude: lon.At(i, j)})
		}
	}

	elev := make([]float64, len(points))
	for start := 0; start < len(points); start += batch {
		end := min(start+batch, len(points))
		values, err := lookup(ctx, points[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("elevation batch failed, filling with 0 m",
				zap.String("source", name),
				zap.Int("first_point", start),
				zap.Int("points", end-start),
				zap.Error(err))
			continue
		}
		copy(elev[start:end], values)
	}

	return terrain.NewElevationGrid(lat, lon, mat.NewDense(rows, cols, elev))
}

// lookup posts one batch, retrying transient failures.
func (o *OpenElevation) lookup(ctx context.Context, points []location) ([]float64, error) {
	body, err := json.Marshal(lookupRequest{Locations: points})
	if err != nil {
		return nil, err
	}

	var values []float64
	op := func() error {
		v, err := o.post(ctx, body, len(points))
		if err != nil {
			return err
		}
		values = v
		return nil
	}
	err = retry(ctx, op, o.RetryInterval, o.MaxRetries)
	return values, err
}

// retry runs op with exponential backoff, at most retries times after the
// first attempt. A positive interval replaces the initial wait.
func retry(ctx context.Context, op backoff.Operation, interval time.Duration, retries int) error {
	b := backoff.NewExponentialBackOff()
	if interval > 0 {
		b.InitialInterval = interval
		b.MaxInterval = 10 * interval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(0, retries))), ctx)
	return backoff.RetryNotify(op, policy, func(err error, d time.Duration) {
		logger.Debug("elevation request failed, retrying", zap.Error(err), zap.Duration("in", d))
	})
}

func (o *OpenElevation) post(ctx context.Context, body []byte, want int) ([]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("elevation lookup: %s", resp.Status)
		// Client errors will not go away on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding elevation response: %w", err)
	}
	if len(out.Results) != want {
		return nil, backoff.Permanent(fmt.Errorf("elevation lookup returned %d results for %d points", len(out.Results), want))
	}
	values := make([]float64, want)
	for i, r := range out.Results {
		values[i] = r.Elevation
	}
	return values, nil
}
