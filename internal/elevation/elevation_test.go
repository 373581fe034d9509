package elevation

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/config"
	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/terrain"
)

func testBounds() *geom.Bounds {
	return NewBounds(46.501, 46.5, 7.902, 7.9)
}

func TestBoundsAround(t *testing.T) {
	// A radius of one degree of arc.
	r := EarthRadiusKM * math.Pi / 180

	b := BoundsAround(0, 10, r)
	assert.InDelta(t, 1, b.Max.Y, 1e-12)
	assert.InDelta(t, -1, b.Min.Y, 1e-12)
	assert.InDelta(t, 11, b.Max.X, 1e-12)
	assert.InDelta(t, 9, b.Min.X, 1e-12)

	// Longitude widens with latitude.
	b = BoundsAround(60, 0, r)
	assert.InDelta(t, 2, b.Max.X, 1e-9)
	assert.InDelta(t, 61, b.Max.Y, 1e-9)
}

func TestFromConfig(t *testing.T) {
	b, err := FromConfig(config.LocationConfig{
		Bounds: &config.BoundsConfig{North: 2, South: 1, East: 4, West: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, geom.Point{X: 3, Y: 1}, b.Min)
	assert.Equal(t, geom.Point{X: 4, Y: 2}, b.Max)

	b, err = FromConfig(config.LocationConfig{
		Center:   &config.CenterConfig{Lat: 10, Lon: 20},
		RadiusKM: 5,
	})
	require.NoError(t, err)
	assert.InDelta(t, 20, (b.Min.X+b.Max.X)/2, 1e-12)
	assert.InDelta(t, 10, (b.Min.Y+b.Max.Y)/2, 1e-12)

	_, err = FromConfig(config.LocationConfig{})
	assert.ErrorIs(t, err, ErrInvalidBounds)
	_, err = FromConfig(config.LocationConfig{Center: &config.CenterConfig{}})
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestAxisPoints(t *testing.T) {
	pts := AxisPoints(0, 0.001, 30, true)
	require.Len(t, pts, 4)
	assert.Equal(t, 0.0, pts[0])
	assert.Equal(t, 0.001, pts[3])
	assert.InDelta(t, 0.001/3, pts[1]-pts[0], 1e-15)

	// Longitude uses the coarser degree length.
	assert.Len(t, AxisPoints(0, 0.002, 30, false), 6)

	// Never fewer than two.
	assert.Len(t, AxisPoints(5, 5.000001, 30, true), 2)
}

func TestLayout(t *testing.T) {
	lat, lon, err := Layout(testBounds(), 30)
	require.NoError(t, err)

	rows, cols := lat.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 6, cols)
	assert.Equal(t, 46.5, lat.At(0, 3))
	assert.Equal(t, 46.501, lat.At(rows-1, 0))
	assert.Equal(t, 7.9, lon.At(2, 0))
	assert.Equal(t, 7.902, lon.At(1, cols-1))

	_, _, err = Layout(NewBounds(1, 2, 4, 3), 30)
	assert.ErrorIs(t, err, ErrInvalidBounds)
	_, _, err = Layout(testBounds(), 0)
	assert.ErrorIs(t, err, ErrInvalidBounds)
}

func TestBoundsOf(t *testing.T) {
	g, err := NewSynthetic(7).Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)

	b := BoundsOf(g)
	assert.Equal(t, testBounds().Min, b.Min)
	assert.Equal(t, testBounds().Max, b.Max)
	assert.True(t, b.Overlaps(testBounds()))
}

// lookupServer answers with elevation = lat*1000 - lon. fail decides,
// per request number, whether to answer with a status instead.
func lookupServer(t *testing.T, fail func(n int32) int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if status := fail(n); status != 0 {
			http.Error(w, "unavailable", status)
			return
		}
		var req lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var resp lookupResponse
		for _, loc := range req.Locations {
			resp.Results = append(resp.Results, struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
				Elevation float64 `json:"elevation"`
			}{loc.Latitude, loc.Longitude, loc.Latitude*1000 - loc.Longitude})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenElevation_Fetch(t *testing.T) {
	srv, calls := lookupServer(t, func(int32) int { return 0 })
	src := &OpenElevation{URL: srv.URL, BatchSize: 5, Client: srv.Client()}

	g, err := src.Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)

	rows, cols := g.Dims()
	assert.Equal(t, int32((rows*cols+4)/5), calls.Load())
	for i := range rows {
		for j := range cols {
			want := g.Lat.At(i, j)*1000 - g.Lon.At(i, j)
			assert.InDelta(t, want, g.Elevation.At(i, j), 1e-6)
		}
	}
}

func TestOpenElevation_Retry(t *testing.T) {
	// The first two attempts fail with a server error.
	srv, calls := lookupServer(t, func(n int32) int {
		if n <= 2 {
			return http.StatusServiceUnavailable
		}
		return 0
	})
	src := &OpenElevation{
		URL:           srv.URL,
		BatchSize:     1000,
		MaxRetries:    3,
		RetryInterval: time.Millisecond,
		Client:        srv.Client(),
	}

	g, err := src.Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.NotZero(t, g.Elevation.At(0, 0))
}

func TestOpenElevation_FailedBatchFilledWithZero(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
	}{
		{"server error retried", http.StatusInternalServerError, 2},
		{"client error not retried", http.StatusBadRequest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := lookupServer(t, func(int32) int { return tt.status })
			src := &OpenElevation{
				URL:           srv.URL,
				BatchSize:     1000,
				MaxRetries:    1,
				RetryInterval: time.Millisecond,
				Client:        srv.Client(),
			}

			g, err := src.Fetch(context.Background(), testBounds(), 30)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
			lo, hi := g.ElevationRange()
			assert.Equal(t, 0.0, lo)
			assert.Equal(t, 0.0, hi)
		})
	}
}

func TestOpenElevation_Canceled(t *testing.T) {
	srv, _ := lookupServer(t, func(int32) int { return 0 })
	src := &OpenElevation{URL: srv.URL, Client: srv.Client()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := src.Fetch(ctx, testBounds(), 30)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthetic(t *testing.T) {
	a, err := NewSynthetic(42).Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)
	b, err := NewSynthetic(42).Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)
	assert.True(t, mat.Equal(a.Elevation, b.Elevation), "same seed must give the same terrain")

	lo, hi := a.ElevationRange()
	assert.GreaterOrEqual(t, lo, 500.0)
	assert.LessOrEqual(t, hi, 2000.0)
	assert.Greater(t, hi, lo)

	assert.Equal(t, "synthetic", NewSynthetic(1).Name())
}

func TestNewSource(t *testing.T) {
	cfg := config.Default().Elevation
	src, err := NewSource(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenElevation{}, src)

	cfg.Source = config.SourceSynthetic
	src, err = NewSource(cfg)
	require.NoError(t, err)
	assert.Equal(t, "synthetic", src.Name())

	cfg.Source = "srtm"
	_, err = NewSource(cfg)
	assert.Error(t, err)
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestKey(t *testing.T) {
	b := testBounds()
	k := Key(b, 30, "synthetic")
	assert.Equal(t, k, Key(testBounds(), 30, "synthetic"))
	assert.NotEqual(t, k, Key(b, 90, "synthetic"))
	assert.NotEqual(t, k, Key(b, 30, "open-elevation"))
	assert.Equal(t, "elev:", string(k[:5]))
}

func TestCache_PutGet(t *testing.T) {
	c := openTestCache(t)
	g, err := NewSynthetic(3).Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)
	key := Key(testBounds(), 30, "synthetic")

	_, err = c.Get(key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Put(key, g))
	got, err := c.Get(key)
	require.NoError(t, err)
	assert.True(t, mat.Equal(g.Lat, got.Lat))
	assert.True(t, mat.Equal(g.Lon, got.Lon))
	assert.True(t, mat.Equal(g.Elevation, got.Elevation))

	require.NoError(t, c.Put(Key(testBounds(), 60, "synthetic"), g))
	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, 2, info.Entries)
	assert.Positive(t, info.Bytes)

	require.NoError(t, c.Clear())
	_, err = c.Get(key)
	assert.ErrorIs(t, err, ErrCacheMiss)
	info, err = c.Info()
	require.NoError(t, err)
	assert.Equal(t, 0, info.Entries)
}

func TestCache_CorruptEntry(t *testing.T) {
	c := openTestCache(t)
	key := Key(testBounds(), 30, "synthetic")
	require.NoError(t, c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte("not a grid"))
	}))

	_, err := c.Get(key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	info, err := c.Info()
	require.NoError(t, err)
	assert.Equal(t, 0, info.Entries, "corrupt entry should be removed")
}

func TestCache_CorruptEntryReadOnly(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenCache(dir)
	require.NoError(t, err)
	key := Key(testBounds(), 30, "synthetic")
	require.NoError(t, c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte("not a grid"))
	}))
	require.NoError(t, c.Close())

	db, err := badger.Open(badger.DefaultOptions(dir).WithReadOnly(true).WithLogger(nil))
	require.NoError(t, err)
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	ro := &Cache{db: db, dir: dir, dec: dec}
	t.Cleanup(func() {
		dec.Close()
		db.Close()
	})

	core, logs := observer.New(zapcore.WarnLevel)
	defer logger.SetLogger(zap.New(core))()

	_, err = ro.Get(key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "dropping corrupt cache entry", entries[0].Message)
	assert.Equal(t, "deleting corrupt cache entry failed", entries[1].Message)
	assert.Equal(t, badger.ErrReadOnlyTxn.Error(), entries[1].ContextMap()["error"])
}

type countingSource struct {
	Source
	calls int
}

func (s *countingSource) Fetch(ctx context.Context, b *geom.Bounds, res float64) (*terrain.ElevationGrid, error) {
	s.calls++
	return s.Source.Fetch(ctx, b, res)
}

func TestCachingSource(t *testing.T) {
	inner := &countingSource{Source: NewSynthetic(9)}
	src := &CachingSource{Source: inner, Cache: openTestCache(t)}

	first, err := src.Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)
	second, err := src.Fetch(context.Background(), testBounds(), 30)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
	assert.True(t, mat.Equal(first.Elevation, second.Elevation))
	assert.Equal(t, "synthetic", src.Name())

	failing := &CachingSource{Source: errSource{}, Cache: src.Cache}
	_, err = failing.Fetch(context.Background(), NewBounds(2, 1, 2, 1), 30)
	assert.EqualError(t, err, "offline")
}

type errSource struct{}

func (errSource) Name() string { return "offline" }

func (errSource) Fetch(context.Context, *geom.Bounds, float64) (*terrain.ElevationGrid, error) {
	return nil, errors.New("offline")
}
