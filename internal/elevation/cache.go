package elevation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/ctessum/geom"
	"github.com/dgraph-io/badger/v3"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/terraprint/internal/logger"
	"github.com/Faultbox/terraprint/internal/terrain"
)

// ErrCacheMiss is returned by Get when no usable entry exists.
var ErrCacheMiss = errors.New("elevation cache miss")

var keyPrefix = []byte("elev:")

// Cache stores elevation grids in a badger database. Values are the three
// matrices as little-endian float64, followed by an xxhash checksum and
// compressed with zstd.
type Cache struct {
	db  *badger.DB
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
	mu  sync.RWMutex
}

// CacheInfo summarizes the cache contents.
type CacheInfo struct {
	Dir     string
	Entries int
	Bytes   int64
}

// OpenCache opens or creates the cache in dir.
func OpenCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening elevation cache: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &Cache{db: db, dir: dir, enc: enc, dec: dec}, nil
}

// Close releases the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dec.Close()
	if err := c.enc.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// Key derives the entry key from the request parameters.
func Key(b *geom.Bounds, resolutionM float64, source string) []byte {
	id := fmt.Sprintf("%v_%v_%v_%v_%v_%s", b.Max.Y, b.Min.Y, b.Max.X, b.Min.X, resolutionM, source)
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], xxhash.Sum64String(id))
	return key
}

// Get returns the cached grid for key or ErrCacheMiss. Corrupt entries
// are deleted and reported as misses.
func (c *Cache) Get(key []byte) (*terrain.ElevationGrid, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("reading elevation cache: %w", err)
	}

	g, err := c.decode(data)
	if err != nil {
		log := logger.Named("elevation")
		log.Warn("dropping corrupt cache entry", zap.Error(err))
		if err := c.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		}); err != nil {
			log.Warn("deleting corrupt cache entry failed", zap.Error(err))
		}
		return nil, ErrCacheMiss
	}
	return g, nil
}

// Put stores g under key.
func (c *Cache) Put(key []byte, g *terrain.ElevationGrid) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data := c.encode(g)
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("writing elevation cache: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.DropPrefix(keyPrefix)
}

// Info counts entries and their stored size.
func (c *Cache) Info() (CacheInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := CacheInfo{Dir: c.dir}
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			info.Entries++
			info.Bytes += it.Item().EstimatedSize()
		}
		return nil
	})
	return info, err
}

// encode lays out rows, cols, lat, lon, elevation, then the checksum of
// everything before it.
func (c *Cache) encode(g *terrain.ElevationGrid) []byte {
	rows, cols := g.Dims()
	n := rows * cols
	raw := make([]byte, 8+3*8*n+8)
	binary.LittleEndian.PutUint32(raw[0:4], uint32(rows))
	binary.LittleEndian.PutUint32(raw[4:8], uint32(cols))
	off := 8
	for _, m := range []*mat.Dense{g.Lat, g.Lon, g.Elevation} {
		for i := range rows {
			for j := range cols {
				binary.LittleEndian.PutUint64(raw[off:], math.Float64bits(m.At(i, j)))
				off += 8
			}
		}
	}
	binary.LittleEndian.PutUint64(raw[off:], xxhash.Sum64(raw[:off]))
	return c.enc.EncodeAll(raw, nil)
}

func (c *Cache) decode(data []byte) (*terrain.ElevationGrid, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	if len(raw) < 16 {
		return nil, errors.New("entry too short")
	}
	rows := int(binary.LittleEndian.Uint32(raw[0:4]))
	cols := int(binary.LittleEndian.Uint32(raw[4:8]))
	n := rows * cols
	if len(raw) != 8+3*8*n+8 {
		return nil, fmt.Errorf("entry size %d does not match %dx%d grid", len(raw), rows, cols)
	}
	body := len(raw) - 8
	if xxhash.Sum64(raw[:body]) != binary.LittleEndian.Uint64(raw[body:]) {
		return nil, errors.New("checksum mismatch")
	}

	off := 8
	read := func() *mat.Dense {
		vals := make([]float64, n)
		for k := range vals {
			vals[k] = math.Float64frombits(binary.LittleEndian.Uint64(raw[off:]))
			off += 8
		}
		return mat.NewDense(rows, cols, vals)
	}
	lat := read()
	lon := read()
	elev := read()
	return terrain.NewElevationGrid(lat, lon, elev)
}

// CachingSource serves grids from a Cache and fills it from Source.
type CachingSource struct {
	Source Source
	Cache  *Cache
}

// Name implements Source.
func (s *CachingSource) Name() string { return s.Source.Name() }

// Fetch implements Source. A failing cache write is logged, not returned.
func (s *CachingSource) Fetch(ctx context.Context, b *geom.Bounds, resolutionM float64) (*terrain.ElevationGrid, error) {
	log := logger.Named("elevation")
	key := Key(b, resolutionM, s.Source.Name())

	g, err := s.Cache.Get(key)
	if err == nil {
		log.Info("using cached elevation data", zap.String("source", s.Source.Name()))
		return g, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn("elevation cache unavailable", zap.Error(err))
	}

	g, err = s.Source.Fetch(ctx, b, resolutionM)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Put(key, g); err != nil {
		log.Warn("caching elevation data failed", zap.Error(err))
	}
	return g, nil
}
