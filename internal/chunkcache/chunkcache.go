package chunkcache

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/dshills/afterimage-mcp/pkg/types"
)

const (
	// DefaultMaxEntries bounds the number of cached files
	DefaultMaxEntries = 256

	// DefaultTTL is how long a chunk list stays valid after insertion
	DefaultTTL = 10 * time.Minute
)

// ErrInvalidConfig is returned by New for non-positive limits
var ErrInvalidConfig = errors.New("invalid chunk cache config")

// Key identifies a chunking result. Any content change produces a new
// ContentHash, so entries never need explicit invalidation.
type Key struct {
	FilePath       string
	ContentHash    string
	MaxChunkTokens int
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%s/%d", k.FilePath, k.ContentHash, k.MaxChunkTokens)
}

// entry is immutable after insertion apart from the access timestamp
type entry struct {
	chunks     []types.SourceUnit
	createdAt  time.Time
	lastAccess atomic.Int64
}

// Config sizes the cache
type Config struct {
	MaxEntries int
	TTL        time.Duration
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// Cache memoizes chunker output keyed by file path, content hash and token
// limit. Entries expire TTL after insertion; beyond MaxEntries the
// least-recently-accessed entry is evicted. Safe for concurrent use.
type Cache struct {
	mu    sync.Mutex
	lru   *lru.Cache[Key, *entry]
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// New creates a cache. Zero values in cfg select the defaults.
func New(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxEntries < 0 || cfg.TTL < 0 {
		return nil, fmt.Errorf("%w: max_entries=%d ttl=%s", ErrInvalidConfig, cfg.MaxEntries, cfg.TTL)
	}

	c := &Cache{
		ttl: cfg.TTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	cache, err := lru.NewWithEvict[Key, *entry](cfg.MaxEntries, func(Key, *entry) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("create LRU cache: %w", err)
	}
	c.lru = cache

	return c, nil
}

// Get returns the cached chunks for key. Expired or unreadable entries are
// dropped and reported as a miss. The returned slice is a copy.
func (c *Cache) Get(key Key) ([]types.SourceUnit, bool) {
	chunks, err := c.lookup(key)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return chunks, true
}

func (c *Cache) lookup(key Key) ([]types.SourceUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, errMiss
	}
	if e == nil {
		c.lru.Remove(key)
		return nil, fmt.Errorf("%w: %s", types.ErrCacheCorrupt, key)
	}

	now := c.now()
	if now.Sub(e.createdAt) >= c.ttl {
		c.lru.Remove(key)
		return nil, errExpired
	}
	e.lastAccess.Store(now.UnixNano())

	return slices.Clone(e.chunks), nil
}

var (
	errMiss    = errors.New("cache miss")
	errExpired = errors.New("cache entry expired")
)

// Put stores chunks under key, replacing any previous entry
func (c *Cache) Put(key Key, chunks []types.SourceUnit) {
	now := c.now()
	e := &entry{
		chunks:    slices.Clone(chunks),
		createdAt: now,
	}
	e.lastAccess.Store(now.UnixNano())

	c.mu.Lock()
	c.lru.Add(key, e)
	c.mu.Unlock()
}

// GetOrCompute returns the cached value for key or computes and stores it.
// Concurrent callers for the same key share one computation. A failing or
// panicking compute is returned as an error and nothing is cached.
func (c *Cache) GetOrCompute(key Key, compute func() ([]types.SourceUnit, error)) ([]types.SourceUnit, error) {
	if chunks, ok := c.Get(key); ok {
		return chunks, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("chunk computation panicked: %v", r)
			}
		}()

		chunks, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, chunks)
		return chunks, nil
	})
	if err != nil {
		return nil, err
	}

	return slices.Clone(v.([]types.SourceUnit)), nil
}

// LastAccess reports when key was last stored or read. It does not count as
// an access itself and ignores expiry.
func (c *Cache) LastAccess(key Key) (time.Time, bool) {
	e, ok := c.lru.Peek(key)
	if !ok || e == nil {
		return time.Time{}, false
	}
	return time.Unix(0, e.lastAccess.Load()), true
}

// Len returns the number of entries, including expired ones not yet dropped
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge removes every entry
func (c *Cache) Purge() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.lru.Len(),
	}
}
