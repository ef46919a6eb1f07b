package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultShortTTL    = 5 * time.Second
	defaultCacheTTL    = 30 * time.Second
	defaultLongTTL     = 5 * time.Minute
	defaultBatchWindow = 10 * time.Millisecond
)

type ttlKind int

const (
	ttlDefault ttlKind = iota
	ttlShort
	ttlLong
	ttlExplicit
)

// TTLClass selects how long a cache entry stays fresh.
type TTLClass struct {
	kind     ttlKind
	explicit time.Duration
}

var (
	TTLDefault = TTLClass{kind: ttlDefault}
	TTLShort   = TTLClass{kind: ttlShort}
	TTLLong    = TTLClass{kind: ttlLong}
)

// TTLExplicit overrides the TTL classes with a fixed duration.
func TTLExplicit(d time.Duration) TTLClass {
	return TTLClass{kind: ttlExplicit, explicit: d}
}

// RequestCacheOptions configures TTL classes and the batching window.
type RequestCacheOptions struct {
	ShortTTL    time.Duration
	DefaultTTL  time.Duration
	LongTTL     time.Duration
	BatchWindow time.Duration
}

type cacheEntry struct {
	data      any
	timestamp time.Time
	expiresAt time.Time
}

type fetchResult struct {
	value any
	err   error
}

// RequestCache is a TTL cache shared by every read path of the application. Concurrent misses on
// the same key share one fetch.
type RequestCache struct {
	opts    RequestCacheOptions
	logger  *zap.Logger
	now     func() time.Time
	metrics RequestCacheMetrics

	mu         sync.Mutex
	entries    map[string]cacheEntry
	generation uint64

	group singleflight.Group

	batchMu    sync.Mutex
	batch      []func()
	batchTimer *time.Timer
}

// NewRequestCache constructs an empty cache.
func NewRequestCache(opts RequestCacheOptions) *RequestCache {
	if opts.ShortTTL <= 0 {
		opts.ShortTTL = defaultShortTTL
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = defaultCacheTTL
	}
	if opts.LongTTL <= 0 {
		opts.LongTTL = defaultLongTTL
	}
	if opts.BatchWindow <= 0 {
		opts.BatchWindow = defaultBatchWindow
	}
	return &RequestCache{
		opts:    opts,
		logger:  zap.NewNop(),
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// WithLogger attaches a structured logger.
func (c *RequestCache) WithLogger(logger *zap.Logger) *RequestCache {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithNow overrides the clock, primarily for deterministic testing.
func (c *RequestCache) WithNow(now func() time.Time) *RequestCache {
	if now != nil {
		c.now = now
	}
	return c
}

// WithMetrics wires telemetry observers for cache operations.
func (c *RequestCache) WithMetrics(metrics RequestCacheMetrics) *RequestCache {
	if metrics != nil {
		c.metrics = metrics
	}
	return c
}

// Key builds a cache key from a resource name and its query parameters. Parameters are
// serialised as JSON, which orders map keys, so equal parameter sets produce equal keys.
func Key(resource string, params any) string {
	resource = strings.TrimSpace(resource)
	if params == nil {
		return resource + ":{}"
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprintf("%s:%v", resource, params)
	}
	return resource + ":" + string(encoded)
}

// Get returns a fresh entry. Expired entries are evicted on read.
func (c *RequestCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.data, true
}

// Set stores data under key, replacing any previous entry.
func (c *RequestCache) Set(key string, data any, ttl TTLClass) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, data, ttl)
}

func (c *RequestCache) setLocked(key string, data any, ttl TTLClass) {
	now := c.now()
	c.entries[key] = cacheEntry{
		data:      data,
		timestamp: now,
		expiresAt: now.Add(c.ttl(ttl)),
	}
}

// Invalidate drops every entry.
func (c *RequestCache) Invalidate() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := len(c.entries)
	c.entries = make(map[string]cacheEntry)
	c.generation++

	c.logger.Debug("request cache invalidated", zap.Int("entries", removed))
	return removed
}

// InvalidatePattern drops entries whose key matches the regular expression pattern.
func (c *RequestCache) InvalidatePattern(pattern string) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("compile invalidation pattern: %w", err)
	}
	return c.InvalidateMatching(re), nil
}

// InvalidateMatching drops entries whose key matches re.
func (c *RequestCache) InvalidateMatching(re *regexp.Regexp) int {
	if re == nil {
		return c.Invalidate()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	c.generation++

	c.logger.Debug("request cache entries invalidated", zap.String("pattern", re.String()), zap.Int("entries", removed))
	return removed
}

// InvalidateTable drops every entry keyed "<name>:...".
func (c *RequestCache) InvalidateTable(name string) int {
	return c.InvalidateMatching(regexp.MustCompile("^" + regexp.QuoteMeta(name) + ":"))
}

// Len reports the number of stored entries, including ones not yet evicted.
func (c *RequestCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CachedQuery returns the cached value for key or runs fetch once for all concurrent callers.
// Failures are returned to every waiting caller and never cached.
func CachedQuery[T any](ctx context.Context, c *RequestCache, key string, ttl TTLClass, fetch func(context.Context) (T, error)) (T, error) {
	value, err := c.cachedQuery(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	return typed[T](value, err)
}

// BatchedQuery behaves like CachedQuery but holds the call for the batching window so bursts
// arriving in the same window are flushed together.
func BatchedQuery[T any](ctx context.Context, c *RequestCache, key string, ttl TTLClass, fetch func(context.Context) (T, error)) (T, error) {
	value, err := c.batchedQuery(ctx, key, ttl, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	return typed[T](value, err)
}

func typed[T any](value any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if value == nil {
		return zero, nil
	}
	result, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T", ErrCacheTypeMismatch, value)
	}
	return result, nil
}

func (c *RequestCache) cachedQuery(ctx context.Context, key string, ttl TTLClass, fetch func(context.Context) (any, error)) (any, error) {
	resource := resourceOf(key)

	if value, ok := c.Get(key); ok {
		c.logger.Debug("request cache hit", zap.String("key", key))
		if c.metrics != nil {
			c.metrics.IncCacheHit(resource)
		}
		return value, nil
	}
	if c.metrics != nil {
		c.metrics.IncCacheMiss(resource)
	}

	// The shared fetch must outlive any single caller giving up.
	fetchCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		c.mu.Lock()
		if entry, ok := c.entries[key]; ok && c.now().Before(entry.expiresAt) {
			c.mu.Unlock()
			return entry.data, nil
		}
		generation := c.generation
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.IncFetch(resource)
		}

		value, err := fetch(fetchCtx)
		if err != nil {
			if c.metrics != nil {
				c.metrics.IncFetchError(resource)
			}
			c.logger.Debug("request cache fetch failed", zap.String("key", key), zap.Error(err))
			return nil, err
		}

		c.mu.Lock()
		// An invalidation during the fetch means the value may already be stale.
		if c.generation == generation {
			c.setLocked(key, value, ttl)
		}
		c.mu.Unlock()

		return value, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RequestCache) batchedQuery(ctx context.Context, key string, ttl TTLClass, fetch func(context.Context) (any, error)) (any, error) {
	done := make(chan fetchResult, 1)

	c.enqueue(func() {
		go func() {
			value, err := c.cachedQuery(ctx, key, ttl, fetch)
			done <- fetchResult{value: value, err: err}
		}()
	})

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *RequestCache) enqueue(call func()) {
	c.batchMu.Lock()
	defer c.batchMu.Unlock()

	c.batch = append(c.batch, call)
	if c.batchTimer == nil {
		c.batchTimer = time.AfterFunc(c.opts.BatchWindow, c.flush)
	}
}

func (c *RequestCache) flush() {
	c.batchMu.Lock()
	calls := c.batch
	c.batch = nil
	c.batchTimer = nil
	c.batchMu.Unlock()

	if len(calls) > 1 {
		c.logger.Debug("flushing request batch", zap.Int("calls", len(calls)))
	}
	for _, call := range calls {
		call()
	}
}

func (c *RequestCache) ttl(class TTLClass) time.Duration {
	switch class.kind {
	case ttlShort:
		return c.opts.ShortTTL
	case ttlLong:
		return c.opts.LongTTL
	case ttlExplicit:
		if class.explicit > 0 {
			return class.explicit
		}
	}
	return c.opts.DefaultTTL
}

func resourceOf(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}
