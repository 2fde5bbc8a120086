package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/galleryfs/galleryfs/pkg/types"
)

// Named TTL presets for call sites to choose cache aggressiveness per data
// volatility.
const (
	TTLShort   = 2 * time.Minute
	TTLDefault = 5 * time.Minute
	TTLMedium  = 15 * time.Minute
	TTLLong    = time.Hour
)

// Options control how a single entry is cached.
type Options struct {
	// TTL is the entry's time to live; zero means TTLDefault.
	TTL time.Duration

	// Persist additionally writes the entry to the durable tier.
	Persist bool
}

// Config represents cache store configuration.
type Config struct {
	// Directory holds the durable tier; empty disables it.
	Directory string `yaml:"directory"`

	// MaxDurableBytes caps the durable tier; exceeding it evicts the
	// oldest 25% of entries by timestamp.
	MaxDurableBytes int64 `yaml:"max_durable_bytes"`
}

// entry is one cached value in the memory tier.
type entry struct {
	data     []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.storedAt) > e.ttl
}

// Store is a two-tier read-through cache. All methods are safe for concurrent
// use.
type Store struct {
	mu        sync.RWMutex
	memory    map[string]*entry
	durable   *diskTier // nil when no durable tier is configured
	logger    *slog.Logger
	collector types.MetricsCollector // nil disables external recording

	statsMu sync.Mutex
	stats   types.CacheStats
}

// New creates a cache store. A nil config yields a memory-only store; a nil
// collector keeps hit/miss accounting internal.
func New(cfg *Config, logger *slog.Logger, collector types.MetricsCollector) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		memory:    make(map[string]*entry),
		logger:    logger,
		collector: collector,
	}

	if cfg != nil && cfg.Directory != "" {
		tier, err := newDiskTier(cfg.Directory, cfg.MaxDurableBytes, logger)
		if err != nil {
			return nil, err
		}
		s.durable = tier
	}

	return s, nil
}

// GetOrFetch returns the cached value for key if it is younger than its TTL,
// otherwise invokes fetch and stores the result. A fetch failure returns the
// previously cached value when one exists, stale or not; the error propagates
// only on a cold cache.
func (s *Store) GetOrFetch(ctx context.Context, key string, opts Options, fetch func(context.Context) ([]byte, error)) ([]byte, error) {
	if opts.TTL <= 0 {
		opts.TTL = TTLDefault
	}

	now := time.Now()

	s.mu.RLock()
	cached, ok := s.memory[key]
	s.mu.RUnlock()

	if !ok && s.durable != nil {
		if data, storedAt, found := s.durable.get(key); found {
			cached = &entry{data: data, storedAt: storedAt, ttl: opts.TTL}
			ok = true
			// Promote to memory so the next read is one map lookup.
			s.mu.Lock()
			s.memory[key] = cached
			s.mu.Unlock()
		}
	}

	if ok && !cached.expired(now) {
		s.recordHit(key, int64(len(cached.data)))
		return cached.data, nil
	}
	s.recordMiss(key)

	data, err := fetch(ctx)
	if err != nil {
		if ok {
			// Stale fallback: a slow or failing refresh never blocks
			// a caller that has seen this value before.
			s.recordStale()
			s.logger.Warn("cache refresh failed, serving stale entry",
				"key", key, "age", now.Sub(cached.storedAt), "error", err)
			return cached.data, nil
		}
		return nil, err
	}

	s.store(key, data, opts)
	return data, nil
}

// Set stores a value unconditionally.
func (s *Store) Set(key string, data []byte, opts Options) {
	if opts.TTL <= 0 {
		opts.TTL = TTLDefault
	}
	s.store(key, data, opts)
}

func (s *Store) store(key string, data []byte, opts Options) {
	s.mu.Lock()
	s.memory[key] = &entry{data: data, storedAt: time.Now(), ttl: opts.TTL}
	s.mu.Unlock()

	if opts.Persist && s.durable != nil {
		// Durable failures are logged and swallowed: cache persistence
		// must never fail the caller.
		if err := s.durable.put(key, data); err != nil {
			s.logger.Warn("durable cache write dropped", "key", key, "error", err)
		}
	}
}

// Invalidate removes the entry for key from both tiers.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.memory, key)
	s.mu.Unlock()

	if s.durable != nil {
		s.durable.delete(key)
	}
}

// InvalidatePattern removes every entry whose key contains substr from both
// tiers.
func (s *Store) InvalidatePattern(substr string) {
	s.mu.Lock()
	for key := range s.memory {
		if strings.Contains(key, substr) {
			delete(s.memory, key)
		}
	}
	s.mu.Unlock()

	if s.durable != nil {
		s.durable.deletePattern(substr)
	}
}

// Stats returns a snapshot of cache performance counters.
func (s *Store) Stats() types.CacheStats {
	s.statsMu.Lock()
	stats := s.stats
	s.statsMu.Unlock()

	s.mu.RLock()
	stats.Entries = len(s.memory)
	s.mu.RUnlock()

	if s.durable != nil {
		stats.Size = s.durable.size()
		stats.Capacity = s.durable.capacity()
		if stats.Capacity > 0 {
			stats.Utilization = float64(stats.Size) / float64(stats.Capacity)
		}
		stats.Evictions = s.durable.evictions()
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return stats
}

func (s *Store) recordHit(key string, size int64) {
	s.statsMu.Lock()
	s.stats.Hits++
	s.statsMu.Unlock()
	if s.collector != nil {
		s.collector.RecordCacheHit(key, size)
	}
}

func (s *Store) recordMiss(key string) {
	s.statsMu.Lock()
	s.stats.Misses++
	s.statsMu.Unlock()
	if s.collector != nil {
		s.collector.RecordCacheMiss(key, 0)
	}
}

func (s *Store) recordStale() {
	s.statsMu.Lock()
	s.stats.Stale++
	s.statsMu.Unlock()
}

// Cached is the typed read-through helper for JSON values. It wraps
// Store.GetOrFetch, marshaling fetched values and unmarshaling cached ones.
func Cached[T any](ctx context.Context, s *Store, key string, opts Options, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	data, err := s.GetOrFetch(ctx, key, opts, func(ctx context.Context) ([]byte, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(value)
	})
	if err != nil {
		return zero, err
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, err
	}
	return value, nil
}
