package weatherproof

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// MemoryStore is the default in-process Store: a sharded map with
// per-shard locks. Expired entries are retained so they can be served as
// a stale fallback; they disappear only when replaced or deleted.
type MemoryStore struct {
	shards    []*storeShard
	numShards int
}

type storeShard struct {
	mu    sync.RWMutex
	store map[string]*Entry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	numShards := 16
	shards := make([]*storeShard, numShards)
	for i := range shards {
		shards[i] = &storeShard{
			store: make(map[string]*Entry),
		}
	}
	return &MemoryStore{
		shards:    shards,
		numShards: numShards,
	}
}

func (s *MemoryStore) getShard(key string) *storeShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return s.shards[hash.Sum32()%uint32(s.numShards)]
}

func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, bool, error) {
	shard := s.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false, nil
	}
	return entry, true, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, entry *Entry) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[key] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	shard := s.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
	return nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear() {
	for _, shard := range s.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*Entry)
		shard.mu.Unlock()
	}
}

// Cache classifies stored entries as fresh or stale against the clock and
// absorbs backing store failures by degrading them to cache misses.
type Cache struct {
	store  Store
	clock  Clock
	logger Logger
}

// NewCache wraps a Store with freshness classification.
func NewCache(store Store, clock Clock, logger Logger) *Cache {
	return &Cache{store: store, clock: clock, logger: logger}
}

// Get returns the entry for key classified as fresh or stale, or ok=false
// when no entry exists. A store read failure reports absent.
func (c *Cache) Get(ctx context.Context, key string) (*Lookup, bool) {
	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("Cache read failed, treating as absent", "key", key, "error", err.Error())
		}
		return nil, false
	}
	if !found || entry == nil {
		return nil, false
	}

	state := CacheFresh
	if !c.clock.Now().Before(entry.ExpiresAt) {
		state = CacheStale
	}
	return &Lookup{
		Payload:   entry.Payload,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
		State:     state,
	}, true
}

// Put stores payload under key, replacing any previous entry. The entry
// expires ttl from now; ttl must be positive. A store write failure is
// logged and otherwise ignored: the next Get simply reports absent.
func (c *Cache) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	now := c.clock.Now()
	entry := &Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.store.Set(ctx, key, entry); err != nil && c.logger != nil {
		c.logger.Warn("Cache write failed", "key", key, "error", err.Error())
	}
}

// Invalidate removes the entry for key immediately, forcing the next Get
// to report absent.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil && c.logger != nil {
		c.logger.Warn("Cache invalidate failed", "key", key, "error", err.Error())
	}
}

func withRequestControl(ctx context.Context, mutate func(*RequestControl)) context.Context {
	ctrl := requestControlFromContext(ctx)
	mutate(&ctrl)
	return context.WithValue(ctx, requestControlKey, &ctrl)
}

func requestControlFromContext(ctx context.Context) RequestControl {
	if ctrl, ok := ctx.Value(requestControlKey).(*RequestControl); ok && ctrl != nil {
		return *ctrl
	}
	return RequestControl{}
}

// WithContextForceRefresh marks the call to bypass the fresh-cache check
// and the breaker's remaining cooldown.
func WithContextForceRefresh(ctx context.Context) context.Context {
	return withRequestControl(ctx, func(rc *RequestControl) { rc.ForceRefresh = true })
}

// WithContextCacheDisabled skips cache reads and writes for the call.
// Liveness probes use this so they are always fetched fresh.
func WithContextCacheDisabled(ctx context.Context) context.Context {
	return withRequestControl(ctx, func(rc *RequestControl) { rc.DisableCache = true })
}

// WithContextCacheTTL overrides the client TTL for the call.
func WithContextCacheTTL(ctx context.Context, ttl time.Duration) context.Context {
	return withRequestControl(ctx, func(rc *RequestControl) { rc.TTL = ttl })
}
