package store

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/utils"
)

// cachedClassification holds a cached classification with the time it was
// written, for the 1-hour TTL check on read.
type cachedClassification struct {
	classification model.Classification
	cachedAt       time.Time
}

// SemanticCache is the Analyzer's cross-message cache, keyed by semantic
// fingerprint. Thread-safe, LRU-bounded with a TTL check on every read —
// the same shape as an auth-token cache elsewhere in this lineage,
// generalized from caching token validity to caching classification
// outcomes.
type SemanticCache struct {
	cache *lru.Cache[string, *cachedClassification]
	ttl   time.Duration
	mu    sync.RWMutex

	hits   uint64
	misses uint64
}

// NewSemanticCache builds a SemanticCache bounded to maxSize entries with
// the given TTL (default 1 hour per the spec).
func NewSemanticCache(maxSize int, ttl time.Duration) (*SemanticCache, error) {
	if maxSize <= 0 {
		maxSize = 10000
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	cache, err := lru.New[string, *cachedClassification](maxSize)
	if err != nil {
		return nil, fmt.Errorf("store: failed to create semantic cache: %w", err)
	}

	return &SemanticCache{cache: cache, ttl: ttl}, nil
}

// Get returns the cached classification for hash, if present and not
// older than the cache's TTL. A cache read failure (there is none here —
// this is an in-process cache) or a miss both return ok=false; callers
// treat either as "fall through to heuristics."
func (c *SemanticCache) Get(hash string) (model.Classification, bool) {
	if c == nil || c.cache == nil {
		return model.Classification{}, false
	}

	c.mu.RLock()
	cached, ok := c.cache.Get(hash)
	c.mu.RUnlock()

	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return model.Classification{}, false
	}

	if time.Since(cached.cachedAt) > c.ttl {
		c.mu.Lock()
		current, stillExists := c.cache.Get(hash)
		if stillExists && time.Since(current.cachedAt) > c.ttl {
			c.cache.Remove(hash)
		}
		c.mu.Unlock()
		atomic.AddUint64(&c.misses, 1)
		return model.Classification{}, false
	}

	atomic.AddUint64(&c.hits, 1)
	return cached.classification, true
}

// Set writes a classification into the cache on a heuristic or LLM miss
// path, keyed by semantic hash.
func (c *SemanticCache) Set(hash string, classification model.Classification) {
	if c == nil || c.cache == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(hash, &cachedClassification{
		classification: classification,
		cachedAt:       utils.NowUTC(),
	})
}

// CacheStats reports the cache's size, hit/miss counters and hit rate (as a
// percentage).
type CacheStats struct {
	Size    int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns current cache statistics.
func (c *SemanticCache) Stats() CacheStats {
	if c == nil || c.cache == nil {
		return CacheStats{}
	}

	c.mu.RLock()
	size := c.cache.Len()
	c.mu.RUnlock()

	hits := atomic.LoadUint64(&c.hits)
	misses := atomic.LoadUint64(&c.misses)
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	return CacheStats{Size: size, Hits: hits, Misses: misses, HitRate: hitRate}
}
