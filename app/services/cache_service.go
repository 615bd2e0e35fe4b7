package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/invoice-parser/app/models"
)

const defaultMemoryCacheSize = 10000

// CacheService is a bounded in-memory cache. Entries expire after ttl and
// the least recently used entry is evicted when the cache is full.
type CacheService struct {
	cache *lru.Cache[string, *models.ProcessedResult]
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64

	stopOnce sync.Once
	stop     chan struct{}
}

// NewCacheService creates a memory cache holding at most size entries
func NewCacheService(size int, ttl time.Duration) *CacheService {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	// lru.New only fails on a non-positive size
	cache, _ := lru.New[string, *models.ProcessedResult](size)
	return &CacheService{cache: cache, ttl: ttl, stop: make(chan struct{})}
}

func (cs *CacheService) Get(_ context.Context, key string) (*models.ProcessedResult, bool, error) {
	result, ok := cs.cache.Get(key)
	if !ok {
		cs.misses.Add(1)
		return nil, false, nil
	}
	if result.IsExpired(cs.ttl) {
		cs.cache.Remove(key)
		cs.misses.Add(1)
		return nil, false, nil
	}
	cs.hits.Add(1)
	return result, true, nil
}

func (cs *CacheService) Set(_ context.Context, key string, result *models.ProcessedResult) error {
	cs.cache.Add(key, result)
	return nil
}

func (cs *CacheService) Delete(_ context.Context, key string) error {
	cs.cache.Remove(key)
	return nil
}

func (cs *CacheService) Clear(_ context.Context) error {
	cs.cache.Purge()
	return nil
}

// Size is the number of entries, expired ones included
func (cs *CacheService) Size() int {
	return cs.cache.Len()
}

func (cs *CacheService) GetStats(_ context.Context) (*CacheStats, error) {
	return newCacheStats("memory", cs.hits.Load(), cs.misses.Load(), int64(cs.cache.Len())), nil
}

// CleanupExpired removes expired entries and returns how many it removed
func (cs *CacheService) CleanupExpired() int {
	removed := 0
	for _, key := range cs.cache.Keys() {
		if result, ok := cs.cache.Peek(key); ok && result.IsExpired(cs.ttl) {
			cs.cache.Remove(key)
			removed++
		}
	}
	return removed
}

func (cs *CacheService) Exists(_ context.Context, key string) (bool, error) {
	result, ok := cs.cache.Peek(key)
	return ok && !result.IsExpired(cs.ttl), nil
}

func (cs *CacheService) GetTTL(_ context.Context, key string) (time.Duration, error) {
	result, ok := cs.cache.Peek(key)
	if !ok || cs.ttl <= 0 {
		return 0, nil
	}
	remaining := cs.ttl - time.Since(result.CreatedAt)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// StartCleanupWorker sweeps expired entries every interval until Close
func (cs *CacheService) StartCleanupWorker(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cs.CleanupExpired()
			case <-cs.stop:
				return
			}
		}
	}()
}

func (cs *CacheService) Close() error {
	cs.stopOnce.Do(func() { close(cs.stop) })
	return nil
}
