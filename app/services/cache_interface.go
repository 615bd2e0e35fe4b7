package services

import (
	"context"
	"time"

	"github.com/invoice-parser/app/models"
)

// CacheStats are the counters every cache backend reports
type CacheStats struct {
	Backend    string  `json:"backend"`
	HitRate    float64 `json:"hit_rate"`
	TotalHits  int64   `json:"total_hits"`
	TotalMiss  int64   `json:"total_miss"`
	TotalItems int64   `json:"total_items"`
}

func newCacheStats(backend string, hits, misses, items int64) *CacheStats {
	stats := &CacheStats{Backend: backend, TotalHits: hits, TotalMiss: misses, TotalItems: items}
	if total := hits + misses; total > 0 {
		stats.HitRate = float64(hits) / float64(total)
	}
	return stats
}

// ICacheService stores processed results by document fingerprint
type ICacheService interface {
	// Get returns the cached result; a miss is (nil, false, nil)
	Get(ctx context.Context, key string) (*models.ProcessedResult, bool, error)

	Set(ctx context.Context, key string, result *models.ProcessedResult) error

	Delete(ctx context.Context, key string) error

	// Clear drops every entry of this cache
	Clear(ctx context.Context) error

	GetStats(ctx context.Context) (*CacheStats, error)

	Exists(ctx context.Context, key string) (bool, error)

	// GetTTL returns the remaining lifetime of a key
	GetTTL(ctx context.Context, key string) (time.Duration, error)

	Close() error
}
