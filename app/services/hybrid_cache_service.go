package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invoice-parser/app/models"
	"go.uber.org/zap"
)

// HybridCacheService puts a fast cache (Redis) in front of a persistent
// one (MongoDB). Hits on the persistent tier are copied up in the
// background.
type HybridCacheService struct {
	fast       ICacheService
	persistent ICacheService
	logger     *zap.Logger
}

// NewHybridCacheService combines two cache tiers
func NewHybridCacheService(fast, persistent ICacheService, logger *zap.Logger) *HybridCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridCacheService{fast: fast, persistent: persistent, logger: logger}
}

// both runs fn on the two tiers in parallel and joins their errors
func (hcs *HybridCacheService) both(fn func(ICacheService) error) error {
	errCh := make(chan error, 2)
	for _, tier := range []ICacheService{hcs.fast, hcs.persistent} {
		go func(c ICacheService) { errCh <- fn(c) }(tier)
	}
	var errs []error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get tries the fast tier, then the persistent one. A fast tier error is
// logged and treated as a miss.
func (hcs *HybridCacheService) Get(ctx context.Context, key string) (*models.ProcessedResult, bool, error) {
	result, found, err := hcs.fast.Get(ctx, key)
	if err != nil {
		hcs.logger.Warn("fast cache failed, falling back", zap.Error(err))
	} else if found {
		return result, true, nil
	}

	result, found, err = hcs.persistent.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}

	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hcs.fast.Set(bgCtx, key, result); err != nil {
			hcs.logger.Warn("cannot copy entry to fast cache", zap.Error(err), zap.String("key", key))
		}
	}()
	return result, true, nil
}

// Set writes both tiers
func (hcs *HybridCacheService) Set(ctx context.Context, key string, result *models.ProcessedResult) error {
	if err := hcs.both(func(c ICacheService) error { return c.Set(ctx, key, result) }); err != nil {
		return fmt.Errorf("hybrid cache set: %w", err)
	}
	return nil
}

func (hcs *HybridCacheService) Delete(ctx context.Context, key string) error {
	if err := hcs.both(func(c ICacheService) error { return c.Delete(ctx, key) }); err != nil {
		return fmt.Errorf("hybrid cache delete: %w", err)
	}
	return nil
}

func (hcs *HybridCacheService) Clear(ctx context.Context) error {
	if err := hcs.both(func(c ICacheService) error { return c.Clear(ctx) }); err != nil {
		return fmt.Errorf("hybrid cache clear: %w", err)
	}
	hcs.logger.Info("hybrid cache cleared")
	return nil
}

// GetStats sums the counters of the tiers that answer
func (hcs *HybridCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	fastStats, fastErr := hcs.fast.GetStats(ctx)
	persistentStats, persistentErr := hcs.persistent.GetStats(ctx)

	switch {
	case fastErr != nil && persistentErr != nil:
		return nil, fmt.Errorf("hybrid cache stats: %w", errors.Join(fastErr, persistentErr))
	case fastErr != nil:
		return persistentStats, nil
	case persistentErr != nil:
		return fastStats, nil
	}
	return newCacheStats("hybrid",
		fastStats.TotalHits+persistentStats.TotalHits,
		fastStats.TotalMiss+persistentStats.TotalMiss,
		persistentStats.TotalItems), nil
}

func (hcs *HybridCacheService) Exists(ctx context.Context, key string) (bool, error) {
	exists, err := hcs.fast.Exists(ctx, key)
	if err != nil {
		hcs.logger.Warn("fast cache exists failed, falling back", zap.Error(err))
	} else if exists {
		return true, nil
	}
	return hcs.persistent.Exists(ctx, key)
}

// GetTTL reports the fast tier TTL
func (hcs *HybridCacheService) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return hcs.fast.GetTTL(ctx, key)
}

func (hcs *HybridCacheService) Close() error {
	return hcs.both(func(c ICacheService) error { return c.Close() })
}
