package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/invoice-parser/app/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const documentCacheCollection = "document_cache"

// MongoCacheService is a persistent cache in MongoDB fronted by an
// in-memory LRU. Entries are keyed by document fingerprint and never
// expire; Clear is the only way to drop them.
type MongoCacheService struct {
	collection *mongo.Collection
	l1Cache    *lru.Cache[string, *models.ProcessedResult]
	logger     *zap.Logger

	l1Hits    atomic.Int64
	l1Miss    atomic.Int64
	mongoHits atomic.Int64
	mongoMiss atomic.Int64
}

// NewMongoCacheService opens the cache collection and ensures its indexes
func NewMongoCacheService(db *mongo.Database, l1Size int, logger *zap.Logger) (*MongoCacheService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if l1Size <= 0 {
		l1Size = 1000
	}
	l1Cache, err := lru.New[string, *models.ProcessedResult](l1Size)
	if err != nil {
		return nil, fmt.Errorf("create l1 cache: %w", err)
	}

	collection := db.Collection(documentCacheCollection)
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "last_accessed", Value: 1}}},
		{Keys: bson.D{{Key: "report.status", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		logger.Warn("cannot create document_cache indexes", zap.Error(err))
	}

	return &MongoCacheService{collection: collection, l1Cache: l1Cache, logger: logger}, nil
}

// Get looks in the LRU first, then in MongoDB
func (mcs *MongoCacheService) Get(ctx context.Context, key string) (*models.ProcessedResult, bool, error) {
	if result, found := mcs.l1Cache.Get(key); found {
		mcs.l1Hits.Add(1)
		return result, true, nil
	}
	mcs.l1Miss.Add(1)

	var entry models.ProcessedResult
	err := mcs.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		mcs.mongoMiss.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query document cache: %w", err)
	}
	mcs.mongoHits.Add(1)

	go mcs.updateAccessStats(key)
	mcs.l1Cache.Add(key, &entry)
	mcs.logger.Debug("mongo cache hit", zap.String("fingerprint", key))
	return &entry, true, nil
}

// Set writes to the LRU and upserts the MongoDB entry
func (mcs *MongoCacheService) Set(ctx context.Context, key string, result *models.ProcessedResult) error {
	mcs.l1Cache.Add(key, result)

	entry := *result
	entry.Fingerprint = key
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.LastAccessed = time.Now()

	opts := options.Replace().SetUpsert(true)
	if _, err := mcs.collection.ReplaceOne(ctx, bson.M{"_id": key}, entry, opts); err != nil {
		mcs.logger.Error("cannot store document cache entry", zap.Error(err), zap.String("fingerprint", key))
		return fmt.Errorf("store document cache entry: %w", err)
	}
	return nil
}

func (mcs *MongoCacheService) Delete(ctx context.Context, key string) error {
	mcs.l1Cache.Remove(key)
	if _, err := mcs.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete document cache entry: %w", err)
	}
	return nil
}

// Clear drops both tiers and resets the counters
func (mcs *MongoCacheService) Clear(ctx context.Context) error {
	mcs.l1Cache.Purge()
	res, err := mcs.collection.DeleteMany(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("clear document cache: %w", err)
	}
	for _, c := range []*atomic.Int64{&mcs.l1Hits, &mcs.l1Miss, &mcs.mongoHits, &mcs.mongoMiss} {
		c.Store(0)
	}
	mcs.logger.Info("mongo cache cleared", zap.Int64("deleted", res.DeletedCount))
	return nil
}

// GetStats counts a hit on either tier as a hit; a miss is a miss on both
func (mcs *MongoCacheService) GetStats(ctx context.Context) (*CacheStats, error) {
	count, err := mcs.collection.EstimatedDocumentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count document cache: %w", err)
	}
	hits := mcs.l1Hits.Load() + mcs.mongoHits.Load()
	return newCacheStats("mongo", hits, mcs.mongoMiss.Load(), count), nil
}

func (mcs *MongoCacheService) Exists(ctx context.Context, key string) (bool, error) {
	if mcs.l1Cache.Contains(key) {
		return true, nil
	}
	count, err := mcs.collection.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check document cache entry: %w", err)
	}
	return count > 0, nil
}

// GetTTL is always 0: persistent entries do not expire
func (mcs *MongoCacheService) GetTTL(context.Context, string) (time.Duration, error) {
	return 0, nil
}

// Close is a no-op; the client belongs to the caller
func (mcs *MongoCacheService) Close() error {
	return nil
}

func (mcs *MongoCacheService) updateAccessStats(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	update := bson.M{
		"$set": bson.M{"last_accessed": time.Now()},
		"$inc": bson.M{"access_count": 1},
	}
	if _, err := mcs.collection.UpdateOne(ctx, bson.M{"_id": key}, update); err != nil {
		mcs.logger.Warn("cannot update access stats", zap.Error(err))
	}
}

// L1Stats reports the per-tier counters
func (mcs *MongoCacheService) L1Stats() map[string]int64 {
	return map[string]int64{
		"l1_size":    int64(mcs.l1Cache.Len()),
		"l1_hits":    mcs.l1Hits.Load(),
		"l1_miss":    mcs.l1Miss.Load(),
		"mongo_hits": mcs.mongoHits.Load(),
		"mongo_miss": mcs.mongoMiss.Load(),
	}
}

// WarmUp loads the most accessed entries into the LRU
func (mcs *MongoCacheService) WarmUp(ctx context.Context, limit int) error {
	opts := options.Find().
		SetSort(bson.D{{Key: "access_count", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := mcs.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return fmt.Errorf("warm up cache: %w", err)
	}
	defer cursor.Close(ctx)

	count := 0
	for cursor.Next(ctx) {
		var entry models.ProcessedResult
		if err := cursor.Decode(&entry); err != nil {
			mcs.logger.Warn("cannot decode cache entry", zap.Error(err))
			continue
		}
		mcs.l1Cache.Add(entry.Fingerprint, &entry)
		count++
	}
	mcs.logger.Info("cache warm up done", zap.Int("loaded", count), zap.Int("l1_size", mcs.l1Cache.Len()))
	return cursor.Err()
}
