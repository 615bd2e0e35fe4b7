package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/invoice-parser/app/config"
	"github.com/invoice-parser/app/controllers"
	"github.com/invoice-parser/app/services"
	"github.com/invoice-parser/internal/processor"
	"github.com/invoice-parser/routes"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func main() {
	appCfg, err := config.LoadApp(getEnv("APP_CONFIG", "config/app.yaml"))
	if err != nil {
		log.Fatal("cannot read service config: ", err)
	}

	logger := initLogger(appCfg)
	defer func() { _ = logger.Sync() }()

	if err := config.Load(appCfg.EngineConfigPath); err != nil {
		logger.Warn("engine config not loaded, using defaults",
			zap.String("path", appCfg.EngineConfigPath), zap.Error(err))
	}

	engine, err := processor.New(config.C, logger.Named("engine"))
	if err != nil {
		logger.Fatal("cannot build engine", zap.Error(err))
	}

	var mongoDB *mongo.Database
	if appCfg.MongoURL != "" {
		mongoDB, err = initMongoDB(appCfg)
		if err != nil {
			logger.Warn("mongodb unavailable, running without persistent cache and review queue", zap.Error(err))
		} else {
			defer func() {
				if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
					logger.Error("mongodb disconnect failed", zap.Error(err))
				}
			}()
		}
	}

	cache := initCache(appCfg, mongoDB, logger)
	defer func() { _ = cache.Close() }()

	var reviews services.ReviewQueue
	if mongoDB != nil {
		reviews = services.NewReviewService(mongoDB, logger.Named("reviews"))
	}

	documentService := services.NewDocumentService(engine, cache, reviews, logger.Named("documents"))
	documentService.SetWorkers(appCfg.BatchWorkers)
	adminService := services.NewAdminService(documentService, reviews, logger.Named("admin"))

	if appCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupAllRoutes(router,
		controllers.NewDocumentController(documentService, logger),
		controllers.NewAdminController(adminService, logger),
		logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + appCfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("invoice parser service starting", zap.String("port", appCfg.Port), zap.String("env", appCfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	logger.Info("server exited")
}

func initLogger(cfg config.AppCfg) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	if cfg.IsProduction() {
		zc = zap.NewProductionConfig()
	}
	logger, err := zc.Build()
	if err != nil {
		log.Fatal("cannot initialize logger: ", err)
	}
	return logger
}

func initMongoDB(cfg config.AppCfg) (*mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURL))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client.Database(cfg.MongoDatabase), nil
}

// initCache picks the richest cache the environment supports: Redis in
// front of MongoDB, either one alone, or memory
func initCache(cfg config.AppCfg, db *mongo.Database, logger *zap.Logger) services.ICacheService {
	var fast, persistent services.ICacheService

	if cfg.RedisURL != "" {
		redisCache, err := services.NewRedisCacheService(cfg.RedisURL, cfg.RedisTTL, logger.Named("redis"))
		if err != nil {
			logger.Warn("redis unavailable", zap.Error(err))
		} else {
			fast = redisCache
		}
	}
	if db != nil {
		mongoCache, err := services.NewMongoCacheService(db, cfg.L1Size, logger.Named("mongo_cache"))
		if err != nil {
			logger.Warn("mongo cache unavailable", zap.Error(err))
		} else {
			if err := mongoCache.WarmUp(context.Background(), cfg.L1Size/2); err != nil {
				logger.Warn("cache warm up failed", zap.Error(err))
			}
			persistent = mongoCache
		}
	}

	switch {
	case fast != nil && persistent != nil:
		logger.Info("using hybrid cache (redis + mongodb)")
		return services.NewHybridCacheService(fast, persistent, logger.Named("cache"))
	case fast != nil:
		logger.Info("using redis cache")
		return fast
	case persistent != nil:
		logger.Info("using mongodb cache")
		return persistent
	}
	logger.Info("using in-memory cache")
	memory := services.NewCacheService(cfg.L1Size, cfg.RedisTTL)
	memory.StartCleanupWorker(10 * time.Minute)
	return memory
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
