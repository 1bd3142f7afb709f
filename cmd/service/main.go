package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agrisight/prediction-service/internal/alerts"
	"github.com/agrisight/prediction-service/internal/circuitbreaker"
	"github.com/agrisight/prediction-service/internal/client"
	"github.com/agrisight/prediction-service/internal/config"
	"github.com/agrisight/prediction-service/internal/domain"
	"github.com/agrisight/prediction-service/internal/forecast"
	"github.com/agrisight/prediction-service/internal/httpapi"
	"github.com/agrisight/prediction-service/internal/lifecycle"
	"github.com/agrisight/prediction-service/internal/observability"
	"github.com/agrisight/prediction-service/internal/orchestrator"
	"github.com/agrisight/prediction-service/internal/predcache"
	"github.com/agrisight/prediction-service/internal/scheduler"
	"github.com/agrisight/prediction-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	clock := clockwork.NewRealClock()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var obsStore store.Store
	var redisCloser *store.RedisStore
	switch cfg.StoreBackend {
	case "redis":
		rs, err := store.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis store", zap.Error(err))
		}
		redisCloser = rs
		obsStore = rs
		logger.Info("store backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		obsStore = store.NewMemoryStore()
		logger.Info("store backend: in_memory")
	}

	var cacheSvc predcache.Cache
	var memcacheCloser *predcache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := predcache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, clock)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = predcache.NewInMemoryCache(clock)
		logger.Info("cache backend: in_memory")
	}

	var provider client.SnapshotProvider
	if cfg.ProviderURL != "" {
		breaker := circuitbreaker.New(circuitbreaker.Config{
			Clock: clock,
			OnStateChange: func(from, to circuitbreaker.State) {
				logger.Warn("provider circuit transition",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		})
		p, err := client.NewHTTPProvider(cfg.ProviderAPIKey, cfg.ProviderURL, client.Options{
			Timeout:       cfg.ProviderTimeout,
			RetryAttempts: cfg.ProviderRetries,
			BaseDelay:     cfg.ProviderBaseDelay,
			MaxDelay:      cfg.ProviderMaxDelay,
			Breaker:       breaker,
		})
		if err != nil {
			logger.Fatal("snapshot provider", zap.Error(err))
		}
		provider = p
		logger.Info("snapshot provider enabled", zap.String("url", cfg.ProviderURL))
	} else {
		logger.Info("snapshot provider disabled; forecasting from stored history only")
	}

	forecaster := forecast.NewService(forecast.Config{
		Horizon:      cfg.HorizonDays,
		MinHistory:   cfg.MinHistoryDays,
		Strategy:     cfg.EnsembleStrategy,
		Weights:      cfg.EnsembleWeights,
		Seed:         cfg.ModelSeed,
		ModelVersion: cfg.ModelVersion,
	}, clock, logger)

	orch := orchestrator.New(orchestrator.Config{
		CacheValidity: cfg.CacheValidity,
		ModelVersion:  cfg.ModelVersion,
	}, orchestrator.Deps{
		Store:      obsStore,
		Cache:      cacheSvc,
		Forecaster: forecaster,
		Alerts:     alerts.NewPredictor(clock, logger),
		Crop:       domain.NewCropPredictor(logger),
		Soil:       domain.NewSoilPredictor(logger),
		Irrigation: domain.NewIrrigationPredictor(clock.Now, logger),
		Energy:     domain.NewEnergyPredictor(logger),
		Provider:   provider,
		Clock:      clock,
		Logger:     logger,
	})

	sched := scheduler.New(scheduler.Config{
		RefreshInterval:  cfg.RefreshInterval,
		RetrainInterval:  cfg.RetrainInterval,
		RefreshBatchSize: cfg.RefreshBatchSize,
		RefreshDelay:     cfg.RefreshDelay,
		RetrainWindow:    cfg.RetrainWindow,
		RetrainMinPoints: cfg.RetrainMinPoints,
		TrackedLocations: cfg.TrackedLocations,
	}, orch, obsStore, clock, logger)
	sched.Start()

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	shutdownFlag := &lifecycle.Flag{}
	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httpapi.NewHandler(orch, shutdownFlag, cachePing, logger)
	router := httpapi.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownFlag.SetShuttingDown(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	sched.Stop()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if redisCloser != nil {
		if err := redisCloser.Close(); err != nil {
			logger.Error("redis close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
