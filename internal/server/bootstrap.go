package server

import (
	"context"
	"fmt"
	"time"

	"github.com/devtoolspro/gateway/internal/analytics"
	"github.com/devtoolspro/gateway/internal/cache"
	"github.com/devtoolspro/gateway/internal/config"
	"github.com/devtoolspro/gateway/internal/database"
	"github.com/devtoolspro/gateway/internal/license"
	"github.com/devtoolspro/gateway/internal/middleware"
	"github.com/devtoolspro/gateway/internal/ratelimit"
	"github.com/devtoolspro/gateway/internal/repository"
	"github.com/devtoolspro/gateway/pkg/logger"
)

const (
	connectTimeout  = 10 * time.Second
	rateLimitPrefix = "ratelimit:"
)

var newMemoryStore = func(sweep time.Duration) ratelimit.Store {
	return ratelimit.NewMemoryStore(sweep)
}

// Bootstrap connects the configured backing services and builds a Server
// over them. PostgreSQL and Redis are optional: without PostgreSQL license
// checks are not audited and usage counts are logged, without Redis license
// results are cached in memory and rate limits are per process.
func Bootstrap(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	var (
		opts        []Option
		closers     []func() error
		failClosers []func() error
	)
	fail := func(err error) (*Server, error) {
		for i := len(failClosers) - 1; i >= 0; i-- {
			_ = failClosers[i]()
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	var licenseCache cache.Cache = cache.NewMemoryCache()
	if cfg.RedisEnabled() {
		rc, err := cache.NewRedisCache(connectCtx, &cfg.Redis)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, rc.Close)
		licenseCache = rc
		opts = append(opts, WithReadyCheck("redis", rc.Ping))
		log.Info("connected to redis", "address", cfg.Redis.Address())
	}

	switch cfg.Rate.Store {
	case "redis":
		rc, ok := licenseCache.(*cache.RedisCache)
		if !ok {
			return fail(fmt.Errorf("rate limit store %q requires REDIS_HOST", cfg.Rate.Store))
		}
		opts = append(opts, WithRateStore(ratelimit.NewRedisStore(rc.Client(), rateLimitPrefix)))
	default:
		store := newMemoryStore(cfg.Rate.SweepInterval)
		opts = append(opts, WithRateStore(store))
		// Once the server exists its limiter owns the store.
		failClosers = append(failClosers, store.Close)
	}

	var (
		recorder license.Recorder
		flusher  analytics.Flusher = analytics.NewLogFlusher(log)
	)
	if cfg.DatabaseEnabled() {
		pool, err := database.NewPool(connectCtx, &cfg.Database)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() error {
			pool.Close()
			return nil
		})
		recorder = repository.NewPostgresLicenseCheckRepository(pool)
		flusher = analytics.NewRepositoryFlusher(repository.NewPostgresUsageRepository(pool), log)
		opts = append(opts, WithReadyCheck("database", pool.HealthCheck))
		log.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.DBName)
	}

	lo := license.ConfigOptions(cfg)
	lo.Cache = licenseCache
	lo.Recorder = recorder
	lo.ClientIP = middleware.GetClientIP
	verifier := license.New(lo, log)
	closers = append(closers, func() error { return license.Close(verifier) })
	opts = append(opts, WithLicenseVerifier(verifier))

	if cfg.Analytics.Enabled {
		counter := analytics.NewUsageCounter(analytics.Config{
			FlushInterval: cfg.Analytics.FlushInterval,
			BatchSize:     cfg.Analytics.BatchSize,
			ChannelBuffer: cfg.Analytics.BufferSize,
		}, flusher)
		closers = append(closers, func() error {
			counter.Stop()
			if n := counter.Dropped(); n > 0 {
				log.Warn("usage counts dropped", "count", n)
			}
			return nil
		})
		opts = append(opts, WithUsageRecorder(counter))
	}

	if cfg.Billing.SecretKey == "" {
		log.Warn("stripe is not configured; subscription checks will fail closed")
	}

	for _, c := range closers {
		opts = append(opts, WithCloser(c))
	}

	return New(cfg, log, opts...), nil
}
