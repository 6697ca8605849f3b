package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matrix-portfolio/portfolio-api/config"
	"github.com/matrix-portfolio/portfolio-api/db"
	"github.com/matrix-portfolio/portfolio-api/handlers"
	"github.com/matrix-portfolio/portfolio-api/internal/intake"
	"github.com/matrix-portfolio/portfolio-api/internal/store"
	badgerstore "github.com/matrix-portfolio/portfolio-api/internal/store/badger"
	mongostore "github.com/matrix-portfolio/portfolio-api/internal/store/mongo"
	"github.com/matrix-portfolio/portfolio-api/internal/store/postgres"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/matrix-portfolio/portfolio-api/router"
	"github.com/matrix-portfolio/portfolio-api/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// runServe starts the API and blocks until ctx is cancelled, then drains
// in-flight requests, queued notifications and the store in that order.
func runServe(ctx context.Context) error {
	log := logger.GetLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warnw("Failed to close store", "store", st.Name(), "error", err)
		}
	}()

	limiter, closeLimiter := newRateLimiter(cfg)
	defer closeLimiter()

	notifier := services.NewNotificationService(services.NewMailer(cfg.Email, prometheus.DefaultRegisterer), cfg.Email)
	notifier.VerifyOnStartup(ctx)

	pool := services.NewWorkerPool(cfg.WorkerPool)
	pool.Start()

	validator := intake.NewValidator(intake.MustContentPolicy(intake.DefaultDenyList))
	submissions := services.NewSubmissionService(validator, st, pool, notifier)
	health := services.NewHealthService(st, limiter, notifier, cfg.Server.Version)

	r := router.SetupRouter(router.Dependencies{
		Config:         cfg,
		RateLimiter:    limiter,
		ContactHandler: handlers.NewContactHandler(submissions),
		HealthHandler:  handlers.NewHealthHandler(health),
		SystemHandler:  handlers.NewSystemHandler(cfg.Server.Version, notifier),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("Server starting",
			"port", cfg.Server.Port,
			"environment", cfg.Server.Environment,
			"store", st.Name(),
			"rateLimiter", limiter.Name(),
			"emailEnabled", notifier.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			drainPool(pool, cfg.WorkerPool)
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.Server.ShutdownTimeoutSeconds, 10))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Server shutdown did not complete cleanly", "error", err)
	}

	drainPool(pool, cfg.WorkerPool)
	log.Info("Server stopped")
	return nil
}

func drainPool(pool *services.WorkerPool, cfg config.WorkerPoolConfig) {
	ctx, cancel := context.WithTimeout(context.Background(), seconds(cfg.ShutdownTimeoutSeconds, 30))
	defer cancel()
	if err := pool.Shutdown(ctx); err != nil {
		logger.GetLogger().Warnw("Notification pool did not drain", "error", err)
	}
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

// openStore connects the configured backend and fails if it is unreachable.
func openStore(ctx context.Context, cfg *config.Config) (store.SubmissionStore, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		s, err := mongostore.Connect(ctx, cfg.Store.MongoURI, cfg.Store.MongoDatabase, cfg.Store.MongoCollection,
			cfg.Store.ConnectTimeout(), cfg.Store.OpTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		return s, nil
	case config.StorePostgres:
		if err := db.RunMigrations(cfg.Database.URL()); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		s, err := postgres.Connect(ctx, cfg.Database.URL(), cfg.Database.MaxConnections,
			cfg.Store.ConnectTimeout(), cfg.Store.OpTimeout())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return s, nil
	case config.StoreBadger:
		s, err := badgerstore.Open(cfg.Store.BadgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// newRateLimiter returns the Redis limiter when an address is configured and
// the in-process limiter otherwise.
func newRateLimiter(cfg *config.Config) (services.RateLimiter, func()) {
	log := logger.GetLogger()
	if cfg.Redis.Address == "" {
		log.Info("No Redis address configured, using in-memory rate limiter")
		return services.NewMemoryRateLimiter(), func() {}
	}

	opts := &redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}
	if cfg.Redis.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	log.Infow("Using Redis rate limiter", "address", cfg.Redis.Address, "tls", cfg.Redis.UseTLS)
	return services.NewRedisRateLimiter(client), func() {
		if err := client.Close(); err != nil {
			log.Warnw("Failed to close Redis client", "error", err)
		}
	}
}
