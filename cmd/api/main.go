package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch_backend/internal/email"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet"
	"dispatch_backend/internal/fleet/agent"
	"dispatch_backend/internal/fleet/repository"
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/internal/http/router"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/db"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var rdb *redis.Client
	if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
		c, err := db.NewRedis(ctx, cfg)
		if err != nil {
			return err
		}
		rdb = c
		return nil
	}); err != nil {
		log.Error("failed to connect to redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	gateway, err := agent.FromConfig(cfg)
	if err != nil {
		log.Error("failed to initialize AI gateway", "error", err)
		panic("failed to initialize AI gateway: " + err.Error())
	}
	if !cfg.IsAIEnabled() {
		log.Warn("AI_API_KEY not configured; suggestions disabled")
	}

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	store := repository.WithChangeFeed(repository.NewPostgresStore(pool), repository.NewChangeFeed(rdb), log)

	fleetModule := fleet.NewModule(fleet.Deps{
		Store:         store,
		Gateway:       gateway,
		Redis:         rdb,
		EventBus:      eventBus,
		Policy:        cfg.GetDispatchPolicy(),
		PublicBaseURL: cfg.GetAppBaseURL(),
		Validator:     validator.New(),
		Logger:        log,
	})

	notificationModule := notification.New(store, email.NewSender(cfg), log)
	relay := notification.NewRelay(rdb, log)
	notificationModule.RegisterHandlers(eventBus, relay)

	// Events from every process reach the dispatch boards through Redis.
	go func() {
		if err := relay.Forward(ctx, notificationModule.SSE()); err != nil {
			log.Error("event relay stopped", "error", err)
		}
	}()

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   []apphttp.HealthChecker{pool, db.RedisHealth{Client: rdb}},
		EventBus: eventBus,
		Modules: []apphttp.Module{
			fleetModule,
			notificationModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		// Streams never finish on their own.
		notificationModule.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
