package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch_backend/internal/email"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet"
	"dispatch_backend/internal/fleet/agent"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/notification"
	"dispatch_backend/internal/scheduler"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/db"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting worker", "env", cfg.Env)

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

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	changeFeed := repository.NewChangeFeed(rdb)
	store := repository.WithChangeFeed(repository.NewPostgresStore(pool), changeFeed, log)
	policy := cfg.GetDispatchPolicy()

	fleetModule := fleet.NewModule(fleet.Deps{
		Store:         store,
		Gateway:       gateway,
		Redis:         rdb,
		EventBus:      eventBus,
		Policy:        policy,
		PublicBaseURL: cfg.GetAppBaseURL(),
		Validator:     validator.New(),
		Logger:        log,
	})

	notificationModule := notification.New(store, email.NewSender(cfg), log)
	notificationModule.RegisterHandlers(eventBus, notification.NewRelay(rdb, log))

	worker, err := scheduler.NewWorker(cfg, fleetModule.Recurring, fleetModule.Assignment, policy, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, policy, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})
	g.Go(func() error { return periodic.Run(gctx) })
	g.Go(func() error { return fleetModule.Risk.Run(gctx) })
	if policy.ProactiveHighPriority {
		watcher := scheduler.NewProactiveWatcher(changeFeed, store, fleetModule.Assignment, log)
		g.Go(func() error { return watcher.Run(gctx) })
	} else {
		log.Info("proactive proposals disabled by policy")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("worker stopped", "error", err)
		panic("worker stopped: " + err.Error())
	}
	log.Info("worker stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
