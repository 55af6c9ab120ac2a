package main

import (
	"context"

	"dispatch_backend/internal/email"
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet"
	"dispatch_backend/internal/fleet/agent"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/notification"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/db"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// env is the wiring one command needs. Close releases it after pending
// events are delivered.
type env struct {
	cfg   *config.Config
	log   *logger.Logger
	pool  *pgxpool.Pool
	rdb   *redis.Client
	bus   *events.InMemoryBus
	store repository.Store
	fleet *fleet.Module
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	log := logger.New(cfg.Env)

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	rdb, err := db.NewRedis(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}

	gateway, err := agent.FromConfig(cfg)
	if err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, errors.Wrap(err, "initialize AI gateway")
	}

	bus := events.NewInMemoryBus(log)
	store := repository.WithChangeFeed(repository.NewPostgresStore(pool), repository.NewChangeFeed(rdb), log)
	notification.New(store, email.NewSender(cfg), log).RegisterHandlers(bus, notification.NewRelay(rdb, log))

	return &env{
		cfg:   cfg,
		log:   log,
		pool:  pool,
		rdb:   rdb,
		bus:   bus,
		store: store,
		fleet: fleet.NewModule(fleet.Deps{
			Store:         store,
			Gateway:       gateway,
			Redis:         rdb,
			EventBus:      bus,
			Policy:        cfg.GetDispatchPolicy(),
			PublicBaseURL: cfg.GetAppBaseURL(),
			Validator:     validator.New(),
			Logger:        log,
		}),
	}, nil
}

func (e *env) Close() {
	e.bus.Wait()
	_ = e.rdb.Close()
	e.pool.Close()
}
