package db

import (
	"context"
	"crypto/tls"
	"time"

	"dispatch_backend/platform/config"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// NewRedis opens and pings a client for the alert set, proposal cache and
// change feed.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

// RedisHealth adapts a client to the readiness check.
type RedisHealth struct {
	Client *redis.Client
}

// Ping implements the readiness check.
func (h RedisHealth) Ping(ctx context.Context) error {
	return h.Client.Ping(ctx).Err()
}
