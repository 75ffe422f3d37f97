package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/config"
)

// Redis is the client behind the ingestion cache and the readiness probe,
// together with the key namespace of this deployment.
type Redis struct {
	Client    *redis.Client
	namespace string
}

// NewRedis builds the client and probes it once. An unreachable Redis is logged
// and tolerated: ingestion falls back to the leads table and readiness reports it.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if timeout := cfg.DialTimeout(); timeout > 0 {
		opts.DialTimeout = timeout
	}
	r := &Redis{Client: redis.NewClient(opts), namespace: cfg.KeyPrefix}

	probe := 5 * time.Second
	if opts.DialTimeout > 0 {
		probe = opts.DialTimeout + opts.DialTimeout/2
	}
	probeCtx, cancel := context.WithTimeout(ctx, probe)
	defer cancel()
	if err := r.Ping(probeCtx); err != nil {
		logger.Warn("redis unreachable; ingestion cache disabled until it recovers",
			zap.String("addr", cfg.Addr), zap.Error(err))
	} else {
		logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.String("namespace", r.Namespace()))
	}
	return r
}

// Namespace is the prefix for keys written by this deployment.
func (r *Redis) Namespace() string {
	if r == nil {
		return ""
	}
	return r.namespace
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
