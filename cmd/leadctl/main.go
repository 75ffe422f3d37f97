package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/cli"
	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/persistence"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(config.LoggerConfig{Level: "warn", Encoding: "console"})
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync() //nolint:errcheck

	connect := func(ctx context.Context) (*persistence.Postgres, error) {
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, err
		}
		if pg.PoolHandle() == nil {
			return nil, fmt.Errorf("POSTGRES_DSN is required")
		}
		return pg, nil
	}

	env := &cli.Env{
		Services: func(ctx context.Context) (*wire.Services, func(), error) {
			pg, err := connect(ctx)
			if err != nil {
				return nil, nil, err
			}
			store := repository.NewPostgresStore(pg.PoolHandle(), cfg.Postgres.LockTimeout())
			return wire.Build(cfg.Assignment, store, wire.Options{Logger: logger}), pg.Close, nil
		},
		Tokens: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		Migrate: func(ctx context.Context) error {
			pg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()
			return persistence.RunMigrations(ctx, pg.PoolHandle(), logger)
		},
	}

	if err := cli.NewRootCmd(env).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
