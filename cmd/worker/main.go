package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/persistence"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/wire"
	"github.com/spec-kit/lead-router/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.PoolHandle() == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}

	store := repository.NewPostgresStore(pg.PoolHandle(), cfg.Postgres.LockTimeout())
	services := wire.Build(cfg.Assignment, store, wire.Options{
		Metrics: observability.NewMetrics(),
		Logger:  logger,
	})

	identity := worker.NewIdentityWorker(cfg.Redis, cfg.Worker, services.IdentitySync, logger.Named("worker"))
	logger.Info("identity worker started", zap.String("queue", cfg.Worker.Queue), zap.Int("concurrency", cfg.Worker.Concurrency))
	if err := identity.Run(ctx); err != nil {
		logger.Fatal("identity worker stopped", zap.Error(err))
	}
	logger.Info("identity worker stopped")
}
