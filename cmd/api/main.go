package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/lead-router/internal/api/http"
	"github.com/spec-kit/lead-router/internal/api/http/handlers"
	"github.com/spec-kit/lead-router/internal/auth"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pg.PoolHandle() == nil {
		logger.Fatal("POSTGRES_DSN is required")
	}

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()
	store := repository.NewPostgresStore(pg.PoolHandle(), cfg.Postgres.LockTimeout())
	services := wire.Build(cfg.Assignment, store, wire.Options{
		Metrics: metrics,
		Logger:  logger,
		Cache:   repository.NewRedisIngestionCache(redis.Client, redis.Namespace(), cfg.Ingestion.DedupeTTL()),
	})

	identityQueue := worker.NewClient(cfg.Redis, cfg.Worker)
	defer identityQueue.Close() //nolint:errcheck

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	hashes := make(map[string]string, len(cfg.Ingestion.WebhookTokenHashes)+1)
	for source, hash := range cfg.Ingestion.WebhookTokenHashes {
		hashes[source] = hash
	}
	if cfg.Auth.IdentityTokenHash != "" {
		hashes["identity"] = cfg.Auth.IdentityTokenHash
	}
	for _, source := range services.Sources.All() {
		if _, ok := hashes[string(source)]; !ok {
			logger.Warn("no webhook token configured; deliveries will be rejected", zap.String("source", string(source)))
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, metrics),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Leads:  handlers.NewLeadsHandler(services.Ingestion),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Sources:   services.Sources,
			Directory: services.Directory,
			Rotation:  services.Rotation,
			Override:  services.Override,
			Leads:     services.Leads,
		}),
		Identity:       handlers.NewIdentityHandler(services.IdentitySync, identityQueue, logger),
		Metrics:        handlers.MetricsHandler(metrics.Registry()),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Agents()),
		WebhookTokens:  auth.NewTokenVerifier(hashes),
		IngestLimiter:  httptransport.NewSourceLimiter(cfg.Ingestion.RateLimitPerSecond, cfg.Ingestion.RateLimitBurst),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
