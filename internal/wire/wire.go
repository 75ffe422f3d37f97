// Package wire assembles the lead-router services from configuration and a store.
package wire

import (
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/service"
)

// Services holds every domain service shared by the api, worker and leadctl binaries.
type Services struct {
	Sources      *domain.SourceRegistry
	Dispatcher   events.Dispatcher
	Directory    *service.AgentDirectory
	Rotation     *service.RotationState
	Engine       *service.AssignmentEngine
	Ingestion    *service.IngestionService
	Override     *service.OverrideService
	IdentitySync *service.IdentitySyncService
	Leads        *service.LeadService
	Notification *service.NotificationService
}

// Options carries the optional collaborators of Build.
type Options struct {
	Metrics *observability.Metrics
	Logger  *zap.Logger
	// Cache enables the Redis fast path for webhook redeliveries.
	Cache repository.IngestionCache
}

// RetryPolicy converts the assignment configuration.
func RetryPolicy(cfg config.AssignmentConfig) service.RetryPolicy {
	return service.RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Base:        cfg.BackoffBase(),
		Cap:         cfg.BackoffCap(),
	}
}

// Build wires services over store. Notification handlers are subscribed before it returns.
func Build(cfg config.AssignmentConfig, store repository.Store, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := RetryPolicy(cfg)
	sources := domain.NewSourceRegistry(cfg.Sources)
	dispatcher := events.NewInMemoryDispatcher()
	rotation := service.NewRotationState(store)

	engine := service.NewAssignmentEngine(service.AssignmentDependencies{
		Store:      store,
		Rotation:   rotation,
		Dispatcher: dispatcher,
		Metrics:    opts.Metrics,
		Logger:     logger.Named("assignment"),
		Retry:      retry,
	})

	notification := service.NewNotificationService(dispatcher, logger.Named("notification"))
	notification.RegisterHandlers()

	return &Services{
		Sources:    sources,
		Dispatcher: dispatcher,
		Directory:  service.NewAgentDirectory(store),
		Rotation:   rotation,
		Engine:     engine,
		Ingestion: service.NewIngestionService(service.IngestionDependencies{
			Engine:        engine,
			Sources:       sources,
			Store:         store,
			Cache:         opts.Cache,
			DefaultRegion: cfg.DefaultPhoneRegion,
			Logger:        logger.Named("ingestion"),
		}),
		Override: service.NewOverrideService(service.OverrideDependencies{
			Store:      store,
			Dispatcher: dispatcher,
			Metrics:    opts.Metrics,
			Logger:     logger.Named("override"),
			Retry:      retry,
		}),
		IdentitySync: service.NewIdentitySyncService(service.IdentitySyncDependencies{
			Store:      store,
			Sources:    sources,
			Dispatcher: dispatcher,
			Metrics:    opts.Metrics,
			Logger:     logger.Named("identity"),
			Retry:      retry,
		}),
		Leads:        service.NewLeadService(store, logger.Named("leads")),
		Notification: notification,
	}
}
