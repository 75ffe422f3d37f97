package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// Identity sync outcomes reported to metrics.
const (
	SyncApplied   = "applied"
	SyncUnchanged = "unchanged"
	SyncFailed    = "failed"
)

// IdentitySyncService applies agent updates pushed by the identity provider.
// Rotation cursors are never touched; eligibility changes take effect on the next read.
type IdentitySyncService struct {
	store      repository.Store
	sources    *domain.SourceRegistry
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	retry      RetryPolicy
	now        func() time.Time
}

// IdentitySyncDependencies bundles collaborators for IdentitySyncService.
type IdentitySyncDependencies struct {
	Store      repository.Store
	Sources    *domain.SourceRegistry
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Retry      RetryPolicy
}

// NewIdentitySyncService creates the service.
func NewIdentitySyncService(deps IdentitySyncDependencies) *IdentitySyncService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentitySyncService{
		store:      deps.Store,
		sources:    deps.Sources,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		retry:      deps.Retry.normalized(),
		now:        time.Now,
	}
}

// Validate checks an update before it is queued or applied.
func (s *IdentitySyncService) Validate(update domain.AgentUpdate) error {
	details := map[string]any{}
	if strings.TrimSpace(update.AgentID) == "" {
		details["agent_id"] = "required"
	}
	if update.Role != nil && !update.Role.Valid() {
		details["role"] = "unknown role"
	}
	if s.sources != nil {
		for _, source := range update.Sources {
			if !s.sources.Known(source) {
				details["sources"] = "unknown source " + string(source)
				break
			}
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid agent update", details)
	}
	return nil
}

// Apply upserts the agent described by update. On a version conflict the agent is
// re-read and only the fields carried by update are applied again, so concurrent
// updates touching different fields both survive.
func (s *IdentitySyncService) Apply(ctx context.Context, update domain.AgentUpdate) (*domain.Agent, error) {
	update.AgentID = strings.TrimSpace(update.AgentID)
	if err := s.Validate(update); err != nil {
		s.metrics.RecordAgentSync(SyncFailed)
		return nil, err
	}

	var (
		saved   domain.Agent
		changed bool
	)
	err := s.retry.Do(ctx, func(attempt int, err error) {
		s.logger.Debug("agent sync retried", zap.String("agent_id", update.AgentID), zap.Int("attempt", attempt), zap.Error(err))
	}, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			current, err := tx.Agents().Get(ctx, update.AgentID)
			if errors.Is(err, repository.ErrNotFound) {
				current, err = nil, nil
			}
			if err != nil {
				return err
			}

			next, diff := update.ApplyTo(current)
			changed = diff
			if !diff {
				saved = next
				return nil
			}
			var expected int64
			if current != nil {
				expected = current.Version
			}
			if err := tx.Agents().Save(ctx, &next, expected); err != nil {
				return err
			}
			saved = next
			return nil
		})
	})
	if err != nil {
		s.metrics.RecordAgentSync(SyncFailed)
		s.logger.Error("agent sync failed", zap.String("agent_id", update.AgentID), zap.Error(err))
		return nil, apperrors.NewPersistenceError(err)
	}

	if !changed {
		s.metrics.RecordAgentSync(SyncUnchanged)
		return &saved, nil
	}

	s.metrics.RecordAgentSync(SyncApplied)
	s.logger.Info("agent synced",
		zap.String("agent_id", saved.ID),
		zap.Int64("version", saved.Version),
		zap.Bool("active", saved.Active),
		zap.String("role", string(saved.Role)))
	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventAgentSynced,
			Timestamp: s.now(),
			Payload:   events.AgentSyncedPayload{AgentID: saved.ID, Version: saved.Version, Active: saved.Active},
		}
		if err := s.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
			s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return &saved, nil
}
