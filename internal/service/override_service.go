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

// OverrideService assigns leads by hand. It never reads or moves rotation cursors.
type OverrideService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	retry      RetryPolicy
	now        func() time.Time
}

// OverrideDependencies bundles collaborators for OverrideService.
type OverrideDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Retry      RetryPolicy
}

// NewOverrideService creates the service.
func NewOverrideService(deps OverrideDependencies) *OverrideService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		retry:      deps.Retry.normalized(),
		now:        time.Now,
	}
}

// Reassign binds leadID to targetAgentID on behalf of actorID. The target must pass
// the same eligibility check as rotation, evaluated against fresh agent state.
// Reassigning to the current agent changes nothing but still writes an audit record.
func (s *OverrideService) Reassign(ctx context.Context, leadID, targetAgentID, actorID string) (*domain.AssignmentRecord, error) {
	leadID = strings.TrimSpace(leadID)
	targetAgentID = strings.TrimSpace(targetAgentID)
	if leadID == "" || targetAgentID == "" {
		return nil, apperrors.NewValidationError("lead id and agent id required", nil)
	}

	var (
		record *domain.AssignmentRecord
		lead   *domain.Lead
	)
	err := s.retry.Do(ctx, nil, func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(tx repository.Store) error {
			var err error
			lead, err = tx.Leads().GetForUpdate(ctx, leadID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.NewNotFound("lead", map[string]any{"lead_id": leadID})
				}
				return err
			}
			agent, err := tx.Agents().Get(ctx, targetAgentID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return apperrors.NewNotFound("agent", map[string]any{"agent_id": targetAgentID})
				}
				return err
			}
			if !agent.EligibleFor(lead.Source) {
				return apperrors.NewPermissionError("agent not eligible for lead source", map[string]any{
					"agent_id": targetAgentID,
					"source":   lead.Source,
				})
			}

			previous := lead.AssignedAgentID
			if previous == nil || *previous != targetAgentID || lead.AssignmentFailure != nil {
				lead.AssignedAgentID = &targetAgentID
				lead.AssignmentFailure = nil
				if err := tx.Leads().UpdateAssignment(ctx, lead); err != nil {
					return err
				}
			}

			actor := actorID
			record = &domain.AssignmentRecord{
				LeadID:          lead.ID,
				AgentID:         targetAgentID,
				PreviousAgentID: previous,
				Reason:          domain.AssignmentReasonManual,
			}
			if actor != "" {
				record.ActorID = &actor
			}
			return tx.Assignments().Append(ctx, record)
		})
	})
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, apperrors.NewPersistenceError(err)
	}

	s.metrics.RecordAssignment(string(lead.Source), string(domain.AssignmentReasonManual))
	s.logger.Info("lead reassigned",
		zap.String("lead_id", lead.ID),
		zap.String("agent_id", targetAgentID),
		zap.String("actor_id", actorID))

	if s.dispatcher != nil {
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventLeadReassigned,
			LeadID:    lead.ID,
			ActorID:   record.ActorID,
			Timestamp: s.now(),
			Payload: events.LeadAssignedPayload{
				Source:          lead.Source,
				AgentID:         targetAgentID,
				PreviousAgentID: record.PreviousAgentID,
				Reason:          domain.AssignmentReasonManual,
			},
		}
		if err := s.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
			s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
	return record, nil
}
