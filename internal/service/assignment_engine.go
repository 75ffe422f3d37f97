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

// AssignmentEngine stores incoming leads and binds each one to the next agent in
// its source's rotation.
type AssignmentEngine struct {
	store      repository.Store
	rotation   *RotationState
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	retry      RetryPolicy
	now        func() time.Time
}

// AssignmentDependencies bundles collaborators for the engine.
type AssignmentDependencies struct {
	Store      repository.Store
	Rotation   *RotationState
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Retry      RetryPolicy
}

// NewLead is a validated, normalized inbound lead.
type NewLead struct {
	Source      domain.LeadSource
	ExternalRef *string
	FullName    string
	Email       string
	Phone       string
	Message     string
}

// AssignmentResult is returned to the ingestion caller.
type AssignmentResult struct {
	LeadID          string
	Source          domain.LeadSource
	AssignedAgentID *string
	Status          domain.LeadStatus
	CursorVersion   int64
	// Duplicate is set when the external reference was already ingested and the
	// stored lead is returned unchanged.
	Duplicate bool
}

// NewAssignmentEngine creates the engine.
func NewAssignmentEngine(deps AssignmentDependencies) *AssignmentEngine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rotation := deps.Rotation
	if rotation == nil {
		rotation = NewRotationState(deps.Store)
	}
	return &AssignmentEngine{
		store:      deps.Store,
		rotation:   rotation,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		retry:      deps.Retry.normalized(),
		now:        time.Now,
	}
}

// AssignLead persists lead and assigns it by rotation in a single unit of work:
// cursor advance, lead row and rotation AssignmentRecord commit together or not at all.
//
// When no agent is eligible the lead is still stored, unassigned, and the returned
// error matches domain.ErrNoEligibleAgents alongside a non-nil result. Conflicts and
// transient storage errors are retried; when retries run out, or ctx ends before
// commit, a PersistenceError is returned and nothing was written.
func (e *AssignmentEngine) AssignLead(ctx context.Context, input NewLead) (*AssignmentResult, error) {
	if strings.TrimSpace(string(input.Source)) == "" {
		return nil, apperrors.NewValidationError("source required", nil)
	}
	leadID := uuid.NewString()

	var result *AssignmentResult
	err := e.retry.Do(ctx, func(attempt int, err error) {
		e.metrics.RecordAssignmentRetry(string(input.Source))
		e.logger.Debug("assignment attempt retried",
			zap.String("source", string(input.Source)),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}, func(ctx context.Context) error {
		res, err := e.attempt(ctx, leadID, input)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		e.logger.Error("lead assignment failed",
			zap.String("source", string(input.Source)),
			zap.String("lead_id", leadID),
			zap.Error(err))
		return nil, apperrors.NewPersistenceError(err)
	}

	if result.Duplicate {
		e.logger.Info("duplicate lead delivery",
			zap.String("source", string(result.Source)),
			zap.String("lead_id", result.LeadID))
		if result.AssignedAgentID == nil {
			return result, apperrors.NewNoEligibleAgents(string(result.Source), result.LeadID)
		}
		return result, nil
	}

	if result.AssignedAgentID == nil {
		e.metrics.RecordUnassigned(string(result.Source))
		e.logger.Warn("lead stored without eligible agent",
			zap.String("source", string(result.Source)),
			zap.String("lead_id", result.LeadID))
		e.publish(ctx, events.EventLeadUnassigned, result.LeadID, events.LeadUnassignedPayload{
			Source:  result.Source,
			Failure: domain.AssignmentFailureNoEligibleAgents,
		})
		return result, apperrors.NewNoEligibleAgents(string(result.Source), result.LeadID)
	}

	e.metrics.RecordAssignment(string(result.Source), string(domain.AssignmentReasonRotation))
	e.logger.Info("lead assigned",
		zap.String("source", string(result.Source)),
		zap.String("lead_id", result.LeadID),
		zap.String("agent_id", *result.AssignedAgentID),
		zap.Int64("cursor_version", result.CursorVersion))
	e.publish(ctx, events.EventLeadAssigned, result.LeadID, events.LeadAssignedPayload{
		Source:        result.Source,
		AgentID:       *result.AssignedAgentID,
		Reason:        domain.AssignmentReasonRotation,
		CursorVersion: result.CursorVersion,
	})
	return result, nil
}

func (e *AssignmentEngine) attempt(ctx context.Context, leadID string, input NewLead) (*AssignmentResult, error) {
	var result *AssignmentResult
	err := e.store.WithinTx(ctx, func(tx repository.Store) error {
		if input.ExternalRef != nil {
			existing, err := tx.Leads().GetByExternalRef(ctx, input.Source, *input.ExternalRef)
			if err == nil {
				result = resultFromLead(existing)
				result.Duplicate = true
				return nil
			}
			if !errors.Is(err, repository.ErrNotFound) {
				return err
			}
		}

		eligible, err := eligibleAgents(ctx, tx.Agents(), input.Source)
		if err != nil {
			return err
		}

		lead := &domain.Lead{
			ID:          leadID,
			Source:      input.Source,
			ExternalRef: input.ExternalRef,
			FullName:    input.FullName,
			Email:       input.Email,
			Phone:       input.Phone,
			Status:      domain.LeadStatusNew,
		}

		agentID, version, err := e.rotation.Advance(ctx, tx.Cursors(), input.Source, agentIDs(eligible))
		switch {
		case errors.Is(err, domain.ErrNoEligibleAgents):
			failure := domain.AssignmentFailureNoEligibleAgents
			lead.AssignmentFailure = &failure
		case err != nil:
			return err
		default:
			lead.AssignedAgentID = &agentID
		}

		if err := tx.Leads().Create(ctx, lead); err != nil {
			return err
		}
		if msg := strings.TrimSpace(input.Message); msg != "" {
			if err := tx.Leads().AddNote(ctx, &domain.LeadNote{LeadID: lead.ID, Content: msg}); err != nil {
				return err
			}
		}
		if lead.AssignedAgentID != nil {
			if err := tx.Assignments().Append(ctx, &domain.AssignmentRecord{
				LeadID:  lead.ID,
				AgentID: agentID,
				Reason:  domain.AssignmentReasonRotation,
			}); err != nil {
				return err
			}
		}

		result = resultFromLead(lead)
		result.CursorVersion = version
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func resultFromLead(lead *domain.Lead) *AssignmentResult {
	return &AssignmentResult{
		LeadID:          lead.ID,
		Source:          lead.Source,
		AssignedAgentID: lead.AssignedAgentID,
		Status:          lead.Status,
	}
}

func (e *AssignmentEngine) publish(ctx context.Context, eventType events.EventType, leadID string, payload any) {
	if e.dispatcher == nil {
		return
	}
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		LeadID:    leadID,
		Timestamp: e.now(),
		Payload:   payload,
	}
	// The assignment is committed; subscriber failures must not undo it.
	if err := e.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("event handler failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
