package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// LeadService exposes read and lifecycle operations on stored leads.
type LeadService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewLeadService creates the service.
func NewLeadService(store repository.Store, logger *zap.Logger) *LeadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LeadService{store: store, logger: logger}
}

// LeadDetail is a lead with its notes and assignment history.
type LeadDetail struct {
	Lead        domain.Lead
	Notes       []domain.LeadNote
	Assignments []domain.AssignmentRecord
}

// GetLead loads a lead with its notes and history.
func (s *LeadService) GetLead(ctx context.Context, leadID string) (*LeadDetail, error) {
	lead, err := s.store.Leads().GetByID(ctx, leadID)
	if err != nil {
		return nil, leadLookupError(leadID, err)
	}
	notes, err := s.store.Leads().ListNotes(ctx, leadID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	history, err := s.store.Assignments().ListByLead(ctx, leadID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &LeadDetail{Lead: *lead, Notes: notes, Assignments: history}, nil
}

// UpdateStatus moves a lead along new -> contacted -> qualified|not_interested.
// Assignment is untouched.
func (s *LeadService) UpdateStatus(ctx context.Context, leadID string, status domain.LeadStatus) (*domain.Lead, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": status})
	}
	var lead *domain.Lead
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		var err error
		lead, err = tx.Leads().GetForUpdate(ctx, leadID)
		if err != nil {
			return leadLookupError(leadID, err)
		}
		if err := lead.TransitionTo(status); err != nil {
			return apperrors.NewValidationError("invalid status transition", map[string]any{
				"from": lead.Status,
				"to":   status,
			})
		}
		return tx.Leads().UpdateStatus(ctx, lead)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("lead status updated", zap.String("lead_id", lead.ID), zap.String("status", string(lead.Status)))
	return lead, nil
}

// AddNote appends a note authored by authorID, which may be empty for system notes.
func (s *LeadService) AddNote(ctx context.Context, leadID, authorID, content string) (*domain.LeadNote, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.NewValidationError("note content required", nil)
	}
	note := &domain.LeadNote{LeadID: leadID, Content: content}
	if authorID != "" {
		note.AuthorID = &authorID
	}
	if err := s.store.Leads().AddNote(ctx, note); err != nil {
		return nil, leadLookupError(leadID, err)
	}
	return note, nil
}

// ListUnassigned returns leads stored without an assignee, oldest first.
func (s *LeadService) ListUnassigned(ctx context.Context, filter repository.LeadFilter) ([]domain.Lead, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	leads, err := s.store.Leads().ListUnassigned(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return leads, nil
}

// History returns the assignment audit trail of a lead in commit order.
func (s *LeadService) History(ctx context.Context, leadID string) ([]domain.AssignmentRecord, error) {
	if _, err := s.store.Leads().GetByID(ctx, leadID); err != nil {
		return nil, leadLookupError(leadID, err)
	}
	records, err := s.store.Assignments().ListByLead(ctx, leadID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return records, nil
}

func leadLookupError(leadID string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("lead", map[string]any{"lead_id": leadID})
	}
	return apperrors.MapError(err)
}
