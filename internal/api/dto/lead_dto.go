package dto

import (
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/service"
)

// AssignmentResponse is returned by the webhook endpoint.
type AssignmentResponse struct {
	LeadID          string  `json:"lead_id"`
	AssignedAgentID *string `json:"assigned_agent_id"`
	Status          string  `json:"status"`
	Duplicate       bool    `json:"duplicate,omitempty"`
	Warning         string  `json:"warning,omitempty"`
}

// NewAssignmentResponse maps an engine result.
func NewAssignmentResponse(res *service.AssignmentResult) AssignmentResponse {
	return AssignmentResponse{
		LeadID:          res.LeadID,
		AssignedAgentID: res.AssignedAgentID,
		Status:          string(res.Status),
		Duplicate:       res.Duplicate,
	}
}

// ReassignRequest payload.
type ReassignRequest struct {
	AgentID string `json:"agent_id"`
}

// StatusUpdateRequest payload.
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// NoteRequest payload.
type NoteRequest struct {
	Content string `json:"content"`
}

// LeadSummary is the admin view of a lead.
type LeadSummary struct {
	ID                string     `json:"id"`
	Source            string     `json:"source"`
	ExternalRef       *string    `json:"external_ref,omitempty"`
	FullName          string     `json:"full_name"`
	Email             string     `json:"email,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	Status            string     `json:"status"`
	AssignedAgentID   *string    `json:"assigned_agent_id"`
	AssignmentFailure *string    `json:"assignment_failure,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// NewLeadSummary maps a lead.
func NewLeadSummary(l *domain.Lead) LeadSummary {
	summary := LeadSummary{
		ID:                l.ID,
		Source:            string(l.Source),
		ExternalRef:       l.ExternalRef,
		FullName:          l.FullName,
		Email:             l.Email,
		Phone:             l.Phone,
		Status:            string(l.Status),
		AssignedAgentID:   l.AssignedAgentID,
		AssignmentFailure: l.AssignmentFailure,
		CreatedAt:         l.CreatedAt,
	}
	if !l.UpdatedAt.IsZero() {
		updated := l.UpdatedAt
		summary.UpdatedAt = &updated
	}
	return summary
}

// NoteResponse is a lead note.
type NoteResponse struct {
	ID        string    `json:"id"`
	AuthorID  *string   `json:"author_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewNoteResponse maps a note.
func NewNoteResponse(n *domain.LeadNote) NoteResponse {
	return NoteResponse{ID: n.ID, AuthorID: n.AuthorID, Content: n.Content, CreatedAt: n.CreatedAt}
}

// AssignmentRecordResponse is one audit entry.
type AssignmentRecordResponse struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	PreviousAgentID *string   `json:"previous_agent_id,omitempty"`
	ActorID         *string   `json:"actor_id,omitempty"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewAssignmentRecordResponse maps an audit entry.
func NewAssignmentRecordResponse(r *domain.AssignmentRecord) AssignmentRecordResponse {
	return AssignmentRecordResponse{
		ID:              r.ID,
		AgentID:         r.AgentID,
		PreviousAgentID: r.PreviousAgentID,
		ActorID:         r.ActorID,
		Reason:          string(r.Reason),
		CreatedAt:       r.CreatedAt,
	}
}
