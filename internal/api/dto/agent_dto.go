package dto

import (
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
)

// AgentProfileResponse lists an assignable agent.
type AgentProfileResponse struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
}

// NewAgentProfileResponse maps a profile.
func NewAgentProfileResponse(p domain.AgentProfile) AgentProfileResponse {
	return AgentProfileResponse{AgentID: p.ID, Name: p.Name, Email: p.Email}
}

// CursorResponse exposes a rotation cursor.
type CursorResponse struct {
	Source    string     `json:"source"`
	AgentID   string     `json:"agent_id"`
	Version   int64      `json:"version"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// NewCursorResponse maps a cursor.
func NewCursorResponse(c domain.RotationCursor) CursorResponse {
	resp := CursorResponse{Source: string(c.Source), AgentID: c.AgentID, Version: c.Version}
	if !c.UpdatedAt.IsZero() {
		updated := c.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// IdentityQueuedResponse acknowledges a queued identity update.
type IdentityQueuedResponse struct {
	TaskID  string `json:"task_id"`
	AgentID string `json:"agent_id"`
}
