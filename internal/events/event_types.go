package events

import (
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLeadAssigned   EventType = "lead_assigned"
	EventLeadUnassigned EventType = "lead_unassigned"
	EventLeadReassigned EventType = "lead_reassigned"
	EventAgentSynced    EventType = "agent_synced"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	LeadID    string      `json:"lead_id,omitempty"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// LeadAssignedPayload payload.
type LeadAssignedPayload struct {
	Source          domain.LeadSource       `json:"source"`
	AgentID         string                  `json:"agent_id"`
	PreviousAgentID *string                 `json:"previous_agent_id,omitempty"`
	Reason          domain.AssignmentReason `json:"reason"`
	CursorVersion   int64                   `json:"cursor_version,omitempty"`
}

// LeadUnassignedPayload payload.
type LeadUnassignedPayload struct {
	Source  domain.LeadSource `json:"source"`
	Failure string            `json:"failure"`
}

// AgentSyncedPayload payload.
type AgentSyncedPayload struct {
	AgentID string `json:"agent_id"`
	Version int64  `json:"version"`
	Active  bool   `json:"active"`
}
