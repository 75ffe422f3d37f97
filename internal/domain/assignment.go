package domain

import "time"

// AssignmentReason records why a lead was bound to an agent.
type AssignmentReason string

const (
	AssignmentReasonRotation AssignmentReason = "rotation"
	AssignmentReasonManual   AssignmentReason = "manual"
)

// AssignmentRecord is an append-only audit entry for a lead-to-agent binding.
type AssignmentRecord struct {
	ID              string
	LeadID          string
	AgentID         string
	PreviousAgentID *string
	ActorID         *string
	Reason          AssignmentReason
	CreatedAt       time.Time
}
