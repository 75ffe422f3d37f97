package domain

import (
	"fmt"
	"time"
)

// LeadStatus enumerates the lead lifecycle states.
type LeadStatus string

const (
	LeadStatusNew           LeadStatus = "new"
	LeadStatusContacted     LeadStatus = "contacted"
	LeadStatusQualified     LeadStatus = "qualified"
	LeadStatusNotInterested LeadStatus = "not_interested"
)

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:       {LeadStatusContacted},
	LeadStatusContacted: {LeadStatusQualified, LeadStatusNotInterested},
}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusQualified, LeadStatusNotInterested:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusQualified || s == LeadStatusNotInterested
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s LeadStatus) CanTransitionTo(next LeadStatus) bool {
	for _, allowed := range leadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AssignmentFailureNoEligibleAgents marks a lead stored without an assignee.
const AssignmentFailureNoEligibleAgents = "no_eligible_agents"

// Lead is an inbound sales inquiry tied to one marketing source.
type Lead struct {
	ID                string
	Source            LeadSource
	ExternalRef       *string
	FullName          string
	Email             string
	Phone             string
	Status            LeadStatus
	AssignedAgentID   *string
	AssignmentFailure *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Assigned reports whether the lead currently has an assignee.
func (l *Lead) Assigned() bool {
	return l.AssignedAgentID != nil && *l.AssignedAgentID != ""
}

// TransitionTo moves the lead to next or returns ErrInvalidTransition.
func (l *Lead) TransitionTo(next LeadStatus) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, next)
	}
	l.Status = next
	return nil
}

// LeadNote is a free-text note owned by a lead.
type LeadNote struct {
	ID        string
	LeadID    string
	AuthorID  *string
	Content   string
	CreatedAt time.Time
}
