package domain

import (
	"slices"
	"time"
)

// AgentRole enumerates identity roles reported by the identity provider.
type AgentRole string

const (
	AgentRoleAgent           AgentRole = "agent"
	AgentRoleAdmin           AgentRole = "admin"
	AgentRoleCampaignManager AgentRole = "campaign_manager"
)

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleAgent, AgentRoleAdmin, AgentRoleCampaignManager:
		return true
	}
	return false
}

// CanAdminister reports whether the role may use administrative endpoints.
func (r AgentRole) CanAdminister() bool {
	return r == AgentRoleAdmin || r == AgentRoleCampaignManager
}

// Agent is a human user that can receive leads for the sources they are permitted on.
type Agent struct {
	ID        string
	Name      string
	Email     string
	Role      AgentRole
	Active    bool
	Sources   []LeadSource
	Version   int64
	UpdatedAt time.Time
}

// PermittedOn reports whether source is in the agent's permitted-source set.
func (a *Agent) PermittedOn(source LeadSource) bool {
	return slices.Contains(a.Sources, source)
}

// EligibleFor is the single predicate deciding rotation and manual assignment
// eligibility: active, role agent, permitted on source.
func (a *Agent) EligibleFor(source LeadSource) bool {
	if a == nil {
		return false
	}
	return a.Active && a.Role == AgentRoleAgent && a.PermittedOn(source)
}

// AgentProfile is the read model shown to administrators choosing an assignee.
type AgentProfile struct {
	ID    string
	Name  string
	Email string
}

// AgentUpdate is a partial agent state reported by the identity provider.
// Nil fields are left untouched when the update is applied.
type AgentUpdate struct {
	AgentID string       `json:"agent_id"`
	Name    *string      `json:"name,omitempty"`
	Email   *string      `json:"email,omitempty"`
	Role    *AgentRole   `json:"role,omitempty"`
	Active  *bool        `json:"active,omitempty"`
	Sources []LeadSource `json:"sources,omitempty"`
	// ReplaceSources distinguishes "set sources to empty" from "sources not reported".
	ReplaceSources bool `json:"replace_sources,omitempty"`
}

// ApplyTo merges the update onto a copy of current and reports whether anything changed.
// A nil current yields a new inactive agent with role agent unless the update says otherwise.
func (u AgentUpdate) ApplyTo(current *Agent) (Agent, bool) {
	var next Agent
	if current != nil {
		next = *current
		next.Sources = slices.Clone(current.Sources)
	} else {
		next = Agent{ID: u.AgentID, Role: AgentRoleAgent}
	}
	changed := current == nil

	if u.Name != nil && *u.Name != next.Name {
		next.Name = *u.Name
		changed = true
	}
	if u.Email != nil && *u.Email != next.Email {
		next.Email = *u.Email
		changed = true
	}
	if u.Role != nil && *u.Role != next.Role {
		next.Role = *u.Role
		changed = true
	}
	if u.Active != nil && *u.Active != next.Active {
		next.Active = *u.Active
		changed = true
	}
	if u.ReplaceSources || len(u.Sources) > 0 {
		sources := NormalizeSources(u.Sources)
		if !slices.Equal(sources, NormalizeSources(next.Sources)) {
			next.Sources = sources
			changed = true
		}
	}
	return next, changed
}

// NormalizeSources returns a sorted, de-duplicated copy of sources.
func NormalizeSources(sources []LeadSource) []LeadSource {
	out := slices.Clone(sources)
	slices.Sort(out)
	return slices.Compact(out)
}
