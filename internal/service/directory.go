package service

import (
	"context"
	"slices"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
)

// AgentDirectory answers which agents may receive leads for a source.
type AgentDirectory struct {
	store repository.Store
}

// NewAgentDirectory creates the directory.
func NewAgentDirectory(store repository.Store) *AgentDirectory {
	return &AgentDirectory{store: store}
}

// EligibleAgents returns the ids of active agent-role agents permitted on source,
// in ascending id order. An empty slice means nobody qualifies.
func (d *AgentDirectory) EligibleAgents(ctx context.Context, source domain.LeadSource) ([]string, error) {
	agents, err := eligibleAgents(ctx, d.store.Agents(), source)
	if err != nil {
		return nil, err
	}
	return agentIDs(agents), nil
}

// EligibleAgentProfiles returns the same agents as EligibleAgents with contact details.
func (d *AgentDirectory) EligibleAgentProfiles(ctx context.Context, source domain.LeadSource) ([]domain.AgentProfile, error) {
	agents, err := eligibleAgents(ctx, d.store.Agents(), source)
	if err != nil {
		return nil, err
	}
	profiles := make([]domain.AgentProfile, 0, len(agents))
	for _, a := range agents {
		profiles = append(profiles, domain.AgentProfile{ID: a.ID, Name: a.Name, Email: a.Email})
	}
	return profiles, nil
}

// eligibleAgents re-applies EligibleFor on top of the repository filter and sorts by id,
// so the order is a total order regardless of backend collation.
func eligibleAgents(ctx context.Context, agents repository.AgentRepository, source domain.LeadSource) ([]domain.Agent, error) {
	candidates, err := agents.ListEligible(ctx, source)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Agent, 0, len(candidates))
	for i := range candidates {
		if candidates[i].EligibleFor(source) {
			result = append(result, candidates[i])
		}
	}
	slices.SortFunc(result, func(a, b domain.Agent) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return result, nil
}

func agentIDs(agents []domain.Agent) []string {
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	return ids
}
