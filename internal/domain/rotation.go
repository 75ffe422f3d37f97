package domain

import "time"

// RotationCursor is the persisted pointer to the last agent assigned a lead from a source.
// Version 0 with an empty AgentID means no assignment has happened yet.
type RotationCursor struct {
	Source    LeadSource
	AgentID   string
	Version   int64
	UpdatedAt time.Time
}

// NextAgent picks the agent following last in the ascending eligible list,
// wrapping past the end. An empty or no-longer-eligible last yields eligible[0].
func NextAgent(last string, eligible []string) (string, error) {
	if len(eligible) == 0 {
		return "", ErrNoEligibleAgents
	}
	if last == "" {
		return eligible[0], nil
	}
	for i, id := range eligible {
		if id == last {
			return eligible[(i+1)%len(eligible)], nil
		}
	}
	return eligible[0], nil
}
