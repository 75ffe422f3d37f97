package service

import (
	"context"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
)

// RotationState advances the per-source rotation cursor.
type RotationState struct {
	store repository.Store
}

// NewRotationState creates the rotation state.
func NewRotationState(store repository.Store) *RotationState {
	return &RotationState{store: store}
}

// Advance performs one compare-and-swap step against cursors: it picks the agent
// after the stored cursor in eligible and stores it with version+1. A lost race
// returns repository.ErrVersionConflict and the caller must recompute eligible
// before trying again. An empty eligible list leaves the cursor untouched.
func (r *RotationState) Advance(ctx context.Context, cursors repository.CursorRepository, source domain.LeadSource, eligible []string) (string, int64, error) {
	if len(eligible) == 0 {
		return "", 0, domain.ErrNoEligibleAgents
	}
	cursor, err := cursors.Get(ctx, source)
	if err != nil {
		return "", 0, err
	}
	chosen, err := domain.NextAgent(cursor.AgentID, eligible)
	if err != nil {
		return "", 0, err
	}
	version, err := cursors.CompareAndSwap(ctx, source, cursor.Version, chosen)
	if err != nil {
		return "", 0, err
	}
	return chosen, version, nil
}

// Cursor returns the committed cursor for source.
func (r *RotationState) Cursor(ctx context.Context, source domain.LeadSource) (domain.RotationCursor, error) {
	return r.store.Cursors().Get(ctx, source)
}
