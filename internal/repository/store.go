package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/lead-router/internal/domain"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an optimistic compare-and-swap lost a race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique key (lead source + external ref) already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrTransient wraps storage failures worth retrying: lock timeouts,
	// serialization failures, deadlocks and dropped connections.
	ErrTransient = errors.New("transient storage failure")
)

// Retryable reports whether err should cause the whole unit of work to be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrDuplicate) || errors.Is(err, ErrTransient)
}

// AgentRepository persists the agent directory.
type AgentRepository interface {
	Get(ctx context.Context, id string) (*domain.Agent, error)
	// ListEligible returns agents that are active, role agent and permitted on source.
	ListEligible(ctx context.Context, source domain.LeadSource) ([]domain.Agent, error)
	// Save inserts (expectedVersion 0) or updates the agent and its permitted sources
	// when the stored version equals expectedVersion. On success agent.Version is the new version.
	Save(ctx context.Context, agent *domain.Agent, expectedVersion int64) error
}

// LeadFilter narrows lead listings.
type LeadFilter struct {
	Source        *domain.LeadSource
	AssignedAgent *string
	CreatedFrom   *time.Time
	Limit         int
	Offset        int
}

// LeadRepository persists leads and their notes.
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id string) (*domain.Lead, error)
	// GetForUpdate loads the lead and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Lead, error)
	GetByExternalRef(ctx context.Context, source domain.LeadSource, ref string) (*domain.Lead, error)
	UpdateAssignment(ctx context.Context, lead *domain.Lead) error
	UpdateStatus(ctx context.Context, lead *domain.Lead) error
	ListUnassigned(ctx context.Context, filter LeadFilter) ([]domain.Lead, error)
	AddNote(ctx context.Context, note *domain.LeadNote) error
	ListNotes(ctx context.Context, leadID string) ([]domain.LeadNote, error)
}

// AssignmentRepository stores the append-only assignment audit trail.
type AssignmentRepository interface {
	Append(ctx context.Context, record *domain.AssignmentRecord) error
	ListByLead(ctx context.Context, leadID string) ([]domain.AssignmentRecord, error)
}

// CursorRepository persists one rotation cursor per lead source.
type CursorRepository interface {
	// Get returns the cursor for source; a never-advanced source yields version 0.
	Get(ctx context.Context, source domain.LeadSource) (domain.RotationCursor, error)
	// CompareAndSwap stores agentID when the current version equals expectedVersion
	// and returns the new version, or ErrVersionConflict.
	CompareAndSwap(ctx context.Context, source domain.LeadSource, expectedVersion int64, agentID string) (int64, error)
}

// Store groups repositories that can take part in one unit of work.
type Store interface {
	Agents() AgentRepository
	Leads() LeadRepository
	Assignments() AssignmentRepository
	Cursors() CursorRepository
	// WithinTx runs fn against a transactional view of the store. Returning an error
	// from fn, or a cancelled ctx, rolls back every write made through the view.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}
