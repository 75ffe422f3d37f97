// Package memory provides an in-process repository.Store. Transactions stage their
// writes and validate every version precondition again at commit, so concurrent
// callers observe the same optimistic conflicts they would against Postgres.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
)

// CommitHook runs right before a transaction commits; a non-nil error aborts the commit.
type CommitHook func(ctx context.Context) error

// Store keeps all state in maps guarded by a single mutex.
type Store struct {
	mu       sync.Mutex
	agents   map[string]domain.Agent
	leads    map[string]domain.Lead
	// leadRevs counts committed writes per lead; it stands in for row locks.
	leadRevs map[string]int64
	notes    map[string][]domain.LeadNote
	records  []domain.AssignmentRecord
	cursors  map[domain.LeadSource]domain.RotationCursor
	now      func() time.Time
	hook     CommitHook
	commits  int
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		agents:   make(map[string]domain.Agent),
		leads:    make(map[string]domain.Lead),
		leadRevs: make(map[string]int64),
		notes:    make(map[string][]domain.LeadNote),
		cursors:  make(map[domain.LeadSource]domain.RotationCursor),
		now:      time.Now,
	}
}

// SetCommitHook installs a hook invoked before every commit. Pass nil to remove it.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Commits returns the number of successfully committed transactions.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Records returns a snapshot of every assignment record in append order.
func (s *Store) Records() []domain.AssignmentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.records)
}

func (s *Store) Agents() repository.AgentRepository           { return agentRepo{&view{store: s}} }
func (s *Store) Leads() repository.LeadRepository             { return &view{store: s} }
func (s *Store) Assignments() repository.AssignmentRepository { return &view{store: s} }
func (s *Store) Cursors() repository.CursorRepository         { return cursorRepo{&view{store: s}} }

// WithinTx runs fn against a staged view and commits it atomically.
func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	tx := newTxn()
	if err := fn(&txStore{store: s, tx: tx}); err != nil {
		return err
	}
	return s.commit(ctx, tx)
}

type agentWrite struct {
	agent    domain.Agent
	expected int64
}

type cursorWrite struct {
	cursor   domain.RotationCursor
	expected int64
}

type txn struct {
	agents   map[string]agentWrite
	leads    map[string]domain.Lead
	// leadRevs holds the revision of every lead read for update or written.
	leadRevs map[string]int64
	created  map[string]bool
	notes    []domain.LeadNote
	records  []domain.AssignmentRecord
	cursors  map[domain.LeadSource]cursorWrite
}

func newTxn() *txn {
	return &txn{
		agents:   make(map[string]agentWrite),
		leads:    make(map[string]domain.Lead),
		leadRevs: make(map[string]int64),
		created:  make(map[string]bool),
		cursors:  make(map[domain.LeadSource]cursorWrite),
	}
}

func (s *Store) commit(ctx context.Context, tx *txn) error {
	s.mu.Lock()
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range tx.agents {
		if s.agents[id].Version != w.expected {
			return repository.ErrVersionConflict
		}
	}
	for source, w := range tx.cursors {
		if s.cursors[source].Version != w.expected {
			return repository.ErrVersionConflict
		}
	}
	for id, rev := range tx.leadRevs {
		if s.leadRevs[id] != rev {
			return repository.ErrVersionConflict
		}
	}
	for id := range tx.created {
		if _, exists := s.leads[id]; exists {
			return fmt.Errorf("%w: lead %s", repository.ErrDuplicate, id)
		}
		lead := tx.leads[id]
		if lead.ExternalRef != nil && s.findByExternalRef(lead.Source, *lead.ExternalRef) != nil {
			return fmt.Errorf("%w: external ref %s", repository.ErrDuplicate, *lead.ExternalRef)
		}
	}

	now := s.now()
	for id, w := range tx.agents {
		w.agent.UpdatedAt = now
		s.agents[id] = w.agent
	}
	for source, w := range tx.cursors {
		w.cursor.UpdatedAt = now
		s.cursors[source] = w.cursor
	}
	for id, lead := range tx.leads {
		s.leads[id] = lead
		s.leadRevs[id]++
	}
	for _, note := range tx.notes {
		s.notes[note.LeadID] = append(s.notes[note.LeadID], note)
	}
	s.records = append(s.records, tx.records...)
	s.commits++
	return nil
}

func (s *Store) findByExternalRef(source domain.LeadSource, ref string) *domain.Lead {
	for _, lead := range s.leads {
		if lead.Source == source && lead.ExternalRef != nil && *lead.ExternalRef == ref {
			l := lead
			return &l
		}
	}
	return nil
}

type txStore struct {
	store *Store
	tx    *txn
}

func (t *txStore) Agents() repository.AgentRepository { return agentRepo{&view{store: t.store, tx: t.tx}} }
func (t *txStore) Leads() repository.LeadRepository   { return &view{store: t.store, tx: t.tx} }
func (t *txStore) Assignments() repository.AssignmentRepository {
	return &view{store: t.store, tx: t.tx}
}
func (t *txStore) Cursors() repository.CursorRepository { return cursorRepo{&view{store: t.store, tx: t.tx}} }

func (t *txStore) WithinTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(t)
}

// view implements the lead and assignment repositories and backs the agent and
// cursor ones. Without a transaction each write is committed on its own.
type view struct {
	store *Store
	tx    *txn
}

type agentRepo struct{ *view }

type cursorRepo struct{ *view }

func (v *view) write(ctx context.Context, fn func(tx *txn) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	tx := newTxn()
	if err := fn(tx); err != nil {
		return err
	}
	return v.store.commit(ctx, tx)
}

func cloneAgent(a domain.Agent) domain.Agent {
	a.Sources = slices.Clone(a.Sources)
	return a
}

func (v *view) agent(id string) (domain.Agent, bool) {
	if v.tx != nil {
		if w, ok := v.tx.agents[id]; ok {
			return cloneAgent(w.agent), true
		}
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	a, ok := v.store.agents[id]
	return cloneAgent(a), ok
}

func (v agentRepo) Get(ctx context.Context, id string) (*domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a, ok := v.agent(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (v agentRepo) ListEligible(ctx context.Context, source domain.LeadSource) ([]domain.Agent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.store.mu.Lock()
	merged := make(map[string]domain.Agent, len(v.store.agents))
	for id, a := range v.store.agents {
		merged[id] = cloneAgent(a)
	}
	v.store.mu.Unlock()
	if v.tx != nil {
		for id, w := range v.tx.agents {
			merged[id] = cloneAgent(w.agent)
		}
	}

	var result []domain.Agent
	for _, a := range merged {
		if a.EligibleFor(source) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (v agentRepo) Save(ctx context.Context, agent *domain.Agent, expectedVersion int64) error {
	current, exists := v.agent(agent.ID)
	if exists && current.Version != expectedVersion || !exists && expectedVersion != 0 {
		return repository.ErrVersionConflict
	}
	if v.tx != nil {
		if _, staged := v.tx.agents[agent.ID]; staged {
			return repository.ErrVersionConflict
		}
	}
	next := cloneAgent(*agent)
	next.Sources = domain.NormalizeSources(next.Sources)
	next.Version = expectedVersion + 1
	if err := v.write(ctx, func(tx *txn) error {
		tx.agents[agent.ID] = agentWrite{agent: next, expected: expectedVersion}
		return nil
	}); err != nil {
		return err
	}
	agent.Version = next.Version
	agent.UpdatedAt = v.store.now()
	return nil
}

func (v *view) lead(id string) (domain.Lead, bool) {
	if v.tx != nil {
		if l, ok := v.tx.leads[id]; ok {
			return l, true
		}
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	l, ok := v.store.leads[id]
	return l, ok
}

func (v *view) Create(ctx context.Context, lead *domain.Lead) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.Status == "" {
		lead.Status = domain.LeadStatusNew
	}
	if _, exists := v.lead(lead.ID); exists {
		return fmt.Errorf("%w: lead %s", repository.ErrDuplicate, lead.ID)
	}
	if lead.ExternalRef != nil {
		if _, err := v.GetByExternalRef(ctx, lead.Source, *lead.ExternalRef); err == nil {
			return fmt.Errorf("%w: external ref %s", repository.ErrDuplicate, *lead.ExternalRef)
		}
	}
	now := v.store.now()
	lead.CreatedAt = now
	lead.UpdatedAt = now
	stored := *lead
	return v.write(ctx, func(tx *txn) error {
		tx.leads[stored.ID] = stored
		tx.created[stored.ID] = true
		return nil
	})
}

func (v *view) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l, ok := v.lead(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &l, nil
}

// GetForUpdate records the lead's committed revision in the transaction; commit
// fails with ErrVersionConflict if another writer got there first.
func (v *view) GetForUpdate(ctx context.Context, id string) (*domain.Lead, error) {
	lead, err := v.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.tx != nil {
		v.pin(v.tx, id)
	}
	return lead, nil
}

// pin remembers the committed revision of lead id the first time tx touches it.
func (v *view) pin(tx *txn, id string) {
	if _, ok := tx.leadRevs[id]; ok {
		return
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	tx.leadRevs[id] = v.store.leadRevs[id]
}

func (v *view) GetByExternalRef(ctx context.Context, source domain.LeadSource, ref string) (*domain.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.tx != nil {
		for _, l := range v.tx.leads {
			if l.Source == source && l.ExternalRef != nil && *l.ExternalRef == ref {
				lead := l
				return &lead, nil
			}
		}
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if l := v.store.findByExternalRef(source, ref); l != nil {
		return l, nil
	}
	return nil, repository.ErrNotFound
}

func (v *view) updateLead(ctx context.Context, lead *domain.Lead, apply func(stored *domain.Lead)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.tx != nil {
		v.pin(v.tx, lead.ID)
	}
	stored, ok := v.lead(lead.ID)
	if !ok {
		return repository.ErrNotFound
	}
	apply(&stored)
	stored.UpdatedAt = v.store.now()
	lead.UpdatedAt = stored.UpdatedAt
	return v.write(ctx, func(tx *txn) error {
		v.pin(tx, stored.ID)
		tx.leads[stored.ID] = stored
		return nil
	})
}

func (v *view) UpdateAssignment(ctx context.Context, lead *domain.Lead) error {
	return v.updateLead(ctx, lead, func(stored *domain.Lead) {
		stored.AssignedAgentID = lead.AssignedAgentID
		stored.AssignmentFailure = lead.AssignmentFailure
	})
}

func (v *view) UpdateStatus(ctx context.Context, lead *domain.Lead) error {
	return v.updateLead(ctx, lead, func(stored *domain.Lead) {
		stored.Status = lead.Status
	})
}

func (v *view) ListUnassigned(ctx context.Context, filter repository.LeadFilter) ([]domain.Lead, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.store.mu.Lock()
	var result []domain.Lead
	for _, l := range v.store.leads {
		if l.Assigned() {
			continue
		}
		if filter.Source != nil && l.Source != *filter.Source {
			continue
		}
		if filter.CreatedFrom != nil && l.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		result = append(result, l)
	}
	v.store.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := max(filter.Offset, 0)
	if offset >= len(result) {
		return nil, nil
	}
	return result[offset:min(offset+limit, len(result))], nil
}

func (v *view) AddNote(ctx context.Context, note *domain.LeadNote) error {
	if _, ok := v.lead(note.LeadID); !ok {
		return repository.ErrNotFound
	}
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.CreatedAt = v.store.now()
	stored := *note
	return v.write(ctx, func(tx *txn) error {
		tx.notes = append(tx.notes, stored)
		return nil
	})
}

func (v *view) ListNotes(ctx context.Context, leadID string) ([]domain.LeadNote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.store.mu.Lock()
	notes := slices.Clone(v.store.notes[leadID])
	v.store.mu.Unlock()
	if v.tx != nil {
		for _, n := range v.tx.notes {
			if n.LeadID == leadID {
				notes = append(notes, n)
			}
		}
	}
	return notes, nil
}

func (v *view) Append(ctx context.Context, record *domain.AssignmentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.CreatedAt = v.store.now()
	stored := *record
	return v.write(ctx, func(tx *txn) error {
		tx.records = append(tx.records, stored)
		return nil
	})
}

func (v *view) ListByLead(ctx context.Context, leadID string) ([]domain.AssignmentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result []domain.AssignmentRecord
	v.store.mu.Lock()
	for _, r := range v.store.records {
		if r.LeadID == leadID {
			result = append(result, r)
		}
	}
	v.store.mu.Unlock()
	if v.tx != nil {
		for _, r := range v.tx.records {
			if r.LeadID == leadID {
				result = append(result, r)
			}
		}
	}
	return result, nil
}

func (v *view) cursor(source domain.LeadSource) domain.RotationCursor {
	if v.tx != nil {
		if w, ok := v.tx.cursors[source]; ok {
			return w.cursor
		}
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	c, ok := v.store.cursors[source]
	if !ok {
		return domain.RotationCursor{Source: source}
	}
	return c
}

func (v cursorRepo) Get(ctx context.Context, source domain.LeadSource) (domain.RotationCursor, error) {
	if err := ctx.Err(); err != nil {
		return domain.RotationCursor{}, err
	}
	return v.cursor(source), nil
}

func (v cursorRepo) CompareAndSwap(ctx context.Context, source domain.LeadSource, expectedVersion int64, agentID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if v.tx != nil {
		if _, staged := v.tx.cursors[source]; staged {
			return 0, repository.ErrVersionConflict
		}
	}
	if v.cursor(source).Version != expectedVersion {
		return 0, repository.ErrVersionConflict
	}
	next := domain.RotationCursor{Source: source, AgentID: agentID, Version: expectedVersion + 1}
	err := v.write(ctx, func(tx *txn) error {
		tx.cursors[source] = cursorWrite{cursor: next, expected: expectedVersion}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next.Version, nil
}
