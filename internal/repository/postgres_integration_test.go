package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository/pgtest"
)

func newPostgresTestStore(t *testing.T) Store {
	t.Helper()
	return NewPostgresStore(pgtest.Open(t), 2*time.Second)
}

func saveAgent(t *testing.T, store Store, id string, role domain.AgentRole, active bool, sources ...domain.LeadSource) *domain.Agent {
	t.Helper()
	agent := &domain.Agent{ID: id, Name: "Agent " + id, Role: role, Active: active, Sources: sources}
	require.NoError(t, store.Agents().Save(context.Background(), agent, 0))
	return agent
}

func TestPostgresCursorCompareAndSwap(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()

	cursor, err := store.Cursors().Get(ctx, "aiquinto")
	require.NoError(t, err)
	require.Equal(t, int64(0), cursor.Version)
	require.Empty(t, cursor.AgentID)

	for _, expected := range []int64{0, 1} {
		t.Run(fmt.Sprintf("one winner from version %d", expected), func(t *testing.T) {
			var wins, conflicts atomic.Int32
			var g errgroup.Group
			for i := range 8 {
				g.Go(func() error {
					_, err := store.Cursors().CompareAndSwap(ctx, "aiquinto", expected, fmt.Sprintf("agent-%d", i))
					switch {
					case err == nil:
						wins.Add(1)
					case errors.Is(err, ErrVersionConflict):
						conflicts.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			require.Equal(t, int32(1), wins.Load())
			require.Equal(t, int32(7), conflicts.Load())

			cursor, err := store.Cursors().Get(ctx, "aiquinto")
			require.NoError(t, err)
			require.Equal(t, expected+1, cursor.Version)
		})
	}

	t.Run("sources are independent", func(t *testing.T) {
		version, err := store.Cursors().CompareAndSwap(ctx, "prestitionline", 0, "agent-0")
		require.NoError(t, err)
		require.Equal(t, int64(1), version)
	})
}

func TestPostgresAgentSave(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()

	agent := saveAgent(t, store, "A", domain.AgentRoleAgent, true, "aiquinto")
	require.Equal(t, int64(1), agent.Version)

	duplicate := &domain.Agent{ID: "A", Role: domain.AgentRoleAgent}
	require.ErrorIs(t, store.Agents().Save(ctx, duplicate, 0), ErrVersionConflict)

	agent.Sources = []domain.LeadSource{"cessionequinto", "prestitionline"}
	require.NoError(t, store.Agents().Save(ctx, agent, 1))
	require.Equal(t, int64(2), agent.Version)

	stale := &domain.Agent{ID: "A", Role: domain.AgentRoleAgent, Active: true, Sources: []domain.LeadSource{"aiquinto"}}
	require.ErrorIs(t, store.Agents().Save(ctx, stale, 1), ErrVersionConflict)

	stored, err := store.Agents().Get(ctx, "A")
	require.NoError(t, err)
	require.Equal(t, int64(2), stored.Version)
	require.Equal(t, []domain.LeadSource{"cessionequinto", "prestitionline"}, stored.Sources)

	_, err = store.Agents().Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresListEligibleOrder(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"b", "B", "a", "_x"} {
		saveAgent(t, store, id, domain.AgentRoleAgent, true, "aiquinto")
	}
	saveAgent(t, store, "0-admin", domain.AgentRoleAdmin, true, "aiquinto")
	saveAgent(t, store, "0-off", domain.AgentRoleAgent, false, "aiquinto")
	saveAgent(t, store, "0-other", domain.AgentRoleAgent, true, "prestitionline")

	agents, err := store.Agents().ListEligible(ctx, "aiquinto")
	require.NoError(t, err)
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		ids = append(ids, a.ID)
	}
	require.Equal(t, []string{"B", "_x", "a", "b"}, ids)
}

func TestPostgresAgentSourcesRewrite(t *testing.T) {
	ctx := context.Background()

	t.Run("readers never see a partial source set", func(t *testing.T) {
		store := newPostgresTestStore(t)
		saveAgent(t, store, "A", domain.AgentRoleAgent, true, "aiquinto")

		done := make(chan struct{})
		var g errgroup.Group
		g.Go(func() error {
			defer close(done)
			for i := range 50 {
				agent, err := store.Agents().Get(ctx, "A")
				if err != nil {
					return err
				}
				agent.Sources = []domain.LeadSource{"aiquinto"}
				if i%2 == 0 {
					agent.Sources = append(agent.Sources, "prestitionline")
				}
				if err := store.Agents().Save(ctx, agent, agent.Version); err != nil {
					return err
				}
			}
			return nil
		})
		g.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				agents, err := store.Agents().ListEligible(ctx, "aiquinto")
				if err != nil {
					return err
				}
				if len(agents) != 1 {
					return fmt.Errorf("agent A missing from rotation mid-write")
				}
			}
		})
		require.NoError(t, g.Wait())
	})

	t.Run("concurrent writers with one version keep one source set", func(t *testing.T) {
		store := newPostgresTestStore(t)
		saveAgent(t, store, "A", domain.AgentRoleAgent, true, "aiquinto")
		sources := []domain.LeadSource{"aiquinto", "prestitionline", "cessionequinto", "mutuionline"}

		var winner atomic.Value
		var g errgroup.Group
		for _, source := range sources {
			g.Go(func() error {
				agent := &domain.Agent{ID: "A", Role: domain.AgentRoleAgent, Active: true, Sources: []domain.LeadSource{source}}
				err := store.Agents().Save(ctx, agent, 1)
				if errors.Is(err, ErrVersionConflict) {
					return nil
				}
				if err == nil {
					winner.Store(source)
				}
				return err
			})
		}
		require.NoError(t, g.Wait())

		stored, err := store.Agents().Get(ctx, "A")
		require.NoError(t, err)
		require.Equal(t, int64(2), stored.Version)
		require.Equal(t, []domain.LeadSource{winner.Load().(domain.LeadSource)}, stored.Sources)
	})
}

func TestPostgresWithinTxRollsBack(t *testing.T) {
	store := newPostgresTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	var leadID string
	err := store.WithinTx(ctx, func(tx Store) error {
		lead := &domain.Lead{Source: "aiquinto", FullName: "Mario"}
		if err := tx.Leads().Create(ctx, lead); err != nil {
			return err
		}
		leadID = lead.ID
		if _, err := tx.Cursors().CompareAndSwap(ctx, "aiquinto", 0, "A"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Leads().GetByID(ctx, leadID)
	require.ErrorIs(t, err, ErrNotFound)
	cursor, err := store.Cursors().Get(ctx, "aiquinto")
	require.NoError(t, err)
	require.Equal(t, int64(0), cursor.Version)
}
