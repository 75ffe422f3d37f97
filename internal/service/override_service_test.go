package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/events"
	"github.com/spec-kit/lead-router/internal/repository/memory"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

func TestReassign(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*memory.Store, *AssignmentEngine, *OverrideService) {
		store := memory.New()
		seedAgent(t, store, "A", testSource)
		seedAgent(t, store, "B", testSource)
		seedAgent(t, store, "C", testSource)
		seedAgent(t, store, "X", "prestitionline")
		override := NewOverrideService(OverrideDependencies{Store: store, Retry: fastRetry})
		return store, newTestEngine(store), override
	}

	t.Run("does not move the rotation cursor", func(t *testing.T) {
		store, engine, override := setup(t)
		lead := assignNext(t, engine, testSource)
		require.Equal(t, "A", *lead.AssignedAgentID)

		record, err := override.Reassign(ctx, lead.LeadID, "C", "manager-1")
		require.NoError(t, err)
		require.Equal(t, domain.AssignmentReasonManual, record.Reason)
		require.Equal(t, "A", *record.PreviousAgentID)
		require.Equal(t, "manager-1", *record.ActorID)

		cursor, err := store.Cursors().Get(ctx, testSource)
		require.NoError(t, err)
		require.Equal(t, "A", cursor.AgentID)
		require.Equal(t, int64(1), cursor.Version)

		stored, err := store.Leads().GetByID(ctx, lead.LeadID)
		require.NoError(t, err)
		require.Equal(t, "C", *stored.AssignedAgentID)

		require.Equal(t, "B", *assignNext(t, engine, testSource).AssignedAgentID)
	})

	t.Run("ineligible target is rejected without changes", func(t *testing.T) {
		store, engine, override := setup(t)
		lead := assignNext(t, engine, testSource)
		setActive(t, store, "B", false)

		for _, target := range []string{"B", "X"} {
			_, err := override.Reassign(ctx, lead.LeadID, target, "manager-1")
			require.True(t, apperrors.IsCode(err, apperrors.CodePermission), target)
		}

		stored, err := store.Leads().GetByID(ctx, lead.LeadID)
		require.NoError(t, err)
		require.Equal(t, "A", *stored.AssignedAgentID)
		require.Len(t, store.Records(), 1)
	})

	t.Run("unknown lead or agent", func(t *testing.T) {
		_, engine, override := setup(t)
		lead := assignNext(t, engine, testSource)

		_, err := override.Reassign(ctx, "missing", "A", "manager-1")
		require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
		_, err = override.Reassign(ctx, lead.LeadID, "nobody", "manager-1")
		require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	})

	t.Run("same agent still audits", func(t *testing.T) {
		store, engine, override := setup(t)
		lead := assignNext(t, engine, testSource)

		record, err := override.Reassign(ctx, lead.LeadID, "A", "manager-1")
		require.NoError(t, err)
		require.Equal(t, "A", *record.PreviousAgentID)
		require.Equal(t, "A", record.AgentID)
		require.Len(t, store.Records(), 2)
	})

	t.Run("assigns a lead stored without agent", func(t *testing.T) {
		store := memory.New()
		engine := newTestEngine(store)
		override := NewOverrideService(OverrideDependencies{Store: store, Retry: fastRetry})

		res, err := engine.AssignLead(ctx, NewLead{Source: testSource, FullName: "Lead"})
		require.ErrorIs(t, err, domain.ErrNoEligibleAgents)

		seedAgent(t, store, "A", testSource)
		dispatcher := events.NewInMemoryDispatcher()
		var got []events.Event
		dispatcher.Subscribe(events.EventLeadReassigned, func(_ context.Context, e events.Event) error {
			got = append(got, e)
			return nil
		})
		override = NewOverrideService(OverrideDependencies{Store: store, Dispatcher: dispatcher, Retry: fastRetry})

		record, err := override.Reassign(ctx, res.LeadID, "A", "manager-1")
		require.NoError(t, err)
		require.Nil(t, record.PreviousAgentID)

		stored, err := store.Leads().GetByID(ctx, res.LeadID)
		require.NoError(t, err)
		require.Equal(t, "A", *stored.AssignedAgentID)
		require.Nil(t, stored.AssignmentFailure)
		require.Len(t, got, 1)
		require.Equal(t, res.LeadID, got[0].LeadID)

		cursor, err := store.Cursors().Get(ctx, testSource)
		require.NoError(t, err)
		require.Equal(t, int64(0), cursor.Version)
	})

	t.Run("interleaved reassignments chain their previous agent", func(t *testing.T) {
		store, engine, override := setup(t)
		lead := assignNext(t, engine, testSource)
		require.Equal(t, "A", *lead.AssignedAgentID)

		var raced atomic.Bool
		store.SetCommitHook(func(context.Context) error {
			if raced.CompareAndSwap(false, true) {
				_, err := override.Reassign(ctx, lead.LeadID, "B", "manager-2")
				require.NoError(t, err)
			}
			return nil
		})

		record, err := override.Reassign(ctx, lead.LeadID, "C", "manager-1")
		require.NoError(t, err)
		require.Equal(t, "B", *record.PreviousAgentID)

		records := store.Records()
		require.Len(t, records, 3)
		require.Equal(t, "A", *records[1].PreviousAgentID)
		require.Equal(t, "B", records[1].AgentID)
		require.Equal(t, "B", *records[2].PreviousAgentID)
		require.Equal(t, "C", records[2].AgentID)

		stored, err := store.Leads().GetByID(ctx, lead.LeadID)
		require.NoError(t, err)
		require.Equal(t, "C", *stored.AssignedAgentID)
	})
}
