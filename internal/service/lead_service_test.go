package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/repository/memory"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

func TestLeadService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgent(t, store, "A", testSource)
	lead := assignNext(t, newTestEngine(store), testSource)
	leads := NewLeadService(store, nil)

	_, err := leads.UpdateStatus(ctx, lead.LeadID, domain.LeadStatusQualified)
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	updated, err := leads.UpdateStatus(ctx, lead.LeadID, domain.LeadStatusContacted)
	require.NoError(t, err)
	require.Equal(t, domain.LeadStatusContacted, updated.Status)
	require.Equal(t, "A", *updated.AssignedAgentID)

	_, err = leads.UpdateStatus(ctx, lead.LeadID, domain.LeadStatusNotInterested)
	require.NoError(t, err)
	_, err = leads.UpdateStatus(ctx, lead.LeadID, domain.LeadStatusContacted)
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = leads.UpdateStatus(ctx, "missing", domain.LeadStatusContacted)
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = leads.UpdateStatus(ctx, lead.LeadID, "lost")
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestLeadService_NotesAndHistory(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgent(t, store, "A", testSource)
	seedAgent(t, store, "B", testSource)
	lead := assignNext(t, newTestEngine(store), testSource)
	leads := NewLeadService(store, nil)

	_, err := leads.AddNote(ctx, lead.LeadID, "A", "   ")
	require.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	_, err = leads.AddNote(ctx, "missing", "A", "hello")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	note, err := leads.AddNote(ctx, lead.LeadID, "A", "called, no answer")
	require.NoError(t, err)
	require.Equal(t, "A", *note.AuthorID)

	override := NewOverrideService(OverrideDependencies{Store: store, Retry: fastRetry})
	_, err = override.Reassign(ctx, lead.LeadID, "B", "manager-1")
	require.NoError(t, err)

	history, err := leads.History(ctx, lead.LeadID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.AssignmentReasonRotation, history[0].Reason)
	require.Equal(t, domain.AssignmentReasonManual, history[1].Reason)

	detail, err := leads.GetLead(ctx, lead.LeadID)
	require.NoError(t, err)
	require.Equal(t, "B", *detail.Lead.AssignedAgentID)
	require.Len(t, detail.Notes, 1)
	require.Len(t, detail.Assignments, 2)

	_, err = leads.History(ctx, "missing")
	require.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestLeadService_ListUnassigned(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedAgent(t, store, "A", "prestitionline")
	engine := newTestEngine(store)
	for _, source := range []domain.LeadSource{testSource, testSource, "cessionequinto", "prestitionline"} {
		_, _ = engine.AssignLead(ctx, NewLead{Source: source, FullName: "Lead"})
	}
	leads := NewLeadService(store, nil)

	all, err := leads.ListUnassigned(ctx, repository.LeadFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)

	source := testSource
	filtered, err := leads.ListUnassigned(ctx, repository.LeadFilter{Source: &source})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	for _, l := range filtered {
		require.Equal(t, testSource, l.Source)
		require.Equal(t, domain.AssignmentFailureNoEligibleAgents, *l.AssignmentFailure)
	}
}
