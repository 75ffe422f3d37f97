package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/domain"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

type syncerFunc func(ctx context.Context, update domain.AgentUpdate) (*domain.Agent, error)

func (f syncerFunc) Apply(ctx context.Context, update domain.AgentUpdate) (*domain.Agent, error) {
	return f(ctx, update)
}

func TestHandleAgentSync(t *testing.T) {
	active := true
	update := domain.AgentUpdate{AgentID: "A", Active: &active, Sources: []domain.LeadSource{"aiquinto"}}
	task, err := NewAgentSyncTask(update)
	require.NoError(t, err)
	require.Equal(t, TaskAgentSync, task.Type())

	t.Run("applies decoded update", func(t *testing.T) {
		var got domain.AgentUpdate
		w := &IdentityWorker{logger: zap.NewNop(), syncer: syncerFunc(func(_ context.Context, u domain.AgentUpdate) (*domain.Agent, error) {
			got = u
			return &domain.Agent{ID: u.AgentID, Version: 1}, nil
		})}
		require.NoError(t, w.HandleAgentSync(context.Background(), task))
		require.Equal(t, update, got)
	})

	t.Run("invalid payload is not retried", func(t *testing.T) {
		w := &IdentityWorker{logger: zap.NewNop()}
		err := w.HandleAgentSync(context.Background(), asynq.NewTask(TaskAgentSync, []byte("{")))
		require.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("validation failure is not retried", func(t *testing.T) {
		w := &IdentityWorker{logger: zap.NewNop(), syncer: syncerFunc(func(context.Context, domain.AgentUpdate) (*domain.Agent, error) {
			return nil, apperrors.NewValidationError("invalid agent update", nil)
		})}
		require.ErrorIs(t, w.HandleAgentSync(context.Background(), task), asynq.SkipRetry)
	})

	t.Run("storage failure is retried", func(t *testing.T) {
		boom := errors.New("db down")
		w := &IdentityWorker{logger: zap.NewNop(), syncer: syncerFunc(func(context.Context, domain.AgentUpdate) (*domain.Agent, error) {
			return nil, apperrors.NewPersistenceError(boom)
		})}
		err := w.HandleAgentSync(context.Background(), task)
		require.ErrorIs(t, err, boom)
		require.NotErrorIs(t, err, asynq.SkipRetry)
	})
}
