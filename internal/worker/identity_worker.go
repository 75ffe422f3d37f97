package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/domain"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// AgentSyncer applies identity updates to the agent directory.
type AgentSyncer interface {
	Apply(ctx context.Context, update domain.AgentUpdate) (*domain.Agent, error)
}

// IdentityWorker consumes agents.sync tasks.
type IdentityWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	syncer AgentSyncer
	logger *zap.Logger
}

// NewIdentityWorker builds the asynq server and registers task handlers.
func NewIdentityWorker(redisCfg config.RedisConfig, cfg config.WorkerConfig, syncer AgentSyncer, logger *zap.Logger) *IdentityWorker {
	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 5
	}

	w := &IdentityWorker{
		mux:    asynq.NewServeMux(),
		syncer: syncer,
		logger: logger,
	}
	w.server = asynq.NewServer(RedisOpt(redisCfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      logger.Sugar(),
	})
	w.mux.HandleFunc(TaskAgentSync, w.HandleAgentSync)
	return w
}

// HandleAgentSync applies one update. Invalid payloads are not retried.
func (w *IdentityWorker) HandleAgentSync(ctx context.Context, task *asynq.Task) error {
	update, err := ParseAgentSyncPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	agent, err := w.syncer.Apply(ctx, update)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeValidation) {
			w.logger.Warn("agent update rejected", zap.String("agent_id", update.AgentID), zap.Error(err))
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	w.logger.Debug("agent update applied", zap.String("agent_id", agent.ID), zap.Int64("version", agent.Version))
	return nil
}

// Run blocks processing tasks until ctx is cancelled.
func (w *IdentityWorker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	<-ctx.Done()
	w.server.Shutdown()
	return nil
}
