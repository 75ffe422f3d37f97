package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/spec-kit/lead-router/internal/config"
	"github.com/spec-kit/lead-router/internal/domain"
)

// Client enqueues identity sync tasks.
type Client struct {
	client      *asynq.Client
	queue       string
	maxAttempts int
}

// RedisOpt builds the asynq connection options shared by client and server.
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewClient creates a client writing to the configured queue.
func NewClient(redisCfg config.RedisConfig, cfg config.WorkerConfig) *Client {
	queue := cfg.Queue
	if queue == "" {
		queue = "default"
	}
	return &Client{
		client:      asynq.NewClient(RedisOpt(redisCfg)),
		queue:       queue,
		maxAttempts: cfg.SyncMaxAttempts,
	}
}

// Close releases the redis connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// EnqueueAgentSync queues update and returns the task id.
func (c *Client) EnqueueAgentSync(ctx context.Context, update domain.AgentUpdate) (string, error) {
	if c == nil || c.client == nil {
		return "", fmt.Errorf("identity queue not configured")
	}
	task, err := NewAgentSyncTask(update)
	if err != nil {
		return "", err
	}
	opts := []asynq.Option{asynq.Queue(c.queue)}
	if c.maxAttempts > 0 {
		opts = append(opts, asynq.MaxRetry(c.maxAttempts))
	}
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
