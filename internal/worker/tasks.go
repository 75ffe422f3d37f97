package worker

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/spec-kit/lead-router/internal/domain"
)

// TaskAgentSync carries one identity provider update for an agent.
const TaskAgentSync = "agents.sync"

// NewAgentSyncTask encodes update as an asynq task.
func NewAgentSyncTask(update domain.AgentUpdate) (*asynq.Task, error) {
	data, err := json.Marshal(update)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAgentSync, data), nil
}

// ParseAgentSyncPayload decodes the update carried by task.
func ParseAgentSyncPayload(task *asynq.Task) (domain.AgentUpdate, error) {
	var update domain.AgentUpdate
	if err := json.Unmarshal(task.Payload(), &update); err != nil {
		return domain.AgentUpdate{}, fmt.Errorf("decode %s payload: %w", TaskAgentSync, err)
	}
	return update, nil
}
