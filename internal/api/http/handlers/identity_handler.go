package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/api/dto"
	"github.com/spec-kit/lead-router/internal/domain"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// AgentUpdateValidator rejects malformed identity updates before they are queued.
type AgentUpdateValidator interface {
	Validate(update domain.AgentUpdate) error
}

// AgentUpdateQueue hands identity updates to the sync worker.
type AgentUpdateQueue interface {
	EnqueueAgentSync(ctx context.Context, update domain.AgentUpdate) (string, error)
}

// IdentityHandler receives agent changes pushed by the identity provider.
type IdentityHandler struct {
	validator AgentUpdateValidator
	queue     AgentUpdateQueue
	logger    *zap.Logger
}

// NewIdentityHandler constructs handler.
func NewIdentityHandler(validator AgentUpdateValidator, queue AgentUpdateQueue, logger *zap.Logger) *IdentityHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityHandler{validator: validator, queue: queue, logger: logger}
}

// SyncAgent POST /internal/identity/agents.
func (h *IdentityHandler) SyncAgent(c *fiber.Ctx) error {
	var update domain.AgentUpdate
	if err := c.BodyParser(&update); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validator.Validate(update); err != nil {
		return err
	}
	taskID, err := h.queue.EnqueueAgentSync(c.UserContext(), update)
	if err != nil {
		h.logger.Error("enqueue agent sync failed", zap.String("agent_id", update.AgentID), zap.Error(err))
		return apperrors.NewPersistenceError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.IdentityQueuedResponse{TaskID: taskID, AgentID: update.AgentID}})
}
