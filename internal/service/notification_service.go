package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/lead-router/internal/events"
)

// NotificationService turns assignment events into operator-facing log lines.
// Delivery to agents (mail, push) is handled outside this service.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventLeadAssigned, n.handleLeadAssigned)
	n.dispatcher.Subscribe(events.EventLeadReassigned, n.handleLeadAssigned)
	n.dispatcher.Subscribe(events.EventLeadUnassigned, n.handleLeadUnassigned)
	n.dispatcher.Subscribe(events.EventAgentSynced, n.handleAgentSynced)
}

func (n *NotificationService) handleLeadAssigned(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.LeadAssignedPayload)
	if !ok {
		n.logger.Info(string(event.Type), zap.String("lead_id", event.LeadID), zap.Any("payload", event.Payload))
		return nil
	}
	n.logger.Info(string(event.Type),
		zap.String("lead_id", event.LeadID),
		zap.String("source", string(payload.Source)),
		zap.String("agent_id", payload.AgentID),
		zap.String("reason", string(payload.Reason)))
	return nil
}

func (n *NotificationService) handleLeadUnassigned(_ context.Context, event events.Event) error {
	n.logger.Warn("lead needs manual assignment", zap.String("lead_id", event.LeadID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleAgentSynced(_ context.Context, event events.Event) error {
	n.logger.Debug(string(event.Type), zap.Any("payload", event.Payload))
	return nil
}
