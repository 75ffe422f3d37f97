package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/api/dto"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/service"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// LeadsHandler receives webhook deliveries from the marketing sites.
type LeadsHandler struct {
	ingestion *service.IngestionService
}

// NewLeadsHandler constructs handler.
func NewLeadsHandler(ingestion *service.IngestionService) *LeadsHandler {
	return &LeadsHandler{ingestion: ingestion}
}

// Ingest POST /webhooks/leads/:source.
//
// 201 on a new assigned lead, 200 on a redelivery, 202 when the lead was stored
// but nobody could take it.
func (h *LeadsHandler) Ingest(c *fiber.Ctx) error {
	var payload service.LeadPayload
	if err := c.BodyParser(&payload); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	res, err := h.ingestion.Ingest(c.UserContext(), c.Params("source"), payload)
	if err != nil {
		if res != nil && errors.Is(err, domain.ErrNoEligibleAgents) {
			body := dto.NewAssignmentResponse(res)
			body.Warning = apperrors.CodeNoEligibleAgents
			return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": body})
		}
		return err
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewAssignmentResponse(res)})
}
