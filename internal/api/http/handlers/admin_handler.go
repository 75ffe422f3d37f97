package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/api/dto"
	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/repository"
	"github.com/spec-kit/lead-router/internal/service"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// AdminHandler serves the operator endpoints.
type AdminHandler struct {
	sources   *domain.SourceRegistry
	directory *service.AgentDirectory
	rotation  *service.RotationState
	override  *service.OverrideService
	leads     *service.LeadService
}

// AdminDependencies bundles services used by AdminHandler.
type AdminDependencies struct {
	Sources   *domain.SourceRegistry
	Directory *service.AgentDirectory
	Rotation  *service.RotationState
	Override  *service.OverrideService
	Leads     *service.LeadService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{
		sources:   deps.Sources,
		directory: deps.Directory,
		rotation:  deps.Rotation,
		override:  deps.Override,
		leads:     deps.Leads,
	}
}

// EligibleAgents GET /admin/sources/:source/agents.
func (h *AdminHandler) EligibleAgents(c *fiber.Ctx) error {
	source, err := h.source(c)
	if err != nil {
		return err
	}
	profiles, err := h.directory.EligibleAgentProfiles(c.UserContext(), source)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]dto.AgentProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, dto.NewAgentProfileResponse(p))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Cursor GET /admin/sources/:source/cursor.
func (h *AdminHandler) Cursor(c *fiber.Ctx) error {
	source, err := h.source(c)
	if err != nil {
		return err
	}
	cursor, err := h.rotation.Cursor(c.UserContext(), source)
	if err != nil {
		return apperrors.MapError(err)
	}
	return c.JSON(fiber.Map{"data": dto.NewCursorResponse(cursor)})
}

// Reassign POST /admin/leads/:id/reassign.
func (h *AdminHandler) Reassign(c *fiber.Ctx) error {
	var req dto.ReassignRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.AgentID) == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}
	principal, _ := auth.PrincipalFromContext(c)
	record, err := h.override.Reassign(c.UserContext(), c.Params("id"), req.AgentID, principal.ID())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAssignmentRecordResponse(record)})
}

// Unassigned GET /admin/leads/unassigned?source=&since=&limit=&offset=.
func (h *AdminHandler) Unassigned(c *fiber.Ctx) error {
	filter := repository.LeadFilter{}
	if raw := c.Query("source"); raw != "" {
		source, err := h.sources.Parse(raw)
		if err != nil {
			return apperrors.NewValidationError("unknown lead source", map[string]any{"source": raw})
		}
		filter.Source = &source
	}
	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.NewValidationError("since must be RFC3339", nil)
		}
		filter.CreatedFrom = &since
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = offset
	}

	leads, err := h.leads.ListUnassigned(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.LeadSummary, 0, len(leads))
	for i := range leads {
		items = append(items, dto.NewLeadSummary(&leads[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Assignments GET /admin/leads/:id/assignments.
func (h *AdminHandler) Assignments(c *fiber.Ctx) error {
	records, err := h.leads.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.AssignmentRecordResponse, 0, len(records))
	for i := range records {
		items = append(items, dto.NewAssignmentRecordResponse(&records[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateStatus PATCH /admin/leads/:id/status.
func (h *AdminHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	lead, err := h.leads.UpdateStatus(c.UserContext(), c.Params("id"), domain.LeadStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewLeadSummary(lead)})
}

// AddNote POST /admin/leads/:id/notes.
func (h *AdminHandler) AddNote(c *fiber.Ctx) error {
	var req dto.NoteRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	principal, _ := auth.PrincipalFromContext(c)
	note, err := h.leads.AddNote(c.UserContext(), c.Params("id"), principal.ID(), req.Content)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewNoteResponse(note)})
}

func (h *AdminHandler) source(c *fiber.Ctx) (domain.LeadSource, error) {
	raw := c.Params("source")
	source, err := h.sources.Parse(raw)
	if err != nil {
		return "", apperrors.NewValidationError("unknown lead source", map[string]any{"source": raw})
	}
	return source, nil
}
