package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/api/http/handlers"
	"github.com/spec-kit/lead-router/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Leads          *handlers.LeadsHandler
	Admin          *handlers.AdminHandler
	Identity       *handlers.IdentityHandler
	Metrics        fiber.Handler
	AuthMiddleware *auth.AuthMiddleware
	WebhookTokens  *auth.TokenVerifier
	// IngestLimiter throttles webhook deliveries per source; nil disables it.
	IngestLimiter *SourceLimiter
}

// identityTokenKey is the TokenVerifier key of the identity provider's token.
const identityTokenKey = "identity"

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics)
	}

	webhook := []fiber.Handler{cfg.WebhookTokens.RequireToken(func(c *fiber.Ctx) string { return c.Params("source") })}
	if cfg.IngestLimiter != nil {
		webhook = append(webhook, cfg.IngestLimiter.Handle)
	}
	webhook = append(webhook, cfg.Leads.Ingest)
	app.Post("/webhooks/leads/:source", webhook...)

	internal := app.Group("/internal", cfg.WebhookTokens.RequireToken(func(*fiber.Ctx) string { return identityTokenKey }))
	internal.Post("/identity/agents", cfg.Identity.SyncAgent)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/sources/:source/agents", cfg.Admin.EligibleAgents)
	admin.Get("/sources/:source/cursor", cfg.Admin.Cursor)
	admin.Get("/leads/unassigned", cfg.Admin.Unassigned)
	admin.Get("/leads/:id/assignments", cfg.Admin.Assignments)
	admin.Post("/leads/:id/reassign", cfg.Admin.Reassign)
	admin.Patch("/leads/:id/status", cfg.Admin.UpdateStatus)
	admin.Post("/leads/:id/notes", cfg.Admin.AddNote)
}
