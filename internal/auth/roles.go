package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/lead-router/internal/domain"
	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...domain.AgentRole) fiber.Handler {
	allowedSet := make(map[domain.AgentRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok || principal.Agent == nil {
			return apperrors.NewUnauthorized("authentication required")
		}
		if _, exists := allowedSet[principal.Agent.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}

// RequireAdmin admits admins and campaign managers.
func RequireAdmin() fiber.Handler {
	return RequireRole(domain.AgentRoleAdmin, domain.AgentRoleCampaignManager)
}
