package auth

import (
	"net/http"
	"slices"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-ticketing/internal/domain"
)

// RequireRole rejects anonymous callers with 401 and callers outside allowed
// with 403. It must run after AuthMiddleware.Handle.
func RequireRole(allowed ...domain.SenderRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "authentication required")
		}
		if !slices.Contains(allowed, principal.Role) {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

func RequireStaff() fiber.Handler {
	return RequireRole(domain.RoleSupport, domain.RoleAdmin)
}

func RequireAdmin() fiber.Handler {
	return RequireRole(domain.RoleAdmin)
}
