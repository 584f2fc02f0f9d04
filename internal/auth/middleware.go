package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/media-auth-service/internal/domain"
	apperrors "github.com/spec-kit/media-auth-service/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller, built entirely from the
// validated token claims. No account lookup happens here; downstream services
// embed this same middleware and stay independent of the issuer.
type Principal struct {
	AccountID string
	Email     string
	Role      domain.Role
}

// Middleware validates bearer tokens on protected routes.
type Middleware struct {
	validator *TokenValidator
}

// NewMiddleware constructs middleware around a validator.
func NewMiddleware(validator *TokenValidator) *Middleware {
	return &Middleware{validator: validator}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.validator.Validate(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
	})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
