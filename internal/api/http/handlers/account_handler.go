package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/media-auth-service/internal/api/dto"
	"github.com/spec-kit/media-auth-service/internal/auth"
	"github.com/spec-kit/media-auth-service/internal/repository"
	"github.com/spec-kit/media-auth-service/internal/service"
	apperrors "github.com/spec-kit/media-auth-service/pkg/util"
)

// AccountHandler exposes endpoints for the authenticated account.
type AccountHandler struct {
	auth *service.AuthService
}

// NewAccountHandler constructs handler.
func NewAccountHandler(authService *service.AuthService) *AccountHandler {
	return &AccountHandler{auth: authService}
}

// Me handles GET /auth/me. The principal comes straight from the validated
// token; the account lookup is only for the fresh profile fields.
func (h *AccountHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	account, err := h.auth.GetAccount(c.UserContext(), principal.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Token outlived the account.
			return apperrors.NewUnauthorized("account no longer exists")
		}
		return apperrors.MapError(err)
	}

	return c.JSON(fiber.Map{"data": accountResponse(account)})
}

// ChangePassword handles POST /auth/password/change.
func (h *AccountHandler) ChangePassword(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("current_password and new_password required", nil)
	}

	if err := h.auth.ChangePassword(c.UserContext(), principal.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			return apperrors.NewInvalidCredentials()
		case errors.Is(err, repository.ErrNotFound):
			return apperrors.NewUnauthorized("account no longer exists")
		default:
			return apperrors.MapError(err)
		}
	}
	return c.SendStatus(http.StatusNoContent)
}
