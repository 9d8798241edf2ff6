package handlers

import (
	"errors"

	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrStoreFailure):
		return fiber.StatusInternalServerError
	case errors.Is(err, services.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUnverified), errors.Is(err, services.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidCredentials):
		return fiber.StatusUnauthorized
	case errors.Is(err, services.ErrAlreadyEnabled), errors.Is(err, services.ErrEmailTaken):
		return fiber.StatusConflict
	case isDomainError(err):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func isDomainError(err error) bool {
	for _, target := range []error{
		services.ErrNoLocalPassword,
		services.ErrInvalidTwoFactorCode,
		services.ErrNoPendingLogin,
		services.ErrNotTwoFactorEnabled,
		services.ErrMissingCode,
		services.ErrNotEnabled,
		services.ErrSetupNotStarted,
		services.ErrExpired,
		services.ErrInvalidToken,
		services.ErrWeakPassword,
		services.ErrInvalidEmail,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// respondError answers with the status for err. Unexpected failures are
// logged and replaced by fallback so internals never reach the client.
func respondError(c *fiber.Ctx, err error, action, fallback string) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		if userID := logger.GetUserIDFromContext(c); userID != nil {
			logger.ErrorWithUser(*userID, action, err, nil)
		} else {
			logger.Error(action, err, nil)
		}
		return utils.Error(c, status, fallback)
	}
	return utils.Error(c, status, err.Error())
}
