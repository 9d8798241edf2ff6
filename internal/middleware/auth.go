package middleware

import (
	"errors"
	"strings"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
)

const (
	currentUserKey      = "currentUser"
	currentUserIDKey    = "userID"
	currentSessionIDKey = "currentSessionID"
)

// AuthMiddleware resolves the bearer token to an account. When
// EnforceRevocation is set, a token bound to a revoked or expired session is
// rejected; otherwise the session only has its activity refreshed.
type AuthMiddleware struct {
	Accounts          *services.AccountStore
	Sessions          *services.SessionRegistry
	EnforceRevocation bool
}

func NewAuthMiddleware(accounts *services.AccountStore, sessions *services.SessionRegistry, enforceRevocation bool) *AuthMiddleware {
	return &AuthMiddleware{
		Accounts:          accounts,
		Sessions:          sessions,
		EnforceRevocation: enforceRevocation,
	}
}

func CORS(cfg config.ServerConfig) fiber.Handler {
	origins := strings.TrimSpace(cfg.AllowedOrigins)
	if origins == "" || origins == "*" {
		origins = cfg.FrontendURL
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
	})
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		return "", false
	}
	return tokenString, true
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("jwt_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
	}

	tokenString, ok := bearerToken(c)
	if !ok {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "invalid or expired token")
	}

	user, err := a.lookup(c, claims)
	if err != nil {
		logger.Warn("jwt_user_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": claims.UserID,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "user not found")
	}

	sessionID := claims.SessionUUID()
	if sessionID != uuid.Nil {
		if a.EnforceRevocation {
			if err := a.Sessions.Validate(c.UserContext(), sessionID, user.ID); err != nil {
				logger.WarnWithUser(user.ID.String(), "session_rejected", map[string]interface{}{
					"ip":         c.IP(),
					"session_id": sessionID.String(),
					"error":      err.Error(),
				})
				if errors.Is(err, services.ErrStoreFailure) {
					return utils.Error(c, fiber.StatusInternalServerError, "failed to validate session")
				}
				return utils.Error(c, fiber.StatusUnauthorized, "session has been revoked or has expired")
			}
		} else if err := a.Sessions.Touch(c.UserContext(), sessionID); err != nil {
			logger.ErrorWithUser(user.ID.String(), "session_touch_failed", err, nil)
		}
	}

	setCurrent(c, user, sessionID)
	return c.Next()
}

func (a *AuthMiddleware) OptionalAuth(c *fiber.Ctx) error {
	tokenString, ok := bearerToken(c)
	if !ok {
		return c.Next()
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		return c.Next()
	}

	user, err := a.lookup(c, claims)
	if err != nil {
		return c.Next()
	}

	sessionID := claims.SessionUUID()
	if sessionID != uuid.Nil && a.EnforceRevocation {
		if err := a.Sessions.Validate(c.UserContext(), sessionID, user.ID); err != nil {
			return c.Next()
		}
	}

	setCurrent(c, user, sessionID)
	return c.Next()
}

func (a *AuthMiddleware) lookup(c *fiber.Ctx, claims *utils.Claims) (*models.User, error) {
	return a.Accounts.FindByID(c.UserContext(), claims.UserID)
}

func setCurrent(c *fiber.Ctx, user *models.User, sessionID uuid.UUID) {
	c.Locals(currentUserKey, user)
	c.Locals(currentUserIDKey, user.ID.String())
	if sessionID != uuid.Nil {
		c.Locals(currentSessionIDKey, sessionID)
	}
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetCurrentSessionID returns the session the bearer token was issued for,
// or uuid.Nil for tokens that carry none.
func GetCurrentSessionID(c *fiber.Ctx) uuid.UUID {
	value, ok := c.Locals(currentSessionIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return value
}
