package handlers

import (
	"time"

	"github.com/dietchse/basic-login-ap/internal/middleware"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type SecurityHandler struct {
	Account   *services.AccountService
	TwoFactor *services.TwoFactorService
	Sessions  *services.SessionRegistry
	Audit     *services.AuditService
}

func NewSecurityHandler(account *services.AccountService, twoFactor *services.TwoFactorService, sessions *services.SessionRegistry, audit *services.AuditService) *SecurityHandler {
	return &SecurityHandler{
		Account:   account,
		TwoFactor: twoFactor,
		Sessions:  sessions,
		Audit:     audit,
	}
}

func (h *SecurityHandler) SecurityInfo(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	info, err := h.Account.SecurityInfo(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "security_info_failed", "failed loading security info")
	}
	return utils.Success(c, fiber.StatusOK, info)
}

func (h *SecurityHandler) EnableTwoFactor(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	setup, err := h.TwoFactor.BeginEnrollment(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "2fa_setup_failed", "failed starting two-factor setup")
	}
	return utils.Success(c, fiber.StatusOK, setup)
}

func (h *SecurityHandler) VerifyTwoFactor(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req twoFactorCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	code := req.value()
	if code == "" {
		return respondError(c, services.ErrMissingCode, "", "")
	}

	result, err := h.TwoFactor.CommitEnrollment(c.UserContext(), user.ID, code)
	if err != nil {
		return respondError(c, err, "2fa_enable_failed", "failed enabling two-factor authentication")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message":        "two-factor authentication enabled",
		"usedBackupCode": result.UsedBackupCode,
	})
}

type disableTwoFactorRequest struct {
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
}

func (h *SecurityHandler) DisableTwoFactor(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req disableTwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.TwoFactor.Disable(c.UserContext(), user.ID, req.Password, req.TwoFactorCode); err != nil {
		return respondError(c, err, "2fa_disable_failed", "failed disabling two-factor authentication")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "two-factor authentication disabled"})
}

func (h *SecurityHandler) BackupCodes(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	codes, err := h.TwoFactor.ListBackupCodes(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "backup_codes_failed", "failed loading backup codes")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"backupCodes": codes,
		"remaining":   len(codes),
	})
}

type sessionView struct {
	ID           uuid.UUID         `json:"id"`
	DeviceType   models.DeviceType `json:"deviceType"`
	DeviceInfo   string            `json:"deviceInfo"`
	Browser      string            `json:"browser"`
	OS           string            `json:"os"`
	IPAddress    string            `json:"ipAddress"`
	Location     string            `json:"location"`
	LoginTime    time.Time         `json:"loginTime"`
	LastActivity time.Time         `json:"lastActivity"`
	IsCurrent    bool              `json:"isCurrent"`
}

// ActiveSessions lists the caller's live sessions. When the token carries no
// session ID the most recently active one is marked current.
func (h *SecurityHandler) ActiveSessions(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	sessions, err := h.Sessions.List(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "list_sessions_failed", "failed listing sessions")
	}

	current := middleware.GetCurrentSessionID(c)
	views := make([]sessionView, 0, len(sessions))
	for i, s := range sessions {
		device := services.ParseUserAgent(s.UserAgent)
		isCurrent := s.ID == current
		if current == uuid.Nil {
			isCurrent = i == 0
		}
		views = append(views, sessionView{
			ID:           s.ID,
			DeviceType:   s.DeviceType,
			DeviceInfo:   s.DeviceInfo,
			Browser:      device.Browser,
			OS:           device.OS,
			IPAddress:    s.IPAddress,
			Location:     s.Location,
			LoginTime:    s.LoginTime,
			LastActivity: s.LastActivity,
			IsCurrent:    isCurrent,
		})
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"sessions": views,
		"total":    len(views),
	})
}

func (h *SecurityHandler) RevokeSession(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	sessionID, err := parseUUID(c.Params("sessionId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid session ID")
	}

	if err := h.Sessions.Revoke(c.UserContext(), sessionID, user.ID); err != nil {
		return respondError(c, err, "revoke_session_failed", "failed revoking session")
	}

	h.Audit.Record(services.AuditEntry{
		UserID:    &user.ID,
		Action:    "session.revoked",
		IPAddress: c.IP(),
		Details:   map[string]interface{}{"session_id": sessionID.String()},
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "session revoked"})
}

func (h *SecurityHandler) RevokeOtherSessions(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	revoked, err := h.Sessions.RevokeAllExcept(c.UserContext(), user.ID, middleware.GetCurrentSessionID(c))
	if err != nil {
		return respondError(c, err, "revoke_sessions_failed", "failed revoking sessions")
	}

	h.Audit.Record(services.AuditEntry{
		UserID:    &user.ID,
		Action:    "session.revoked_others",
		IPAddress: c.IP(),
		Details:   map[string]interface{}{"revoked": revoked},
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"message": "other sessions revoked",
		"revoked": revoked,
	})
}

type deleteAccountRequest struct {
	Password string `json:"password"`
}

func (h *SecurityHandler) DeleteAccount(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req deleteAccountRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	if err := h.Account.DeleteAccount(c.UserContext(), user.ID, req.Password); err != nil {
		return respondError(c, err, "delete_account_failed", "failed deleting account")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "account deleted"})
}
