package handlers

import (
	"errors"
	"net/url"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/middleware"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	oauthNonceCookie   = "oauth_state_nonce"
	pendingLoginCookie = "pending_google_login"
	authCookiePath     = "/api/auth"
)

type AuthHandler struct {
	Accounts *services.AccountService
	Engine   *services.LoginEngine
	// Google is nil when Google sign-in is not configured.
	Google     services.IdentityProvider
	Server     config.ServerConfig
	PendingTTL time.Duration
}

func NewAuthHandler(accounts *services.AccountService, login *services.LoginEngine, google services.IdentityProvider, server config.ServerConfig, pendingTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		Accounts:   accounts,
		Engine:     login,
		Google:     google,
		Server:     server,
		PendingTTL: pendingTTL,
	}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	user, err := h.Accounts.Register(c.UserContext(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		return respondError(c, err, "register_failed", "failed creating user")
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"email":   logger.MaskEmail(user.Email),
		"ip":      c.IP(),
	})
	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"message": "account created; check your email to verify it",
	})
}

type loginRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	TwoFactorCode string `json:"twoFactorCode"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return utils.Error(c, fiber.StatusBadRequest, "email and password are required")
	}

	result, err := h.Engine.AttemptPasswordLogin(c.UserContext(), req.Email, req.Password, req.TwoFactorCode, clientInfo(c))
	if err != nil {
		return respondError(c, err, "login_failed", "failed to sign in")
	}
	return h.loginResponse(c, result)
}

func (h *AuthHandler) loginResponse(c *fiber.Ctx, result *services.LoginResult) error {
	if result.Outcome == services.OutcomeTwoFactorRequired {
		return utils.Success(c, fiber.StatusOK, fiber.Map{
			"requiresTwoFactor": true,
			"message":           "enter your two-factor code to continue",
		})
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"token": result.Token,
		"user":  result.Account,
	})
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	token := firstNonEmpty(c.Params("token"), c.Query("token"))
	if token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "verification token is required")
	}
	if err := h.Accounts.VerifyEmail(c.UserContext(), token); err != nil {
		return respondError(c, err, "verify_email_failed", "failed verifying email")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "email verified"})
}

func (h *AuthHandler) ResendVerification(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Accounts.ResendVerification(c.UserContext(), req.Email); err != nil {
		return respondError(c, err, "resend_verification_failed", "failed sending verification email")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "verification email sent"})
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req emailRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.Accounts.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return respondError(c, err, "forgot_password_failed", "failed sending reset email")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password reset email sent"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
	Password    string `json:"password"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Token == "" {
		return utils.Error(c, fiber.StatusBadRequest, "reset token is required")
	}
	password := req.NewPassword
	if password == "" {
		password = req.Password
	}
	if err := h.Accounts.ResetPassword(c.UserContext(), req.Token, password); err != nil {
		return respondError(c, err, "reset_password_failed", "failed resetting password")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "password has been reset"})
}

// GoogleRedirect starts the browser sign-in. The state parameter is signed
// and bound to a nonce cookie on this browser only.
func (h *AuthHandler) GoogleRedirect(c *fiber.Ctx) error {
	if h.Google == nil {
		return h.loginErrorRedirect(c)
	}

	state, nonce, err := utils.GenerateOAuthState()
	if err != nil {
		logger.Error("oauth_state_failed", err, nil)
		return h.loginErrorRedirect(c)
	}

	c.Cookie(&fiber.Cookie{
		Name:     oauthNonceCookie,
		Value:    nonce,
		Path:     authCookiePath,
		MaxAge:   int(utils.OAuthStateTTL().Seconds()),
		HTTPOnly: true,
		Secure:   h.Server.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(h.Google.AuthCodeURL(state), fiber.StatusFound)
}

func (h *AuthHandler) GoogleCallback(c *fiber.Ctx) error {
	if h.Google == nil {
		return h.loginErrorRedirect(c)
	}

	nonce := c.Cookies(oauthNonceCookie)
	h.expireCookie(c, oauthNonceCookie)

	if reason := c.Query("error"); reason != "" {
		logger.Warn("google_callback_denied", map[string]interface{}{
			"ip":     c.IP(),
			"reason": reason,
		})
		return h.loginErrorRedirect(c)
	}
	if _, err := utils.ValidateOAuthState(c.Query("state"), nonce); err != nil {
		logger.Warn("google_callback_bad_state", map[string]interface{}{
			"ip":    c.IP(),
			"error": err.Error(),
		})
		return h.loginErrorRedirect(c)
	}
	code := c.Query("code")
	if code == "" {
		return h.loginErrorRedirect(c)
	}

	profile, err := h.Google.Exchange(c.UserContext(), code)
	if err != nil {
		logger.Error("google_exchange_failed", err, map[string]interface{}{"ip": c.IP()})
		return h.loginErrorRedirect(c)
	}

	result, err := h.Engine.CompleteGoogleRedirect(c.UserContext(), profile, clientInfo(c))
	if err != nil {
		logger.Error("google_login_failed", err, map[string]interface{}{"ip": c.IP()})
		return h.loginErrorRedirect(c)
	}

	if result.Outcome == services.OutcomePendingTwoFactor {
		c.Cookie(&fiber.Cookie{
			Name:     pendingLoginCookie,
			Value:    result.PendingID.String(),
			Path:     authCookiePath,
			MaxAge:   int(h.PendingTTL.Seconds()),
			HTTPOnly: true,
			Secure:   h.Server.SecureCookies,
			SameSite: fiber.CookieSameSiteLaxMode,
		})
		return c.Redirect(h.Server.FrontendURL+"/login?google2fa=required", fiber.StatusFound)
	}

	return c.Redirect(h.dashboardURL(result), fiber.StatusFound)
}

func (h *AuthHandler) dashboardURL(result *services.LoginResult) string {
	query := url.Values{}
	query.Set("token", result.Token)
	query.Set("email", result.Account.Email)
	query.Set("name", result.Account.DisplayName())
	if result.Account.GoogleID != nil {
		query.Set("googleId", *result.Account.GoogleID)
	}
	return h.Server.FrontendURL + "/dashboard?" + query.Encode()
}

func (h *AuthHandler) loginErrorRedirect(c *fiber.Ctx) error {
	return c.Redirect(h.Server.FrontendURL+"/login?error=google-auth-failed", fiber.StatusFound)
}

func (h *AuthHandler) expireCookie(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     authCookiePath,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   h.Server.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

type googleLoginDirectRequest struct {
	GoogleID      string `json:"googleId"`
	TwoFactorCode string `json:"twoFactorCode"`
}

func (h *AuthHandler) GoogleLoginDirect(c *fiber.Ctx) error {
	var req googleLoginDirectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.GoogleID == "" {
		return utils.Error(c, fiber.StatusBadRequest, "googleId is required")
	}

	result, err := h.Engine.AttemptGoogleLogin(c.UserContext(), req.GoogleID, req.TwoFactorCode, clientInfo(c))
	if err != nil {
		return respondError(c, err, "google_login_direct_failed", "failed to sign in with Google")
	}
	return h.loginResponse(c, result)
}

type twoFactorCodeRequest struct {
	TwoFactorCode string `json:"twoFactorCode"`
	Code          string `json:"code"`
	Token         string `json:"token"`
}

func (r twoFactorCodeRequest) value() string {
	return firstNonEmpty(r.TwoFactorCode, r.Code, r.Token)
}

func (h *AuthHandler) VerifyGoogleTwoFactor(c *fiber.Ctx) error {
	var req twoFactorCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	pendingID, err := parseUUID(c.Cookies(pendingLoginCookie))
	if err != nil {
		return respondError(c, services.ErrNoPendingLogin, "", "")
	}

	result, err := h.Engine.VerifyPendingGoogleLogin(c.UserContext(), pendingID, req.value(), clientInfo(c))
	if err != nil {
		if !errors.Is(err, services.ErrInvalidTwoFactorCode) && !errors.Is(err, services.ErrMissingCode) {
			h.expireCookie(c, pendingLoginCookie)
		}
		return respondError(c, err, "verify_google_2fa_failed", "failed to complete Google sign-in")
	}

	h.expireCookie(c, pendingLoginCookie)
	return h.loginResponse(c, result)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"user":        user,
		"hasPassword": user.HasPassword(),
		"role":        user.Role,
		"isAdmin":     user.Role == models.UserRoleAdmin,
	})
}

// Logout revokes the caller's session when a valid token is presented. It
// always succeeds so clients can call it unconditionally.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user != nil {
		err := h.Accounts.Logout(c.UserContext(), user.ID, middleware.GetCurrentSessionID(c))
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			return respondError(c, err, "logout_failed", "failed to sign out")
		}
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "signed out"})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}

	created, err := h.Accounts.ChangePassword(c.UserContext(), user.ID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return respondError(c, err, "change_password_failed", "failed changing password")
	}

	message := "password changed"
	if created {
		message = "password created; you can now also sign in with email and password"
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": message})
}

func (h *AuthHandler) CheckGoogleAccount(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	status, err := h.Accounts.GoogleAccount(c.UserContext(), user.ID)
	if err != nil {
		return respondError(c, err, "check_google_account_failed", "failed checking Google account")
	}
	return utils.Success(c, fiber.StatusOK, status)
}
