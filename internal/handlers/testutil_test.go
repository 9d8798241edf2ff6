package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/middleware"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

const (
	testFrontendURL = "http://localhost:3000"
	testTOTPSecret  = "JBSWY3DPEHPK3PXP"
)

type capturedMail struct {
	kind  string
	to    string
	token string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []capturedMail
}

func (m *captureMailer) SendVerificationEmail(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{kind: "verify", to: to, token: token})
	return nil
}

func (m *captureMailer) SendResetPasswordEmail(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, capturedMail{kind: "reset", to: to, token: token})
	return nil
}

func (m *captureMailer) lastToken(t *testing.T, kind string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i].token
		}
	}
	t.Fatalf("no %s mail was sent", kind)
	return ""
}

// fakeGoogle hands out profiles keyed by authorization code.
type fakeGoogle struct {
	profiles map[string]*services.GoogleProfile
}

func (g *fakeGoogle) AuthCodeURL(state string) string {
	return "https://accounts.google.test/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (g *fakeGoogle) Exchange(_ context.Context, code string) (*services.GoogleProfile, error) {
	profile, ok := g.profiles[code]
	if !ok {
		return nil, errors.New("unknown authorization code")
	}
	return profile, nil
}

type testEnv struct {
	app       *fiber.App
	db        *gorm.DB
	mailer    *captureMailer
	google    *fakeGoogle
	sessions  *services.SessionRegistry
	audit     *services.AuditService
	totp      *services.TOTPEngine
	twoFactor *services.TwoFactorService
}

var testSetupOnce sync.Once

type envOption func(*envOptions)

type envOptions struct {
	enforceRevocation bool
	googleDisabled    bool
}

func withRevocationEnforced() envOption {
	return func(o *envOptions) { o.enforceRevocation = true }
}

func withoutGoogle() envOption {
	return func(o *envOptions) { o.googleDisabled = true }
}

func setupTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var options envOptions
	for _, opt := range opts {
		opt(&options)
	}

	testSetupOnce.Do(func() {
		logger.SetOutput(nil)
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-encryption-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	auditService := services.NewAuditService(db, nil, 100)
	t.Cleanup(auditService.Flush)

	accounts := services.NewAccountStore(db)
	sessions := services.NewSessionRegistry(db, services.DefaultSessionTTL)
	pending := services.NewPendingLoginStore(db, 10*time.Minute, 5)
	tokens := services.NewTokenStore(db)
	totpEngine := services.NewTOTPEngine("Basic Login Test")
	mailer := &captureMailer{}

	accountService := services.NewAccountService(accounts, tokens, sessions, mailer, auditService)
	accountService.Dispatch = func(fn func()) { fn() }
	twoFactorService := services.NewTwoFactorService(accounts, totpEngine, auditService)
	loginEngine := services.NewLoginEngine(accounts, sessions, pending, twoFactorService.Verifier, auditService)

	google := &fakeGoogle{profiles: map[string]*services.GoogleProfile{}}
	var provider services.IdentityProvider = google
	if options.googleDisabled {
		provider = nil
	}

	serverCfg := config.ServerConfig{FrontendURL: testFrontendURL, AllowedOrigins: testFrontendURL}
	authHandler := NewAuthHandler(accountService, loginEngine, provider, serverCfg, 10*time.Minute)
	securityHandler := NewSecurityHandler(accountService, twoFactorService, sessions, auditService)
	authMiddleware := middleware.NewAuthMiddleware(accounts, sessions, options.enforceRevocation)

	app := fiber.New()
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(serverCfg))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	RegisterRoutes(app, authHandler, securityHandler, authMiddleware)

	return &testEnv{
		app:       app,
		db:        db,
		mailer:    mailer,
		google:    google,
		sessions:  sessions,
		audit:     auditService,
		totp:      totpEngine,
		twoFactor: twoFactorService,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, verified bool) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: &hash,
		Name:         "Test User",
		FirstName:    "Test",
		LastName:     "User",
		Role:         models.UserRoleUser,
		IsVerified:   verified,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	return user
}

func createGoogleUser(t *testing.T, db *gorm.DB, email, googleID string) *models.User {
	t.Helper()

	user := &models.User{
		Email:      email,
		GoogleID:   &googleID,
		Name:       "Google User",
		FirstName:  "Google",
		LastName:   "User",
		Role:       models.UserRoleUser,
		IsVerified: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating google user: %v", err)
	}
	return user
}

// enableTwoFactor turns on 2FA with the fixed test secret and the given
// backup codes.
func enableTwoFactor(t *testing.T, db *gorm.DB, user *models.User, backupCodes ...string) {
	t.Helper()

	secret, err := utils.SealSecret(user.ID, testTOTPSecret)
	if err != nil {
		t.Fatalf("failed encrypting secret: %v", err)
	}
	err = db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"two_factor_enabled":      true,
		"two_factor_secret":       secret,
		"two_factor_backup_codes": services.EncodeBackupCodes(backupCodes),
	}).Error
	if err != nil {
		t.Fatalf("failed enabling 2FA: %v", err)
	}
}

func currentCode(t *testing.T, env *testEnv) string {
	t.Helper()
	code, err := env.totp.CodeAt(testTOTPSecret, time.Now().UTC())
	if err != nil {
		t.Fatalf("failed generating TOTP code: %v", err)
	}
	return code
}

// signIn creates a session for user and returns a bearer token bound to it.
func signIn(t *testing.T, env *testEnv, user *models.User) (string, *models.Session) {
	t.Helper()

	session, err := env.sessions.Create(context.Background(), user.ID, services.ClientInfo{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		IPAddress: "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("failed creating session: %v", err)
	}
	token, err := utils.GenerateToken(user, session.ID)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}
	return token, session
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T (%+v)", body["data"], body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
