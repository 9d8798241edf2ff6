package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var setupOnce sync.Once

type authEnv struct {
	accounts *services.AccountStore
	sessions *services.SessionRegistry
	user     *models.User
}

func setupAuthEnv(t *testing.T) *authEnv {
	t.Helper()
	setupOnce.Do(func() {
		logger.SetOutput(nil)
		utils.ConfigureJWT("middleware-test-secret", 1)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	accounts := services.NewAccountStore(db)
	user := &models.User{Email: "mw@example.com", Name: "Middleware", IsVerified: true}
	if err := accounts.Create(context.Background(), user); err != nil {
		t.Fatalf("failed creating user: %v", err)
	}

	return &authEnv{
		accounts: accounts,
		sessions: services.NewSessionRegistry(db, time.Hour),
		user:     user,
	}
}

func newProtectedApp(mw *AuthMiddleware) *fiber.App {
	app := fiber.New()
	app.Get("/protected", mw.RequireAuth, func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		return c.JSON(fiber.Map{
			"email":     user.Email,
			"sessionId": GetCurrentSessionID(c).String(),
		})
	})
	app.Get("/optional", mw.OptionalAuth, func(c *fiber.Ctx) error {
		if user := GetCurrentUser(c); user != nil {
			return c.SendString(user.Email)
		}
		return c.SendString("anonymous")
	})
	return app
}

func doGet(t *testing.T, app *fiber.App, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.String()
}

func TestRequireAuth(t *testing.T) {
	env := setupAuthEnv(t)
	app := newProtectedApp(NewAuthMiddleware(env.accounts, env.sessions, false))

	if status, _ := doGet(t, app, "/protected", ""); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without header, got %d", status)
	}
	if status, _ := doGet(t, app, "/protected", "garbage"); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}

	token, err := utils.GenerateToken(env.user, uuid.Nil)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	status, body := doGet(t, app, "/protected", token)
	if status != http.StatusOK || !strings.Contains(body, "mw@example.com") {
		t.Fatalf("expected 200 with email, got %d %s", status, body)
	}
	if !strings.Contains(body, uuid.Nil.String()) {
		t.Fatalf("expected nil session id, got %s", body)
	}

	ghost := &models.User{Email: "ghost@example.com"}
	ghost.ID = uuid.New()
	ghostToken, err := utils.GenerateToken(ghost, uuid.Nil)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	if status, _ := doGet(t, app, "/protected", ghostToken); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted account, got %d", status)
	}
}

func TestRequireAuth_RevokedSession(t *testing.T) {
	env := setupAuthEnv(t)
	ctx := context.Background()

	session, err := env.sessions.Create(ctx, env.user.ID, services.ClientInfo{UserAgent: "test", IPAddress: "127.0.0.1"})
	if err != nil {
		t.Fatalf("failed creating session: %v", err)
	}
	token, err := utils.GenerateToken(env.user, session.ID)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	if err := env.sessions.Revoke(ctx, session.ID, env.user.ID); err != nil {
		t.Fatalf("failed revoking session: %v", err)
	}

	lenient := newProtectedApp(NewAuthMiddleware(env.accounts, env.sessions, false))
	if status, body := doGet(t, lenient, "/protected", token); status != http.StatusOK || !strings.Contains(body, session.ID.String()) {
		t.Fatalf("expected revoked session to be tolerated without enforcement, got %d %s", status, body)
	}

	strict := newProtectedApp(NewAuthMiddleware(env.accounts, env.sessions, true))
	if status, _ := doGet(t, strict, "/protected", token); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session under enforcement, got %d", status)
	}
	if _, body := doGet(t, strict, "/optional", token); body != "anonymous" {
		t.Fatalf("expected optional auth to ignore revoked session, got %s", body)
	}
}

func TestOptionalAuth(t *testing.T) {
	env := setupAuthEnv(t)
	app := newProtectedApp(NewAuthMiddleware(env.accounts, env.sessions, false))

	if _, body := doGet(t, app, "/optional", ""); body != "anonymous" {
		t.Fatalf("expected anonymous, got %s", body)
	}
	if _, body := doGet(t, app, "/optional", "not-a-jwt"); body != "anonymous" {
		t.Fatalf("expected anonymous for bad token, got %s", body)
	}

	token, err := utils.GenerateToken(env.user, uuid.Nil)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}
	if _, body := doGet(t, app, "/optional", token); body != "mw@example.com" {
		t.Fatalf("expected email, got %s", body)
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(config.ServerConfig{FrontendURL: "http://localhost:3000"}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials to be allowed, got %q", got)
	}
}
