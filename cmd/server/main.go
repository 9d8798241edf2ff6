package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/database"
	"github.com/dietchse/basic-login-ap/internal/handlers"
	"github.com/dietchse/basic-login-ap/internal/middleware"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/internal/storage"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureEncryption(cfg.TwoFactor.EncryptionSecret)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.SeedAdmin(db, cfg.Admin); err != nil {
		log.Fatalf("failed seeding admin account: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var archive services.ArchiveStore
	if cfg.MinIO.Enabled {
		auditArchive, err := storage.NewAuditArchive(cfg.MinIO)
		if err != nil {
			log.Fatalf("minio initialization failed: %v", err)
		}
		if err := auditArchive.EnsureBucket(ctx); err != nil {
			log.Fatalf("failed ensuring minio bucket: %v", err)
		}
		archive = auditArchive
	}

	auditService := services.NewAuditService(db, archive, cfg.Audit.QueueSize)
	auditService.StartExporter(ctx, cfg.Audit.ExportInterval)

	accounts := services.NewAccountStore(db)
	sessions := services.NewSessionRegistry(db, cfg.Session.TTL)
	pending := services.NewPendingLoginStore(db, cfg.TwoFactor.PendingTTL, cfg.TwoFactor.MaxPendingAttempts)
	tokens := services.NewTokenStore(db)
	totpEngine := services.NewTOTPEngine(cfg.TwoFactor.Issuer)
	mailer := services.NewMailer(cfg.Mail, cfg.Server.FrontendURL, cfg.TwoFactor.Issuer)

	accountService := services.NewAccountService(accounts, tokens, sessions, mailer, auditService)
	twoFactorService := services.NewTwoFactorService(accounts, totpEngine, auditService)
	loginEngine := services.NewLoginEngine(accounts, sessions, pending, twoFactorService.Verifier, auditService)

	var google services.IdentityProvider
	provider, err := services.NewGoogleOAuthProvider(cfg.Google)
	switch {
	case err == nil:
		google = provider
	case errors.Is(err, services.ErrGoogleDisabled):
		logger.Warn("google_login_disabled", map[string]interface{}{
			"reason": "GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set",
		})
	default:
		log.Fatalf("google provider initialization failed: %v", err)
	}

	janitor := services.NewJanitor(sessions, pending, tokens)
	janitor.Start(ctx, cfg.Session.SweepInterval)

	authHandler := handlers.NewAuthHandler(accountService, loginEngine, google, cfg.Server, cfg.TwoFactor.PendingTTL)
	securityHandler := handlers.NewSecurityHandler(accountService, twoFactorService, sessions, auditService)

	authMiddleware := middleware.NewAuthMiddleware(accounts, sessions, cfg.Session.EnforceRevocation)

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	handlers.RegisterRoutes(app, authHandler, securityHandler, authMiddleware)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":               cfg.Server.Port,
		"address":            listenAddr,
		"google_enabled":     google != nil,
		"audit_archive":      archive != nil,
		"enforce_revocation": cfg.Session.EnforceRevocation,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		cancel()
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			auditService.Flush()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
