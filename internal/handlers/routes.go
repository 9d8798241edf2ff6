package handlers

import (
	"github.com/dietchse/basic-login-ap/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(app *fiber.App, authHandler *AuthHandler, securityHandler *SecurityHandler, authMiddleware *middleware.AuthMiddleware) {
	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", authHandler.Register)
	authRoutes.Post("/login", authHandler.Login)
	authRoutes.Get("/verify-email", authHandler.VerifyEmail)
	authRoutes.Get("/verify-email/:token", authHandler.VerifyEmail)
	authRoutes.Post("/resend-verification", authHandler.ResendVerification)
	authRoutes.Post("/forgot-password", authHandler.ForgotPassword)
	authRoutes.Post("/reset-password", authHandler.ResetPassword)
	authRoutes.Get("/google", authHandler.GoogleRedirect)
	authRoutes.Get("/google/callback", authHandler.GoogleCallback)
	authRoutes.Post("/google-login-direct", authHandler.GoogleLoginDirect)
	authRoutes.Post("/verify-google-2fa", authHandler.VerifyGoogleTwoFactor)
	authRoutes.Post("/logout", authMiddleware.OptionalAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)
	authRoutes.Put("/change-password", authMiddleware.RequireAuth, authHandler.ChangePassword)
	authRoutes.Get("/check-google-account", authMiddleware.RequireAuth, authHandler.CheckGoogleAccount)

	securityRoutes := api.Group("/security", authMiddleware.RequireAuth)
	securityRoutes.Get("/security-info", securityHandler.SecurityInfo)
	securityRoutes.Post("/enable-2fa", securityHandler.EnableTwoFactor)
	securityRoutes.Post("/verify-2fa", securityHandler.VerifyTwoFactor)
	securityRoutes.Post("/disable-2fa", securityHandler.DisableTwoFactor)
	securityRoutes.Get("/backup-codes", securityHandler.BackupCodes)
	securityRoutes.Post("/generate-backup-codes", securityHandler.BackupCodes)
	securityRoutes.Get("/active-sessions", securityHandler.ActiveSessions)
	securityRoutes.Delete("/sessions/:sessionId", securityHandler.RevokeSession)
	securityRoutes.Delete("/sessions", securityHandler.RevokeOtherSessions)
	securityRoutes.Delete("/delete-account", securityHandler.DeleteAccount)
	securityRoutes.Get("/events", securityHandler.Events)
	securityRoutes.Get("/events/export", securityHandler.ExportEvents)
}
