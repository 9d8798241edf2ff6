package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/google/uuid"
)

type LoginOutcome string

const (
	// OutcomeAuthenticated carries a bearer token.
	OutcomeAuthenticated LoginOutcome = "authenticated"
	// OutcomeTwoFactorRequired asks the client to resubmit with a code.
	OutcomeTwoFactorRequired LoginOutcome = "two_factor_required"
	// OutcomePendingTwoFactor means a PendingLogin was stored and the client
	// must finish with VerifyPendingGoogleLogin.
	OutcomePendingTwoFactor LoginOutcome = "pending_two_factor"
)

type LoginResult struct {
	Outcome   LoginOutcome
	Token     string
	Account   *models.User
	Session   *models.Session
	PendingID uuid.UUID
}

// LoginEngine decides, for each sign-in attempt, whether the caller is fully
// authenticated, owes a second factor, or is rejected. Primary credentials
// are always checked before the second factor.
type LoginEngine struct {
	Accounts *AccountStore
	Sessions *SessionRegistry
	Pending  *PendingLoginStore
	Verifier *SecondFactorVerifier
	Audit    *AuditService
}

func NewLoginEngine(accounts *AccountStore, sessions *SessionRegistry, pending *PendingLoginStore, verifier *SecondFactorVerifier, audit *AuditService) *LoginEngine {
	return &LoginEngine{
		Accounts: accounts,
		Sessions: sessions,
		Pending:  pending,
		Verifier: verifier,
		Audit:    audit,
	}
}

func (e *LoginEngine) AttemptPasswordLogin(ctx context.Context, email, password, code string, client ClientInfo) (*LoginResult, error) {
	user, err := e.Accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Warn("login_unknown_email", map[string]interface{}{"ip": client.IPAddress})
		}
		return nil, err
	}
	if !user.IsVerified {
		return nil, ErrUnverified
	}
	if !user.HasPassword() {
		return nil, ErrNoLocalPassword
	}
	if !utils.CheckPassword(password, *user.PasswordHash) {
		e.recordFailure(user, client, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	return e.secondStep(ctx, user, code, client, models.LoginOriginPassword)
}

// AttemptGoogleLogin signs in an account already linked to googleID, with
// the same two-step contract as the password path.
func (e *LoginEngine) AttemptGoogleLogin(ctx context.Context, googleID, code string, client ClientInfo) (*LoginResult, error) {
	user, err := e.Accounts.FindByGoogleID(ctx, googleID)
	if err != nil {
		return nil, err
	}
	return e.secondStep(ctx, user, code, client, models.LoginOriginGoogle)
}

// CompleteGoogleRedirect finishes the browser redirect flow once Google has
// vouched for profile. Accounts with 2FA get a pending login instead of a
// token.
func (e *LoginEngine) CompleteGoogleRedirect(ctx context.Context, profile *GoogleProfile, client ClientInfo) (*LoginResult, error) {
	user, created, err := e.Accounts.FindOrCreateGoogleAccount(ctx, profile)
	if err != nil {
		return nil, err
	}
	if created {
		e.Audit.Record(AuditEntry{
			UserID:    &user.ID,
			Action:    "account.google_created",
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		})
	}

	if !user.TwoFactorEnabled {
		return e.complete(ctx, user, client, models.LoginOriginGoogle, false)
	}

	pending, err := e.Pending.Create(ctx, user.ID, models.LoginOriginGoogle)
	if err != nil {
		return nil, err
	}
	logger.InfoWithUser(user.ID.String(), "login_pending_two_factor", map[string]interface{}{
		"origin": models.LoginOriginGoogle,
	})
	return &LoginResult{Outcome: OutcomePendingTwoFactor, Account: user, PendingID: pending.ID}, nil
}

// VerifyPendingGoogleLogin completes a redirect login that stopped for 2FA.
func (e *LoginEngine) VerifyPendingGoogleLogin(ctx context.Context, pendingID uuid.UUID, code string, client ClientInfo) (*LoginResult, error) {
	pending, err := e.Pending.Load(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending.Origin != models.LoginOriginGoogle {
		return nil, ErrNoPendingLogin
	}

	user, err := e.Accounts.FindByID(ctx, pending.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = e.Pending.Consume(ctx, pending.ID)
		}
		return nil, err
	}
	if !user.TwoFactorEnabled {
		_ = e.Pending.Consume(ctx, pending.ID)
		return nil, ErrNotTwoFactorEnabled
	}
	if code == "" {
		return nil, ErrMissingCode
	}

	result, err := e.verify(user, code)
	if err != nil {
		return nil, err
	}
	if !result.Verified {
		e.recordFailure(user, client, "invalid_two_factor_code")
		if err := e.Pending.RecordFailure(ctx, pending); err != nil {
			logger.ErrorWithUser(user.ID.String(), "pending_login_attempt_update_failed", err, nil)
		}
		return nil, ErrInvalidTwoFactorCode
	}

	if err := e.Pending.Consume(ctx, pending.ID); err != nil {
		return nil, err
	}
	if result.UsedBackupCode {
		if err := e.Accounts.SpendBackupCode(ctx, user, result.UpdatedBackupCodes); err != nil {
			return nil, err
		}
	}
	return e.complete(ctx, user, client, models.LoginOriginGoogle, result.UsedBackupCode)
}

func (e *LoginEngine) secondStep(ctx context.Context, user *models.User, code string, client ClientInfo, origin models.LoginOrigin) (*LoginResult, error) {
	if !user.TwoFactorEnabled {
		return e.complete(ctx, user, client, origin, false)
	}
	if code == "" {
		return &LoginResult{Outcome: OutcomeTwoFactorRequired, Account: user}, nil
	}

	result, err := e.verify(user, code)
	if err != nil {
		return nil, err
	}
	if !result.Verified {
		e.recordFailure(user, client, "invalid_two_factor_code")
		return nil, ErrInvalidTwoFactorCode
	}
	if result.UsedBackupCode {
		if err := e.Accounts.SpendBackupCode(ctx, user, result.UpdatedBackupCodes); err != nil {
			return nil, err
		}
	}
	return e.complete(ctx, user, client, origin, result.UsedBackupCode)
}

func (e *LoginEngine) verify(user *models.User, code string) (VerifyResult, error) {
	secret, err := openSecret(user)
	if err != nil {
		return VerifyResult{}, err
	}
	return e.Verifier.Verify(secret, code, DecodeBackupCodes(user.TwoFactorBackupCodes)), nil
}

// complete records a session and issues the bearer token. A session that
// cannot be stored does not block the login.
func (e *LoginEngine) complete(ctx context.Context, user *models.User, client ClientInfo, origin models.LoginOrigin, usedBackupCode bool) (*LoginResult, error) {
	sessionID := uuid.Nil
	session, err := e.Sessions.Create(ctx, user.ID, client)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "session_create_failed", err, nil)
		session = nil
	} else {
		sessionID = session.ID
	}

	token, err := utils.GenerateToken(user, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	var auditSession *uuid.UUID
	if session != nil {
		auditSession = &session.ID
	}
	e.Audit.Record(AuditEntry{
		UserID:    &user.ID,
		SessionID: auditSession,
		Action:    "login.success",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details: map[string]interface{}{
			"method":           string(origin),
			"used_backup_code": usedBackupCode,
		},
	})

	return &LoginResult{Outcome: OutcomeAuthenticated, Token: token, Account: user, Session: session}, nil
}

func (e *LoginEngine) recordFailure(user *models.User, client ClientInfo, reason string) {
	logger.WarnWithUser(user.ID.String(), "login_failed", map[string]interface{}{
		"reason": reason,
		"ip":     client.IPAddress,
	})
	e.Audit.Record(AuditEntry{
		UserID:    &user.ID,
		Action:    "login.failed",
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Details:   map[string]interface{}{"reason": reason},
	})
}
