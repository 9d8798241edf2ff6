package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/google/uuid"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type SecurityInfo struct {
	HasPassword      bool      `json:"hasPassword"`
	IsGoogleAccount  bool      `json:"isGoogleAccount"`
	CanSetPassword   bool      `json:"canSetPassword"`
	EmailVerified    bool      `json:"emailVerified"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	BackupCodesCount int       `json:"backupCodesCount"`
	ActiveSessions   int64     `json:"activeSessions"`
	AccountCreated   time.Time `json:"accountCreated"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

type GoogleAccountStatus struct {
	HasGoogleAccount bool   `json:"hasGoogleAccount"`
	Email            string `json:"email,omitempty"`
	Name             string `json:"name,omitempty"`
	GoogleID         string `json:"googleId,omitempty"`
}

// AccountService covers the account lifecycle around login: registration,
// email verification, password management and deletion.
type AccountService struct {
	Accounts *AccountStore
	Tokens   *TokenStore
	Sessions *SessionRegistry
	Mailer   Mailer
	Audit    *AuditService
	// Dispatch runs mail delivery. It defaults to a new goroutine.
	Dispatch func(func())
}

func NewAccountService(accounts *AccountStore, tokens *TokenStore, sessions *SessionRegistry, mailer Mailer, audit *AuditService) *AccountService {
	return &AccountService{
		Accounts: accounts,
		Tokens:   tokens,
		Sessions: sessions,
		Mailer:   mailer,
		Audit:    audit,
	}
}

func (s *AccountService) dispatch(fn func()) {
	if s.Dispatch != nil {
		s.Dispatch(fn)
		return
	}
	go fn()
}

func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return nil, ErrWeakPassword
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	firstName, lastName := splitName(name)
	user := &models.User{
		Email:        email,
		PasswordHash: &hash,
		Name:         name,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         models.UserRoleUser,
	}
	if err := s.Accounts.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.Tokens.IssueVerification(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	s.sendVerification(user, token)

	s.Audit.Record(AuditEntry{UserID: &user.ID, Action: "account.registered"})
	return user, nil
}

func (s *AccountService) sendVerification(user *models.User, token string) {
	to, id := user.Email, user.ID.String()
	s.dispatch(func() {
		if err := s.Mailer.SendVerificationEmail(to, token); err != nil {
			logger.ErrorWithUser(id, "verification_email_failed", err, nil)
		}
	})
}

func (s *AccountService) VerifyEmail(ctx context.Context, token string) error {
	accountID, err := s.Tokens.RedeemVerification(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	s.Audit.Record(AuditEntry{UserID: &accountID, Action: "account.email_verified"})
	return nil
}

// ResendVerification issues a fresh verification link for an unverified
// account.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}
	token, err := s.Tokens.IssueVerification(ctx, user.ID)
	if err != nil {
		return err
	}
	s.sendVerification(user, token)
	return nil
}

func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.Accounts.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.HasPassword() && user.IsGoogleAccount() {
		return ErrNoLocalPassword
	}

	token, err := s.Tokens.IssueReset(ctx, user.ID)
	if err != nil {
		return err
	}

	to, id := user.Email, user.ID.String()
	s.dispatch(func() {
		if err := s.Mailer.SendResetPasswordEmail(to, token); err != nil {
			logger.ErrorWithUser(id, "reset_email_failed", err, nil)
		}
	})
	s.Audit.Record(AuditEntry{UserID: &user.ID, Action: "password.reset_requested"})
	return nil
}

func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return ErrWeakPassword
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	accountID, err := s.Tokens.RedeemReset(ctx, strings.TrimSpace(token), hash)
	if err != nil {
		return err
	}
	s.Audit.Record(AuditEntry{UserID: &accountID, Action: "password.reset"})
	return nil
}

// ChangePassword sets a new password. Accounts that only have Google sign-in
// may set their first password without supplying a current one.
func (s *AccountService) ChangePassword(ctx context.Context, accountID uuid.UUID, currentPassword, newPassword string) (created bool, err error) {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return false, ErrWeakPassword
	}
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return false, err
	}

	if user.HasPassword() {
		if !utils.CheckPassword(currentPassword, *user.PasswordHash) {
			return false, ErrInvalidCredentials
		}
	} else {
		created = true
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return false, err
	}
	if err := s.Accounts.SetPasswordHash(ctx, user.ID, hash); err != nil {
		return false, err
	}

	action := "password.changed"
	if created {
		action = "password.created"
	}
	s.Audit.Record(AuditEntry{UserID: &user.ID, Action: action})
	return created, nil
}

// DeleteAccount permanently removes the account. The password is required
// unless the account has never had one.
func (s *AccountService) DeleteAccount(ctx context.Context, accountID uuid.UUID, password string) error {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}

	switch {
	case user.HasPassword():
		if !utils.CheckPassword(password, *user.PasswordHash) {
			return ErrInvalidCredentials
		}
	case user.IsGoogleAccount():
	default:
		return ErrInvalidCredentials
	}

	if err := s.Accounts.Delete(ctx, user.ID); err != nil {
		return err
	}
	logger.InfoWithUser(user.ID.String(), "account_deleted", map[string]interface{}{
		"email": logger.MaskEmail(user.Email),
	})
	return nil
}

// Logout ends the session a bearer token was issued for. Tokens without a
// session have nothing to revoke.
func (s *AccountService) Logout(ctx context.Context, accountID, sessionID uuid.UUID) error {
	if sessionID == uuid.Nil {
		return nil
	}
	if err := s.Sessions.Revoke(ctx, sessionID, accountID); err != nil {
		return err
	}
	s.Audit.Record(AuditEntry{UserID: &accountID, SessionID: &sessionID, Action: "session.logout"})
	return nil
}

func (s *AccountService) SecurityInfo(ctx context.Context, accountID uuid.UUID) (*SecurityInfo, error) {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	active, err := s.Sessions.CountActive(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &SecurityInfo{
		HasPassword:      user.HasPassword(),
		IsGoogleAccount:  user.IsGoogleAccount(),
		CanSetPassword:   user.IsGoogleAccount() && !user.HasPassword(),
		EmailVerified:    user.IsVerified,
		TwoFactorEnabled: user.TwoFactorEnabled,
		BackupCodesCount: len(DecodeBackupCodes(user.TwoFactorBackupCodes)),
		ActiveSessions:   active,
		AccountCreated:   user.CreatedAt,
		LastUpdated:      user.UpdatedAt,
	}, nil
}

func (s *AccountService) GoogleAccount(ctx context.Context, accountID uuid.UUID) (*GoogleAccountStatus, error) {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if errors.Is(err, ErrNotFound) {
		return &GoogleAccountStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsGoogleAccount() {
		return &GoogleAccountStatus{}, nil
	}
	return &GoogleAccountStatus{
		HasGoogleAccount: true,
		Email:            user.Email,
		Name:             user.DisplayName(),
		GoogleID:         *user.GoogleID,
	}, nil
}

func splitName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
