package services

import (
	"context"
	"fmt"

	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/google/uuid"
)

// EnrollmentSetup is what a user needs to add the account to an
// authenticator app. It is shown once.
type EnrollmentSetup struct {
	Secret      string   `json:"secret"`
	OtpauthURL  string   `json:"otpauthUrl"`
	QRCode      string   `json:"qrCode"`
	BackupCodes []string `json:"backupCodes"`
}

type EnrollmentResult struct {
	UsedBackupCode bool `json:"usedBackupCode"`
}

// TwoFactorService drives an account through enrollment, confirmation and
// removal of its second factor.
type TwoFactorService struct {
	Accounts *AccountStore
	TOTP     *TOTPEngine
	Verifier *SecondFactorVerifier
	Audit    *AuditService
}

func NewTwoFactorService(accounts *AccountStore, engine *TOTPEngine, audit *AuditService) *TwoFactorService {
	return &TwoFactorService{
		Accounts: accounts,
		TOTP:     engine,
		Verifier: NewSecondFactorVerifier(engine),
		Audit:    audit,
	}
}

// BeginEnrollment issues a fresh secret and backup codes. Calling it again
// before confirming replaces both.
func (s *TwoFactorService) BeginEnrollment(ctx context.Context, accountID uuid.UUID) (*EnrollmentSetup, error) {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := s.TOTP.Generate(user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	codes, err := GenerateBackupCodes()
	if err != nil {
		return nil, fmt.Errorf("generate backup codes: %w", err)
	}
	qr, err := QRCodeDataURL(key)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	sealed, err := utils.SealSecret(user.ID, key.Secret())
	if err != nil {
		return nil, fmt.Errorf("seal totp secret: %w", err)
	}

	ok, err := s.Accounts.SwapTwoFactor(ctx, user.ID, twoFactorStateOf(user), map[string]interface{}{
		"two_factor_secret":       sealed,
		"two_factor_backup_codes": EncodeBackupCodes(codes),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: account changed during enrollment", ErrStoreFailure)
	}

	s.Audit.Record(AuditEntry{UserID: &user.ID, Action: "2fa.setup_started"})
	return &EnrollmentSetup{
		Secret:      key.Secret(),
		OtpauthURL:  key.URL(),
		QRCode:      qr,
		BackupCodes: codes,
	}, nil
}

// CommitEnrollment turns 2FA on once the user proves possession of the
// secret, either with a TOTP code or one of the issued backup codes.
func (s *TwoFactorService) CommitEnrollment(ctx context.Context, accountID uuid.UUID, code string) (*EnrollmentResult, error) {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorSecret == "" {
		return nil, ErrSetupNotStarted
	}
	if user.TwoFactorEnabled {
		return nil, ErrAlreadyEnabled
	}

	secret, err := openSecret(user)
	if err != nil {
		return nil, err
	}
	result := s.Verifier.Verify(secret, code, DecodeBackupCodes(user.TwoFactorBackupCodes))
	if !result.Verified {
		logger.WarnWithUser(user.ID.String(), "2fa_enroll_code_rejected", nil)
		return nil, ErrInvalidTwoFactorCode
	}

	updates := map[string]interface{}{"two_factor_enabled": true}
	if result.UsedBackupCode {
		updates["two_factor_backup_codes"] = EncodeBackupCodes(result.UpdatedBackupCodes)
	}
	ok, err := s.Accounts.SwapTwoFactor(ctx, user.ID, twoFactorStateOf(user), updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTwoFactorCode
	}

	s.Audit.Record(AuditEntry{
		UserID:  &user.ID,
		Action:  "2fa.enabled",
		Details: map[string]interface{}{"used_backup_code": result.UsedBackupCode},
	})
	return &EnrollmentResult{UsedBackupCode: result.UsedBackupCode}, nil
}

// Disable removes the second factor. The password is re-checked when the
// account has one; a valid second-factor code is always required.
func (s *TwoFactorService) Disable(ctx context.Context, accountID uuid.UUID, password, code string) error {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrNotEnabled
	}
	if user.HasPassword() && !utils.CheckPassword(password, *user.PasswordHash) {
		return ErrInvalidCredentials
	}
	if code == "" {
		return ErrMissingCode
	}

	secret, err := openSecret(user)
	if err != nil {
		return err
	}
	result := s.Verifier.Verify(secret, code, DecodeBackupCodes(user.TwoFactorBackupCodes))
	if !result.Verified {
		logger.WarnWithUser(user.ID.String(), "2fa_disable_code_rejected", nil)
		return ErrInvalidTwoFactorCode
	}

	ok, err := s.Accounts.SwapTwoFactor(ctx, user.ID, twoFactorStateOf(user), map[string]interface{}{
		"two_factor_enabled":      false,
		"two_factor_secret":       "",
		"two_factor_backup_codes": "",
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTwoFactorCode
	}

	s.Audit.Record(AuditEntry{UserID: &user.ID, Action: "2fa.disabled"})
	return nil
}

func (s *TwoFactorService) ListBackupCodes(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	user, err := s.Accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrNotEnabled
	}
	codes := DecodeBackupCodes(user.TwoFactorBackupCodes)
	if codes == nil {
		codes = []string{}
	}
	return codes, nil
}
