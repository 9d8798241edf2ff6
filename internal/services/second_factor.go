package services

import (
	"fmt"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
)

// VerifyResult is the outcome of checking a second-factor code.
// UpdatedBackupCodes is only meaningful when UsedBackupCode is set.
type VerifyResult struct {
	Verified           bool
	UsedBackupCode     bool
	UpdatedBackupCodes []string
}

// SecondFactorVerifier accepts either a TOTP code or one of the account's
// backup codes. It never writes; callers persist UpdatedBackupCodes.
type SecondFactorVerifier struct {
	TOTP *TOTPEngine
}

func NewSecondFactorVerifier(engine *TOTPEngine) *SecondFactorVerifier {
	return &SecondFactorVerifier{TOTP: engine}
}

func (v *SecondFactorVerifier) Verify(secret, code string, backupCodes []string) VerifyResult {
	if v.TOTP.Validate(secret, code) {
		return VerifyResult{Verified: true, UpdatedBackupCodes: backupCodes}
	}
	if remaining, ok := consumeBackupCode(backupCodes, code); ok {
		return VerifyResult{Verified: true, UsedBackupCode: true, UpdatedBackupCodes: remaining}
	}
	return VerifyResult{UpdatedBackupCodes: backupCodes}
}

// openSecret unseals the account's TOTP secret. A secret that does not open
// means the sealing key or the stored value is wrong, which no code the user
// types can fix.
func openSecret(user *models.User) (string, error) {
	secret, err := utils.OpenSecret(user.ID, user.TwoFactorSecret)
	if err != nil {
		logger.ErrorWithUser(user.ID.String(), "2fa_secret_unreadable", err, nil)
		return "", fmt.Errorf("%w: two-factor secret could not be opened", ErrStoreFailure)
	}
	return secret, nil
}
