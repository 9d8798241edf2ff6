package services

import (
	"context"
	"errors"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	VerificationTokenTTL = 24 * time.Hour
	ResetTokenTTL        = 30 * time.Minute

	oneTimeTokenBytes = 32
)

// TokenStore issues and redeems the single-use email verification and
// password reset tokens.
type TokenStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{DB: db, Now: utcNow}
}

func (s *TokenStore) now() time.Time {
	if s.Now == nil {
		return utcNow()
	}
	return s.Now()
}

func (s *TokenStore) IssueVerification(ctx context.Context, accountID uuid.UUID) (string, error) {
	token, err := utils.RandomHex(oneTimeTokenBytes)
	if err != nil {
		return "", err
	}
	row := &models.VerificationToken{
		UserID:    accountID,
		Token:     token,
		ExpiresAt: s.now().Add(VerificationTokenTTL),
	}
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		return "", storeErr(err)
	}
	return token, nil
}

// RedeemVerification marks the token's account verified and deletes the
// token. An expired token is deleted and reported as ErrExpired.
func (s *TokenStore) RedeemVerification(ctx context.Context, token string) (uuid.UUID, error) {
	var accountID uuid.UUID
	expired := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.VerificationToken
		if err := tx.Where("token = ?", token).First(&row).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(&row).Error; err != nil {
			return err
		}
		if !s.now().Before(row.ExpiresAt) {
			expired = true
			return nil
		}
		accountID = row.UserID
		return tx.Model(&models.User{}).Where("id = ?", row.UserID).Update("is_verified", true).Error
	})
	if err == nil && expired {
		return uuid.Nil, ErrExpired
	}
	return accountID, redeemErr(err)
}

// IssueReset creates the account's reset token, replacing any earlier one.
func (s *TokenStore) IssueReset(ctx context.Context, accountID uuid.UUID) (string, error) {
	token, err := utils.RandomHex(oneTimeTokenBytes)
	if err != nil {
		return "", err
	}
	row := &models.ResetPasswordToken{
		UserID:    accountID,
		Token:     token,
		ExpiresAt: s.now().Add(ResetTokenTTL),
	}
	err = s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "expires_at", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return "", storeErr(err)
	}
	return token, nil
}

// RedeemReset sets a new password hash for the token's account and deletes
// the token.
func (s *TokenStore) RedeemReset(ctx context.Context, token, passwordHash string) (uuid.UUID, error) {
	var accountID uuid.UUID
	expired := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.ResetPasswordToken
		if err := tx.Where("token = ?", token).First(&row).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Delete(&row).Error; err != nil {
			return err
		}
		if !s.now().Before(row.ExpiresAt) {
			expired = true
			return nil
		}
		accountID = row.UserID
		return tx.Model(&models.User{}).Where("id = ?", row.UserID).Update("password_hash", passwordHash).Error
	})
	if err == nil && expired {
		return uuid.Nil, ErrExpired
	}
	return accountID, redeemErr(err)
}

func redeemErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrInvalidToken
	default:
		return storeErr(err)
	}
}

// SweepExpired deletes verification and reset tokens past their expiry.
func (s *TokenStore) SweepExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var total int64
	for _, model := range []interface{}{&models.VerificationToken{}, &models.ResetPasswordToken{}} {
		result := s.DB.WithContext(ctx).Unscoped().Where("expires_at <= ?", now).Delete(model)
		if result.Error != nil {
			return total, storeErr(result.Error)
		}
		total += result.RowsAffected
	}
	return total, nil
}
