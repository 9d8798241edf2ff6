package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountStore is the credential store: accounts, their password hashes and
// their second-factor material.
type AccountStore struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{DB: db, Now: utcNow}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

func (s *AccountStore) now() time.Time {
	if s.Now == nil {
		return utcNow()
	}
	return s.Now()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.findOne(ctx, "id = ?", id)
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "email = ?", email)
}

func (s *AccountStore) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	googleID = strings.TrimSpace(googleID)
	if googleID == "" {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, "google_id = ?", googleID)
}

func (s *AccountStore) findOne(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Where(query, args...).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &user, nil
}

// Create inserts a new account. The email is normalized first and must not
// already be registered.
func (s *AccountStore) Create(ctx context.Context, user *models.User) error {
	user.Email = NormalizeEmail(user.Email)
	if user.Role == "" {
		user.Role = models.UserRoleUser
	}

	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
		return storeErr(err)
	}
	if count > 0 {
		return ErrEmailTaken
	}

	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return storeErr(err)
	}
	return nil
}

func (s *AccountStore) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return s.updateOne(ctx, id, map[string]interface{}{"password_hash": hash})
}

func (s *AccountStore) MarkVerified(ctx context.Context, id uuid.UUID) error {
	return s.updateOne(ctx, id, map[string]interface{}{"is_verified": true})
}

func (s *AccountStore) updateOne(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := s.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TwoFactorState is the snapshot a second-factor change is conditioned on.
type TwoFactorState struct {
	Enabled     bool
	Secret      string
	BackupCodes string
}

func twoFactorStateOf(user *models.User) TwoFactorState {
	return TwoFactorState{
		Enabled:     user.TwoFactorEnabled,
		Secret:      user.TwoFactorSecret,
		BackupCodes: user.TwoFactorBackupCodes,
	}
}

// SwapTwoFactor applies updates only if the account's second-factor columns
// still hold expected. It reports false when another request changed them
// first, which is how a backup code is spent at most once.
func (s *AccountStore) SwapTwoFactor(ctx context.Context, id uuid.UUID, expected TwoFactorState, updates map[string]interface{}) (bool, error) {
	result := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND two_factor_enabled = ? AND two_factor_secret = ? AND two_factor_backup_codes = ?",
			id, expected.Enabled, expected.Secret, expected.BackupCodes).
		Updates(updates)
	if result.Error != nil {
		return false, storeErr(result.Error)
	}
	return result.RowsAffected == 1, nil
}

// SpendBackupCode persists the list left after a backup code was used. It
// fails with ErrInvalidTwoFactorCode when the code was spent concurrently.
func (s *AccountStore) SpendBackupCode(ctx context.Context, user *models.User, remaining []string) error {
	encoded := EncodeBackupCodes(remaining)
	ok, err := s.SwapTwoFactor(ctx, user.ID, twoFactorStateOf(user), map[string]interface{}{
		"two_factor_backup_codes": encoded,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTwoFactorCode
	}
	user.TwoFactorBackupCodes = encoded
	return nil
}

// GoogleProfile is the identity asserted by Google after a successful sign-in.
type GoogleProfile struct {
	GoogleID      string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
}

// FindOrCreateGoogleAccount resolves a Google identity to an account. An
// account with the same email gets the Google ID and picture linked when they
// are missing; otherwise a verified USER account is created.
func (s *AccountStore) FindOrCreateGoogleAccount(ctx context.Context, profile *GoogleProfile) (*models.User, bool, error) {
	if profile == nil || profile.GoogleID == "" {
		return nil, false, ErrInvalidCredentials
	}
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return nil, false, ErrInvalidEmail
	}

	existing, err := s.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	if existing != nil {
		updates := map[string]interface{}{}
		if !existing.IsGoogleAccount() {
			updates["google_id"] = profile.GoogleID
			existing.GoogleID = &profile.GoogleID
		}
		if existing.ProfilePicture == nil && profile.Picture != "" {
			updates["profile_picture"] = profile.Picture
			existing.ProfilePicture = &profile.Picture
		}
		if len(updates) > 0 {
			if err := s.updateOne(ctx, existing.ID, updates); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	user := &models.User{
		Email:      email,
		GoogleID:   &profile.GoogleID,
		Name:       profile.Name,
		FirstName:  profile.GivenName,
		LastName:   profile.FamilyName,
		Role:       models.UserRoleUser,
		IsVerified: true,
	}
	if profile.Picture != "" {
		user.ProfilePicture = &profile.Picture
	}
	if err := s.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// Delete removes the account and everything hanging off it in one
// transaction.
func (s *AccountStore) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{
			&models.VerificationToken{},
			&models.ResetPasswordToken{},
			&models.PendingLogin{},
			&models.Session{},
			&models.AuditLog{},
		} {
			if err := tx.Unscoped().Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		result := tx.Unscoped().Delete(&models.User{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storeErr(err)
	}
	return err
}

func EncodeBackupCodes(codes []string) string {
	if codes == nil {
		codes = []string{}
	}
	data, _ := json.Marshal(codes)
	return string(data)
}

// DecodeBackupCodes parses the stored list. An empty or unreadable value
// yields no codes.
func DecodeBackupCodes(encoded string) []string {
	if encoded == "" {
		return nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(encoded), &codes); err != nil {
		return nil
	}
	return codes
}
