package services

import (
	"context"
	"errors"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DefaultPendingLoginTTL      = 10 * time.Minute
	DefaultPendingLoginAttempts = 5
)

// PendingLoginStore keeps the short-lived records that sit between a passed
// primary check and the second factor.
type PendingLoginStore struct {
	DB          *gorm.DB
	TTL         time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewPendingLoginStore(db *gorm.DB, ttl time.Duration, maxAttempts int) *PendingLoginStore {
	if ttl <= 0 {
		ttl = DefaultPendingLoginTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPendingLoginAttempts
	}
	return &PendingLoginStore{DB: db, TTL: ttl, MaxAttempts: maxAttempts, Now: utcNow}
}

func (s *PendingLoginStore) now() time.Time {
	if s.Now == nil {
		return utcNow()
	}
	return s.Now()
}

// Create records a pending login, replacing any earlier one the account had
// from the same origin.
func (s *PendingLoginStore) Create(ctx context.Context, accountID uuid.UUID, origin models.LoginOrigin) (*models.PendingLogin, error) {
	pending := &models.PendingLogin{
		UserID:    accountID,
		Origin:    origin,
		ExpiresAt: s.now().Add(s.TTL),
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ? AND origin = ?", accountID, origin).Delete(&models.PendingLogin{}).Error; err != nil {
			return err
		}
		return tx.Create(pending).Error
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return pending, nil
}

// Load returns a live pending login. Missing, expired and exhausted records
// all look the same to the caller.
func (s *PendingLoginStore) Load(ctx context.Context, id uuid.UUID) (*models.PendingLogin, error) {
	if id == uuid.Nil {
		return nil, ErrNoPendingLogin
	}
	var pending models.PendingLogin
	err := s.DB.WithContext(ctx).First(&pending, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPendingLogin
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if !s.now().Before(pending.ExpiresAt) || pending.Attempts >= s.MaxAttempts {
		_ = s.delete(ctx, id)
		return nil, ErrNoPendingLogin
	}
	return &pending, nil
}

// RecordFailure counts a wrong code against the record and discards it once
// the attempt budget is spent.
func (s *PendingLoginStore) RecordFailure(ctx context.Context, pending *models.PendingLogin) error {
	err := s.DB.WithContext(ctx).Model(&models.PendingLogin{}).
		Where("id = ?", pending.ID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
	if err != nil {
		return storeErr(err)
	}
	pending.Attempts++
	if pending.Attempts >= s.MaxAttempts {
		return s.delete(ctx, pending.ID)
	}
	return nil
}

// Consume deletes the record. Exactly one caller can consume a given record;
// the others get ErrNoPendingLogin.
func (s *PendingLoginStore) Consume(ctx context.Context, id uuid.UUID) error {
	result := s.DB.WithContext(ctx).Unscoped().Delete(&models.PendingLogin{}, "id = ?", id)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrNoPendingLogin
	}
	return nil
}

func (s *PendingLoginStore) delete(ctx context.Context, id uuid.UUID) error {
	return storeErr(s.DB.WithContext(ctx).Unscoped().Delete(&models.PendingLogin{}, "id = ?", id).Error)
}

func (s *PendingLoginStore) SweepExpired(ctx context.Context) (int64, error) {
	result := s.DB.WithContext(ctx).Unscoped().
		Where("expires_at <= ?", s.now()).
		Delete(&models.PendingLogin{})
	if result.Error != nil {
		return 0, storeErr(result.Error)
	}
	return result.RowsAffected, nil
}
