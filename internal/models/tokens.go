package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationToken struct {
	BaseModel
	UserID    uuid.UUID `json:"-" gorm:"type:uuid;not null;index"`
	Token     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"-" gorm:"not null;index"`
}

func (VerificationToken) TableName() string {
	return "verification_tokens"
}

// ResetPasswordToken is unique per user; issuing a new one replaces the old.
type ResetPasswordToken struct {
	BaseModel
	UserID    uuid.UUID `json:"-" gorm:"type:uuid;uniqueIndex;not null"`
	Token     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"-" gorm:"not null;index"`
}

func (ResetPasswordToken) TableName() string {
	return "reset_password_tokens"
}
