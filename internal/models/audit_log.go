package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog is an append-only record of a security-relevant event on an
// account. Rows are never updated; they are removed only with the account.
type AuditLog struct {
	ID        uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    *uuid.UUID             `json:"userId,omitempty" gorm:"type:uuid;index"`
	Action    string                 `json:"action" gorm:"type:varchar(50);not null;index"`
	SessionID *uuid.UUID             `json:"sessionId,omitempty" gorm:"type:uuid"`
	Details   map[string]interface{} `json:"details,omitempty" gorm:"type:text;serializer:json"`
	IPAddress string                 `json:"ipAddress" gorm:"type:varchar(45);not null;default:''"`
	UserAgent string                 `json:"userAgent,omitempty" gorm:"type:text"`
	CreatedAt time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditExportCursor remembers how far the object-storage export has got.
type AuditExportCursor struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LastExportAt  time.Time `json:"lastExportAt" gorm:"not null"`
	ExportedCount int64     `json:"exportedCount" gorm:"not null;default:0"`
}

func (a *AuditExportCursor) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (AuditExportCursor) TableName() string {
	return "audit_export_cursors"
}

// All returns every model the service migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&PendingLogin{},
		&VerificationToken{},
		&ResetPasswordToken{},
		&AuditLog{},
		&AuditExportCursor{},
	}
}
