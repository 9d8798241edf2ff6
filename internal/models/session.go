package models

import (
	"time"

	"github.com/google/uuid"
)

type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceUnknown DeviceType = "unknown"
)

// Session records one signed-in device. It is separate from the bearer token:
// the token carries the session ID in its sid claim but stays valid on its own
// unless revocation enforcement is switched on.
type Session struct {
	BaseModel
	UserID       uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	SessionToken string     `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserAgent    string     `json:"userAgent" gorm:"type:text"`
	DeviceType   DeviceType `json:"deviceType" gorm:"type:varchar(20);not null;default:'unknown'"`
	DeviceInfo   string     `json:"deviceInfo" gorm:"type:varchar(255)"`
	IPAddress    string     `json:"ipAddress" gorm:"type:varchar(45)"`
	Location     string     `json:"location" gorm:"type:varchar(255)"`
	LoginTime    time.Time  `json:"loginTime" gorm:"not null"`
	LastActivity time.Time  `json:"lastActivity" gorm:"not null;index"`
	IsActive     bool       `json:"isActive" gorm:"not null;default:true;index"`
	ExpiresAt    time.Time  `json:"expiresAt" gorm:"not null;index"`
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (Session) TableName() string {
	return "sessions"
}
