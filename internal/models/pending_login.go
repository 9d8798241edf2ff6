package models

import (
	"time"

	"github.com/google/uuid"
)

type LoginOrigin string

const (
	LoginOriginPassword LoginOrigin = "password"
	LoginOriginGoogle   LoginOrigin = "google"
)

// PendingLogin is the state held between a successful primary credential check
// and the second-factor step. The client only ever holds its ID.
type PendingLogin struct {
	BaseModel
	UserID    uuid.UUID   `json:"-" gorm:"type:uuid;not null;index"`
	Origin    LoginOrigin `json:"-" gorm:"type:varchar(20);not null"`
	Attempts  int         `json:"-" gorm:"not null;default:0"`
	ExpiresAt time.Time   `json:"-" gorm:"not null;index"`
}

func (PendingLogin) TableName() string {
	return "pending_two_factor_logins"
}
