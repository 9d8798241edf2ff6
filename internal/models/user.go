package models

type UserRole string

const (
	UserRoleAdmin UserRole = "ADMIN"
	UserRoleUser  UserRole = "USER"
)

// User is the account record. PasswordHash is nil for accounts that have only
// ever signed in with Google. TwoFactorSecret is AES-GCM encrypted and is set
// while 2FA is enabled or an enrollment is in progress.
type User struct {
	BaseModel
	Email                string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash         *string   `json:"-" gorm:"type:text"`
	GoogleID             *string   `json:"googleId,omitempty" gorm:"type:varchar(255);uniqueIndex"`
	Name                 string    `json:"name" gorm:"type:varchar(200)"`
	FirstName            string    `json:"firstName" gorm:"type:varchar(100)"`
	LastName             string    `json:"lastName" gorm:"type:varchar(100)"`
	ProfilePicture       *string   `json:"profilePicture,omitempty" gorm:"type:text"`
	Role                 UserRole  `json:"role" gorm:"type:varchar(20);not null;default:'USER'"`
	IsVerified           bool      `json:"isVerified" gorm:"not null;default:false"`
	TwoFactorEnabled     bool      `json:"twoFactorEnabled" gorm:"not null;default:false"`
	TwoFactorSecret      string    `json:"-" gorm:"type:text"`
	TwoFactorBackupCodes string    `json:"-" gorm:"type:text"`
	Sessions             []Session `json:"-" gorm:"foreignKey:UserID"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) IsGoogleAccount() bool {
	return u.GoogleID != nil && *u.GoogleID != ""
}

func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Email
}
