package services

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const DefaultSessionTTL = 30 * 24 * time.Hour

const sessionTokenBytes = 32

// ClientInfo describes the device a request came from.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// SessionRegistry tracks the devices an account is signed in on.
type SessionRegistry struct {
	DB  *gorm.DB
	TTL time.Duration
	Now func() time.Time
}

func NewSessionRegistry(db *gorm.DB, ttl time.Duration) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRegistry{DB: db, TTL: ttl, Now: utcNow}
}

func (r *SessionRegistry) now() time.Time {
	if r.Now == nil {
		return utcNow()
	}
	return r.Now()
}

func (r *SessionRegistry) Create(ctx context.Context, accountID uuid.UUID, client ClientInfo) (*models.Session, error) {
	token, err := utils.RandomHex(sessionTokenBytes)
	if err != nil {
		return nil, err
	}

	device := ParseUserAgent(client.UserAgent)
	now := r.now()
	session := &models.Session{
		UserID:       accountID,
		SessionToken: token,
		UserAgent:    client.UserAgent,
		DeviceType:   device.Type,
		DeviceInfo:   device.Info,
		IPAddress:    client.IPAddress,
		Location:     ResolveLocation(client.IPAddress),
		LoginTime:    now,
		LastActivity: now,
		IsActive:     true,
		ExpiresAt:    now.Add(r.TTL),
	}
	if err := r.DB.WithContext(ctx).Create(session).Error; err != nil {
		return nil, storeErr(err)
	}
	return session, nil
}

// List returns the account's live sessions, most recently active first.
func (r *SessionRegistry) List(ctx context.Context, accountID uuid.UUID) ([]models.Session, error) {
	var sessions []models.Session
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", accountID, true, r.now()).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return sessions, nil
}

func (r *SessionRegistry) CountActive(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND is_active = ? AND expires_at > ?", accountID, true, r.now()).
		Count(&count).Error
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}

func (r *SessionRegistry) get(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	var session models.Session
	err := r.DB.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &session, nil
}

// Revoke deactivates one session. Only the owning account may do so.
func (r *SessionRegistry) Revoke(ctx context.Context, sessionID, accountID uuid.UUID) error {
	session, err := r.get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != accountID {
		return ErrForbidden
	}
	err = r.DB.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND user_id = ?", sessionID, accountID).
		Update("is_active", false).Error
	return storeErr(err)
}

// RevokeAllExcept deactivates every active session of the account other than
// keep. Passing uuid.Nil revokes them all.
func (r *SessionRegistry) RevokeAllExcept(ctx context.Context, accountID, keep uuid.UUID) (int64, error) {
	query := r.DB.WithContext(ctx).Model(&models.Session{}).
		Where("user_id = ? AND is_active = ?", accountID, true)
	if keep != uuid.Nil {
		query = query.Where("id <> ?", keep)
	}
	result := query.Update("is_active", false)
	if result.Error != nil {
		return 0, storeErr(result.Error)
	}
	return result.RowsAffected, nil
}

// Validate reports whether sessionID is a live session of accountID and, if
// so, records activity on it.
func (r *SessionRegistry) Validate(ctx context.Context, sessionID, accountID uuid.UUID) error {
	session, err := r.get(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != accountID {
		return ErrForbidden
	}
	if !session.IsActive || session.IsExpired(r.now()) {
		return ErrExpired
	}
	return r.Touch(ctx, sessionID)
}

func (r *SessionRegistry) Touch(ctx context.Context, sessionID uuid.UUID) error {
	err := r.DB.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND is_active = ?", sessionID, true).
		Update("last_activity", r.now()).Error
	return storeErr(err)
}

// SweepExpired deletes sessions that have expired or been revoked.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	result := r.DB.WithContext(ctx).Unscoped().
		Where("expires_at <= ? OR is_active = ?", r.now(), false).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, storeErr(result.Error)
	}
	return result.RowsAffected, nil
}

// Device is what can be told about a client from its User-Agent header.
type Device struct {
	Type    models.DeviceType
	Browser string
	OS      string
	Info    string
}

// ParseUserAgent classifies a User-Agent string. Tablets are checked before
// phones because iPad and Android tablet agents also mention mobile tokens.
func ParseUserAgent(userAgent string) Device {
	if strings.TrimSpace(userAgent) == "" {
		return Device{Type: models.DeviceUnknown, Browser: "Unknown Browser", OS: "Unknown OS", Info: "Unknown Device"}
	}
	ua := strings.ToLower(userAgent)

	deviceType := models.DeviceDesktop
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		deviceType = models.DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone"):
		deviceType = models.DeviceMobile
	}

	browser := "Unknown Browser"
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "firefox") || strings.Contains(ua, "fxios"):
		browser = "Firefox"
	case strings.Contains(ua, "chrome") || strings.Contains(ua, "crios"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	}

	os := "Unknown OS"
	switch {
	case strings.Contains(ua, "windows"):
		os = "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		os = "iOS"
	case strings.Contains(ua, "mac"):
		os = "macOS"
	case strings.Contains(ua, "android"):
		os = "Android"
	case strings.Contains(ua, "linux"):
		os = "Linux"
	}

	return Device{Type: deviceType, Browser: browser, OS: os, Info: os + " - " + browser}
}

// ResolveLocation labels an address. There is no geolocation lookup; only
// loopback addresses are recognised.
func ResolveLocation(ip string) string {
	host := strings.TrimSpace(ip)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if parsed := net.ParseIP(host); parsed != nil && parsed.IsLoopback() {
		return "Local Development"
	}
	return "Unknown Location"
}
