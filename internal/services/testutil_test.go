package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	kind  string
	to    string
	token string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendVerificationEmail(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "verify", to: to, token: token})
	return nil
}

func (m *recordingMailer) SendResetPasswordEmail(to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: "reset", to: to, token: token})
	return nil
}

func (m *recordingMailer) last(t *testing.T, kind string) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i]
		}
	}
	t.Fatalf("no %s mail was sent", kind)
	return sentMail{}
}

type testEnv struct {
	db        *gorm.DB
	clock     *fakeClock
	accounts  *AccountStore
	sessions  *SessionRegistry
	pending   *PendingLoginStore
	tokens    *TokenStore
	audit     *AuditService
	totp      *TOTPEngine
	login     *LoginEngine
	twoFactor *TwoFactorService
	account   *AccountService
	mailer    *recordingMailer
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.SetOutput(nil)
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureEncryption("test-encryption-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	clock := newFakeClock()

	accounts := NewAccountStore(db)
	accounts.Now = clock.Now
	sessions := NewSessionRegistry(db, DefaultSessionTTL)
	sessions.Now = clock.Now
	pending := NewPendingLoginStore(db, 0, 0)
	pending.Now = clock.Now
	tokens := NewTokenStore(db)
	tokens.Now = clock.Now

	audit := NewAuditService(db, nil, 100)
	t.Cleanup(audit.Flush)

	engine := NewTOTPEngine("Basic Login Test")
	engine.Now = clock.Now

	mailer := &recordingMailer{}
	account := NewAccountService(accounts, tokens, sessions, mailer, audit)
	account.Dispatch = func(fn func()) { fn() }

	return &testEnv{
		db:        db,
		clock:     clock,
		accounts:  accounts,
		sessions:  sessions,
		pending:   pending,
		tokens:    tokens,
		audit:     audit,
		totp:      engine,
		login:     NewLoginEngine(accounts, sessions, pending, NewSecondFactorVerifier(engine), audit),
		twoFactor: NewTwoFactorService(accounts, engine, audit),
		account:   account,
		mailer:    mailer,
	}
}

func (e *testEnv) createUser(t *testing.T, email, password string, verified bool) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	user := &models.User{
		Email:        email,
		PasswordHash: &hash,
		Name:         "Test User",
		Role:         models.UserRoleUser,
		IsVerified:   verified,
	}
	require.NoError(t, e.accounts.Create(context.Background(), user))
	return user
}

func (e *testEnv) createGoogleUser(t *testing.T, email, googleID string) *models.User {
	t.Helper()
	user := &models.User{
		Email:      email,
		GoogleID:   &googleID,
		Name:       "Google User",
		Role:       models.UserRoleUser,
		IsVerified: true,
	}
	require.NoError(t, e.accounts.Create(context.Background(), user))
	return user
}

// seedTwoFactor turns 2FA on directly in the store with a known secret and
// backup codes.
func (e *testEnv) seedTwoFactor(t *testing.T, user *models.User, secret string, codes []string) {
	t.Helper()
	sealed, err := utils.SealSecret(user.ID, secret)
	require.NoError(t, err)
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"two_factor_enabled":      true,
		"two_factor_secret":       sealed,
		"two_factor_backup_codes": EncodeBackupCodes(codes),
	}).Error)
}

// enrollTwoFactor runs the full enrollment flow and returns what the user
// was shown.
func (e *testEnv) enrollTwoFactor(t *testing.T, user *models.User) *EnrollmentSetup {
	t.Helper()
	ctx := context.Background()
	setup, err := e.twoFactor.BeginEnrollment(ctx, user.ID)
	require.NoError(t, err)
	code, err := e.totp.CodeAt(setup.Secret, e.clock.Now())
	require.NoError(t, err)
	_, err = e.twoFactor.CommitEnrollment(ctx, user.ID, code)
	require.NoError(t, err)
	return setup
}

func (e *testEnv) reload(t *testing.T, user *models.User) *models.User {
	t.Helper()
	fresh, err := e.accounts.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	return fresh
}

const testTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

var testClient = ClientInfo{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
	IPAddress: "127.0.0.1",
}
