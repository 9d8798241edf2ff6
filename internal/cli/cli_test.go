package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/database"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/internal/services"
	"github.com/dietchse/basic-login-ap/internal/storage"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"gorm.io/gorm"
)

type fakeArchive struct {
	objects map[string][]byte
}

func (a *fakeArchive) Upload(_ context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if a.objects == nil {
		a.objects = map[string][]byte{}
	}
	a.objects[objectName] = data
	return nil
}

func (a *fakeArchive) List(_ context.Context, prefix string) ([]storage.ArchivedObject, error) {
	var out []storage.ArchivedObject
	for name, data := range a.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, storage.ArchivedObject{Name: name, Size: int64(len(data)), LastModified: time.Now()})
		}
	}
	return out, nil
}

func setupCLI(t *testing.T) *gorm.DB {
	t.Helper()
	logger.SetOutput(nil)

	path := filepath.Join(t.TempDir(), "authctl.db")
	testDB, err := database.Connect(config.DBConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	prevOpen := openDB
	openDB = func(config.DBConfig) (*gorm.DB, error) { return testDB, nil }
	t.Cleanup(func() {
		openDB = prevOpen
		if sqlDB, err := testDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return testDB
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	flagJSON = false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func createAccount(t *testing.T, db *gorm.DB, email string, verified bool) *models.User {
	t.Helper()
	hash := "not-a-real-hash"
	user := &models.User{Email: email, PasswordHash: &hash, Name: "Test User", IsVerified: verified}
	if err := services.NewAccountStore(db).Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return user
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "authctl dev") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestSweep(t *testing.T) {
	db := setupCLI(t)
	user := createAccount(t, db, "sweep@example.com", true)

	expired := models.Session{
		UserID:       user.ID,
		SessionToken: "expired-session-token",
		LoginTime:    time.Now().UTC().Add(-48 * time.Hour),
		LastActivity: time.Now().UTC().Add(-48 * time.Hour),
		IsActive:     true,
		ExpiresAt:    time.Now().UTC().Add(-time.Hour),
	}
	if err := db.Create(&expired).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}

	out, err := runCLI(t, "sweep", "--json")
	if err != nil {
		t.Fatalf("sweep error = %v", err)
	}

	var report services.SweepReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if report.Sessions != 1 {
		t.Errorf("expected 1 session removed, got %d", report.Sessions)
	}
}

func TestRevokeSessions(t *testing.T) {
	db := setupCLI(t)
	user := createAccount(t, db, "revoke@example.com", true)
	registry := services.NewSessionRegistry(db, time.Hour)
	for i := 0; i < 2; i++ {
		if _, err := registry.Create(context.Background(), user.ID, services.ClientInfo{UserAgent: "test", IPAddress: "127.0.0.1"}); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}

	out, err := runCLI(t, "revoke-sessions", "Revoke@Example.com")
	if err != nil {
		t.Fatalf("revoke-sessions error = %v", err)
	}
	if !strings.Contains(out, "Revoked 2 session(s)") {
		t.Errorf("unexpected output %q", out)
	}

	active, err := registry.CountActive(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("CountActive() error = %v", err)
	}
	if active != 0 {
		t.Errorf("expected no active sessions, got %d", active)
	}

	var logs []models.AuditLog
	db.Where("user_id = ? AND action = ?", user.ID, "session.revoked_by_operator").Find(&logs)
	if len(logs) != 1 {
		t.Errorf("expected one audit entry, got %d", len(logs))
	}
}

func TestRevokeSessionsUnknownAccount(t *testing.T) {
	setupCLI(t)
	if _, err := runCLI(t, "revoke-sessions", "nobody@example.com"); err == nil {
		t.Fatal("expected error for unknown account")
	}
}

func TestVerifyAccount(t *testing.T) {
	db := setupCLI(t)
	user := createAccount(t, db, "verify@example.com", false)

	out, err := runCLI(t, "verify-account", "verify@example.com")
	if err != nil {
		t.Fatalf("verify-account error = %v", err)
	}
	if !strings.Contains(out, "Verified verify@example.com") {
		t.Errorf("unexpected output %q", out)
	}

	var reloaded models.User
	db.First(&reloaded, "id = ?", user.ID)
	if !reloaded.IsVerified {
		t.Error("expected account to be verified")
	}

	out, err = runCLI(t, "verify-account", "verify@example.com")
	if err != nil {
		t.Fatalf("second verify-account error = %v", err)
	}
	if !strings.Contains(out, "already verified") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestExportAuditRequiresArchive(t *testing.T) {
	setupCLI(t)
	t.Setenv("MINIO_ENABLED", "false")

	if _, err := runCLI(t, "export-audit"); err != errArchiveDisabled {
		t.Fatalf("expected errArchiveDisabled, got %v", err)
	}
}

func TestExportAndListAudit(t *testing.T) {
	db := setupCLI(t)
	t.Setenv("MINIO_ENABLED", "true")

	archive := &fakeArchive{}
	prevArchive := openArchive
	openArchive = func(config.MinIOConfig) (auditArchive, error) { return archive, nil }
	t.Cleanup(func() { openArchive = prevArchive })

	user := createAccount(t, db, "export@example.com", true)
	if err := db.Create(&models.AuditLog{UserID: &user.ID, Action: "login.succeeded"}).Error; err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	out, err := runCLI(t, "export-audit")
	if err != nil {
		t.Fatalf("export-audit error = %v", err)
	}
	if !strings.Contains(out, "Exported 1 audit event(s)") {
		t.Errorf("unexpected output %q", out)
	}
	if len(archive.objects) != 1 {
		t.Fatalf("expected one uploaded object, got %d", len(archive.objects))
	}

	out, err = runCLI(t, "list-exports", "--json")
	if err != nil {
		t.Fatalf("list-exports error = %v", err)
	}
	var objects []storage.ArchivedObject
	if err := json.Unmarshal([]byte(out), &objects); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if len(objects) != 1 || !strings.HasPrefix(objects[0].Name, services.AuditExportPrefix) {
		t.Errorf("unexpected exports %+v", objects)
	}
}
