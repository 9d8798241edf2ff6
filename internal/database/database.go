package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/dietchse/basic-login-ap/internal/config"
	"github.com/dietchse/basic-login-ap/internal/models"
	"github.com/dietchse/basic-login-ap/pkg/logger"
	"github.com/dietchse/basic-login-ap/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Connect opens the configured database and brings the schema up to date.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func dialectorFor(cfg config.DBConfig) (gorm.Dialector, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath + "?_pragma=foreign_keys(1)"), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// SeedAdmin creates a verified ADMIN account when the users table is empty
// and credentials were supplied.
func SeedAdmin(db *gorm.DB, cfg config.AdminConfig) error {
	if cfg.Email == "" || cfg.Password == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword(cfg.Password)
	if err != nil {
		return err
	}

	admin := models.User{
		Email:        strings.ToLower(strings.TrimSpace(cfg.Email)),
		PasswordHash: &hash,
		Name:         "System Admin",
		FirstName:    "System",
		LastName:     "Admin",
		Role:         models.UserRoleAdmin,
		IsVerified:   true,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	logger.Info("admin_seeded", map[string]interface{}{
		"email": logger.MaskEmail(admin.Email),
	})
	return nil
}
