package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DB        DBConfig
	JWT       JWTConfig
	Server    ServerConfig
	Google    GoogleConfig
	Mail      MailConfig
	TwoFactor TwoFactorConfig
	Session   SessionConfig
	MinIO     MinIOConfig
	Audit     AuditConfig
	Admin     AdminConfig
}

type DBConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port           string
	FrontendURL    string
	BackendURL     string
	AllowedOrigins string
	SecureCookies  bool
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m MailConfig) Enabled() bool {
	return m.Host != ""
}

type TwoFactorConfig struct {
	Issuer             string
	EncryptionSecret   string
	PendingTTL         time.Duration
	MaxPendingAttempts int
}

type SessionConfig struct {
	TTL               time.Duration
	SweepInterval     time.Duration
	EnforceRevocation bool
}

type MinIOConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// AdminConfig seeds an initial verified ADMIN account on an empty database.
type AdminConfig struct {
	Email    string
	Password string
}

type AuditConfig struct {
	ExportInterval time.Duration
	QueueSize      int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; variables already set win.
func Load() *Config {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	backendURL := getEnv("BACKEND_URL", "http://localhost:5000")
	jwtSecret := getEnv("JWT_SECRET", "change-me-in-production")

	return &Config{
		DB: DBConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "auth"),
			Password:   getEnv("DB_PASSWORD", "auth_secret"),
			Name:       getEnv("DB_NAME", "basic_login"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "basic-login.db"),
		},
		JWT: JWTConfig{
			Secret:          jwtSecret,
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 168),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "5000"),
			FrontendURL:    strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
			BackendURL:     strings.TrimRight(backendURL, "/"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", getEnv("FRONTEND_URL", "http://localhost:3000")),
			SecureCookies:  getEnvAsBool("SECURE_COOKIES", false),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_CALLBACK_URL", strings.TrimRight(backendURL, "/")+"/api/auth/google/callback"),
			Scopes:       getEnvAsList("GOOGLE_SCOPES", []string{"openid", "profile", "email"}),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", "no-reply@basic-login.local"),
		},
		TwoFactor: TwoFactorConfig{
			Issuer:             getEnv("TOTP_ISSUER", "Basic Login"),
			EncryptionSecret:   getEnv("TOTP_ENCRYPTION_SECRET", jwtSecret),
			PendingTTL:         getEnvAsDuration("PENDING_2FA_TTL", 10*time.Minute),
			MaxPendingAttempts: getEnvAsInt("PENDING_2FA_MAX_ATTEMPTS", 5),
		},
		Session: SessionConfig{
			TTL:               getEnvAsDuration("SESSION_TTL", 30*24*time.Hour),
			SweepInterval:     getEnvAsDuration("SESSION_SWEEP_INTERVAL", 1*time.Hour),
			EnforceRevocation: getEnvAsBool("AUTH_ENFORCE_SESSION_REVOCATION", false),
		},
		MinIO: MinIOConfig{
			Enabled:   getEnvAsBool("MINIO_ENABLED", false),
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "basiclogin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "basiclogin_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "auth-audit"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
		Audit: AuditConfig{
			ExportInterval: getEnvAsDuration("AUDIT_EXPORT_INTERVAL", 1*time.Hour),
			QueueSize:      getEnvAsInt("AUDIT_QUEUE_SIZE", 1000),
		},
		Admin: AdminConfig{
			Email:    getEnv("ADMIN_EMAIL", ""),
			Password: getEnv("ADMIN_PASSWORD", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
