package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-me-medshop-dev-secret"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Log      LogConfig
	SMTP     SMTPConfig
	Metrics  MetricsConfig
	AI       AIConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port               string
	Env                string
	BaseURL            string
	CORSOrigins        []string
	LoginRatePerMinute int
}

type DatabaseConfig struct {
	Driver          string // mysql, postgres or sqlite
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	PoolSize        int
	AcquireTimeout  time.Duration
	MaxOverflow     int
	ConnectRetries  int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	ResetTokenTTL time.Duration
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type SMTPConfig struct {
	Server   string
	Port     int
	User     string
	Password string
	From     string
	Workers  int
}

func (s SMTPConfig) Enabled() bool { return s.Server != "" && s.User != "" }

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type AIConfig struct {
	APIKey string
	Model  string
}

type JobsConfig struct {
	AlertSchedule string
	RetentionDays int
	ExpiringDays  int
}

// Load reads the configuration from the environment, loading .env first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			Env:                getEnv("APP_ENV", "development"),
			BaseURL:            getEnv("BASE_URL", "http://localhost:8080"),
			CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173"}),
			LoginRatePerMinute: getEnvAsInt("LOGIN_RATE_PER_MINUTE", 5),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			DSN:             getEnv("DB_DSN", ""),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", ""),
			User:            getEnv("DB_USER", "root"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "medshop"),
			PoolSize:        getEnvAsInt("DB_POOL_SIZE", 5),
			AcquireTimeout:  getEnvAsDuration("DB_ACQUIRE_TIMEOUT", 5*time.Second),
			MaxOverflow:     getEnvAsInt("DB_MAX_OVERFLOW", 20),
			ConnectRetries:  getEnvAsInt("DB_CONNECT_RETRIES", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			LogLevel:        getEnv("DB_LOG_LEVEL", "warn"),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", getEnv("SECRET_KEY", defaultJWTSecret)),
			SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			ResetTokenTTL: getEnvAsDuration("RESET_TOKEN_TTL", 15*time.Minute),
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminEmail:    getEnv("ADMIN_EMAIL", "admin@example.com"),
			AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			File:       getEnv("LOG_FILE", "app.log"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 10),
			MaxBackups: getEnvAsInt("LOG_BACKUP_COUNT", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 30),
		},
		SMTP: SMTPConfig{
			Server:   getEnv("SMTP_SERVER", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 465),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", getEnv("SMTP_USER", "")),
			Workers:  getEnvAsInt("MAIL_WORKERS", 4),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		AI: AIConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		},
		Jobs: JobsConfig{
			AlertSchedule: getEnv("ALERT_SCHEDULE", "@daily"),
			RetentionDays: getEnvAsInt("ACTIVITY_LOG_RETENTION_DAYS", 0),
			ExpiringDays:  getEnvAsInt("EXPIRING_SOON_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.PoolSize < 1 {
		return errors.New("config: DB_POOL_SIZE must be at least 1")
	}
	if c.Database.MaxOverflow < 0 {
		return errors.New("config: DB_MAX_OVERFLOW must not be negative")
	}
	if c.IsProduction() && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret) {
		return errors.New("config: JWT_SECRET must be set in production")
	}
	return nil
}

// DataSourceName returns DB_DSN when set, otherwise builds one from the host settings.
func (d DatabaseConfig) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}
	switch d.Driver {
	case "postgres":
		port := d.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			d.Host, port, d.User, d.Password, d.Name)
	case "sqlite":
		return fmt.Sprintf("file:%s.db?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate", d.Name)
	default:
		port := d.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.User, url.QueryEscape(d.Password), d.Host, port, d.Name)
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
