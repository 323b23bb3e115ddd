package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Lockout   LockoutConfig
	TwoFactor TwoFactorConfig
	Analyzer  AnalyzerConfig
	Alerting  AlertingConfig
	Retention RetentionConfig
	Env       string
	LogLevel  string
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type LockoutConfig struct {
	MaxFailures     int
	Window          time.Duration
	RetentionPeriod time.Duration
}

type TwoFactorConfig struct {
	CodeLength      int
	ChallengeTTL    time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
}

type AnalyzerConfig struct {
	AlertThreshold        int
	BotUserAgentThreshold int
	HighRiskOriginLimit   int
}

type AlertingConfig struct {
	AWSRegion      string
	FromAddress    string
	AlertRecipient string
}

type RetentionConfig struct {
	Interval     time.Duration
	EventHorizon time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sentinel"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "sentinel"),
		},
		Lockout: LockoutConfig{
			MaxFailures:     getEnvAsInt("LOCKOUT_MAX_FAILURES", 5),
			Window:          getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			RetentionPeriod: getEnvAsDuration("ATTEMPT_RETENTION", 30*24*time.Hour),
		},
		TwoFactor: TwoFactorConfig{
			CodeLength:      getEnvAsInt("TWOFACTOR_CODE_LENGTH", 6),
			ChallengeTTL:    getEnvAsDuration("TWOFACTOR_CHALLENGE_TTL", 5*time.Minute),
			MaxAttempts:     getEnvAsInt("TWOFACTOR_MAX_ATTEMPTS", 3),
			LockoutDuration: getEnvAsDuration("TWOFACTOR_LOCKOUT", 15*time.Minute),
		},
		Analyzer: AnalyzerConfig{
			AlertThreshold:        getEnvAsInt("ANALYZER_ALERT_THRESHOLD", 100),
			BotUserAgentThreshold: getEnvAsInt("ANALYZER_BOT_UA_THRESHOLD", 20),
			HighRiskOriginLimit:   getEnvAsInt("ANALYZER_HIGH_RISK_LIMIT", 5),
		},
		Alerting: AlertingConfig{
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress:    getEnv("ALERT_FROM_ADDRESS", ""),
			AlertRecipient: getEnv("ALERT_RECIPIENT", ""),
		},
		Retention: RetentionConfig{
			Interval:     getEnvAsDuration("RETENTION_INTERVAL", 1*time.Hour),
			EventHorizon: getEnvAsDuration("EVENT_RETENTION", 90*24*time.Hour),
		},
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Lockout.MaxFailures < 1 {
		return fmt.Errorf("LOCKOUT_MAX_FAILURES must be at least 1")
	}
	if cfg.Lockout.Window <= 0 {
		return fmt.Errorf("LOCKOUT_WINDOW must be positive")
	}
	if cfg.TwoFactor.CodeLength < 4 || cfg.TwoFactor.CodeLength > 10 {
		return fmt.Errorf("TWOFACTOR_CODE_LENGTH must be between 4 and 10")
	}
	if cfg.TwoFactor.MaxAttempts < 1 {
		return fmt.Errorf("TWOFACTOR_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.Analyzer.AlertThreshold < 1 {
		return fmt.Errorf("ANALYZER_ALERT_THRESHOLD must be at least 1")
	}
	if cfg.Env == "production" && cfg.Alerting.AlertRecipient == "" {
		return fmt.Errorf("ALERT_RECIPIENT is required in production")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// ParseLogLevel maps the configured level string to the slog level.
// Unknown levels fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
