package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/ratelimit"
)

// Config holds application configuration.
type Config struct {
	// Server
	ServerAddr string
	ServerPort int

	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis (ephemeral cache + rate limiter backing). Empty addr selects
	// the in-memory implementations for single-instance deployments.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session
	SessionSecret string
	SessionIssuer string
	SessionTTL    time.Duration

	// Tokens
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration

	// MFA
	MFAIssuer string

	// Rate limit policy table, per action class.
	RateLimits RateLimits

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	AppBaseURL string

	// Global per-IP request throttle (requests per minute, 0 disables).
	GlobalRequestsPerMinute int

	MaxRequestBodySize int64

	PasswordPolicy auth.PasswordPolicy
}

// RateLimits is the per-action-class policy table. The numbers are
// configuration, not logic.
type RateLimits struct {
	Login         ratelimit.Policy
	Register      ratelimit.Policy
	PasswordReset ratelimit.Policy
	MFASend       ratelimit.Policy
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnvInt("DB_PORT", 5432),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "identity_core"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionIssuer: getEnv("SESSION_ISSUER", "identity-core"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 15*time.Minute),

		EmailVerificationTTL: getEnvDuration("EMAIL_VERIFICATION_TTL", 24*time.Hour),
		PasswordResetTTL:     getEnvDuration("PASSWORD_RESET_TTL", time.Hour),

		MFAIssuer: getEnv("MFA_ISSUER", "identity-core"),

		RateLimits: RateLimits{
			Login: ratelimit.Policy{
				Interval:    getEnvDuration("RATE_LOGIN_INTERVAL", 15*time.Minute),
				MaxRequests: getEnvInt("RATE_LOGIN_MAX", 5),
			},
			Register: ratelimit.Policy{
				Interval:    getEnvDuration("RATE_REGISTER_INTERVAL", time.Hour),
				MaxRequests: getEnvInt("RATE_REGISTER_MAX", 5),
			},
			PasswordReset: ratelimit.Policy{
				Interval:    getEnvDuration("RATE_RESET_INTERVAL", time.Hour),
				MaxRequests: getEnvInt("RATE_RESET_MAX", 3),
			},
			MFASend: ratelimit.Policy{
				Interval:    getEnvDuration("RATE_MFA_SEND_INTERVAL", time.Minute),
				MaxRequests: getEnvInt("RATE_MFA_SEND_MAX", 3),
			},
		},

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "Identity Core"),

		AppBaseURL: getEnv("APP_BASE_URL", "http://localhost:8080"),

		GlobalRequestsPerMinute: getEnvInt("GLOBAL_REQUESTS_PER_MINUTE", 100),

		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 64*1024)),

		PasswordPolicy: auth.PasswordPolicy{
			MinLength:        getEnvInt("PASSWORD_MIN_LENGTH", 8),
			RequireUppercase: getEnvBool("PASSWORD_REQUIRE_UPPERCASE", false),
			RequireLowercase: getEnvBool("PASSWORD_REQUIRE_LOWERCASE", false),
			RequireNumber:    getEnvBool("PASSWORD_REQUIRE_NUMBER", false),
		},
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	return cfg, nil
}

// HasSMTP returns true if SMTP delivery is configured.
func (c *Config) HasSMTP() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// HasRedis returns true if a Redis backing store is configured.
func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
