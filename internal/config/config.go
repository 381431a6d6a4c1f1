package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSigningKeyBytes is the shortest HS256 key accepted at startup.
const MinSigningKeyBytes = 32

// MinPBKDF2Iterations is the floor applied to PBKDF2_ITERATIONS.
const MinPBKDF2Iterations = 100_000

// Config holds all runtime configuration values. It is loaded once at
// startup and passed by value; nothing mutates it afterwards.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string
	DBPass string
	DBHost string
	DBPort string
	DBName string

	Auth    AuthConfig
	Cache   SessionCacheConfig
	Redis   RedisConfig
	Limit   RateLimitConfig
	Queue   QueueConfig
	Logging LoggingConfig
}

// AuthConfig groups the token and credential settings.
type AuthConfig struct {
	JWTSecret        string
	Issuer           string
	Audience         string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	PBKDF2Iterations int
	DefaultRole      string
	PhoneRegion      string
	CleanupInterval  time.Duration
}

// SessionCacheConfig controls the user projection cache.
type SessionCacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoggingConfig selects level and output format for the process logger.
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Output string // stdout or stderr
}

// Load reads a .env file when one exists and then builds Config from the
// environment. Missing required variables are reported together.
func Load() (Config, error) {
	_ = godotenv.Load() // a missing .env is normal outside development
	return FromEnv()
}

// FromEnv builds Config from the current environment only.
func FromEnv() (Config, error) {
	var missing []string
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := Config{
		Env:    must("APP_ENV"),
		Port:   must("APP_PORT"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),
		Auth: AuthConfig{
			JWTSecret:        must("JWT_SECRET"),
			Issuer:           envStr("JWT_ISSUER", ""),
			Audience:         envStr("JWT_AUDIENCE", ""),
			AccessTTL:        time.Duration(envInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
			RefreshTTL:       time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,
			PBKDF2Iterations: envInt("PBKDF2_ITERATIONS", 210_000),
			DefaultRole:      envStr("DEFAULT_ROLE", "User"),
			PhoneRegion:      strings.ToUpper(envStr("PHONE_REGION", "US")),
			CleanupInterval:  envDur("TOKEN_CLEANUP_INTERVAL", time.Hour),
		},
		Cache: SessionCacheConfig{
			Enabled: envBool("SESSION_CACHE_ENABLED", true),
			TTL:     envDur("SESSION_CACHE_TTL", 15*time.Minute),
			Prefix:  envStr("SESSION_CACHE_PREFIX", ""),
		},
		Redis: LoadRedisConfig(),
		Limit: LoadRateLimitConfig(),
		Queue: LoadQueueConfig(),
		Logging: LoggingConfig{
			Level:  envStr("LOG_LEVEL", "info"),
			Format: envStr("LOG_FORMAT", "json"),
			Output: envStr("LOG_OUTPUT", "stdout"),
		},
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	if err := cfg.Auth.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (a *AuthConfig) validate() error {
	if len(a.JWTSecret) < MinSigningKeyBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", MinSigningKeyBytes)
	}
	if a.AccessTTL <= 0 || a.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if a.PBKDF2Iterations < MinPBKDF2Iterations {
		a.PBKDF2Iterations = MinPBKDF2Iterations
	}
	if a.CleanupInterval <= 0 {
		a.CleanupInterval = time.Hour
	}
	return nil
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
