// Package config provides configuration management for Taskline.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string

	DatabaseURL string
	// DBMaxConns caps the pgx pool size.
	DBMaxConns int

	// JWTSecret signs access and refresh tokens. Must be at least 32 bytes.
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// RedisURL enables the cross-process realtime bridge when non-empty.
	RedisURL string

	// AllowedOrigins is the comma-separated CORS allowlist. "*" in
	// development only.
	AllowedOrigins []string

	// RateLimit is the per-client request limit in limiter format,
	// e.g. "100-M" for 100 requests per minute. Empty disables limiting.
	RateLimit string

	// ReconcileSchedule is the cron expression for the default-organization
	// maintenance sweep. Empty disables the sweep.
	ReconcileSchedule string

	MetricsEnabled bool
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	origins := []string{"*"}
	if raw := os.Getenv("ALLOWED_ORIGINS"); raw != "" {
		origins = origins[:0]
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	return ServerConfig{
		Environment:       env,
		ListenAddr:        getEnvStr("LISTEN_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 25),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenTTL:    getEnvDuration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:   getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RedisURL:          os.Getenv("REDIS_URL"),
		AllowedOrigins:    origins,
		RateLimit:         getEnvStr("RATE_LIMIT", "300-M"),
		ReconcileSchedule: getEnvStr("RECONCILE_SCHEDULE", "@every 15m"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
	}
}

// getEnvStr reads a string from an environment variable, returning the default if unset.
func getEnvStr(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration from an environment variable, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
