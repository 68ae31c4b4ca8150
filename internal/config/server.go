// Package config provides configuration management for Backhaul.
package config

import (
	"fmt"
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

// ServerConfig holds server-level configuration loaded from environment
// variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string
	DatabaseURL string

	// EncryptionKey is the hex-encoded 32-byte secret key; when empty,
	// EncryptionKeyFile is loaded (and created on first boot).
	EncryptionKey     string
	EncryptionKeyFile string

	// RedisAddr enables distributed reconciliation locks when set.
	RedisAddr string

	ReconcileInterval time.Duration
	TaskLogInterval   time.Duration
	ProjectInterval   time.Duration
	LoopGuardInterval time.Duration

	AgentTimeout time.Duration

	// TriggerRateLimit is an ulule/limiter formatted rate, e.g. "10-M".
	TriggerRateLimit string
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() (ServerConfig, error) {
	env := Environment(os.Getenv("BACKHAUL_ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	cfg := ServerConfig{
		Environment:       env,
		ListenAddr:        getEnv("BACKHAUL_LISTEN_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("BACKHAUL_DATABASE_URL"),
		EncryptionKey:     os.Getenv("BACKHAUL_ENCRYPTION_KEY"),
		EncryptionKeyFile: getEnv("BACKHAUL_ENCRYPTION_KEY_FILE", "/var/lib/backhaul/secret.key"),
		RedisAddr:         os.Getenv("BACKHAUL_REDIS_ADDR"),
		ReconcileInterval: getEnvDuration("BACKHAUL_RECONCILE_INTERVAL", 2*time.Minute),
		TaskLogInterval:   getEnvDuration("BACKHAUL_TASKLOG_INTERVAL", 10*time.Minute),
		ProjectInterval:   getEnvDuration("BACKHAUL_PROJECT_INTERVAL", time.Minute),
		LoopGuardInterval: getEnvDuration("BACKHAUL_LOOPGUARD_INTERVAL", 5*time.Minute),
		AgentTimeout:      getEnvDuration("BACKHAUL_AGENT_TIMEOUT", 30*time.Second),
		TriggerRateLimit:  getEnv("BACKHAUL_TRIGGER_RATE_LIMIT", "10-M"),
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("BACKHAUL_DATABASE_URL is required")
	}
	return cfg, nil
}

// getEnv reads a string from an environment variable, returning the
// default if unset.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the
// default if unset or invalid.
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

// getEnvInt reads an integer from an environment variable, returning the
// default if unset or invalid.
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

// getEnvDuration reads a duration from an environment variable, returning
// the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
