// Package config provides application configuration.
//
// Configuration is loaded from environment variables with sensible
// defaults: the port for the command surface's HTTP listener, the
// session store's database path, the agent backend's repo root, host,
// port and stdio mirroring flag, and a handful of operational timeouts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	DBPath   string
	RepoRoot string

	BackendHost        string
	BackendPort        int
	BackendMirrorStdio bool

	RestCallTimeout time.Duration
	RunTimeout      time.Duration
	ReplayTimeout   time.Duration

	DBMaxRetries     int
	DBRetryBaseDelay time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "4173"),
		FrontendURL: getEnv("FRONTEND_URL", ""),

		DBPath:   getEnv("PV_DESKTOP_DB_PATH", "./data/desktop_sessions.sqlite3"),
		RepoRoot: getEnv("PV_DESKTOP_REPO_ROOT", ""),

		BackendHost:        getEnv("PV_DESKTOP_BACKEND_HOST", "127.0.0.1"),
		BackendPort:        getEnvInt("PV_DESKTOP_BACKEND_PORT", 8765),
		BackendMirrorStdio: getEnvBool("PV_DESKTOP_BACKEND_STDIO", false),

		RestCallTimeout: getEnvDuration("PV_DESKTOP_REST_TIMEOUT", 30*time.Second),
		RunTimeout:      getEnvDuration("PV_DESKTOP_RUN_TIMEOUT", 30*time.Minute),
		ReplayTimeout:   getEnvDuration("PV_DESKTOP_REPLAY_TIMEOUT", 10*time.Minute),

		DBMaxRetries:     getEnvInt("PV_DESKTOP_DB_MAX_RETRIES", 3),
		DBRetryBaseDelay: getEnvDuration("PV_DESKTOP_DB_RETRY_BASE_DELAY", 50*time.Millisecond),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("PV_DESKTOP_DB_PATH cannot be empty")
	}
	if c.BackendPort <= 0 {
		return fmt.Errorf("PV_DESKTOP_BACKEND_PORT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
