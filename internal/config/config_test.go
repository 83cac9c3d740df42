package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port == "" || cfg.DBPath == "" || cfg.BackendPort <= 0 {
		t.Fatalf("unexpected zero-value defaults: %+v", cfg)
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	cfg := &Config{Port: "", DBPath: "x", BackendPort: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty port")
	}
	cfg = &Config{Port: "1", DBPath: "", BackendPort: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty db path")
	}
	cfg = &Config{Port: "1", DBPath: "x", BackendPort: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive backend port")
	}
}

func TestIsDevelopmentHeuristics(t *testing.T) {
	cfg := &Config{FrontendURL: ""}
	if !cfg.IsDevelopment() {
		t.Error("empty frontend URL should be development")
	}
	cfg = &Config{FrontendURL: "https://app.example.com"}
	if cfg.IsDevelopment() {
		t.Error("production URL should not be development")
	}
}

func TestGetEnvBoolAcceptsUnifiedBooleanForms(t *testing.T) {
	t.Setenv("PV_DESKTOP_TEST_BOOL", "yes")
	if !getEnvBool("PV_DESKTOP_TEST_BOOL", false) {
		t.Error("expected 'yes' to parse as true")
	}
	t.Setenv("PV_DESKTOP_TEST_BOOL", "off")
	if getEnvBool("PV_DESKTOP_TEST_BOOL", true) {
		t.Error("expected 'off' to parse as false")
	}
}

func TestGetEnvDurationFallsBackOnParseError(t *testing.T) {
	t.Setenv("PV_DESKTOP_TEST_DURATION", "not-a-duration")
	if got := getEnvDuration("PV_DESKTOP_TEST_DURATION", 5*time.Second); got != 5*time.Second {
		t.Errorf("expected fallback on parse error, got %v", got)
	}
}
