package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Session.AutoCleanupDelay != time.Hour {
		t.Errorf("Expected auto cleanup delay 1h, got %s", cfg.Session.AutoCleanupDelay)
	}
	if cfg.Cleanup.MaxSessions != 10 {
		t.Errorf("Expected max sessions 10, got %d", cfg.Cleanup.MaxSessions)
	}
	if cfg.Cleanup.CleanupInterval != 5*time.Minute {
		t.Errorf("Expected cleanup interval 5m, got %s", cfg.Cleanup.CleanupInterval)
	}
	if cfg.Memory.WarningThreshold != 0.80 || cfg.Memory.CriticalThreshold != 0.90 || cfg.Memory.EmergencyThreshold != 0.95 {
		t.Error("Memory thresholds do not match defaults")
	}
	if err := validateConfig(cfg); err != nil {
		t.Errorf("Default config failed validation: %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"server": {"name": "custom-name", "version": "9.9.9"},
		"cleanup": {"max_sessions": 25}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Name != "custom-name" {
		t.Errorf("Expected custom server name, got %s", cfg.Server.Name)
	}
	if cfg.Cleanup.MaxSessions != 25 {
		t.Errorf("Expected max sessions 25, got %d", cfg.Cleanup.MaxSessions)
	}
	// Untouched values keep their defaults
	if cfg.Memory.WarningThreshold != 0.80 {
		t.Error("File load clobbered unrelated defaults")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.json"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FEEDBACK_MCP_MAX_SESSIONS", "42")
	t.Setenv("FEEDBACK_MCP_MAX_IDLE_TIME", "900")
	t.Setenv("FEEDBACK_MCP_WAIT_TIMEOUT", "2m")
	t.Setenv("FEEDBACK_MCP_LOG_LEVEL", "debug")
	t.Setenv("FEEDBACK_MCP_AUTO_CLEANUP", "false")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Cleanup.MaxSessions != 42 {
		t.Errorf("Expected max sessions 42, got %d", cfg.Cleanup.MaxSessions)
	}
	// Bare seconds are accepted alongside duration strings
	if cfg.Session.MaxIdleTime != 15*time.Minute {
		t.Errorf("Expected max idle 15m, got %s", cfg.Session.MaxIdleTime)
	}
	if cfg.Cleanup.MaxIdleTime != 15*time.Minute {
		t.Error("Idle override did not propagate to cleanup policy")
	}
	if cfg.Session.DefaultWaitTimeout != 2*time.Minute {
		t.Errorf("Expected wait timeout 2m, got %s", cfg.Session.DefaultWaitTimeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
	if cfg.Cleanup.EnableAutoCleanup {
		t.Error("Auto cleanup override not applied")
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("BadThresholdOrdering", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Memory.CriticalThreshold = 0.70 // below warning
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected threshold ordering violation to fail")
		}
	})

	t.Run("BadLogLevel", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "verbose"
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected invalid log level to fail")
		}
	})

	t.Run("BadLogFormat", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Format = "xml"
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected invalid log format to fail")
		}
	})

	t.Run("ZeroMaxSessions", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cleanup.MaxSessions = 0
		if err := validateConfig(cfg); err == nil {
			t.Error("Expected zero max sessions to fail")
		}
	})
}

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"1800", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"garbage", time.Second}, // falls back to default
	}
	for _, c := range cases {
		if got := parseDuration(c.in, time.Second); got != c.want {
			t.Errorf("parseDuration(%q) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestSaveToFile(t *testing.T) {
	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "saved.json")

	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Reloading saved config failed: %v", err)
	}
	if loaded.Cleanup.MaxSessions != cfg.Cleanup.MaxSessions {
		t.Error("Saved config did not round-trip")
	}
}
