package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the feedback MCP server
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Session configuration
	Session SessionConfig `json:"session"`

	// Cleanup policy configuration
	Cleanup CleanupConfig `json:"cleanup"`

	// Memory monitoring configuration
	Memory MemoryConfig `json:"memory"`

	// Resource manager configuration
	Resource ResourceConfig `json:"resource"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Database configuration
	Database DatabaseConfig `json:"database"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Debug   bool   `json:"debug"`
}

// SessionConfig holds per-session lifecycle configuration
type SessionConfig struct {
	AutoCleanupDelay   time.Duration `json:"auto_cleanup_delay"`
	MaxIdleTime        time.Duration `json:"max_idle_time"`
	DefaultWaitTimeout time.Duration `json:"default_wait_timeout"`
	MaxImageSize       int           `json:"max_image_size"`
	TabExpiry          time.Duration `json:"tab_expiry"`
}

// CleanupConfig holds the session cleanup policy configuration
type CleanupConfig struct {
	MaxIdleTime             time.Duration `json:"max_idle_time"`
	MaxSessionAge           time.Duration `json:"max_session_age"`
	MaxSessions             int           `json:"max_sessions"`
	CleanupInterval         time.Duration `json:"cleanup_interval"`
	MemoryPressureThreshold float64       `json:"memory_pressure_threshold"`
	EnableAutoCleanup       bool          `json:"enable_auto_cleanup"`
	PreserveActiveSession   bool          `json:"preserve_active_session"`
}

// MemoryConfig holds memory monitor thresholds and sampling configuration
type MemoryConfig struct {
	WarningThreshold   float64       `json:"warning_threshold"`
	CriticalThreshold  float64       `json:"critical_threshold"`
	EmergencyThreshold float64       `json:"emergency_threshold"`
	MonitoringInterval time.Duration `json:"monitoring_interval"`
	MaxSnapshots       int           `json:"max_snapshots"`
}

// ResourceConfig holds resource manager configuration
type ResourceConfig struct {
	AutoCleanupEnabled bool          `json:"auto_cleanup_enabled"`
	CleanupInterval    time.Duration `json:"cleanup_interval"`
	TempFileMaxAge     time.Duration `json:"temp_file_max_age"`
	TempPrefix         string        `json:"temp_prefix"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "text"
	Output string `json:"output"` // "stderr", "stdout", or file path
}

// DatabaseConfig holds feedback history store configuration
type DatabaseConfig struct {
	Enable  bool   `json:"enable"`
	DataDir string `json:"data_dir"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	dataDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = home + "/.cache/go-feedback"
	}

	return &Config{
		Server: ServerConfig{
			Name:    "feedback-mcp",
			Version: "1.0.0",
			Debug:   false,
		},
		Session: SessionConfig{
			AutoCleanupDelay:   time.Hour,
			MaxIdleTime:        30 * time.Minute,
			DefaultWaitTimeout: 10 * time.Minute,
			MaxImageSize:       1024 * 1024, // 1MB
			TabExpiry:          60 * time.Second,
		},
		Cleanup: CleanupConfig{
			MaxIdleTime:             30 * time.Minute,
			MaxSessionAge:           2 * time.Hour,
			MaxSessions:             10,
			CleanupInterval:         5 * time.Minute,
			MemoryPressureThreshold: 0.8,
			EnableAutoCleanup:       true,
			PreserveActiveSession:   true,
		},
		Memory: MemoryConfig{
			WarningThreshold:   0.80,
			CriticalThreshold:  0.90,
			EmergencyThreshold: 0.95,
			MonitoringInterval: 30 * time.Second,
			MaxSnapshots:       1000,
		},
		Resource: ResourceConfig{
			AutoCleanupEnabled: true,
			CleanupInterval:    5 * time.Minute,
			TempFileMaxAge:     time.Hour,
			TempPrefix:         "feedback_",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Database: DatabaseConfig{
			Enable:  true,
			DataDir: dataDir,
		},
	}
}

// LoadConfig loads configuration from environment variables and optional config file
func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	// Load from config file if provided
	if configFile != "" {
		if err := loadFromFile(config, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func loadFromFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, config)
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *Config) {
	// Server configuration
	if val := os.Getenv("FEEDBACK_MCP_DEBUG"); val != "" {
		config.Server.Debug = parseBool(val)
	}

	// Session configuration
	if val := os.Getenv("FEEDBACK_MCP_AUTO_CLEANUP_DELAY"); val != "" {
		config.Session.AutoCleanupDelay = parseDuration(val, config.Session.AutoCleanupDelay)
	}
	if val := os.Getenv("FEEDBACK_MCP_MAX_IDLE_TIME"); val != "" {
		d := parseDuration(val, config.Session.MaxIdleTime)
		config.Session.MaxIdleTime = d
		config.Cleanup.MaxIdleTime = d
	}
	if val := os.Getenv("FEEDBACK_MCP_WAIT_TIMEOUT"); val != "" {
		config.Session.DefaultWaitTimeout = parseDuration(val, config.Session.DefaultWaitTimeout)
	}
	if val := os.Getenv("FEEDBACK_MCP_MAX_IMAGE_SIZE"); val != "" {
		config.Session.MaxImageSize = parseInt(val, config.Session.MaxImageSize)
	}

	// Cleanup configuration
	if val := os.Getenv("FEEDBACK_MCP_MAX_SESSIONS"); val != "" {
		config.Cleanup.MaxSessions = parseInt(val, config.Cleanup.MaxSessions)
	}
	if val := os.Getenv("FEEDBACK_MCP_MAX_SESSION_AGE"); val != "" {
		config.Cleanup.MaxSessionAge = parseDuration(val, config.Cleanup.MaxSessionAge)
	}
	if val := os.Getenv("FEEDBACK_MCP_CLEANUP_INTERVAL"); val != "" {
		config.Cleanup.CleanupInterval = parseDuration(val, config.Cleanup.CleanupInterval)
	}
	if val := os.Getenv("FEEDBACK_MCP_AUTO_CLEANUP"); val != "" {
		config.Cleanup.EnableAutoCleanup = parseBool(val)
	}
	if val := os.Getenv("FEEDBACK_MCP_PRESERVE_ACTIVE"); val != "" {
		config.Cleanup.PreserveActiveSession = parseBool(val)
	}

	// Memory configuration
	if val := os.Getenv("FEEDBACK_MCP_MEMORY_WARNING"); val != "" {
		config.Memory.WarningThreshold = parseFloat(val, config.Memory.WarningThreshold)
	}
	if val := os.Getenv("FEEDBACK_MCP_MEMORY_CRITICAL"); val != "" {
		config.Memory.CriticalThreshold = parseFloat(val, config.Memory.CriticalThreshold)
	}
	if val := os.Getenv("FEEDBACK_MCP_MEMORY_EMERGENCY"); val != "" {
		config.Memory.EmergencyThreshold = parseFloat(val, config.Memory.EmergencyThreshold)
	}
	if val := os.Getenv("FEEDBACK_MCP_MEMORY_INTERVAL"); val != "" {
		config.Memory.MonitoringInterval = parseDuration(val, config.Memory.MonitoringInterval)
	}

	// Resource configuration
	if val := os.Getenv("FEEDBACK_MCP_RESOURCE_INTERVAL"); val != "" {
		config.Resource.CleanupInterval = parseDuration(val, config.Resource.CleanupInterval)
	}
	if val := os.Getenv("FEEDBACK_MCP_TEMP_FILE_MAX_AGE"); val != "" {
		config.Resource.TempFileMaxAge = parseDuration(val, config.Resource.TempFileMaxAge)
	}

	// Logging configuration
	if val := os.Getenv("FEEDBACK_MCP_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("FEEDBACK_MCP_LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("FEEDBACK_MCP_LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}

	// Database configuration
	if val := os.Getenv("FEEDBACK_MCP_DB_ENABLE"); val != "" {
		config.Database.Enable = parseBool(val)
	}
	if val := os.Getenv("FEEDBACK_MCP_DATA_DIR"); val != "" {
		config.Database.DataDir = val
	}
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if config.Session.AutoCleanupDelay <= 0 {
		return fmt.Errorf("auto_cleanup_delay must be greater than 0")
	}

	if config.Session.MaxIdleTime <= 0 {
		return fmt.Errorf("max_idle_time must be greater than 0")
	}

	if config.Cleanup.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be greater than 0")
	}

	if config.Cleanup.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be greater than 0")
	}

	if config.Memory.WarningThreshold <= 0 || config.Memory.WarningThreshold >= 1 {
		return fmt.Errorf("warning_threshold must be between 0 and 1")
	}

	if config.Memory.CriticalThreshold <= config.Memory.WarningThreshold {
		return fmt.Errorf("critical_threshold must be greater than warning_threshold")
	}

	if config.Memory.EmergencyThreshold <= config.Memory.CriticalThreshold {
		return fmt.Errorf("emergency_threshold must be greater than critical_threshold")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// Helper functions for parsing environment variables
func parseBool(s string) bool {
	val, _ := strconv.ParseBool(s)
	return val
}

func parseInt(s string, defaultVal int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultVal
}

func parseFloat(s string, defaultVal float64) float64 {
	if val, err := strconv.ParseFloat(s, 64); err == nil {
		return val
	}
	return defaultVal
}

// parseDuration accepts both Go duration strings ("30m") and bare seconds ("1800")
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

// SaveToFile saves the current configuration to a file
func (c *Config) SaveToFile(filename string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0o644)
}
