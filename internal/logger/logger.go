package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rama-kairi/go-feedback/internal/config"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry represents a single log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Component string                 `json:"component,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Trigger   string                 `json:"trigger,omitempty"`
	Duration  string                 `json:"duration,omitempty"`
	Error     string                 `json:"error,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger provides structured logging capabilities
type Logger struct {
	level      LogLevel
	format     string
	output     io.Writer
	mu         sync.RWMutex
	component  string
	baseFields map[string]interface{}
	fileHandle *os.File
}

// NewLogger creates a new logger instance
func NewLogger(cfg *config.LoggingConfig, component string) (*Logger, error) {
	level := parseLogLevel(cfg.Level)

	var output io.Writer
	var fileHandle *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		// Treat as file path
		if strings.HasPrefix(cfg.Output, "/") || strings.Contains(cfg.Output, ".log") {
			file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
			}
			output = file
			fileHandle = file
		} else {
			output = os.Stderr
		}
	}

	return &Logger{
		level:      level,
		format:     cfg.Format,
		output:     output,
		component:  component,
		baseFields: make(map[string]interface{}),
		fileHandle: fileHandle,
	}, nil
}

// Close closes any open file handles
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileHandle != nil {
		err := l.fileHandle.Close()
		l.fileHandle = nil
		return err
	}
	return nil
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = parseLogLevel(level)
}

// WithFields returns a new logger instance with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	newLogger := &Logger{
		level:      l.level,
		format:     l.format,
		output:     l.output,
		component:  l.component,
		baseFields: make(map[string]interface{}),
	}

	for k, v := range l.baseFields {
		newLogger.baseFields[k] = v
	}

	for k, v := range fields {
		newLogger.baseFields[k] = v
	}

	return newLogger
}

// WithSession returns a logger with session ID
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.WithFields(map[string]interface{}{
		"session_id": sessionID,
	})
}

// WithComponent returns a logger with component name
func (l *Logger) WithComponent(component string) *Logger {
	newLogger := l.WithFields(nil)
	newLogger.component = component
	return newLogger
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, "", fields...)
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, "", fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, "", fields...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, fields ...map[string]interface{}) {
	errorStr := ""
	if err != nil {
		errorStr = err.Error()
	}
	l.log(ERROR, message, errorStr, fields...)
}

// LogSessionEvent logs session lifecycle events
func (l *Logger) LogSessionEvent(event, sessionID, status string, fields ...map[string]interface{}) {
	eventFields := map[string]interface{}{
		"event":      event,
		"session_id": sessionID,
		"status":     status,
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			eventFields[k] = v
		}
	}

	l.Info(fmt.Sprintf("Session %s", event), eventFields)
}

// LogCleanupEvent logs resource cleanup events with their trigger and outcome
func (l *Logger) LogCleanupEvent(trigger string, cleaned int, duration time.Duration, err error, fields ...map[string]interface{}) {
	cleanupFields := map[string]interface{}{
		"trigger":          trigger,
		"sessions_cleaned": cleaned,
		"duration":         duration.String(),
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			cleanupFields[k] = v
		}
	}

	if err != nil {
		l.Error("Cleanup completed with error", err, cleanupFields)
	} else {
		l.Info("Cleanup completed", cleanupFields)
	}
}

// LogMemoryAlert logs a memory threshold crossing
func (l *Logger) LogMemoryAlert(level string, usagePercent float64, fields ...map[string]interface{}) {
	alertFields := map[string]interface{}{
		"alert_level":   level,
		"usage_percent": fmt.Sprintf("%.1f", usagePercent*100),
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			alertFields[k] = v
		}
	}

	switch level {
	case "critical", "emergency":
		l.Error(fmt.Sprintf("Memory alert: %s", level), nil, alertFields)
	case "warning":
		l.Warn(fmt.Sprintf("Memory alert: %s", level), alertFields)
	default:
		l.Info(fmt.Sprintf("Memory alert: %s", level), alertFields)
	}
}

// log is the internal logging method
func (l *Logger) log(level LogLevel, message, errorStr string, fields ...map[string]interface{}) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if level < l.level {
		return
	}

	// Get caller information
	_, file, line, ok := runtime.Caller(3)
	if ok {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   message,
		Component: l.component,
		Error:     errorStr,
		File:      file,
		Line:      line,
		Fields:    make(map[string]interface{}),
	}

	addField := func(k string, v interface{}) {
		switch k {
		case "session_id":
			entry.SessionID = fmt.Sprintf("%v", v)
		case "status":
			entry.Status = fmt.Sprintf("%v", v)
		case "trigger":
			entry.Trigger = fmt.Sprintf("%v", v)
		case "duration":
			entry.Duration = fmt.Sprintf("%v", v)
		default:
			entry.Fields[k] = v
		}
	}

	for k, v := range l.baseFields {
		addField(k, v)
	}

	if len(fields) > 0 {
		for k, v := range fields[0] {
			addField(k, v)
		}
	}

	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	var output string
	if l.format == "json" {
		data, _ := json.Marshal(entry)
		output = string(data) + "\n"
	} else {
		output = l.formatTextEntry(entry)
	}

	l.output.Write([]byte(output))
}

// formatTextEntry formats a log entry as human-readable text
func (l *Logger) formatTextEntry(entry LogEntry) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s", entry.Timestamp[:19], entry.Level))

	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Component))
	}

	if entry.SessionID != "" {
		id := entry.SessionID
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, fmt.Sprintf("[session:%s]", id))
	}

	parts = append(parts, entry.Message)

	if entry.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%s", entry.Error))
	}

	if entry.Status != "" {
		parts = append(parts, fmt.Sprintf("status=%s", entry.Status))
	}

	if entry.Trigger != "" {
		parts = append(parts, fmt.Sprintf("trigger=%s", entry.Trigger))
	}

	if entry.Duration != "" {
		parts = append(parts, fmt.Sprintf("duration=%s", entry.Duration))
	}

	if entry.Fields != nil {
		for k, v := range entry.Fields {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}

	if l.level == DEBUG && entry.File != "" {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}

	return strings.Join(parts, " ") + "\n"
}

// parseLogLevel converts a string to LogLevel
func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// GetDefaultLogger creates a default logger for the application
func GetDefaultLogger() *Logger {
	cfg := &config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stderr",
	}

	logger, _ := NewLogger(cfg, "go-feedback")
	return logger
}
