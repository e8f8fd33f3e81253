package tools

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rama-kairi/go-feedback/internal/memory"
	"github.com/rama-kairi/go-feedback/internal/resource"
	"github.com/rama-kairi/go-feedback/internal/session"
)

// GetCleanupStatisticsArgs represents the arguments for cleanup statistics
type GetCleanupStatisticsArgs struct {
	IncludeHistory  bool `json:"include_history,omitempty"`
	IncludeSessions bool `json:"include_sessions,omitempty"`
}

// GetCleanupStatisticsResult represents aggregate and per-session cleanup data
type GetCleanupStatisticsResult struct {
	Status        string                  `json:"status"`
	Message       string                  `json:"message"`
	Aggregate     session.CleanupStats    `json:"aggregate"`
	Policy        session.CleanupPolicy   `json:"policy"`
	SessionCount  int                     `json:"session_count"`
	GlobalTabs    int                     `json:"global_tabs"`
	SessionStats  []session.Stats         `json:"session_stats,omitempty"`
	RecentHistory []session.CleanupRecord `json:"recent_history,omitempty"`
}

// GetCleanupStatistics returns cleanup activity across all sessions
func (t *FeedbackTools) GetCleanupStatistics(ctx context.Context, req *mcp.CallToolRequest, args GetCleanupStatisticsArgs) (*mcp.CallToolResult, GetCleanupStatisticsResult, error) {
	result := GetCleanupStatisticsResult{
		Status:       "success",
		Message:      "Cleanup statistics retrieved",
		Aggregate:    t.cleanup.GetStats(),
		Policy:       t.cleanup.Policy(),
		SessionCount: t.coordinator.SessionCount(),
		GlobalTabs:   t.coordinator.GlobalTabCount(),
	}

	if args.IncludeSessions {
		result.SessionStats = t.coordinator.GetSessionCleanupStats()
	}
	if args.IncludeHistory {
		result.RecentHistory = t.cleanup.History()
	}

	return createJSONResult(result), result, nil
}

// ForceSessionCleanupArgs represents the arguments for a manual cleanup pass
type ForceSessionCleanupArgs struct {
	Trigger string `json:"trigger,omitempty"` // "manual", "expired", "memory_pressure", "capacity"
	Force   bool   `json:"force,omitempty"`
	Confirm bool   `json:"confirm"`
}

// ForceSessionCleanupResult represents the outcome of a manual cleanup pass
type ForceSessionCleanupResult struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	Trigger         string `json:"trigger"`
	SessionsCleaned int    `json:"sessions_cleaned"`
	SessionsBefore  int    `json:"sessions_before"`
	SessionsAfter   int    `json:"sessions_after"`
}

// ForceSessionCleanup runs one cleanup pass on demand
func (t *FeedbackTools) ForceSessionCleanup(ctx context.Context, req *mcp.CallToolRequest, args ForceSessionCleanupArgs) (*mcp.CallToolResult, ForceSessionCleanupResult, error) {
	if !args.Confirm {
		return createErrorResult("Cleanup requires confirmation (set confirm: true)"), ForceSessionCleanupResult{}, nil
	}

	trigger := session.CleanupTrigger(args.Trigger)
	if args.Trigger == "" {
		trigger = session.TriggerManual
	}
	switch trigger {
	case session.TriggerManual, session.TriggerExpired, session.TriggerMemoryPressure, session.TriggerCapacity:
	default:
		return createErrorResult("Invalid trigger. Use: manual, expired, memory_pressure, or capacity"), ForceSessionCleanupResult{}, nil
	}

	before := t.coordinator.SessionCount()
	cleaned := t.cleanup.TriggerCleanup(trigger, args.Force)
	after := t.coordinator.SessionCount()

	result := ForceSessionCleanupResult{
		Status:          "success",
		Message:         fmt.Sprintf("Cleanup pass completed: %d sessions cleaned", cleaned),
		Trigger:         string(trigger),
		SessionsCleaned: cleaned,
		SessionsBefore:  before,
		SessionsAfter:   after,
	}

	t.logger.Info("Manual cleanup pass completed", map[string]interface{}{
		"trigger":          string(trigger),
		"force":            args.Force,
		"sessions_cleaned": cleaned,
	})

	return createJSONResult(result), result, nil
}

// GetMemoryStatusArgs represents the arguments for querying memory status
type GetMemoryStatusArgs struct {
	ForceGC bool `json:"force_gc,omitempty"`
}

// GetMemoryStatusResult represents the memory monitor's current view
type GetMemoryStatusResult struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Memory  memory.Stats `json:"memory"`
}

// GetMemoryStatus returns monitor stats, optionally forcing a GC pass first
func (t *FeedbackTools) GetMemoryStatus(ctx context.Context, req *mcp.CallToolRequest, args GetMemoryStatusArgs) (*mcp.CallToolResult, GetMemoryStatusResult, error) {
	if args.ForceGC {
		runtime.GC()
		t.logger.Info("Forced garbage collection", map[string]interface{}{
			"goroutines_after_gc": runtime.NumGoroutine(),
		})
	}

	result := GetMemoryStatusResult{
		Status:  "success",
		Message: "Memory status retrieved",
		Memory:  t.memory.GetStats(),
	}

	return createJSONResult(result), result, nil
}

// GetResourceStatusArgs represents the arguments for querying resource status
type GetResourceStatusArgs struct {
	Sweep bool `json:"sweep,omitempty"`
}

// GetResourceStatusResult represents the resource manager's current view
type GetResourceStatusResult struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Resources resource.Snapshot `json:"resources"`
	Swept     map[string]int    `json:"swept,omitempty"`
}

// GetResourceStatus returns tracked resource counts, optionally running a
// non-forced sweep first
func (t *FeedbackTools) GetResourceStatus(ctx context.Context, req *mcp.CallToolRequest, args GetResourceStatusArgs) (*mcp.CallToolResult, GetResourceStatusResult, error) {
	result := GetResourceStatusResult{
		Status:  "success",
		Message: "Resource status retrieved",
	}

	if args.Sweep {
		result.Swept = t.resources.CleanupAll(false)
	}
	result.Resources = t.resources.GetSnapshot()

	return createJSONResult(result), result, nil
}

// GetSystemInfoArgs represents the arguments for the environment report
type GetSystemInfoArgs struct{}

// GetSystemInfoResult represents the server environment report
type GetSystemInfoResult struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ServerName   string `json:"server_name"`
	Version      string `json:"version"`
	GoVersion    string `json:"go_version"`
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	PID          int    `json:"pid"`
	Goroutines   int    `json:"goroutines"`
	SessionCount int    `json:"session_count"`
	Uptime       string `json:"uptime"`
	DatabasePath string `json:"database_path,omitempty"`
}

var startTime = time.Now()

// GetSystemInfo reports the server's runtime environment
func (t *FeedbackTools) GetSystemInfo(ctx context.Context, req *mcp.CallToolRequest, args GetSystemInfoArgs) (*mcp.CallToolResult, GetSystemInfoResult, error) {
	result := GetSystemInfoResult{
		Status:       "success",
		Message:      "System info retrieved",
		ServerName:   t.config.Server.Name,
		Version:      t.config.Server.Version,
		GoVersion:    runtime.Version(),
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		PID:          os.Getpid(),
		Goroutines:   runtime.NumGoroutine(),
		SessionCount: t.coordinator.SessionCount(),
		Uptime:       time.Since(startTime).Round(time.Second).String(),
	}
	if t.db != nil {
		result.DatabasePath = t.db.Path()
	}

	return createJSONResult(result), result, nil
}
