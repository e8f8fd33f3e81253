package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rama-kairi/go-feedback/internal/config"
	"github.com/rama-kairi/go-feedback/internal/database"
	"github.com/rama-kairi/go-feedback/internal/logger"
	"github.com/rama-kairi/go-feedback/internal/memory"
	"github.com/rama-kairi/go-feedback/internal/resource"
	"github.com/rama-kairi/go-feedback/internal/session"
	"github.com/rama-kairi/go-feedback/internal/tools"
)

func main() {
	// Parse command line flags
	configFile := flag.String("config", "", "Path to configuration file")
	debugMode := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override debug mode if specified via flag
	if *debugMode {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}

	// Set log output to stderr to avoid interfering with JSON-RPC communication
	log.SetOutput(os.Stderr)

	// Initialize logger
	appLogger, err := logger.NewLogger(&cfg.Logging, "go-feedback")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting Feedback MCP Server", map[string]interface{}{
		"version": cfg.Server.Version,
		"debug":   cfg.Server.Debug,
	})

	// Initialize database if enabled
	var db *database.DB
	if cfg.Database.Enable && cfg.Database.DataDir != "" {
		db, err = database.NewDB(cfg.Database.DataDir)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()

		appLogger.Info("Database initialized successfully", map[string]interface{}{
			"path": db.Path(),
		})
	}

	// Resource manager tracks temp files, child processes, and file handles
	resourceManager := resource.GetManager(cfg.Resource, appLogger)
	resourceManager.Start()

	// Session coordinator owns the registry and the current-session pointer
	var store session.HistoryStore
	if db != nil {
		store = db
	}
	coordinator := session.NewCoordinator(session.CoordinatorOptions{
		Session: session.Options{
			AutoCleanupDelay: cfg.Session.AutoCleanupDelay,
			MaxIdleTime:      cfg.Session.MaxIdleTime,
			MaxImageSize:     cfg.Session.MaxImageSize,
		},
		TabExpiry: cfg.Session.TabExpiry,
	}, store, appLogger)

	// Cleanup manager applies the reaping policy to the coordinator
	cleanupManager := session.NewCleanupManager(coordinator, session.CleanupPolicy{
		MaxIdleTime:             cfg.Cleanup.MaxIdleTime,
		MaxSessionAge:           cfg.Cleanup.MaxSessionAge,
		MaxSessions:             cfg.Cleanup.MaxSessions,
		CleanupInterval:         cfg.Cleanup.CleanupInterval,
		MemoryPressureThreshold: cfg.Cleanup.MemoryPressureThreshold,
		EnableAutoCleanup:       cfg.Cleanup.EnableAutoCleanup,
		PreserveActiveSession:   cfg.Cleanup.PreserveActiveSession,
	}, appLogger)
	cleanupManager.Start()

	// Memory monitor relieves pressure through session cleanup
	memoryMonitor := memory.NewMonitor(cfg.Memory, appLogger)
	memoryMonitor.RegisterCleanupCallback(func(force bool) {
		coordinator.CleanupSessionsByMemoryPressure(force)
	})
	memoryMonitor.RegisterCleanupCallback(func(force bool) {
		resourceManager.CleanupAll(force)
	})
	memoryMonitor.Start()

	feedbackTools := tools.NewFeedbackTools(coordinator, cleanupManager, memoryMonitor, resourceManager, db, cfg, appLogger)

	// Create MCP server
	server := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Server.Name,
		Version: cfg.Server.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "interactive_feedback",
		Description: "Request interactive feedback from a human reviewer. Opens a feedback session and blocks until the reviewer submits feedback through the web interface or the timeout elapses. Returns the feedback text, any attached images, and command output collected during the session. Use at the end of a work increment to confirm direction before continuing.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"project_directory": {
					Type:        "string",
					Description: "Absolute path of the project the feedback concerns. The reviewer sees this and session commands run here.",
				},
				"summary": {
					Type:        "string",
					Description: "Summary of the work done, shown to the reviewer as context for their feedback.",
				},
				"timeout": {
					Type:        "integer",
					Description: "Optional: Seconds to wait for feedback before giving up. Default: 600. The session is cleaned up automatically on timeout.",
				},
			},
			Required: []string{"project_directory", "summary"},
		},
	}, feedbackTools.InteractiveFeedback)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_feedback_status",
		Description: "Get the status of the current or a specific feedback session including lifecycle state, idle time, and cleanup statistics. A missing, expired, or errored session is reported through the session_status value rather than an error. Optionally includes recent session history from the persistent store.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"session_id": {
					Type:        "string",
					Description: "Optional: Session UUID to inspect. Defaults to the current session.",
				},
				"include_history": {
					Type:        "boolean",
					Description: "Include recent session history from the database. Default: false.",
				},
				"history_limit": {
					Type:        "integer",
					Description: "Maximum history entries to return. Default: 20.",
				},
			},
		},
	}, feedbackTools.GetFeedbackStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cleanup_statistics",
		Description: "Get aggregate session cleanup statistics: runs per trigger, sessions cleaned, durations, the active cleanup policy, and optionally per-session stats and the recent cleanup history. Use to monitor whether automatic cleanup is keeping up with session churn.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"include_sessions": {
					Type:        "boolean",
					Description: "Include per-session lifecycle and cleanup stats. Default: false.",
				},
				"include_history": {
					Type:        "boolean",
					Description: "Include the recent cleanup run history. Default: false.",
				},
			},
		},
	}, feedbackTools.GetCleanupStatistics)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "force_session_cleanup",
		Description: "Run one session cleanup pass on demand. Triggers: 'manual' (expired plus capacity), 'expired', 'memory_pressure', or 'capacity'. With force, even the protected current session can be cleaned. Requires confirmation to prevent accidental cleanup.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"trigger": {
					Type:        "string",
					Description: "Cleanup trigger: 'manual', 'expired', 'memory_pressure', or 'capacity'. Default: 'manual'.",
				},
				"force": {
					Type:        "boolean",
					Description: "Ignore current-session protection and anti-thrash caps. Default: false.",
				},
				"confirm": {
					Type:        "boolean",
					Description: "Must be true to confirm cleanup. Required safety measure.",
				},
			},
			Required: []string{"confirm"},
		},
	}, feedbackTools.ForceSessionCleanup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_memory_status",
		Description: "Get the memory monitor's current view: system and process usage, threshold configuration, usage trend, recent alerts, and cleanup trigger counts. Optionally forces a garbage collection pass first for accurate numbers.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"force_gc": {
					Type:        "boolean",
					Description: "Force garbage collection before sampling. Default: false.",
				},
			},
		},
	}, feedbackTools.GetMemoryStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_resource_status",
		Description: "Get the resource manager's tracked counts: temp files, temp directories, child processes, and weakly tracked file handles, plus cumulative cleanup activity. Optionally runs a non-forced sweep first.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"sweep": {
					Type:        "boolean",
					Description: "Run a non-forced cleanup sweep before reporting. Default: false.",
				},
			},
		},
	}, feedbackTools.GetResourceStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_system_info",
		Description: "Get the server's runtime environment: version, Go runtime, OS, process ID, goroutine count, active session count, and uptime.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, feedbackTools.GetSystemInfo)

	appLogger.Info("Feedback MCP Server registered all tools successfully", map[string]interface{}{
		"tools_count": 7,
	})

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, cleaning up...")

		memoryMonitor.Stop()
		cleanupManager.Stop()
		coordinator.Stop()
		resourceManager.Stop()

		cancel()
	}()

	appLogger.Info("Feedback MCP Server is now running and waiting for requests...")
	appLogger.Info("Configuration:", map[string]interface{}{
		"max_sessions":     cfg.Cleanup.MaxSessions,
		"cleanup_interval": cfg.Cleanup.CleanupInterval.String(),
		"wait_timeout":     cfg.Session.DefaultWaitTimeout.String(),
	})

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		appLogger.Error("Server error", err)
		os.Exit(1)
	}

	appLogger.Info("Feedback MCP Server shutdown completed")
}
