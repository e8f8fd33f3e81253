// Package tools implements the MCP tool handlers exposed by the feedback
// server.
package tools

import (
	"github.com/rama-kairi/go-feedback/internal/config"
	"github.com/rama-kairi/go-feedback/internal/database"
	"github.com/rama-kairi/go-feedback/internal/logger"
	"github.com/rama-kairi/go-feedback/internal/memory"
	"github.com/rama-kairi/go-feedback/internal/resource"
	"github.com/rama-kairi/go-feedback/internal/session"
)

// FeedbackTools bundles the subsystems the tool handlers operate on
type FeedbackTools struct {
	coordinator *session.Coordinator
	cleanup     *session.CleanupManager
	memory      *memory.Monitor
	resources   *resource.Manager
	db          *database.DB
	config      *config.Config
	logger      *logger.Logger
}

// NewFeedbackTools creates the tool handler set. db may be nil when history
// persistence is disabled.
func NewFeedbackTools(
	coordinator *session.Coordinator,
	cleanup *session.CleanupManager,
	mem *memory.Monitor,
	resources *resource.Manager,
	db *database.DB,
	cfg *config.Config,
	log *logger.Logger,
) *FeedbackTools {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &FeedbackTools{
		coordinator: coordinator,
		cleanup:     cleanup,
		memory:      mem,
		resources:   resources,
		db:          db,
		config:      cfg,
		logger:      log.WithComponent("tools"),
	}
}
