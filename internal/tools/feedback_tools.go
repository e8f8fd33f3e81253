package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rama-kairi/go-feedback/internal/database"
	"github.com/rama-kairi/go-feedback/internal/errors"
	"github.com/rama-kairi/go-feedback/internal/session"
)

// InteractiveFeedbackArgs represents the arguments for requesting feedback
type InteractiveFeedbackArgs struct {
	ProjectDirectory string `json:"project_directory"`
	Summary          string `json:"summary"`
	Timeout          int    `json:"timeout,omitempty"` // seconds
}

// InteractiveFeedbackResult represents the outcome of a feedback round
type InteractiveFeedbackResult struct {
	Status              string                    `json:"status"`
	Message             string                    `json:"message"`
	SessionID           string                    `json:"session_id"`
	InteractiveFeedback string                    `json:"interactive_feedback,omitempty"`
	Logs                string                    `json:"logs,omitempty"`
	ImageCount          int                       `json:"image_count"`
	Images              []session.ImageAttachment `json:"images,omitempty"`
	Settings            map[string]any            `json:"settings,omitempty"`
}

// InteractiveFeedback starts a feedback session and blocks until the reviewer
// submits feedback or the timeout elapses
func (t *FeedbackTools) InteractiveFeedback(ctx context.Context, req *mcp.CallToolRequest, args InteractiveFeedbackArgs) (*mcp.CallToolResult, InteractiveFeedbackResult, error) {
	if err := validateProjectDirectory(args.ProjectDirectory); err != nil {
		return createErrorResult(fmt.Sprintf("Invalid project directory: %v", err)), InteractiveFeedbackResult{}, nil
	}
	if args.Summary == "" {
		return createErrorResult("Summary cannot be empty. Describe what the reviewer should look at."), InteractiveFeedbackResult{}, nil
	}

	timeout := time.Duration(args.Timeout) * time.Second
	if timeout <= 0 {
		timeout = t.config.Session.DefaultWaitTimeout
	}

	s, err := t.coordinator.CreateSession(ctx, args.ProjectDirectory, args.Summary)
	if err != nil {
		t.logger.Error("Failed to create feedback session", err, map[string]interface{}{
			"project_directory": args.ProjectDirectory,
		})
		return createErrorResult(fmt.Sprintf("Failed to create feedback session: %v", err)), InteractiveFeedbackResult{}, nil
	}

	t.logger.Info("Feedback session started", map[string]interface{}{
		"session_id": s.ID,
		"timeout":    timeout.String(),
	})

	feedback, err := s.WaitForFeedback(ctx, timeout)
	if err != nil {
		result := InteractiveFeedbackResult{
			Status:    s.Status().String(),
			SessionID: s.ID,
		}
		switch errors.GetCode(err) {
		case errors.ErrCodeFeedbackTimeout:
			result.Message = "No feedback received before the timeout; the session was cleaned up."
		case errors.ErrCodeWaitInterrupted:
			result.Message = "Feedback wait was cancelled."
		default:
			result.Message = err.Error()
		}
		return createErrorResult(result.Message), result, nil
	}

	result := InteractiveFeedbackResult{
		Status:              s.Status().String(),
		Message:             "Feedback collected successfully",
		SessionID:           s.ID,
		InteractiveFeedback: feedback.InteractiveFeedback,
		Logs:                feedback.Logs,
		ImageCount:          len(feedback.Images),
		Images:              feedback.Images,
		Settings:            feedback.Settings,
	}

	t.logger.Info("Feedback collected", map[string]interface{}{
		"session_id":  s.ID,
		"image_count": result.ImageCount,
	})

	return createJSONResult(result), result, nil
}

// GetFeedbackStatusArgs represents the arguments for querying session status
type GetFeedbackStatusArgs struct {
	SessionID      string `json:"session_id,omitempty"`
	IncludeHistory bool   `json:"include_history,omitempty"`
	HistoryLimit   int    `json:"history_limit,omitempty"`
}

// GetFeedbackStatusResult represents a session status snapshot
type GetFeedbackStatusResult struct {
	Status        string                   `json:"status"`
	Message       string                   `json:"message"`
	SessionID     string                   `json:"session_id,omitempty"`
	SessionStatus string                   `json:"session_status,omitempty"`
	StatusNote    string                   `json:"status_note,omitempty"`
	Stats         *session.Stats           `json:"stats,omitempty"`
	CanProceed    bool                     `json:"can_proceed"`
	History       []database.SessionRecord `json:"history,omitempty"`
}

// GetFeedbackStatus reports the state of the current or a named session.
// Absence, expiry, and errors are all conveyed through the status value.
func (t *FeedbackTools) GetFeedbackStatus(ctx context.Context, req *mcp.CallToolRequest, args GetFeedbackStatusArgs) (*mcp.CallToolResult, GetFeedbackStatusResult, error) {
	var s *session.Session
	if args.SessionID != "" {
		if err := validateSessionID(args.SessionID); err != nil {
			return createErrorResult(fmt.Sprintf("Invalid session ID: %v", err)), GetFeedbackStatusResult{}, nil
		}
		s = t.coordinator.GetSession(args.SessionID)
		if s == nil {
			result := GetFeedbackStatusResult{
				Status:        "success",
				Message:       "Session not found",
				SessionID:     args.SessionID,
				SessionStatus: "not_found",
			}
			return createJSONResult(result), result, nil
		}
	} else {
		s = t.coordinator.GetCurrentSession()
		if s == nil {
			result := GetFeedbackStatusResult{
				Status:        "success",
				Message:       "No active feedback session",
				SessionStatus: "no_active_session",
			}
			return createJSONResult(result), result, nil
		}
	}

	stats := s.GetStats()
	result := GetFeedbackStatusResult{
		Status:        "success",
		Message:       "Session status retrieved",
		SessionID:     s.ID,
		SessionStatus: s.Status().String(),
		StatusNote:    s.StatusMessage(),
		Stats:         &stats,
		CanProceed:    s.CanProceed(),
	}

	if args.IncludeHistory && t.db != nil {
		history, err := t.db.RecentSessions(args.HistoryLimit)
		if err != nil {
			t.logger.Warn("Failed to load session history", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			result.History = history
		}
	}

	return createJSONResult(result), result, nil
}
