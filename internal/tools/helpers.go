package tools

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Helper functions for validation and result creation

// validateSessionID validates a session ID format
func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}

	// Basic UUID format validation
	uuidPattern := regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	if !uuidPattern.MatchString(sessionID) {
		return fmt.Errorf("session ID must be a valid UUID format")
	}

	return nil
}

// validateProjectDirectory checks a project directory argument
func validateProjectDirectory(dir string) error {
	if dir == "" {
		return fmt.Errorf("project directory cannot be empty")
	}
	return nil
}

// createJSONResult creates a JSON result for tool responses
func createJSONResult(data interface{}) *mcp.CallToolResult {
	resultJSON, _ := json.MarshalIndent(data, "", "  ")
	content := []mcp.Content{
		&mcp.TextContent{
			Text: string(resultJSON),
		},
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: false,
	}
}

// createErrorResult creates an error result for tool responses
func createErrorResult(message string) *mcp.CallToolResult {
	content := []mcp.Content{
		&mcp.TextContent{
			Text: fmt.Sprintf("Error: %s", message),
		},
	}

	return &mcp.CallToolResult{
		Content: content,
		IsError: true,
	}
}
