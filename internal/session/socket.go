package session

import "context"

// Notification is the wire message pushed to a connected reviewer client
type Notification struct {
	Type      string         `json:"type"`
	Code      string         `json:"code,omitempty"`
	Message   string         `json:"message,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Notification type codes understood by reviewer clients
const (
	NotifySessionCleanup = "session_cleanup"
	NotifySessionTimeout = "session_timeout"
	NotifySessionUpdated = "session_updated"
	NotifyCommandOutput  = "command_output"
	NotifyStatusChange   = "status_update"
)

// Socket is the handle the session layer holds on a connected reviewer
// transport. The web layer implements it; sessions only push notifications
// through it and close it during teardown. Implementations must tolerate
// Close being called more than once.
type Socket interface {
	Send(ctx context.Context, n Notification) error
	Close() error
}
