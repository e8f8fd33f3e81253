package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rama-kairi/go-feedback/internal/errors"
	"github.com/rama-kairi/go-feedback/internal/logger"
)

// HistoryStore persists session rounds and feedback submissions. The database
// package implements it; a nil store disables persistence.
type HistoryStore interface {
	SaveSession(id, projectDirectory, summary, status string) error
	UpdateSessionStatus(id, status string) error
	RecordFeedback(sessionID, content, submissionMethod string, imageCount int) error
}

// CoordinatorOptions configures the coordinator and the sessions it creates
type CoordinatorOptions struct {
	Session   Options
	TabExpiry time.Duration
}

// Coordinator owns the session registry and the single current-session
// pointer. Only the coordinator mutates that pointer, always behind its lock.
type Coordinator struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	current    *Session
	globalTabs map[string]time.Time

	opts   CoordinatorOptions
	store  HistoryStore
	logger *logger.Logger
}

// NewCoordinator creates an empty coordinator. store may be nil.
func NewCoordinator(opts CoordinatorOptions, store HistoryStore, log *logger.Logger) *Coordinator {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if opts.TabExpiry <= 0 {
		opts.TabExpiry = 60 * time.Second
	}
	return &Coordinator{
		sessions:   make(map[string]*Session),
		globalTabs: make(map[string]time.Time),
		opts:       opts,
		store:      store,
		logger:     log.WithComponent("coordinator"),
	}
}

// CreateSession starts a new feedback round, handing the reviewer connection
// over from the outgoing session. The outgoing session's tabs survive through
// the global registry, its socket transfers to the new session, and it is
// torn down with its socket preserved. It stays in the registry until a
// cleanup pass reaps it.
func (c *Coordinator) CreateSession(ctx context.Context, projectDirectory, summary string) (*Session, error) {
	c.mu.Lock()

	var inherited Socket
	old := c.current
	if old != nil {
		inherited = old.TakeSocket()
		c.mergeTabsLocked(old.Tabs())
	}

	id := uuid.NewString()
	s := New(id, projectDirectory, summary, c.opts.Session, c.logger)
	s.SeedTabs(c.validTabsLocked())
	s.RegisterCleanupCallback(c.persistFinalStatus)

	c.sessions[id] = s
	c.current = s
	c.mu.Unlock()

	// Finish the outgoing session outside the coordinator lock. Its socket
	// was already detached, so preserve-socket teardown cannot touch the
	// connection the new session is about to receive.
	if old != nil {
		if old.Status() == StatusFeedbackSubmitted {
			old.Advance("superseded by new session")
		}
		old.CleanupSync(ReasonManual, true)
	}

	if inherited != nil {
		s.SetSocket(ctx, inherited)
		_ = inherited.Send(ctx, Notification{
			Type:      NotifySessionUpdated,
			SessionID: s.ID,
			Message:   "new feedback session started",
			Data:      map[string]any{"summary": summary},
		})
	} else {
		s.MarkPendingUpdate()
	}

	if c.store != nil {
		if err := c.store.SaveSession(s.ID, projectDirectory, summary, s.Status().String()); err != nil {
			c.logger.Warn("Failed to persist session", map[string]interface{}{
				"session_id": s.ID, "error": err.Error(),
			})
		}
	}

	c.logger.LogSessionEvent("registered", s.ID, s.Status().String(), map[string]interface{}{
		"handed_off": inherited != nil,
	})
	return s, nil
}

// persistFinalStatus runs after any session finishes teardown and records its
// final status
func (c *Coordinator) persistFinalStatus(sessionID string, reason CleanupReason) {
	if c.store == nil {
		return
	}
	s := c.GetSession(sessionID)
	if s == nil {
		return
	}
	if err := c.store.UpdateSessionStatus(sessionID, s.Status().String()); err != nil {
		c.logger.Warn("Failed to persist final session status", map[string]interface{}{
			"session_id": sessionID, "error": err.Error(),
		})
	}
}

// GetSession looks up a session by ID
func (c *Coordinator) GetSession(id string) *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[id]
}

// GetCurrentSession returns the current session, or nil when none is active.
// A nil return is the no-session signal, not an error.
func (c *Coordinator) GetCurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ClearCurrentSession drops the current pointer without cleaning the session
func (c *Coordinator) ClearCurrentSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// RemoveSession cleans up and deregisters a session by ID
func (c *Coordinator) RemoveSession(id string, reason CleanupReason) bool {
	c.mu.Lock()
	s, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.reapSession(s, reason)
	return true
}

// SessionCount returns the number of registered sessions
func (c *Coordinator) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// ListSessions returns a snapshot of all registered sessions
func (c *Coordinator) ListSessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// SubmitFeedback routes a reviewer submission to a session and persists it
func (c *Coordinator) SubmitFeedback(sessionID, text string, images []ImageAttachment, settings map[string]any, method string) error {
	s := c.GetSession(sessionID)
	if s == nil {
		s = c.GetCurrentSession()
	}
	if s == nil {
		return errors.NoActiveSession()
	}

	if err := s.SubmitFeedback(text, images, settings); err != nil {
		return err
	}

	if c.store != nil {
		if err := c.store.RecordFeedback(s.ID, text, method, len(images)); err != nil {
			c.logger.Warn("Failed to persist feedback", map[string]interface{}{
				"session_id": s.ID, "error": err.Error(),
			})
		}
	}
	return nil
}

// reapSession tears a session down and removes it from the registry. A
// hand-off leaves the superseded session registered; only a reap removes it.
// A stale session's reap never touches a different current session.
func (c *Coordinator) reapSession(s *Session, reason CleanupReason) {
	s.CleanupSync(reason, false)

	c.mu.Lock()
	delete(c.sessions, s.ID)
	if c.current != nil && c.current.ID == s.ID {
		c.current = nil
	}
	c.mu.Unlock()
}

// reapAll tears down every session, for shutdown
func (c *Coordinator) reapAll(reason CleanupReason) int {
	sessions := c.ListSessions()
	for _, s := range sessions {
		c.reapSession(s, reason)
	}
	return len(sessions)
}

// CleanupExpiredSessions reaps every session reporting itself expired
func (c *Coordinator) CleanupExpiredSessions() int {
	cleaned := 0
	for _, s := range c.ListSessions() {
		if !s.IsExpired() {
			continue
		}
		c.reapSession(s, ReasonExpired)
		cleaned++
	}
	if cleaned > 0 {
		c.logger.Info("Expired sessions cleaned", map[string]interface{}{
			"count": cleaned,
		})
	}
	return cleaned
}

// Idle tiers for memory-pressure cleanup: anything idle past the long tier
// goes; the short tier only applies to non-current sessions.
const (
	pressureShortIdle = 5 * time.Minute
	pressureLongIdle  = 10 * time.Minute
	pressureMaxClean  = 5
)

// CleanupSessionsByMemoryPressure reaps idle sessions to relieve memory
// pressure. Without force the current session is protected and at most five
// sessions go in one pass, so pressure spikes cannot wipe the registry.
func (c *Coordinator) CleanupSessionsByMemoryPressure(force bool) int {
	current := c.GetCurrentSession()
	cleaned := 0

	for _, s := range c.ListSessions() {
		if !force && cleaned >= pressureMaxClean {
			break
		}
		isCurrent := current != nil && current.ID == s.ID
		if isCurrent && !force {
			continue
		}

		idle := s.IdleTime()
		if idle > pressureLongIdle || (idle > pressureShortIdle && !isCurrent) || force {
			c.reapSession(s, ReasonMemoryPressure)
			cleaned++
		}
	}

	if cleaned > 0 {
		c.logger.LogCleanupEvent(string(TriggerMemoryPressure), cleaned, 0, nil, map[string]interface{}{
			"force": force,
		})
	}
	return cleaned
}

// GetSessionCleanupStats returns per-session stats for every registered
// session
func (c *Coordinator) GetSessionCleanupStats() []Stats {
	sessions := c.ListSessions()
	stats := make([]Stats, 0, len(sessions))
	for _, s := range sessions {
		stats = append(stats, s.GetStats())
	}
	return stats
}

// mergeTabsLocked folds a session's tabs into the global registry, dropping
// entries not seen within the expiry window. Called with c.mu held.
func (c *Coordinator) mergeTabsLocked(tabs map[string]time.Time) {
	cutoff := time.Now().Add(-c.opts.TabExpiry)
	for id, seen := range tabs {
		if seen.After(cutoff) {
			c.globalTabs[id] = seen
		}
	}
	for id, seen := range c.globalTabs {
		if !seen.After(cutoff) {
			delete(c.globalTabs, id)
		}
	}
}

// validTabsLocked returns the still-fresh global tabs. Called with c.mu held.
func (c *Coordinator) validTabsLocked() map[string]time.Time {
	cutoff := time.Now().Add(-c.opts.TabExpiry)
	out := make(map[string]time.Time)
	for id, seen := range c.globalTabs {
		if seen.After(cutoff) {
			out[id] = seen
		}
	}
	return out
}

// GlobalTabCount returns the number of fresh tabs in the global registry
func (c *Coordinator) GlobalTabCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.validTabsLocked())
}

// Stop tears down every session with the shutdown reason and clears state
func (c *Coordinator) Stop() {
	count := c.reapAll(ReasonShutdown)

	c.mu.Lock()
	c.sessions = make(map[string]*Session)
	c.current = nil
	c.globalTabs = make(map[string]time.Time)
	c.mu.Unlock()

	c.logger.Info("Coordinator stopped", map[string]interface{}{
		"sessions_cleaned": count,
	})
}
