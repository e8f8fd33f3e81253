// Package session implements the feedback session lifecycle: the state
// machine, the wait-for-feedback protocol, resource teardown, the cleanup
// policy engine, and the coordinator that hands the reviewer connection from
// one session to the next.
package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rama-kairi/go-feedback/internal/errors"
	"github.com/rama-kairi/go-feedback/internal/logger"
)

// ImageAttachment is one image submitted alongside feedback text
type ImageAttachment struct {
	Name string `json:"name"`
	Size int    `json:"size"`
	Data string `json:"data"` // base64
}

// UserMessage is a free-form message the reviewer added during the session
type UserMessage struct {
	Content    string    `json:"content"`
	ImageCount int       `json:"image_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// FeedbackResult is what a completed wait returns to the MCP caller
type FeedbackResult struct {
	Logs                string            `json:"logs"`
	InteractiveFeedback string            `json:"interactive_feedback"`
	Images              []ImageAttachment `json:"images"`
	Settings            map[string]any    `json:"settings"`
}

// Stats describes one session's cleanup outcome and current shape
type Stats struct {
	SessionID       string        `json:"session_id"`
	Status          string        `json:"status"`
	Age             time.Duration `json:"age"`
	IdleTime        time.Duration `json:"idle_time"`
	CleanupDone     bool          `json:"cleanup_done"`
	CleanupReason   CleanupReason `json:"cleanup_reason,omitempty"`
	CleanupDuration time.Duration `json:"cleanup_duration,omitempty"`
	MemoryFreed     uint64        `json:"memory_freed"`
	ActiveTabs      int           `json:"active_tabs"`
	CommandLogLines int           `json:"command_log_lines"`
	UserMessages    int           `json:"user_messages"`
}

// CleanupCallback is notified after a session's resources are torn down
type CleanupCallback func(sessionID string, reason CleanupReason)

// Grace period before an errored or timed-out session counts as expired
const terminalGracePeriod = 5 * time.Minute

// Options configures a new session
type Options struct {
	AutoCleanupDelay time.Duration
	MaxIdleTime      time.Duration
	MaxImageSize     int
}

// Session is one feedback collection round. All exported methods are safe for
// concurrent use.
type Session struct {
	ID               string
	ProjectDirectory string
	Summary          string

	mu            sync.Mutex
	status        Status
	statusMessage string
	createdAt     time.Time
	lastActivity  time.Time

	opts Options

	socket        Socket
	pendingUpdate bool

	process *exec.Cmd

	autoCleanupTimer *time.Timer
	timeoutTimer     *time.Timer
	timeoutEnabled   bool
	timeoutDuration  time.Duration

	commandLogs  []string
	feedbackText string
	images       []ImageAttachment
	settings     map[string]any
	userMessages []UserMessage
	activeTabs   map[string]time.Time

	done     chan struct{}
	doneOnce sync.Once

	cleanupDone      bool
	cleanupReason    CleanupReason
	cleanupDuration  time.Duration
	memoryFreed      uint64
	cleanupCallbacks []CleanupCallback

	logger *logger.Logger
}

// New creates a session in the WAITING state and schedules its auto-cleanup
// timer
func New(id, projectDirectory, summary string, opts Options, log *logger.Logger) *Session {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	now := time.Now()
	s := &Session{
		ID:               id,
		ProjectDirectory: projectDirectory,
		Summary:          summary,
		status:           StatusWaiting,
		createdAt:        now,
		lastActivity:     now,
		opts:             opts,
		settings:         make(map[string]any),
		activeTabs:       make(map[string]time.Time),
		done:             make(chan struct{}),
		logger:           log.WithSession(id),
	}
	s.scheduleAutoCleanup()
	s.logger.LogSessionEvent("created", id, s.status.String(), map[string]interface{}{
		"project_directory": projectDirectory,
	})
	return s
}

// scheduleAutoCleanup (re)arms the timer that expires a session which never
// reaches COMPLETED
func (s *Session) scheduleAutoCleanup() {
	if s.opts.AutoCleanupDelay <= 0 {
		return
	}
	if s.autoCleanupTimer != nil {
		s.autoCleanupTimer.Stop()
	}
	s.autoCleanupTimer = time.AfterFunc(s.opts.AutoCleanupDelay, s.handleAutoCleanup)
}

func (s *Session) handleAutoCleanup() {
	s.mu.Lock()
	if s.cleanupDone || s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	if !s.status.IsTerminal() {
		s.status = StatusExpired
		s.statusMessage = "session expired without completing"
	}
	s.mu.Unlock()

	s.signalDone()
	s.CleanupSync(ReasonExpired, false)
}

// Status returns the current lifecycle status
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StatusMessage returns the human-readable note attached to the last
// status change
func (s *Session) StatusMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusMessage
}

// Advance moves the session to its single forward successor. From a terminal
// state it logs a warning and reports false; it never panics or errors.
func (s *Session) Advance(message string) bool {
	s.mu.Lock()
	if s.status.IsTerminal() {
		status := s.status
		s.mu.Unlock()
		s.logger.Warn("Ignoring advance on terminal session", map[string]interface{}{
			"status": status.String(),
		})
		return false
	}

	s.status = s.status.Next()
	if message != "" {
		s.statusMessage = message
	}
	s.lastActivity = time.Now()

	// A submitted session gets a fresh expiry window so the agent has time
	// to collect the result.
	if s.status == StatusFeedbackSubmitted {
		s.scheduleAutoCleanup()
	}
	status := s.status
	s.mu.Unlock()

	s.logger.LogSessionEvent("advanced", s.ID, status.String())
	return true
}

// SetError moves the session to the ERROR terminal state
func (s *Session) SetError(message string) {
	s.mu.Lock()
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.status = StatusError
	s.statusMessage = message
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.logger.LogSessionEvent("errored", s.ID, StatusError.String(), map[string]interface{}{
		"message": message,
	})
}

// SetExpired moves the session to the EXPIRED terminal state
func (s *Session) SetExpired(message string) {
	s.mu.Lock()
	if s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.status = StatusExpired
	s.statusMessage = message
	s.lastActivity = time.Now()
	s.mu.Unlock()

	s.logger.LogSessionEvent("expired", s.ID, StatusExpired.String())
}

// CanProceed reports whether the session is at a point where an external
// driver is expected to push it forward: WAITING or FEEDBACK_SUBMITTED
func (s *Session) CanProceed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusWaiting || s.status == StatusFeedbackSubmitted
}

// IsActive reports whether the session is in a pre-submission working state
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusWaiting || s.status == StatusActive
}

// IsExpired reports whether the session should be reaped: explicitly expired,
// idle past its limit, or sitting in ERROR/TIMEOUT beyond the grace period
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusExpired {
		return true
	}
	idle := time.Since(s.lastActivity)
	if s.opts.MaxIdleTime > 0 && idle > s.opts.MaxIdleTime {
		return true
	}
	if (s.status == StatusError || s.status == StatusTimeout) && idle > terminalGracePeriod {
		return true
	}
	return false
}

// Heartbeat records reviewer activity, deferring idle expiry
func (s *Session) Heartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Age returns time since the session was created
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.createdAt)
}

// IdleTime returns time since the last recorded activity
func (s *Session) IdleTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// RegisterTab records a connected reviewer tab
func (s *Session) RegisterTab(tabID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeTabs[tabID] = time.Now()
	s.lastActivity = time.Now()
}

// Tabs returns a copy of the active tab registry
func (s *Session) Tabs() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	tabs := make(map[string]time.Time, len(s.activeTabs))
	for id, seen := range s.activeTabs {
		tabs[id] = seen
	}
	return tabs
}

// SeedTabs pre-populates the tab registry, used during session hand-off
func (s *Session) SeedTabs(tabs map[string]time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, seen := range tabs {
		s.activeTabs[id] = seen
	}
}

// SetSocket attaches the reviewer transport. If an update was pending from a
// hand-off, the new socket is notified immediately.
func (s *Session) SetSocket(ctx context.Context, sock Socket) {
	s.mu.Lock()
	s.socket = sock
	s.lastActivity = time.Now()
	pending := s.pendingUpdate
	s.pendingUpdate = false
	s.mu.Unlock()

	if pending && sock != nil {
		_ = sock.Send(ctx, Notification{
			Type:      NotifySessionUpdated,
			SessionID: s.ID,
			Message:   "session updated while disconnected",
		})
	}
}

// TakeSocket detaches and returns the socket without closing it, for
// transfer to a successor session
func (s *Session) TakeSocket() Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	sock := s.socket
	s.socket = nil
	return sock
}

// MarkPendingUpdate flags that the next attached socket should be told the
// session changed while no client was connected
func (s *Session) MarkPendingUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingUpdate = true
}

// AddUserMessage records a free-form reviewer message
func (s *Session) AddUserMessage(content string, imageCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userMessages = append(s.userMessages, UserMessage{
		Content:    content,
		ImageCount: imageCount,
		Timestamp:  time.Now(),
	})
	s.lastActivity = time.Now()
}

// UpdateTimeoutSettings (re)configures the operator session timeout. A firing
// timeout marks the session TIMEOUT, releases any waiter, and tears down.
func (s *Session) UpdateTimeoutSettings(enabled bool, d time.Duration) {
	s.mu.Lock()
	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
		s.timeoutTimer = nil
	}
	s.timeoutEnabled = enabled
	s.timeoutDuration = d
	if enabled && d > 0 && !s.status.IsTerminal() {
		s.timeoutTimer = time.AfterFunc(d, s.handleSessionTimeout)
	}
	s.mu.Unlock()
}

func (s *Session) handleSessionTimeout() {
	s.mu.Lock()
	if s.cleanupDone || s.status.IsTerminal() {
		s.mu.Unlock()
		return
	}
	s.status = StatusTimeout
	s.statusMessage = "session timeout reached"
	s.mu.Unlock()

	s.signalDone()
	s.CleanupSync(ReasonTimeout, false)
}

// signalDone releases the completion signal exactly once
func (s *Session) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done exposes the completion signal for callers that select on it
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// effectiveWait shortens the internal wait by a safety margin (1s for
// timeouts up to 30s, else 5s) so the timeout teardown always resolves before
// the caller's own deadline. The wait never exceeds the caller's timeout.
func effectiveWait(timeout time.Duration) time.Duration {
	margin := 5 * time.Second
	if timeout <= 30*time.Second {
		margin = time.Second
	}
	if timeout <= margin {
		return timeout / 2
	}
	return timeout - margin
}

// WaitForFeedback blocks until feedback is submitted, the wait times out, or
// ctx is cancelled. Timeout and cancellation tear the session down before
// returning.
func (s *Session) WaitForFeedback(ctx context.Context, timeout time.Duration) (*FeedbackResult, error) {
	wait := effectiveWait(timeout)
	start := time.Now()

	s.logger.Debug("Waiting for feedback", map[string]interface{}{
		"timeout":        timeout.String(),
		"effective_wait": wait.String(),
	})

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-s.done:
		s.mu.Lock()
		status := s.status
		result := &FeedbackResult{
			Logs:                strings.Join(s.commandLogs, "\n"),
			InteractiveFeedback: s.feedbackText,
			Images:              append([]ImageAttachment(nil), s.images...),
			Settings:            copySettings(s.settings),
		}
		s.mu.Unlock()

		switch status {
		case StatusTimeout:
			return nil, errors.FeedbackTimeout(s.ID, int(time.Since(start).Seconds()))
		case StatusError:
			return nil, errors.New(errors.ErrCodeSessionTerminal, "session errored while waiting: "+s.StatusMessage()).
				WithContext("session_id", s.ID)
		case StatusExpired:
			return nil, errors.New(errors.ErrCodeSessionExpired, "session expired while waiting").
				WithContext("session_id", s.ID)
		default:
			return result, nil
		}

	case <-timer.C:
		s.mu.Lock()
		if !s.status.IsTerminal() {
			s.status = StatusTimeout
			s.statusMessage = "no feedback received before timeout"
		}
		s.mu.Unlock()
		s.signalDone()
		s.Cleanup(ctx, ReasonTimeout)
		return nil, errors.FeedbackTimeout(s.ID, int(time.Since(start).Seconds()))

	case <-ctx.Done():
		s.mu.Lock()
		if !s.status.IsTerminal() {
			s.status = StatusError
			s.statusMessage = "feedback wait cancelled"
		}
		s.mu.Unlock()
		s.signalDone()
		s.CleanupSync(ReasonError, false)
		return nil, errors.WaitInterrupted(s.ID, ctx.Err())
	}
}

// SubmitFeedback stores the reviewer's submission, advances to
// FEEDBACK_SUBMITTED, and releases the waiter
func (s *Session) SubmitFeedback(text string, images []ImageAttachment, settings map[string]any) error {
	s.mu.Lock()
	if s.cleanupDone || s.status.IsTerminal() {
		status := s.status
		s.mu.Unlock()
		return errors.New(errors.ErrCodeSessionTerminal, "cannot submit feedback to a finished session").
			WithContext("session_id", s.ID).
			WithContext("status", status.String())
	}

	s.feedbackText = text
	s.images = s.processImages(images)
	if settings != nil {
		for k, v := range settings {
			s.settings[k] = v
		}
	}
	s.lastActivity = time.Now()
	s.mu.Unlock()

	// WAITING jumps through ACTIVE so the forward path stays single-step.
	if s.Status() == StatusWaiting {
		s.Advance("client submitted feedback")
	}
	s.Advance("feedback submitted")
	s.signalDone()

	s.logger.LogSessionEvent("feedback_submitted", s.ID, s.Status().String(), map[string]interface{}{
		"image_count": len(images),
	})
	return nil
}

// processImages drops attachments over the size limit. Called with s.mu held.
func (s *Session) processImages(images []ImageAttachment) []ImageAttachment {
	if len(images) == 0 {
		return nil
	}
	kept := make([]ImageAttachment, 0, len(images))
	for _, img := range images {
		size := img.Size
		if size == 0 {
			size = len(img.Data)
			img.Size = size
		}
		if s.opts.MaxImageSize > 0 && size > s.opts.MaxImageSize {
			s.logger.Warn("Dropping oversized image", map[string]interface{}{
				"name": img.Name, "size": size, "limit": s.opts.MaxImageSize,
			})
			continue
		}
		kept = append(kept, img)
	}
	return kept
}

// shellMetaChars are rejected outright; commands run without a shell
const shellMetaChars = ";|&$`<>(){}"

// RunCommand starts a command in the project directory, streaming its output
// into the session log and to the connected reviewer. The command runs
// asynchronously; teardown terminates it.
func (s *Session) RunCommand(ctx context.Context, command string) error {
	if strings.ContainsAny(command, shellMetaChars) {
		return errors.CommandBlocked(command, "shell metacharacters are not allowed")
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return errors.InvalidInput("command", "empty command")
	}

	s.mu.Lock()
	if s.cleanupDone || s.status.IsTerminal() {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeSessionTerminal, "cannot run commands in a finished session").
			WithContext("session_id", s.ID)
	}
	if s.process != nil {
		s.mu.Unlock()
		return errors.New(errors.ErrCodeCommandFailed, "a command is already running").
			WithContext("session_id", s.ID)
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = s.ProjectDirectory
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		pw.Close()
		return errors.Wrap(err, errors.ErrCodeCommandFailed, "failed to start command").
			WithContext("command", command)
	}

	s.process = cmd
	s.lastActivity = time.Now()
	sock := s.socket
	s.mu.Unlock()

	s.logger.Info("Command started", map[string]interface{}{
		"command": command, "pid": cmd.Process.Pid,
	})

	go s.streamOutput(ctx, pr, sock)
	go func() {
		err := cmd.Wait()
		pw.Close()

		s.mu.Lock()
		if s.process == cmd {
			s.process = nil
		}
		s.mu.Unlock()

		exitLine := "command finished"
		if err != nil {
			exitLine = "command failed: " + err.Error()
		}
		s.appendLog(exitLine)
	}()

	return nil
}

func (s *Session) streamOutput(ctx context.Context, r io.Reader, sock Socket) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		s.appendLog(line)
		if sock != nil {
			_ = sock.Send(ctx, Notification{
				Type:      NotifyCommandOutput,
				SessionID: s.ID,
				Message:   line,
			})
		}
	}
}

func (s *Session) appendLog(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commandLogs = append(s.commandLogs, line)
}

// CommandLogs returns a copy of the accumulated command output
func (s *Session) CommandLogs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commandLogs...)
}

// RegisterCleanupCallback adds a function to run after teardown completes
func (s *Session) RegisterCleanupCallback(cb CleanupCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanupCallbacks = append(s.cleanupCallbacks, cb)
}

// Cleanup releases all session resources, notifying the connected reviewer
// first. At most one cleanup ever runs; later calls are no-ops.
func (s *Session) Cleanup(ctx context.Context, reason CleanupReason) {
	s.doCleanup(ctx, reason, true, false)
}

// CleanupSync is the teardown variant for timer callbacks and hand-off. It
// skips the peer notification. With preserveSocket the session's socket,
// completion signal, feedback data, and status are all left untouched, and
// the done flag stays unset so a later final cleanup still runs.
func (s *Session) CleanupSync(reason CleanupReason, preserveSocket bool) {
	s.doCleanup(context.Background(), reason, false, preserveSocket)
}

func (s *Session) doCleanup(ctx context.Context, reason CleanupReason, notify, preserveSocket bool) {
	s.mu.Lock()
	if s.cleanupDone && !preserveSocket {
		s.mu.Unlock()
		return
	}
	if !preserveSocket {
		s.cleanupDone = true
	}
	s.cleanupReason = reason
	s.mu.Unlock()

	start := time.Now()
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	// Step 1: cancel timers.
	s.mu.Lock()
	if s.autoCleanupTimer != nil {
		s.autoCleanupTimer.Stop()
		s.autoCleanupTimer = nil
	}
	if s.timeoutTimer != nil {
		s.timeoutTimer.Stop()
		s.timeoutTimer = nil
	}
	sock := s.socket
	if !preserveSocket {
		s.socket = nil
	}
	proc := s.process
	s.process = nil
	s.mu.Unlock()

	// Step 2: notify and close the reviewer transport.
	if sock != nil && !preserveSocket {
		if notify {
			_ = sock.Send(ctx, Notification{
				Type:      NotifySessionCleanup,
				SessionID: s.ID,
				Message:   "session is being cleaned up",
				Data:      map[string]any{"reason": string(reason)},
			})
		}
		if err := sock.Close(); err != nil {
			s.logger.Warn("Socket close failed during cleanup", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	// Step 3: terminate the subprocess, escalating if it ignores SIGTERM.
	if proc != nil && proc.Process != nil {
		if err := terminateCommand(proc, 5*time.Second); err != nil {
			s.logger.Warn("Subprocess termination failed during cleanup", map[string]interface{}{
				"pid": proc.Process.Pid, "error": err.Error(),
			})
		}
	}

	// Step 4: release anything blocked on the completion signal. A waiter on
	// a preserved session must stay blocked; its round is not over.
	if !preserveSocket {
		s.signalDone()
	}

	// Steps 5 and 6: clear buffers, then finalize status. Feedback data
	// survives the preserve variant so the successor round can still read it.
	s.mu.Lock()
	s.commandLogs = nil
	s.userMessages = nil
	s.activeTabs = make(map[string]time.Time)

	if !preserveSocket {
		s.images = nil
		s.settings = make(map[string]any)
		if !s.status.IsTerminal() {
			switch reason {
			case ReasonTimeout:
				s.status = StatusTimeout
			case ReasonExpired:
				s.status = StatusExpired
			case ReasonError:
				s.status = StatusError
			default:
				s.status = StatusCompleted
			}
			s.statusMessage = "cleaned up: " + string(reason)
		}
	}
	callbacks := append([]CleanupCallback(nil), s.cleanupCallbacks...)
	s.mu.Unlock()

	// Step 7: run callbacks, isolating each one.
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Cleanup callback panicked", fmt.Errorf("%v", r))
				}
			}()
			cb(s.ID, reason)
		}()
	}

	// Step 8: record stats. Memory freed is a best-effort heap delta.
	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	var freed uint64
	if before.HeapAlloc > after.HeapAlloc {
		freed = before.HeapAlloc - after.HeapAlloc
	}

	s.mu.Lock()
	s.cleanupDuration = time.Since(start)
	s.memoryFreed = freed
	duration := s.cleanupDuration
	s.mu.Unlock()

	s.logger.LogCleanupEvent(string(reason), 1, duration, nil, map[string]interface{}{
		"session_id":      s.ID,
		"preserve_socket": preserveSocket,
		"memory_freed":    freed,
	})
}

// CleanupDone reports whether teardown has already run
func (s *Session) CleanupDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupDone
}

// GetStats returns the session's lifecycle and cleanup statistics
func (s *Session) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		SessionID:       s.ID,
		Status:          s.status.String(),
		Age:             time.Since(s.createdAt),
		IdleTime:        time.Since(s.lastActivity),
		CleanupDone:     s.cleanupDone,
		CleanupReason:   s.cleanupReason,
		CleanupDuration: s.cleanupDuration,
		MemoryFreed:     s.memoryFreed,
		ActiveTabs:      len(s.activeTabs),
		CommandLogLines: len(s.commandLogs),
		UserMessages:    len(s.userMessages),
	}
}

// terminateCommand sends SIGTERM, waits up to gracePeriod, then SIGKILLs.
// The command's own Wait goroutine reaps it; this only signals.
func terminateCommand(cmd *exec.Cmd, gracePeriod time.Duration) error {
	if err := cmd.Process.Signal(unix.SIGTERM); err != nil {
		// Already exited
		return nil
	}

	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if unix.Kill(cmd.Process.Pid, 0) != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cmd.Process.Kill()
}

func copySettings(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		out[k] = v
	}
	return out
}
