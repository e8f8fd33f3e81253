package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rama-kairi/go-feedback/internal/errors"
)

// memoryStore is an in-memory HistoryStore for tests
type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]string // id -> last status
	feedback int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]string)}
}

func (m *memoryStore) SaveSession(id, projectDirectory, summary, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = status
	return nil
}

func (m *memoryStore) UpdateSessionStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = status
	return nil
}

func (m *memoryStore) RecordFeedback(sessionID, content, submissionMethod string, imageCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback++
	return nil
}

func newTestCoordinator(store HistoryStore) *Coordinator {
	return NewCoordinator(CoordinatorOptions{
		Session:   testOptions(),
		TabExpiry: 60 * time.Second,
	}, store, nil)
}

func TestCreateSessionHandOff(t *testing.T) {
	t.Run("SocketTransfers", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()
		ctx := context.Background()

		a, err := c.CreateSession(ctx, t.TempDir(), "round one")
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
		sock := &fakeSocket{}
		a.SetSocket(ctx, sock)
		a.RegisterTab("tab-1")
		if err := a.SubmitFeedback("done", nil, nil); err != nil {
			t.Fatalf("SubmitFeedback failed: %v", err)
		}

		b, err := c.CreateSession(ctx, t.TempDir(), "round two")
		if err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}

		// The old session finished COMPLETED with its socket intact. The
		// preserve teardown must not mark it done; a later reap does that.
		if a.Status() != StatusCompleted {
			t.Errorf("Expected old session COMPLETED, got %s", a.Status())
		}
		if a.CleanupDone() {
			t.Error("Hand-off teardown blocked the old session's final cleanup")
		}
		if sock.closeCount() != 0 {
			t.Error("Hand-off closed the transferred socket")
		}

		// The new session inherited the socket and the tab
		b.mu.Lock()
		inherited := b.socket
		b.mu.Unlock()
		if inherited != Socket(sock) {
			t.Error("Socket was not transferred to the new session")
		}
		if len(b.Tabs()) != 1 {
			t.Errorf("Expected 1 seeded tab, got %d", len(b.Tabs()))
		}

		// The transferred socket was told about the new session
		types := sock.sentTypes()
		found := false
		for _, ty := range types {
			if ty == NotifySessionUpdated {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected session update notification, got %v", types)
		}

		// Old session stays registered until a cleanup pass reaps it
		if c.GetSession(a.ID) == nil {
			t.Error("Hand-off removed the old session from the registry")
		}
		if got := c.GetCurrentSession(); got == nil || got.ID != b.ID {
			t.Error("Current pointer does not reference the new session")
		}

		// The eventual reap completes the deferred final cleanup
		if !c.RemoveSession(a.ID, ReasonExpired) {
			t.Fatal("RemoveSession failed for the superseded session")
		}
		if !a.CleanupDone() {
			t.Error("Reap did not run the old session's final cleanup")
		}
	})

	t.Run("NoSocketSetsPendingUpdate", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()
		ctx := context.Background()

		if _, err := c.CreateSession(ctx, t.TempDir(), "one"); err != nil {
			t.Fatal(err)
		}
		b, err := c.CreateSession(ctx, t.TempDir(), "two")
		if err != nil {
			t.Fatal(err)
		}

		b.mu.Lock()
		pending := b.pendingUpdate
		b.mu.Unlock()
		if !pending {
			t.Error("Expected pending-update flag when no socket to transfer")
		}

		// Attaching a socket later delivers the pending update
		sock := &fakeSocket{}
		b.SetSocket(ctx, sock)
		types := sock.sentTypes()
		if len(types) != 1 || types[0] != NotifySessionUpdated {
			t.Errorf("Expected pending update delivery, got %v", types)
		}
	})

	t.Run("StaleCleanupLeavesNewCurrent", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()
		ctx := context.Background()

		a, _ := c.CreateSession(ctx, t.TempDir(), "one")
		b, _ := c.CreateSession(ctx, t.TempDir(), "two")

		// Reaping the stale session must not clear the new current pointer
		c.RemoveSession(a.ID, ReasonManual)
		if got := c.GetCurrentSession(); got == nil || got.ID != b.ID {
			t.Error("Stale session cleanup disturbed the current session")
		}
	})
}

func TestCoordinatorRegistry(t *testing.T) {
	t.Run("NoCurrentSessionIsNil", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()

		if c.GetCurrentSession() != nil {
			t.Error("Expected nil current session on fresh coordinator")
		}
		if c.GetSession("missing") != nil {
			t.Error("Expected nil for unknown session ID")
		}
	})

	t.Run("ClearCurrent", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()

		s, _ := c.CreateSession(context.Background(), t.TempDir(), "one")
		c.ClearCurrentSession()
		if c.GetCurrentSession() != nil {
			t.Error("ClearCurrentSession left a current pointer")
		}
		if c.GetSession(s.ID) == nil {
			t.Error("ClearCurrentSession removed the session from the registry")
		}
	})

	t.Run("RemoveSession", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()

		s, _ := c.CreateSession(context.Background(), t.TempDir(), "one")
		if !c.RemoveSession(s.ID, ReasonManual) {
			t.Fatal("RemoveSession reported failure")
		}
		if !s.CleanupDone() {
			t.Error("RemoveSession did not clean the session")
		}
		if c.SessionCount() != 0 {
			t.Error("Session still registered after removal")
		}
		if c.RemoveSession(s.ID, ReasonManual) {
			t.Error("Double removal reported success")
		}
	})
}

func TestCleanupExpiredSessions(t *testing.T) {
	c := newTestCoordinator(nil)
	defer c.Stop()
	ctx := context.Background()

	a, _ := c.CreateSession(ctx, t.TempDir(), "one")
	b, _ := c.CreateSession(ctx, t.TempDir(), "two")

	a.mu.Lock()
	a.lastActivity = time.Now().Add(-time.Hour)
	a.mu.Unlock()

	cleaned := c.CleanupExpiredSessions()
	if cleaned != 1 {
		t.Fatalf("Expected 1 expired session cleaned, got %d", cleaned)
	}
	if c.GetSession(a.ID) != nil {
		t.Error("Expired session still registered")
	}
	if c.GetSession(b.ID) == nil {
		t.Error("Fresh session was reaped")
	}
}

func TestCleanupSessionsByMemoryPressure(t *testing.T) {
	t.Run("ProtectsCurrentAndCaps", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()
		ctx := context.Background()

		// Eight stale sessions plus a fresh current one
		var stale []*Session
		for i := 0; i < 8; i++ {
			s, _ := c.CreateSession(ctx, t.TempDir(), "old")
			stale = append(stale, s)
		}
		current, _ := c.CreateSession(ctx, t.TempDir(), "current")

		for _, s := range stale {
			s.mu.Lock()
			s.lastActivity = time.Now().Add(-20 * time.Minute)
			s.mu.Unlock()
		}

		cleaned := c.CleanupSessionsByMemoryPressure(false)
		if cleaned != pressureMaxClean {
			t.Errorf("Expected non-forced pass capped at %d, got %d", pressureMaxClean, cleaned)
		}
		if c.GetSession(current.ID) == nil {
			t.Error("Non-forced pressure cleanup reaped the current session")
		}
	})

	t.Run("ForceCleansEverything", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			c.CreateSession(ctx, t.TempDir(), "s")
		}

		cleaned := c.CleanupSessionsByMemoryPressure(true)
		if cleaned != 3 {
			t.Errorf("Expected forced pass to clean 3 sessions, got %d", cleaned)
		}
		if c.SessionCount() != 0 {
			t.Errorf("Expected empty registry, got %d sessions", c.SessionCount())
		}
	})
}

func TestCoordinatorSubmitFeedback(t *testing.T) {
	t.Run("NoActiveSession", func(t *testing.T) {
		c := newTestCoordinator(nil)
		defer c.Stop()

		err := c.SubmitFeedback("", "text", nil, nil, "web")
		if !errors.Is(err, errors.ErrCodeNoActiveSession) {
			t.Errorf("Expected NO_ACTIVE_SESSION code, got %v", err)
		}
	})

	t.Run("PersistsFeedback", func(t *testing.T) {
		store := newMemoryStore()
		c := newTestCoordinator(store)
		defer c.Stop()

		s, _ := c.CreateSession(context.Background(), t.TempDir(), "one")
		if err := c.SubmitFeedback(s.ID, "great work", nil, nil, "web"); err != nil {
			t.Fatalf("SubmitFeedback failed: %v", err)
		}

		store.mu.Lock()
		feedback := store.feedback
		store.mu.Unlock()
		if feedback != 1 {
			t.Errorf("Expected 1 persisted feedback record, got %d", feedback)
		}
		if s.Status() != StatusFeedbackSubmitted {
			t.Errorf("Expected FEEDBACK_SUBMITTED, got %s", s.Status())
		}
	})
}

func TestGlobalTabExpiry(t *testing.T) {
	c := newTestCoordinator(nil)
	defer c.Stop()
	ctx := context.Background()

	a, _ := c.CreateSession(ctx, t.TempDir(), "one")
	a.RegisterTab("fresh")
	a.mu.Lock()
	a.activeTabs["stale"] = time.Now().Add(-2 * time.Minute)
	a.mu.Unlock()

	b, _ := c.CreateSession(ctx, t.TempDir(), "two")

	tabs := b.Tabs()
	if _, ok := tabs["fresh"]; !ok {
		t.Error("Fresh tab did not survive the hand-off")
	}
	if _, ok := tabs["stale"]; ok {
		t.Error("Stale tab survived past the expiry window")
	}
}

func TestCoordinatorStop(t *testing.T) {
	c := newTestCoordinator(nil)
	ctx := context.Background()

	s, _ := c.CreateSession(ctx, t.TempDir(), "one")
	c.Stop()

	if c.SessionCount() != 0 {
		t.Error("Stop left sessions registered")
	}
	if !s.CleanupDone() {
		t.Error("Stop did not clean sessions")
	}
	if s.Status() != StatusCompleted && !s.Status().IsTerminal() {
		t.Errorf("Unexpected status after shutdown: %s", s.Status())
	}
}
