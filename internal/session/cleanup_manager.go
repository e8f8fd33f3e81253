package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rama-kairi/go-feedback/internal/logger"
)

// CleanupPolicy configures when and how aggressively sessions are reaped
type CleanupPolicy struct {
	MaxIdleTime             time.Duration `json:"max_idle_time"`
	MaxSessionAge           time.Duration `json:"max_session_age"`
	MaxSessions             int           `json:"max_sessions"`
	CleanupInterval         time.Duration `json:"cleanup_interval"`
	MemoryPressureThreshold float64       `json:"memory_pressure_threshold"`
	EnableAutoCleanup       bool          `json:"enable_auto_cleanup"`
	PreserveActiveSession   bool          `json:"preserve_active_session"`
}

// DefaultCleanupPolicy returns the standard policy values
func DefaultCleanupPolicy() CleanupPolicy {
	return CleanupPolicy{
		MaxIdleTime:             30 * time.Minute,
		MaxSessionAge:           2 * time.Hour,
		MaxSessions:             10,
		CleanupInterval:         5 * time.Minute,
		MemoryPressureThreshold: 0.8,
		EnableAutoCleanup:       true,
		PreserveActiveSession:   true,
	}
}

// Validate checks policy values for sanity
func (p CleanupPolicy) Validate() error {
	if p.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be greater than 0")
	}
	if p.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be greater than 0")
	}
	if p.MaxIdleTime <= 0 || p.MaxSessionAge <= 0 {
		return fmt.Errorf("idle and age limits must be greater than 0")
	}
	return nil
}

// CleanupRecord is one entry in the bounded cleanup history
type CleanupRecord struct {
	Trigger         CleanupTrigger `json:"trigger"`
	SessionsCleaned int            `json:"sessions_cleaned"`
	Duration        time.Duration  `json:"duration"`
	Timestamp       time.Time      `json:"timestamp"`
}

// CleanupStats aggregates cleanup activity across all triggers
type CleanupStats struct {
	TotalRuns       int64                    `json:"total_runs"`
	SessionsCleaned int64                    `json:"sessions_cleaned"`
	ByTrigger       map[CleanupTrigger]int64 `json:"by_trigger"`
	TotalDuration   time.Duration            `json:"total_duration"`
	AverageDuration time.Duration            `json:"average_duration"`
	LastCleanup     time.Time                `json:"last_cleanup"`
}

const maxCleanupHistory = 100

// CleanupManager applies the cleanup policy to the coordinator's sessions,
// both on a schedule and on demand
type CleanupManager struct {
	mu      sync.Mutex
	policy  CleanupPolicy
	coord   *Coordinator
	logger  *logger.Logger
	stats   CleanupStats
	history []CleanupRecord

	running  bool
	stopChan chan struct{}
}

// NewCleanupManager creates a cleanup manager bound to a coordinator
func NewCleanupManager(coord *Coordinator, policy CleanupPolicy, log *logger.Logger) *CleanupManager {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &CleanupManager{
		policy: policy,
		coord:  coord,
		logger: log.WithComponent("cleanup-manager"),
		stats: CleanupStats{
			ByTrigger: make(map[CleanupTrigger]int64),
		},
	}
}

// Policy returns the current policy
func (m *CleanupManager) Policy() CleanupPolicy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy
}

// UpdatePolicy replaces the policy after validation
func (m *CleanupManager) UpdatePolicy(policy CleanupPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.policy = policy
	m.mu.Unlock()
	m.logger.Info("Cleanup policy updated", map[string]interface{}{
		"max_sessions":     policy.MaxSessions,
		"max_idle_time":    policy.MaxIdleTime.String(),
		"max_session_age":  policy.MaxSessionAge.String(),
		"cleanup_interval": policy.CleanupInterval.String(),
	})
	return nil
}

// Start launches the automatic sweep loop. Safe to call more than once.
func (m *CleanupManager) Start() {
	m.mu.Lock()
	if m.running || !m.policy.EnableAutoCleanup {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	interval := m.policy.CleanupInterval
	m.mu.Unlock()

	go m.autoLoop(stop, interval)
	m.logger.Info("Automatic session cleanup started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// Stop halts the automatic sweep loop. Safe to call more than once.
func (m *CleanupManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.logger.Info("Automatic session cleanup stopped")
}

func (m *CleanupManager) autoLoop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runAutoSweep()
		case <-stop:
			return
		}
	}
}

// runAutoSweep enforces capacity first, then age, then idleness, so that a
// full registry is always relieved before per-session limits are checked
func (m *CleanupManager) runAutoSweep() {
	start := time.Now()
	cleaned := m.enforceCapacity(false)
	cleaned += m.cleanupAged()
	cleaned += m.cleanupIdle()
	m.record(TriggerAuto, cleaned, time.Since(start))
}

// TriggerCleanup runs one cleanup pass for the given trigger and returns the
// number of sessions cleaned
func (m *CleanupManager) TriggerCleanup(trigger CleanupTrigger, force bool) int {
	start := time.Now()
	var cleaned int

	switch trigger {
	case TriggerExpired:
		cleaned = m.coord.CleanupExpiredSessions()
	case TriggerMemoryPressure:
		cleaned = m.coord.CleanupSessionsByMemoryPressure(force)
	case TriggerCapacity:
		cleaned = m.enforceCapacity(force)
	case TriggerShutdown:
		cleaned = m.coord.reapAll(ReasonShutdown)
	case TriggerManual, TriggerAuto:
		cleaned = m.coord.CleanupExpiredSessions()
		cleaned += m.enforceCapacity(force)
	default:
		m.logger.Warn("Unknown cleanup trigger", map[string]interface{}{
			"trigger": string(trigger),
		})
		return 0
	}

	m.record(trigger, cleaned, time.Since(start))
	return cleaned
}

// cleanupAged reaps sessions older than the age limit
func (m *CleanupManager) cleanupAged() int {
	maxAge := m.Policy().MaxSessionAge
	cleaned := 0
	for _, s := range m.coord.ListSessions() {
		if s.Age() <= maxAge {
			continue
		}
		if m.protected(s, false) {
			continue
		}
		m.coord.reapSession(s, ReasonExpired)
		cleaned++
	}
	return cleaned
}

// cleanupIdle reaps sessions idle past the idle limit or otherwise expired
func (m *CleanupManager) cleanupIdle() int {
	maxIdle := m.Policy().MaxIdleTime
	cleaned := 0
	for _, s := range m.coord.ListSessions() {
		if s.IdleTime() <= maxIdle && !s.IsExpired() {
			continue
		}
		if m.protected(s, false) {
			continue
		}
		m.coord.reapSession(s, ReasonExpired)
		cleaned++
	}
	return cleaned
}

// enforceCapacity evicts the highest-priority sessions until the registry is
// back under the limit. Never evicts more than needed.
func (m *CleanupManager) enforceCapacity(force bool) int {
	policy := m.Policy()
	sessions := m.coord.ListSessions()
	excess := len(sessions) - policy.MaxSessions
	if excess <= 0 {
		return 0
	}

	type scored struct {
		s     *Session
		score float64
	}
	candidates := make([]scored, 0, len(sessions))
	for _, s := range sessions {
		if m.protected(s, force) {
			continue
		}
		candidates = append(candidates, scored{s: s, score: evictionScore(s)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	cleaned := 0
	for _, c := range candidates {
		if cleaned >= excess {
			break
		}
		m.coord.reapSession(c.s, ReasonCapacity)
		cleaned++
	}
	return cleaned
}

// protected reports whether the session is shielded from non-forced cleanup
func (m *CleanupManager) protected(s *Session, force bool) bool {
	if force {
		return false
	}
	if !m.Policy().PreserveActiveSession {
		return false
	}
	current := m.coord.GetCurrentSession()
	return current != nil && current.ID == s.ID
}

// evictionScore ranks sessions for capacity eviction. Higher scores go first.
// The weights are tunable policy: finished sessions far outrank submitted
// ones, which outrank everything still in progress; age and idleness break
// ties.
func evictionScore(s *Session) float64 {
	stats := s.GetStats()
	var score float64

	switch s.Status() {
	case StatusCompleted, StatusError, StatusTimeout, StatusExpired:
		score += 100
	case StatusFeedbackSubmitted:
		score += 50
	}

	score += stats.Age.Minutes()
	score += stats.IdleTime.Seconds() / 30
	return score
}

func (m *CleanupManager) record(trigger CleanupTrigger, cleaned int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.TotalRuns++
	m.stats.SessionsCleaned += int64(cleaned)
	m.stats.ByTrigger[trigger]++
	m.stats.TotalDuration += duration
	m.stats.AverageDuration = m.stats.TotalDuration / time.Duration(m.stats.TotalRuns)
	m.stats.LastCleanup = time.Now()

	m.history = append(m.history, CleanupRecord{
		Trigger:         trigger,
		SessionsCleaned: cleaned,
		Duration:        duration,
		Timestamp:       time.Now(),
	})
	if len(m.history) > maxCleanupHistory {
		m.history = m.history[len(m.history)-maxCleanupHistory:]
	}

	if cleaned > 0 {
		m.logger.LogCleanupEvent(string(trigger), cleaned, duration, nil)
	}
}

// GetStats returns a copy of the aggregate cleanup statistics
func (m *CleanupManager) GetStats() CleanupStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	stats.ByTrigger = make(map[CleanupTrigger]int64, len(m.stats.ByTrigger))
	for k, v := range m.stats.ByTrigger {
		stats.ByTrigger[k] = v
	}
	return stats
}

// History returns a copy of the recent cleanup records
func (m *CleanupManager) History() []CleanupRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CleanupRecord(nil), m.history...)
}
