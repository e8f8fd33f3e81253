// Package memory implements a memory usage monitor with three pressure
// thresholds. Crossing the critical or emergency threshold triggers
// registered cleanup callbacks and garbage collection passes.
package memory

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rama-kairi/go-feedback/internal/config"
	"github.com/rama-kairi/go-feedback/internal/logger"
)

// AlertLevel classifies a threshold crossing
type AlertLevel string

const (
	AlertNormal    AlertLevel = "normal"
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// Snapshot captures system and process memory usage at one instant
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	SystemTotal     uint64    `json:"system_total"`
	SystemAvailable uint64    `json:"system_available"`
	SystemUsed      uint64    `json:"system_used"`
	SystemPercent   float64   `json:"system_percent"`
	HeapInUse       uint64    `json:"heap_in_use"`
	HeapSys         uint64    `json:"heap_sys"`
	HeapObjects     uint64    `json:"heap_objects"`
	ProcessPercent  float64   `json:"process_percent"`
}

// Alert records a single threshold crossing
type Alert struct {
	Level         AlertLevel `json:"level"`
	Timestamp     time.Time  `json:"timestamp"`
	SystemPercent float64    `json:"system_percent"`
	Message       string     `json:"message"`
}

// Stats summarizes monitor activity
type Stats struct {
	Running            bool       `json:"running"`
	MonitoringDuration string     `json:"monitoring_duration"`
	SnapshotCount      int        `json:"snapshot_count"`
	AlertCount         int        `json:"alert_count"`
	CleanupTriggers    int64      `json:"cleanup_triggers"`
	Current            *Snapshot  `json:"current,omitempty"`
	Trend              string     `json:"trend"`
	RecentAlerts       []Alert    `json:"recent_alerts,omitempty"`
	WarningThreshold   float64    `json:"warning_threshold"`
	CriticalThreshold  float64    `json:"critical_threshold"`
	EmergencyThreshold float64    `json:"emergency_threshold"`
	LastAlertLevel     AlertLevel `json:"last_alert_level"`
}

// CleanupCallback is invoked when memory pressure demands cleanup. The force
// flag is set at the emergency level.
type CleanupCallback func(force bool)

// Sampler produces a memory snapshot. Replaceable for tests.
type Sampler func() (Snapshot, error)

const (
	maxSnapshots = 1000
	maxAlerts    = 100
)

// Monitor samples memory usage on an interval and raises alerts when
// configured thresholds are crossed
type Monitor struct {
	mu     sync.Mutex
	cfg    config.MemoryConfig
	logger *logger.Logger

	sampler   Sampler
	snapshots []Snapshot
	alerts    []Alert
	callbacks []CleanupCallback

	cleanupTriggers int64
	lastLevel       AlertLevel
	startedAt       time.Time

	running  bool
	stopChan chan struct{}
}

// NewMonitor creates a memory monitor with the default system sampler
func NewMonitor(cfg config.MemoryConfig, log *logger.Logger) *Monitor {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = maxSnapshots
	}
	return &Monitor{
		cfg:       cfg,
		logger:    log.WithComponent("memory-monitor"),
		sampler:   systemSampler,
		lastLevel: AlertNormal,
	}
}

// SetSampler replaces the snapshot source. Intended for tests.
func (m *Monitor) SetSampler(s Sampler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sampler = s
}

// RegisterCleanupCallback adds a callback fired at critical and emergency levels
func (m *Monitor) RegisterCleanupCallback(cb CleanupCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Start begins periodic sampling. Safe to call more than once.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.startedAt = time.Now()
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go m.monitorLoop(stop)
	m.logger.Info("Memory monitor started", map[string]interface{}{
		"interval":  m.cfg.MonitoringInterval.String(),
		"warning":   m.cfg.WarningThreshold,
		"critical":  m.cfg.CriticalThreshold,
		"emergency": m.cfg.EmergencyThreshold,
	})
}

// Stop halts periodic sampling
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.logger.Info("Memory monitor stopped")
}

func (m *Monitor) monitorLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Sample()
		case <-stop:
			return
		}
	}
}

// Sample takes one snapshot, records it, and reacts to threshold crossings.
// Exposed so callers can force an immediate check.
func (m *Monitor) Sample() (Snapshot, error) {
	m.mu.Lock()
	sampler := m.sampler
	m.mu.Unlock()

	snap, err := sampler()
	if err != nil {
		m.logger.Warn("Memory sampling failed", map[string]interface{}{"error": err.Error()})
		return Snapshot{}, err
	}

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snap)
	if len(m.snapshots) > m.cfg.MaxSnapshots {
		m.snapshots = m.snapshots[len(m.snapshots)-m.cfg.MaxSnapshots:]
	}
	level := m.classify(snap.SystemPercent)
	m.lastLevel = level

	var callbacks []CleanupCallback
	if level == AlertCritical || level == AlertEmergency {
		callbacks = append(callbacks, m.callbacks...)
		m.cleanupTriggers++
	}
	if level != AlertNormal {
		alert := Alert{
			Level:         level,
			Timestamp:     snap.Timestamp,
			SystemPercent: snap.SystemPercent,
			Message:       fmt.Sprintf("memory usage %.1f%% crossed %s threshold", snap.SystemPercent*100, level),
		}
		m.alerts = append(m.alerts, alert)
		if len(m.alerts) > maxAlerts {
			m.alerts = m.alerts[len(m.alerts)-maxAlerts:]
		}
	}
	m.mu.Unlock()

	switch level {
	case AlertWarning:
		m.logger.LogMemoryAlert(string(level), snap.SystemPercent)
	case AlertCritical:
		m.logger.LogMemoryAlert(string(level), snap.SystemPercent)
		m.runCallbacks(callbacks, false)
		runtime.GC()
	case AlertEmergency:
		m.logger.LogMemoryAlert(string(level), snap.SystemPercent)
		m.runCallbacks(callbacks, true)
		for i := 0; i < 3; i++ {
			runtime.GC()
		}
	}

	return snap, nil
}

// classify maps a usage ratio to an alert level. A value exactly at a
// threshold counts as crossed for that level and no higher one.
func (m *Monitor) classify(percent float64) AlertLevel {
	switch {
	case percent >= m.cfg.EmergencyThreshold:
		return AlertEmergency
	case percent >= m.cfg.CriticalThreshold:
		return AlertCritical
	case percent >= m.cfg.WarningThreshold:
		return AlertWarning
	default:
		return AlertNormal
	}
}

// runCallbacks invokes cleanup callbacks, isolating panics so one failing
// callback cannot stop the rest
func (m *Monitor) runCallbacks(callbacks []CleanupCallback, force bool) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Memory cleanup callback panicked", fmt.Errorf("%v", r))
				}
			}()
			cb(force)
		}()
	}
}

// Trend compares the first and second halves of the last ten snapshots.
// Returns "increasing", "decreasing", "stable", or "insufficient_data".
func (m *Monitor) Trend() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.trendLocked()
}

func (m *Monitor) trendLocked() string {
	n := len(m.snapshots)
	if n < 4 {
		return "insufficient_data"
	}

	window := m.snapshots
	if n > 10 {
		window = m.snapshots[n-10:]
	}

	half := len(window) / 2
	var firstSum, secondSum float64
	for _, s := range window[:half] {
		firstSum += s.SystemPercent
	}
	for _, s := range window[half:] {
		secondSum += s.SystemPercent
	}
	firstAvg := firstSum / float64(half)
	secondAvg := secondSum / float64(len(window)-half)

	// Two percentage points of movement is within the stability band.
	const band = 0.02
	switch {
	case secondAvg-firstAvg > band:
		return "increasing"
	case firstAvg-secondAvg > band:
		return "decreasing"
	default:
		return "stable"
	}
}

// Current returns the most recent snapshot, or nil before the first sample
func (m *Monitor) Current() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.snapshots) == 0 {
		return nil
	}
	snap := m.snapshots[len(m.snapshots)-1]
	return &snap
}

// GetStats returns a summary of monitor state and recent alerts
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		Running:            m.running,
		SnapshotCount:      len(m.snapshots),
		AlertCount:         len(m.alerts),
		CleanupTriggers:    m.cleanupTriggers,
		Trend:              m.trendLocked(),
		WarningThreshold:   m.cfg.WarningThreshold,
		CriticalThreshold:  m.cfg.CriticalThreshold,
		EmergencyThreshold: m.cfg.EmergencyThreshold,
		LastAlertLevel:     m.lastLevel,
	}

	if m.running {
		stats.MonitoringDuration = time.Since(m.startedAt).String()
	}

	if len(m.snapshots) > 0 {
		snap := m.snapshots[len(m.snapshots)-1]
		stats.Current = &snap
	}

	recent := 10
	if len(m.alerts) < recent {
		recent = len(m.alerts)
	}
	if recent > 0 {
		stats.RecentAlerts = append([]Alert(nil), m.alerts[len(m.alerts)-recent:]...)
	}

	return stats
}

// systemSampler reads system memory via sysinfo and process memory via the
// Go runtime
func systemSampler() (Snapshot, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Snapshot{}, fmt.Errorf("sysinfo failed: %w", err)
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	total := uint64(info.Totalram) * unit
	free := uint64(info.Freeram) * unit
	buffers := uint64(info.Bufferram) * unit
	available := free + buffers
	used := total - available

	var systemPercent float64
	if total > 0 {
		systemPercent = float64(used) / float64(total)
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	var processPercent float64
	if total > 0 {
		processPercent = float64(ms.HeapInuse) / float64(total)
	}

	return Snapshot{
		Timestamp:       time.Now(),
		SystemTotal:     total,
		SystemAvailable: available,
		SystemUsed:      used,
		SystemPercent:   systemPercent,
		HeapInUse:       ms.HeapInuse,
		HeapSys:         ms.HeapSys,
		HeapObjects:     ms.HeapObjects,
		ProcessPercent:  processPercent,
	}, nil
}
