package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/rama-kairi/go-feedback/internal/config"
)

func testConfig() config.MemoryConfig {
	return config.MemoryConfig{
		WarningThreshold:   0.80,
		CriticalThreshold:  0.90,
		EmergencyThreshold: 0.95,
		MonitoringInterval: time.Hour,
		MaxSnapshots:       1000,
	}
}

// fixedSampler returns snapshots at a controllable usage percent
type fixedSampler struct {
	mu      sync.Mutex
	percent float64
}

func (f *fixedSampler) set(p float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.percent = p
}

func (f *fixedSampler) sample() (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		Timestamp:     time.Now(),
		SystemTotal:   16 << 30,
		SystemPercent: f.percent,
	}, nil
}

func newTestMonitor(t *testing.T) (*Monitor, *fixedSampler) {
	t.Helper()
	m := NewMonitor(testConfig(), nil)
	s := &fixedSampler{percent: 0.5}
	m.SetSampler(s.sample)
	return m, s
}

func TestThresholdClassification(t *testing.T) {
	m, _ := newTestMonitor(t)

	cases := []struct {
		percent float64
		want    AlertLevel
	}{
		{0.50, AlertNormal},
		{0.79, AlertNormal},
		{0.80, AlertWarning}, // exactly at a threshold counts as crossed
		{0.85, AlertWarning},
		{0.89, AlertWarning},
		{0.90, AlertCritical},
		{0.94, AlertCritical},
		{0.95, AlertEmergency},
		{0.99, AlertEmergency},
	}
	for _, c := range cases {
		if got := m.classify(c.percent); got != c.want {
			t.Errorf("classify(%.2f) = %s, want %s", c.percent, got, c.want)
		}
	}
}

func TestCleanupCallbacks(t *testing.T) {
	t.Run("WarningDoesNotTrigger", func(t *testing.T) {
		m, s := newTestMonitor(t)
		called := 0
		m.RegisterCleanupCallback(func(force bool) { called++ })

		s.set(0.85)
		if _, err := m.Sample(); err != nil {
			t.Fatal(err)
		}
		if called != 0 {
			t.Errorf("Warning level triggered callbacks %d times", called)
		}
		if m.GetStats().LastAlertLevel != AlertWarning {
			t.Errorf("Expected warning level, got %s", m.GetStats().LastAlertLevel)
		}
	})

	t.Run("CriticalTriggersWithoutForce", func(t *testing.T) {
		m, s := newTestMonitor(t)
		var gotForce *bool
		m.RegisterCleanupCallback(func(force bool) { gotForce = &force })

		s.set(0.92)
		m.Sample()
		if gotForce == nil {
			t.Fatal("Critical level did not trigger callbacks")
		}
		if *gotForce {
			t.Error("Critical level passed force=true")
		}
	})

	t.Run("EmergencyTriggersWithForce", func(t *testing.T) {
		m, s := newTestMonitor(t)
		var gotForce *bool
		m.RegisterCleanupCallback(func(force bool) { gotForce = &force })

		s.set(0.97)
		m.Sample()
		if gotForce == nil {
			t.Fatal("Emergency level did not trigger callbacks")
		}
		if !*gotForce {
			t.Error("Emergency level passed force=false")
		}
	})

	t.Run("PanicIsolated", func(t *testing.T) {
		m, s := newTestMonitor(t)
		ran := false
		m.RegisterCleanupCallback(func(force bool) { panic("bad callback") })
		m.RegisterCleanupCallback(func(force bool) { ran = true })

		s.set(0.92)
		m.Sample()
		if !ran {
			t.Error("Panicking callback stopped the next one")
		}
	})
}

func TestAlertHistory(t *testing.T) {
	t.Run("NormalSamplesNoAlert", func(t *testing.T) {
		m, s := newTestMonitor(t)
		s.set(0.40)
		m.Sample()
		if got := m.GetStats().AlertCount; got != 0 {
			t.Errorf("Normal sample produced %d alerts", got)
		}
	})

	t.Run("Bounded", func(t *testing.T) {
		m, s := newTestMonitor(t)
		s.set(0.85)
		for i := 0; i < maxAlerts+30; i++ {
			m.Sample()
		}
		if got := m.GetStats().AlertCount; got != maxAlerts {
			t.Errorf("Expected alert history capped at %d, got %d", maxAlerts, got)
		}
	})
}

func TestSnapshotRingBounded(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSnapshots = 10
	m := NewMonitor(cfg, nil)
	s := &fixedSampler{percent: 0.5}
	m.SetSampler(s.sample)

	for i := 0; i < 25; i++ {
		m.Sample()
	}
	if got := m.GetStats().SnapshotCount; got != 10 {
		t.Errorf("Expected snapshot ring capped at 10, got %d", got)
	}
}

func TestTrend(t *testing.T) {
	t.Run("InsufficientData", func(t *testing.T) {
		m, s := newTestMonitor(t)
		s.set(0.5)
		m.Sample()
		if got := m.Trend(); got != "insufficient_data" {
			t.Errorf("Expected insufficient_data, got %s", got)
		}
	})

	t.Run("Increasing", func(t *testing.T) {
		m, s := newTestMonitor(t)
		for _, p := range []float64{0.30, 0.32, 0.34, 0.36, 0.50, 0.52, 0.54, 0.56, 0.58, 0.60} {
			s.set(p)
			m.Sample()
		}
		if got := m.Trend(); got != "increasing" {
			t.Errorf("Expected increasing trend, got %s", got)
		}
	})

	t.Run("Decreasing", func(t *testing.T) {
		m, s := newTestMonitor(t)
		for _, p := range []float64{0.60, 0.58, 0.56, 0.54, 0.40, 0.38, 0.36, 0.34, 0.32, 0.30} {
			s.set(p)
			m.Sample()
		}
		if got := m.Trend(); got != "decreasing" {
			t.Errorf("Expected decreasing trend, got %s", got)
		}
	})

	t.Run("StableWithinBand", func(t *testing.T) {
		m, s := newTestMonitor(t)
		for i := 0; i < 10; i++ {
			s.set(0.50 + float64(i%2)*0.005)
			m.Sample()
		}
		if got := m.Trend(); got != "stable" {
			t.Errorf("Expected stable trend, got %s", got)
		}
	})
}

func TestMonitorStartStop(t *testing.T) {
	m, _ := newTestMonitor(t)

	m.Start()
	m.Start()
	if !m.GetStats().Running {
		t.Error("Monitor not running after Start")
	}
	m.Stop()
	m.Stop()
	if m.GetStats().Running {
		t.Error("Monitor still running after Stop")
	}
}

func TestCurrentSnapshot(t *testing.T) {
	m, s := newTestMonitor(t)

	if m.Current() != nil {
		t.Error("Expected nil snapshot before first sample")
	}
	s.set(0.42)
	m.Sample()
	cur := m.Current()
	if cur == nil || cur.SystemPercent != 0.42 {
		t.Errorf("Current snapshot wrong: %+v", cur)
	}
}
