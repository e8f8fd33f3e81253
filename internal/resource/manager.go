// Package resource provides a process-wide manager for temporary files,
// temporary directories, child processes, and tracked file handles. Everything
// registered here is swept periodically and torn down on shutdown so that no
// feedback session can leak OS resources past its own lifetime.
package resource

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
	"weak"

	"golang.org/x/sys/unix"

	"github.com/rama-kairi/go-feedback/internal/config"
	"github.com/rama-kairi/go-feedback/internal/logger"
)

// Stats tracks resource manager activity counters
type Stats struct {
	TempFilesCreated    int64 `json:"temp_files_created"`
	TempDirsCreated     int64 `json:"temp_dirs_created"`
	ProcessesRegistered int64 `json:"processes_registered"`
	FileHandlesTracked  int64 `json:"file_handles_tracked"`
	CleanupRuns         int64 `json:"cleanup_runs"`
	FilesCleaned        int64 `json:"files_cleaned"`
	DirsCleaned         int64 `json:"dirs_cleaned"`
	ProcessesCleaned    int64 `json:"processes_cleaned"`
	HandlesReleased     int64 `json:"handles_released"`
}

// Snapshot reports the currently tracked resource counts
type Snapshot struct {
	TempFiles   int   `json:"temp_files"`
	TempDirs    int   `json:"temp_dirs"`
	Processes   int   `json:"processes"`
	FileHandles int   `json:"file_handles"`
	Stats       Stats `json:"stats"`
}

type trackedProcess struct {
	cmd          *exec.Cmd
	description  string
	registeredAt time.Time
}

// Manager tracks process-wide resources and cleans them up on a schedule.
// File handles are held through weak pointers so tracking never keeps a file
// alive that the rest of the program has already dropped.
type Manager struct {
	mu     sync.Mutex
	cfg    config.ResourceConfig
	logger *logger.Logger

	tempFiles   map[string]time.Time
	tempDirs    map[string]time.Time
	processes   map[int]*trackedProcess
	fileHandles map[int64]weak.Pointer[os.File]
	nextHandle  int64

	stats Stats

	running  bool
	stopChan chan struct{}
}

var (
	instance     *Manager
	instanceOnce sync.Once
)

// GetManager returns the process-wide resource manager, creating it on first
// call. Later calls ignore their arguments.
func GetManager(cfg config.ResourceConfig, log *logger.Logger) *Manager {
	instanceOnce.Do(func() {
		instance = newManager(cfg, log)
	})
	return instance
}

func newManager(cfg config.ResourceConfig, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Manager{
		cfg:         cfg,
		logger:      log.WithComponent("resource-manager"),
		tempFiles:   make(map[string]time.Time),
		tempDirs:    make(map[string]time.Time),
		processes:   make(map[int]*trackedProcess),
		fileHandles: make(map[int64]weak.Pointer[os.File]),
	}
}

// CreateTempFile creates and registers a temporary file, returning its path
func (m *Manager) CreateTempFile(suffix string) (string, error) {
	file, err := os.CreateTemp("", m.cfg.TempPrefix+"*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	path := file.Name()
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	m.mu.Lock()
	m.tempFiles[path] = time.Now()
	m.stats.TempFilesCreated++
	m.mu.Unlock()

	m.logger.Debug("Created temp file", map[string]interface{}{"path": path})
	return path, nil
}

// CreateTempDir creates and registers a temporary directory
func (m *Manager) CreateTempDir() (string, error) {
	dir, err := os.MkdirTemp("", m.cfg.TempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	m.mu.Lock()
	m.tempDirs[dir] = time.Now()
	m.stats.TempDirsCreated++
	m.mu.Unlock()

	m.logger.Debug("Created temp dir", map[string]interface{}{"path": dir})
	return dir, nil
}

// RegisterTempFile tracks an externally created file for cleanup
func (m *Manager) RegisterTempFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tempFiles[path]; !exists {
		m.tempFiles[path] = time.Now()
		m.stats.TempFilesCreated++
	}
}

// RegisterProcess tracks a started child process for termination on cleanup
func (m *Manager) RegisterProcess(cmd *exec.Cmd, description string) {
	if cmd == nil || cmd.Process == nil {
		return
	}

	m.mu.Lock()
	m.processes[cmd.Process.Pid] = &trackedProcess{
		cmd:          cmd,
		description:  description,
		registeredAt: time.Now(),
	}
	m.stats.ProcessesRegistered++
	m.mu.Unlock()

	m.logger.Debug("Registered process", map[string]interface{}{
		"pid":         cmd.Process.Pid,
		"description": description,
	})
}

// UnregisterProcess removes a process from tracking without terminating it
func (m *Manager) UnregisterProcess(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processes, pid)
}

// RegisterFileHandle tracks an open file through a weak pointer. The manager
// never prevents the file from being collected; cleanup only closes handles
// that are still reachable elsewhere.
func (m *Manager) RegisterFileHandle(f *os.File) int64 {
	if f == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextHandle++
	id := m.nextHandle
	m.fileHandles[id] = weak.Make(f)
	m.stats.FileHandlesTracked++
	return id
}

// UnregisterFileHandle stops tracking a handle
func (m *Manager) UnregisterFileHandle(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fileHandles, id)
}

// CleanupTempFiles removes tracked temp files older than maxAge. With force,
// age is ignored. Returns the number of files removed.
func (m *Manager) CleanupTempFiles(force bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := 0
	now := time.Now()
	for path, created := range m.tempFiles {
		if !force && now.Sub(created) < m.cfg.TempFileMaxAge {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("Failed to remove temp file", map[string]interface{}{
				"path": path, "error": err.Error(),
			})
			continue
		}
		delete(m.tempFiles, path)
		cleaned++
	}
	m.stats.FilesCleaned += int64(cleaned)
	return cleaned
}

// CleanupTempDirs removes tracked temp directories older than maxAge
func (m *Manager) CleanupTempDirs(force bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cleaned := 0
	now := time.Now()
	for dir, created := range m.tempDirs {
		if !force && now.Sub(created) < m.cfg.TempFileMaxAge {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.logger.Warn("Failed to remove temp dir", map[string]interface{}{
				"path": dir, "error": err.Error(),
			})
			continue
		}
		delete(m.tempDirs, dir)
		cleaned++
	}
	m.stats.DirsCleaned += int64(cleaned)
	return cleaned
}

// CleanupProcesses terminates tracked processes. Without force only exited
// processes are dropped; with force running processes get SIGTERM and a
// bounded wait before escalation to SIGKILL.
func (m *Manager) CleanupProcesses(force bool) int {
	m.mu.Lock()
	procs := make(map[int]*trackedProcess, len(m.processes))
	for pid, p := range m.processes {
		procs[pid] = p
	}
	m.mu.Unlock()

	cleaned := 0
	for pid, p := range procs {
		if !processAlive(pid) {
			m.UnregisterProcess(pid)
			cleaned++
			continue
		}
		if !force {
			continue
		}
		if err := terminateProcess(p.cmd, 5*time.Second); err != nil {
			m.logger.Warn("Failed to terminate process", map[string]interface{}{
				"pid": pid, "description": p.description, "error": err.Error(),
			})
			continue
		}
		m.UnregisterProcess(pid)
		cleaned++
	}

	m.mu.Lock()
	m.stats.ProcessesCleaned += int64(cleaned)
	m.mu.Unlock()
	return cleaned
}

// CleanupFileHandles drops tracking entries whose files have been collected.
// With force, still-reachable handles are closed as well.
func (m *Manager) CleanupFileHandles(force bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for id, wp := range m.fileHandles {
		f := wp.Value()
		if f == nil {
			delete(m.fileHandles, id)
			released++
			continue
		}
		if force {
			f.Close()
			delete(m.fileHandles, id)
			released++
		}
	}
	m.stats.HandlesReleased += int64(released)
	return released
}

// CleanupAll runs every cleanup category and returns per-category counts
func (m *Manager) CleanupAll(force bool) map[string]int {
	start := time.Now()
	results := map[string]int{
		"temp_files":   m.CleanupTempFiles(force),
		"temp_dirs":    m.CleanupTempDirs(force),
		"processes":    m.CleanupProcesses(force),
		"file_handles": m.CleanupFileHandles(force),
	}

	m.mu.Lock()
	m.stats.CleanupRuns++
	m.mu.Unlock()

	total := 0
	for _, n := range results {
		total += n
	}
	m.logger.LogCleanupEvent("resource_sweep", total, time.Since(start), nil, map[string]interface{}{
		"force": force,
	})
	return results
}

// Start begins the background cleanup sweeps. Safe to call more than once.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running || !m.cfg.AutoCleanupEnabled {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopChan = make(chan struct{})
	stop := m.stopChan
	m.mu.Unlock()

	go m.sweepLoop(stop)
	m.logger.Info("Resource manager started", map[string]interface{}{
		"cleanup_interval": m.cfg.CleanupInterval.String(),
	})
}

func (m *Manager) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	// Process liveness is checked more often than the full sweep so that
	// exited children leave the registry promptly.
	health := time.NewTicker(time.Minute)
	defer health.Stop()

	for {
		select {
		case <-ticker.C:
			m.CleanupAll(false)
		case <-health.C:
			m.CleanupProcesses(false)
			m.CleanupFileHandles(false)
		case <-stop:
			return
		}
	}
}

// Stop halts background sweeps and force-cleans everything
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.running {
		m.running = false
		close(m.stopChan)
	}
	m.mu.Unlock()

	m.CleanupAll(true)
	m.logger.Info("Resource manager stopped")
}

// GetSnapshot returns current tracked counts and activity stats
func (m *Manager) GetSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		TempFiles:   len(m.tempFiles),
		TempDirs:    len(m.tempDirs),
		Processes:   len(m.processes),
		FileHandles: len(m.fileHandles),
		Stats:       m.stats,
	}
}

// processAlive reports whether a pid still refers to a running process
func processAlive(pid int) bool {
	return unix.Kill(pid, 0) == nil
}

// terminateProcess sends SIGTERM, waits up to gracePeriod, then SIGKILLs
func terminateProcess(cmd *exec.Cmd, gracePeriod time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(unix.SIGTERM); err != nil {
		// Already gone
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(gracePeriod):
		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process %d: %w", cmd.Process.Pid, err)
		}
		<-done
		return nil
	}
}
