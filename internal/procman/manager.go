package procman

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// State represents the lifecycle state of a managed worker process
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
	StateExited  State = "exited"
	StateFailed  State = "failed"
)

// Info is a snapshot of one managed process
type Info struct {
	Name      string    `json:"name"`
	Usecase   string    `json:"usecase"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	ExitCode  int       `json:"exit_code"`
	StartedAt time.Time `json:"started_at"`
}

type process struct {
	name      string
	usecase   string
	cmd       *exec.Cmd
	logFile   *os.File
	state     State
	exitCode  int
	startedAt time.Time
	stopping  bool // Stop was requested; the exit is expected
}

// ExitFunc is called when a managed process exits. requested reports whether
// the exit was caused by Stop.
type ExitFunc func(name string, exitCode int, requested bool)

// Manager launches and supervises per-workload worker processes.
// Workers are started in their own process group so the whole pipeline tree
// can be signalled at once.
type Manager struct {
	mu         sync.Mutex
	procs      map[string]*process
	workersDir string
	logsDir    string
	grace      time.Duration
	onExit     ExitFunc
}

// NewManager creates a process manager rooted at the workers directory
func NewManager(workersDir, logsDir string, grace time.Duration) *Manager {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Manager{
		procs:      make(map[string]*process),
		workersDir: workersDir,
		logsDir:    logsDir,
		grace:      grace,
	}
}

// SetExitHandler registers a callback for process exits
func (m *Manager) SetExitHandler(fn ExitFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExit = fn
}

// interpreter returns the worker's isolated interpreter if provisioned,
// falling back to the system python.
func (m *Manager) interpreter(workerDir string) string {
	venvPython := filepath.Join(workerDir, ".venv", "bin", "python")
	if _, err := os.Stat(venvPython); err == nil {
		return venvPython
	}
	return "python3"
}

// Start launches the worker for a usecase under the given name.
// A second Start for a name that is still running is rejected.
func (m *Manager) Start(name, usecase string, args []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.procs[name]; ok && p.state == StateRunning {
		return fmt.Errorf("process %s is already running (pid %d)", name, p.cmd.Process.Pid)
	}

	workerDir := filepath.Join(m.workersDir, usecase)
	if _, err := os.Stat(filepath.Join(workerDir, "main.py")); err != nil {
		return fmt.Errorf("worker for usecase %s not found in %s: %w", usecase, workerDir, err)
	}

	if err := os.MkdirAll(m.logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logPath := filepath.Join(m.logsDir, name+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", logPath, err)
	}

	cmd := exec.Command(m.interpreter(workerDir), append([]string{"main.py"}, args...)...)
	cmd.Dir = workerDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// New process group so Stop can signal the worker and its pipeline children
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: 0}

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start %s: %w", name, err)
	}

	p := &process{
		name:      name,
		usecase:   usecase,
		cmd:       cmd,
		logFile:   logFile,
		state:     StateRunning,
		startedAt: time.Now(),
	}
	m.procs[name] = p

	log.Printf("Started %s (usecase %s, pid %d)", name, usecase, cmd.Process.Pid)

	go m.reap(p)
	return nil
}

// reap waits for the process to exit and records the outcome
func (m *Manager) reap(p *process) {
	err := p.cmd.Wait()

	m.mu.Lock()
	exitCode := 0
	if err != nil {
		exitCode = 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}
	p.exitCode = exitCode
	requested := p.stopping
	if requested {
		p.state = StateStopped
	} else if exitCode == 0 {
		p.state = StateExited
	} else {
		p.state = StateFailed
	}
	p.logFile.Close()
	onExit := m.onExit
	m.mu.Unlock()

	log.Printf("Process %s exited (code %d, requested %v)", p.name, exitCode, requested)
	if onExit != nil {
		onExit(p.name, exitCode, requested)
	}
}

// Stop terminates the named process: SIGTERM to the process group, then
// SIGKILL after the grace period.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	p, ok := m.procs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("process %s not found", name)
	}
	if p.state != StateRunning {
		m.mu.Unlock()
		return nil // already down
	}
	p.stopping = true
	pid := p.cmd.Process.Pid
	m.mu.Unlock()

	// Negative pid signals the whole group
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal %s: %w", name, err)
	}

	deadline := time.Now().Add(m.grace)
	for time.Now().Before(deadline) {
		if !m.isRunning(name) {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	log.Printf("Process %s did not stop within %s, killing", name, m.grace)
	syscall.Kill(-pid, syscall.SIGKILL)
	return nil
}

// Delete stops the named process if needed and removes its record and log
func (m *Manager) Delete(name string) error {
	if m.isRunning(name) {
		if err := m.Stop(name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.procs[name]; !ok {
		return nil
	}
	delete(m.procs, name)
	os.Remove(filepath.Join(m.logsDir, name+".log"))
	log.Printf("Deleted process %s", name)
	return nil
}

func (m *Manager) isRunning(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[name]
	return ok && p.state == StateRunning
}

// Get returns a snapshot of one process
func (m *Manager) Get(name string) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procs[name]
	if !ok {
		return Info{}, false
	}
	return snapshot(p), true
}

// List returns snapshots of all managed processes
func (m *Manager) List() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]Info, 0, len(m.procs))
	for _, p := range m.procs {
		infos = append(infos, snapshot(p))
	}
	return infos
}

func snapshot(p *process) Info {
	pid := 0
	if p.cmd.Process != nil {
		pid = p.cmd.Process.Pid
	}
	return Info{
		Name:      p.name,
		Usecase:   p.usecase,
		PID:       pid,
		State:     p.state,
		ExitCode:  p.exitCode,
		StartedAt: p.startedAt,
	}
}

// Logs returns up to maxBytes of the tail of a process log
func (m *Manager) Logs(name string, maxBytes int64) (string, error) {
	path := filepath.Join(m.logsDir, name+".log")
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("no logs for %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.Size() > maxBytes {
		if _, err := f.Seek(-maxBytes, io.SeekEnd); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	// Drop a partial first line after seeking into the middle of the file
	s := string(data)
	if info.Size() > maxBytes {
		if idx := strings.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
	}
	return s, nil
}

// StopAll stops every running process, used on daemon shutdown
func (m *Manager) StopAll() {
	for _, info := range m.List() {
		if info.State == StateRunning {
			if err := m.Stop(info.Name); err != nil {
				log.Printf("Warning: failed to stop %s: %v", info.Name, err)
			}
		}
	}
}
