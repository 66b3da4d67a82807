package setup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/inferd/inferd/pkg/models"
)

// Status of one worker environment
type Status string

const (
	StatusMissing      Status = "missing"      // worker directory not found
	StatusNotInstalled Status = "uninstalled"  // worker present, no venv
	StatusInstalling   Status = "installing"   // provisioning in progress
	StatusReady        Status = "ready"        // venv present
	StatusFailed       Status = "failed"       // last provisioning attempt failed
)

// WorkerEnv describes the provisioning state of one usecase's worker
type WorkerEnv struct {
	Usecase     string    `json:"usecase"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
}

// Provisioner creates the isolated Python environments the workers run in.
// Each worker directory gets a .venv built from its requirements.txt.
type Provisioner struct {
	workersDir string
	logsDir    string
	catalog    *models.Catalog

	mu   sync.Mutex
	busy map[string]bool
	errs map[string]string
}

// NewProvisioner creates a provisioner rooted at the workers directory.
// Worker subdirectories are resolved through the catalog, which may name a
// directory that differs from the usecase.
func NewProvisioner(workersDir, logsDir string, catalog *models.Catalog) *Provisioner {
	return &Provisioner{
		workersDir: workersDir,
		logsDir:    logsDir,
		catalog:    catalog,
		busy:       make(map[string]bool),
		errs:       make(map[string]string),
	}
}

func (p *Provisioner) workerDir(usecase string) string {
	sub := usecase
	if p.catalog != nil {
		if uc := p.catalog.Get(usecase); uc != nil && uc.WorkerDir != "" {
			sub = uc.WorkerDir
		}
	}
	return filepath.Join(p.workersDir, sub)
}

// Inspect reports the environment status for a usecase
func (p *Provisioner) Inspect(usecase string) WorkerEnv {
	env := WorkerEnv{Usecase: usecase}
	workerDir := p.workerDir(usecase)

	p.mu.Lock()
	busy := p.busy[usecase]
	errMsg := p.errs[usecase]
	p.mu.Unlock()

	if busy {
		env.Status = StatusInstalling
		return env
	}
	if _, err := os.Stat(filepath.Join(workerDir, "main.py")); err != nil {
		env.Status = StatusMissing
		return env
	}
	if errMsg != "" {
		env.Status = StatusFailed
		env.Error = errMsg
		return env
	}
	venv := filepath.Join(workerDir, ".venv", "bin", "python")
	if info, err := os.Stat(venv); err == nil {
		env.Status = StatusReady
		env.InstalledAt = info.ModTime()
		return env
	}
	env.Status = StatusNotInstalled
	return env
}

// Provision builds the venv for a usecase: python3 -m venv followed by a
// pip install of the worker's requirements. Long-running; callers usually
// run it in a goroutine and poll Inspect.
func (p *Provisioner) Provision(ctx context.Context, usecase string) error {
	workerDir := p.workerDir(usecase)
	if _, err := os.Stat(filepath.Join(workerDir, "main.py")); err != nil {
		return fmt.Errorf("worker for usecase %s not found in %s: %w", usecase, workerDir, err)
	}

	p.mu.Lock()
	if p.busy[usecase] {
		p.mu.Unlock()
		return fmt.Errorf("provisioning already in progress for %s", usecase)
	}
	p.busy[usecase] = true
	delete(p.errs, usecase)
	p.mu.Unlock()

	err := p.run(ctx, usecase, workerDir)

	p.mu.Lock()
	p.busy[usecase] = false
	if err != nil {
		p.errs[usecase] = err.Error()
	}
	p.mu.Unlock()
	return err
}

func (p *Provisioner) run(ctx context.Context, usecase, workerDir string) error {
	if err := os.MkdirAll(p.logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logPath := filepath.Join(p.logsDir, "setup-"+usecase+".log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open setup log %s: %w", logPath, err)
	}
	defer logFile.Close()

	log.Printf("Provisioning worker environment for %s", usecase)

	venvDir := filepath.Join(workerDir, ".venv")
	steps := [][]string{
		{"python3", "-m", "venv", venvDir},
		{filepath.Join(venvDir, "bin", "pip"), "install", "--upgrade", "pip"},
	}
	if _, err := os.Stat(filepath.Join(workerDir, "requirements.txt")); err == nil {
		steps = append(steps, []string{
			filepath.Join(venvDir, "bin", "pip"), "install", "-r", "requirements.txt",
		})
	}

	for _, step := range steps {
		cmd := exec.CommandContext(ctx, step[0], step[1:]...)
		cmd.Dir = workerDir
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("setup step %s failed for %s: %w", step[0], usecase, err)
		}
	}

	log.Printf("Worker environment for %s ready", usecase)
	return nil
}

// ProvisionAll provisions every usecase that has a worker directory but no
// environment yet. Failures are logged and do not stop the rest.
func (p *Provisioner) ProvisionAll(ctx context.Context, usecases []string) {
	for _, uc := range usecases {
		if p.Inspect(uc).Status != StatusNotInstalled {
			continue
		}
		if err := p.Provision(ctx, uc); err != nil {
			log.Printf("Warning: provisioning %s failed: %v", uc, err)
		}
	}
}
