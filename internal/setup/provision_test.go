package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inferd/inferd/pkg/models"
)

func writeWorker(t *testing.T, root, dir string) {
	t.Helper()
	workerDir := filepath.Join(root, dir)
	if err := os.MkdirAll(workerDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workerDir, "main.py"), []byte("print()\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func TestInspectResolvesWorkerDir(t *testing.T) {
	workers := t.TempDir()
	catalog := &models.Catalog{Usecases: []models.Usecase{
		{Name: "speech-to-text", WorkerDir: "asr-worker"},
	}}
	// The worker lives under its catalog directory, not its usecase name
	writeWorker(t, workers, "asr-worker")

	p := NewProvisioner(workers, t.TempDir(), catalog)

	env := p.Inspect("speech-to-text")
	if env.Status != StatusNotInstalled {
		t.Errorf("status = %s, want %s", env.Status, StatusNotInstalled)
	}
}

func TestInspectMissingWorker(t *testing.T) {
	catalog := models.DefaultCatalog()
	p := NewProvisioner(t.TempDir(), t.TempDir(), catalog)

	env := p.Inspect("object-detection")
	if env.Status != StatusMissing {
		t.Errorf("status = %s, want %s", env.Status, StatusMissing)
	}
}

func TestInspectReadyWorker(t *testing.T) {
	workers := t.TempDir()
	writeWorker(t, workers, "object-detection")
	venvBin := filepath.Join(workers, "object-detection", ".venv", "bin")
	if err := os.MkdirAll(venvBin, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(venvBin, "python"), []byte{}, 0o755); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	p := NewProvisioner(workers, t.TempDir(), models.DefaultCatalog())
	env := p.Inspect("object-detection")
	if env.Status != StatusReady {
		t.Errorf("status = %s, want %s", env.Status, StatusReady)
	}
	if env.InstalledAt.IsZero() {
		t.Error("InstalledAt not set for ready worker")
	}
}
