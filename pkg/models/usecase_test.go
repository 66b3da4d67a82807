package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if len(c.All()) == 0 {
		t.Fatal("default catalog is empty")
	}

	uc := c.Get("object-detection")
	if uc == nil {
		t.Fatal("object-detection missing from default catalog")
	}
	if uc.Task != "vision" {
		t.Errorf("object-detection task = %s, want vision", uc.Task)
	}
	if !uc.RequiresSource {
		t.Error("object-detection should require a source")
	}
	if uc.DefaultModel == "" {
		t.Error("object-detection has no default model")
	}

	if c.Get("does-not-exist") != nil {
		t.Error("Get for unknown usecase should return nil")
	}
}

func TestLoadCatalog(t *testing.T) {
	content := `usecases:
  - name: pose-estimation
    task: vision
    worker_dir: pose-estimation
    default_model: openpose
    requires_source: true
    multi_device: true
    multi_stream: true
`
	path := filepath.Join(t.TempDir(), "usecases.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write catalog file: %v", err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}

	uc := c.Get("pose-estimation")
	if uc == nil {
		t.Fatal("pose-estimation missing from loaded catalog")
	}
	if uc.DefaultModel != "openpose" {
		t.Errorf("default model = %s, want openpose", uc.DefaultModel)
	}
	if !uc.MultiDevice || !uc.MultiStream {
		t.Error("multi_device and multi_stream should be true")
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	if _, err := LoadCatalog("/nonexistent/usecases.yaml"); err == nil {
		t.Error("LoadCatalog should fail for a missing file")
	}
}
