package store

import (
	"errors"
	"testing"
	"time"

	"github.com/inferd/inferd/pkg/models"
)

func newWorkload() *models.Workload {
	now := time.Now()
	return &models.Workload{
		Task:      "vision",
		Usecase:   "object-detection",
		Model:     "yolo11n",
		Devices:   []string{"GPU.0", "CPU"},
		Source:    models.Source{Kind: models.SourceCamera, Value: "0"},
		Metadata:  models.Metadata{StreamCount: 2, Precision: "FP16"},
		Status:    models.StatusPrepare,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStoreWorkloadCRUD(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	w := newWorkload()
	if err := s.CreateWorkload(w); err != nil {
		t.Fatalf("CreateWorkload failed: %v", err)
	}
	if w.ID == 0 {
		t.Fatal("CreateWorkload did not assign an ID")
	}

	got, err := s.GetWorkload(w.ID)
	if err != nil {
		t.Fatalf("GetWorkload failed: %v", err)
	}
	if got.Usecase != w.Usecase || got.Model != w.Model {
		t.Errorf("GetWorkload returned wrong workload: %+v", got)
	}
	if len(got.Devices) != 2 || got.Devices[0] != "GPU.0" {
		t.Errorf("devices not preserved: %v", got.Devices)
	}

	if err := s.UpdateWorkloadStatus(w.ID, models.StatusActive, ""); err != nil {
		t.Fatalf("UpdateWorkloadStatus failed: %v", err)
	}
	if err := s.UpdateWorkloadPort(w.ID, 5001); err != nil {
		t.Fatalf("UpdateWorkloadPort failed: %v", err)
	}

	got, _ = s.GetWorkload(w.ID)
	if got.Status != models.StatusActive || got.Port != 5001 {
		t.Errorf("status/port = %s/%d, want active/5001", got.Status, got.Port)
	}

	active, err := s.GetWorkloadsByStatus(models.StatusActive)
	if err != nil {
		t.Fatalf("GetWorkloadsByStatus failed: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected 1 active workload, got %d", len(active))
	}

	if err := s.DeleteWorkload(w.ID); err != nil {
		t.Fatalf("DeleteWorkload failed: %v", err)
	}
	if _, err := s.GetWorkload(w.ID); !errors.Is(err, ErrWorkloadNotFound) {
		t.Errorf("expected ErrWorkloadNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	if _, err := s.GetWorkload(999); !errors.Is(err, ErrWorkloadNotFound) {
		t.Errorf("GetWorkload: expected ErrWorkloadNotFound, got %v", err)
	}
	if err := s.UpdateWorkloadStatus(999, models.StatusActive, ""); !errors.Is(err, ErrWorkloadNotFound) {
		t.Errorf("UpdateWorkloadStatus: expected ErrWorkloadNotFound, got %v", err)
	}
	if err := s.DeleteWorkload(999); !errors.Is(err, ErrWorkloadNotFound) {
		t.Errorf("DeleteWorkload: expected ErrWorkloadNotFound, got %v", err)
	}
}

func TestMemoryStoreSamples(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	base := time.Now().UnixMilli()
	for i := 0; i < 5; i++ {
		sample := &models.UtilizationSample{
			Timestamp:  base + int64(i),
			CPUPercent: float64(10 * i),
			GPUPercent: models.NotAvailable,
		}
		if err := s.AddSample(sample); err != nil {
			t.Fatalf("AddSample failed: %v", err)
		}
	}

	samples, err := s.RecentSamples(3)
	if err != nil {
		t.Fatalf("RecentSamples failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	// Oldest first
	if samples[0].Timestamp >= samples[2].Timestamp {
		t.Error("samples not ordered oldest first")
	}
	if samples[2].CPUPercent != 40 {
		t.Errorf("last sample CPU = %f, want 40", samples[2].CPUPercent)
	}

	if err := s.PruneSamples(0); err != nil {
		t.Fatalf("PruneSamples failed: %v", err)
	}
}

func TestNewStoreSelection(t *testing.T) {
	s, err := New(Config{Type: "memory"})
	if err != nil {
		t.Fatalf("New(memory) failed: %v", err)
	}
	s.Close()

	if _, err := New(Config{Type: "oracle"}); !errors.Is(err, ErrUnsupportedDatabase) {
		t.Errorf("expected ErrUnsupportedDatabase, got %v", err)
	}
}
