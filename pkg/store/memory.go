package store

import (
	"sort"
	"sync"
	"time"

	"github.com/inferd/inferd/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store, used in
// tests and for ephemeral runs.
type MemoryStore struct {
	mu        sync.RWMutex
	workloads map[int]*models.Workload
	samples   []models.UtilizationSample
	nextID    int
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workloads: make(map[int]*models.Workload),
		nextID:    1,
	}
}

// CreateWorkload inserts a workload and assigns its ID
func (s *MemoryStore) CreateWorkload(w *models.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = s.nextID
	s.nextID++
	clone := *w
	s.workloads[w.ID] = &clone
	return nil
}

// GetWorkload retrieves a workload by ID
func (s *MemoryStore) GetWorkload(id int) (*models.Workload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workloads[id]
	if !ok {
		return nil, ErrWorkloadNotFound
	}
	clone := *w
	return &clone, nil
}

// GetAllWorkloads returns all workloads, newest first
func (s *MemoryStore) GetAllWorkloads() []*models.Workload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	workloads := make([]*models.Workload, 0, len(s.workloads))
	for _, w := range s.workloads {
		clone := *w
		workloads = append(workloads, &clone)
	}
	sort.Slice(workloads, func(i, j int) bool {
		return workloads[i].CreatedAt.After(workloads[j].CreatedAt)
	})
	return workloads
}

// GetWorkloadsByStatus returns workloads in the given status
func (s *MemoryStore) GetWorkloadsByStatus(status models.WorkloadStatus) ([]*models.Workload, error) {
	var out []*models.Workload
	for _, w := range s.GetAllWorkloads() {
		if w.Status == status {
			out = append(out, w)
		}
	}
	return out, nil
}

// UpdateWorkload replaces all mutable fields of a workload
func (s *MemoryStore) UpdateWorkload(w *models.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workloads[w.ID]; !ok {
		return ErrWorkloadNotFound
	}
	clone := *w
	clone.UpdatedAt = time.Now()
	s.workloads[w.ID] = &clone
	return nil
}

// UpdateWorkloadStatus updates only the status and error message
func (s *MemoryStore) UpdateWorkloadStatus(id int, status models.WorkloadStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloads[id]
	if !ok {
		return ErrWorkloadNotFound
	}
	w.Status = status
	w.Error = errorMsg
	w.UpdatedAt = time.Now()
	return nil
}

// UpdateWorkloadPort records the port the worker reported
func (s *MemoryStore) UpdateWorkloadPort(id int, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workloads[id]
	if !ok {
		return ErrWorkloadNotFound
	}
	w.Port = port
	w.UpdatedAt = time.Now()
	return nil
}

// DeleteWorkload removes a workload
func (s *MemoryStore) DeleteWorkload(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workloads[id]; !ok {
		return ErrWorkloadNotFound
	}
	delete(s.workloads, id)
	return nil
}

// AddSample stores one utilization sample
func (s *MemoryStore) AddSample(sample *models.UtilizationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, *sample)
	return nil
}

// RecentSamples returns up to limit samples, oldest first
func (s *MemoryStore) RecentSamples(limit int) ([]models.UtilizationSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if len(s.samples) > limit {
		start = len(s.samples) - limit
	}
	out := make([]models.UtilizationSample, len(s.samples)-start)
	copy(out, s.samples[start:])
	return out, nil
}

// PruneSamples deletes samples older than the given age
func (s *MemoryStore) PruneSamples(olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	kept := s.samples[:0]
	for _, sample := range s.samples {
		if sample.Timestamp >= cutoff {
			kept = append(kept, sample)
		}
	}
	s.samples = kept
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error { return nil }

// HealthCheck always succeeds for the memory store
func (s *MemoryStore) HealthCheck() error { return nil }

var _ Store = (*MemoryStore)(nil)
