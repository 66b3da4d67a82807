package lifecycle

import (
	"fmt"
	"log"
	"sync"

	"github.com/inferd/inferd/pkg/models"
)

// ProcessManager is the external process-manager surface the hook drives
type ProcessManager interface {
	Start(name, usecase string, args []string) error
	Stop(name string) error
	Delete(name string) error
}

// PortAllocator hands out worker ports
type PortAllocator interface {
	Allocate() (int, error)
	Release(port int)
}

// Hook translates workload state transitions into process-manager commands.
// It is a translation layer only: it owns no persistent state, performs no
// retries, and makes no idempotence guarantee: writing the same status
// twice issues the same commands twice, and the second Start is rejected by
// the process manager.
type Hook struct {
	pm      ProcessManager
	ports   PortAllocator
	catalog *models.Catalog
	paths   Paths

	mu        sync.Mutex
	allocated map[int][]int // workload ID -> ports held while running
}

// NewHook creates a lifecycle hook
func NewHook(pm ProcessManager, ports PortAllocator, catalog *models.Catalog, paths Paths) *Hook {
	return &Hook{
		pm:        pm,
		ports:     ports,
		catalog:   catalog,
		paths:     paths,
		allocated: make(map[int][]int),
	}
}

// AfterChange reacts to a workload document change. prev is nil on create,
// next is nil on delete. Statuses reported by the worker itself (active,
// failed) are recorded upstream and issue no process commands here.
func (h *Hook) AfterChange(prev, next *models.Workload) error {
	if next == nil {
		if prev == nil {
			return nil
		}
		return h.remove(prev)
	}

	switch next.Status {
	case models.StatusPrepare:
		return h.start(next)
	case models.StatusInactive:
		// Stopping a workload that never started is not an error worth
		// surfacing; the manager treats a missing process as already down.
		if prev != nil && !models.IsRunningState(prev.Status) {
			return nil
		}
		return h.stop(next)
	case models.StatusActive, models.StatusFailed:
		if next.Status == models.StatusFailed {
			h.release(next.ID)
		}
		return nil
	default:
		return fmt.Errorf("unknown workload status: %s", next.Status)
	}
}

// start builds the usecase-specific command line and launches the worker
func (h *Hook) start(w *models.Workload) error {
	uc := h.catalog.Get(w.Usecase)
	if uc == nil {
		return fmt.Errorf("unknown usecase: %s", w.Usecase)
	}

	apiPort, err := h.ports.Allocate()
	if err != nil {
		return fmt.Errorf("failed to allocate worker port: %w", err)
	}
	ports := []int{apiPort}

	tcpPort := 0
	if uc.Task == "vision" {
		tcpPort, err = h.ports.Allocate()
		if err != nil {
			h.ports.Release(apiPort)
			return fmt.Errorf("failed to allocate pipeline port: %w", err)
		}
		ports = append(ports, tcpPort)
	}

	args := BuildArgs(w, uc, h.paths, apiPort, tcpPort)
	name := w.ProcessName()

	log.Printf("Lifecycle: starting %s (usecase %s, devices %s, port %d)",
		name, w.Usecase, BuildDeviceString(w.Devices), apiPort)

	if err := h.pm.Start(name, uc.WorkerDir, args); err != nil {
		for _, p := range ports {
			h.ports.Release(p)
		}
		return fmt.Errorf("process manager start failed for %s: %w", name, err)
	}

	h.mu.Lock()
	h.allocated[w.ID] = ports
	h.mu.Unlock()
	return nil
}

// stop asks the process manager to terminate the worker
func (h *Hook) stop(w *models.Workload) error {
	name := w.ProcessName()
	log.Printf("Lifecycle: stopping %s", name)
	err := h.pm.Stop(name)
	h.release(w.ID)
	if err != nil {
		return fmt.Errorf("process manager stop failed for %s: %w", name, err)
	}
	return nil
}

// remove stops the worker and drops it from the process manager
func (h *Hook) remove(w *models.Workload) error {
	name := w.ProcessName()
	log.Printf("Lifecycle: deleting %s", name)

	if models.IsRunningState(w.Status) {
		if err := h.pm.Stop(name); err != nil {
			log.Printf("Warning: stop before delete failed for %s: %v", name, err)
		}
	}
	h.release(w.ID)

	if err := h.pm.Delete(name); err != nil {
		return fmt.Errorf("process manager delete failed for %s: %w", name, err)
	}
	return nil
}

func (h *Hook) release(id int) {
	h.mu.Lock()
	ports := h.allocated[id]
	delete(h.allocated, id)
	h.mu.Unlock()
	for _, p := range ports {
		h.ports.Release(p)
	}
}
