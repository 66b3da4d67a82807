package lifecycle

import (
	"errors"
	"testing"

	"github.com/inferd/inferd/pkg/models"
)

type fakePM struct {
	started  []string
	stopped  []string
	deleted  []string
	startErr error
	lastArgs []string
}

func (f *fakePM) Start(name, usecase string, args []string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, name)
	f.lastArgs = args
	return nil
}

func (f *fakePM) Stop(name string) error {
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakePM) Delete(name string) error {
	f.deleted = append(f.deleted, name)
	return nil
}

type fakePorts struct {
	next     int
	released []int
}

func (f *fakePorts) Allocate() (int, error) {
	f.next++
	return 5000 + f.next, nil
}

func (f *fakePorts) Release(port int) {
	f.released = append(f.released, port)
}

func newTestHook(pm *fakePM, ports *fakePorts) *Hook {
	return NewHook(pm, ports, models.DefaultCatalog(), Paths{})
}

func TestHookStartOnPrepare(t *testing.T) {
	pm := &fakePM{}
	ports := &fakePorts{}
	hook := newTestHook(pm, ports)

	w := &models.Workload{
		ID:      1,
		Usecase: "object-detection",
		Model:   "yolo11n",
		Devices: []string{"CPU"},
		Source:  models.Source{Kind: models.SourceCamera, Value: "0"},
		Status:  models.StatusPrepare,
	}

	if err := hook.AfterChange(nil, w); err != nil {
		t.Fatalf("AfterChange failed: %v", err)
	}
	if len(pm.started) != 1 || pm.started[0] != "workload-1" {
		t.Errorf("started = %v, want [workload-1]", pm.started)
	}
	// Vision workloads get an API port and a pipeline port
	if ports.next != 2 {
		t.Errorf("allocated %d ports, want 2", ports.next)
	}
}

func TestHookTextWorkloadSinglePort(t *testing.T) {
	pm := &fakePM{}
	ports := &fakePorts{}
	hook := newTestHook(pm, ports)

	w := &models.Workload{
		ID:      2,
		Usecase: "text-generation",
		Model:   "qwen2.5-1.5b-instruct",
		Devices: []string{"CPU"},
		Status:  models.StatusPrepare,
	}

	if err := hook.AfterChange(nil, w); err != nil {
		t.Fatalf("AfterChange failed: %v", err)
	}
	if ports.next != 1 {
		t.Errorf("allocated %d ports, want 1", ports.next)
	}
}

func TestHookStopOnInactive(t *testing.T) {
	pm := &fakePM{}
	ports := &fakePorts{}
	hook := newTestHook(pm, ports)

	w := &models.Workload{
		ID:      3,
		Usecase: "text-generation",
		Devices: []string{"CPU"},
		Status:  models.StatusPrepare,
	}
	if err := hook.AfterChange(nil, w); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	prev := *w
	w.Status = models.StatusInactive
	if err := hook.AfterChange(&prev, w); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if len(pm.stopped) != 1 || pm.stopped[0] != "workload-3" {
		t.Errorf("stopped = %v, want [workload-3]", pm.stopped)
	}
	if len(ports.released) != 1 {
		t.Errorf("released %d ports, want 1", len(ports.released))
	}
}

func TestHookStopSkippedWhenNotRunning(t *testing.T) {
	pm := &fakePM{}
	hook := newTestHook(pm, &fakePorts{})

	prev := &models.Workload{ID: 4, Status: models.StatusFailed}
	next := &models.Workload{ID: 4, Status: models.StatusInactive}
	if err := hook.AfterChange(prev, next); err != nil {
		t.Fatalf("AfterChange failed: %v", err)
	}
	if len(pm.stopped) != 0 {
		t.Errorf("stop should not be issued for a non-running workload")
	}
}

func TestHookDeleteStopsRunningWorker(t *testing.T) {
	pm := &fakePM{}
	hook := newTestHook(pm, &fakePorts{})

	prev := &models.Workload{ID: 5, Usecase: "text-generation", Devices: []string{"CPU"}, Status: models.StatusPrepare}
	if err := hook.AfterChange(nil, prev); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	prev.Status = models.StatusActive
	if err := hook.AfterChange(prev, nil); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(pm.stopped) != 1 {
		t.Errorf("delete of a running workload should stop it first")
	}
	if len(pm.deleted) != 1 || pm.deleted[0] != "workload-5" {
		t.Errorf("deleted = %v, want [workload-5]", pm.deleted)
	}
}

func TestHookStartFailureReleasesPorts(t *testing.T) {
	pm := &fakePM{startErr: errors.New("boom")}
	ports := &fakePorts{}
	hook := newTestHook(pm, ports)

	w := &models.Workload{
		ID:      6,
		Usecase: "object-detection",
		Devices: []string{"CPU"},
		Source:  models.Source{Kind: models.SourceCamera, Value: "0"},
		Status:  models.StatusPrepare,
	}

	if err := hook.AfterChange(nil, w); err == nil {
		t.Fatal("expected error from failed start")
	}
	if len(ports.released) != 2 {
		t.Errorf("released %d ports, want 2", len(ports.released))
	}
}

func TestHookWorkerReportedStatuses(t *testing.T) {
	pm := &fakePM{}
	hook := newTestHook(pm, &fakePorts{})

	prev := &models.Workload{ID: 7, Status: models.StatusPrepare}
	next := &models.Workload{ID: 7, Status: models.StatusActive}
	if err := hook.AfterChange(prev, next); err != nil {
		t.Fatalf("AfterChange failed: %v", err)
	}

	next2 := &models.Workload{ID: 7, Status: models.StatusFailed}
	if err := hook.AfterChange(next, next2); err != nil {
		t.Fatalf("AfterChange failed: %v", err)
	}

	if len(pm.started)+len(pm.stopped)+len(pm.deleted) != 0 {
		t.Error("worker-reported statuses must not issue process commands")
	}
}

func TestHookUnknownUsecase(t *testing.T) {
	hook := newTestHook(&fakePM{}, &fakePorts{})
	w := &models.Workload{ID: 8, Usecase: "nope", Status: models.StatusPrepare}
	if err := hook.AfterChange(nil, w); err == nil {
		t.Fatal("expected error for unknown usecase")
	}
}
