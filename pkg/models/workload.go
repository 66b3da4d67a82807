package models

import (
	"fmt"
	"time"
)

// WorkloadStatus represents the status of a workload
type WorkloadStatus string

const (
	// StatusPrepare means the worker process is being launched and has not
	// reported back yet.
	StatusPrepare WorkloadStatus = "prepare"
	// StatusActive means the worker reported itself up and serving.
	StatusActive WorkloadStatus = "active"
	// StatusInactive means the workload was stopped by the user.
	StatusInactive WorkloadStatus = "inactive"
	// StatusFailed means the worker failed to start or exited abnormally.
	StatusFailed WorkloadStatus = "failed"
)

// SourceKind identifies where a workload reads its input from
type SourceKind string

const (
	SourceCamera SourceKind = "camera"
	SourceFile   SourceKind = "file"
	SourceVideo  SourceKind = "video" // predefined video from the assets directory
)

// Source describes the input of a workload
type Source struct {
	Kind  SourceKind `json:"kind"`
	Value string     `json:"value"` // camera index, file path, or asset file name
}

// Metadata holds freeform per-workload runtime parameters
type Metadata struct {
	StreamCount int    `json:"stream_count,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Precision   string `json:"precision,omitempty"`    // e.g. FP16, INT8
	CustomModel string `json:"custom_model,omitempty"` // directory name under custom_models/<usecase>
}

// Workload is a configured AI inference task plus its runtime parameters
// and status.
type Workload struct {
	ID        int            `json:"id"`
	Task      string         `json:"task"`    // category: vision, text, audio
	Usecase   string         `json:"usecase"` // e.g. object-detection
	Model     string         `json:"model"`
	Devices   []string       `json:"devices"` // ordered by priority, e.g. ["GPU.0", "NPU"]
	Source    Source         `json:"source"`
	Metadata  Metadata       `json:"metadata"`
	Status    WorkloadStatus `json:"status"`
	Port      int            `json:"port,omitempty"` // worker HTTP port, reported by the worker
	Error     string         `json:"error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// WorkloadRequest is the payload for creating a new workload
type WorkloadRequest struct {
	Task     string   `json:"task"`
	Usecase  string   `json:"usecase"`
	Model    string   `json:"model,omitempty"`
	Devices  []string `json:"devices"`
	Source   Source   `json:"source"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// WorkloadPatch is a partial update. Workers PATCH status+port when they
// come up or fail; the UI PATCHes status to stop or restart a workload.
type WorkloadPatch struct {
	Status *WorkloadStatus `json:"status,omitempty"`
	Port   *int            `json:"port,omitempty"`
	Error  *string         `json:"error,omitempty"`
}

// validTransitions maps from-status to allowed to-statuses
var validTransitions = map[WorkloadStatus]map[WorkloadStatus]bool{
	StatusPrepare: {
		StatusActive:   true, // worker came up
		StatusFailed:   true, // worker failed to start
		StatusInactive: true, // user stopped before the worker reported in
	},
	StatusActive: {
		StatusInactive: true, // user stop
		StatusFailed:   true, // worker died
	},
	StatusInactive: {
		StatusPrepare: true, // user restart
	},
	StatusFailed: {
		StatusPrepare:  true, // user restart
		StatusInactive: true, // user acknowledges the failure
	},
}

// ValidateTransition checks if a status transition is valid
func ValidateTransition(from, to WorkloadStatus) error {
	if from == to {
		return nil
	}
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("unknown source status: %s", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsRunningState returns true if a worker process is expected to exist
func IsRunningState(status WorkloadStatus) bool {
	return status == StatusPrepare || status == StatusActive
}

// ProcessName returns the process-manager name for a workload
func (w *Workload) ProcessName() string {
	return fmt.Sprintf("workload-%d", w.ID)
}

// Validate checks a creation request against a usecase definition
func (r *WorkloadRequest) Validate(uc *Usecase) error {
	if uc == nil {
		return fmt.Errorf("unknown usecase: %s", r.Usecase)
	}
	if r.Task != "" && r.Task != uc.Task {
		return fmt.Errorf("usecase %s belongs to task %s, not %s", uc.Name, uc.Task, r.Task)
	}
	if len(r.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	if !uc.MultiDevice && len(r.Devices) > 1 {
		return fmt.Errorf("usecase %s does not support multiple devices", uc.Name)
	}
	if uc.RequiresSource && r.Source.Value == "" {
		return fmt.Errorf("usecase %s requires an input source", uc.Name)
	}
	if r.Metadata.StreamCount < 0 {
		return fmt.Errorf("stream count must not be negative")
	}
	if !uc.MultiStream && r.Metadata.StreamCount > 1 {
		return fmt.Errorf("usecase %s does not support multiple streams", uc.Name)
	}
	switch r.Source.Kind {
	case SourceCamera, SourceFile, SourceVideo, "":
	default:
		return fmt.Errorf("unknown source kind: %s", r.Source.Kind)
	}
	return nil
}
