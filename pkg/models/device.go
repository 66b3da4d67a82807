package models

// DeviceKind is the accelerator family of a device
type DeviceKind string

const (
	DeviceCPU DeviceKind = "CPU"
	DeviceGPU DeviceKind = "GPU"
	DeviceNPU DeviceKind = "NPU"
)

// Device is an accelerator available for running workloads.
// The ID follows the inference runtime convention: "CPU", "GPU", "GPU.1",
// "NPU" and so on.
type Device struct {
	ID      string     `json:"id"`
	Kind    DeviceKind `json:"kind"`
	Name    string     `json:"name"` // human-readable, e.g. the CPU model string
	Present bool       `json:"present"`
}

// UtilizationSample is one point of system utilization for the live charts.
// A negative value means the sensor is not available.
type UtilizationSample struct {
	Timestamp     int64     `json:"timestamp"` // unix milliseconds
	CPUPercent    float64   `json:"cpu_percent"`
	PerCore       []float64 `json:"per_core,omitempty"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    uint64    `json:"memory_used_bytes"`
	MemoryTotal   uint64    `json:"memory_total_bytes"`
	GPUPercent    float64   `json:"gpu_percent"`
	NPUPercent    float64   `json:"npu_percent"`
}

// NotAvailable is the sentinel for sensors the host does not expose
const NotAvailable = -1.0
