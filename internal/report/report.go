package report

import (
	"time"

	"github.com/google/uuid"

	"github.com/inferd/inferd/internal/metrics"
	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/store"
)

// Format selects the report output encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// WorkloadEntry combines a workload's configuration with its latest
// performance numbers.
type WorkloadEntry struct {
	Workload models.Workload        `json:"workload"`
	Metrics  *metrics.WorkerMetrics `json:"metrics,omitempty"`
}

// Report is a point-in-time export of the system state
type Report struct {
	ID          string                     `json:"id"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Hostname    string                     `json:"hostname"`
	Devices     []models.Device            `json:"devices"`
	Workloads   []WorkloadEntry            `json:"workloads"`
	Samples     []models.UtilizationSample `json:"samples"`
}

// Build assembles a report from the store, the device inventory and the
// latest scraped worker metrics.
func Build(s store.Store, hostname string, devices []models.Device, workerMetrics map[int]metrics.WorkerMetrics, sampleLimit int) (*Report, error) {
	if sampleLimit <= 0 {
		sampleLimit = 1800
	}
	samples, err := s.RecentSamples(sampleLimit)
	if err != nil {
		return nil, err
	}

	workloads := s.GetAllWorkloads()
	entries := make([]WorkloadEntry, 0, len(workloads))
	for _, w := range workloads {
		entry := WorkloadEntry{Workload: *w}
		if m, ok := workerMetrics[w.ID]; ok {
			mc := m
			entry.Metrics = &mc
		}
		entries = append(entries, entry)
	}

	return &Report{
		ID:          uuid.New().String(),
		GeneratedAt: time.Now(),
		Hostname:    hostname,
		Devices:     devices,
		Workloads:   entries,
		Samples:     samples,
	}, nil
}
