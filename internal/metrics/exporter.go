package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inferd/inferd/pkg/models"
)

// Exporter publishes daemon and host metrics in Prometheus format
type Exporter struct {
	registry *prometheus.Registry

	workloadsByStatus *prometheus.GaugeVec
	cpuPercent        prometheus.Gauge
	memoryPercent     prometheus.Gauge
	gpuPercent        prometheus.Gauge
	npuPercent        prometheus.Gauge
	workerFPS         *prometheus.GaugeVec
	workerLatency     *prometheus.GaugeVec
	workerStreamFPS   *prometheus.GaugeVec
	workerRestarts    *prometheus.CounterVec
}

// NewExporter creates an exporter with its own registry
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		workloadsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inferd_workloads",
			Help: "Number of workloads by status",
		}, []string{"status"}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inferd_host_cpu_percent",
			Help: "Host CPU utilization percent",
		}),
		memoryPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inferd_host_memory_percent",
			Help: "Host memory utilization percent",
		}),
		gpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inferd_host_gpu_percent",
			Help: "Host GPU utilization percent, -1 when unavailable",
		}),
		npuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inferd_host_npu_percent",
			Help: "Host NPU utilization percent, -1 when unavailable",
		}),
		workerFPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inferd_worker_throughput_fps",
			Help: "Worker-reported throughput in frames or tokens per second",
		}, []string{"workload"}),
		workerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inferd_worker_latency_ms",
			Help: "Worker-reported average inference latency in milliseconds",
		}, []string{"workload"}),
		workerStreamFPS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "inferd_worker_stream_fps",
			Help: "Worker-reported per-stream throughput in frames per second",
		}, []string{"workload", "stream"}),
		workerRestarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inferd_worker_restarts_total",
			Help: "Worker processes that exited unexpectedly while running",
		}, []string{"workload"}),
	}
	e.registry.MustRegister(
		e.workloadsByStatus,
		e.cpuPercent,
		e.memoryPercent,
		e.gpuPercent,
		e.npuPercent,
		e.workerFPS,
		e.workerLatency,
		e.workerStreamFPS,
		e.workerRestarts,
	)
	return e
}

// Handler returns the /metrics HTTP handler
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// SetWorkloadCounts publishes the per-status workload counts
func (e *Exporter) SetWorkloadCounts(workloads []*models.Workload) {
	counts := map[models.WorkloadStatus]int{
		models.StatusPrepare:  0,
		models.StatusActive:   0,
		models.StatusInactive: 0,
		models.StatusFailed:   0,
	}
	for _, w := range workloads {
		counts[w.Status]++
	}
	for status, n := range counts {
		e.workloadsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

// SetUtilization publishes a host utilization sample
func (e *Exporter) SetUtilization(s models.UtilizationSample) {
	e.cpuPercent.Set(s.CPUPercent)
	e.memoryPercent.Set(s.MemoryPercent)
	e.gpuPercent.Set(s.GPUPercent)
	e.npuPercent.Set(s.NPUPercent)
}

// SetWorkerMetrics publishes one worker's reported metrics. Stream series
// are replaced wholesale so streams that disappeared between scrapes do not
// linger.
func (e *Exporter) SetWorkerMetrics(workload string, m WorkerMetrics) {
	e.workerFPS.WithLabelValues(workload).Set(m.Throughput)
	e.workerLatency.WithLabelValues(workload).Set(m.LatencyMS)
	e.workerStreamFPS.DeletePartialMatch(prometheus.Labels{"workload": workload})
	for stream, fps := range m.Streams {
		e.workerStreamFPS.WithLabelValues(workload, stream).Set(fps)
	}
}

// IncWorkerRestarts counts one unexpected worker exit
func (e *Exporter) IncWorkerRestarts(workload string) {
	e.workerRestarts.WithLabelValues(workload).Inc()
}

// ForgetWorker drops a stopped worker's series
func (e *Exporter) ForgetWorker(workload string) {
	e.workerFPS.DeleteLabelValues(workload)
	e.workerLatency.DeleteLabelValues(workload)
	e.workerStreamFPS.DeletePartialMatch(prometheus.Labels{"workload": workload})
}
