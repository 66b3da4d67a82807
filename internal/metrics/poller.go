package metrics

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/store"
)

// WorkerMetrics is the per-workload performance snapshot scraped from a
// worker's metrics endpoint.
type WorkerMetrics struct {
	Throughput float64            `json:"throughput"` // fps for vision, tokens/s otherwise
	LatencyMS  float64            `json:"latency_ms"`
	Streams    map[string]float64 `json:"streams,omitempty"` // per-stream fps, vision workers only
	ScrapedAt  time.Time          `json:"scraped_at"`
}

// Metric families exposed by the workers
const (
	familyThroughput = "worker_throughput"
	familyLatency    = "worker_latency_ms"
	familyStreamFPS  = "worker_stream_fps"

	streamLabel = "stream"
)

// Poller scrapes the metrics endpoints of active workers and republishes
// the values through the daemon exporter.
type Poller struct {
	store    store.Store
	exporter *Exporter
	interval time.Duration
	client   *http.Client

	mu     sync.RWMutex
	latest map[int]WorkerMetrics
}

// NewPoller creates a worker metrics poller
func NewPoller(s store.Store, exporter *Exporter, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		store:    s,
		exporter: exporter,
		interval: interval,
		client:   &http.Client{Timeout: 3 * time.Second},
		latest:   make(map[int]WorkerMetrics),
	}
}

// Run polls in a loop until the context is cancelled
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("Worker metrics poller started (interval %s)", p.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("Worker metrics poller stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	workloads, err := p.store.GetWorkloadsByStatus(models.StatusActive)
	if err != nil {
		log.Printf("Warning: failed to list active workloads: %v", err)
		return
	}

	p.exporter.SetWorkloadCounts(p.store.GetAllWorkloads())

	seen := make(map[int]bool, len(workloads))
	for _, w := range workloads {
		if w.Port == 0 {
			continue
		}
		seen[w.ID] = true
		m, err := p.scrape(ctx, w.Port)
		if err != nil {
			log.Printf("Warning: failed to scrape %s: %v", w.ProcessName(), err)
			continue
		}
		p.mu.Lock()
		p.latest[w.ID] = m
		p.mu.Unlock()
		p.exporter.SetWorkerMetrics(w.ProcessName(), m)
	}

	// Drop series for workloads no longer active
	p.mu.Lock()
	for id := range p.latest {
		if !seen[id] {
			delete(p.latest, id)
			p.exporter.ForgetWorker(fmt.Sprintf("workload-%d", id))
		}
	}
	p.mu.Unlock()
}

// scrape fetches and parses one worker's Prometheus text exposition
func (p *Poller) scrape(ctx context.Context, port int) (WorkerMetrics, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WorkerMetrics{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return WorkerMetrics{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return WorkerMetrics{}, fmt.Errorf("metrics endpoint returned %d", resp.StatusCode)
	}
	return ParseWorkerMetrics(resp.Body)
}

// ParseWorkerMetrics decodes the worker metric families from Prometheus
// text format.
func ParseWorkerMetrics(r io.Reader) (WorkerMetrics, error) {
	parser := expfmt.NewTextParser(model.NameValidationScheme)
	families, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return WorkerMetrics{}, fmt.Errorf("failed to parse worker metrics: %w", err)
	}

	m := WorkerMetrics{ScrapedAt: time.Now()}
	if f, ok := families[familyThroughput]; ok {
		m.Throughput = firstValue(f)
	}
	if f, ok := families[familyLatency]; ok {
		m.LatencyMS = firstValue(f)
	}
	if f, ok := families[familyStreamFPS]; ok {
		streams := make(map[string]float64, len(f.Metric))
		for _, metric := range f.Metric {
			for _, label := range metric.Label {
				if label.GetName() == streamLabel {
					streams[label.GetValue()] = metricValue(metric)
				}
			}
		}
		if len(streams) > 0 {
			m.Streams = streams
		}
	}
	return m, nil
}

func firstValue(f *dto.MetricFamily) float64 {
	if len(f.Metric) == 0 {
		return 0
	}
	return metricValue(f.Metric[0])
}

func metricValue(m *dto.Metric) float64 {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Untyped != nil:
		return m.Untyped.GetValue()
	}
	return 0
}

// Latest returns the most recent metrics for a workload
func (p *Poller) Latest(id int) (WorkerMetrics, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	m, ok := p.latest[id]
	return m, ok
}

// All returns the most recent metrics for every scraped workload
func (p *Poller) All() map[int]WorkerMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[int]WorkerMetrics, len(p.latest))
	for id, m := range p.latest {
		out[id] = m
	}
	return out
}
