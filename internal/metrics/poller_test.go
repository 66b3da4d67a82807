package metrics

import (
	"strings"
	"testing"
)

func TestParseWorkerMetrics(t *testing.T) {
	exposition := `# HELP worker_throughput Inference throughput
# TYPE worker_throughput gauge
worker_throughput 31.5
# HELP worker_latency_ms Average inference latency
# TYPE worker_latency_ms gauge
worker_latency_ms 12.25
`
	m, err := ParseWorkerMetrics(strings.NewReader(exposition))
	if err != nil {
		t.Fatalf("ParseWorkerMetrics failed: %v", err)
	}
	if m.Throughput != 31.5 {
		t.Errorf("Throughput = %f, want 31.5", m.Throughput)
	}
	if m.LatencyMS != 12.25 {
		t.Errorf("LatencyMS = %f, want 12.25", m.LatencyMS)
	}
	if m.ScrapedAt.IsZero() {
		t.Error("ScrapedAt not set")
	}
	if m.Streams != nil {
		t.Errorf("no stream family exposed, got %v", m.Streams)
	}
}

func TestParseWorkerMetricsPerStream(t *testing.T) {
	exposition := `# HELP worker_throughput Inference throughput
# TYPE worker_throughput gauge
worker_throughput 58.2
# HELP worker_stream_fps Per-stream throughput
# TYPE worker_stream_fps gauge
worker_stream_fps{stream="0"} 29.1
worker_stream_fps{stream="1"} 29.1
`
	m, err := ParseWorkerMetrics(strings.NewReader(exposition))
	if err != nil {
		t.Fatalf("ParseWorkerMetrics failed: %v", err)
	}
	if len(m.Streams) != 2 {
		t.Fatalf("Streams = %v, want 2 entries", m.Streams)
	}
	if m.Streams["0"] != 29.1 || m.Streams["1"] != 29.1 {
		t.Errorf("stream values = %v", m.Streams)
	}
}

func TestParseWorkerMetricsMissingFamilies(t *testing.T) {
	exposition := `# TYPE some_other_metric counter
some_other_metric 5
`
	m, err := ParseWorkerMetrics(strings.NewReader(exposition))
	if err != nil {
		t.Fatalf("ParseWorkerMetrics failed: %v", err)
	}
	if m.Throughput != 0 || m.LatencyMS != 0 {
		t.Errorf("missing families should parse to zero values, got %+v", m)
	}
}

func TestParseWorkerMetricsGarbage(t *testing.T) {
	if _, err := ParseWorkerMetrics(strings.NewReader("{not prometheus}")); err == nil {
		t.Error("expected parse error for malformed exposition")
	}
}
