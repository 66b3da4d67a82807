package sysmon

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/inferd/inferd/pkg/models"
)

// GPUBusyPercent reads the busy percentage of the first GPU from sysfs.
// Returns NotAvailable when no GPU exposes the counter.
func GPUBusyPercent() float64 {
	entries, err := os.ReadDir(drmRoot)
	if err != nil {
		return models.NotAvailable
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		p := filepath.Join(drmRoot, name, "device", "gpu_busy_percent")
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil {
			continue
		}
		return v
	}
	return models.NotAvailable
}

// npuBusyReader derives NPU utilization from the driver's cumulative busy
// time counter by sampling it over wall-clock intervals.
type npuBusyReader struct {
	lastBusy time.Duration
	lastAt   time.Time
}

// Percent returns NPU utilization since the previous call, or NotAvailable
// when the driver exposes no counter.
func (r *npuBusyReader) Percent() float64 {
	busy, ok := npuBusyTime()
	if !ok {
		return models.NotAvailable
	}
	now := time.Now()
	defer func() {
		r.lastBusy = busy
		r.lastAt = now
	}()

	if r.lastAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(r.lastAt)
	if elapsed <= 0 {
		return 0
	}
	pct := float64(busy-r.lastBusy) / float64(elapsed) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}

// npuBusyTime reads the cumulative busy time of the first NPU device
func npuBusyTime() (time.Duration, bool) {
	entries, err := os.ReadDir(npuRoot)
	if err != nil {
		return 0, false
	}
	for _, e := range entries {
		p := filepath.Join(npuRoot, e.Name(), "npu_busy_time_us")
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			continue
		}
		return time.Duration(us) * time.Microsecond, true
	}
	return 0, false
}
