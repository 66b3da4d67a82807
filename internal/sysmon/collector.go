package sysmon

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/inferd/inferd/pkg/models"
	"github.com/inferd/inferd/pkg/store"
)

// Publisher receives every sample as it is taken, typically the Prometheus
// exporter.
type Publisher interface {
	SetUtilization(models.UtilizationSample)
}

// Collector periodically samples host utilization and persists the samples
// for the dashboard charts and report export.
type Collector struct {
	store     store.Store
	interval  time.Duration
	retention time.Duration
	npu       npuBusyReader

	mu        sync.RWMutex
	latest    models.UtilizationSample
	publisher Publisher
}

// NewCollector creates a collector sampling at the given interval and
// pruning samples older than the retention window.
func NewCollector(s store.Store, interval, retention time.Duration) *Collector {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if retention <= 0 {
		retention = time.Hour
	}
	return &Collector{store: s, interval: interval, retention: retention}
}

// SetPublisher forwards every sample to p in addition to the store
func (c *Collector) SetPublisher(p Publisher) {
	c.mu.Lock()
	c.publisher = p
	c.mu.Unlock()
}

// Run samples in a loop until the context is cancelled
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Prune far less often than we sample
	prune := time.NewTicker(10 * time.Minute)
	defer prune.Stop()

	log.Printf("System monitor started (interval %s, retention %s)", c.interval, c.retention)
	for {
		select {
		case <-ctx.Done():
			log.Println("System monitor stopped")
			return
		case <-ticker.C:
			sample := c.Sample()
			if err := c.store.AddSample(&sample); err != nil {
				log.Printf("Warning: failed to store utilization sample: %v", err)
			}
		case <-prune.C:
			if err := c.store.PruneSamples(c.retention); err != nil {
				log.Printf("Warning: failed to prune utilization samples: %v", err)
			}
		}
	}
}

// Sample reads current host utilization and records it as the latest snapshot
func (c *Collector) Sample() models.UtilizationSample {
	sample := models.UtilizationSample{
		Timestamp:  time.Now().UnixMilli(),
		GPUPercent: GPUBusyPercent(),
		NPUPercent: c.npu.Percent(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}
	if perCore, err := cpu.Percent(0, true); err == nil {
		sample.PerCore = perCore
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		sample.MemoryPercent = vm.UsedPercent
		sample.MemoryUsed = vm.Used
		sample.MemoryTotal = vm.Total
	}

	c.mu.Lock()
	c.latest = sample
	publisher := c.publisher
	c.mu.Unlock()

	if publisher != nil {
		publisher.SetUtilization(sample)
	}
	return sample
}

// Latest returns the most recent sample
func (c *Collector) Latest() models.UtilizationSample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}
