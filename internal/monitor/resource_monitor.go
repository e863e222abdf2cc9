// Package monitor samples host resource usage for the engine snapshot.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// ResourceStats is one host resource sample
type ResourceStats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	CollectedAt   time.Time `json:"collected_at"`
}

// ResourceMonitor periodically samples CPU and memory usage
type ResourceMonitor struct {
	logger   *zap.Logger
	interval time.Duration

	mu     sync.RWMutex
	latest ResourceStats

	stop chan struct{}
	once sync.Once
}

// NewResourceMonitor creates a new resource monitor
func NewResourceMonitor(interval time.Duration, logger *zap.Logger) *ResourceMonitor {
	return &ResourceMonitor{
		logger:   logger.Named("resource-monitor"),
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start starts the sampling loop
func (m *ResourceMonitor) Start(ctx context.Context) {
	go m.sampleLoop(ctx)
}

// Stop stops the sampling loop
func (m *ResourceMonitor) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Stats returns the most recent sample
func (m *ResourceMonitor) Stats() ResourceStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

func (m *ResourceMonitor) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ResourceMonitor) sample() {
	cpuPercent, err := cpu.Percent(time.Second, false)
	if err != nil {
		m.logger.Error("Failed to get CPU usage", zap.Error(err))
		return
	}

	memInfo, err := mem.VirtualMemory()
	if err != nil {
		m.logger.Error("Failed to get memory usage", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.latest = ResourceStats{
		CPUPercent:    cpuPercent[0],
		MemoryPercent: memInfo.UsedPercent,
		CollectedAt:   time.Now(),
	}
	m.mu.Unlock()

	m.logger.Debug("Resources sampled",
		zap.Float64("cpu_percent", m.latest.CPUPercent),
		zap.Float64("memory_percent", m.latest.MemoryPercent))
}
