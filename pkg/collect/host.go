// Package collect samples host CPU and memory usage and feeds the
// samples into the metric pipeline as a built-in source.
package collect

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lodestar-sh/lodestar/pkg/core"
)

// HostSourceID is the source id host samples are tagged with.
const HostSourceID = "host"

// Sink receives collected samples.
type Sink func(core.MetricPoint)

// HostCollector polls gopsutil on a fixed interval.
type HostCollector struct {
	interval time.Duration
	sink     Sink
	logger   *slog.Logger
	now      func() time.Time

	// swapped out by tests
	cpuPercent func() ([]float64, error)
	memUsage   func() (*mem.VirtualMemoryStat, error)
}

// NewHost creates a host collector pushing samples into sink.
func NewHost(interval time.Duration, sink Sink, logger *slog.Logger) *HostCollector {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HostCollector{
		interval:   interval,
		sink:       sink,
		logger:     logger,
		now:        time.Now,
		cpuPercent: func() ([]float64, error) { return cpu.Percent(0, false) },
		memUsage:   mem.VirtualMemory,
	}
}

// Run samples until the context is cancelled.
func (c *HostCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *HostCollector) sample() {
	ts := c.now().UnixMilli()

	if pct, err := c.cpuPercent(); err != nil {
		c.logger.Warn("cpu sample failed", "err", err)
	} else if len(pct) > 0 {
		c.sink(core.MetricPoint{TsUnixMs: ts, SourceID: HostSourceID, Kind: core.KindCPUPercent, Value: pct[0]})
	}

	if vm, err := c.memUsage(); err != nil {
		c.logger.Warn("memory sample failed", "err", err)
	} else {
		c.sink(core.MetricPoint{TsUnixMs: ts, SourceID: HostSourceID, Kind: core.KindMemoryPercent, Value: vm.UsedPercent})
		c.sink(core.MetricPoint{TsUnixMs: ts, SourceID: HostSourceID, Kind: core.KindMemoryBytes, Value: float64(vm.Used)})
	}
}
