// System utilization sampler: overall CPU and RAM usage in percent.
// Uses gopsutil for cross-platform metrics.
package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostSampler implements SystemSampler.
type HostSampler struct {
	window time.Duration
}

// NewHostSampler creates a sampler whose CPU reading blocks for window to
// measure utilization. A zero window compares against the previous call.
func NewHostSampler(window time.Duration) *HostSampler {
	return &HostSampler{window: window}
}

// CPUPercent returns overall CPU utilization.
func (s *HostSampler) CPUPercent(ctx context.Context) (float64, error) {
	overall, err := cpu.PercentWithContext(ctx, s.window, false)
	if err != nil {
		return 0, err
	}
	if len(overall) == 0 {
		return 0, nil
	}
	return overall[0], nil
}

// MemoryPercent returns the share of physical memory in use.
func (s *HostSampler) MemoryPercent(ctx context.Context) (float64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}
