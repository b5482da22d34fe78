// Package collector is the OS-facing side of the monitor. It enumerates
// processes, reads system-wide utilization and carries out the per-process
// control operations the healer needs. Everything here is backed by gopsutil.
package collector

import (
	"context"
	"time"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// Reading is the result of reading one process during a snapshot.
// Snapshot is only meaningful when Status is StatusOK.
type Reading struct {
	PID      int32
	Snapshot models.ProcessSnapshot
	Status   Status
	Err      error
}

// Source enumerates live processes.
type Source interface {
	// Snapshot reads every live process once. Per-process failures are
	// reported in the returned readings; the error is reserved for the
	// enumeration itself failing.
	Snapshot(ctx context.Context) ([]Reading, error)

	// LivePIDs returns the set of currently running process IDs.
	LivePIDs(ctx context.Context) (map[int32]struct{}, error)
}

// Controller performs the per-process operations used during recovery.
// Every method may fail with an error that Classify maps to StatusVanished
// or StatusDenied.
type Controller interface {
	// Name resolves the current name of pid.
	Name(ctx context.Context, pid int32) (string, error)

	// StartTime returns the creation time of pid in Unix milliseconds.
	StartTime(ctx context.Context, pid int32) (int64, error)

	// Terminate asks the process to exit (SIGTERM or equivalent).
	Terminate(ctx context.Context, pid int32) error

	// Kill forcefully stops the process.
	Kill(ctx context.Context, pid int32) error

	// WaitExit blocks until pid is gone or timeout elapses, in which case
	// it returns ErrTimeout.
	WaitExit(ctx context.Context, pid int32, timeout time.Duration) error
}

// SystemSampler reads system-wide utilization.
type SystemSampler interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
}

// SampleSystem reads both CPU and memory from s. A failed memory read is
// reported but the CPU value is still returned.
func SampleSystem(ctx context.Context, s SystemSampler) (models.SystemUsage, error) {
	cpu, err := s.CPUPercent(ctx)
	if err != nil {
		return models.SystemUsage{}, err
	}
	mem, err := s.MemoryPercent(ctx)
	if err != nil {
		return models.SystemUsage{CPU: cpu}, err
	}
	return models.SystemUsage{CPU: cpu, Memory: mem}, nil
}
