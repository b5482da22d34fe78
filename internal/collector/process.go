// Process source: enumerates processes and controls individual ones.
// Uses gopsutil for cross-platform process listing.
package collector

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// normalizedStatuses maps raw gopsutil status strings to a consistent set of
// values used across all platforms.
var normalizedStatuses = map[string]string{
	"running":               "running",
	"sleeping":              "sleeping",
	"idle":                  "idle",
	"stopped":               "stopped",
	"zombie":                "zombie",
	"wait":                  "sleeping",
	"lock":                  "sleeping",
	"sleep":                 "sleeping",
	"disk-sleep":            "sleeping",
	"tracing-stop":          "stopped",
	"dead":                  "zombie",
	"wake-kill":             "sleeping",
	"waking":                "running",
	"parked":                "idle",
	"idle-interrupt":        "idle",
	"suspended":             "stopped",
	"uninterruptible-sleep": "sleeping",
}

// normalizeStatus maps a raw gopsutil status string to a consistent value.
// If the status is empty it is inferred from CPU usage.
func normalizeStatus(raw string, cpuPct float64) string {
	if raw != "" {
		key := strings.ToLower(strings.TrimSpace(raw))
		if mapped, ok := normalizedStatuses[key]; ok {
			return mapped
		}
		return key
	}

	// Empty status (common on Windows)
	if cpuPct > 0 {
		return "running"
	}
	return "idle"
}

// waitPollInterval is how often WaitExit re-checks a process.
const waitPollInterval = 100 * time.Millisecond

// ProcessSource implements Source and Controller on top of gopsutil.
//
// gopsutil computes a process's CPU percent relative to the previous call on
// the same *process.Process, so handles are cached per PID across sweeps.
// The first reading of a new PID is therefore 0.
type ProcessSource struct {
	opTimeout time.Duration

	mu    sync.Mutex
	procs map[int32]*process.Process
}

// NewProcessSource creates a source whose individual process reads are
// bounded by opTimeout.
func NewProcessSource(opTimeout time.Duration) *ProcessSource {
	return &ProcessSource{
		opTimeout: opTimeout,
		procs:     make(map[int32]*process.Process),
	}
}

// Snapshot reads every live process. A process that disappears or refuses
// access mid-read is reported with the matching Status and does not fail
// the snapshot.
func (s *ProcessSource) Snapshot(ctx context.Context) ([]Reading, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live := make(map[int32]struct{}, len(pids))
	now := time.Now().UTC()
	readings := make([]Reading, 0, len(pids))

	for _, pid := range pids {
		if ctx.Err() != nil {
			return readings, ctx.Err()
		}
		live[pid] = struct{}{}

		p, ok := s.procs[pid]
		if !ok {
			p = &process.Process{Pid: pid}
			s.procs[pid] = p
		}

		snap, err := s.read(ctx, p)
		if err != nil {
			readings = append(readings, Reading{PID: pid, Status: Classify(err), Err: err})
			continue
		}
		snap.SampledAt = now
		readings = append(readings, Reading{PID: pid, Snapshot: snap, Status: StatusOK})
	}

	for pid := range s.procs {
		if _, ok := live[pid]; !ok {
			delete(s.procs, pid)
		}
	}

	return readings, nil
}

// read gathers one snapshot under the per-operation timeout. The name and
// CPU reads are mandatory; the rest degrade to zero values.
func (s *ProcessSource) read(ctx context.Context, p *process.Process) (models.ProcessSnapshot, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	name, err := p.NameWithContext(opCtx)
	if err != nil {
		return models.ProcessSnapshot{}, err
	}
	cpuPct, err := p.PercentWithContext(opCtx, 0)
	if err != nil {
		return models.ProcessSnapshot{}, err
	}
	memPct, _ := p.MemoryPercentWithContext(opCtx)
	cmdline, _ := p.CmdlineWithContext(opCtx)
	status, _ := p.StatusWithContext(opCtx)
	created, _ := p.CreateTimeWithContext(opCtx)

	rawStatus := ""
	if len(status) > 0 {
		rawStatus = status[0]
	}

	return models.ProcessSnapshot{
		PID:     p.Pid,
		Name:    name,
		Cmdline: cmdline,
		CPU:     cpuPct,
		Memory:  float64(memPct),
		Status:  normalizeStatus(rawStatus, cpuPct),

		CreateTime: created,
	}, nil
}

// LivePIDs returns the set of running process IDs.
func (s *ProcessSource) LivePIDs(ctx context.Context) (map[int32]struct{}, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing processes: %w", err)
	}
	live := make(map[int32]struct{}, len(pids))
	for _, pid := range pids {
		live[pid] = struct{}{}
	}
	return live, nil
}

// open returns a fresh handle for pid, failing with ErrVanished if the
// process is gone.
func (s *ProcessSource) open(ctx context.Context, pid int32) (*process.Process, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if Classify(err) == StatusVanished {
			return nil, fmt.Errorf("pid %d: %w", pid, ErrVanished)
		}
		return nil, fmt.Errorf("pid %d: %w", pid, err)
	}
	return p, nil
}

// Name resolves the current process name.
func (s *ProcessSource) Name(ctx context.Context, pid int32) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	p, err := s.open(opCtx, pid)
	if err != nil {
		return "", err
	}
	name, err := p.NameWithContext(opCtx)
	if err != nil {
		return "", fmt.Errorf("pid %d name: %w", pid, err)
	}
	return name, nil
}

// StartTime returns the creation time of pid in Unix milliseconds.
func (s *ProcessSource) StartTime(ctx context.Context, pid int32) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	p, err := s.open(opCtx, pid)
	if err != nil {
		return 0, err
	}
	created, err := p.CreateTimeWithContext(opCtx)
	if err != nil {
		return 0, fmt.Errorf("pid %d create time: %w", pid, err)
	}
	return created, nil
}

// Terminate requests a graceful exit.
func (s *ProcessSource) Terminate(ctx context.Context, pid int32) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	p, err := s.open(opCtx, pid)
	if err != nil {
		return err
	}
	if err := p.TerminateWithContext(opCtx); err != nil {
		return fmt.Errorf("pid %d terminate: %w", pid, err)
	}
	return nil
}

// Kill forcefully stops the process.
func (s *ProcessSource) Kill(ctx context.Context, pid int32) error {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	p, err := s.open(opCtx, pid)
	if err != nil {
		return err
	}
	if err := p.KillWithContext(opCtx); err != nil {
		return fmt.Errorf("pid %d kill: %w", pid, err)
	}
	return nil
}

// WaitExit polls until pid is no longer running. Processes that are not our
// children cannot be waited on directly, so polling is the portable option.
func (s *ProcessSource) WaitExit(ctx context.Context, pid int32, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		running, err := s.running(ctx, pid)
		if err != nil {
			if Classify(err) == StatusVanished {
				return nil
			}
			return err
		}
		if !running {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("pid %d still running after %s: %w", pid, timeout, ErrTimeout)
		case <-ticker.C:
		}
	}
}

func (s *ProcessSource) running(ctx context.Context, pid int32) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	exists, err := process.PidExistsWithContext(opCtx, pid)
	if err != nil || !exists {
		return false, err
	}
	p := &process.Process{Pid: pid}
	// A zombie has exited; only its parent can reap it.
	status, _ := p.StatusWithContext(opCtx)
	if len(status) > 0 && normalizeStatus(status[0], 0) == "zombie" {
		return false, nil
	}
	return true, nil
}
