// Package history keeps a bounded window of recent snapshots per process.
// Windows are only shortened by capacity (oldest first) or by the process
// disappearing from the live set.
package history

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/collector"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// DefaultSize is the number of samples kept per process.
const DefaultSize = 60

// Store holds the per-PID sample windows. It is safe for concurrent use.
type Store struct {
	source collector.Source
	size   int
	logger *zap.Logger

	mu      sync.RWMutex
	windows map[int32]*window
}

// SampleStats summarizes one call to Sample.
type SampleStats struct {
	Sampled  int
	Vanished int
	Denied   int
	Failed   int
}

// New creates a store that samples from source and keeps size samples per PID.
func New(source collector.Source, size int, logger *zap.Logger) *Store {
	if size < 1 {
		size = DefaultSize
	}
	return &Store{
		source:  source,
		size:    size,
		logger:  logger,
		windows: make(map[int32]*window),
	}
}

// Sample queries the source once and appends a snapshot for every process
// read successfully. Processes that vanish or deny access are skipped for
// this sweep. An error is returned only if the source itself failed.
func (s *Store) Sample(ctx context.Context) (SampleStats, error) {
	readings, err := s.source.Snapshot(ctx)
	if err != nil {
		return SampleStats{}, err
	}

	var stats SampleStats
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		switch r.Status {
		case collector.StatusOK:
			w, ok := s.windows[r.PID]
			if !ok {
				w = newWindow(s.size)
				s.windows[r.PID] = w
			}
			w.push(r.Snapshot)
			stats.Sampled++
		case collector.StatusVanished:
			stats.Vanished++
		case collector.StatusDenied:
			stats.Denied++
		default:
			stats.Failed++
			s.logger.Debug("Process read failed",
				zap.Int32("pid", r.PID),
				zap.Error(r.Err))
		}
	}
	return stats, nil
}

// Add appends a snapshot directly. It is used when snapshots come from a
// source other than the store's own.
func (s *Store) Add(snap models.ProcessSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[snap.PID]
	if !ok {
		w = newWindow(s.size)
		s.windows[snap.PID] = w
	}
	w.push(snap)
}

// CleanupDead drops the history of every PID that is no longer running and
// returns how many were removed.
func (s *Store) CleanupDead(ctx context.Context) (int, error) {
	live, err := s.source.LivePIDs(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for pid := range s.windows {
		if _, ok := live[pid]; !ok {
			delete(s.windows, pid)
			removed++
		}
	}
	return removed, nil
}

// Latest returns the most recent snapshot of pid.
func (s *Store) Latest(pid int32) (models.ProcessSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[pid]
	if !ok || w.len() == 0 {
		return models.ProcessSnapshot{}, false
	}
	return w.latest(), true
}

// AllLatest returns the newest snapshot of every tracked PID, ordered by PID.
func (s *Store) AllLatest() []models.ProcessSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ProcessSnapshot, 0, len(s.windows))
	for _, pid := range s.sortedPIDs() {
		if w := s.windows[pid]; w.len() > 0 {
			out = append(out, w.latest())
		}
	}
	return out
}

// Window returns a copy of the samples of pid, oldest first.
func (s *Store) Window(pid int32) []models.ProcessSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[pid]
	if !ok {
		return nil
	}
	return w.slice()
}

// Each calls fn with every tracked PID and its samples (oldest first), in
// ascending PID order. fn must not retain samples.
func (s *Store) Each(fn func(pid int32, samples []models.ProcessSnapshot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, pid := range s.sortedPIDs() {
		fn(pid, s.windows[pid].slice())
	}
}

// PIDs returns the tracked PIDs in ascending order.
func (s *Store) PIDs() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedPIDs()
}

// Len returns the number of tracked PIDs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.windows)
}

// Size returns the per-PID capacity.
func (s *Store) Size() int { return s.size }

// sortedPIDs must be called with s.mu held.
func (s *Store) sortedPIDs() []int32 {
	pids := make([]int32, 0, len(s.windows))
	for pid := range s.windows {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	return pids
}
