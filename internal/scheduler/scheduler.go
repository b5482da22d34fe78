// Package scheduler drives the two periodic loops of the monitor: the
// monitor loop samples processes and runs detection, the heal loop acts on
// the most recent detection results. The loops share nothing but the
// pending issue set, so a slow heal never delays sampling.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/collector"
	"github.com/KarmveerSingh18/prototype-4/internal/healer"
	"github.com/KarmveerSingh18/prototype-4/internal/history"
	"github.com/KarmveerSingh18/prototype-4/internal/metrics"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// Loop names used in logs and metrics.
const (
	LoopMonitor = "monitor"
	LoopHeal    = "heal"
)

// monitorSweepTimeout bounds a single sample-and-detect pass.
const monitorSweepTimeout = 30 * time.Second

// History is the sampling side of the history store.
type History interface {
	Sample(ctx context.Context) (history.SampleStats, error)
	CleanupDead(ctx context.Context) (int, error)
	Len() int
}

// Detector produces the issues for the current history.
type Detector interface {
	DetectAll() []models.Issue
}

// Healer acts on a batch of issues.
type Healer interface {
	Sweep(ctx context.Context, issues []models.Issue) []healer.Result
}

// Config holds the loop intervals.
type Config struct {
	MonitorInterval time.Duration
	HealInterval    time.Duration
	HealEnabled     bool
}

// Deps are the components the loops drive. System and Events are optional.
type Deps struct {
	History  History
	Detector Detector
	Healer   Healer
	System   collector.SystemSampler
	Events   healer.Recorder
}

// Scheduler runs the monitor and heal loops.
type Scheduler struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger

	mu      sync.Mutex
	pending []models.Issue
	fresh   bool

	// onHealed is invoked after every heal sweep. Used by tests.
	onHealed func([]healer.Result)
}

// New creates a Scheduler.
func New(cfg Config, deps Deps, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("scheduler"),
	}
}

// Start runs both loops until ctx is cancelled. Each loop runs one pass
// immediately and then on its own ticker. Start returns once both loops
// have finished their current pass.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.run(ctx, LoopMonitor, s.cfg.MonitorInterval, s.MonitorOnce)
	}()

	if s.cfg.HealEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.run(ctx, LoopHeal, s.cfg.HealInterval, s.HealOnce)
		}()
	} else {
		s.logger.Info("Healing disabled, running in monitor-only mode")
	}

	wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Loop started", zap.String("loop", name), zap.Duration("interval", interval))

	s.pass(ctx, name, pass)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx, name, pass)
		}
	}
}

// pass runs one iteration. Errors are logged and retried on the next tick.
func (s *Scheduler) pass(ctx context.Context, name string, fn func(context.Context) error) {
	metrics.IncSweep(name)
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.IncSweepError(name)
		s.logger.Warn("Sweep failed, retrying next tick", zap.String("loop", name), zap.Error(err))
	}
}

// MonitorOnce samples every process, runs detection, publishes the issues
// for the heal loop, logs them to the event log and then drops history for
// processes that have exited.
func (s *Scheduler) MonitorOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, monitorSweepTimeout)
	defer cancel()

	stats, err := s.deps.History.Sample(ctx)
	if err != nil {
		return fmt.Errorf("sampling processes: %w", err)
	}

	issues := s.deps.Detector.DetectAll()
	s.publish(issues)

	for _, is := range issues {
		metrics.IncIssue(string(is.Kind))
		if s.deps.Events != nil {
			s.deps.Events.Record(ctx, models.Event{
				PID:    is.PID,
				Name:   is.Evidence.DisplayName(),
				Kind:   string(is.Kind),
				Action: "detected",
				Detail: fmt.Sprintf("cpu=%.1f mem=%.1f status=%s", is.Evidence.CPU, is.Evidence.Memory, is.Evidence.Status),
			})
		}
	}

	removed, err := s.deps.History.CleanupDead(ctx)
	if err != nil {
		s.logger.Warn("History cleanup failed", zap.Error(err))
	}
	metrics.SetTracked(s.deps.History.Len())

	fields := []zap.Field{
		zap.Int("sampled", stats.Sampled),
		zap.Int("vanished", stats.Vanished),
		zap.Int("denied", stats.Denied),
		zap.Int("issues", len(issues)),
		zap.Int("removed", removed),
	}
	if s.deps.System != nil {
		if u, err := collector.SampleSystem(ctx, s.deps.System); err == nil {
			score, status := models.HealthScore(u)
			metrics.SetHealth(score)
			fields = append(fields,
				zap.Float64("system_cpu", u.CPU),
				zap.Float64("system_mem", u.Memory),
				zap.Float64("health", score),
				zap.String("health_status", string(status)))
		}
	}
	s.logger.Debug("Monitor sweep", fields...)
	return nil
}

// HealOnce hands the latest unprocessed detection results to the healer.
func (s *Scheduler) HealOnce(ctx context.Context) error {
	issues, ok := s.take()
	if !ok || len(issues) == 0 {
		return nil
	}

	results := s.deps.Healer.Sweep(ctx, issues)

	counts := make(map[models.Outcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	s.logger.Info("Heal sweep finished",
		zap.Int("issues", len(issues)),
		zap.Int("processes", len(results)),
		zap.Int("soft", counts[models.OutcomeSoftSuccess]),
		zap.Int("terminated", counts[models.OutcomeTerminated]),
		zap.Int("killed", counts[models.OutcomeKilled]),
		zap.Int("failed", counts[models.OutcomeHardFailed]),
		zap.Int("skipped", counts[models.OutcomeSkipped]))

	if s.onHealed != nil {
		s.onHealed(results)
	}
	return nil
}

// publish replaces the pending set with the latest detection.
func (s *Scheduler) publish(issues []models.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = issues
	s.fresh = true
}

// take returns the pending set if it has not been handed out yet.
func (s *Scheduler) take() ([]models.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fresh {
		return nil, false
	}
	s.fresh = false
	issues := s.pending
	s.pending = nil
	return issues, true
}
