// Package healer runs the graduated recovery sequence for detected issues:
// lower the process priority first and, if the system does not recover
// enough, terminate it (escalating to a kill), optionally relaunch it, and
// record the measured gain in the optimization ledger.
package healer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/collector"
	"github.com/KarmveerSingh18/prototype-4/internal/metrics"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
	"github.com/KarmveerSingh18/prototype-4/internal/platform"
	"github.com/KarmveerSingh18/prototype-4/internal/whitelist"
)

// Skip reasons.
const (
	ReasonWhitelisted = "whitelisted"
	ReasonProtected   = "protected"
)

// ErrIdentityChanged reports that the PID of an issue now belongs to a
// different process than the one that was detected.
var ErrIdentityChanged = errors.New("pid belongs to a different process")

// DefaultProtected lists system processes that are never healed.
var DefaultProtected = []string{
	"System", "Registry", "svchost.exe", "smss.exe", "wininit.exe",
	"lsass.exe", "csrss.exe", "services.exe",
	"init", "systemd", "launchd", "kernel_task",
}

// Config holds the recovery parameters.
type Config struct {
	// SoftImprovement is the relative CPU drop (0..1) that counts as a
	// successful soft recovery.
	SoftImprovement  float64
	SettleWait       time.Duration
	RecoverySettle   time.Duration
	TerminateTimeout time.Duration
	KillTimeout      time.Duration

	Protected []string
	// Restart maps a process name to the argv used to relaunch it.
	Restart      map[string][]string
	RestartBurst int
	RestartPer   time.Duration
}

// DefaultConfig returns the production recovery parameters.
func DefaultConfig() Config {
	return Config{
		SoftImprovement:  0.30,
		SettleWait:       2 * time.Second,
		RecoverySettle:   2 * time.Second,
		TerminateTimeout: 5 * time.Second,
		KillTimeout:      3 * time.Second,
		Protected:        DefaultProtected,
		RestartBurst:     3,
		RestartPer:       10 * time.Minute,
	}
}

// Whitelist is the exemption list as seen by the healer.
type Whitelist interface {
	Load() []string
	IsWhitelisted(name string) bool
}

// Ledger receives one record per completed recovery.
type Ledger interface {
	Append(models.OptimizationRecord) error
}

// Recorder receives event log entries. It must not block for long.
type Recorder interface {
	Record(ctx context.Context, e models.Event)
}

// Deps are the collaborators a Healer drives.
type Deps struct {
	Controller  collector.Controller
	Sampler     collector.SystemSampler
	Prioritizer platform.Prioritizer
	Whitelist   Whitelist
	Ledger      Ledger
	Events      Recorder
	Launcher    Launcher
}

// Result describes one healing invocation.
type Result struct {
	ActionID   string
	PID        int32
	Name       string
	Cause      string
	Outcome    models.Outcome
	SkipReason string
	Priority   *platform.PriorityChange
	Restart    *models.RestartResult
	Record     *models.OptimizationRecord
	Err        error
}

// Healer runs the recovery state machine. A Healer is driven by a single
// sweep loop and is not meant to run concurrent sweeps.
type Healer struct {
	cfg       Config
	deps      Deps
	logger    *zap.Logger
	protected map[string]struct{}
	restart   map[string][]string
	limiter   *restartLimiter
	selfPID   int32
	now       func() time.Time
}

// New creates a Healer.
func New(cfg Config, deps Deps, logger *zap.Logger) *Healer {
	protected := make(map[string]struct{}, len(cfg.Protected))
	for _, n := range cfg.Protected {
		protected[whitelist.Normalize(n)] = struct{}{}
	}
	restart := make(map[string][]string, len(cfg.Restart))
	for n, argv := range cfg.Restart {
		restart[whitelist.Normalize(n)] = argv
	}
	if deps.Launcher == nil {
		deps.Launcher = NewExecLauncher(logger)
	}
	return &Healer{
		cfg:       cfg,
		deps:      deps,
		logger:    logger.Named("healer"),
		protected: protected,
		restart:   restart,
		limiter:   newRestartLimiter(cfg.RestartBurst, cfg.RestartPer),
		selfPID:   int32(os.Getpid()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep reloads the whitelist, then heals every distinct PID in issues once,
// in the order the PIDs first appear. Overlapping issues for one PID are
// folded into the recorded cause. Cancellation stops the sweep between items.
func (h *Healer) Sweep(ctx context.Context, issues []models.Issue) []Result {
	names := h.deps.Whitelist.Load()

	var order []int32
	first := make(map[int32]models.Issue)
	kinds := make(map[int32][]string)
	for _, is := range issues {
		if _, seen := first[is.PID]; !seen {
			order = append(order, is.PID)
			first[is.PID] = is
		}
		if !contains(kinds[is.PID], string(is.Kind)) {
			kinds[is.PID] = append(kinds[is.PID], string(is.Kind))
		}
	}

	h.logger.Debug("Healer sweep",
		zap.Int("issues", len(issues)),
		zap.Int("processes", len(order)),
		zap.Int("whitelisted_names", len(names)))

	results := make([]Result, 0, len(order))
	for _, pid := range order {
		if ctx.Err() != nil {
			break
		}
		res := h.heal(ctx, first[pid], strings.Join(kinds[pid], ","))
		metrics.IncOutcome(string(res.Outcome))
		results = append(results, res)
	}
	return results
}

// Heal runs the recovery sequence for a single issue against the
// whitelist as last loaded.
func (h *Healer) Heal(ctx context.Context, issue models.Issue) Result {
	res := h.heal(ctx, issue, string(issue.Kind))
	metrics.IncOutcome(string(res.Outcome))
	return res
}

func (h *Healer) heal(ctx context.Context, issue models.Issue, cause string) Result {
	res := Result{
		ActionID: uuid.NewString(),
		PID:      issue.PID,
		Cause:    cause,
	}
	log := h.logger.With(zap.Int32("pid", issue.PID), zap.String("cause", cause))

	// Evaluating
	name, err := h.identify(ctx, issue)
	res.Name = name
	if err != nil {
		res.Outcome = models.OutcomeAborted
		res.Err = err
		if errors.Is(err, ErrIdentityChanged) {
			log.Info("PID reused since detection, leaving new process alone", zap.Error(err))
		} else {
			log.Debug("Process not resolvable, nothing to heal",
				zap.String("status", collector.Classify(err).String()),
				zap.Error(err))
		}
		return res
	}
	log = log.With(zap.String("name", name))

	if h.isProtected(issue.PID, name) {
		return h.skip(ctx, res, ReasonProtected)
	}
	if h.deps.Whitelist.IsWhitelisted(name) {
		return h.skip(ctx, res, ReasonWhitelisted)
	}

	h.event(ctx, res, models.ActionHealStart, fmt.Sprintf("cause=%s cpu=%.1f mem=%.1f", cause, issue.Evidence.CPU, issue.Evidence.Memory))

	// SoftRecovery
	// Without a CPU baseline soft recovery cannot be judged, so nothing is
	// touched and the process is picked up again by a later sweep.
	baseCPU, err := h.deps.Sampler.CPUPercent(ctx)
	if err != nil {
		res.Outcome = models.OutcomeAborted
		res.Err = fmt.Errorf("baseline cpu sample: %w", err)
		h.event(ctx, res, models.ActionBaselineFailed, err.Error())
		log.Warn("Baseline CPU sample failed, deferring recovery", zap.Error(err))
		return res
	}
	before := models.SystemUsage{CPU: baseCPU}
	if mem, err := h.deps.Sampler.MemoryPercent(ctx); err == nil {
		before.Memory = mem
	} else {
		// A zero baseline clamps the memory gain to zero.
		log.Warn("Baseline memory sample failed", zap.Error(err))
	}

	change, err := h.deps.Prioritizer.Lower(ctx, issue.PID)
	if err != nil {
		if collector.Classify(err) == collector.StatusVanished {
			res.Outcome = models.OutcomeAborted
			res.Err = err
			log.Debug("Process exited before priority change")
			return res
		}
		log.Warn("Priority change failed, escalating to hard recovery", zap.Error(err))
		h.event(ctx, res, models.ActionPriorityFailed, err.Error())
	} else {
		res.Priority = &change
		h.event(ctx, res, models.ActionPriorityLowered,
			fmt.Sprintf("old=%d new=%d fallback=%t at_floor=%t", change.Old, change.New, change.Fallback, change.AtFloor))

		if err := sleep(ctx, h.cfg.SettleWait); err != nil {
			res.Outcome = models.OutcomeAborted
			res.Err = err
			return res
		}

		afterSoft, err := h.deps.Sampler.CPUPercent(ctx)
		switch {
		case err != nil:
			log.Warn("Post-soft CPU sample failed", zap.Error(err))
		case h.softSucceeded(before.CPU, afterSoft):
			afterMem, err := h.deps.Sampler.MemoryPercent(ctx)
			if err != nil {
				afterMem = before.Memory
			}
			after := models.SystemUsage{CPU: afterSoft, Memory: afterMem}
			res.Outcome = models.OutcomeSoftSuccess
			h.event(ctx, res, models.ActionSoftSuccess, fmt.Sprintf("cpu %.1f -> %.1f", before.CPU, afterSoft))
			log.Info("Soft recovery succeeded",
				zap.Float64("cpu_before", before.CPU),
				zap.Float64("cpu_after", afterSoft))
			h.record(ctx, &res, before, after)
			return res
		default:
			log.Info("Soft recovery insufficient, escalating",
				zap.Float64("cpu_before", before.CPU),
				zap.Float64("cpu_after", afterSoft))
		}
	}

	// HardRecovery
	if _, err := h.identify(ctx, issue); errors.Is(err, ErrIdentityChanged) {
		res.Outcome = models.OutcomeAborted
		res.Err = err
		log.Info("PID reused during soft recovery, not terminating", zap.Error(err))
		return res
	}
	res.Outcome = h.hardRecover(ctx, &res, log)

	// RestartAttempt
	if res.Outcome.Removed() {
		res.Restart = h.relaunch(ctx, &res, log)
	}

	// Recorded
	_ = sleep(ctx, h.cfg.RecoverySettle)
	h.record(ctx, &res, before, h.sampleAfter(ctx, before))
	return res
}

// identify resolves the current name of the issue's PID and checks that it
// is still the process captured in the evidence. Evidence fields that were
// not captured are not compared.
func (h *Healer) identify(ctx context.Context, issue models.Issue) (string, error) {
	name, err := h.deps.Controller.Name(ctx, issue.PID)
	if err != nil {
		return "", err
	}
	ev := issue.Evidence
	if ev.Name != "" && whitelist.Normalize(ev.Name) != whitelist.Normalize(name) {
		return name, fmt.Errorf("pid %d was %q, now %q: %w", issue.PID, ev.Name, name, ErrIdentityChanged)
	}
	if ev.CreateTime == 0 {
		return name, nil
	}
	started, err := h.deps.Controller.StartTime(ctx, issue.PID)
	switch {
	case err == nil:
		if started != ev.CreateTime {
			return name, fmt.Errorf("pid %d started at %d, detected process at %d: %w",
				issue.PID, started, ev.CreateTime, ErrIdentityChanged)
		}
	case collector.Classify(err) == collector.StatusVanished:
		return name, err
	default:
		h.logger.Debug("Start time unavailable, matched on name only",
			zap.Int32("pid", issue.PID), zap.Error(err))
	}
	return name, nil
}

// softSucceeded reports whether CPU dropped by at least SoftImprovement.
func (h *Healer) softSucceeded(beforeCPU, afterCPU float64) bool {
	return afterCPU < beforeCPU*(1-h.cfg.SoftImprovement)
}

func (h *Healer) hardRecover(ctx context.Context, res *Result, log *zap.Logger) models.Outcome {
	pid := res.PID

	err := h.deps.Controller.Terminate(ctx, pid)
	switch collector.Classify(err) {
	case collector.StatusOK:
		werr := h.deps.Controller.WaitExit(ctx, pid, h.cfg.TerminateTimeout)
		if werr == nil {
			h.event(ctx, *res, models.ActionTerminated, "exited after terminate")
			log.Info("Process terminated")
			return models.OutcomeTerminated
		}
		log.Warn("Process did not exit after terminate, killing", zap.Error(werr))
	case collector.StatusVanished:
		h.event(ctx, *res, models.ActionTerminated, "exited before terminate")
		return models.OutcomeTerminated
	default:
		log.Warn("Terminate failed, killing", zap.Error(err))
	}

	err = h.deps.Controller.Kill(ctx, pid)
	switch collector.Classify(err) {
	case collector.StatusOK:
		werr := h.deps.Controller.WaitExit(ctx, pid, h.cfg.KillTimeout)
		if werr == nil {
			h.event(ctx, *res, models.ActionKilled, "exited after kill")
			log.Info("Process killed")
			return models.OutcomeKilled
		}
		res.Err = werr
	case collector.StatusVanished:
		h.event(ctx, *res, models.ActionKilled, "exited before kill")
		return models.OutcomeKilled
	default:
		res.Err = err
	}

	h.event(ctx, *res, models.ActionHealFailed, res.Err.Error())
	log.Error("Hard recovery failed, will retry on a later sweep", zap.Error(res.Err))
	return models.OutcomeHardFailed
}

// sampleAfter reads system usage after recovery. Components that cannot be
// read fall back to the baseline so they contribute no gain.
func (h *Healer) sampleAfter(ctx context.Context, before models.SystemUsage) models.SystemUsage {
	after := before
	if cpu, err := h.deps.Sampler.CPUPercent(ctx); err == nil {
		after.CPU = cpu
	} else {
		h.logger.Warn("Post-recovery CPU sample failed", zap.Error(err))
	}
	if mem, err := h.deps.Sampler.MemoryPercent(ctx); err == nil {
		after.Memory = mem
	} else {
		h.logger.Warn("Post-recovery memory sample failed", zap.Error(err))
	}
	return after
}

func (h *Healer) record(ctx context.Context, res *Result, before, after models.SystemUsage) {
	rec := models.NewOptimizationRecord(h.now(), res.PID, res.Name, res.Cause, res.Outcome, before, after)
	if err := h.deps.Ledger.Append(rec); err != nil {
		// The ledger logs the failure itself; the outcome stands.
		h.event(ctx, *res, models.ActionRecordFailed, err.Error())
		return
	}
	res.Record = &rec
	metrics.ObserveScore(rec.Score)
	h.event(ctx, *res, models.ActionRecorded,
		fmt.Sprintf("outcome=%s cpu_gain=%.2f mem_gain=%.2f score=%.2f", res.Outcome, rec.CPUGain, rec.MemGain, rec.Score))
}

func (h *Healer) skip(ctx context.Context, res Result, reason string) Result {
	res.Outcome = models.OutcomeSkipped
	res.SkipReason = reason
	h.event(ctx, res, models.ActionSkipped, reason)
	h.logger.Debug("Skipping process",
		zap.Int32("pid", res.PID),
		zap.String("name", res.Name),
		zap.String("reason", reason))
	return res
}

func (h *Healer) isProtected(pid int32, name string) bool {
	if pid <= 1 || pid == h.selfPID {
		return true
	}
	_, ok := h.protected[whitelist.Normalize(name)]
	return ok
}

func (h *Healer) event(ctx context.Context, res Result, action, detail string) {
	if h.deps.Events == nil {
		return
	}
	h.deps.Events.Record(ctx, models.Event{
		ActionID: res.ActionID,
		PID:      res.PID,
		Name:     res.Name,
		Kind:     action,
		Action:   string(res.Outcome),
		Detail:   detail,
	})
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
