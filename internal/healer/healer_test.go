package healer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/collector"
	"github.com/KarmveerSingh18/prototype-4/internal/ledger"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
	"github.com/KarmveerSingh18/prototype-4/internal/platform"
	"github.com/KarmveerSingh18/prototype-4/internal/whitelist"
)

type fakeController struct {
	mu sync.Mutex

	names        map[int32]string
	starts       map[int32][]int64
	startN       map[int32]int
	terminateErr error
	exitOnTerm   bool
	killErr      error
	exitOnKill   bool

	terminated []int32
	killed     []int32
	exited     map[int32]bool
}

func newFakeController(names map[int32]string) *fakeController {
	return &fakeController{
		names:      names,
		starts:     map[int32][]int64{},
		startN:     map[int32]int{},
		exitOnTerm: true,
		exitOnKill: true,
		exited:     map[int32]bool{},
	}
}

// StartTime returns the queued start times for pid in order, then repeats
// the last one.
func (c *fakeController) StartTime(_ context.Context, pid int32) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.starts[pid]
	if len(seq) == 0 {
		return 0, fmt.Errorf("pid %d: %w", pid, collector.ErrAccessDenied)
	}
	v := seq[min(c.startN[pid], len(seq)-1)]
	c.startN[pid]++
	return v, nil
}

func (c *fakeController) Name(_ context.Context, pid int32) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.names[pid]
	if !ok {
		return "", fmt.Errorf("pid %d: %w", pid, collector.ErrVanished)
	}
	return n, nil
}

func (c *fakeController) Terminate(_ context.Context, pid int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminated = append(c.terminated, pid)
	if c.terminateErr != nil {
		return c.terminateErr
	}
	if c.exitOnTerm {
		c.exited[pid] = true
	}
	return nil
}

func (c *fakeController) Kill(_ context.Context, pid int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killed = append(c.killed, pid)
	if c.killErr != nil {
		return c.killErr
	}
	if c.exitOnKill {
		c.exited[pid] = true
	}
	return nil
}

func (c *fakeController) WaitExit(_ context.Context, pid int32, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exited[pid] {
		return nil
	}
	return collector.ErrTimeout
}

// seqSampler returns the queued CPU readings in order, then repeats the last.
// cpuErr, when set, fails the first CPU read.
type seqSampler struct {
	mu     sync.Mutex
	cpu    []float64
	mem    []float64
	cpuN   int
	memN   int
	cpuErr error
}

func (s *seqSampler) CPUPercent(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cpuN == 0 && s.cpuErr != nil {
		s.cpuN++
		return 0, s.cpuErr
	}
	v := s.cpu[min(s.cpuN, len(s.cpu)-1)]
	s.cpuN++
	return v, nil
}

func (s *seqSampler) MemoryPercent(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.mem[min(s.memN, len(s.mem)-1)]
	s.memN++
	return v, nil
}

type fakeLauncher struct {
	err      error
	launched [][]string
}

func (l *fakeLauncher) Launch(argv []string) error {
	l.launched = append(l.launched, argv)
	return l.err
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *eventRecorder) Record(_ context.Context, e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

type fixture struct {
	healer    *Healer
	ctrl      *fakeController
	sampler   *seqSampler
	prio      *platform.Fake
	whitelist *whitelist.Store
	ledger    *ledger.Ledger
	launcher  *fakeLauncher
	events    *eventRecorder
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SettleWait = 0
	cfg.RecoverySettle = 0
	cfg.TerminateTimeout = 10 * time.Millisecond
	cfg.KillTimeout = 10 * time.Millisecond
	return cfg
}

func newFixture(t *testing.T, cfg Config, names map[int32]string, cpu, mem []float64) *fixture {
	t.Helper()
	f := &fixture{
		ctrl:      newFakeController(names),
		sampler:   &seqSampler{cpu: cpu, mem: mem},
		prio:      &platform.Fake{Change: platform.PriorityChange{Old: 0, New: 5}},
		whitelist: whitelist.New(filepath.Join(t.TempDir(), "whitelist.json"), zap.NewNop()),
		ledger:    ledger.New("", ledger.DefaultCapacity, zap.NewNop()),
		launcher:  &fakeLauncher{},
		events:    &eventRecorder{},
	}
	f.healer = New(cfg, Deps{
		Controller:  f.ctrl,
		Sampler:     f.sampler,
		Prioritizer: f.prio,
		Whitelist:   f.whitelist,
		Ledger:      f.ledger,
		Events:      f.events,
		Launcher:    f.launcher,
	}, zap.NewNop())
	return f
}

func issue(pid int32, kind models.IssueKind) models.Issue {
	return models.Issue{PID: pid, Kind: kind, Evidence: models.ProcessSnapshot{PID: pid, CPU: 95}}
}

func TestSweep_WhitelistedProcessUntouched(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{4242: "notepad.exe"}, []float64{80}, []float64{50})
	if err := f.whitelist.Add("NOTEPAD.EXE"); err != nil {
		t.Fatal(err)
	}

	results := f.healer.Sweep(context.Background(), []models.Issue{issue(4242, models.IssueHighCPU)})
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.Outcome != models.OutcomeSkipped || r.SkipReason != ReasonWhitelisted {
		t.Errorf("outcome = %s (%s), want skipped (whitelisted)", r.Outcome, r.SkipReason)
	}
	if len(f.prio.Calls()) != 0 {
		t.Error("priority changed for a whitelisted process")
	}
	if len(f.ctrl.terminated)+len(f.ctrl.killed) != 0 {
		t.Error("whitelisted process was signalled")
	}
	if f.ledger.Len() != 0 {
		t.Errorf("ledger has %d records, want 0", f.ledger.Len())
	}
}

func TestSweep_PicksUpWhitelistEditsBetweenSweeps(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{7: "worker"}, []float64{80, 40}, []float64{50})

	other := whitelist.New(f.whitelist.Path(), zap.NewNop())
	if err := other.Add("worker"); err != nil {
		t.Fatal(err)
	}

	results := f.healer.Sweep(context.Background(), []models.Issue{issue(7, models.IssueHighCPU)})
	if results[0].Outcome != models.OutcomeSkipped {
		t.Errorf("outcome = %s, want skipped after external whitelist edit", results[0].Outcome)
	}
}

func TestHeal_SoftSuccess(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{100: "encoder"}, []float64{80, 50}, []float64{60, 58})

	r := f.healer.Heal(context.Background(), issue(100, models.IssueHighCPU))
	if r.Outcome != models.OutcomeSoftSuccess {
		t.Fatalf("outcome = %s, want soft_success", r.Outcome)
	}
	if len(f.ctrl.terminated) != 0 || len(f.ctrl.killed) != 0 {
		t.Error("soft success must not terminate or kill")
	}
	if r.Priority == nil || r.Priority.New != 5 {
		t.Errorf("priority change = %+v, want new 5", r.Priority)
	}
	if f.ledger.Len() != 1 {
		t.Fatalf("ledger has %d records, want 1", f.ledger.Len())
	}
	rec := f.ledger.Recent()[0]
	if rec.CPUGain != 30 || rec.MemGain != 2 {
		t.Errorf("gains = %v/%v, want 30/2", rec.CPUGain, rec.MemGain)
	}
	if rec.Outcome != models.OutcomeSoftSuccess {
		t.Errorf("record outcome = %s", rec.Outcome)
	}
}

func TestHeal_InsufficientSoftEscalatesToTerminate(t *testing.T) {
	cfg := testConfig()
	cfg.Restart = map[string][]string{"Encoder": {"/usr/bin/encoder", "--resume"}}
	f := newFixture(t, cfg, map[int32]string{100: "encoder"}, []float64{80, 78, 20}, []float64{60})

	r := f.healer.Heal(context.Background(), issue(100, models.IssueHighCPU))
	if r.Outcome != models.OutcomeTerminated {
		t.Fatalf("outcome = %s, want terminated", r.Outcome)
	}
	if len(f.ctrl.terminated) != 1 || len(f.ctrl.killed) != 0 {
		t.Errorf("terminate=%d kill=%d, want 1/0", len(f.ctrl.terminated), len(f.ctrl.killed))
	}
	if len(f.launcher.launched) != 1 {
		t.Fatalf("restart launched %d times, want 1", len(f.launcher.launched))
	}
	if !r.Restart.Succeeded() {
		t.Errorf("restart = %+v, want succeeded", r.Restart)
	}
	if f.ledger.Len() != 1 {
		t.Fatalf("ledger has %d records, want 1", f.ledger.Len())
	}
	rec := f.ledger.Recent()[0]
	if rec.CPUGain != 60 || rec.MemGain != 0 {
		t.Errorf("gains = %v/%v, want 60/0", rec.CPUGain, rec.MemGain)
	}
}

func TestHeal_ThresholdBoundaryIsNotSuccess(t *testing.T) {
	// 100 * (1 - 0.30) = 70; an after reading of exactly 70 is not below it.
	f := newFixture(t, testConfig(), map[int32]string{9: "svc"}, []float64{100, 70, 70}, []float64{40})

	r := f.healer.Heal(context.Background(), issue(9, models.IssueHighCPU))
	if r.Outcome != models.OutcomeTerminated {
		t.Errorf("outcome = %s, want terminated", r.Outcome)
	}
}

func TestHeal_EscalatesToKill(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{5: "stuck"}, []float64{90, 90, 30}, []float64{70, 70, 50})
	f.ctrl.exitOnTerm = false

	r := f.healer.Heal(context.Background(), issue(5, models.IssueUnresponsive))
	if r.Outcome != models.OutcomeKilled {
		t.Fatalf("outcome = %s, want killed", r.Outcome)
	}
	if len(f.ctrl.killed) != 1 {
		t.Errorf("kill calls = %d, want 1", len(f.ctrl.killed))
	}
	if f.ledger.Len() != 1 {
		t.Errorf("ledger has %d records, want 1", f.ledger.Len())
	}
}

func TestHeal_HardFailedStillRecorded(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{5: "stuck"}, []float64{90, 90, 95}, []float64{70})
	f.ctrl.terminateErr = fmt.Errorf("terminate: %w", collector.ErrAccessDenied)
	f.ctrl.killErr = fmt.Errorf("kill: %w", collector.ErrAccessDenied)

	r := f.healer.Heal(context.Background(), issue(5, models.IssueHighCPU))
	if r.Outcome != models.OutcomeHardFailed {
		t.Fatalf("outcome = %s, want hard_failed", r.Outcome)
	}
	if r.Restart != nil {
		t.Error("restart attempted after failed recovery")
	}
	if f.ledger.Len() != 1 {
		t.Fatalf("ledger has %d records, want 1", f.ledger.Len())
	}
	if rec := f.ledger.Recent()[0]; rec.CPUGain != 0 {
		t.Errorf("CPU gain = %v, want clamped to 0", rec.CPUGain)
	}
}

func TestHeal_PriorityFailureGoesStraightToHard(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{8: "db"}, []float64{85, 40}, []float64{60})
	f.prio.Err = fmt.Errorf("setpriority: %w", collector.ErrAccessDenied)

	r := f.healer.Heal(context.Background(), issue(8, models.IssueHighMemory))
	if r.Outcome != models.OutcomeTerminated {
		t.Fatalf("outcome = %s, want terminated", r.Outcome)
	}
	if r.Priority != nil {
		t.Error("priority change reported despite failure")
	}
	// Baseline and post-recovery only; no post-soft sample.
	if f.sampler.cpuN != 2 {
		t.Errorf("CPU sampled %d times, want 2", f.sampler.cpuN)
	}
}

func TestHeal_VanishedBeforeTerminateCountsAsTerminated(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{3: "short"}, []float64{80, 80, 50}, []float64{50})
	f.ctrl.terminateErr = fmt.Errorf("pid 3: %w", collector.ErrVanished)

	r := f.healer.Heal(context.Background(), issue(3, models.IssueHighCPU))
	if r.Outcome != models.OutcomeTerminated {
		t.Errorf("outcome = %s, want terminated", r.Outcome)
	}
	if len(f.ctrl.killed) != 0 {
		t.Error("killed a process that was already gone")
	}
}

func TestHeal_UnresolvableProcessAborts(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{}, []float64{80}, []float64{50})

	r := f.healer.Heal(context.Background(), issue(404, models.IssueHighCPU))
	if r.Outcome != models.OutcomeAborted {
		t.Errorf("outcome = %s, want aborted", r.Outcome)
	}
	if collector.Classify(r.Err) != collector.StatusVanished {
		t.Errorf("err = %v, want vanished", r.Err)
	}
	if f.ledger.Len() != 0 {
		t.Error("aborted run must not be recorded")
	}
}

func TestHeal_ProtectedProcesses(t *testing.T) {
	tests := []struct {
		name string
		pid  int32
		proc string
	}{
		{"init pid", 1, "whatever"},
		{"system name", 500, "SYSTEMD"},
		{"windows core", 600, "lsass.exe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, testConfig(), map[int32]string{tt.pid: tt.proc}, []float64{80}, []float64{50})
			r := f.healer.Heal(context.Background(), issue(tt.pid, models.IssueHighCPU))
			if r.Outcome != models.OutcomeSkipped || r.SkipReason != ReasonProtected {
				t.Errorf("outcome = %s (%s), want skipped (protected)", r.Outcome, r.SkipReason)
			}
			if len(f.prio.Calls()) != 0 {
				t.Error("protected process was touched")
			}
		})
	}
}

func TestSweep_OneActionPerPID(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{10: "hog", 11: "leaky"}, []float64{90, 20}, []float64{80, 60})

	results := f.healer.Sweep(context.Background(), []models.Issue{
		issue(10, models.IssueHighCPU),
		issue(11, models.IssueHighMemory),
		issue(10, models.IssueHighMemory),
		issue(10, models.IssueHighCPU),
	})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].PID != 10 || results[1].PID != 11 {
		t.Errorf("order = %d,%d, want 10,11", results[0].PID, results[1].PID)
	}
	if results[0].Cause != "high_cpu,high_memory" {
		t.Errorf("cause = %q, want folded kinds", results[0].Cause)
	}
	if got := f.prio.Calls(); len(got) != 2 {
		t.Errorf("priority lowered %d times, want 2", len(got))
	}
}

func TestSweep_StopsOnCancel(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{10: "a", 11: "b"}, []float64{90, 20}, []float64{50})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := f.healer.Sweep(ctx, []models.Issue{issue(10, models.IssueHighCPU), issue(11, models.IssueHighCPU)})
	if len(results) != 0 {
		t.Errorf("got %d results after cancel, want 0", len(results))
	}
}

func TestHeal_RestartFailureKeepsOutcome(t *testing.T) {
	cfg := testConfig()
	cfg.Restart = map[string][]string{"svc": {"/missing/svc"}}
	f := newFixture(t, cfg, map[int32]string{20: "svc"}, []float64{80, 79, 30}, []float64{50})
	f.launcher.err = errors.New("exec: no such file")

	r := f.healer.Heal(context.Background(), issue(20, models.IssueHighCPU))
	if r.Outcome != models.OutcomeTerminated {
		t.Errorf("outcome = %s, want terminated", r.Outcome)
	}
	if r.Restart == nil || r.Restart.Succeeded() || r.Restart.Reason == "" {
		t.Errorf("restart = %+v, want failed with reason", r.Restart)
	}
	if f.ledger.Len() != 1 {
		t.Errorf("ledger has %d records, want 1", f.ledger.Len())
	}
}

func TestHeal_RestartRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.Restart = map[string][]string{"svc": {"/usr/bin/svc"}}
	cfg.RestartBurst = 1
	cfg.RestartPer = time.Hour
	f := newFixture(t, cfg, map[int32]string{20: "svc", 21: "svc"}, []float64{80, 79}, []float64{50})

	first := f.healer.Heal(context.Background(), issue(20, models.IssueHighCPU))
	second := f.healer.Heal(context.Background(), issue(21, models.IssueHighCPU))

	if !first.Restart.Succeeded() {
		t.Errorf("first restart = %+v, want started", first.Restart)
	}
	if second.Restart == nil || second.Restart.Attempted {
		t.Errorf("second restart = %+v, want suppressed", second.Restart)
	}
	if len(f.launcher.launched) != 1 {
		t.Errorf("launched %d times, want 1", len(f.launcher.launched))
	}
}

func TestHeal_FullLedgerStaysAtCapacity(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{30: "hog"}, []float64{80, 40}, []float64{50})
	for i := 0; i < ledger.DefaultCapacity; i++ {
		rec := models.NewOptimizationRecord(time.Unix(int64(i), 0), int32(i+1000), "old", "high_cpu",
			models.OutcomeTerminated, models.SystemUsage{CPU: 50}, models.SystemUsage{CPU: 40})
		if err := f.ledger.Append(rec); err != nil {
			t.Fatal(err)
		}
	}

	f.healer.Heal(context.Background(), issue(30, models.IssueHighCPU))

	recent := f.ledger.Recent()
	if len(recent) != ledger.DefaultCapacity {
		t.Fatalf("ledger size = %d, want %d", len(recent), ledger.DefaultCapacity)
	}
	if recent[0].PID != 1001 {
		t.Errorf("oldest pid = %d, want 1001", recent[0].PID)
	}
	if recent[len(recent)-1].Process != "hog" {
		t.Errorf("newest = %q, want hog", recent[len(recent)-1].Process)
	}
}

func TestHeal_EventTrail(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{100: "encoder"}, []float64{80, 50}, []float64{60})

	r := f.healer.Heal(context.Background(), issue(100, models.IssueHighCPU))

	want := []string{models.ActionHealStart, models.ActionPriorityLowered, models.ActionSoftSuccess, models.ActionRecorded}
	got := f.events.kinds()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	for _, e := range f.events.events {
		if e.ActionID != r.ActionID {
			t.Errorf("event %s action id = %q, want %q", e.Kind, e.ActionID, r.ActionID)
		}
	}
}

func TestHeal_LedgerWriteFailureIsReported(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{100: "encoder"}, []float64{80, 50}, []float64{60})
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}
	f.healer.deps.Ledger = ledger.New(filepath.Join(blocker, "optimizations.json"), ledger.DefaultCapacity, zap.NewNop())

	r := f.healer.Heal(context.Background(), issue(100, models.IssueHighCPU))
	if r.Outcome != models.OutcomeSoftSuccess {
		t.Errorf("outcome = %s, want soft_success despite ledger failure", r.Outcome)
	}
	if r.Record != nil {
		t.Error("record reported although the ledger rejected it")
	}
	kinds := f.events.kinds()
	if kinds[len(kinds)-1] != models.ActionRecordFailed {
		t.Errorf("last event = %s, want %s", kinds[len(kinds)-1], models.ActionRecordFailed)
	}
}

func TestHeal_ReusedPIDIsLeftAlone(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{300: "editor"}, []float64{80, 20}, []float64{50})
	is := issue(300, models.IssueHighCPU)
	is.Evidence.Name = "runaway.exe"

	r := f.healer.Heal(context.Background(), is)
	if r.Outcome != models.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", r.Outcome)
	}
	if !errors.Is(r.Err, ErrIdentityChanged) {
		t.Errorf("err = %v, want ErrIdentityChanged", r.Err)
	}
	if len(f.prio.Calls()) != 0 {
		t.Error("priority changed on a reused PID")
	}
	if len(f.ctrl.terminated)+len(f.ctrl.killed) != 0 {
		t.Error("reused PID was signalled")
	}
	if f.ledger.Len() != 0 || len(f.events.kinds()) != 0 {
		t.Errorf("ledger %d records, events %v; want none", f.ledger.Len(), f.events.kinds())
	}
}

func TestHeal_NameMatchIgnoresCase(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{301: "Encoder.EXE"}, []float64{80, 50}, []float64{50})
	is := issue(301, models.IssueHighCPU)
	is.Evidence.Name = "encoder.exe"

	if r := f.healer.Heal(context.Background(), is); r.Outcome != models.OutcomeSoftSuccess {
		t.Errorf("outcome = %s, want soft_success", r.Outcome)
	}
}

func TestHeal_StartTimeMismatchAborts(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{302: "worker"}, []float64{80}, []float64{50})
	f.ctrl.starts[302] = []int64{2000}
	is := issue(302, models.IssueHighCPU)
	is.Evidence.Name = "worker"
	is.Evidence.CreateTime = 1000

	r := f.healer.Heal(context.Background(), is)
	if r.Outcome != models.OutcomeAborted || !errors.Is(r.Err, ErrIdentityChanged) {
		t.Errorf("outcome = %s err = %v, want aborted with ErrIdentityChanged", r.Outcome, r.Err)
	}
	if len(f.prio.Calls()) != 0 {
		t.Error("priority changed on a reused PID")
	}
}

func TestHeal_StartTimeUnavailableFallsBackToName(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{303: "worker"}, []float64{80, 50}, []float64{50})
	is := issue(303, models.IssueHighCPU)
	is.Evidence.Name = "worker"
	is.Evidence.CreateTime = 1000

	if r := f.healer.Heal(context.Background(), is); r.Outcome != models.OutcomeSoftSuccess {
		t.Errorf("outcome = %s, want soft_success when start time is denied", r.Outcome)
	}
}

func TestHeal_ReusedDuringSoftRecoveryIsNotTerminated(t *testing.T) {
	f := newFixture(t, testConfig(), map[int32]string{304: "worker"}, []float64{80, 80}, []float64{50})
	f.ctrl.starts[304] = []int64{1000, 5000}
	is := issue(304, models.IssueHighCPU)
	is.Evidence.Name = "worker"
	is.Evidence.CreateTime = 1000

	r := f.healer.Heal(context.Background(), is)
	if r.Outcome != models.OutcomeAborted || !errors.Is(r.Err, ErrIdentityChanged) {
		t.Fatalf("outcome = %s err = %v, want aborted with ErrIdentityChanged", r.Outcome, r.Err)
	}
	if len(f.prio.Calls()) != 1 {
		t.Errorf("priority calls = %d, want 1", len(f.prio.Calls()))
	}
	if len(f.ctrl.terminated)+len(f.ctrl.killed) != 0 {
		t.Error("replacement process was signalled")
	}
	if f.ledger.Len() != 0 {
		t.Error("aborted run must not be recorded")
	}
}

func TestHeal_BaselineFailureDefersRecovery(t *testing.T) {
	// The failed read consumes the first entry.
	f := newFixture(t, testConfig(), map[int32]string{100: "encoder"}, []float64{0, 80, 40}, []float64{60})
	f.sampler.cpuErr = errors.New("cpu times unavailable")

	r := f.healer.Heal(context.Background(), issue(100, models.IssueHighCPU))
	if r.Outcome != models.OutcomeAborted {
		t.Fatalf("outcome = %s, want aborted", r.Outcome)
	}
	if len(f.prio.Calls()) != 0 {
		t.Error("priority changed without a baseline")
	}
	if len(f.ctrl.terminated)+len(f.ctrl.killed) != 0 {
		t.Error("process signalled without a baseline")
	}
	if f.ledger.Len() != 0 {
		t.Error("deferred run must not be recorded")
	}
	want := []string{models.ActionHealStart, models.ActionBaselineFailed}
	if got := f.events.kinds(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}

	// The next attempt has a baseline and proceeds normally.
	if r := f.healer.Heal(context.Background(), issue(100, models.IssueHighCPU)); r.Outcome != models.OutcomeSoftSuccess {
		t.Errorf("retry outcome = %s, want soft_success", r.Outcome)
	}
}
