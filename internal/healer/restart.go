package healer

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KarmveerSingh18/prototype-4/internal/metrics"
	"github.com/KarmveerSingh18/prototype-4/internal/models"
	"github.com/KarmveerSingh18/prototype-4/internal/whitelist"
)

// Launcher starts a relaunch command without waiting for it to finish.
type Launcher interface {
	Launch(argv []string) error
}

// ExecLauncher starts commands with os/exec and reaps them in the background.
type ExecLauncher struct {
	logger *zap.Logger
}

// NewExecLauncher creates the default launcher.
func NewExecLauncher(logger *zap.Logger) *ExecLauncher {
	return &ExecLauncher{logger: logger}
}

// Launch starts argv.
func (l *ExecLauncher) Launch(argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty restart command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Debug("Relaunched process exited",
				zap.String("command", strings.Join(argv, " ")),
				zap.Error(err))
		}
	}()
	return nil
}

// restartLimiter caps relaunches per process name with a token bucket.
// A zero burst disables the limit.
type restartLimiter struct {
	burst int
	every rate.Limit

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newRestartLimiter(burst int, per time.Duration) *restartLimiter {
	l := &restartLimiter{burst: burst, limiters: make(map[string]*rate.Limiter)}
	if burst > 0 && per > 0 {
		l.every = rate.Every(per / time.Duration(burst))
	} else {
		l.every = rate.Inf
	}
	return l
}

func (l *restartLimiter) allow(name string) bool {
	if l.burst <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[name]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[name] = lim
	}
	return lim.Allow()
}

// relaunch runs the configured restart command for res.Name, if any. A
// failed launch is reported on the result and never changes the outcome.
func (h *Healer) relaunch(ctx context.Context, res *Result, log *zap.Logger) *models.RestartResult {
	key := whitelist.Normalize(res.Name)
	argv, ok := h.restart[key]
	if !ok {
		return nil
	}

	rr := &models.RestartResult{Command: argv}
	if !h.limiter.allow(key) {
		rr.Reason = "rate limited"
		metrics.IncRestart("limited")
		h.event(ctx, *res, models.ActionRestartFailed, "restart rate limit reached")
		log.Warn("Restart suppressed by rate limit")
		return rr
	}

	rr.Attempted = true
	if err := h.deps.Launcher.Launch(argv); err != nil {
		rr.Err = err
		rr.Reason = err.Error()
		metrics.IncRestart("failed")
		h.event(ctx, *res, models.ActionRestartFailed, err.Error())
		log.Warn("Restart failed", zap.Strings("command", argv), zap.Error(err))
		return rr
	}
	metrics.IncRestart("started")
	h.event(ctx, *res, models.ActionRestart, strings.Join(argv, " "))
	log.Info("Process relaunched", zap.Strings("command", argv))
	return rr
}
