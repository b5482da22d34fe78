// Package eventlog fans healer and detector events out to append-only
// sinks. A failing sink is logged and never holds up the caller.
package eventlog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// appendTimeout bounds each sink write.
const appendTimeout = 2 * time.Second

// Sink is a destination for events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Name() string
	Append(ctx context.Context, e models.Event) error
	Close() error
}

// Log dispatches events to every configured sink.
type Log struct {
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Log writing to sinks. With no sinks, events are only
// mirrored to the debug log.
func New(logger *zap.Logger, sinks ...Sink) *Log {
	return &Log{
		sinks:  sinks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record stamps e with the current time if unset and appends it to every sink.
func (l *Log) Record(ctx context.Context, e models.Event) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}

	l.logger.Debug("Event",
		zap.String("kind", e.Kind),
		zap.Int32("pid", e.PID),
		zap.String("name", e.Name),
		zap.String("action", e.Action),
		zap.String("detail", e.Detail))

	for _, s := range l.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, appendTimeout)
		err := s.Append(sinkCtx, e)
		cancel()
		if err != nil {
			l.logger.Warn("Event sink append failed",
				zap.String("sink", s.Name()),
				zap.String("kind", e.Kind),
				zap.Error(err))
		}
	}
}

// Close closes every sink and returns the joined errors.
func (l *Log) Close() error {
	var errs []error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
