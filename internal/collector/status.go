package collector

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

// Status classifies the result of an operation against one process.
type Status int

const (
	StatusOK Status = iota
	StatusVanished
	StatusDenied
	StatusTimeout
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusVanished:
		return "vanished"
	case StatusDenied:
		return "denied"
	case StatusTimeout:
		return "timeout"
	default:
		return "failed"
	}
}

var (
	// ErrVanished reports that the process no longer exists.
	ErrVanished = errors.New("no such process")

	// ErrAccessDenied reports that the caller lacks permission on the process.
	ErrAccessDenied = errors.New("access denied")

	// ErrTimeout reports that a bounded wait expired.
	ErrTimeout = errors.New("timed out")
)

// Classify maps an error from any collector operation onto a Status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrVanished),
		errors.Is(err, process.ErrorProcessNotRunning),
		errors.Is(err, os.ErrProcessDone),
		errors.Is(err, os.ErrNotExist),
		errors.Is(err, syscall.ESRCH):
		return StatusVanished
	case errors.Is(err, ErrAccessDenied),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.EACCES):
		return StatusDenied
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	default:
		return StatusFailed
	}
}
