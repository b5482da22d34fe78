//go:build windows

package platform

import (
	"context"
	"fmt"

	"golang.org/x/sys/windows"
)

// classLadder is the Windows priority-class ladder, highest priority first.
var classLadder = []uint32{
	windows.REALTIME_PRIORITY_CLASS,
	windows.HIGH_PRIORITY_CLASS,
	windows.ABOVE_NORMAL_PRIORITY_CLASS,
	windows.NORMAL_PRIORITY_CLASS,
	windows.BELOW_NORMAL_PRIORITY_CLASS,
	windows.IDLE_PRIORITY_CLASS,
}

const fallbackClass = windows.BELOW_NORMAL_PRIORITY_CLASS

// WindowsPrioritizer adjusts process priority classes.
type WindowsPrioritizer struct{}

// New creates the prioritizer for this platform.
func New() Prioritizer {
	return &WindowsPrioritizer{}
}

// Name returns the platform identifier.
func (p *WindowsPrioritizer) Name() string { return "windows" }

// Lower moves pid one priority class down.
func (p *WindowsPrioritizer) Lower(ctx context.Context, pid int32) (PriorityChange, error) {
	h, err := windows.OpenProcess(
		windows.PROCESS_QUERY_LIMITED_INFORMATION|windows.PROCESS_SET_INFORMATION,
		false, uint32(pid))
	if err != nil {
		return PriorityChange{}, fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	cur, err := windows.GetPriorityClass(h)
	if err != nil {
		return applyFallbackClass(h, pid, err)
	}

	next, ok := nextInLadder(classLadder, cur)
	if !ok {
		if cur == windows.IDLE_PRIORITY_CLASS {
			return PriorityChange{Old: int(cur), New: int(cur), AtFloor: true}, nil
		}
		return applyFallbackClass(h, pid, fmt.Errorf("unknown priority class %#x", cur))
	}
	if err := windows.SetPriorityClass(h, next); err != nil {
		return applyFallbackClass(h, pid, err)
	}
	return PriorityChange{Old: int(cur), New: int(next)}, nil
}

func applyFallbackClass(h windows.Handle, pid int32, cause error) (PriorityChange, error) {
	if err := windows.SetPriorityClass(h, fallbackClass); err != nil {
		return PriorityChange{}, fmt.Errorf("fallback priority class pid %d (after %v): %w", pid, cause, err)
	}
	return PriorityChange{New: int(fallbackClass), Fallback: true}, nil
}
