//go:build !windows

package platform

import (
	"context"
	"fmt"

	"golang.org/x/sys/unix"
)

// UnixPrioritizer adjusts nice values. The getter and setter default to the
// getpriority/setpriority syscalls.
type UnixPrioritizer struct {
	getNice func(pid int) (int, error)
	setNice func(pid, nice int) error
}

// New creates the prioritizer for this platform.
func New() Prioritizer {
	return &UnixPrioritizer{getNice: readNice, setNice: writeNice}
}

// Name returns the platform identifier.
func (p *UnixPrioritizer) Name() string { return "unix" }

// Lower raises the nice value of pid by one ladder step.
func (p *UnixPrioritizer) Lower(_ context.Context, pid int32) (PriorityChange, error) {
	cur, err := p.getNice(int(pid))
	if err != nil {
		return p.applyFallback(pid, err)
	}

	next, ok := nextNice(cur)
	if !ok {
		return PriorityChange{Old: cur, New: cur, AtFloor: true}, nil
	}
	if err := p.setNice(int(pid), next); err != nil {
		if cur >= fallbackNice {
			return PriorityChange{}, fmt.Errorf("setpriority pid %d to %d: %w", pid, next, err)
		}
		return p.applyFallback(pid, err)
	}
	return PriorityChange{Old: cur, New: next}, nil
}

func (p *UnixPrioritizer) applyFallback(pid int32, cause error) (PriorityChange, error) {
	if err := p.setNice(int(pid), fallbackNice); err != nil {
		return PriorityChange{}, fmt.Errorf("fallback setpriority pid %d (after %v): %w", pid, cause, err)
	}
	return PriorityChange{New: fallbackNice, Fallback: true}, nil
}

func writeNice(pid, nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, pid, nice)
}
