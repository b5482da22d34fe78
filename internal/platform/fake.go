package platform

import (
	"context"
	"sync"
)

// Fake is an in-memory Prioritizer for tests. Each Lower call records the
// pid and returns Change and Err.
type Fake struct {
	Change PriorityChange
	Err    error

	mu    sync.Mutex
	calls []int32
}

// Name returns the platform identifier.
func (f *Fake) Name() string { return "fake" }

// Lower records the call.
func (f *Fake) Lower(_ context.Context, pid int32) (PriorityChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pid)
	if f.Err != nil {
		return PriorityChange{}, f.Err
	}
	return f.Change, nil
}

// Calls returns the PIDs Lower was called with, in order.
func (f *Fake) Calls() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int32, len(f.calls))
	copy(out, f.calls)
	return out
}
