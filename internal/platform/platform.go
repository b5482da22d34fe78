// Package platform abstracts the OS-specific part of soft recovery: moving
// a process one step down the scheduling-priority ladder.
// Each supported OS implements the Prioritizer interface.
package platform

import "context"

// PriorityChange reports what Lower did. Old is meaningless when Fallback
// is set because the current priority could not be read.
type PriorityChange struct {
	Old      int
	New      int
	Fallback bool
	AtFloor  bool
}

// Prioritizer lowers the scheduling priority of a process.
type Prioritizer interface {
	// Lower moves pid one step down the platform ladder. If the current
	// priority cannot be read or the next step cannot be applied, a fixed
	// conservative value is applied instead and Fallback is set. An error
	// means no priority change took effect.
	Lower(ctx context.Context, pid int32) (PriorityChange, error)

	// Name returns the platform name (windows, unix, fake).
	Name() string
}

// nextInLadder returns the entry after cur in a ladder ordered from highest
// to lowest priority. ok is false if cur is unknown or already the last step.
func nextInLadder(ladder []uint32, cur uint32) (next uint32, ok bool) {
	for i, v := range ladder {
		if v == cur {
			if i+1 < len(ladder) {
				return ladder[i+1], true
			}
			return cur, false
		}
	}
	return cur, false
}

// niceLadder is the Unix nice ladder, highest priority first.
var niceLadder = []int{-20, -15, -10, -5, 0, 5, 10, 15, 19}

// fallbackNice is applied when the ladder step cannot be computed or set.
const fallbackNice = 10

// nextNice returns the first ladder value strictly lower in priority than
// cur. ok is false when cur is already at or below the bottom rung.
func nextNice(cur int) (next int, ok bool) {
	for _, v := range niceLadder {
		if v > cur {
			return v, true
		}
	}
	return cur, false
}
