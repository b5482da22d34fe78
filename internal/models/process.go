// Package models defines the data structures shared by the monitor and the
// healer. Structures that leave the process (ledger file, event log) carry
// JSON tags.
package models

import "time"

// ProcessSnapshot is a single point-in-time reading of one process.
// It is never modified after capture.
type ProcessSnapshot struct {
	PID     int32   `json:"pid"`
	Name    string  `json:"name"`
	Cmdline string  `json:"cmdline"`
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Status  string  `json:"status"`
	// CreateTime is the process start time in Unix milliseconds, 0 if unknown.
	CreateTime int64     `json:"create_time,omitempty"`
	SampledAt  time.Time `json:"sampled_at"`
}

// DisplayName returns the process name, falling back to the command line
// for processes whose name could not be read.
func (s ProcessSnapshot) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Cmdline
}

// IssueKind identifies which detection rule produced an Issue.
type IssueKind string

const (
	IssueUnresponsive IssueKind = "unresponsive"
	IssueHighMemory   IssueKind = "high_memory"
	IssueHighCPU      IssueKind = "high_cpu"
)

// Issue is one detected anomaly. Several issues may exist for the same PID
// in one sweep; they are independent.
type Issue struct {
	PID      int32           `json:"pid"`
	Kind     IssueKind       `json:"kind"`
	Evidence ProcessSnapshot `json:"evidence"`
}

// SystemUsage is a system-wide CPU and memory utilization reading, both in percent.
type SystemUsage struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
}
