package models

import (
	"math"
	"time"
)

// Outcome is the terminal state of one healing invocation.
type Outcome string

const (
	// OutcomeAborted means the process could not be resolved (already gone
	// or unreadable). Nothing was changed and nothing was recorded.
	OutcomeAborted     Outcome = "aborted"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeSoftSuccess Outcome = "soft_success"
	OutcomeTerminated  Outcome = "terminated"
	OutcomeKilled      Outcome = "killed"
	OutcomeHardFailed  Outcome = "hard_failed"
)

// Removed reports whether the outcome ended with the process gone.
func (o Outcome) Removed() bool {
	return o == OutcomeTerminated || o == OutcomeKilled
}

// RestartResult describes a relaunch attempt that followed a hard recovery.
type RestartResult struct {
	Attempted bool     `json:"attempted"`
	Command   []string `json:"command,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Err       error    `json:"-"`
}

// Succeeded reports whether the relaunch command was started.
func (r *RestartResult) Succeeded() bool {
	return r != nil && r.Attempted && r.Err == nil
}

// OptimizationRecord is the measured resource gain of one healing action.
// Gains are never negative.
type OptimizationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	PID       int32     `json:"pid"`
	Process   string    `json:"process"`
	Cause     string    `json:"cause"`
	Outcome   Outcome   `json:"outcome"`
	CPUGain   float64   `json:"cpu_gain"`
	MemGain   float64   `json:"mem_gain"`
	Score     float64   `json:"optimization"`
}

// NewOptimizationRecord computes clamped gains between two system readings.
func NewOptimizationRecord(at time.Time, pid int32, name, cause string, outcome Outcome, before, after SystemUsage) OptimizationRecord {
	cpuGain := math.Max(0, before.CPU-after.CPU)
	memGain := math.Max(0, before.Memory-after.Memory)
	return OptimizationRecord{
		Timestamp: at,
		PID:       pid,
		Process:   name,
		Cause:     cause,
		Outcome:   outcome,
		CPUGain:   cpuGain,
		MemGain:   memGain,
		Score:     GainScore(cpuGain, memGain),
	}
}

// GainScore weights CPU and memory gains 60/40, rounded to two decimals.
func GainScore(cpuGain, memGain float64) float64 {
	return math.Round((cpuGain*0.6+memGain*0.4)*100) / 100
}

// HealthStatus buckets a HealthScore.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// HealthScore rates overall system load on a 0..100 scale (100 = idle).
func HealthScore(u SystemUsage) (float64, HealthStatus) {
	score := math.Max(0, 100-(u.CPU*0.6+u.Memory*0.4))
	switch {
	case score > 80:
		return score, HealthHealthy
	case score > 60:
		return score, HealthWarning
	default:
		return score, HealthCritical
	}
}
