// Package detector evaluates process history against fixed thresholds.
// Each rule is independent; a process can trigger several in one sweep.
package detector

import (
	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// Default thresholds.
const (
	DefaultUnresponsiveZeroSamples = 4
	DefaultHighMemoryPercent       = 60.0
	DefaultHighCPUPercent          = 90.0
)

// Thresholds configures the three detection rules.
type Thresholds struct {
	// UnresponsiveZeroSamples is how many retained samples must show
	// exactly 0% CPU before a process is considered frozen.
	UnresponsiveZeroSamples int
	HighMemoryPercent       float64
	HighCPUPercent          float64
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		UnresponsiveZeroSamples: DefaultUnresponsiveZeroSamples,
		HighMemoryPercent:       DefaultHighMemoryPercent,
		HighCPUPercent:          DefaultHighCPUPercent,
	}
}

// History is the read view of the history store the detector needs.
type History interface {
	Each(fn func(pid int32, samples []models.ProcessSnapshot))
}

// Detector is stateless apart from its thresholds.
type Detector struct {
	history    History
	thresholds Thresholds
}

// New creates a detector over history.
func New(history History, t Thresholds) *Detector {
	return &Detector{history: history, thresholds: t}
}

// CheckUnresponsive flags every process with at least
// UnresponsiveZeroSamples retained samples at exactly 0% CPU. The latest
// sample is the evidence.
func (d *Detector) CheckUnresponsive() []models.Issue {
	var issues []models.Issue
	d.history.Each(func(pid int32, samples []models.ProcessSnapshot) {
		if len(samples) == 0 {
			return
		}
		zero := 0
		for _, s := range samples {
			if s.CPU == 0 {
				zero++
			}
		}
		if zero >= d.thresholds.UnresponsiveZeroSamples {
			issues = append(issues, models.Issue{
				PID:      pid,
				Kind:     models.IssueUnresponsive,
				Evidence: samples[len(samples)-1],
			})
		}
	})
	return issues
}

// CheckHighMemory flags processes whose latest memory share exceeds the threshold.
func (d *Detector) CheckHighMemory() []models.Issue {
	return d.checkLatest(models.IssueHighMemory, func(s models.ProcessSnapshot) bool {
		return s.Memory > d.thresholds.HighMemoryPercent
	})
}

// CheckHighCPU flags processes whose latest CPU usage exceeds the threshold.
func (d *Detector) CheckHighCPU() []models.Issue {
	return d.checkLatest(models.IssueHighCPU, func(s models.ProcessSnapshot) bool {
		return s.CPU > d.thresholds.HighCPUPercent
	})
}

// DetectAll runs every rule and concatenates the results: unresponsive,
// then high memory, then high CPU, each in ascending PID order. Issues are
// not deduplicated.
func (d *Detector) DetectAll() []models.Issue {
	var issues []models.Issue
	issues = append(issues, d.CheckUnresponsive()...)
	issues = append(issues, d.CheckHighMemory()...)
	issues = append(issues, d.CheckHighCPU()...)
	return issues
}

func (d *Detector) checkLatest(kind models.IssueKind, match func(models.ProcessSnapshot) bool) []models.Issue {
	var issues []models.Issue
	d.history.Each(func(pid int32, samples []models.ProcessSnapshot) {
		if len(samples) == 0 {
			return
		}
		latest := samples[len(samples)-1]
		if match(latest) {
			issues = append(issues, models.Issue{PID: pid, Kind: kind, Evidence: latest})
		}
	})
	return issues
}
