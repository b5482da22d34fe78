package models

import "time"

// Event is one record handed to the event log. Kind is an issue kind or an
// action name; ActionID ties together the records of one healing run.
type Event struct {
	Time     time.Time `json:"ts"`
	ActionID string    `json:"action_id,omitempty"`
	PID      int32     `json:"pid"`
	Name     string    `json:"name"`
	Kind     string    `json:"kind"`
	Action   string    `json:"action,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Action names used in Event.Kind for healer records.
const (
	ActionHealStart       = "heal_start"
	ActionBaselineFailed  = "baseline_failed"
	ActionSkipped         = "skipped"
	ActionPriorityLowered = "priority_lowered"
	ActionPriorityFailed  = "priority_failed"
	ActionSoftSuccess     = "soft_success"
	ActionTerminated      = "terminated"
	ActionKilled          = "killed"
	ActionHealFailed      = "heal_failed"
	ActionRestart         = "restart"
	ActionRestartFailed   = "restart_failed"
	ActionRecorded        = "recorded"
	ActionRecordFailed    = "record_failed"
)
