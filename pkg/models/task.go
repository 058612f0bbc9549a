package models

import (
	"strings"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is currently executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed terminally.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusBlocked indicates the task cannot proceed because a
	// dependency failed or was skipped.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state that the engine
// will not transition out of during a run.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusBlocked:
		return true
	default:
		return false
	}
}

// Priority represents the urgency tier of a task.
type Priority string

const (
	// PriorityCritical is the highest urgency tier.
	PriorityCritical Priority = "critical"
	// PriorityHigh is above-normal urgency.
	PriorityHigh Priority = "high"
	// PriorityMedium is normal urgency.
	PriorityMedium Priority = "medium"
	// PriorityLow is the lowest urgency tier.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// Rank returns a numeric weight for ordering. Higher means more urgent.
// Unknown priorities rank below low.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority parses a priority cell value case-insensitively.
// Returns false if the value is not a known priority.
func ParsePriority(s string) (Priority, bool) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p, true
	}
	return "", false
}

// Task represents a single unit of work parsed from the backlog.
type Task struct {
	// ID is the unique identifier for this task (e.g. "B-001").
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description holds the Problem/Outcome text for the task.
	Description string `json:"description,omitempty"`
	// Priority is the urgency tier used for scheduling.
	Priority Priority `json:"priority"`
	// Points is the estimated effort from the backlog, if present.
	Points int `json:"points,omitempty"`
	// Score is the optional composite score used to break priority ties.
	Score *float64 `json:"score,omitempty"`
	// ScoreBreakdown holds the per-dimension scores from the backlog
	// metadata, if present.
	ScoreBreakdown map[string]float64 `json:"score_breakdown,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// TechFootprint is the free-text tech footprint column.
	TechFootprint string `json:"tech_footprint,omitempty"`
	// HumanRequired marks tasks that must never be auto-executed.
	HumanRequired bool `json:"human_required,omitempty"`
	// Command is the shell command attached to the task, if any.
	// Tasks without a command complete as no-ops.
	Command string `json:"command,omitempty"`
	// DocOrder is the position of the task in the backlog document,
	// used as the tie-break of last resort during selection.
	DocOrder int `json:"doc_order"`
	// BlockedReason explains why a task is blocked (e.g.
	// "dependency_failed:B-002").
	BlockedReason string `json:"blocked_reason,omitempty"`
	// RetryCount is the number of retries consumed so far.
	RetryCount int `json:"retry_count,omitempty"`
	// CreatedAt is when the task row was first stored.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Eligible reports whether the task may be auto-selected given a set of
// completed task IDs. Pending status, all dependencies completed, and
// no human-required flag.
func (t *Task) Eligible(completed map[string]bool) bool {
	if t.Status != TaskStatusPending || t.HumanRequired {
		return false
	}
	for _, dep := range t.DependsOn {
		if !completed[dep] {
			return false
		}
	}
	return true
}
