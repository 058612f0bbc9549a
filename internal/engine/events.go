// Package engine drives backlog execution. It selects eligible tasks in
// deterministic order, invokes the configured runner, records every
// attempt, and applies the retry and fatal-stop policies.
package engine

import (
	"time"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventRunStarted indicates a run has started.
	EventRunStarted EventType = "run_started"
	// EventTaskStarted indicates a task attempt has started.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetrying indicates a failed attempt will be retried after backoff.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskSkipped indicates a task was skipped because it requires a human.
	EventTaskSkipped EventType = "task_skipped"
	// EventTaskBlocked indicates a task was blocked by a failed dependency.
	EventTaskBlocked EventType = "task_blocked"
	// EventRunCompleted indicates the run finished normally.
	EventRunCompleted EventType = "run_completed"
	// EventRunFatal indicates the run halted on a fatal condition.
	EventRunFatal EventType = "run_fatal"
)

// Event represents an event emitted by the engine.
// These events are used to update the TUI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Category is the classified error category for failure events.
	Category models.ErrorCategory
	// RetryCount is the retry counter of the related attempt.
	RetryCount int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
