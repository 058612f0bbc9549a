package models

import "time"

// ExecutionRecord is an immutable log entry for one attempt to run a
// task. One record is written per attempt, including retries.
type ExecutionRecord struct {
	// ID is the unique identifier for this record.
	ID string `json:"id"`
	// TaskID is the task this attempt belongs to.
	TaskID string `json:"task_id"`
	// Status is the task status resulting from this attempt.
	Status TaskStatus `json:"status"`
	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the attempt finished, if it did.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ErrorMessage holds the failure message, if the attempt failed.
	ErrorMessage string `json:"error_message,omitempty"`
	// ErrorCategory is the classified failure category, if the attempt failed.
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	// ErrorSeverity is the classified failure severity, if the attempt failed.
	ErrorSeverity Severity `json:"error_severity,omitempty"`
	// RetryCount is the retry index of this attempt. The first attempt
	// is 0, the first retry is 1, and so on.
	RetryCount int `json:"retry_count"`
	// Output holds captured runner output, truncated for storage.
	Output string `json:"output,omitempty"`
}

// Duration returns the elapsed time of the attempt, or zero if it has
// not completed.
func (r *ExecutionRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// TaskMetrics holds derived per-task performance aggregates. They are
// recomputed by the state store every time an execution record is
// written.
type TaskMetrics struct {
	// TaskID is the task these metrics describe.
	TaskID string `json:"task_id"`
	// AvgExecutionTime is the mean attempt duration in seconds.
	AvgExecutionTime float64 `json:"avg_execution_time"`
	// SuccessRate is successful attempts divided by total attempts,
	// always in [0, 1].
	SuccessRate float64 `json:"success_rate"`
	// TotalExecutions is the number of attempts recorded.
	TotalExecutions int `json:"total_executions"`
}
