package state

import (
	"database/sql"

	"github.com/google/uuid"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// Execution history operations

// RecordExecution appends an execution record, moves the task to the
// record's status, and recomputes the task's derived metrics. All three
// writes happen in one transaction so readers never observe a record
// without its task update or metrics row.
func (db *DB) RecordExecution(rec *models.ExecutionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	err := db.Transaction(func(tx *sql.Tx) error {
		var completedAt *string
		if rec.CompletedAt != nil {
			s := formatTime(*rec.CompletedAt)
			completedAt = &s
		}

		_, err := tx.Exec(`
			INSERT INTO executions (id, task_id, status, started_at, completed_at,
				error_message, error_category, error_severity, retry_count, output)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, rec.TaskID, string(rec.Status), formatTime(rec.StartedAt), completedAt,
			rec.ErrorMessage, string(rec.ErrorCategory), string(rec.ErrorSeverity),
			rec.RetryCount, rec.Output)
		if err != nil {
			return err
		}

		var taskCompletedAt *string
		if rec.Status == models.TaskStatusCompleted && rec.CompletedAt != nil {
			s := formatTime(*rec.CompletedAt)
			taskCompletedAt = &s
		}
		_, err = tx.Exec(`
			UPDATE tasks SET status = ?, retry_count = ?, completed_at = ? WHERE id = ?
		`, string(rec.Status), rec.RetryCount, taskCompletedAt, rec.TaskID)
		if err != nil {
			return err
		}

		return recomputeMetrics(tx, rec.TaskID)
	})
	if err != nil {
		return storeErr("record execution", err)
	}
	return nil
}

// recomputeMetrics rebuilds the task_metrics row for a task from its
// full execution history. Average duration only counts attempts that
// finished; success rate counts completed attempts over all attempts.
func recomputeMetrics(tx *sql.Tx, taskID string) error {
	rows, err := tx.Query(`
		SELECT status, started_at, completed_at FROM executions WHERE task_id = ?
	`, taskID)
	if err != nil {
		return err
	}
	defer rows.Close()

	var total, succeeded, timed int
	var totalSeconds float64
	for rows.Next() {
		var status, startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&status, &startedAt, &completedAt); err != nil {
			return err
		}
		total++
		if models.TaskStatus(status) == models.TaskStatusCompleted {
			succeeded++
		}
		if completedAt.Valid {
			start, err1 := parseTime(startedAt)
			end, err2 := parseTime(completedAt.String)
			if err1 == nil && err2 == nil && !end.Before(start) {
				totalSeconds += end.Sub(start).Seconds()
				timed++
			}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var avgSeconds, successRate float64
	if timed > 0 {
		avgSeconds = totalSeconds / float64(timed)
	}
	if total > 0 {
		successRate = float64(succeeded) / float64(total)
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO task_metrics (task_id, avg_execution_time, success_rate, total_executions)
		VALUES (?, ?, ?, ?)
	`, taskID, avgSeconds, successRate, total)
	return err
}

// ListExecutions lists execution records for a task in the order they
// were recorded. An empty taskID lists records for all tasks.
func (db *DB) ListExecutions(taskID string) ([]models.ExecutionRecord, error) {
	var rows *sql.Rows
	var err error

	const columns = `id, task_id, status, started_at, completed_at,
		error_message, error_category, error_severity, retry_count, output`

	if taskID != "" {
		rows, err = db.Query(`
			SELECT `+columns+` FROM executions WHERE task_id = ? ORDER BY started_at, rowid
		`, taskID)
	} else {
		rows, err = db.Query(`
			SELECT ` + columns + ` FROM executions ORDER BY started_at, rowid
		`)
	}
	if err != nil {
		return nil, storeErr("list executions", err)
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var status string
		var startedAt string
		var completedAt sql.NullString
		var errMsg, errCat, errSev, output sql.NullString
		if err := rows.Scan(&rec.ID, &rec.TaskID, &status, &startedAt, &completedAt,
			&errMsg, &errCat, &errSev, &rec.RetryCount, &output); err != nil {
			return nil, storeErr("scan execution", err)
		}
		rec.Status = models.TaskStatus(status)
		rec.StartedAt, _ = parseTime(startedAt)
		rec.CompletedAt = parseNullableTime(completedAt)
		if errMsg.Valid {
			rec.ErrorMessage = errMsg.String
		}
		if errCat.Valid {
			rec.ErrorCategory = models.ErrorCategory(errCat.String)
		}
		if errSev.Valid {
			rec.ErrorSeverity = models.Severity(errSev.String)
		}
		if output.Valid {
			rec.Output = output.String
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list executions", err)
	}
	return records, nil
}

// GetMetrics returns the derived metrics for a task.
// Returns (nil, nil) when the task has never executed.
func (db *DB) GetMetrics(taskID string) (*models.TaskMetrics, error) {
	row := db.QueryRow(`
		SELECT task_id, avg_execution_time, success_rate, total_executions
		FROM task_metrics WHERE task_id = ?
	`, taskID)

	var m models.TaskMetrics
	err := row.Scan(&m.TaskID, &m.AvgExecutionTime, &m.SuccessRate, &m.TotalExecutions)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get metrics", err)
	}
	return &m, nil
}

// ListMetrics returns derived metrics for every task that has executed,
// ordered by task ID.
func (db *DB) ListMetrics() ([]models.TaskMetrics, error) {
	rows, err := db.Query(`
		SELECT task_id, avg_execution_time, success_rate, total_executions
		FROM task_metrics ORDER BY task_id
	`)
	if err != nil {
		return nil, storeErr("list metrics", err)
	}
	defer rows.Close()

	var metrics []models.TaskMetrics
	for rows.Next() {
		var m models.TaskMetrics
		if err := rows.Scan(&m.TaskID, &m.AvgExecutionTime, &m.SuccessRate, &m.TotalExecutions); err != nil {
			return nil, storeErr("scan metrics", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list metrics", err)
	}
	return metrics, nil
}
