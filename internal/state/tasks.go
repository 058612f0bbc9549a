package state

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// Task CRUD operations

// UpsertTask inserts a task or refreshes its backlog-derived fields.
// Lifecycle fields (status, retry count, blocked reason, timestamps)
// are never touched for an existing row, so re-syncing the backlog
// cannot clobber execution state.
func (db *DB) UpsertTask(t *models.Task) error {
	existing, err := db.GetTask(t.ID)
	if err != nil {
		return err
	}

	dependsOn, _ := json.Marshal(t.DependsOn)
	var scoreBreakdown *string
	if t.ScoreBreakdown != nil {
		b, _ := json.Marshal(t.ScoreBreakdown)
		s := string(b)
		scoreBreakdown = &s
	}

	if existing == nil {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		status := t.Status
		if status == "" {
			status = models.TaskStatusPending
		}
		_, err := db.Exec(`
			INSERT INTO tasks (id, title, description, priority, points, score, score_breakdown,
				status, depends_on, tech_footprint, human_required, command, doc_order,
				blocked_reason, retry_count, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Title, t.Description, string(t.Priority), t.Points, t.Score, scoreBreakdown,
			string(status), string(dependsOn), t.TechFootprint, t.HumanRequired, t.Command,
			t.DocOrder, t.BlockedReason, t.RetryCount, formatTime(createdAt), nil)
		if err != nil {
			return storeErr("insert task", err)
		}
		return nil
	}

	_, err = db.Exec(`
		UPDATE tasks SET title = ?, description = ?, priority = ?, points = ?, score = ?,
			score_breakdown = ?, depends_on = ?, tech_footprint = ?, human_required = ?,
			command = ?, doc_order = ?
		WHERE id = ?
	`, t.Title, t.Description, string(t.Priority), t.Points, t.Score, scoreBreakdown,
		string(dependsOn), t.TechFootprint, t.HumanRequired, t.Command, t.DocOrder, t.ID)
	if err != nil {
		return storeErr("update task", err)
	}
	return nil
}

// SyncTasks upserts all parsed backlog tasks in document order.
func (db *DB) SyncTasks(tasks []*models.Task) error {
	for _, t := range tasks {
		if err := db.UpsertTask(t); err != nil {
			return err
		}
	}
	return nil
}

// SetTaskStatus updates only the status of a task.
func (db *DB) SetTaskStatus(id string, status models.TaskStatus) error {
	_, err := db.Exec("UPDATE tasks SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return storeErr("set task status", err)
	}
	return nil
}

// MarkTaskBlocked marks a task blocked and records why.
func (db *DB) MarkTaskBlocked(id, reason string) error {
	_, err := db.Exec(`
		UPDATE tasks SET status = ?, blocked_reason = ? WHERE id = ?
	`, string(models.TaskStatusBlocked), reason, id)
	if err != nil {
		return storeErr("mark task blocked", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns (nil, nil) when no row exists.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, title, description, priority, points, score, score_breakdown, status,
			depends_on, tech_footprint, human_required, command, doc_order, blocked_reason,
			retry_count, created_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get task", err)
	}
	return t, nil
}

// ListTasks lists all tasks in document order, optionally filtered by status.
func (db *DB) ListTasks(status *models.TaskStatus) ([]*models.Task, error) {
	var rows *sql.Rows
	var err error

	if status != nil {
		rows, err = db.Query(`
			SELECT id, title, description, priority, points, score, score_breakdown, status,
				depends_on, tech_footprint, human_required, command, doc_order, blocked_reason,
				retry_count, created_at, completed_at
			FROM tasks WHERE status = ? ORDER BY doc_order
		`, string(*status))
	} else {
		rows, err = db.Query(`
			SELECT id, title, description, priority, points, score, score_breakdown, status,
				depends_on, tech_footprint, human_required, command, doc_order, blocked_reason,
				retry_count, created_at, completed_at
			FROM tasks ORDER BY doc_order
		`)
	}
	if err != nil {
		return nil, storeErr("list tasks", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

// GetStatusSummary returns the count of tasks per status. The counts
// always sum to the total number of stored tasks.
func (db *DB) GetStatusSummary() (map[models.TaskStatus]int, error) {
	rows, err := db.Query("SELECT status, COUNT(*) FROM tasks GROUP BY status")
	if err != nil {
		return nil, storeErr("status summary", err)
	}
	defer rows.Close()

	summary := make(map[models.TaskStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, storeErr("scan status summary", err)
		}
		summary[models.TaskStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("status summary", err)
	}
	return summary, nil
}

// scanTask scans a single task row via the given scan function.
func scanTask(scan func(dest ...any) error) (*models.Task, error) {
	var t models.Task
	var priority, status string
	var createdAt string
	var completedAt sql.NullString
	var description, scoreBreakdown, dependsOn, techFootprint, command, blockedReason sql.NullString
	var score sql.NullFloat64

	err := scan(&t.ID, &t.Title, &description, &priority, &t.Points, &score, &scoreBreakdown,
		&status, &dependsOn, &techFootprint, &t.HumanRequired, &command, &t.DocOrder,
		&blockedReason, &t.RetryCount, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Priority = models.Priority(priority)
	t.Status = models.TaskStatus(status)
	if description.Valid {
		t.Description = description.String
	}
	if score.Valid {
		v := score.Float64
		t.Score = &v
	}
	if scoreBreakdown.Valid && scoreBreakdown.String != "" {
		json.Unmarshal([]byte(scoreBreakdown.String), &t.ScoreBreakdown)
	}
	if dependsOn.Valid {
		json.Unmarshal([]byte(dependsOn.String), &t.DependsOn)
	}
	if techFootprint.Valid {
		t.TechFootprint = techFootprint.String
	}
	if command.Valid {
		t.Command = command.String
	}
	if blockedReason.Valid {
		t.BlockedReason = blockedReason.String
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// scanTasks scans task rows into a slice.
func scanTasks(rows *sql.Rows) ([]*models.Task, error) {
	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, storeErr("scan task", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list tasks", err)
	}
	return tasks, nil
}
