package state

import (
	"testing"
	"time"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// recordAttempt is a helper that records one execution attempt with a
// fixed duration so metrics are deterministic.
func recordAttempt(t *testing.T, db *DB, taskID string, status models.TaskStatus, start time.Time, duration time.Duration, retryCount int) *models.ExecutionRecord {
	t.Helper()
	end := start.Add(duration)
	rec := &models.ExecutionRecord{
		TaskID:      taskID,
		Status:      status,
		StartedAt:   start,
		CompletedAt: &end,
		RetryCount:  retryCount,
	}
	if status == models.TaskStatusFailed {
		rec.ErrorMessage = "connection refused"
		rec.ErrorCategory = models.ErrorCategoryNetwork
		rec.ErrorSeverity = models.SeverityMedium
	}
	if err := db.RecordExecution(rec); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}
	return rec
}

func TestRecordExecution(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rec := recordAttempt(t, db, "T-1", models.TaskStatusCompleted, start, 10*time.Second, 0)

	if rec.ID == "" {
		t.Error("RecordExecution did not assign an ID")
	}

	// Task follows the record's status.
	task, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("task status = %q, want completed", task.Status)
	}
	if task.CompletedAt == nil {
		t.Error("task CompletedAt = nil, want set on completion")
	}

	records, err := db.ListExecutions("T-1")
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListExecutions returned %d records, want 1", len(records))
	}
	if records[0].ID != rec.ID {
		t.Errorf("record ID = %q, want %q", records[0].ID, rec.ID)
	}
	if got := records[0].Duration(); got != 10*time.Second {
		t.Errorf("Duration() = %v, want 10s", got)
	}
}

func TestRecordExecution_RetrySequence(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	// Two failed attempts followed by a success.
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	recordAttempt(t, db, "T-1", models.TaskStatusFailed, base, 10*time.Second, 0)
	recordAttempt(t, db, "T-1", models.TaskStatusFailed, base.Add(time.Minute), 20*time.Second, 1)
	recordAttempt(t, db, "T-1", models.TaskStatusCompleted, base.Add(2*time.Minute), 30*time.Second, 2)

	records, err := db.ListExecutions("T-1")
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("ListExecutions returned %d records, want 3", len(records))
	}
	for i, wantRetry := range []int{0, 1, 2} {
		if records[i].RetryCount != wantRetry {
			t.Errorf("record[%d].RetryCount = %d, want %d", i, records[i].RetryCount, wantRetry)
		}
	}
	if records[0].ErrorCategory != models.ErrorCategoryNetwork {
		t.Errorf("record[0].ErrorCategory = %q, want network", records[0].ErrorCategory)
	}

	task, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("task status = %q, want completed", task.Status)
	}
	if task.RetryCount != 2 {
		t.Errorf("task RetryCount = %d, want 2", task.RetryCount)
	}
}

func TestMetrics_Derivation(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	recordAttempt(t, db, "T-1", models.TaskStatusFailed, base, 10*time.Second, 0)
	recordAttempt(t, db, "T-1", models.TaskStatusFailed, base.Add(time.Minute), 20*time.Second, 1)
	recordAttempt(t, db, "T-1", models.TaskStatusCompleted, base.Add(2*time.Minute), 30*time.Second, 2)

	m, err := db.GetMetrics("T-1")
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}
	if m == nil {
		t.Fatal("GetMetrics returned nil after executions")
	}
	if m.TotalExecutions != 3 {
		t.Errorf("TotalExecutions = %d, want 3", m.TotalExecutions)
	}
	wantRate := 1.0 / 3.0
	if diff := m.SuccessRate - wantRate; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("SuccessRate = %v, want %v", m.SuccessRate, wantRate)
	}
	if m.AvgExecutionTime != 20 {
		t.Errorf("AvgExecutionTime = %v, want 20 seconds", m.AvgExecutionTime)
	}
}

func TestMetrics_SuccessRateBounds(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	statuses := []models.TaskStatus{
		models.TaskStatusFailed,
		models.TaskStatusCompleted,
		models.TaskStatusCompleted,
		models.TaskStatusFailed,
		models.TaskStatusCompleted,
	}
	for i, status := range statuses {
		recordAttempt(t, db, "T-1", status, base.Add(time.Duration(i)*time.Minute), 5*time.Second, 0)

		m, err := db.GetMetrics("T-1")
		if err != nil {
			t.Fatalf("GetMetrics failed: %v", err)
		}
		if m.SuccessRate < 0 || m.SuccessRate > 1 {
			t.Errorf("after %d executions: SuccessRate = %v, want within [0, 1]", i+1, m.SuccessRate)
		}
		if m.TotalExecutions != i+1 {
			t.Errorf("TotalExecutions = %d, want %d", m.TotalExecutions, i+1)
		}
	}
}

func TestGetMetrics_NeverExecuted(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	m, err := db.GetMetrics("T-1")
	if err != nil {
		t.Fatalf("GetMetrics failed: %v", err)
	}
	if m != nil {
		t.Errorf("GetMetrics = %v, want nil for task that never executed", m)
	}
}

func TestListExecutions_All(t *testing.T) {
	db := setupTestDB(t)
	if err := db.SyncTasks([]*models.Task{newTask("T-1"), newTask("T-2")}); err != nil {
		t.Fatalf("SyncTasks failed: %v", err)
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	recordAttempt(t, db, "T-1", models.TaskStatusCompleted, base, 5*time.Second, 0)
	recordAttempt(t, db, "T-2", models.TaskStatusCompleted, base.Add(time.Minute), 5*time.Second, 0)

	records, err := db.ListExecutions("")
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ListExecutions returned %d records, want 2", len(records))
	}
	if records[0].TaskID != "T-1" || records[1].TaskID != "T-2" {
		t.Errorf("records out of order: got [%s, %s]", records[0].TaskID, records[1].TaskID)
	}
}

func TestListMetrics(t *testing.T) {
	db := setupTestDB(t)
	if err := db.SyncTasks([]*models.Task{newTask("T-1"), newTask("T-2")}); err != nil {
		t.Fatalf("SyncTasks failed: %v", err)
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	recordAttempt(t, db, "T-2", models.TaskStatusCompleted, base, 5*time.Second, 0)
	recordAttempt(t, db, "T-1", models.TaskStatusFailed, base.Add(time.Minute), 5*time.Second, 0)

	metrics, err := db.ListMetrics()
	if err != nil {
		t.Fatalf("ListMetrics failed: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("ListMetrics returned %d rows, want 2", len(metrics))
	}
	if metrics[0].TaskID != "T-1" || metrics[1].TaskID != "T-2" {
		t.Errorf("metrics out of order: got [%s, %s]", metrics[0].TaskID, metrics[1].TaskID)
	}
	if metrics[0].SuccessRate != 0 {
		t.Errorf("T-1 SuccessRate = %v, want 0", metrics[0].SuccessRate)
	}
	if metrics[1].SuccessRate != 1 {
		t.Errorf("T-2 SuccessRate = %v, want 1", metrics[1].SuccessRate)
	}
}

func TestPurgeOldExecutions(t *testing.T) {
	db := setupTestDB(t)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	recordAttempt(t, db, "T-1", models.TaskStatusFailed, old, 5*time.Second, 0)
	recordAttempt(t, db, "T-1", models.TaskStatusCompleted, recent, 5*time.Second, 0)

	purged, err := db.PurgeOldExecutions(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldExecutions failed: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	records, err := db.ListExecutions("T-1")
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("records after purge = %d, want 1", len(records))
	}
}
