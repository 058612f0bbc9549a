package state

import (
	"reflect"
	"testing"
	"time"

	"github.com/ShayCichocki/backrun/pkg/models"
)

func newTask(id string) *models.Task {
	return &models.Task{
		ID:       id,
		Title:    "Task " + id,
		Priority: models.PriorityMedium,
		Points:   3,
		Status:   models.TaskStatusPending,
	}
}

func TestUpsertTask_Insert(t *testing.T) {
	db := setupTestDB(t)

	score := 7.5
	task := newTask("T-1")
	task.Description = "Fix the flaky importer"
	task.Priority = models.PriorityHigh
	task.Score = &score
	task.ScoreBreakdown = map[string]float64{"impact": 4, "effort": 3.5}
	task.DependsOn = []string{"T-0"}
	task.TechFootprint = "go, sqlite"
	task.HumanRequired = true
	task.Command = "make import"
	task.DocOrder = 2

	if err := db.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	got, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetTask returned nil for inserted task")
	}
	if got.Title != task.Title || got.Description != task.Description {
		t.Errorf("got (%q, %q), want (%q, %q)", got.Title, got.Description, task.Title, task.Description)
	}
	if got.Priority != models.PriorityHigh {
		t.Errorf("Priority = %q, want high", got.Priority)
	}
	if got.Score == nil || *got.Score != score {
		t.Errorf("Score = %v, want %v", got.Score, score)
	}
	if !reflect.DeepEqual(got.ScoreBreakdown, task.ScoreBreakdown) {
		t.Errorf("ScoreBreakdown = %v, want %v", got.ScoreBreakdown, task.ScoreBreakdown)
	}
	if !reflect.DeepEqual(got.DependsOn, []string{"T-0"}) {
		t.Errorf("DependsOn = %v, want [T-0]", got.DependsOn)
	}
	if !got.HumanRequired {
		t.Error("HumanRequired = false, want true")
	}
	if got.Command != "make import" {
		t.Errorf("Command = %q, want %q", got.Command, "make import")
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("Status = %q, want pending", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero, want set on insert")
	}
}

func TestUpsertTask_UpdatePreservesLifecycle(t *testing.T) {
	db := setupTestDB(t)

	task := newTask("T-1")
	if err := db.UpsertTask(task); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	// Move the task through its lifecycle outside the backlog.
	if err := db.SetTaskStatus("T-1", models.TaskStatusRunning); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if _, err := db.Exec("UPDATE tasks SET retry_count = 2 WHERE id = ?", "T-1"); err != nil {
		t.Fatalf("failed to bump retry count: %v", err)
	}

	// Re-sync the same task with changed backlog fields and a stale status.
	updated := newTask("T-1")
	updated.Title = "Renamed task"
	updated.Status = models.TaskStatusPending
	if err := db.UpsertTask(updated); err != nil {
		t.Fatalf("UpsertTask (update) failed: %v", err)
	}

	got, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Renamed task" {
		t.Errorf("Title = %q, want %q", got.Title, "Renamed task")
	}
	if got.Status != models.TaskStatusRunning {
		t.Errorf("Status = %q, want running (upsert must not touch status)", got.Status)
	}
	if got.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2 (upsert must not touch retry count)", got.RetryCount)
	}
}

func TestGetTask_NotFound(t *testing.T) {
	db := setupTestDB(t)

	got, err := db.GetTask("missing")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetTask(missing) = %v, want nil", got)
	}
}

func TestSyncTasks(t *testing.T) {
	db := setupTestDB(t)

	tasks := []*models.Task{newTask("T-1"), newTask("T-2"), newTask("T-3")}
	for i, task := range tasks {
		task.DocOrder = i
	}
	if err := db.SyncTasks(tasks); err != nil {
		t.Fatalf("SyncTasks failed: %v", err)
	}

	got, err := db.ListTasks(nil)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListTasks returned %d tasks, want 3", len(got))
	}
	for i, want := range []string{"T-1", "T-2", "T-3"} {
		if got[i].ID != want {
			t.Errorf("task[%d].ID = %q, want %q (document order)", i, got[i].ID, want)
		}
	}
}

func TestListTasks_StatusFilter(t *testing.T) {
	db := setupTestDB(t)

	a := newTask("T-1")
	b := newTask("T-2")
	if err := db.SyncTasks([]*models.Task{a, b}); err != nil {
		t.Fatalf("SyncTasks failed: %v", err)
	}
	if err := db.SetTaskStatus("T-2", models.TaskStatusCompleted); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	status := models.TaskStatusPending
	got, err := db.ListTasks(&status)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "T-1" {
		t.Errorf("ListTasks(pending) = %v, want [T-1]", got)
	}
}

func TestMarkTaskBlocked(t *testing.T) {
	db := setupTestDB(t)

	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}
	if err := db.MarkTaskBlocked("T-1", "dependency_failed:T-0"); err != nil {
		t.Fatalf("MarkTaskBlocked failed: %v", err)
	}

	got, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusBlocked {
		t.Errorf("Status = %q, want blocked", got.Status)
	}
	if got.BlockedReason != "dependency_failed:T-0" {
		t.Errorf("BlockedReason = %q, want dependency_failed:T-0", got.BlockedReason)
	}
}

func TestGetStatusSummary(t *testing.T) {
	db := setupTestDB(t)

	tasks := []*models.Task{newTask("T-1"), newTask("T-2"), newTask("T-3"), newTask("T-4")}
	if err := db.SyncTasks(tasks); err != nil {
		t.Fatalf("SyncTasks failed: %v", err)
	}
	if err := db.SetTaskStatus("T-2", models.TaskStatusCompleted); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if err := db.SetTaskStatus("T-3", models.TaskStatusFailed); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	summary, err := db.GetStatusSummary()
	if err != nil {
		t.Fatalf("GetStatusSummary failed: %v", err)
	}

	if summary[models.TaskStatusPending] != 2 {
		t.Errorf("pending = %d, want 2", summary[models.TaskStatusPending])
	}
	if summary[models.TaskStatusCompleted] != 1 {
		t.Errorf("completed = %d, want 1", summary[models.TaskStatusCompleted])
	}
	if summary[models.TaskStatusFailed] != 1 {
		t.Errorf("failed = %d, want 1", summary[models.TaskStatusFailed])
	}

	// Counts must account for every stored task.
	total := 0
	for _, count := range summary {
		total += count
	}
	if total != len(tasks) {
		t.Errorf("summary total = %d, want %d", total, len(tasks))
	}
}

func TestGetStatusSummary_Empty(t *testing.T) {
	db := setupTestDB(t)

	summary, err := db.GetStatusSummary()
	if err != nil {
		t.Fatalf("GetStatusSummary failed: %v", err)
	}
	if len(summary) != 0 {
		t.Errorf("summary = %v, want empty", summary)
	}
}

func TestUpsertTask_ZeroCreatedAtDefaultsToNow(t *testing.T) {
	db := setupTestDB(t)

	before := time.Now().Add(-time.Minute)
	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	got, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.CreatedAt.Before(before) {
		t.Errorf("CreatedAt = %v, want recent timestamp", got.CreatedAt)
	}
}
