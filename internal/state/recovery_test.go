package state

import (
	"testing"

	"github.com/ShayCichocki/backrun/pkg/models"
)

func TestResetRunning(t *testing.T) {
	db := setupTestDB(t)

	tasks := []*models.Task{newTask("T-1"), newTask("T-2"), newTask("T-3")}
	if err := db.SyncTasks(tasks); err != nil {
		t.Fatalf("SyncTasks failed: %v", err)
	}
	if err := db.SetTaskStatus("T-1", models.TaskStatusRunning); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}
	if err := db.SetTaskStatus("T-2", models.TaskStatusCompleted); err != nil {
		t.Fatalf("SetTaskStatus failed: %v", err)
	}

	count, err := db.ResetRunning()
	if err != nil {
		t.Fatalf("ResetRunning failed: %v", err)
	}
	if count != 1 {
		t.Errorf("ResetRunning reset %d tasks, want 1", count)
	}

	got, err := db.GetTask("T-1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusPending {
		t.Errorf("T-1 status = %q, want pending after reset", got.Status)
	}

	// Completed tasks are untouched.
	got, err = db.GetTask("T-2")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Status != models.TaskStatusCompleted {
		t.Errorf("T-2 status = %q, want completed", got.Status)
	}
}

func TestResetRunning_NothingToReset(t *testing.T) {
	db := setupTestDB(t)

	if err := db.UpsertTask(newTask("T-1")); err != nil {
		t.Fatalf("UpsertTask failed: %v", err)
	}

	count, err := db.ResetRunning()
	if err != nil {
		t.Fatalf("ResetRunning failed: %v", err)
	}
	if count != 0 {
		t.Errorf("ResetRunning reset %d tasks, want 0", count)
	}
}
