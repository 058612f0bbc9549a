package state

import (
	"log"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// ResetRunning resets tasks stuck in the running state back to pending.
// A task can only be left running when a previous run crashed or was
// killed mid-execution, so this runs once at startup before any
// scheduling decision reads task state.
// Returns the number of tasks reset.
func (db *DB) ResetRunning() (int64, error) {
	result, err := db.Exec(`
		UPDATE tasks SET status = ? WHERE status = ?
	`, string(models.TaskStatusPending), string(models.TaskStatusRunning))
	if err != nil {
		return 0, storeErr("reset running tasks", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("get rows affected", err)
	}

	if count > 0 {
		log.Printf("Reset %d orphaned running task(s) to pending", count)
	}
	return count, nil
}
