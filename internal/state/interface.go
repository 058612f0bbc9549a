// Package state provides SQLite-based state management for backrun.
package state

import (
	"io"

	"github.com/ShayCichocki/backrun/pkg/models"
)

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	UpsertTask(t *models.Task) error
	SyncTasks(tasks []*models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks(status *models.TaskStatus) ([]*models.Task, error)
	SetTaskStatus(id string, status models.TaskStatus) error
	MarkTaskBlocked(id, reason string) error
	GetStatusSummary() (map[models.TaskStatus]int, error)
	ResetRunning() (int64, error)
}

// ExecutionStore handles execution history and derived metrics.
type ExecutionStore interface {
	RecordExecution(rec *models.ExecutionRecord) error
	ListExecutions(taskID string) ([]models.ExecutionRecord, error)
	GetMetrics(taskID string) (*models.TaskMetrics, error)
	ListMetrics() ([]models.TaskMetrics, error)
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence.
// This interface allows the engine to work with any state backend
// without depending on the concrete SQLite implementation.
// It composes focused sub-interfaces for better modularity.
type Store interface {
	io.Closer
	Migrator
	TaskStore
	ExecutionStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store          = (*DB)(nil)
	_ Migrator       = (*DB)(nil)
	_ TaskStore      = (*DB)(nil)
	_ ExecutionStore = (*DB)(nil)
)
