package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/backrun/internal/errclass"
	"github.com/ShayCichocki/backrun/internal/graph"
	"github.com/ShayCichocki/backrun/internal/runner"
	"github.com/ShayCichocki/backrun/internal/state"
	"github.com/ShayCichocki/backrun/pkg/models"
)

// ErrInterrupted is returned when a run halts on an external stop
// signal. The attempt in flight is recorded before the halt.
var ErrInterrupted = errors.New("run interrupted")

// DefaultConsecutiveFailureLimit is the number of consecutive terminal
// task failures that halts a run. Retries within a task do not count.
const DefaultConsecutiveFailureLimit = 2

// State represents the engine's position in its run loop.
type State string

const (
	// StateIdle means no run is in progress.
	StateIdle State = "idle"
	// StateSelecting means the engine is choosing the next task.
	StateSelecting State = "selecting"
	// StateRunning means a task attempt is executing.
	StateRunning State = "running"
)

// Config tunes the run loop. Zero values fall back to defaults.
type Config struct {
	// MaxRetries caps retries per task for transient failures.
	MaxRetries int
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration
	// BackoffCap bounds the exponential backoff delay.
	BackoffCap time.Duration
	// ConsecutiveFailureLimit halts the run after this many terminal
	// task failures in a row.
	ConsecutiveFailureLimit int
	// MaxTasks stops the run after this many tasks reach a terminal
	// outcome. Zero means no limit.
	MaxTasks int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = errclass.DefaultMaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = errclass.DefaultBackoffBase
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = errclass.DefaultBackoffCap
	}
	if c.ConsecutiveFailureLimit <= 0 {
		c.ConsecutiveFailureLimit = DefaultConsecutiveFailureLimit
	}
	return c
}

// FatalError halts a run and explains what stopped it.
type FatalError struct {
	// TaskID is the task whose failure triggered the halt, if any.
	TaskID string
	// Category is the classified category of the triggering failure.
	Category models.ErrorCategory
	// Consecutive is the consecutive-failure count at the halt, or zero
	// for storage failures.
	Consecutive int
	// Reason describes non-failure halts (e.g. storage loss).
	Reason string
	// Err is the underlying error.
	Err error
}

func (e *FatalError) Error() string {
	if e.Consecutive > 0 {
		return fmt.Sprintf("halted after %d consecutive task failures; last failure: task %s (category %s): %v. Fix the failing tasks or raise the consecutive failure limit.",
			e.Consecutive, e.TaskID, e.Category, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// RunSummary reports what a run did.
type RunSummary struct {
	// Executed counts tasks that reached a terminal outcome this run.
	Executed int
	// Completed counts tasks that succeeded.
	Completed int
	// Failed counts tasks that failed terminally.
	Failed int
	// Blocked counts tasks blocked by a failed dependency this run.
	Blocked int
	// Skipped counts human-required tasks left for a person. They also
	// count as Remaining since their status stays pending.
	Skipped int
	// Remaining counts tasks still pending when the run ended.
	Remaining int
	// Duration is the wall-clock length of the run.
	Duration time.Duration
}

// Line renders the summary as a single log-friendly line.
func (s *RunSummary) Line() string {
	return fmt.Sprintf("%d completed, %d failed, %d blocked, %d skipped, %d pending",
		s.Completed, s.Failed, s.Blocked, s.Skipped, s.Remaining)
}

// Engine executes one backlog run. Single-threaded: one task attempt at
// a time, in the deterministic order produced by Next.
type Engine struct {
	store   state.Store
	run     runner.Runner
	cfg     Config
	emitter *EventEmitter
	logger  *DebugLogger

	state       State
	consecutive int

	tasks map[string]*models.Task
	order []*models.Task
	graph *graph.DependencyGraph
}

// New creates an engine over the given store and runner.
func New(store state.Store, run runner.Runner, cfg Config) *Engine {
	return &Engine{
		store:   store,
		run:     run,
		cfg:     cfg.withDefaults(),
		emitter: NewEventEmitter(64),
		logger:  NopLogger(),
		state:   StateIdle,
	}
}

// SetDebugLogger routes engine debug output to the given logger.
func (e *Engine) SetDebugLogger(l *DebugLogger) {
	if l != nil {
		e.logger = l
		setPackageLogger(l)
	}
}

// Events returns the engine's event stream. The channel is closed when
// Run returns.
func (e *Engine) Events() <-chan Event {
	return e.emitter.Events()
}

// State returns the engine's current loop state.
func (e *Engine) State() State {
	return e.state
}

// Run executes the given backlog snapshot until the queue drains, a
// fatal condition hits, MaxTasks is reached, or ctx is canceled.
// Dependency validation runs before any execution: unknown dependency
// IDs and cycles refuse the run. Run is one-shot per Engine; it closes
// the event channel on return.
func (e *Engine) Run(ctx context.Context, tasks []*models.Task) (*RunSummary, error) {
	started := time.Now()
	summary := &RunSummary{}
	defer func() {
		summary.Duration = time.Since(started)
		e.state = StateIdle
		e.emitter.Close()
	}()

	if err := e.prepare(tasks); err != nil {
		return summary, err
	}

	e.emit(Event{Type: EventRunStarted, Message: fmt.Sprintf("%d tasks loaded", len(e.order))})
	e.logger.Log("run started with %d tasks", len(e.order))

	announced := make(map[string]bool)
	runErr := e.loop(ctx, summary, announced)

	summary.Skipped = len(announced)
	for _, t := range e.order {
		if t.Status == models.TaskStatusPending {
			summary.Remaining++
		}
	}

	switch {
	case runErr == nil:
		e.emit(Event{Type: EventRunCompleted, Message: summary.Line()})
		e.logger.Log("run completed: %s", summary.Line())
	case errors.Is(runErr, ErrInterrupted):
		e.emit(Event{Type: EventRunCompleted, Message: "interrupted: " + summary.Line()})
		e.logger.Log("run interrupted: %s", summary.Line())
	default:
		// The fatal event was emitted where the failure happened.
	}
	return summary, runErr
}

// prepare validates the backlog and loads the effective task state:
// backlog-derived fields from the parse, lifecycle state from the store.
func (e *Engine) prepare(tasks []*models.Task) error {
	// Refuse to start on an invalid dependency graph, before any write.
	g := graph.New()
	g.SetDebugLog(debugLog)
	if err := g.Build(tasks); err != nil {
		return fmt.Errorf("dependency validation: %w", err)
	}

	if _, err := e.store.ResetRunning(); err != nil {
		return e.fatal(err, nil)
	}
	if err := e.store.SyncTasks(tasks); err != nil {
		return e.fatal(err, nil)
	}

	inBacklog := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		inBacklog[t.ID] = true
	}

	stored, err := e.store.ListTasks(nil)
	if err != nil {
		return e.fatal(err, nil)
	}

	e.tasks = make(map[string]*models.Task, len(tasks))
	e.order = e.order[:0]
	for _, t := range stored {
		// Rows synced from earlier versions of the backlog do not run.
		if !inBacklog[t.ID] {
			continue
		}
		e.tasks[t.ID] = t
		e.order = append(e.order, t)
	}

	// Rebuild the graph over the effective snapshot so readiness sees
	// statuses persisted by previous runs.
	e.graph = graph.New()
	e.graph.SetDebugLog(debugLog)
	if err := e.graph.Build(e.order); err != nil {
		return fmt.Errorf("dependency validation: %w", err)
	}
	return nil
}

func (e *Engine) loop(ctx context.Context, summary *RunSummary, announced map[string]bool) error {
	for {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		if e.cfg.MaxTasks > 0 && summary.Executed >= e.cfg.MaxTasks {
			e.logger.Log("max tasks (%d) reached", e.cfg.MaxTasks)
			return nil
		}

		e.state = StateSelecting
		next := e.selectNext(announced)
		if next == nil {
			return nil
		}
		e.logger.Log("selected task %s (priority %s)", next.ID, next.Priority)

		if err := e.executeTask(ctx, next, summary); err != nil {
			return err
		}
	}
}

// selectNext gathers eligible candidates and picks the next task.
// Human-required tasks are announced once and never auto-executed.
func (e *Engine) selectNext(announced map[string]bool) *models.Task {
	ready := e.graph.GetReady()
	var candidates []*models.Task
	for _, id := range ready {
		t := e.tasks[id]
		if t == nil || t.Status != models.TaskStatusPending {
			continue
		}
		if t.HumanRequired {
			if !announced[id] {
				announced[id] = true
				e.logger.Log("task %s requires a human, not auto-executing", id)
				e.emit(Event{Type: EventTaskSkipped, TaskID: id, TaskTitle: t.Title, Message: "requires human action"})
			}
			continue
		}
		candidates = append(candidates, t)
	}
	return Next(candidates)
}

// executeTask runs one task through its retry loop until it reaches a
// terminal outcome. The returned error is non-nil only for run-fatal
// conditions (storage loss, interruption, consecutive-failure halt); a
// plain task failure returns nil so the run continues.
func (e *Engine) executeTask(ctx context.Context, task *models.Task, summary *RunSummary) error {
	e.state = StateRunning
	retryCount := task.RetryCount

	for {
		if err := e.store.SetTaskStatus(task.ID, models.TaskStatusRunning); err != nil {
			return e.fatal(err, task)
		}
		task.Status = models.TaskStatusRunning
		e.emit(Event{Type: EventTaskStarted, TaskID: task.ID, TaskTitle: task.Title, RetryCount: retryCount})
		e.logger.Log("task %s started (attempt %d)", task.ID, retryCount+1)

		startedAt := time.Now()
		output, runErr := e.run.Run(ctx, task)
		completedAt := time.Now()

		rec := &models.ExecutionRecord{
			TaskID:      task.ID,
			StartedAt:   startedAt,
			CompletedAt: &completedAt,
			RetryCount:  retryCount,
			Output:      truncateOutput(output),
		}

		if runErr == nil {
			rec.Status = models.TaskStatusCompleted
			if err := e.store.RecordExecution(rec); err != nil {
				return e.fatal(err, task)
			}
			task.Status = models.TaskStatusCompleted
			task.RetryCount = retryCount
			task.CompletedAt = &completedAt
			e.graph.MarkComplete(task.ID)
			e.consecutive = 0
			summary.Executed++
			summary.Completed++
			e.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, TaskTitle: task.Title, RetryCount: retryCount})
			e.logger.Log("task %s completed", task.ID)
			return nil
		}

		category, severity := errclass.Classify(runErr)
		rec.Status = models.TaskStatusFailed
		rec.ErrorMessage = runErr.Error()
		rec.ErrorCategory = category
		rec.ErrorSeverity = severity
		if err := e.store.RecordExecution(rec); err != nil {
			return e.fatal(err, task)
		}
		task.Status = models.TaskStatusFailed
		task.RetryCount = retryCount

		// The attempt's bookkeeping is durable; honor interruption now.
		// The task goes back to pending so the next run picks it up.
		if ctx.Err() != nil {
			return e.restorePending(task)
		}

		if errclass.ShouldRetry(category, retryCount, e.cfg.MaxRetries) {
			delay := errclass.Backoff(e.cfg.BackoffBase, e.cfg.BackoffCap, retryCount)
			e.emit(Event{Type: EventTaskRetrying, TaskID: task.ID, TaskTitle: task.Title,
				Error: runErr, Category: category, RetryCount: retryCount,
				Message: fmt.Sprintf("retrying in %s", delay)})
			e.logger.Log("task %s failed (%s), retrying in %s", task.ID, category, delay)
			if err := sleepCtx(ctx, delay); err != nil {
				return e.restorePending(task)
			}
			retryCount++
			continue
		}

		// Terminal failure: record it, block dependents, move on.
		e.consecutive++
		summary.Executed++
		summary.Failed++
		e.emit(Event{Type: EventTaskFailed, TaskID: task.ID, TaskTitle: task.Title,
			Error: runErr, Category: category, RetryCount: retryCount})
		e.logger.Log("task %s failed terminally (%s): %v", task.ID, category, runErr)

		if err := e.blockDependents(task, summary); err != nil {
			return e.fatal(err, task)
		}

		if e.consecutive >= e.cfg.ConsecutiveFailureLimit {
			ferr := &FatalError{TaskID: task.ID, Category: category, Consecutive: e.consecutive, Err: runErr}
			e.emit(Event{Type: EventRunFatal, TaskID: task.ID, Error: runErr,
				Category: category, Message: ferr.Error()})
			e.logger.Log("fatal: %s", ferr.Error())
			return ferr
		}
		return nil
	}
}

// blockDependents marks direct pending dependents of a failed task as
// blocked so they are reported rather than silently never selected.
func (e *Engine) blockDependents(failed *models.Task, summary *RunSummary) error {
	for _, depID := range e.graph.GetDependents(failed.ID) {
		t := e.tasks[depID]
		if t == nil || t.Status != models.TaskStatusPending {
			continue
		}
		reason := "dependency_failed:" + failed.ID
		if err := e.store.MarkTaskBlocked(depID, reason); err != nil {
			return err
		}
		t.Status = models.TaskStatusBlocked
		t.BlockedReason = reason
		summary.Blocked++
		e.emit(Event{Type: EventTaskBlocked, TaskID: depID, TaskTitle: t.Title, Message: reason})
		e.logger.Log("task %s blocked (%s)", depID, reason)
	}
	return nil
}

// restorePending returns an interrupted task to the pending state and
// reports the interruption.
func (e *Engine) restorePending(task *models.Task) error {
	if err := e.store.SetTaskStatus(task.ID, models.TaskStatusPending); err != nil {
		return e.fatal(err, task)
	}
	task.Status = models.TaskStatusPending
	e.logger.Log("task %s interrupted, left pending for next run", task.ID)
	return ErrInterrupted
}

// fatal wraps a persistence failure as a run-fatal error and announces it.
func (e *Engine) fatal(err error, task *models.Task) error {
	ferr := &FatalError{Err: err}
	if task != nil {
		ferr.TaskID = task.ID
	}
	if errors.Is(err, state.ErrStorageUnavailable) {
		ferr.Reason = "storage unavailable, cannot continue"
	} else {
		ferr.Reason = "persistence failure, cannot continue"
	}
	e.emit(Event{Type: EventRunFatal, TaskID: ferr.TaskID, Error: err, Message: ferr.Error()})
	e.logger.Log("fatal: %v", err)
	return ferr
}

func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	e.emitter.Emit(ev)
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// maxStoredOutput caps captured runner output per attempt so a noisy
// command cannot bloat the database.
const maxStoredOutput = 64 * 1024

// truncateOutput caps output for storage.
func truncateOutput(s string) string {
	if len(s) <= maxStoredOutput {
		return s
	}
	return s[:maxStoredOutput] + "\n... (truncated)"
}
