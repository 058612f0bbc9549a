// Package tui provides the terminal user interface for backrun runs.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/backrun/internal/engine"
	"github.com/ShayCichocki/backrun/pkg/models"
)

// TasksMsg delivers the backlog snapshot the run will work through.
type TasksMsg struct {
	Tasks []*models.Task
}

// EngineEventMsg wraps an engine event for the TUI.
type EngineEventMsg struct {
	Event engine.Event
}

// DoneMsg signals that the run has finished.
type DoneMsg struct {
	Summary *engine.RunSummary
	Err     error
}

// logEntry is one line in the event log.
type logEntry struct {
	timestamp time.Time
	level     string
	message   string
}

// App is the main bubbletea model for a backrun run.
type App struct {
	// backlogPath is shown in the title bar.
	backlogPath string
	// tasks is the backlog in document order.
	tasks []*models.Task
	// index maps task ID to its position in tasks.
	index map[string]int
	// logs holds recent event log lines.
	logs []logEntry
	// spin animates while a task is executing.
	spin spinner.Model
	// activeID is the task currently executing, if any.
	activeID string
	// activeRetry is the retry index of the current attempt.
	activeRetry int
	// width and height track the terminal size.
	width  int
	height int
	// done, failed, and finalMsg describe the finished run.
	done     bool
	failed   bool
	finalMsg string
	// quitting indicates the app is shutting down.
	quitting bool
}

// New creates a new App for the given backlog path.
func New(backlogPath string) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &App{
		backlogPath: backlogPath,
		index:       make(map[string]int),
		spin:        s,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spin.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case TasksMsg:
		a.setTasks(msg.Tasks)

	case EngineEventMsg:
		a.handleEngineEvent(msg.Event)

	case DoneMsg:
		a.done = true
		a.failed = msg.Err != nil
		if msg.Err != nil {
			a.finalMsg = msg.Err.Error()
		} else if msg.Summary != nil {
			a.finalMsg = msg.Summary.Line()
		}
	}

	return a, nil
}

// setTasks replaces the task list and rebuilds the ID index.
func (a *App) setTasks(tasks []*models.Task) {
	a.tasks = tasks
	a.index = make(map[string]int, len(tasks))
	for i, t := range tasks {
		a.index[t.ID] = i
	}
}

// handleEngineEvent folds one engine event into the display state.
func (a *App) handleEngineEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventTaskStarted:
		a.setStatus(ev.TaskID, models.TaskStatusRunning)
		a.activeID = ev.TaskID
		a.activeRetry = ev.RetryCount
		if ev.RetryCount > 0 {
			a.log(ev.Timestamp, "INFO", fmt.Sprintf("started %s (attempt %d)", ev.TaskID, ev.RetryCount+1))
		} else {
			a.log(ev.Timestamp, "INFO", "started "+ev.TaskID)
		}

	case engine.EventTaskCompleted:
		a.setStatus(ev.TaskID, models.TaskStatusCompleted)
		a.clearActive(ev.TaskID)
		a.log(ev.Timestamp, "INFO", "completed "+ev.TaskID)

	case engine.EventTaskRetrying:
		a.log(ev.Timestamp, "WARN", fmt.Sprintf("%s failed (%s), %s", ev.TaskID, ev.Category, ev.Message))

	case engine.EventTaskFailed:
		a.setStatus(ev.TaskID, models.TaskStatusFailed)
		a.clearActive(ev.TaskID)
		a.log(ev.Timestamp, "ERROR", fmt.Sprintf("%s failed (%s): %v", ev.TaskID, ev.Category, ev.Error))

	case engine.EventTaskBlocked:
		a.setStatus(ev.TaskID, models.TaskStatusBlocked)
		a.log(ev.Timestamp, "WARN", fmt.Sprintf("%s blocked: %s", ev.TaskID, ev.Message))

	case engine.EventTaskSkipped:
		a.log(ev.Timestamp, "INFO", fmt.Sprintf("%s skipped: %s", ev.TaskID, ev.Message))

	case engine.EventRunStarted:
		a.log(ev.Timestamp, "INFO", ev.Message)

	case engine.EventRunCompleted:
		a.log(ev.Timestamp, "INFO", ev.Message)

	case engine.EventRunFatal:
		a.log(ev.Timestamp, "ERROR", ev.Message)
	}
}

// setStatus updates a task's display status in place.
func (a *App) setStatus(id string, status models.TaskStatus) {
	if i, ok := a.index[id]; ok {
		a.tasks[i].Status = status
	}
}

// clearActive drops the activity line once its task settles.
func (a *App) clearActive(id string) {
	if a.activeID == id {
		a.activeID = ""
		a.activeRetry = 0
	}
}

// log appends an entry to the event log, keeping the last 200 lines.
func (a *App) log(ts time.Time, level, message string) {
	if ts.IsZero() {
		ts = time.Now()
	}
	a.logs = append(a.logs, logEntry{timestamp: ts, level: level, message: message})
	if len(a.logs) > 200 {
		a.logs = a.logs[len(a.logs)-200:]
	}
}

// NewProgram creates a Bubbletea program running the app, seeded with
// the parsed backlog so the first frame is already populated. Later
// updates are pushed in via Send().
func NewProgram(backlogPath string, tasks []*models.Task) (*tea.Program, *App) {
	app := New(backlogPath)
	app.setTasks(tasks)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
