package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/backrun/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	pathStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	pendingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")) // Gray

	runningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")) // Green

	doneStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")) // Dark green

	failedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // Red

	blockedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // Orange

	humanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")) // Light blue

	logTimeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")).
			Bold(true)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(titleStyle.Render("backrun"))
	b.WriteString(" ")
	b.WriteString(pathStyle.Render(a.backlogPath))
	b.WriteString("\n\n")

	b.WriteString(a.viewActivity())
	b.WriteString("\n")
	b.WriteString(a.viewTasks())
	b.WriteString("\n")
	b.WriteString(a.viewLogs())
	b.WriteString("\n")
	b.WriteString(a.viewFooter())
	return b.String()
}

// viewActivity renders the current activity line.
func (a *App) viewActivity() string {
	if a.done {
		if a.failed {
			return "  " + errorStyle.Render("✗ "+a.finalMsg) + "\n"
		}
		return "  " + successStyle.Render("✓ "+a.finalMsg) + "\n"
	}
	if a.activeID == "" {
		return "  " + a.spin.View() + pendingStyle.Render(" selecting next task") + "\n"
	}
	label := "running " + a.activeID
	if a.activeRetry > 0 {
		label = fmt.Sprintf("%s (attempt %d)", label, a.activeRetry+1)
	}
	if i, ok := a.index[a.activeID]; ok {
		label += "  " + a.tasks[i].Title
	}
	return "  " + a.spin.View() + runningStyle.Render(" "+label) + "\n"
}

// viewTasks renders the backlog with per-status glyphs.
func (a *App) viewTasks() string {
	if len(a.tasks) == 0 {
		return "  " + pendingStyle.Render("No tasks") + "\n"
	}

	var b strings.Builder
	b.WriteString("  " + sectionStyle.Render("Tasks") + "\n")
	for _, t := range a.tasks {
		glyph, style := statusGlyph(t)
		line := fmt.Sprintf("%s %-8s %-40s %s", glyph, t.ID, truncate(t.Title, 40), t.Priority)
		b.WriteString("   " + style.Render(line) + "\n")
	}
	return b.String()
}

// viewLogs renders the most recent event log lines.
func (a *App) viewLogs() string {
	if len(a.logs) == 0 {
		return ""
	}

	limit := 8
	if a.height > 30 {
		limit = 14
	}
	start := 0
	if len(a.logs) > limit {
		start = len(a.logs) - limit
	}

	var b strings.Builder
	b.WriteString("  " + sectionStyle.Render("Events") + "\n")
	for _, entry := range a.logs[start:] {
		ts := logTimeStyle.Render(entry.timestamp.Format("15:04:05"))
		msg := entry.message
		switch entry.level {
		case "ERROR":
			msg = failedStyle.Render(msg)
		case "WARN":
			msg = blockedStyle.Render(msg)
		}
		b.WriteString(fmt.Sprintf("   %s %s\n", ts, msg))
	}
	return b.String()
}

// viewFooter renders the footer with counts and help text.
func (a *App) viewFooter() string {
	var completed, failed, blocked int
	for _, t := range a.tasks {
		switch t.Status {
		case models.TaskStatusCompleted:
			completed++
		case models.TaskStatusFailed:
			failed++
		case models.TaskStatusBlocked:
			blocked++
		}
	}
	counts := fmt.Sprintf("%d/%d completed", completed, len(a.tasks))
	if failed > 0 {
		counts += fmt.Sprintf(" · %d failed", failed)
	}
	if blocked > 0 {
		counts += fmt.Sprintf(" · %d blocked", blocked)
	}
	return "  " + footerStyle.Render(counts+" · q to quit") + "\n"
}

// statusGlyph returns the display glyph and style for a task.
func statusGlyph(t *models.Task) (string, lipgloss.Style) {
	if t.HumanRequired && t.Status == models.TaskStatusPending {
		return "⚑", humanStyle
	}
	switch t.Status {
	case models.TaskStatusRunning:
		return "►", runningStyle
	case models.TaskStatusCompleted:
		return "✓", doneStyle
	case models.TaskStatusFailed:
		return "✗", failedStyle
	case models.TaskStatusBlocked:
		return "⊘", blockedStyle
	default:
		return "○", pendingStyle
	}
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
