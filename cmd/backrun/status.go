package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/backrun/internal/config"
	"github.com/ShayCichocki/backrun/internal/state"
	"github.com/ShayCichocki/backrun/pkg/models"
)

var statusDBPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show backlog progress and recent activity",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDBPath, "db", "", "state database to read (default from config)")
}

// statusDisplayOrder lists task states in the order status output shows
// them, most actionable first.
var statusDisplayOrder = []models.TaskStatus{
	models.TaskStatusRunning,
	models.TaskStatusPending,
	models.TaskStatusBlocked,
	models.TaskStatusFailed,
	models.TaskStatusCompleted,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	dbPath := resolveExistingDBPath(root, statusDBPath, cfg)
	if dbPath == "" {
		fmt.Println("No runs recorded yet. Run 'backrun auto' to execute the backlog.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	summary, err := db.GetStatusSummary()
	if err != nil {
		return fmt.Errorf("read status summary: %w", err)
	}

	total := 0
	for _, n := range summary {
		total += n
	}

	fmt.Printf("Backlog status  (%s)\n\n", dbPath)
	if total == 0 {
		fmt.Println("No tasks recorded yet. Run 'backrun auto' to execute the backlog.")
		return nil
	}

	for _, status := range statusDisplayOrder {
		if n := summary[status]; n > 0 {
			fmt.Printf("  %-10s %s\n", status, formatNumber(n))
		}
	}
	fmt.Printf("  %-10s %s\n", "total", formatNumber(total))

	if err := printRecentExecutions(db); err != nil {
		return err
	}
	return printMetrics(db)
}

// printRecentExecutions shows the last few attempts across all tasks.
func printRecentExecutions(db *state.DB) error {
	records, err := db.ListExecutions("")
	if err != nil {
		return fmt.Errorf("read executions: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	const maxShown = 5
	start := 0
	if len(records) > maxShown {
		start = len(records) - maxShown
	}

	fmt.Println("\nRecent executions:")
	for _, rec := range records[start:] {
		glyph := color.GreenString("✓")
		detail := ""
		if rec.Status == models.TaskStatusFailed {
			glyph = color.RedString("✗")
			detail = fmt.Sprintf("  (%s: %s)", rec.ErrorCategory, firstLine(rec.ErrorMessage))
		}
		fmt.Printf("  %s %-10s %6s  %s ago%s\n",
			glyph, rec.TaskID, formatDuration(rec.Duration()),
			formatDuration(time.Since(rec.StartedAt)), detail)
	}
	return nil
}

// printMetrics shows per-task aggregates derived from execution history.
func printMetrics(db *state.DB) error {
	metrics, err := db.ListMetrics()
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}
	if len(metrics) == 0 {
		return nil
	}

	fmt.Println("\nTask metrics:")
	fmt.Printf("  %-10s %6s %9s %10s\n", "TASK", "RUNS", "SUCCESS", "AVG TIME")
	for _, m := range metrics {
		fmt.Printf("  %-10s %6s %8.0f%% %9.1fs\n",
			m.TaskID, formatNumber(m.TotalExecutions), m.SuccessRate*100, m.AvgExecutionTime)
	}
	return nil
}

// firstLine truncates an error message to its first line for one-line
// status output.
func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// formatDuration renders a duration compactly: 45s, 12m, 3h20m, 2d.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
}

// formatNumber renders an integer with thousands separators.
func formatNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i := 0; i < len(s); i++ {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return string(out)
}
