package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/backrun/internal/config"
	"github.com/ShayCichocki/backrun/internal/state"
	"github.com/ShayCichocki/backrun/pkg/models"
)

var (
	historyLimit  int
	historyDBPath string
)

var historyCmd = &cobra.Command{
	Use:   "history [task-id]",
	Short: "Show recorded execution attempts",
	Long: `history lists execution attempts recorded by previous runs, newest
last. Every attempt is shown, including retries.

With a task id, only that task's attempts are shown, together with its
aggregate metrics.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum attempts to show (0 shows all)")
	historyCmd.Flags().StringVar(&historyDBPath, "db", "", "state database to read (default from config)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	taskID := ""
	if len(args) > 0 {
		taskID = args[0]
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	dbPath := resolveExistingDBPath(root, historyDBPath, cfg)
	if dbPath == "" {
		fmt.Println("No runs recorded yet. Run 'backrun auto' to execute the backlog.")
		return nil
	}

	db, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if taskID != "" {
		if err := printTaskHeader(db, taskID); err != nil {
			return err
		}
	}

	records, err := db.ListExecutions(taskID)
	if err != nil {
		return fmt.Errorf("read executions: %w", err)
	}
	if len(records) == 0 {
		if taskID != "" {
			fmt.Printf("No attempts recorded for task %s.\n", taskID)
		} else {
			fmt.Println("No attempts recorded yet.")
		}
		return nil
	}

	if historyLimit > 0 && len(records) > historyLimit {
		fmt.Printf("Showing the last %d of %d attempts. Use --limit 0 for all.\n\n", historyLimit, len(records))
		records = records[len(records)-historyLimit:]
	}

	fmt.Printf("  %-10s %-10s %-7s %-19s %8s  %s\n", "TASK", "STATUS", "ATTEMPT", "STARTED", "DURATION", "ERROR")
	for _, rec := range records {
		glyph := color.GreenString("✓")
		errText := ""
		if rec.Status == models.TaskStatusFailed {
			glyph = color.RedString("✗")
			errText = fmt.Sprintf("%s: %s", rec.ErrorCategory, firstLine(rec.ErrorMessage))
		}
		fmt.Printf("%s %-10s %-10s %-7d %-19s %8s  %s\n",
			glyph, rec.TaskID, rec.Status, rec.RetryCount+1,
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			formatDuration(rec.Duration()), clip(errText, 60))
	}
	return nil
}

// printTaskHeader shows the task's current state and aggregate metrics
// before its attempt list.
func printTaskHeader(db *state.DB, taskID string) error {
	task, err := db.GetTask(taskID)
	if err != nil {
		return fmt.Errorf("read task: %w", err)
	}
	if task != nil {
		fmt.Printf("%s  %s  [%s, %s]\n", task.ID, task.Title, task.Priority, task.Status)
	}

	metrics, err := db.GetMetrics(taskID)
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}
	if metrics != nil {
		fmt.Printf("%s attempts, %.0f%% success, %.1fs average\n\n",
			formatNumber(metrics.TotalExecutions), metrics.SuccessRate*100, metrics.AvgExecutionTime)
	} else if task != nil {
		fmt.Println()
	}
	return nil
}
