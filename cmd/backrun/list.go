package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/backrun/internal/state"
	"github.com/ShayCichocki/backrun/pkg/models"
)

var (
	listFormat       string
	listStatusFilter string
	listBacklogPath  string
	listConfigPath   string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List backlog tasks and their state",
	Long: `list prints the backlog tasks in document order, merged with any
lifecycle state recorded by previous runs.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listFormat, "format", "table", "output format: table, json, or yaml")
	listCmd.Flags().StringVar(&listStatusFilter, "status", "", "only show tasks with this status")
	listCmd.Flags().StringVar(&listBacklogPath, "backlog", "", "backlog file to list (default from config)")
	listCmd.Flags().StringVar(&listConfigPath, "config", "", "config file to read (default from the usual places)")
}

// taskRow is the list command's output shape for a single task.
type taskRow struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Priority      string   `json:"priority" yaml:"priority"`
	Status        string   `json:"status" yaml:"status"`
	Score         *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	DependsOn     []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	HumanRequired bool     `json:"human_required,omitempty" yaml:"human_required,omitempty"`
	Ready         bool     `json:"ready" yaml:"ready"`
	BlockedReason string   `json:"blocked_reason,omitempty" yaml:"blocked_reason,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(listConfigPath)
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := resolveBacklogPath(root, listBacklogPath, cfg)

	tasks, err := loadBacklog(path)
	if err != nil {
		return err
	}
	if err := overlayStoredState(root, tasks); err != nil {
		return err
	}

	// The ready computation needs the full backlog; filtering happens
	// afterwards.
	completed := make(map[string]bool)
	for _, t := range tasks {
		if t.Status == models.TaskStatusCompleted {
			completed[t.ID] = true
		}
	}

	var filter models.TaskStatus
	if listStatusFilter != "" {
		filter = models.TaskStatus(strings.ToLower(listStatusFilter))
		if !filter.Valid() {
			return fmt.Errorf("unknown status %q (expected pending, running, completed, failed, or blocked)", listStatusFilter)
		}
	}

	rows := make([]taskRow, 0, len(tasks))
	for _, t := range tasks {
		if filter != "" && t.Status != filter {
			continue
		}
		rows = append(rows, taskRow{
			ID:            t.ID,
			Title:         t.Title,
			Priority:      string(t.Priority),
			Status:        string(t.Status),
			Score:         t.Score,
			DependsOn:     t.DependsOn,
			HumanRequired: t.HumanRequired,
			Ready:         t.Eligible(completed),
			BlockedReason: t.BlockedReason,
		})
	}

	switch listFormat {
	case "table":
		printTaskTable(rows)
		return nil
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		out, err := yaml.Marshal(rows)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	default:
		return fmt.Errorf("unknown format %q (expected table, json, or yaml)", listFormat)
	}
}

// overlayStoredState merges lifecycle fields recorded by previous runs
// into the parsed tasks. A missing database is not an error; the parsed
// state stands.
func overlayStoredState(root string, tasks []*models.Task) error {
	dbPath := state.ProjectDBPath(root)
	if _, err := os.Stat(dbPath); err != nil {
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	return overlayStoredTasks(db, tasks)
}

func printTaskTable(rows []taskRow) {
	if len(rows) == 0 {
		fmt.Println("No tasks.")
		return
	}
	fmt.Printf("%-8s %-40s %-9s %-10s %-6s %s\n", "ID", "TITLE", "PRIORITY", "STATUS", "READY", "DEPENDS ON")
	for _, r := range rows {
		ready := ""
		switch {
		case r.Ready:
			ready = "yes"
		case r.HumanRequired:
			ready = "human"
		}
		fmt.Printf("%-8s %-40s %-9s %-10s %-6s %s\n",
			r.ID, clip(r.Title, 40), r.Priority, r.Status, ready, strings.Join(r.DependsOn, ", "))
	}
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
