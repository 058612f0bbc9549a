package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/backrun/internal/backlog"
	"github.com/ShayCichocki/backrun/internal/graph"
	"github.com/ShayCichocki/backrun/internal/state"
	"github.com/ShayCichocki/backrun/internal/watch"
)

var (
	watchBacklogPath string
	watchConfigPath  string
	watchDBPath      string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-validate the backlog whenever it changes",
	Long: `watch validates the backlog, then waits for the file to change and
validates again after every save. Valid snapshots are synced into the
state database so list and status stay current while you edit.

Press Ctrl+C to stop.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchBacklogPath, "backlog", "", "backlog file to watch (default from config)")
	watchCmd.Flags().StringVar(&watchConfigPath, "config", "", "config file to read (default from the usual places)")
	watchCmd.Flags().StringVar(&watchDBPath, "db", "", "state database to sync into (default from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(watchConfigPath)
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := resolveBacklogPath(root, watchBacklogPath, cfg)

	db, err := openStore(resolveDBPath(root, watchDBPath, cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	w, err := watch.New(path, cfg.Watch.Debounce)
	if err != nil {
		return err
	}
	defer w.Close()

	// Validate once up front so the first feedback doesn't wait for a
	// save.
	checkBacklog(w.Path(), db)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fmt.Printf("\nWatching %s (Ctrl+C to stop)\n", w.Path())

	for {
		select {
		case <-sigCh:
			fmt.Println("\nStopped watching.")
			return nil
		case changed := <-w.Changes():
			fmt.Printf("\n%s changed\n", changed)
			checkBacklog(changed, db)
		}
	}
}

// checkBacklog parses and validates the backlog, syncing the snapshot
// into the store when it is runnable. Problems are printed, never
// returned: the watch keeps going so the next save can fix them.
func checkBacklog(path string, db *state.DB) {
	src := &backlog.FileSource{Path: path}
	tasks, warnings, err := src.Load()
	if err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		return
	}
	for _, w := range warnings {
		printStatus("⚠", w.String(), color.FgYellow)
	}
	if len(tasks) == 0 {
		printStatus("⚠", "backlog has no tasks", color.FgYellow)
		return
	}

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		return
	}

	if err := db.SyncTasks(tasks); err != nil {
		printStatus("✗", fmt.Sprintf("sync tasks: %v", err), color.FgRed)
		return
	}
	printStatus("✓", fmt.Sprintf("%d task(s) valid, %d ready", len(tasks), len(g.GetReady())), color.FgGreen)
}
