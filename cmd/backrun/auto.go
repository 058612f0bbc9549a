package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/backrun/internal/engine"
	"github.com/ShayCichocki/backrun/internal/runner"
	"github.com/ShayCichocki/backrun/pkg/models"
)

var (
	autoMaxTasks    int
	autoHeadless    bool
	autoRunnerKind  string
	autoBacklogPath string
	autoConfigPath  string
	autoDBPath      string
	autoDebugLog    string
)

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Execute eligible backlog tasks until done",
	Long: `auto runs the backlog: it repeatedly selects the highest-priority
eligible task, executes it through the configured runner, and records
the outcome, until no eligible task remains.

Selection is deterministic: higher priority first, then higher score,
then document order. A task is eligible when it is pending, all its
dependencies have completed, and it is not marked human-required.

Transient failures (network, timeout, database) are retried with
exponential backoff. When a task fails terminally, its direct
dependents are marked blocked and the run moves on. The run halts
early after too many consecutive task failures, or if the state
database becomes unavailable.

Progress is shown in an interactive view when stdout is a terminal;
--headless prints plain lines instead. Press Ctrl+C to stop after the
current task's bookkeeping completes.`,
	RunE: runAuto,
}

func init() {
	autoCmd.Flags().IntVar(&autoMaxTasks, "max-tasks", 0, "stop after this many tasks settle (0 means no limit)")
	autoCmd.Flags().BoolVar(&autoHeadless, "headless", false, "run without the interactive view")
	autoCmd.Flags().StringVar(&autoRunnerKind, "runner", "", "runner to use: command, claude, or noop (default from config)")
	autoCmd.Flags().StringVar(&autoBacklogPath, "backlog", "", "backlog file to run (default from config)")
	autoCmd.Flags().StringVar(&autoConfigPath, "config", "", "config file to read (default from the usual places)")
	autoCmd.Flags().StringVar(&autoDBPath, "db", "", "state database to record into (default from config)")
	autoCmd.Flags().StringVar(&autoDebugLog, "debug-log", "", "write engine debug output to this file")
}

func runAuto(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(autoConfigPath)
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := resolveBacklogPath(root, autoBacklogPath, cfg)

	tasks, err := loadBacklog(path)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("Backlog has no tasks. Nothing to do.")
		return nil
	}

	db, err := openStore(resolveDBPath(root, autoDBPath, cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	// Reconcile a previous crash and load recorded lifecycle state, so
	// the display starts from what actually happened.
	if _, err := db.ResetRunning(); err != nil {
		return err
	}
	if err := overlayStoredTasks(db, tasks); err != nil {
		return err
	}

	run, err := buildRunner(cfg, root, autoRunnerKind)
	if err != nil {
		return err
	}

	eng := engine.New(db, run, engineConfigFrom(cfg, autoMaxTasks))

	if autoDebugLog != "" {
		logger, err := engine.NewDebugLogger(autoDebugLog)
		if err != nil {
			return err
		}
		defer logger.Close()
		eng.SetDebugLogger(logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// On interrupt the attempt in flight is recorded before the run
	// halts; a second interrupt kills the process the usual way.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, finishing current bookkeeping...")
		cancel()
		signal.Stop(sigCh)
	}()

	if autoHeadless || !stdoutIsTTY() {
		return runAutoHeadless(ctx, eng, tasks, run, path)
	}
	return runAutoTUI(ctx, cancel, eng, tasks, path)
}

// runAutoHeadless runs the engine printing plain event lines.
func runAutoHeadless(ctx context.Context, eng *engine.Engine, tasks []*models.Task, run runner.Runner, backlogPath string) error {
	fmt.Printf("Running %s\n", backlogPath)
	fmt.Printf("  Tasks: %d\n", len(tasks))
	fmt.Printf("  Runner: %s\n", run.Name())
	fmt.Println()

	done := make(chan struct{})
	go func() {
		consumeEventsHeadless(eng.Events())
		close(done)
	}()

	summary, err := eng.Run(ctx, tasks)
	<-done

	fmt.Printf("\nRun finished in %s: %s\n", summary.Duration.Round(time.Second), summary.Line())
	if cr, ok := run.(*runner.ClaudeRunner); ok {
		if in, out := cr.Tracker().Total(); in+out > 0 {
			fmt.Printf("Claude usage: %d calls, ~%d tokens, $%.4f\n",
				cr.Tracker().Calls(), in+out, cr.Tracker().Cost())
		}
	}
	return err
}
