package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/backrun/internal/backlog"
	"github.com/ShayCichocki/backrun/internal/config"
	"github.com/ShayCichocki/backrun/internal/engine"
	"github.com/ShayCichocki/backrun/internal/runner"
	"github.com/ShayCichocki/backrun/internal/state"
	"github.com/ShayCichocki/backrun/pkg/models"
)

// loadConfig loads configuration from the usual places, or from an
// explicit file when the --config flag was given.
func loadConfig(flagPath string) (*config.Config, error) {
	if flagPath != "" {
		return config.LoadFromPath(flagPath)
	}
	return config.Load()
}

// projectRoot returns the directory project paths resolve against: the
// directory holding .backrun.yaml when one is found walking up from the
// working directory, otherwise the working directory itself.
func projectRoot() (string, error) {
	if cfgPath := config.GetProjectConfigPath(); cfgPath != "" {
		return filepath.Dir(cfgPath), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return cwd, nil
}

// resolveBacklogPath picks the backlog file path. A flag value overrides
// the configured one; relative paths resolve against the project root.
func resolveBacklogPath(root, flagPath string, cfg *config.Config) string {
	path := cfg.Backlog.Path
	if flagPath != "" {
		path = flagPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path
}

// loadBacklog reads and parses the backlog file, reporting any rows the
// parser skipped.
func loadBacklog(path string) ([]*models.Task, error) {
	src := &backlog.FileSource{Path: path}
	tasks, warnings, err := src.Load()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s: %s\n", filepath.Base(path), w)
	}
	return tasks, nil
}

// overlayStoredTasks merges lifecycle fields recorded by previous runs
// into the parsed tasks.
func overlayStoredTasks(db *state.DB, tasks []*models.Task) error {
	for _, t := range tasks {
		stored, err := db.GetTask(t.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			continue
		}
		t.Status = stored.Status
		t.RetryCount = stored.RetryCount
		t.BlockedReason = stored.BlockedReason
		t.CompletedAt = stored.CompletedAt
	}
	return nil
}

// resolveDBPath picks the state database path. A flag value overrides
// the configured one; relative paths resolve against the project root.
// Empty means the default project database.
func resolveDBPath(root, flagPath string, cfg *config.Config) string {
	path := cfg.State.Path
	if flagPath != "" {
		path = flagPath
	}
	if path == "" {
		return state.ProjectDBPath(root)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path
}

// resolveExistingDBPath resolves the database path for read-only
// commands: flag first, then configured state.path, then whichever of
// the project or global databases exists. Empty means nothing has been
// recorded yet.
func resolveExistingDBPath(root, flagPath string, cfg *config.Config) string {
	path := cfg.State.Path
	if flagPath != "" {
		path = flagPath
	}
	if path == "" {
		return findExistingDB(root)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return path
}

// openStore opens the state database at path, creating and migrating
// it as needed.
func openStore(path string) (*state.DB, error) {
	db, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// findExistingDB returns the path of the project database if one exists,
// falling back to the global database. Empty when neither exists, so
// read-only commands can report "nothing recorded yet" instead of
// creating an empty database.
func findExistingDB(root string) string {
	projectPath := state.ProjectDBPath(root)
	if _, err := os.Stat(projectPath); err == nil {
		return projectPath
	}
	globalPath := state.GlobalDBPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath
	}
	return ""
}

// engineConfigFrom maps the loaded configuration onto engine settings.
func engineConfigFrom(cfg *config.Config, maxTasks int) engine.Config {
	return engine.Config{
		MaxRetries:              cfg.Engine.MaxRetries,
		BackoffBase:             cfg.Engine.BackoffBase,
		BackoffCap:              cfg.Engine.BackoffCap,
		ConsecutiveFailureLimit: cfg.Engine.ConsecutiveFailureLimit,
		MaxTasks:                maxTasks,
	}
}

// buildRunner constructs the task runner named by kind, or by the
// configuration when kind is empty.
func buildRunner(cfg *config.Config, root, kind string) (runner.Runner, error) {
	if kind == "" {
		kind = cfg.Runner.Kind
	}
	switch kind {
	case "", "command":
		workDir := cfg.Runner.WorkDir
		if workDir == "" {
			workDir = root
		}
		return runner.NewCommandRunner(workDir, cfg.Runner.Timeout), nil
	case "claude":
		apiKey := cfg.LLM.APIKey
		if !cfg.LLM.UseAWSBedrock {
			// Fail here with a usable message instead of on the first
			// task attempt.
			key, err := config.GetAPIKey(cfg)
			if err != nil {
				return nil, fmt.Errorf("claude runner: %w (set ANTHROPIC_API_KEY or llm.api_key)", err)
			}
			apiKey = key
		}
		return runner.NewClaudeRunner(runner.ClaudeConfig{
			Model:         anthropic.Model(cfg.LLM.Model),
			APIKey:        apiKey,
			UseAWSBedrock: cfg.LLM.UseAWSBedrock,
			AWSRegion:     cfg.LLM.AWSRegion,
			AWSProfile:    cfg.LLM.AWSProfile,
			MaxTokens:     cfg.LLM.MaxTokens,
		})
	case "noop":
		return &runner.NoopRunner{}, nil
	default:
		return nil, fmt.Errorf("unknown runner %q (expected command, claude, or noop)", kind)
	}
}

// stdoutIsTTY reports whether stdout is attached to a terminal, so the
// TUI is only started where it can render.
func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// consumeEventsHeadless prints engine events as plain lines for
// non-interactive runs.
func consumeEventsHeadless(events <-chan engine.Event) {
	for event := range events {
		switch event.Type {
		case engine.EventRunStarted, engine.EventRunCompleted:
			fmt.Printf("[RUN] %s\n", event.Message)
		case engine.EventTaskStarted:
			if event.RetryCount > 0 {
				fmt.Printf("[STARTED] %s: %s (attempt %d)\n", event.TaskID, event.TaskTitle, event.RetryCount+1)
			} else {
				fmt.Printf("[STARTED] %s: %s\n", event.TaskID, event.TaskTitle)
			}
		case engine.EventTaskCompleted:
			fmt.Printf("[DONE] %s\n", event.TaskID)
		case engine.EventTaskRetrying:
			fmt.Printf("[RETRY] %s (%s): %s\n", event.TaskID, event.Category, event.Message)
		case engine.EventTaskFailed:
			fmt.Printf("[FAILED] %s (%s): %v\n", event.TaskID, event.Category, event.Error)
		case engine.EventTaskSkipped:
			fmt.Printf("[SKIPPED] %s: %s\n", event.TaskID, event.Message)
		case engine.EventTaskBlocked:
			fmt.Printf("[BLOCKED] %s: %s\n", event.TaskID, event.Message)
		case engine.EventRunFatal:
			fmt.Printf("[FATAL] %s\n", event.Message)
		}
	}
}
