package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/backrun/internal/backlog"
	"github.com/ShayCichocki/backrun/internal/graph"
)

var (
	validateBacklogPath string
	validateConfigPath  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the backlog for parse and dependency problems",
	Long: `validate parses the backlog and verifies its dependency graph without
executing anything. It reports rows the parser skipped, unknown
dependency ids, and dependency cycles, and exits non-zero when the
backlog cannot run.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateBacklogPath, "backlog", "", "backlog file to validate (default from config)")
	validateCmd.Flags().StringVar(&validateConfigPath, "config", "", "config file to read (default from the usual places)")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(validateConfigPath)
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}
	path := resolveBacklogPath(root, validateBacklogPath, cfg)

	src := &backlog.FileSource{Path: path}
	tasks, warnings, err := src.Load()
	if err != nil {
		return err
	}

	for _, w := range warnings {
		printStatus("⚠", w.String(), color.FgYellow)
	}
	if len(tasks) == 0 {
		printStatus("⚠", "backlog has no tasks", color.FgYellow)
		return nil
	}
	printStatus("✓", fmt.Sprintf("parsed %d task(s) from %s", len(tasks), path), color.FgGreen)

	g := graph.New()
	if err := g.Build(tasks); err != nil {
		printStatus("✗", err.Error(), color.FgRed)
		return fmt.Errorf("backlog validation failed")
	}
	printStatus("✓", "dependency graph is valid", color.FgGreen)

	fmt.Printf("\n%d of %d task(s) ready to run\n", len(g.GetReady()), len(tasks))
	return nil
}
