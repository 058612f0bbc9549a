package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a backrun project",
	Long: `Initialize a directory for use with backrun.

This command sets up everything needed to run a backlog:
  - Creates the .backrun directory structure
  - Creates a .backrun.yaml configuration template
  - Creates an example BACKLOG.md if none exists

The directory argument is optional and defaults to the current directory.

Examples:
  backrun init              # Initialize current directory
  backrun init ./myproject  # Initialize specific directory
  backrun init --force      # Reinitialize even if already set up`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing backrun in %s...\n\n", absPath)

	backrunDir := filepath.Join(absPath, ".backrun")
	if _, err := os.Stat(backrunDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	if err := os.MkdirAll(backrunDir, 0755); err != nil {
		return fmt.Errorf("creating .backrun directory: %w", err)
	}
	logsDir := filepath.Join(backrunDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating .backrun/logs directory: %w", err)
	}
	printStatus("✓", "Created .backrun directory structure", color.FgGreen)

	created, err := createProjectConfig(absPath)
	if err != nil {
		return fmt.Errorf("creating project config: %w", err)
	}
	if created {
		printStatus("✓", "Created .backrun.yaml template", color.FgGreen)
	} else {
		printStatus("✓", ".backrun.yaml already exists, left unchanged", color.FgGreen)
	}

	backlogPath := filepath.Join(absPath, "BACKLOG.md")
	created, err = createExampleBacklog(backlogPath)
	if err != nil {
		return fmt.Errorf("creating example backlog: %w", err)
	}
	if created {
		printStatus("✓", "Created example BACKLOG.md", color.FgGreen)
	} else {
		printStatus("✓", "BACKLOG.md already exists, left unchanged", color.FgGreen)
	}

	// Keep run state and logs out of version control when this is a
	// git repository.
	if _, err := os.Stat(filepath.Join(absPath, ".git")); err == nil {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus("✓", "Updated .gitignore with backrun entries", color.FgGreen)
	}

	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (only needed for the claude runner)", color.FgYellow)
	}

	fmt.Printf("\n%s backrun initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	fmt.Println("  1. Describe your work in BACKLOG.md")
	fmt.Println()
	fmt.Println("  2. Check the backlog parses and its dependencies resolve:")
	fmt.Println("     backrun validate")
	fmt.Println()
	fmt.Println("  3. Run it:")
	fmt.Println("     backrun auto")

	return nil
}

// createProjectConfig writes the .backrun.yaml template. Returns false
// when the file already exists; an existing config is never overwritten.
func createProjectConfig(repoPath string) (bool, error) {
	configPath := filepath.Join(repoPath, ".backrun.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return false, nil
	}

	template := `# backrun project configuration
# This file overrides defaults from ~/.config/backrun/config.yaml

# backlog:
#   path: BACKLOG.md

# engine:
#   max_retries: 3
#   backoff_base: 1s
#   backoff_cap: 30s
#   consecutive_failure_limit: 2

# runner:
#   kind: command        # command, claude, or noop
#   timeout: 10m

# llm:
#   model: claude-sonnet-4-5
#   max_tokens: 8192
`

	if err := os.WriteFile(configPath, []byte(template), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// createExampleBacklog writes a small working backlog demonstrating the
// table format and metadata comments. Returns false when the file
// already exists; an existing backlog is never overwritten.
func createExampleBacklog(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	example := `# Backlog

| ID  | Title                        | Priority | Points | Status  | Problem/Outcome                  | Tech Footprint | Dependencies |
|-----|------------------------------|----------|--------|---------|----------------------------------|----------------|--------------|
| T-1 | Say hello                    | high     | 1      | pending | Prove the runner works           | shell          | -            |
<!--run: echo "hello from backrun"-->
| T-2 | Say hello again              | medium   | 1      | pending | Prove dependencies gate work     | shell          | T-1          |
<!--score_total: 4.5-->
<!--run: echo "hello again"-->
| T-3 | Review the launch checklist  | low      | 1      | pending | A person signs off on the launch | ops            | T-2          |
<!--human_required: true-->
`

	if err := os.WriteFile(path, []byte(example), 0644); err != nil {
		return false, err
	}
	return true, nil
}

// updateGitignore adds backrun entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	backrunEntries := []string{
		".backrun/",
	}

	needsUpdate := false
	for _, entry := range backrunEntries {
		if !strings.Contains(existingContent, entry) {
			needsUpdate = true
			break
		}
	}

	if !needsUpdate {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)

	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}

	newContent.WriteString("\n# backrun\n")
	for _, entry := range backrunEntries {
		if !strings.Contains(existingContent, entry) {
			newContent.WriteString(entry + "\n")
		}
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
