package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	cleanupDryRun bool
	cleanupDays   int
	cleanupDBPath string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old execution records",
	Long: `Delete execution records older than a cutoff from the state database.

Task rows and derived metrics are kept; only the per-attempt history
shrinks. Use this when a long-lived backlog has accumulated more
history than you want to keep around.

Examples:
  backrun cleanup            # Purge records older than 30 days
  backrun cleanup --days 7   # Purge records older than 7 days
  backrun cleanup --dry-run  # Show what would be purged`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be purged without purging")
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Purge execution records older than this many days")
	cleanupCmd.Flags().StringVar(&cleanupDBPath, "db", "", "state database to purge (default from config)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if cleanupDays <= 0 {
		return fmt.Errorf("--days must be positive, got %d", cleanupDays)
	}

	cfg, err := loadConfig("")
	if err != nil {
		return err
	}
	root, err := projectRoot()
	if err != nil {
		return err
	}

	dbPath := resolveExistingDBPath(root, cleanupDBPath, cfg)
	if dbPath == "" {
		fmt.Println("No database found - nothing to purge.")
		return nil
	}

	db, err := openStore(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	maxAge := time.Duration(cleanupDays) * 24 * time.Hour

	if cleanupDryRun {
		records, err := db.ListExecutions("")
		if err != nil {
			return err
		}
		cutoff := time.Now().Add(-maxAge)
		count := 0
		for _, rec := range records {
			if rec.StartedAt.Before(cutoff) {
				count++
			}
		}
		fmt.Printf("Dry run: would purge %d execution record(s) older than %d days.\n", count, cleanupDays)
		return nil
	}

	purged, err := db.PurgeOldExecutions(maxAge)
	if err != nil {
		return fmt.Errorf("purge old executions: %w", err)
	}

	if purged > 0 {
		fmt.Printf("Purged %d execution record(s) older than %d days.\n", purged, cleanupDays)
	} else {
		fmt.Printf("No execution records older than %d days found.\n", cleanupDays)
	}
	return nil
}
