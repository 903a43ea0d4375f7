package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundpost/campaigner/internal/config"
	"github.com/soundpost/campaigner/internal/db"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Clean up old data (send records, tracking events)",
	RunE:  runCleanup,
}

var (
	cleanupSendsDays  int
	cleanupEventsDays int
	cleanupDryRun     bool
)

func init() {
	cleanupCmd.Flags().IntVar(&cleanupSendsDays, "sends-days", 180, "Delete terminal send records older than N days")
	cleanupCmd.Flags().IntVar(&cleanupEventsDays, "events-days", 365, "Delete tracking events older than N days")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Show what would be deleted without actually deleting")
	cleanupCmd.Flags().StringVarP(&configFile, "config", "c", "/etc/campaigner/config.yaml", "Path to configuration file")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	if cleanupDryRun {
		fmt.Println("Dry run mode - no data will be deleted")
		fmt.Println()
	}

	sendsCutoff := time.Now().AddDate(0, 0, -cleanupSendsDays)
	if err := cleanupSends(database, sendsCutoff); err != nil {
		return fmt.Errorf("failed to cleanup sends: %w", err)
	}

	eventsCutoff := time.Now().AddDate(0, 0, -cleanupEventsDays)
	if err := cleanupEvents(database, eventsCutoff); err != nil {
		return fmt.Errorf("failed to cleanup events: %w", err)
	}

	if !cleanupDryRun {
		fmt.Println("\nCleanup completed")
	}
	return nil
}

func cleanupSends(database *db.DB, cutoff time.Time) error {
	var count int
	err := database.QueryRow(`
		SELECT COUNT(*) FROM sends
		WHERE status IN ('sent', 'failed') AND created_at < ?`,
		cutoff,
	).Scan(&count)
	if err != nil {
		return err
	}

	fmt.Printf("Send records older than %d days: %d\n", cleanupSendsDays, count)

	if !cleanupDryRun && count > 0 {
		result, err := database.Exec(`
			DELETE FROM sends
			WHERE status IN ('sent', 'failed') AND created_at < ?`,
			cutoff,
		)
		if err != nil {
			return err
		}
		deleted, _ := result.RowsAffected()
		fmt.Printf("  Deleted: %d\n", deleted)
	}
	return nil
}

func cleanupEvents(database *db.DB, cutoff time.Time) error {
	var count int
	err := database.QueryRow(`
		SELECT COUNT(*) FROM email_events WHERE created_at < ?`,
		cutoff,
	).Scan(&count)
	if err != nil {
		return err
	}

	fmt.Printf("Tracking events older than %d days: %d\n", cleanupEventsDays, count)

	if !cleanupDryRun && count > 0 {
		result, err := database.Exec(`DELETE FROM email_events WHERE created_at < ?`, cutoff)
		if err != nil {
			return err
		}
		deleted, _ := result.RowsAffected()
		fmt.Printf("  Deleted: %d\n", deleted)
	}
	return nil
}
