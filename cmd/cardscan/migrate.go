package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/collectorstream/internal/cli"
	"github.com/Veraticus/collectorstream/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the collection database schema to the latest version.

A backup is written next to the database before any pending migration runs.`,
		RunE: runMigrate,
	}

	// Flags
	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")
	cmd.Flags().Bool("no-backup", false, "Skip the pre-migration backup")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	status, _ := cmd.Flags().GetBool("status")
	noBackup, _ := cmd.Flags().GetBool("no-backup")
	dbPath := appConfig.Storage.DatabasePath

	slog.Info("Starting database migration",
		"database", dbPath,
		"status_only", status)

	// Open without migrating so pending work can be inspected first
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	pending, err := store.PendingMigrations(ctx)
	if err != nil {
		return err
	}

	if status {
		slog.Info(cli.FormatTitle("Database Migration Status"))
		slog.Info("Database", "path", dbPath)
		slog.Info("Schema", "current", current, "latest", storage.ExpectedSchemaVersion, "pending", len(pending))
		for _, m := range pending {
			slog.Info("Pending migration", "version", m.Version, "description", m.Description)
		}
		return nil
	}

	if len(pending) == 0 {
		slog.Info(cli.FormatSuccess("Database schema is up to date"), "version", current)
		return nil
	}

	if current > 0 && !noBackup {
		backup, err := store.Backup(ctx, fmt.Sprintf("pre-migration-v%d", current))
		if err != nil {
			return fmt.Errorf("backup failed, not migrating: %w", err)
		}
		slog.Info(cli.FormatInfo("Backup written"), "path", backup)
	}

	slog.Info(cli.FormatInfo("Running database migrations..."), "pending", len(pending))
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info(cli.FormatSuccess("Database migrations completed successfully!"), "version", storage.ExpectedSchemaVersion)
	return nil
}
