package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial card schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS cards (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					player_name TEXT,
					team TEXT,
					year TEXT,
					set_name TEXT,
					card_number TEXT,
					manufacturer TEXT,
					sport TEXT CHECK (sport IS NULL OR sport IN ('baseball', 'basketball', 'football', 'hockey', 'soccer')),
					sport_provenance TEXT,
					condition TEXT,
					grading_company TEXT,
					grading_grade TEXT,
					grading_cert TEXT,
					front_image_ref TEXT NOT NULL,
					back_image_ref TEXT,
					estimated_value REAL,
					purchase_price REAL,
					notes TEXT,
					provider TEXT,
					confidence REAL NOT NULL DEFAULT 0 CHECK (confidence >= 0 AND confidence <= 1),
					created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_cards_sport ON cards(sport)`,
				`CREATE INDEX IF NOT EXISTS idx_cards_created ON cards(created_at)`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add market valuation columns",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`ALTER TABLE cards ADD COLUMN market_value REAL`,
				`ALTER TABLE cards ADD COLUMN market_low REAL`,
				`ALTER TABLE cards ADD COLUMN market_high REAL`,
				`ALTER TABLE cards ADD COLUMN market_sample_size INTEGER NOT NULL DEFAULT 0`,
				`ALTER TABLE cards ADD COLUMN market_confidence REAL NOT NULL DEFAULT 0`,
				`ALTER TABLE cards ADD COLUMN market_source TEXT`,
				`ALTER TABLE cards ADD COLUMN valued_at DATETIME`,
			}
			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Index cards by valuation age",
		Up: func(tx *sql.Tx) error {
			if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_cards_valued ON cards(valued_at)`); err != nil {
				return fmt.Errorf("failed to create valuation index: %w", err)
			}
			return nil
		},
	},
}

// SchemaVersion returns the version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// PendingMigrations returns the migrations Migrate would apply.
func (s *SQLiteStorage) PendingMigrations(ctx context.Context) ([]Migration, error) {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	pending, err := s.PendingMigrations(ctx)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
