package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxBackups is how many automatic backups are kept per database.
const MaxBackups = 5

// ErrNoBackupForMemory is returned when backing up an in-memory database.
var ErrNoBackupForMemory = errors.New("in-memory database cannot be backed up")

// Backup copies the database into a "backups" directory next to it with
// VACUUM INTO, verifies the copy, and prunes old backups. It returns the
// backup path.
func (s *SQLiteStorage) Backup(ctx context.Context, reason string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if s.dbPath == ":memory:" {
		return "", ErrNoBackupForMemory
	}

	dir, err := filepath.Abs(filepath.Join(filepath.Dir(s.dbPath), "backups"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve backup directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	tag := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '-'
	}, strings.ToLower(reason))
	dest := filepath.Join(dir, fmt.Sprintf("%s-%s.db", time.Now().Format("20060102-150405"), tag))

	// VACUUM INTO takes a literal; refuse anything that could escape it.
	if strings.ContainsAny(dest, `'";`) {
		return "", fmt.Errorf("invalid backup path %q", dest)
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	// #nosec G201 - dest is validated above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return "", fmt.Errorf("failed to backup database: %w", err)
	}
	if err := verifyIntegrity(ctx, dest); err != nil {
		_ = os.Remove(dest)
		return "", err
	}

	if err := pruneBackups(dir, MaxBackups); err != nil {
		slog.Warn("failed to prune old backups", "error", err)
	}
	return dest, nil
}

func verifyIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("failed to close backup database", "error", err)
		}
	}()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check backup integrity: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("backup integrity check failed: %s", result)
	}
	return nil
}

// pruneBackups keeps the newest keep backups. Names start with a sortable
// timestamp.
func pruneBackups(dir string, keep int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".db") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	var errs []error
	for i := keep; i < len(names); i++ {
		if err := os.Remove(filepath.Join(dir, names[i])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
