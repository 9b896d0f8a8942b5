package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// MigrationsFS should be set by the migrations package to embed migration
// files, allowing HomePulse to run migrations without the SQL files being
// present on the filesystem.
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS containing migration
// files. "." if files are at the root of the embedded filesystem.
var MigrationsDir = "."

// Migrate applies all pending migrations to the database.
//
// Migration files are named VERSION_description.up.sql (VERSION in
// YYYYMMDD_HHMMSS form) and are applied in version order, each in its own
// transaction. Re-running Migrate after a failure continues from the first
// unapplied migration.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If any migration fails (that migration is rolled back)
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version := strings.TrimSuffix(name, ".up.sql")

		var applied int
		err := db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if applied > 0 {
			continue
		}

		if err := db.applyMigration(ctx, name, version); err != nil {
			return err
		}
	}

	return nil
}

// applyMigration runs a single migration file inside a transaction.
func (db *DB) applyMigration(ctx context.Context, name, version string) error {
	sqlBytes, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, name))
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting migration %s: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op if committed

	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("applying migration %s: %w", version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version) VALUES (?)", version,
	); err != nil {
		return fmt.Errorf("recording migration %s: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %s: %w", version, err)
	}

	return nil
}
