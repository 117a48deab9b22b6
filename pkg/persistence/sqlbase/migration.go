// Package sqlbase holds the schema migration runner shared by SQL stores.
package sqlbase

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
)

// migrationLockKey is the pg advisory lock taken while migrating, so the api, worker and
// scheduler can start together against an empty database.
const migrationLockKey = 7346_2201

// Migration is one forward-only schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies Migrations in version order and records them in schema_migrations.
type Migrator struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations []Migration
}

func NewMigrator(logger *slog.Logger, db *sql.DB, migrations []Migration) *Migrator {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })

	return &Migrator{db: db, logger: logger, migrations: sorted}
}

// LatestVersion is the highest known migration version.
func (m *Migrator) LatestVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return m.migrations[len(m.migrations)-1].Version
}

// Migrate applies every migration newer than the recorded version. Each migration runs in its
// own transaction under an advisory lock and re-reads the version after taking it.
func (m *Migrator) Migrate(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	for _, migration := range m.migrations {
		applied, err := m.apply(ctx, migration)
		if err != nil {
			return err
		}

		if applied {
			m.logger.InfoContext(ctx, "Migration applied", "version", migration.Version, "name", migration.Name)
		}
	}

	m.logger.InfoContext(ctx, "Database schema is current", "version", m.LatestVersion())

	return nil
}

func (m *Migrator) apply(ctx context.Context, migration Migration) (bool, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey)
	if err != nil {
		return false, fmt.Errorf("failed to lock for migration %d: %w", migration.Version, err)
	}

	current, err := currentVersion(ctx, tx)
	if err != nil {
		return false, err
	}

	if migration.Version <= current {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, migration.SQL)
	if err != nil {
		return false, fmt.Errorf("failed to execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		migration.Version, migration.Name)
	if err != nil {
		return false, fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	err = tx.Commit()
	if err != nil {
		return false, fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	return true, nil
}

// CurrentVersion returns the highest applied schema version.
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	return currentVersion(ctx, m.db)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryer) (int, error) {
	var version int

	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to query current schema version: %w", err)
	}

	return version, nil
}
