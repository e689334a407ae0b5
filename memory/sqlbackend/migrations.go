package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/corebound/agentrt/memory"
)

// Migration is a single forward/backward schema step. Down is empty when a
// migration has no reverse — rolling back past it is then an error.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// AppliedMigration records when a migration landed.
type AppliedMigration struct {
	Version     int
	Description string
	AppliedAt   time.Time
}

// MigrationStatus reports the schema's current position relative to the
// full migration set.
type MigrationStatus struct {
	CurrentVersion    int
	LatestVersion     int
	PendingMigrations []int
	AppliedMigrations []AppliedMigration
}

// MigrationEngine owns the fixed migration set for the memory table.
type MigrationEngine struct {
	migrations []Migration
}

// NewMigrationEngine constructs the engine with the runtime's default
// migration set.
func NewMigrationEngine() *MigrationEngine {
	return &MigrationEngine{migrations: defaultMigrations()}
}

func defaultMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "create initial memory table",
			Up: `
				CREATE TABLE IF NOT EXISTS memory (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
					updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
				);
				CREATE INDEX IF NOT EXISTS idx_memory_updated_at ON memory(updated_at);
			`,
			Down: "DROP TABLE IF EXISTS memory;",
		},
	}
}

func (e *MigrationEngine) latestVersion() int {
	max := 0
	for _, m := range e.migrations {
		if m.Version > max {
			max = m.Version
		}
	}
	return max
}

func currentVersion(ctx context.Context, conn *sql.Conn) (int, error) {
	var v sql.NullInt64
	row := conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// Migrate brings the schema up to targetVersion (or the latest migration if
// targetVersion is 0), creating the schema_migrations tracking table first.
func (e *MigrationEngine) Migrate(ctx context.Context, conn *sql.Conn, targetVersion int) error {
	_, err := conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	)`)
	if err != nil {
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: "failed to create migrations table: " + err.Error()}
	}

	current, err := currentVersion(ctx, conn)
	if err != nil {
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: "failed to read schema version: " + err.Error()}
	}

	target := targetVersion
	if target == 0 {
		target = e.latestVersion()
	}

	sorted := append([]Migration(nil), e.migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if m.Version > current && m.Version <= target {
			if err := applyMigration(ctx, conn, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func applyMigration(ctx context.Context, conn *sql.Conn, m Migration) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: "failed to start migration transaction: " + err.Error()}
	}

	if _, err := tx.ExecContext(ctx, m.Up); err != nil {
		tx.Rollback()
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("migration %d failed: %s", m.Version, err)}
	}

	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version, description) VALUES (?, ?)", m.Version, m.Description); err != nil {
		tx.Rollback()
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("failed to record migration %d: %s", m.Version, err)}
	}

	if err := tx.Commit(); err != nil {
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("failed to commit migration %d: %s", m.Version, err)}
	}
	return nil
}

// Rollback reverts migrations above targetVersion in descending order,
// erroring if any of them has no Down script.
func (e *MigrationEngine) Rollback(ctx context.Context, conn *sql.Conn, targetVersion int) error {
	current, err := currentVersion(ctx, conn)
	if err != nil {
		return &memory.ConnectionFailedError{Backend: "sqlite", Reason: "failed to read schema version: " + err.Error()}
	}

	var toRollback []Migration
	for _, m := range e.migrations {
		if m.Version > targetVersion && m.Version <= current {
			toRollback = append(toRollback, m)
		}
	}
	sort.Slice(toRollback, func(i, j int) bool { return toRollback[i].Version > toRollback[j].Version })

	for _, m := range toRollback {
		if m.Down == "" {
			return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("migration %d has no down script, cannot roll back past it", m.Version)}
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return &memory.ConnectionFailedError{Backend: "sqlite", Reason: "failed to start rollback transaction: " + err.Error()}
		}
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			tx.Rollback()
			return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("rollback of migration %d failed: %s", m.Version, err)}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
			tx.Rollback()
			return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("failed to clear migration record %d: %s", m.Version, err)}
		}
		if err := tx.Commit(); err != nil {
			return &memory.ConnectionFailedError{Backend: "sqlite", Reason: fmt.Sprintf("failed to commit rollback of %d: %s", m.Version, err)}
		}
	}
	return nil
}

// Status reports the current schema position.
func (e *MigrationEngine) Status(ctx context.Context, conn *sql.Conn) (MigrationStatus, error) {
	current, err := currentVersion(ctx, conn)
	if err != nil {
		return MigrationStatus{}, &memory.ConnectionFailedError{Backend: "sqlite", Reason: err.Error()}
	}

	rows, err := conn.QueryContext(ctx, "SELECT version, description, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return MigrationStatus{}, &memory.ConnectionFailedError{Backend: "sqlite", Reason: err.Error()}
	}
	defer rows.Close()

	var applied []AppliedMigration
	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var a AppliedMigration
		var epoch int64
		if err := rows.Scan(&a.Version, &a.Description, &epoch); err != nil {
			return MigrationStatus{}, &memory.ConnectionFailedError{Backend: "sqlite", Reason: err.Error()}
		}
		a.AppliedAt = time.Unix(epoch, 0).UTC()
		applied = append(applied, a)
		appliedVersions[a.Version] = true
	}

	var pending []int
	for _, m := range e.migrations {
		if !appliedVersions[m.Version] {
			pending = append(pending, m.Version)
		}
	}
	sort.Ints(pending)

	return MigrationStatus{
		CurrentVersion:    current,
		LatestVersion:     e.latestVersion(),
		PendingMigrations: pending,
		AppliedMigrations: applied,
	}, nil
}
