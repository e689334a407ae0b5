package sqlbackend

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corebound/agentrt/memory"
)

// MigrationStatus exposes the schema's current position, grounded on
// MemoryAdmin::migrate_to_version's companion read path in the teacher
// source.
func (b *Backend) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	defer pc.Release()
	return b.migrations.Status(ctx, pc.Conn())
}

// MigrateToVersion runs pending up-migrations (version 0 means "latest").
func (b *Backend) MigrateToVersion(ctx context.Context, version int) error {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()
	return b.migrations.Migrate(ctx, pc.Conn(), version)
}

// RollbackToVersion reverts migrations above version, in descending order.
func (b *Backend) RollbackToVersion(ctx context.Context, version int) error {
	pc, err := b.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer pc.Release()
	return b.migrations.Rollback(ctx, pc.Conn(), version)
}

// BackupFormat identifies the encoding of a BackupHandle's data.
type BackupFormat int

const (
	// BackupFormatJSON is the JSON snapshot format Snapshot/Restore produce.
	BackupFormatJSON BackupFormat = iota
	// BackupFormatSQLiteDump is a raw SQLite page dump, not yet supported.
	BackupFormatSQLiteDump
)

func (f BackupFormat) String() string {
	switch f {
	case BackupFormatJSON:
		return "json"
	case BackupFormatSQLiteDump:
		return "sqlite_dump"
	default:
		return "unknown"
	}
}

// BackupHandle wraps a backup's bytes with the identity and provenance an
// operator needs to track and later restore it, mirroring the Rust
// MemoryAdmin trait's BackupHandle.
type BackupHandle struct {
	ID        string
	CreatedAt time.Time
	SizeBytes int64
	Format    BackupFormat
	Data      []byte
}

// Backup snapshots the memory table and wraps it in a BackupHandle. The
// dump-format alternative from the teacher's BackupFormat enum is not
// produced because nothing in the runtime consumes raw SQLite page dumps;
// RestoreFromBackup rejects it explicitly if one is ever handed back in.
func (b *Backend) Backup(ctx context.Context) (BackupHandle, error) {
	data, err := b.Snapshot(ctx)
	if err != nil {
		return BackupHandle{}, err
	}
	return BackupHandle{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		SizeBytes: int64(len(data)),
		Format:    BackupFormatJSON,
		Data:      data,
	}, nil
}

// RestoreFromBackup replaces the memory table's contents with handle's data.
func (b *Backend) RestoreFromBackup(ctx context.Context, handle BackupHandle) error {
	if handle.Format != BackupFormatJSON {
		return &memory.RestoreFailedError{Reason: fmt.Sprintf("backup format %s not supported", handle.Format)}
	}
	return b.Restore(ctx, handle.Data)
}

// HealthStatus is a tri-state reading of the backend's condition, mirroring
// the Rust MemoryAdmin trait's HealthStatus enum: Healthy and Degraded carry
// the pool counts behind the verdict, Unhealthy carries a reason instead
// since no pool reading could be trusted.
type HealthStatus struct {
	state      healthState
	details    string
	poolStatus PoolHealth
	errorCount int
}

type healthState int

const (
	healthUnhealthy healthState = iota
	healthDegraded
	healthHealthy
)

// IsHealthy reports whether every pooled connection answered the probe.
func (h HealthStatus) IsHealthy() bool { return h.state == healthHealthy }

// IsDegraded reports whether some, but not all, connections answered.
func (h HealthStatus) IsDegraded() bool { return h.state == healthDegraded }

// IsUnhealthy reports whether no connection could be confirmed healthy.
func (h HealthStatus) IsUnhealthy() bool { return h.state == healthUnhealthy }

// Details describes the Healthy or Degraded verdict, or "" for Unhealthy.
func (h HealthStatus) Details() string {
	if h.state == healthUnhealthy {
		return ""
	}
	return h.details
}

// Reason describes the Unhealthy verdict, or "" otherwise.
func (h HealthStatus) Reason() string {
	if h.state != healthUnhealthy {
		return ""
	}
	return h.details
}

// PoolStatus returns the connection counts behind a Healthy/Degraded
// verdict. The second return value is false for Unhealthy.
func (h HealthStatus) PoolStatus() (PoolHealth, bool) {
	if h.state == healthUnhealthy {
		return PoolHealth{}, false
	}
	return h.poolStatus, true
}

// ErrorCount returns the Unhealthy error tally. The second return value is
// false for Healthy/Degraded.
func (h HealthStatus) ErrorCount() (int, bool) {
	if h.state != healthUnhealthy {
		return 0, false
	}
	return h.errorCount, true
}

// HealthStatus probes pool occupancy plus a row-count read and classifies
// the result as Healthy (every connection answered), Degraded (some did),
// or Unhealthy (none did, or the pool check returned an error), the same
// three-way split as the Rust original's health_status. A row-count read
// that cannot get a connection leaves the count at -1 and does not change
// the verdict.
func (b *Backend) HealthStatus(ctx context.Context) (HealthStatus, error) {
	poolStatus, err := b.pool.HealthCheck(ctx)
	if err != nil {
		return HealthStatus{state: healthUnhealthy, details: err.Error(), errorCount: 1}, nil
	}

	rowCount := int64(-1)
	if pc, acquireErr := b.pool.Acquire(ctx); acquireErr == nil {
		_ = pc.Conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM memory").Scan(&rowCount)
		pc.Release()
	}

	switch {
	case poolStatus.HealthyConnections == poolStatus.TotalConnections:
		return HealthStatus{
			state:      healthHealthy,
			details:    fmt.Sprintf("all %d connections healthy, %d keys stored", poolStatus.TotalConnections, rowCount),
			poolStatus: poolStatus,
		}, nil
	case poolStatus.HealthyConnections > 0:
		return HealthStatus{
			state:      healthDegraded,
			details:    fmt.Sprintf("only %d/%d connections healthy", poolStatus.HealthyConnections, poolStatus.TotalConnections),
			poolStatus: poolStatus,
		}, nil
	default:
		return HealthStatus{state: healthUnhealthy, details: "no healthy connections available", errorCount: 1}, nil
	}
}
