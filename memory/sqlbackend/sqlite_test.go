package sqlbackend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/observability"
	"github.com/corebound/agentrt/validation"
)

// spyTelemetry counts StartSpan calls by name, for asserting that a given
// operation opens exactly the spans it should.
type spyTelemetry struct {
	mu    sync.Mutex
	spans map[string]int
}

func newSpyTelemetry() *spyTelemetry { return &spyTelemetry{spans: make(map[string]int)} }

func (s *spyTelemetry) StartSpan(ctx context.Context, name string, _ ...observability.Attr) (context.Context, observability.Span) {
	s.mu.Lock()
	s.spans[name]++
	s.mu.Unlock()
	return ctx, spySpan{}
}

func (s *spyTelemetry) RecordMetric(string, float64, map[string]string) {}

func (s *spyTelemetry) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spans[name]
}

type spySpan struct{}

func (spySpan) End()                     {}
func (spySpan) SetAttribute(string, any) {}
func (spySpan) RecordError(error)        {}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.db")
	b, err := Open(context.Background(), path, "test", 1)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func key(t *testing.T, s string) validation.MemoryKey {
	t.Helper()
	k, err := validation.NewMemoryKey(s)
	require.NoError(t, err)
	return k
}

func TestValidateDatabasePathRejectsTraversal(t *testing.T) {
	_, err := validateDatabasePath("../../etc/passwd.db")
	assert.Error(t, err)
}

func TestValidateDatabasePathRejectsBadExtension(t *testing.T) {
	_, err := validateDatabasePath("/tmp/agentrt.txt")
	assert.Error(t, err)
}

func TestOpenRejectsBadNamespace(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(context.Background(), filepath.Join(dir, "x.db"), "DROP TABLE", 1)
	assert.Error(t, err)
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"}))
	v, found, err := b.Load(ctx, key(t, "a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v)

	_, found, err = b.Load(ctx, key(t, "missing"))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	err := b.Transaction(ctx, func(ctx context.Context, rw memory.ReaderWriter) error {
		return rw.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"})
	})
	require.NoError(t, err)

	v, found, err := b.Load(ctx, key(t, "a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v)
}

func TestTransactionRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "a"), Value: "original"}))

	err := b.Transaction(ctx, func(ctx context.Context, rw memory.ReaderWriter) error {
		if err := rw.Store(ctx, memory.Update{Key: key(t, "a"), Value: "changed"}); err != nil {
			return err
		}
		return &memory.TransactionFailedError{Reason: "simulated failure"}
	})
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*memory.TransactionFailedError)))

	v, found, err := b.Load(ctx, key(t, "a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "original", v)
}

func TestTransactionRecoversPanicAsError(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "a"), Value: "original"}))

	err := b.Transaction(ctx, func(ctx context.Context, rw memory.ReaderWriter) error {
		require.NoError(t, rw.Store(ctx, memory.Update{Key: key(t, "a"), Value: "changed"}))
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, errors.As(err, new(*memory.TransactionFailedError)))

	v, found, err := b.Load(ctx, key(t, "a"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "original", v, "a panicking closure must not commit its writes")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "foo"), Value: "1"}))
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "bar"), Value: "2"}))

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "baz"), Value: "3"}))
	require.NoError(t, b.Restore(ctx, snap))

	_, found, _ := b.Load(ctx, key(t, "baz"))
	assert.False(t, found)

	v, found, _ := b.Load(ctx, key(t, "foo"))
	assert.True(t, found)
	assert.Equal(t, "1", v)
}

func TestTransactionOpensOneSpanPerCall(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	spy := newSpyTelemetry()
	b.SetTelemetry(spy)

	err := b.Transaction(ctx, func(ctx context.Context, rw memory.ReaderWriter) error {
		return rw.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, spy.count("memory.sqlbackend.transaction"))

	err = b.Transaction(ctx, func(ctx context.Context, rw memory.ReaderWriter) error {
		return &memory.TransactionFailedError{Reason: "simulated failure"}
	})
	require.Error(t, err)
	assert.Equal(t, 2, spy.count("memory.sqlbackend.transaction"))
}

func TestMigrationStatusReportsAppliedMigration(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	status, err := b.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)
	assert.Empty(t, status.PendingMigrations)
	require.Len(t, status.AppliedMigrations, 1)
	assert.Equal(t, "create initial memory table", status.AppliedMigrations[0].Description)
}

func TestMigrationRoundTripRollsBackToCleanSchema(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"}))

	require.NoError(t, b.RollbackToVersion(ctx, 0))

	pc, err := b.pool.Acquire(ctx)
	require.NoError(t, err)
	_, queryErr := pc.Conn().QueryContext(ctx, "SELECT key, value FROM memory")
	assert.Error(t, queryErr, "memory table must not survive a rollback to version 0")
	pc.Release()

	require.NoError(t, b.MigrateToVersion(ctx, 0))
	status, err := b.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.CurrentVersion)

	_, found, err := b.Load(ctx, key(t, "a"))
	require.NoError(t, err)
	assert.False(t, found, "data from before the rollback must not reappear after re-migrating")
}

func TestRollbackPastMissingDownScriptErrors(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pool, err := OpenPool(ctx, filepath.Join(dir, "norollback.db"), 1)
	require.NoError(t, err)
	defer pool.Close()

	engine := &MigrationEngine{migrations: []Migration{
		{Version: 1, Description: "create table", Up: "CREATE TABLE t (id INTEGER PRIMARY KEY);", Down: "DROP TABLE t;"},
		{Version: 2, Description: "irreversible change", Up: "ALTER TABLE t ADD COLUMN note TEXT;", Down: ""},
	}}

	pc, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, engine.Migrate(ctx, pc.Conn(), 0))

	err = engine.Rollback(ctx, pc.Conn(), 0)
	require.Error(t, err, "rolling back past a migration with no down script must fail")

	status, err := engine.Status(ctx, pc.Conn())
	require.NoError(t, err)
	assert.Equal(t, 2, status.CurrentVersion, "a failed rollback must leave the schema version unchanged")
	pc.Release()
}

func TestPoolExhaustionReturnsConnectionFailed(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	pool, err := OpenPool(ctx, filepath.Join(dir, "x.db"), 1)
	require.NoError(t, err)
	defer pool.Close()

	first, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer first.Release()

	_, err = pool.Acquire(ctx)
	require.Error(t, err)
	var connErr *memory.ConnectionFailedError
	assert.True(t, errors.As(err, &connErr))
}
