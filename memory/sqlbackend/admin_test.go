package sqlbackend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/memory"
)

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "foo"), Value: "1"}))

	handle, err := b.Backup(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, handle.ID)
	assert.Equal(t, BackupFormatJSON, handle.Format)
	assert.Equal(t, int64(len(handle.Data)), handle.SizeBytes)
	assert.False(t, handle.CreatedAt.IsZero())

	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "bar"), Value: "2"}))
	require.NoError(t, b.RestoreFromBackup(ctx, handle))

	_, found, err := b.Load(ctx, key(t, "bar"))
	require.NoError(t, err)
	assert.False(t, found, "keys written after the backup must not survive restore")

	v, found, err := b.Load(ctx, key(t, "foo"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", v)
}

func TestRestoreFromBackupRejectsUnsupportedFormat(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	err := b.RestoreFromBackup(ctx, BackupHandle{Format: BackupFormatSQLiteDump, Data: []byte("not json")})
	require.Error(t, err)
	assert.IsType(t, &memory.RestoreFailedError{}, err)
}

func TestHealthStatusReportsHealthyWithRowCount(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"}))

	status, err := b.HealthStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsHealthy())
	assert.False(t, status.IsDegraded())
	assert.False(t, status.IsUnhealthy())
	assert.Contains(t, status.Details(), "1 keys stored")

	pool, ok := status.PoolStatus()
	assert.True(t, ok)
	assert.Equal(t, pool.TotalConnections, pool.HealthyConnections)

	_, ok = status.ErrorCount()
	assert.False(t, ok)
}

func TestHealthStatusReportsUnhealthyWhenPoolCheckFails(t *testing.T) {
	b := newTestBackend(t)
	b.pool.Close()

	status, err := b.HealthStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.IsUnhealthy())
	assert.NotEmpty(t, status.Reason())

	count, ok := status.ErrorCount()
	assert.True(t, ok)
	assert.Equal(t, 1, count)

	_, ok = status.PoolStatus()
	assert.False(t, ok)
}
