package redisbackend

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/validation"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	b, err := Open(context.Background(), "redis://"+mr.Addr(), "test", 0)
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

func TestOpenRejectsBadNamespace(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	_, err = Open(context.Background(), "redis://"+mr.Addr(), "DROP TABLE", 0)
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

func TestLoadManyPreservesOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"}))
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "b"), Value: "2"}))

	results, err := b.LoadMany(ctx, []validation.MemoryKey{key(t, "b"), key(t, "missing"), key(t, "a")})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, memory.LoadResult{Value: "2", Found: true}, results[0])
	assert.Equal(t, memory.LoadResult{Value: "", Found: false}, results[1])
	assert.Equal(t, memory.LoadResult{Value: "1", Found: true}, results[2])
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

func TestTransactionDiscardsBufferOnFailure(t *testing.T) {
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

func TestTransactionReadsPendingWritesBeforeCommit(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	err := b.Transaction(ctx, func(ctx context.Context, rw memory.ReaderWriter) error {
		require.NoError(t, rw.Store(ctx, memory.Update{Key: key(t, "a"), Value: "1"}))
		v, found, err := rw.Load(ctx, key(t, "a"))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "1", v)
		return nil
	})
	require.NoError(t, err)
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
