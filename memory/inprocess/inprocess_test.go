package inprocess

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/validation"
)

func key(t *testing.T, s string) validation.MemoryKey {
	t.Helper()
	k, err := validation.NewMemoryKey(s)
	require.NoError(t, err)
	return k
}

func TestLoadManyPreservesOrder(t *testing.T) {
	ctx := context.Background()
	b := New()
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
	b := New()

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
	b := New()
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
	assert.Equal(t, "original", v, "pre-transaction value must be preserved on rollback")
}

func TestTransactionRecoversPanicAsError(t *testing.T) {
	ctx := context.Background()
	b := New()
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
	b := New()
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "foo"), Value: "1"}))
	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "bar"), Value: "2"}))

	snap, err := b.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Store(ctx, memory.Update{Key: key(t, "baz"), Value: "3"}))
	require.NoError(t, b.Restore(ctx, snap))

	v, found, _ := b.Load(ctx, key(t, "foo"))
	assert.True(t, found)
	assert.Equal(t, "1", v)

	v, found, _ = b.Load(ctx, key(t, "bar"))
	assert.True(t, found)
	assert.Equal(t, "2", v)

	_, found, _ = b.Load(ctx, key(t, "baz"))
	assert.False(t, found, "keys written after the snapshot must not survive restore")
}
