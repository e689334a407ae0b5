// Package inprocess implements memory.Backend as a reader-preferring
// in-process map, grounded on spec.md §4.1.1 and generalizing the teacher's
// (itsneelabh/gomind) core.InMemoryStore to the richer Reader/Writer/
// Transactional/Snapshotable contract set.
package inprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/validation"
)

// Backend is a map from validated memory keys to string values, protected
// by a sync.RWMutex so concurrent Load calls never block one another.
type Backend struct {
	mu   sync.RWMutex
	data map[string]string
}

// New constructs an empty in-process backend.
func New() *Backend {
	return &Backend{data: make(map[string]string)}
}

func (b *Backend) Load(_ context.Context, key validation.MemoryKey) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key.String()]
	return v, ok, nil
}

func (b *Backend) LoadMany(_ context.Context, keys []validation.MemoryKey) ([]memory.LoadResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	results := make([]memory.LoadResult, len(keys))
	for i, k := range keys {
		v, ok := b.data[k.String()]
		results[i] = memory.LoadResult{Value: v, Found: ok}
	}
	return results, nil
}

func (b *Backend) Store(_ context.Context, update memory.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[update.Key.String()] = update.Value
	return nil
}

// StoreMany acquires the write lock once, applying every update atomically
// with respect to concurrent readers (but see Transaction for atomicity
// with respect to failure part-way through a logical operation).
func (b *Backend) StoreMany(_ context.Context, updates []memory.Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range updates {
		b.data[u.Key.String()] = u.Value
	}
	return nil
}

// Transaction snapshots the map into a fresh scratch instance passed to fn
// as its writer handle. On success the original map is atomically replaced
// by the scratch copy; on failure the original is left untouched.
func (b *Backend) Transaction(ctx context.Context, fn memory.TxFunc) error {
	b.mu.Lock()
	scratch := &Backend{data: make(map[string]string, len(b.data))}
	for k, v := range b.data {
		scratch.data[k] = v
	}
	b.mu.Unlock()

	if err := runTxFunc(ctx, scratch, fn); err != nil {
		return err
	}

	scratch.mu.RLock()
	committed := scratch.data
	scratch.mu.RUnlock()

	b.mu.Lock()
	b.data = committed
	b.mu.Unlock()
	return nil
}

// runTxFunc runs fn and converts a panic into a TransactionFailedError, so a
// bug in a coordinator turn cannot take the whole process down mid-commit.
func runTxFunc(ctx context.Context, rw memory.ReaderWriter, fn memory.TxFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &memory.TransactionFailedError{Reason: fmt.Sprintf("transaction closure panicked: %v", r)}
		}
	}()
	return fn(ctx, rw)
}

// snapshotDoc is the JSON wire format for Snapshot/Restore: a flat object
// mapping keys to values, matching spec.md §6's persisted-state format.
type snapshotDoc map[string]string

func (b *Backend) Snapshot(_ context.Context) ([]byte, error) {
	b.mu.RLock()
	doc := make(snapshotDoc, len(b.data))
	for k, v := range b.data {
		doc[k] = v
	}
	b.mu.RUnlock()

	blob, err := json.Marshal(doc)
	if err != nil {
		return nil, &memory.SnapshotFailedError{Reason: err.Error()}
	}
	return blob, nil
}

func (b *Backend) Restore(_ context.Context, blob []byte) error {
	var doc snapshotDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return &memory.RestoreFailedError{Reason: err.Error()}
	}

	fresh := make(map[string]string, len(doc))
	for k, v := range doc {
		fresh[k] = v
	}

	b.mu.Lock()
	b.data = fresh
	b.mu.Unlock()
	return nil
}

// Close is a no-op; the in-process backend holds no external resources.
func (b *Backend) Close() error { return nil }

var _ memory.Backend = (*Backend)(nil)
