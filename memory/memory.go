// Package memory defines the transactional memory abstraction of spec.md
// §4.1: layered Reader/Writer/Transactional/Snapshotable contracts over a
// validated MemoryKey -> string map, with two reference backends
// (memory/inprocess and memory/sqlbackend) plus an optional distributed one
// (memory/redisbackend). The contracts are grounded on the teacher's
// pkg/memory interfaces, generalized to match the richer Rust source
// (skreaver-core's MemoryReader/MemoryWriter/TransactionalMemory/
// SnapshotableMemory) that spec.md distills.
package memory

import (
	"context"

	"github.com/corebound/agentrt/validation"
)

// Update is a single key/value write.
type Update struct {
	Key   validation.MemoryKey
	Value string
}

// Reader loads values without mutating state. Implementations must be safe
// for concurrent callers.
type Reader interface {
	// Load returns the value for key, or ("", false) if absent.
	Load(ctx context.Context, key validation.MemoryKey) (string, bool, error)
	// LoadMany returns one result per key, preserving input order.
	LoadMany(ctx context.Context, keys []validation.MemoryKey) ([]LoadResult, error)
}

// LoadResult is one entry of a LoadMany response.
type LoadResult struct {
	Value string
	Found bool
}

// Writer applies writes. StoreMany is not required to be atomic by itself;
// atomicity is provided by Transactional.
type Writer interface {
	Store(ctx context.Context, update Update) error
	StoreMany(ctx context.Context, updates []Update) error
}

// ReaderWriter composes Reader and Writer — the handle passed into a
// Transactional closure.
type ReaderWriter interface {
	Reader
	Writer
}

// TxFunc receives a writer handle; a non-nil error discards every write
// made through that handle and restores the pre-call state.
type TxFunc func(ctx context.Context, rw ReaderWriter) error

// Transactional provides all-or-nothing write batches.
type Transactional interface {
	Transaction(ctx context.Context, fn TxFunc) error
}

// Snapshotable captures and restores a complete point-in-time view of all
// (key, value) pairs. The blob format is opaque to callers but round-trips.
type Snapshotable interface {
	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, blob []byte) error
}

// Backend is the full memory contract a runtime memory implementation
// satisfies: read, write, transact, and snapshot together.
type Backend interface {
	ReaderWriter
	Transactional
	Snapshotable
	// Close releases any resources (connection pools, clients) held by the
	// backend. Safe to call once during shutdown.
	Close() error
}
