package memory

import (
	"fmt"

	"github.com/corebound/agentrt/validation"
)

// FailureKind distinguishes the StoreFailed sub-kinds of spec.md §4.1.
type FailureKind string

const (
	FailureInvalidKey    FailureKind = "invalid_key"
	FailureConnectivity  FailureKind = "backend_connectivity"
	FailureQuotaExceeded FailureKind = "quota_or_size"
)

// LoadFailedError corresponds to spec.md's LoadFailed{key, reason}.
type LoadFailedError struct {
	Key    validation.MemoryKey
	Reason string
}

func (e *LoadFailedError) Error() string {
	return fmt.Sprintf("load failed for key %q: %s", e.Key.String(), e.Reason)
}

// StoreFailedError corresponds to spec.md's StoreFailed{key, backend, kind}.
type StoreFailedError struct {
	Key     validation.MemoryKey
	Backend string
	Kind    FailureKind
	Reason  string
}

func (e *StoreFailedError) Error() string {
	return fmt.Sprintf("store failed for key %q on backend %s (%s): %s", e.Key.String(), e.Backend, e.Kind, e.Reason)
}

// RestoreFailedError corresponds to spec.md's RestoreFailed{reason}.
type RestoreFailedError struct{ Reason string }

func (e *RestoreFailedError) Error() string { return fmt.Sprintf("restore failed: %s", e.Reason) }

// SnapshotFailedError corresponds to spec.md's SnapshotFailed{reason}.
type SnapshotFailedError struct{ Reason string }

func (e *SnapshotFailedError) Error() string { return fmt.Sprintf("snapshot failed: %s", e.Reason) }

// ConnectionFailedError corresponds to spec.md's ConnectionFailed{backend, reason}.
type ConnectionFailedError struct {
	Backend string
	Reason  string
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection to %s backend failed: %s", e.Backend, e.Reason)
}

// TransactionFailedError is returned by a Transaction closure to signal a
// rollback; the reason is surfaced to the Transaction caller. No HTTP
// handler returns it to a client.
type TransactionFailedError struct{ Reason string }

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("transaction failed: %s", e.Reason)
}
