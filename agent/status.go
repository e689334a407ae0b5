// Package agent implements spec.md §4.4: the agent status machine, the
// Instance wrapping a coordinator with metadata and counters, and the
// Factory/Builder registry that creates instances from a typed spec.
// Grounded on original_source/crates/skreaver-http/src/runtime/
// agent_instance.rs and agent_factory.rs, styled after the teacher's
// core.BaseAgent construction and sync.RWMutex-guarded state idioms.
package agent

import "time"

// Status is the agent lifecycle sum type: Ready, Processing, Error, and the
// terminal ShuttingDown reachable from any state.
type Status struct {
	kind      statusKind
	task      string
	startedAt time.Time
	reason    string
}

type statusKind int

const (
	statusReady statusKind = iota
	statusProcessing
	statusError
	statusShuttingDown
)

// Ready is the initial, idle status.
func Ready() Status { return Status{kind: statusReady} }

// Processing records that task started running at startedAt.
func Processing(task string, startedAt time.Time) Status {
	return Status{kind: statusProcessing, task: task, startedAt: startedAt}
}

// ErrorStatus records a failed turn's reason.
func ErrorStatus(reason string) Status { return Status{kind: statusError, reason: reason} }

// ShuttingDown is the terminal status; once set it never transitions again.
func ShuttingDown() Status { return Status{kind: statusShuttingDown} }

// CanAcceptObservations reports whether this status admits a new
// observation — only Ready does.
func (s Status) CanAcceptObservations() bool { return s.kind == statusReady }

// IsShuttingDown reports the terminal status.
func (s Status) IsShuttingDown() bool { return s.kind == statusShuttingDown }

func (s Status) String() string {
	switch s.kind {
	case statusReady:
		return "ready"
	case statusProcessing:
		return "processing"
	case statusError:
		return "error"
	case statusShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Task returns the in-flight task name when Status is Processing.
func (s Status) Task() (string, bool) {
	if s.kind != statusProcessing {
		return "", false
	}
	return s.task, true
}

// StartedAt returns the Processing start time.
func (s Status) StartedAt() (time.Time, bool) {
	if s.kind != statusProcessing {
		return time.Time{}, false
	}
	return s.startedAt, true
}

// Reason returns the Error status's failure reason.
func (s Status) Reason() (string, bool) {
	if s.kind != statusError {
		return "", false
	}
	return s.reason, true
}
