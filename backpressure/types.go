package backpressure

import (
	"context"
	"fmt"
	"time"

	"github.com/corebound/agentrt/validation"
)

// Mode is the backpressure manager's concurrency-control mode, a sum type
// rather than a boolean so a third mode can be added without breaking every
// call site on a bool flag.
type Mode struct{ adaptive bool }

// StaticMode uses the configured concurrency limits as-is.
func StaticMode() Mode { return Mode{adaptive: false} }

// AdaptiveMode continuously retunes the effective per-agent limit from
// observed load and processing time.
func AdaptiveMode() Mode { return Mode{adaptive: true} }

func (m Mode) IsAdaptive() bool { return m.adaptive }

func (m Mode) String() string {
	if m.adaptive {
		return "adaptive"
	}
	return "static"
}

// ParseMode parses the "static"/"adaptive" environment string enum.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "static":
		return StaticMode(), nil
	case "adaptive":
		return AdaptiveMode(), nil
	default:
		return Mode{}, fmt.Errorf("invalid backpressure mode %q: must be \"static\" or \"adaptive\"", s)
	}
}

// Config carries every tunable the manager consults. All fields are already
// range-validated newtypes (§3); the manager never revalidates them.
type Config struct {
	MaxQueueSize          validation.QueueSize
	MaxConcurrentPerAgent validation.ConcurrencyLimit
	GlobalMaxConcurrent   validation.ConcurrencyLimit
	LoadThreshold         validation.LoadThreshold

	QueueTimeout          time.Duration
	ProcessingTimeout     time.Duration
	TargetProcessingTime  time.Duration
	TickInterval          time.Duration

	Mode Mode
}

// Handler runs one agent turn for a dequeued request. It is the adapter
// into coordinator.Coordinator.Step, injected rather than imported so this
// package stays free of a dependency on the coordinator package.
type Handler func(ctx context.Context, agentID string, input validation.ValidatedInput) (string, error)

// Request is a queued call awaiting dispatch.
type Request struct {
	AgentID    string
	Input      validation.ValidatedInput
	Priority   RequestPriority
	EnqueuedAt time.Time
	Deadline   time.Time // zero means QueueTimeout governs instead
}

// OutcomeKind distinguishes how a Request was ultimately resolved.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeTimeout
)

// Outcome is delivered exactly once on a request's reply channel.
type Outcome struct {
	Kind   OutcomeKind
	Action string
	Err    error
}

// QueueFullError reports that an agent's queue was already at capacity.
type QueueFullError struct {
	AgentID string
	Current int
	Limit   int
}

func (e *QueueFullError) Error() string {
	return fmt.Sprintf("agent %s queue full: %d/%d", e.AgentID, e.Current, e.Limit)
}

// SystemOverloadedError reports that the global concurrency semaphore is
// saturated and cannot admit even a queued request.
type SystemOverloadedError struct {
	Active int
	Limit  int
}

func (e *SystemOverloadedError) Error() string {
	return fmt.Sprintf("system overloaded: %d/%d active", e.Active, e.Limit)
}
