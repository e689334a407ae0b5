// Package stream implements spec.md §4.7's streaming executor: a
// push-based channel of typed update events carrying one turn's progress
// from the coordinator to an HTTP subscriber. Grounded on
// original_source/crates/skreaver-http/src/runtime/streaming.rs's
// StreamUpdate enum and the teacher's ui/transports/sse package, which
// already streams agent output over the same fire-and-forget, closed-
// receiver-is-not-an-error model.
package stream

import (
	"context"
	"time"
)

// EventKind discriminates an Update's payload, the Go analogue of the
// source's StreamUpdate sum type.
type EventKind int

const (
	EventStarted EventKind = iota
	EventThinking
	EventToolCall
	EventToolSuccess
	EventToolFailure
	EventPartial
	EventCompleted
	EventError
	EventPing
	EventProgress
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventThinking:
		return "thinking"
	case EventToolCall:
		return "tool_call"
	case EventToolSuccess:
		return "tool_success"
	case EventToolFailure:
		return "tool_failure"
	case EventPartial:
		return "partial"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	case EventPing:
		return "ping"
	case EventProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Update is one event pushed to a subscriber. Only the fields relevant to
// Kind are populated; this mirrors the Rust enum's per-variant payload
// without Go's lack of sum types forcing every field onto every event.
type Update struct {
	Kind EventKind

	Step       string // Thinking
	ToolName   string // ToolCall, ToolSuccess, ToolFailure
	ToolInput  string // ToolCall
	ToolOutput string // ToolSuccess
	ToolError  string // ToolFailure
	Content    string // Partial
	Final      string // Completed
	Err        string // Error
	Percent    int    // Progress, clamped to [0,100]
	Status     string // Progress
	EmittedAt  time.Time
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Executor drives one turn while emitting Update events to every
// subscriber. Sends are fire-and-forget: a subscriber that stops
// listening (a closed or never-read channel) never blocks or errors the
// turn — the executor keeps running so server-side state stays consistent
// with what would have been streamed, per spec.md §4.7.
type Executor struct {
	subscribers []chan Update
}

// NewExecutor constructs an Executor with no subscribers yet.
func NewExecutor() *Executor { return &Executor{} }

// Subscribe registers a new buffered channel of updates and returns it.
// Buffering absorbs bursts without the emit path blocking on a slow
// reader; a full buffer causes that event to be dropped for that
// subscriber rather than stalling the turn.
func (e *Executor) Subscribe(bufferSize int) <-chan Update {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	ch := make(chan Update, bufferSize)
	e.subscribers = append(e.subscribers, ch)
	return ch
}

// emit fans an update out to every subscriber without blocking.
func (e *Executor) emit(u Update) {
	u.EmittedAt = time.Now()
	if u.Kind == EventProgress {
		u.Percent = clampPercent(u.Percent)
	}
	for _, ch := range e.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (e *Executor) Started()                    { e.emit(Update{Kind: EventStarted}) }
func (e *Executor) Thinking(step string)        { e.emit(Update{Kind: EventThinking, Step: step}) }
func (e *Executor) ToolCall(name, input string) { e.emit(Update{Kind: EventToolCall, ToolName: name, ToolInput: input}) }
func (e *Executor) ToolSuccess(name, output string) {
	e.emit(Update{Kind: EventToolSuccess, ToolName: name, ToolOutput: output})
}
func (e *Executor) ToolFailure(name, errMsg string) {
	e.emit(Update{Kind: EventToolFailure, ToolName: name, ToolError: errMsg})
}
func (e *Executor) Partial(content string) { e.emit(Update{Kind: EventPartial, Content: content}) }
func (e *Executor) Completed(final string) { e.emit(Update{Kind: EventCompleted, Final: final}) }
func (e *Executor) Error(errMsg string)     { e.emit(Update{Kind: EventError, Err: errMsg}) }
func (e *Executor) Ping()                  { e.emit(Update{Kind: EventPing}) }
func (e *Executor) Progress(percent int, status string) {
	e.emit(Update{Kind: EventProgress, Percent: clampPercent(percent), Status: status})
}

// Close closes every subscriber channel. Callers must not emit after Close.
func (e *Executor) Close() {
	for _, ch := range e.subscribers {
		close(ch)
	}
	e.subscribers = nil
}

// RunWithPings starts a goroutine emitting EventPing every interval until
// ctx is cancelled, keeping the transport alive during long-running turns,
// per spec.md §4.7. Callers should cancel ctx when the turn's terminal
// event (Completed or Error) has been emitted.
func (e *Executor) RunWithPings(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.Ping()
			}
		}
	}()
}
