// Package coordinator implements spec.md §4.3's per-agent turn: observe,
// ask for an action, ask for tool calls, dispatch each through a registry,
// feed results back, return the action. Grounded on the Agent trait in
// original_source/crates/skreaver-core/src/agent/core.rs (observe/act/
// call_tools/handle_result/memory_reader/memory_writer) and the teacher's
// sync.Mutex-guarded component style.
package coordinator

import (
	"context"
	"sync"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/observability"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/runtimelog"
	"github.com/corebound/agentrt/validation"
)

// Agent is the pluggable per-turn behavior a Coordinator drives. An
// implementation owns its own memory reader/writer, mirroring skreaver's
// Agent trait — the coordinator never mutates memory directly.
type Agent interface {
	// Observe delivers one observation to the agent.
	Observe(ctx context.Context, input validation.ValidatedInput) error
	// Act produces the agent's response for the turn just observed.
	Act(ctx context.Context) (string, error)
	// CallTools returns the tool calls the agent wants dispatched this turn,
	// in the order they must run.
	CallTools(ctx context.Context) ([]registry.ToolCall, error)
	// HandleResult feeds one dispatched tool's result back to the agent.
	HandleResult(ctx context.Context, result registry.ExecutionResult) error
	MemoryReader() memory.Reader
	MemoryWriter() memory.Writer
}

// Coordinator drives exactly one turn per Step call and is single-threaded
// with respect to the agent it wraps — callers (the backpressure pipeline)
// must not invoke Step concurrently for the same instance.
type Coordinator struct {
	mu       sync.Mutex
	agent    Agent
	registry registry.Registry

	telemetry observability.Telemetry
	agentID   string
}

// New wraps agent with registry, the only dependency a turn needs beyond the
// agent's own memory. Telemetry defaults to a no-op; call SetTelemetry once
// the agent's id is known (the factory does this right after construction)
// to get per-turn and per-tool-call spans.
func New(agent Agent, reg registry.Registry) *Coordinator {
	return &Coordinator{agent: agent, registry: reg, telemetry: observability.NoOp{}}
}

// SetTelemetry attaches tel and agentID so every subsequent Step opens a
// turn span (and one tool span per dispatched call) tagged with both. Safe
// to call before the coordinator has ever run a turn; it is not safe to
// call concurrently with Step.
func (c *Coordinator) SetTelemetry(tel observability.Telemetry, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tel == nil {
		tel = observability.NoOp{}
	}
	c.telemetry = tel
	c.agentID = agentID
}

// Step runs one full turn and returns the agent's action. Tool calls the
// registry reports as unknown are fed back to the agent as a failed
// ExecutionResult rather than silently dropped, per spec.md §4.3.
func (c *Coordinator) Step(ctx context.Context, observation validation.ValidatedInput) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requestID, _ := runtimelog.RequestIDFromContext(ctx)
	ctx, turnSpan := observability.StartTurnSpan(ctx, c.telemetry, c.agentID, requestID)
	defer turnSpan.End()

	if err := c.agent.Observe(ctx, observation); err != nil {
		turnSpan.RecordError(err)
		return "", err
	}

	calls, err := c.agent.CallTools(ctx)
	if err != nil {
		turnSpan.RecordError(err)
		return "", err
	}

	for _, call := range calls {
		toolCtx, toolSpan := observability.StartToolSpan(ctx, c.telemetry, c.agentID, call.Name.String())
		result, dispatchErr := c.registry.TryDispatch(toolCtx, call)
		if dispatchErr != nil {
			toolSpan.RecordError(dispatchErr)
			result = registry.NewFailureResult(dispatchErr.Error())
		}
		toolSpan.End()
		if err := c.agent.HandleResult(ctx, result); err != nil {
			turnSpan.RecordError(err)
			return "", err
		}
	}

	action, err := c.agent.Act(ctx)
	if err != nil {
		turnSpan.RecordError(err)
	}
	return action, err
}
