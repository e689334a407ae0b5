package builtin

import (
	"context"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/memory/inprocess"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/validation"
)

// echoAgent repeats its last observation back, prefixed with "Echo: ". It
// uses no tools and keeps its own private memory, one per instance.
type echoAgent struct {
	mem       *inprocess.Backend
	lastInput string
	hasInput  bool
}

func newEchoAgent() *echoAgent {
	return &echoAgent{mem: inprocess.New()}
}

func (a *echoAgent) Observe(ctx context.Context, input validation.ValidatedInput) error {
	a.lastInput = input.String()
	a.hasInput = true
	return a.mem.Store(ctx, memory.Update{Key: keyLastInput, Value: a.lastInput})
}

func (a *echoAgent) Act(context.Context) (string, error) {
	if !a.hasInput {
		return "Echo: (no input received)", nil
	}
	return "Echo: " + a.lastInput, nil
}

func (a *echoAgent) CallTools(context.Context) ([]registry.ToolCall, error) {
	return nil, nil
}

func (a *echoAgent) HandleResult(ctx context.Context, result registry.ExecutionResult) error {
	if !result.IsSuccess() {
		return nil
	}
	return a.mem.Store(ctx, memory.Update{Key: keyLastToolResult, Value: result.Output()})
}

func (a *echoAgent) MemoryReader() memory.Reader { return a.mem }
func (a *echoAgent) MemoryWriter() memory.Writer { return a.mem }
