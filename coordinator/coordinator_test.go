package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/memory/inprocess"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/validation"
)

// echoAgent calls a single "echo" tool with whatever it last observed, then
// reports the tool's output as its action.
type echoAgent struct {
	mem        *inprocess.Backend
	lastInput  validation.ValidatedInput
	lastResult registry.ExecutionResult
}

func (a *echoAgent) Observe(ctx context.Context, input validation.ValidatedInput) error {
	a.lastInput = input
	return nil
}

func (a *echoAgent) Act(ctx context.Context) (string, error) {
	return a.lastResult.Output(), nil
}

func (a *echoAgent) CallTools(ctx context.Context) ([]registry.ToolCall, error) {
	return []registry.ToolCall{{Name: toolID("echo"), Input: a.lastInput}}, nil
}

func (a *echoAgent) HandleResult(ctx context.Context, result registry.ExecutionResult) error {
	a.lastResult = result
	return nil
}

func (a *echoAgent) MemoryReader() memory.Reader { return a.mem }
func (a *echoAgent) MemoryWriter() memory.Writer { return a.mem }

func toolID(s string) validation.ToolId {
	id, err := validation.NewToolID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func TestStepRunsObserveActCallToolsHandleResult(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewInMemory(0).WithTool(registry.ToolFunc{
		ToolName: "echo",
		Fn: func(ctx context.Context, input validation.ValidatedInput) (registry.ExecutionResult, error) {
			return registry.NewSuccessResult(input.String()), nil
		},
	})

	agent := &echoAgent{mem: inprocess.New()}
	c := New(agent, reg)

	input, err := validation.NewValidatedInput("hello")
	require.NoError(t, err)

	action, err := c.Step(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, "hello", action)
}

func TestStepReportsUnknownToolAsFailure(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewInMemory(0)

	agent := &echoAgent{mem: inprocess.New()}
	c := New(agent, reg)

	input, err := validation.NewValidatedInput("hello")
	require.NoError(t, err)

	_, err = c.Step(ctx, input)
	require.NoError(t, err)
	assert.False(t, agent.lastResult.IsSuccess())
}
