package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/validation"
)

type stepFunc func(ctx context.Context, observation validation.ValidatedInput) (string, error)

func (f stepFunc) Step(ctx context.Context, observation validation.ValidatedInput) (string, error) {
	return f(ctx, observation)
}

type echoBuilder struct{}

func (echoBuilder) AgentType() string { return "echo" }
func (b echoBuilder) BuildCoordinator(spec Spec) (Coordinator, error) {
	return stepFunc(func(ctx context.Context, observation validation.ValidatedInput) (string, error) {
		return observation.String(), nil
	}), nil
}
func (b echoBuilder) ValidateSpec(spec Spec) error { return DefaultValidateSpec(b, spec) }
func (echoBuilder) DefaultConfig() map[string]interface{} { return nil }

func TestStatusCanAcceptObservations(t *testing.T) {
	assert.True(t, Ready().CanAcceptObservations())
	assert.False(t, Processing("x", time.Now()).CanAcceptObservations())
	assert.False(t, ErrorStatus("boom").CanAcceptObservations())
	assert.False(t, ShuttingDown().CanAcceptObservations())
}

func TestCreateAgentRejectsUnknownType(t *testing.T) {
	f := NewFactory()
	_, err := f.CreateAgent(Spec{AgentType: "missing"}, "")
	require.Error(t, err)
	fe, ok := err.(*FactoryError)
	require.True(t, ok)
	assert.Equal(t, ErrUnknownAgentType, fe.Kind)
}

func TestCreateAgentRejectsDuplicateID(t *testing.T) {
	f := NewFactory()
	f.RegisterBuilder(echoBuilder{})

	_, err := f.CreateAgent(Spec{AgentType: "echo"}, "fixed-id")
	require.NoError(t, err)

	_, err = f.CreateAgent(Spec{AgentType: "echo"}, "fixed-id")
	require.Error(t, err)
	fe, ok := err.(*FactoryError)
	require.True(t, ok)
	assert.Equal(t, ErrAgentAlreadyExists, fe.Kind)
}

func TestCreateAgentComputesEndpoints(t *testing.T) {
	f := NewFactory()
	f.RegisterBuilder(echoBuilder{})

	resp, err := f.CreateAgent(Spec{AgentType: "echo", Name: "my-agent"}, "fixed-id")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", resp.AgentID)
	assert.Equal(t, "/agents/fixed-id/observe", resp.Endpoints.Observe)
	assert.Equal(t, "/agents/fixed-id/observe/stream", resp.Endpoints.ObserveStream)

	inst, ok := f.Get("fixed-id")
	require.True(t, ok)
	meta := inst.GetMetadata()
	assert.Equal(t, "my-agent", meta.Tags["name"])
}

func TestExecuteStepTransitionsBackToReady(t *testing.T) {
	f := NewFactory()
	f.RegisterBuilder(echoBuilder{})
	_, err := f.CreateAgent(Spec{AgentType: "echo"}, "fixed-id")
	require.NoError(t, err)

	inst, ok := f.Get("fixed-id")
	require.True(t, ok)

	input, err := validation.NewValidatedInput("hello")
	require.NoError(t, err)

	action, err := inst.ExecuteStep(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "hello", action)
	assert.True(t, inst.GetStatus().CanAcceptObservations())
	assert.Equal(t, uint64(1), inst.ObservationCount())
}

func TestExecuteStepRejectsWhenNotReady(t *testing.T) {
	f := NewFactory()
	f.RegisterBuilder(echoBuilder{})
	_, err := f.CreateAgent(Spec{AgentType: "echo"}, "fixed-id")
	require.NoError(t, err)

	inst, ok := f.Get("fixed-id")
	require.True(t, ok)
	inst.SetStatus(ShuttingDown())

	input, err := validation.NewValidatedInput("hello")
	require.NoError(t, err)

	_, err = inst.ExecuteStep(context.Background(), input)
	require.Error(t, err)
}

func TestShutdownAllAgentsReturnsCount(t *testing.T) {
	f := NewFactory()
	f.RegisterBuilder(echoBuilder{})
	_, err := f.CreateAgent(Spec{AgentType: "echo"}, "a")
	require.NoError(t, err)
	_, err = f.CreateAgent(Spec{AgentType: "echo"}, "b")
	require.NoError(t, err)

	assert.Equal(t, 2, f.ShutdownAllAgents())
	assert.Equal(t, 0, f.AgentCount())
}
