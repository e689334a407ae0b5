package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/validation"
)

func echoFn(ctx context.Context, input validation.ValidatedInput) (ExecutionResult, error) {
	return NewSuccessResult(input.String()), nil
}

func TestDispatchUnknownToolReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	r := NewInMemory(0)

	call, err := ToolCallFromStrings("missing", "hello")
	require.NoError(t, err)

	_, found := r.Dispatch(ctx, call)
	assert.False(t, found)

	_, err = r.TryDispatch(ctx, call)
	require.Error(t, err)
	assert.IsType(t, &NotFoundError{}, err)
}

func TestDispatchKnownToolRuns(t *testing.T) {
	ctx := context.Background()
	r := NewInMemory(0).WithTool(ToolFunc{ToolName: "echo", Fn: echoFn})

	call, err := ToolCallFromStrings("echo", "hi")
	require.NoError(t, err)

	result, found := r.Dispatch(ctx, call)
	require.True(t, found)
	assert.True(t, result.IsSuccess())
	assert.Equal(t, "hi", result.Output())
}

func TestRegistryFullRejectsBeyondCap(t *testing.T) {
	r := NewInMemory(1)
	require.NoError(t, r.Register(ToolFunc{ToolName: "a", Fn: echoFn}))
	err := r.Register(ToolFunc{ToolName: "b", Fn: echoFn})
	require.Error(t, err)
	assert.IsType(t, &RegistryFullError{}, err)
}

func TestPolicyWrapperRejectsDisallowedRole(t *testing.T) {
	ctx := context.Background()
	inner := NewInMemory(0)
	require.NoError(t, inner.Register(ToolFunc{ToolName: "echo", Fn: echoFn}))

	roles := RoleAllowlist{"admin": {"echo": true}}
	wrapper := NewPolicyWrapper(inner, nil, roles)

	call, err := ToolCallFromStrings("echo", "hi")
	require.NoError(t, err)

	_, found := wrapper.DispatchAs(ctx, "guest", call)
	assert.False(t, found)

	_, found = wrapper.DispatchAs(ctx, "admin", call)
	assert.True(t, found)
}

func TestPolicyWrapperRejectsDisallowedDomain(t *testing.T) {
	ctx := context.Background()
	inner := NewInMemory(0)
	require.NoError(t, inner.Register(ToolFunc{ToolName: "fetch", Fn: func(ctx context.Context, input validation.ValidatedInput) (ExecutionResult, error) {
		return NewSuccessResult("ok"), nil
	}}))

	policy := &SecurityPolicy{AllowedDomains: []string{"example.com"}}
	wrapper := NewPolicyWrapper(inner, policy, nil)

	blocked, err := ToolCallFromStrings("fetch", "https://evil.example.net/data")
	require.NoError(t, err)
	_, err = wrapper.TryDispatchAs(ctx, "system", blocked)
	require.Error(t, err)
	assert.IsType(t, &InvalidInputError{}, err)

	allowed, err := ToolCallFromStrings("fetch", "https://api.example.com/data")
	require.NoError(t, err)
	result, err := wrapper.TryDispatchAs(ctx, "system", allowed)
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())
}
