package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolResultBuilderSuccess(t *testing.T) {
	start := time.Now().Add(-50 * time.Millisecond)
	result := NewToolResultBuilder("echo").
		StartedAt(start).
		Tag("fast").
		Metadata("region", "us-east-1").
		Success("hi")

	assert.True(t, result.IsSuccess())
	output, ok := result.SuccessOutput()
	assert.True(t, ok)
	assert.Equal(t, "hi", output)

	_, ok = result.ErrorMessage()
	assert.False(t, ok)
	_, ok = result.Recoverable()
	assert.False(t, ok)

	meta := result.Metadata()
	assert.Equal(t, "echo", meta.ToolName)
	assert.Equal(t, []string{"fast"}, meta.Tags)
	assert.Equal(t, "us-east-1", meta.CustomMetadata["region"])
	assert.GreaterOrEqual(t, meta.Duration, 50*time.Millisecond)
}

func TestToolResultBuilderFailureWithCode(t *testing.T) {
	result := NewToolResultBuilder("fetch").FailureWithCode("timed out", "timeout", true)

	assert.False(t, result.IsSuccess())
	_, ok := result.SuccessOutput()
	assert.False(t, ok)

	reason, ok := result.ErrorMessage()
	assert.True(t, ok)
	assert.Equal(t, "timed out", reason)

	code, ok := result.ErrorCode()
	assert.True(t, ok)
	assert.Equal(t, "timeout", code)

	recoverable, ok := result.Recoverable()
	assert.True(t, ok)
	assert.True(t, recoverable)
}

func TestStructuredToolResultToExecutionResult(t *testing.T) {
	success := NewToolResultBuilder("echo").Success("hi")
	plain := success.ToExecutionResult()
	assert.True(t, plain.IsSuccess())
	assert.Equal(t, "hi", plain.Output())

	failure := NewToolResultBuilder("echo").Failure("boom", false)
	plain = failure.ToExecutionResult()
	assert.False(t, plain.IsSuccess())
	assert.Equal(t, "boom", plain.Reason())
}

func TestDispatchStructuredAsReportsSuccessMetadata(t *testing.T) {
	ctx := context.Background()
	inner := NewInMemory(0)
	require.NoError(t, inner.Register(ToolFunc{ToolName: "echo", Fn: echoFn}))
	wrapper := NewPolicyWrapper(inner, nil, nil)

	call, err := ToolCallFromStrings("echo", "hi")
	require.NoError(t, err)

	result := wrapper.DispatchStructuredAs(ctx, "system", call)
	assert.True(t, result.IsSuccess())
	output, ok := result.SuccessOutput()
	assert.True(t, ok)
	assert.Equal(t, "hi", output)
	assert.Equal(t, "echo", result.ToolName())
}

func TestDispatchStructuredAsReportsNotFoundCode(t *testing.T) {
	ctx := context.Background()
	wrapper := NewPolicyWrapper(NewInMemory(0), nil, nil)

	call, err := ToolCallFromStrings("missing", "hi")
	require.NoError(t, err)

	result := wrapper.DispatchStructuredAs(ctx, "system", call)
	assert.False(t, result.IsSuccess())
	code, ok := result.ErrorCode()
	assert.True(t, ok)
	assert.Equal(t, "not_found", code)
	recoverable, ok := result.Recoverable()
	assert.True(t, ok)
	assert.False(t, recoverable)
}

func TestStructuredToolResultFromExecutionResult(t *testing.T) {
	success := NewSuccessResult("ok")
	structured := StructuredToolResultFromExecutionResult(success, "echo")
	assert.True(t, structured.IsSuccess())
	output, _ := structured.SuccessOutput()
	assert.Equal(t, "ok", output)

	failure := NewFailureResult("bad input")
	structured = StructuredToolResultFromExecutionResult(failure, "echo")
	assert.False(t, structured.IsSuccess())
	reason, _ := structured.ErrorMessage()
	assert.Equal(t, "bad input", reason)
	recoverable, ok := structured.Recoverable()
	assert.True(t, ok)
	assert.True(t, recoverable)
}
