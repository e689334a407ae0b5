// Package registry implements spec.md §4.2's tool dispatch: a Tool
// interface, an in-memory inner registry mapping names to shared tool
// handles, and a policy-enforcing wrapper that is the only registry kind the
// HTTP layer ever talks to. Grounded on original_source/src/tool/registry.rs
// (ToolRegistry/InMemoryToolRegistry/dispatch/try_dispatch) and styled after
// the teacher's core.BaseTool/core.Registry sync and constructor idioms.
package registry

import (
	"context"

	"github.com/corebound/agentrt/validation"
)

// ExecutionResult is the outcome of one tool call: either Success{output} or
// Failure{reason}, never both and never neither.
type ExecutionResult struct {
	success bool
	output  string
	reason  string
}

// NewSuccessResult builds a successful ExecutionResult carrying output.
func NewSuccessResult(output string) ExecutionResult {
	return ExecutionResult{success: true, output: output}
}

// NewFailureResult builds a failed ExecutionResult carrying reason.
func NewFailureResult(reason string) ExecutionResult {
	return ExecutionResult{success: false, reason: reason}
}

// IsSuccess reports which variant this result is.
func (r ExecutionResult) IsSuccess() bool { return r.success }

// Output returns the success output, or "" if this result is a Failure.
func (r ExecutionResult) Output() string { return r.output }

// Reason returns the failure reason, or "" if this result is a Success.
func (r ExecutionResult) Reason() string { return r.reason }

// ToolCall is a validated request to run a named tool with some input.
type ToolCall struct {
	Name  validation.ToolId
	Input validation.ValidatedInput
}

// Tool is a single callable capability. Implementations must be safe for
// concurrent use — the same *Tool handle may serve many simultaneous turns.
type Tool interface {
	Name() string
	Call(ctx context.Context, input validation.ValidatedInput) (ExecutionResult, error)
}

// ToolFunc adapts a plain function to Tool, the way the teacher's
// example_tool.go wraps handler funcs for quick registration.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, input validation.ValidatedInput) (ExecutionResult, error)
}

func (f ToolFunc) Name() string { return f.ToolName }

func (f ToolFunc) Call(ctx context.Context, input validation.ValidatedInput) (ExecutionResult, error) {
	return f.Fn(ctx, input)
}
