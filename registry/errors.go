package registry

import (
	"fmt"
	"time"

	"github.com/corebound/agentrt/validation"
)

// Error is the tool dispatch error taxonomy of spec.md §4.2, mirroring the
// Rust ToolError enum one variant at a time instead of collapsing it to a
// single Kind string — callers type-switch the same way they would match
// the original's enum.
type Error interface {
	error
	isToolError()
}

// NotFoundError reports an unknown tool name.
type NotFoundError struct{ Tool string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("tool %q not found in registry", e.Tool) }
func (*NotFoundError) isToolError()    {}

// ExecutionFailedError wraps a tool's own failure.
type ExecutionFailedError struct {
	Tool    string
	Message string
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("tool %q execution failed: %s", e.Tool, e.Message)
}
func (*ExecutionFailedError) isToolError() {}

// InvalidInputError reports input that failed schema or policy validation.
type InvalidInputError struct {
	Tool   string
	Input  validation.ValidatedInput
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("tool %q received invalid input: %s", e.Tool, e.Reason)
}
func (*InvalidInputError) isToolError() {}

// TimeoutError reports a tool call that exceeded its deadline.
type TimeoutError struct {
	Tool     string
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %q timed out after %s", e.Tool, e.Duration)
}
func (*TimeoutError) isToolError() {}

// RegistryFullError reports that the inner registry has reached its tool
// cap and cannot accept another registration.
type RegistryFullError struct{}

func (*RegistryFullError) Error() string { return "tool registry is full" }
func (*RegistryFullError) isToolError()  {}

// InvalidToolNameError reports a tool name that failed validation.ToolId's
// constructor rules at dispatch time.
type InvalidToolNameError struct {
	AttemptedName string
	Reason        string
}

func (e *InvalidToolNameError) Error() string {
	return fmt.Sprintf("invalid tool name %q: %s", e.AttemptedName, e.Reason)
}
func (*InvalidToolNameError) isToolError() {}
