package registry

import (
	"context"
	"time"
)

// PolicyWrapper composes an inner Registry with a SecurityPolicy and a
// RoleManager, intercepting every dispatch to enforce both before
// delegating. It is the only registry kind the HTTP layer is ever handed,
// per spec.md §4.2.
type PolicyWrapper struct {
	inner  Registry
	policy *SecurityPolicy
	roles  RoleManager
}

// NewPolicyWrapper wraps inner. A nil policy imposes no domain/path/output
// restriction; a nil roles permits every role.
func NewPolicyWrapper(inner Registry, policy *SecurityPolicy, roles RoleManager) *PolicyWrapper {
	if roles == nil {
		roles = AllowAllRoles{}
	}
	return &PolicyWrapper{inner: inner, policy: policy, roles: roles}
}

// DispatchAs enforces role and policy for role before delegating to the
// inner registry. Tool calls rejected by policy are reported the same way
// an unknown tool would be: Dispatch returns (zero, false), TryDispatch
// returns a structured error.
func (w *PolicyWrapper) DispatchAs(ctx context.Context, role string, call ToolCall) (ExecutionResult, bool) {
	if !w.roles.Allowed(role, call.Name.String()) {
		return ExecutionResult{}, false
	}
	if !w.policy.domainAllowed(call.Input.String()) || !w.policy.pathAllowed(call.Input.String()) {
		return ExecutionResult{}, false
	}

	result, ok := w.inner.Dispatch(ctx, call)
	if !ok {
		return ExecutionResult{}, false
	}
	if !w.policy.outputAllowed(result.Output()) {
		return ExecutionResult{}, false
	}
	return result, true
}

// TryDispatchAs is DispatchAs with a structured Error instead of a bool.
func (w *PolicyWrapper) TryDispatchAs(ctx context.Context, role string, call ToolCall) (ExecutionResult, error) {
	if !w.roles.Allowed(role, call.Name.String()) {
		return ExecutionResult{}, &ExecutionFailedError{Tool: call.Name.String(), Message: "role " + role + " is not permitted to invoke this tool"}
	}
	if !w.policy.domainAllowed(call.Input.String()) {
		return ExecutionResult{}, &InvalidInputError{Tool: call.Name.String(), Input: call.Input, Reason: "input targets a domain outside the allowed list"}
	}
	if !w.policy.pathAllowed(call.Input.String()) {
		return ExecutionResult{}, &InvalidInputError{Tool: call.Name.String(), Input: call.Input, Reason: "input targets a filesystem path outside the allowed roots"}
	}

	result, err := w.inner.TryDispatch(ctx, call)
	if err != nil {
		return ExecutionResult{}, err
	}
	if !w.policy.outputAllowed(result.Output()) {
		return ExecutionResult{}, &ExecutionFailedError{Tool: call.Name.String(), Message: "tool output exceeded the configured size cap"}
	}
	return result, nil
}

// DispatchStructuredAs is TryDispatchAs with the timing, tags, and
// recoverability of a StructuredToolResult instead of a flat ExecutionResult,
// for callers that need execution metadata alongside the outcome.
func (w *PolicyWrapper) DispatchStructuredAs(ctx context.Context, role string, call ToolCall) StructuredToolResult {
	startedAt := time.Now()
	result, err := w.TryDispatchAs(ctx, role, call)
	metadata := NewToolExecutionMetadata(call.Name.String(), startedAt, time.Now())
	if err != nil {
		switch err.(type) {
		case *ExecutionFailedError:
			return NewFailureToolResultWithCode(err.Error(), metadata, "execution_failed", false)
		case *InvalidInputError:
			return NewFailureToolResultWithCode(err.Error(), metadata, "invalid_input", false)
		case *NotFoundError:
			return NewFailureToolResultWithCode(err.Error(), metadata, "not_found", false)
		default:
			return NewFailureToolResult(err.Error(), metadata, true)
		}
	}
	return NewSuccessToolResult(result.Output(), metadata)
}

// Dispatch satisfies Registry using the "system" role, for call sites that
// don't carry a per-request role (internal or test callers).
func (w *PolicyWrapper) Dispatch(ctx context.Context, call ToolCall) (ExecutionResult, bool) {
	return w.DispatchAs(ctx, "system", call)
}

// TryDispatch satisfies Registry using the "system" role.
func (w *PolicyWrapper) TryDispatch(ctx context.Context, call ToolCall) (ExecutionResult, error) {
	return w.TryDispatchAs(ctx, "system", call)
}

var _ Registry = (*PolicyWrapper)(nil)
