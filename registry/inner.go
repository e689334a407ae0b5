package registry

import (
	"context"
	"sync"

	"github.com/corebound/agentrt/validation"
)

// Registry is the dispatch contract both the inner registry and the policy
// wrapper satisfy — the wrapper is the only one handed to the HTTP layer.
type Registry interface {
	// Dispatch returns (result, true) if the tool exists, (zero, false) if not.
	Dispatch(ctx context.Context, call ToolCall) (ExecutionResult, bool)
	// TryDispatch is Dispatch with a structured error instead of a bool.
	TryDispatch(ctx context.Context, call ToolCall) (ExecutionResult, error)
}

// InMemory maps tool names to shared handles with O(1) lookup, matching
// InMemoryToolRegistry. MaxTools of 0 means unbounded.
type InMemory struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	maxTools int
}

// NewInMemory constructs an empty registry. maxTools <= 0 means unbounded.
func NewInMemory(maxTools int) *InMemory {
	return &InMemory{tools: make(map[string]Tool), maxTools: maxTools}
}

// WithTool registers tool under its own Name() and returns the receiver,
// the way InMemoryToolRegistry::with_tool chains during construction.
func (r *InMemory) WithTool(tool Tool) *InMemory {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	return r
}

// Register adds tool, failing with RegistryFullError once maxTools is hit.
func (r *InMemory) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists && r.maxTools > 0 && len(r.tools) >= r.maxTools {
		return &RegistryFullError{}
	}
	r.tools[tool.Name()] = tool
	return nil
}

// Unregister removes a tool by name; a no-op if it isn't present.
func (r *InMemory) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

func (r *InMemory) lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *InMemory) Dispatch(ctx context.Context, call ToolCall) (ExecutionResult, bool) {
	tool, ok := r.lookup(call.Name.String())
	if !ok {
		return ExecutionResult{}, false
	}
	result, err := tool.Call(ctx, call.Input)
	if err != nil {
		return NewFailureResult(err.Error()), true
	}
	return result, true
}

func (r *InMemory) TryDispatch(ctx context.Context, call ToolCall) (ExecutionResult, error) {
	tool, ok := r.lookup(call.Name.String())
	if !ok {
		return ExecutionResult{}, &NotFoundError{Tool: call.Name.String()}
	}
	result, err := tool.Call(ctx, call.Input)
	if err != nil {
		return ExecutionResult{}, &ExecutionFailedError{Tool: call.Name.String(), Message: err.Error()}
	}
	return result, nil
}

// Names returns every registered tool name, for introspection endpoints.
func (r *InMemory) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

var _ Registry = (*InMemory)(nil)

// ToolCallFromStrings validates a raw (name, input) pair into a ToolCall,
// giving callers the same InvalidToolNameError/InvalidInputError shape the
// Rust ToolDispatch constructor produces for untrusted input.
func ToolCallFromStrings(name, input string) (ToolCall, error) {
	tid, err := validation.NewToolID(name)
	if err != nil {
		return ToolCall{}, &InvalidToolNameError{AttemptedName: name, Reason: err.Error()}
	}
	vi, err := validation.NewValidatedInput(input)
	if err != nil {
		return ToolCall{}, &InvalidInputError{Tool: name, Reason: err.Error()}
	}
	return ToolCall{Name: tid, Input: vi}, nil
}
