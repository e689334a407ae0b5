package registry

import "time"

// ToolExecutionMetadata is the diagnostic context attached to a
// StructuredToolResult: which tool ran, when, how long it took, and any
// tags or custom key/value pairs the caller wants to carry alongside the
// result.
type ToolExecutionMetadata struct {
	ToolName       string
	StartedAt      time.Time
	CompletedAt    time.Time
	Duration       time.Duration
	Tags           []string
	CustomMetadata map[string]string
}

// NewToolExecutionMetadata builds metadata for a tool execution spanning
// startedAt to completedAt.
func NewToolExecutionMetadata(toolName string, startedAt, completedAt time.Time) ToolExecutionMetadata {
	d := completedAt.Sub(startedAt)
	if d < 0 {
		d = 0
	}
	return ToolExecutionMetadata{
		ToolName:       toolName,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		Duration:       d,
		CustomMetadata: make(map[string]string),
	}
}

// InstantToolExecutionMetadata builds metadata for a tool execution with no
// measurable duration, for tools that complete effectively instantly.
func InstantToolExecutionMetadata(toolName string) ToolExecutionMetadata {
	now := time.Now()
	return NewToolExecutionMetadata(toolName, now, now)
}

// WithTag returns a copy of m with tag appended.
func (m ToolExecutionMetadata) WithTag(tag string) ToolExecutionMetadata {
	m.Tags = append(append([]string(nil), m.Tags...), tag)
	return m
}

// WithMetadata returns a copy of m with key/value added to CustomMetadata.
func (m ToolExecutionMetadata) WithMetadata(key, value string) ToolExecutionMetadata {
	next := make(map[string]string, len(m.CustomMetadata)+1)
	for k, v := range m.CustomMetadata {
		next[k] = v
	}
	next[key] = value
	m.CustomMetadata = next
	return m
}

// DurationMS returns the execution duration in milliseconds.
func (m ToolExecutionMetadata) DurationMS() int64 {
	return m.Duration.Milliseconds()
}

// StructuredToolResult is the outcome of a tool call with preserved
// execution metadata: either Success{output, metadata} or Failure{error,
// metadata, errorCode, recoverable}, never both and never neither.
type StructuredToolResult struct {
	success     bool
	output      string
	errorMsg    string
	errorCode   string
	hasCode     bool
	recoverable bool
	metadata    ToolExecutionMetadata
}

// NewSuccessToolResult builds a successful StructuredToolResult.
func NewSuccessToolResult(output string, metadata ToolExecutionMetadata) StructuredToolResult {
	return StructuredToolResult{success: true, output: output, metadata: metadata}
}

// NewFailureToolResult builds a failed StructuredToolResult.
func NewFailureToolResult(errMsg string, metadata ToolExecutionMetadata, recoverable bool) StructuredToolResult {
	return StructuredToolResult{success: false, errorMsg: errMsg, metadata: metadata, recoverable: recoverable}
}

// NewFailureToolResultWithCode builds a failed StructuredToolResult carrying
// a programmatic error code.
func NewFailureToolResultWithCode(errMsg string, metadata ToolExecutionMetadata, errorCode string, recoverable bool) StructuredToolResult {
	return StructuredToolResult{success: false, errorMsg: errMsg, metadata: metadata, errorCode: errorCode, hasCode: true, recoverable: recoverable}
}

// IsSuccess reports which variant this result is.
func (r StructuredToolResult) IsSuccess() bool { return r.success }

// Metadata returns the execution metadata, present on both variants.
func (r StructuredToolResult) Metadata() ToolExecutionMetadata { return r.metadata }

// ToolName returns the tool name from the embedded metadata.
func (r StructuredToolResult) ToolName() string { return r.metadata.ToolName }

// SuccessOutput returns the output and true when this result is a Success.
func (r StructuredToolResult) SuccessOutput() (string, bool) {
	if !r.success {
		return "", false
	}
	return r.output, true
}

// ErrorMessage returns the error and true when this result is a Failure.
func (r StructuredToolResult) ErrorMessage() (string, bool) {
	if r.success {
		return "", false
	}
	return r.errorMsg, true
}

// ErrorCode returns the failure's error code, if one was set.
func (r StructuredToolResult) ErrorCode() (string, bool) {
	if r.success || !r.hasCode {
		return "", false
	}
	return r.errorCode, true
}

// Recoverable reports whether the agent can retry a failed call. The second
// return value is false for a Success, which has nothing to recover from.
func (r StructuredToolResult) Recoverable() (bool, bool) {
	if r.success {
		return false, false
	}
	return r.recoverable, true
}

// OutputOrError returns the success output or the failure message,
// whichever variant this result is.
func (r StructuredToolResult) OutputOrError() string {
	if r.success {
		return r.output
	}
	return r.errorMsg
}

// ToExecutionResult discards metadata and returns the plain ExecutionResult,
// for callers that only need the coordinator's flat success/output contract.
func (r StructuredToolResult) ToExecutionResult() ExecutionResult {
	if r.success {
		return NewSuccessResult(r.output)
	}
	return NewFailureResult(r.errorMsg)
}

// StructuredToolResultFromExecutionResult wraps result with instant metadata
// for toolName, for callers that only have a plain ExecutionResult but need
// to hand a StructuredToolResult downstream. A failed ExecutionResult is
// treated as recoverable by default, since it carries no recoverability
// signal of its own.
func StructuredToolResultFromExecutionResult(result ExecutionResult, toolName string) StructuredToolResult {
	metadata := InstantToolExecutionMetadata(toolName)
	if result.IsSuccess() {
		return NewSuccessToolResult(result.Output(), metadata)
	}
	return NewFailureToolResult(result.Reason(), metadata, true)
}

// ToolResultBuilder is a fluent builder for StructuredToolResult: it
// accumulates a start time, tags, and custom metadata before finishing with
// Success/Failure/FailureWithCode.
type ToolResultBuilder struct {
	toolName  string
	startedAt time.Time
	hasStart  bool
	tags      []string
	metadata  map[string]string
}

// NewToolResultBuilder starts a builder for toolName.
func NewToolResultBuilder(toolName string) *ToolResultBuilder {
	return &ToolResultBuilder{toolName: toolName, metadata: make(map[string]string)}
}

// StartedAt sets the execution start time; defaults to the completion time
// (zero duration) if never called.
func (b *ToolResultBuilder) StartedAt(t time.Time) *ToolResultBuilder {
	b.startedAt = t
	b.hasStart = true
	return b
}

// Tag appends a tag.
func (b *ToolResultBuilder) Tag(tag string) *ToolResultBuilder {
	b.tags = append(b.tags, tag)
	return b
}

// Metadata adds a custom key/value pair.
func (b *ToolResultBuilder) Metadata(key, value string) *ToolResultBuilder {
	b.metadata[key] = value
	return b
}

func (b *ToolResultBuilder) buildMetadata() ToolExecutionMetadata {
	completedAt := time.Now()
	startedAt := completedAt
	if b.hasStart {
		startedAt = b.startedAt
	}
	m := NewToolExecutionMetadata(b.toolName, startedAt, completedAt)
	m.Tags = append([]string(nil), b.tags...)
	for k, v := range b.metadata {
		m.CustomMetadata[k] = v
	}
	return m
}

// Success finishes the builder with a successful result.
func (b *ToolResultBuilder) Success(output string) StructuredToolResult {
	return NewSuccessToolResult(output, b.buildMetadata())
}

// Failure finishes the builder with a failed result.
func (b *ToolResultBuilder) Failure(errMsg string, recoverable bool) StructuredToolResult {
	return NewFailureToolResult(errMsg, b.buildMetadata(), recoverable)
}

// FailureWithCode finishes the builder with a failed result carrying an
// error code.
func (b *ToolResultBuilder) FailureWithCode(errMsg, errorCode string, recoverable bool) StructuredToolResult {
	return NewFailureToolResultWithCode(errMsg, b.buildMetadata(), errorCode, recoverable)
}
