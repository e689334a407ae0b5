// Package rterrors defines the runtime's unified error taxonomy (spec.md
// §4.8/§7). Every error crossing a subsystem boundary is eventually
// converted into a *RuntimeError carrying a request id, a machine-readable
// Kind, and — on serialization — only a fixed, generic, per-kind user
// message plus a whitelist of safe detail fields. It mirrors the
// sentinel-error-plus-wrapper shape of the teacher's core/errors.go
// (FrameworkError) but adds the HTTP-status mapping and sanitization rules
// spec.md requires.
package rterrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/corebound/agentrt/validation"
)

// Kind enumerates the runtime error taxonomy of spec.md §4.8.
type Kind string

const (
	KindAgentNotFound           Kind = "agent_not_found"
	KindAgentCreationFailed     Kind = "agent_creation_failed"
	KindAgentOperationFailed    Kind = "agent_operation_failed"
	KindAuthenticationRequired  Kind = "authentication_required"
	KindInvalidAuthentication   Kind = "invalid_authentication"
	KindInsufficientPermissions Kind = "insufficient_permissions"
	KindTokenCreationFailed     Kind = "token_creation_failed"
	KindRateLimitExceeded       Kind = "rate_limit_exceeded"
	KindInvalidInput            Kind = "invalid_input"
	KindMissingRequiredField    Kind = "missing_required_field"
	KindInvalidJSON             Kind = "invalid_json"
	KindInternalError           Kind = "internal_error"
	KindServiceUnavailable      Kind = "service_unavailable"
	KindTimeout                 Kind = "timeout"
	KindMemoryError             Kind = "memory_error"
	KindToolExecutionFailed     Kind = "tool_execution_failed"
	KindConfigurationError      Kind = "configuration_error"
)

// httpStatus is the fixed HTTP status mapping for each kind.
var httpStatus = map[Kind]int{
	KindAgentNotFound:           http.StatusNotFound,
	KindAgentCreationFailed:     http.StatusInternalServerError,
	KindAgentOperationFailed:    http.StatusInternalServerError,
	KindAuthenticationRequired:  http.StatusUnauthorized,
	KindInvalidAuthentication:   http.StatusUnauthorized,
	KindInsufficientPermissions: http.StatusForbidden,
	KindTokenCreationFailed:     http.StatusInternalServerError,
	KindRateLimitExceeded:       http.StatusTooManyRequests,
	KindInvalidInput:            http.StatusBadRequest,
	KindMissingRequiredField:    http.StatusBadRequest,
	KindInvalidJSON:             http.StatusBadRequest,
	KindInternalError:           http.StatusInternalServerError,
	KindServiceUnavailable:      http.StatusServiceUnavailable,
	KindTimeout:                 http.StatusGatewayTimeout,
	KindMemoryError:             http.StatusInternalServerError,
	KindToolExecutionFailed:     http.StatusUnprocessableEntity,
	KindConfigurationError:      http.StatusInternalServerError,
}

// userMessage is the fixed, generic, per-kind message shown to clients.
// Never include caller-supplied content here.
var userMessage = map[Kind]string{
	KindAgentNotFound:           "The requested agent was not found.",
	KindAgentCreationFailed:     "The agent could not be created.",
	KindAgentOperationFailed:    "The agent operation failed.",
	KindAuthenticationRequired:  "Authentication is required.",
	KindInvalidAuthentication:   "The supplied credentials are invalid.",
	KindInsufficientPermissions: "You do not have permission to perform this operation.",
	KindTokenCreationFailed:     "The token could not be created.",
	KindRateLimitExceeded:       "Too many requests. Please retry later.",
	KindInvalidInput:            "The supplied input is invalid.",
	KindMissingRequiredField:    "A required field is missing.",
	KindInvalidJSON:             "The request body is not valid JSON.",
	KindInternalError:           "An internal error occurred.",
	KindServiceUnavailable:      "The service is temporarily unavailable.",
	KindTimeout:                 "The operation timed out.",
	KindMemoryError:             "A storage operation failed.",
	KindToolExecutionFailed:     "Tool execution failed.",
	KindConfigurationError:      "The service is misconfigured.",
}

// RuntimeError is the unified error type every HTTP-facing failure is
// converted into. InternalContext is logged server-side, keyed by request
// id, and is never serialized to the client. Details carries only the
// whitelisted safe fields for the given Kind.
type RuntimeError struct {
	RequestID       validation.RequestId
	Kind            Kind
	InternalContext string
	Details         map[string]any
	wrapped         error
}

func (e *RuntimeError) Error() string {
	if e.InternalContext != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.InternalContext)
	}
	return string(e.Kind)
}

func (e *RuntimeError) Unwrap() error { return e.wrapped }

// HTTPStatus returns the fixed status code for this error's kind.
func (e *RuntimeError) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// UserMessage returns the fixed, generic, user-facing message.
func (e *RuntimeError) UserMessage() string {
	if m, ok := userMessage[e.Kind]; ok {
		return m
	}
	return "An error occurred."
}

// New constructs a RuntimeError. internalContext is logged server-side only
// and must never be echoed back to the client verbatim.
func New(requestID validation.RequestId, kind Kind, internalContext string) *RuntimeError {
	return &RuntimeError{RequestID: requestID, Kind: kind, InternalContext: internalContext}
}

// Wrap constructs a RuntimeError that wraps an underlying error for
// errors.Is/errors.As, while keeping the sanitization boundary intact.
func Wrap(requestID validation.RequestId, kind Kind, err error) *RuntimeError {
	return &RuntimeError{RequestID: requestID, Kind: kind, InternalContext: errStr(err), wrapped: err}
}

func errStr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// WithDetails attaches whitelisted detail fields and returns the same
// error for chaining. Callers are responsible for only passing fields from
// the whitelist documented in spec.md §4.8; Sanitize re-filters
// regardless, so this is defense in depth, not the sole enforcement point.
func (e *RuntimeError) WithDetails(details map[string]any) *RuntimeError {
	e.Details = details
	return e
}

// detailWhitelist enumerates, per kind, which detail keys may ever reach
// the client. Any key absent from this list is dropped by SanitizedResponse
// even if present in Details.
var detailWhitelist = map[Kind]map[string]bool{
	KindRateLimitExceeded:       {"limit_type": true, "retry_after_seconds": true},
	KindInvalidInput:            {"field": true, "reason": true},
	KindMissingRequiredField:    {"field": true},
	KindInsufficientPermissions: {"required_permissions": true},
}

// SanitizedResponse is the exact JSON-serializable shape returned to
// clients: fixed error code, generic message, request id, and only the
// whitelisted detail fields for this error's kind.
type SanitizedResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// Sanitize builds the client-safe response body for this error. It never
// includes InternalContext, the raw wrapped error, stack-trace-like
// substrings, or filesystem paths — only the fixed message and the
// whitelisted details.
func (e *RuntimeError) Sanitize() SanitizedResponse {
	allowed := detailWhitelist[e.Kind]
	var safe map[string]any
	if len(allowed) > 0 && len(e.Details) > 0 {
		safe = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			if allowed[k] {
				safe[k] = v
			}
		}
	}
	return SanitizedResponse{
		Error:     string(e.Kind),
		Message:   e.UserMessage(),
		RequestID: e.RequestID.String(),
		Details:   safe,
	}
}

// As reports whether err is (or wraps) a *RuntimeError and, if so, returns
// it. A thin convenience wrapper over errors.As for call sites that prefer
// a single return value.
func As(err error) (*RuntimeError, bool) {
	var rerr *RuntimeError
	ok := errors.As(err, &rerr)
	return rerr, ok
}
