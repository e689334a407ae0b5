package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/corebound/agentrt/rterrors"
	"github.com/corebound/agentrt/validation"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeRuntimeError writes err's sanitized response body at its mapped
// HTTP status. This is the only path by which an error ever reaches a
// client: no raw error strings, stack traces, or filesystem paths ever
// cross this boundary, per spec.md §7/§8's sanitization property.
func writeRuntimeError(w http.ResponseWriter, err *rterrors.RuntimeError) {
	writeJSON(w, err.HTTPStatus(), err.Sanitize())
}

// writeRateLimited writes the 429 + Retry-After shape spec.md §6 requires
// for both the authentication boundary's limiter and the backpressure
// manager's queue/system rejections.
func writeRateLimited(w http.ResponseWriter, reqID validation.RequestId, limitType string, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	rerr := rterrors.New(reqID, rterrors.KindRateLimitExceeded, "rate limit exceeded").
		WithDetails(map[string]any{
			"limit_type":          limitType,
			"retry_after_seconds": retryAfterSeconds,
		})
	writeRuntimeError(w, rerr)
}
