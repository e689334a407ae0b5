package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/corebound/agentrt/auth"
	"github.com/corebound/agentrt/rterrors"
	"github.com/corebound/agentrt/runtimelog"
	"github.com/corebound/agentrt/validation"
)

type requestIDCtxKey struct{}
type authCtxKey struct{}

// requestIDHeader is the wire name for the correlation id every request
// carries or is assigned, per spec.md §6.
const requestIDHeader = "X-Request-ID"

// withRequestID extracts X-Request-ID, validates it against the same rule
// RequestId's constructor enforces, and falls back to a fresh UUID when it
// is absent or malformed. The resolved id is echoed on every response and
// attached to the request context for logging correlation and error
// construction.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := resolveRequestID(r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, reqID.String())

		ctx := runtimelog.WithRequestID(r.Context(), reqID.String())
		ctx = context.WithValue(ctx, requestIDCtxKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func resolveRequestID(raw string) validation.RequestId {
	if raw != "" {
		if id, err := validation.NewRequestID(raw); err == nil {
			return id
		}
	}
	return validation.RequestIDFromUUID(uuid.New().String())
}

// requestID reads the id withRequestID attached to ctx. It is always
// present downstream of Server.Handler, so callers that might run without
// the middleware (tests) get a freshly generated fallback instead of a
// zero value that would fail RuntimeError serialization oddly.
func requestID(ctx context.Context) validation.RequestId {
	if id, ok := ctx.Value(requestIDCtxKey{}).(validation.RequestId); ok {
		return id
	}
	return validation.RequestIDFromUUID(uuid.New().String())
}

// withAuth enforces spec.md §4.6/§6's authentication boundary: public paths
// pass through untouched; every other request must carry a valid Bearer or
// X-API-Key credential, subject to the authentication boundary's own rate
// limiter. Authentication failures and rate-limit rejections are written as
// sanitized RuntimeError responses here, before the request ever reaches a
// handler.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		reqID := requestID(r.Context())

		if !s.validator.Allow() {
			writeRateLimited(w, reqID, "authentication", 1)
			return
		}

		raw, _, ok := auth.ExtractCredential(r.Header.Get("Authorization"), r.Header.Get("X-API-Key"))
		if !ok {
			writeRuntimeError(w, rterrors.New(reqID, rterrors.KindAuthenticationRequired, "no credential supplied"))
			return
		}

		authCtx, err := s.validator.Authenticate(r.Context(), reqID, raw)
		if err != nil {
			if rerr, ok := rterrors.As(err); ok {
				writeRuntimeError(w, rerr)
				return
			}
			writeRuntimeError(w, rterrors.Wrap(reqID, rterrors.KindInvalidAuthentication, err))
			return
		}

		ctx := context.WithValue(r.Context(), authCtxKey{}, authCtx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (auth.AuthContext, bool) {
	c, ok := ctx.Value(authCtxKey{}).(auth.AuthContext)
	return c, ok
}

// pathAgentID extracts the {id} path-pattern value the stdlib mux binds,
// with surrounding whitespace trimmed. It does no validation itself: callers
// pass the result to validation.NewAgentID and answer an empty or malformed
// value with agent_not_found rather than a validation error.
func pathAgentID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
