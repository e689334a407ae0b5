// Package auth implements spec.md §4.6: credential extraction from a
// Bearer token or X-API-Key header, validation against either a signing
// secret (HMAC-signed bearer tokens) or a pluggable key store (API keys),
// and a token-bucket rate limiter guarding the authentication boundary
// itself. Grounded on the teacher's (itsneelabh/gomind) core component
// construction idioms and styled after ui/security's credential-handling
// shape, using golang.org/x/time/rate — the pack-common rate limiting
// dependency (also reachable via goa-ai's go.mod) — instead of a hand-rolled
// token bucket.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/corebound/agentrt/rterrors"
	"github.com/corebound/agentrt/runtimelog"
	"github.com/corebound/agentrt/validation"
)

// Method distinguishes how a request's credential was validated.
type Method int

const (
	MethodBearer Method = iota
	MethodAPIKey
)

func (m Method) String() string {
	if m == MethodAPIKey {
		return "api_key"
	}
	return "bearer"
}

// AuthContext is the outcome of a successful credential validation.
type AuthContext struct {
	UserID      string
	Permissions []string
	Method      Method
}

// HasPermissions reports whether ctx's permission list contains every
// entry in required — an AND over the declared list, per spec.md §4.6.
func (c AuthContext) HasPermissions(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]bool, len(c.Permissions))
	for _, p := range c.Permissions {
		have[p] = true
	}
	for _, r := range required {
		if !have[r] {
			return false
		}
	}
	return true
}

// KeyRecord is one entry a KeyStore resolves an API key to.
type KeyRecord struct {
	UserID      string
	Permissions []string
	Revoked     bool
}

// KeyStore resolves an API key (after the configured prefix) to its
// owning user and permissions. Implementations must be safe for concurrent
// use.
type KeyStore interface {
	Lookup(ctx context.Context, key string) (KeyRecord, bool, error)
	Issue(ctx context.Context, userID string, permissions []string) (string, error)
}

// InMemoryKeyStore is a process-local KeyStore, sufficient for a single
// instance or for tests; a distributed deployment would back this with the
// same memory.Backend the runtime already uses for agent state.
type InMemoryKeyStore struct {
	prefix string

	mu   sync.RWMutex
	keys map[string]KeyRecord
}

// NewInMemoryKeyStore constructs an empty key store. prefix is prepended to
// every issued key (e.g. "sk-").
func NewInMemoryKeyStore(prefix string) *InMemoryKeyStore {
	return &InMemoryKeyStore{prefix: prefix, keys: make(map[string]KeyRecord)}
}

func (s *InMemoryKeyStore) Lookup(_ context.Context, key string) (KeyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[key]
	if !ok || rec.Revoked {
		return KeyRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *InMemoryKeyStore) Issue(_ context.Context, userID string, permissions []string) (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	key := s.prefix + base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = KeyRecord{UserID: userID, Permissions: permissions}
	return key, nil
}

func (s *InMemoryKeyStore) Revoke(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.keys[key]; ok {
		rec.Revoked = true
		s.keys[key] = rec
	}
}

// SecretSource supplies the HMAC signing secret for bearer tokens, with the
// two-mode lifecycle spec.md §4.6 requires: a documented default outside
// production, and — in production — an environment-loaded secret, falling
// back to a randomly generated one (invalidating existing tokens) with a
// logged warning rather than a panic.
type SecretSource struct {
	secret []byte
}

const developmentDefaultSecret = "agentrt-development-default-secret-do-not-use-in-production"

// ResolveSecret implements the lifecycle: configured takes precedence; in
// production an empty configured secret generates a random one and logs a
// warning; outside production it falls back to the documented default.
func ResolveSecret(configured string, production bool, logger runtimelog.Logger) SecretSource {
	if configured != "" {
		return SecretSource{secret: []byte(configured)}
	}
	if !production {
		return SecretSource{secret: []byte(developmentDefaultSecret)}
	}

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		// crypto/rand failing is not recoverable in any meaningful way;
		// the process must not start without a usable secret.
		panic("auth: failed to generate a random signing secret: " + err.Error())
	}
	if logger == nil {
		logger = runtimelog.NoOp{}
	}
	logger.Warn("auth: no signing secret configured in production; generated a random one — all existing tokens are now invalid", nil)
	return SecretSource{secret: random}
}

// token is the bearer token wire format: base64(payload) "." hex(hmac).
// Payload is itself a small JSON document so Verify can reject malformed or
// tampered tokens without ever executing untrusted data.
type tokenPayload struct {
	UserID      string   `json:"user_id"`
	Permissions []string `json:"permissions"`
	IssuedAt    int64    `json:"issued_at"`
}

func (s SecretSource) sign(payload []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// IssueToken constructs a signed bearer token for userID and permissions.
func (s SecretSource) IssueToken(userID string, permissions []string) (string, error) {
	payload, err := json.Marshal(tokenPayload{UserID: userID, Permissions: permissions, IssuedAt: time.Now().Unix()})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(payload), nil
}

// VerifyToken checks a bearer token's signature and decodes its payload.
func (s SecretSource) VerifyToken(token string) (tokenPayload, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return tokenPayload{}, errors.New("malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return tokenPayload{}, errors.New("malformed token")
	}
	expected := s.sign(payload)
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return tokenPayload{}, errors.New("invalid token signature")
	}
	var p tokenPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return tokenPayload{}, errors.New("malformed token payload")
	}
	return p, nil
}

// Counters tracks authentication outcomes, per spec.md §4.6.
type Counters struct {
	mu      sync.Mutex
	success uint64
	failure uint64
	invalid uint64
}

func (c *Counters) recordSuccess() { c.mu.Lock(); c.success++; c.mu.Unlock() }
func (c *Counters) recordFailure() { c.mu.Lock(); c.failure++; c.mu.Unlock() }
func (c *Counters) recordInvalid() { c.mu.Lock(); c.invalid++; c.mu.Unlock() }

// Snapshot is a read-only view of Counters.
type Snapshot struct{ Success, Failure, Invalid uint64 }

func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Success: c.success, Failure: c.failure, Invalid: c.invalid}
}

// Validator extracts and validates credentials from the Bearer/X-API-Key
// headers, routing sk-prefixed bearer tokens to the KeyStore and all other
// bearer tokens to signature verification, per spec.md §4.6.
type Validator struct {
	secret       SecretSource
	keys         KeyStore
	apiKeyPrefix string
	counters     Counters
	limiter      *rate.Limiter
}

// NewValidator constructs a Validator. rps/burst configure the token-bucket
// rate limiter guarding this authentication boundary; a non-positive rps
// disables rate limiting.
func NewValidator(secret SecretSource, keys KeyStore, apiKeyPrefix string, rps float64, burst int) *Validator {
	var limiter *rate.Limiter
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Validator{secret: secret, keys: keys, apiKeyPrefix: apiKeyPrefix, limiter: limiter}
}

// Allow reports whether the authentication boundary's rate limiter still
// has capacity for one more request. Exceeding it produces
// rterrors.KindRateLimitExceeded with limit_type "authentication".
func (v *Validator) Allow() bool {
	if v.limiter == nil {
		return true
	}
	return v.limiter.Allow()
}

// ExtractCredential pulls the raw credential out of either header, Bearer
// taking precedence over X-API-Key when both are present.
func ExtractCredential(authorizationHeader, apiKeyHeader string) (raw string, isBearer bool, ok bool) {
	if authorizationHeader != "" {
		if after, found := strings.CutPrefix(authorizationHeader, "Bearer "); found {
			return after, true, true
		}
	}
	if apiKeyHeader != "" {
		return apiKeyHeader, false, true
	}
	return "", false, false
}

// Authenticate validates raw (as extracted by ExtractCredential) and
// produces an AuthContext, or a sanitized rterrors.RuntimeError on failure.
// Tokens beginning with the configured API-key prefix are routed to the key
// store regardless of which header they arrived in, matching spec.md's
// "tokens beginning with the configured prefix are routed to the key
// manager" rule.
func (v *Validator) Authenticate(ctx context.Context, requestID validation.RequestId, raw string) (AuthContext, error) {
	if raw == "" {
		v.counters.recordFailure()
		return AuthContext{}, rterrors.New(requestID, rterrors.KindAuthenticationRequired, "no credential supplied")
	}

	if strings.HasPrefix(raw, v.apiKeyPrefix) {
		rec, found, err := v.keys.Lookup(ctx, raw)
		if err != nil {
			v.counters.recordInvalid()
			return AuthContext{}, rterrors.Wrap(requestID, rterrors.KindInvalidAuthentication, err)
		}
		if !found {
			v.counters.recordFailure()
			return AuthContext{}, rterrors.New(requestID, rterrors.KindInvalidAuthentication, "unknown or revoked api key")
		}
		v.counters.recordSuccess()
		return AuthContext{UserID: rec.UserID, Permissions: rec.Permissions, Method: MethodAPIKey}, nil
	}

	payload, err := v.secret.VerifyToken(raw)
	if err != nil {
		v.counters.recordInvalid()
		return AuthContext{}, rterrors.Wrap(requestID, rterrors.KindInvalidAuthentication, err)
	}
	v.counters.recordSuccess()
	return AuthContext{UserID: payload.UserID, Permissions: payload.Permissions, Method: MethodBearer}, nil
}

// IssueToken mints a bearer token for userID/permissions.
func (v *Validator) IssueToken(userID string, permissions []string) (string, error) {
	return v.secret.IssueToken(userID, permissions)
}

// CountersSnapshot returns the current success/failure/invalid counters.
func (v *Validator) CountersSnapshot() Snapshot { return v.counters.Snapshot() }

// RequirePermissions checks ctx against required and returns a sanitized
// rterrors.RuntimeError (exposing only the required list, never the
// caller's actual permissions) when it falls short.
func RequirePermissions(requestID validation.RequestId, ctx AuthContext, required ...string) error {
	if ctx.HasPermissions(required...) {
		return nil
	}
	return rterrors.New(requestID, rterrors.KindInsufficientPermissions, "missing required permissions").
		WithDetails(map[string]any{"required_permissions": required})
}
