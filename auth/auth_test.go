package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/rterrors"
	"github.com/corebound/agentrt/validation"
)

func reqID(t *testing.T) validation.RequestId {
	t.Helper()
	id, err := validation.NewRequestID("req-test-1")
	require.NoError(t, err)
	return id
}

func TestBearerTokenRoundTrip(t *testing.T) {
	secret := ResolveSecret("test-secret", false, nil)
	keys := NewInMemoryKeyStore("sk-")
	v := NewValidator(secret, keys, "sk-", 0, 0)

	token, err := v.IssueToken("alice", []string{"agents:read"})
	require.NoError(t, err)

	ctx, err := v.Authenticate(context.Background(), reqID(t), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", ctx.UserID)
	assert.Equal(t, MethodBearer, ctx.Method)
	assert.True(t, ctx.HasPermissions("agents:read"))
	assert.False(t, ctx.HasPermissions("agents:write"))
}

func TestAPIKeyRoutedByPrefix(t *testing.T) {
	secret := ResolveSecret("test-secret", false, nil)
	keys := NewInMemoryKeyStore("sk-")
	v := NewValidator(secret, keys, "sk-", 0, 0)

	key, err := keys.Issue(context.Background(), "bob", []string{"agents:write"})
	require.NoError(t, err)
	require.True(t, len(key) > len("sk-"))

	ctx, err := v.Authenticate(context.Background(), reqID(t), key)
	require.NoError(t, err)
	assert.Equal(t, "bob", ctx.UserID)
	assert.Equal(t, MethodAPIKey, ctx.Method)
}

func TestTamperedTokenRejected(t *testing.T) {
	secret := ResolveSecret("test-secret", false, nil)
	v := NewValidator(secret, NewInMemoryKeyStore("sk-"), "sk-", 0, 0)

	token, err := v.IssueToken("alice", nil)
	require.NoError(t, err)

	_, err = v.Authenticate(context.Background(), reqID(t), token+"tampered")
	require.Error(t, err)
	rerr, ok := rterrors.As(err)
	require.True(t, ok)
	assert.Equal(t, rterrors.KindInvalidAuthentication, rerr.Kind)
	assert.NotContains(t, rerr.Sanitize().Message, "tampered")
}

func TestRevokedKeyRejected(t *testing.T) {
	secret := ResolveSecret("test-secret", false, nil)
	keys := NewInMemoryKeyStore("sk-")
	v := NewValidator(secret, keys, "sk-", 0, 0)

	key, err := keys.Issue(context.Background(), "carol", nil)
	require.NoError(t, err)
	keys.Revoke(key)

	_, err = v.Authenticate(context.Background(), reqID(t), key)
	require.Error(t, err)
}

func TestRequirePermissionsNeverLeaksActualPermissions(t *testing.T) {
	ctx := AuthContext{UserID: "dave", Permissions: []string{"secret:internal-role"}}
	err := RequirePermissions(reqID(t), ctx, "agents:admin")
	require.Error(t, err)
	rerr, ok := rterrors.As(err)
	require.True(t, ok)
	sanitized := rerr.Sanitize()
	assert.NotContains(t, sanitized.Message, "secret:internal-role")
	assert.Contains(t, sanitized.Details["required_permissions"], "agents:admin")
}

func TestProductionWithoutSecretGeneratesRandomOne(t *testing.T) {
	s1 := ResolveSecret("", true, nil)
	s2 := ResolveSecret("", true, nil)
	tok1, err := s1.IssueToken("x", nil)
	require.NoError(t, err)
	_, err = s2.VerifyToken(tok1)
	assert.Error(t, err, "independently generated secrets must not validate each other's tokens")
}

func TestRateLimiterBlocksBeyondBurst(t *testing.T) {
	secret := ResolveSecret("test-secret", false, nil)
	v := NewValidator(secret, NewInMemoryKeyStore("sk-"), "sk-", 1, 1)
	assert.True(t, v.Allow())
	assert.False(t, v.Allow())
}
