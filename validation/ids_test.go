package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentID(t *testing.T) {
	id, err := NewAgentID("echo-1")
	require.NoError(t, err)
	assert.Equal(t, "echo-1", id.String())

	_, err = NewAgentID("")
	assert.Error(t, err)

	_, err = NewAgentID("has:colon")
	assert.Error(t, err)

	_, err = NewAgentID(strings.Repeat("a", maxIdentifierLen+1))
	assert.Error(t, err)
}

func TestNewNamespacedMemoryKey(t *testing.T) {
	k, err := NewNamespacedMemoryKey("tenant-1", "last_input")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1:last_input", k.String())

	_, err = NewNamespacedMemoryKey("DROP TABLE", "x")
	assert.Error(t, err)

	_, err = NewNamespacedMemoryKey("select", "x")
	assert.Error(t, err)
}

func TestValidateNamespaceRejectsSQLKeywords(t *testing.T) {
	for _, ns := range []string{"drop_table", "will-delete", "updater", "insert-me", "created", "alternate"} {
		assert.Error(t, ValidateNamespace(ns), ns)
	}
	assert.NoError(t, ValidateNamespace("valid-ns_1"))
}

func TestNewRequestID(t *testing.T) {
	_, err := NewRequestID("req-123")
	require.NoError(t, err)

	_, err = NewRequestID("req with spaces")
	assert.Error(t, err)

	_, err = NewRequestID(strings.Repeat("x", maxRequestIDLen+1))
	assert.Error(t, err)
}

func TestRequestIDFromUUIDBypassesCharsetCheck(t *testing.T) {
	// UUIDs contain hyphens, which are allowed, but this helper is total
	// regardless of content since it is only used for server-generated ids.
	id := RequestIDFromUUID("11111111-2222-3333-4444-555555555555")
	assert.Equal(t, "11111111-2222-3333-4444-555555555555", id.String())
}
