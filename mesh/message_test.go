package mesh

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/validation"
)

func agentID(t *testing.T, s string) validation.AgentId {
	t.Helper()
	id, err := validation.NewAgentID(s)
	require.NoError(t, err)
	return id
}

func TestRoutingPatterns(t *testing.T) {
	a1, a2 := agentID(t, "agent-1"), agentID(t, "agent-2")

	unicast := NewUnicastMessage(a1, a2, TextPayload("test"))
	assert.True(t, unicast.IsUnicast())
	sender, ok := unicast.Sender()
	require.True(t, ok)
	assert.Equal(t, "agent-1", sender.String())
	recipient, ok := unicast.Recipient()
	require.True(t, ok)
	assert.Equal(t, "agent-2", recipient.String())

	broadcast := NewBroadcastMessage(a1, TextPayload("announcement"))
	assert.True(t, broadcast.IsBroadcast())
	_, hasRecipient := broadcast.Recipient()
	assert.False(t, hasRecipient)

	system := NewSystemMessage(a1, TextPayload("config update"))
	assert.True(t, system.IsSystem())
	_, hasSender := system.Sender()
	assert.False(t, hasSender)

	anon := NewAnonymousMessage(TextPayload("infrastructure"))
	assert.True(t, anon.IsAnonymous())
	_, hasSender = anon.Sender()
	assert.False(t, hasSender)
	_, hasRecipient = anon.Recipient()
	assert.False(t, hasRecipient)
}

func TestTypedBuilderGuaranteesAccessorsByRoute(t *testing.T) {
	a1, a2 := agentID(t, "sender"), agentID(t, "receiver")

	msg := NewBuilder(TextPayload("hello")).
		Unicast(a1, a2).
		WithMetadata("priority", "high").
		WithCorrelationID("req-123").
		Build()

	assert.True(t, msg.IsUnicast())
	assert.Equal(t, "req-123", msg.CorrelationID)
	assert.Equal(t, "high", msg.Metadata["priority"])

	b := NewBuilder(TextPayload("announce")).Broadcast(a1)
	assert.Equal(t, "sender", b.Sender().String())
}

func TestMessageIDRoundTrip(t *testing.T) {
	id1 := NewMessageID()
	id2 := NewMessageID()
	assert.NotEqual(t, id1.String(), id2.String())

	parsed, err := ParseMessageID(id1.String())
	require.NoError(t, err)
	assert.Equal(t, id1, parsed)
}

func TestMessageIDRejectsNonUUID(t *testing.T) {
	for _, bad := range []string{"", "not-a-uuid", "550e8400-e29b", "hello-world"} {
		_, err := ParseMessageID(bad)
		assert.Error(t, err, bad)
	}
}

func TestPayloadWireFormat(t *testing.T) {
	text, err := TextPayload("hello world").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","data":"hello world"}`, string(text))

	binary, err := BinaryPayload([]byte{1, 2, 3, 4, 5}).MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"binary","data":"AQIDBAU="}`, string(binary))

	var roundTripped Payload
	require.NoError(t, json.Unmarshal(binary, &roundTripped))
	assert.Equal(t, PayloadBinary, roundTripped.Kind)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, roundTripped.Bin)
}

func TestMessageJSONRoundTrip(t *testing.T) {
	a1, a2 := agentID(t, "agent-1"), agentID(t, "agent-2")
	msg := NewUnicastMessage(a1, a2, TextPayload("test payload"))

	raw, err := msg.ToJSON()
	require.NoError(t, err)

	back, err := MessageFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, back.ID)
	assert.Equal(t, msg.Route, back.Route)
	assert.True(t, back.IsUnicast())
}

func TestRouteHelpers(t *testing.T) {
	a1, a2 := agentID(t, "agent-1"), agentID(t, "agent-2")

	r := Unicast(a1, a2)
	assert.True(t, r.HasSender())
	assert.True(t, r.HasRecipient())

	broadcast := Broadcast(a1)
	assert.True(t, broadcast.HasSender())
	assert.False(t, broadcast.HasRecipient())

	system := SystemRoute(a1)
	assert.False(t, system.HasSender())
	assert.True(t, system.HasRecipient())

	anon := Anonymous()
	assert.False(t, anon.HasSender())
	assert.False(t, anon.HasRecipient())
}
