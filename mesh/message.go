// Package mesh implements the inter-agent message value type described in
// spec.md §3/§6: a routing sum type, a tagged payload, and a typestate
// builder that makes an inconsistent sender/recipient pairing unrepresentable
// at the call site. Grounded on
// original_source/crates/skreaver-mesh/src/message.rs — the mesh
// *transport* (delivery, subscriptions, queues) is out of scope per
// spec.md's non-goals, but the message value type it defines is named in
// the data model and is built here in full, including its wire codec.
package mesh

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corebound/agentrt/validation"
)

// RouteKind discriminates a Route's shape, the Go analogue of the source's
// Route enum.
type RouteKind int

const (
	RouteUnicast RouteKind = iota
	RouteBroadcast
	RouteSystem
	RouteAnonymous
)

// Route carries a message's sender/recipient guarantees. Only the fields
// implied by Kind are populated:
//
//	Unicast:   From and To both set
//	Broadcast: From set, To zero
//	System:    To set, From zero
//	Anonymous: neither set
type Route struct {
	Kind RouteKind
	From validation.AgentId
	To   validation.AgentId
}

// Unicast constructs a direct agent-to-agent route.
func Unicast(from, to validation.AgentId) Route {
	return Route{Kind: RouteUnicast, From: from, To: to}
}

// Broadcast constructs a route from an agent to all listeners.
func Broadcast(from validation.AgentId) Route {
	return Route{Kind: RouteBroadcast, From: from}
}

// SystemRoute constructs a system-to-agent route (sender is the runtime
// itself, not a distinct agent).
func SystemRoute(to validation.AgentId) Route {
	return Route{Kind: RouteSystem, To: to}
}

// Anonymous constructs a system-wide infrastructure route with neither a
// sender nor a recipient.
func Anonymous() Route {
	return Route{Kind: RouteAnonymous}
}

// Sender reports the route's sender, if this routing kind guarantees one.
func (r Route) Sender() (validation.AgentId, bool) {
	switch r.Kind {
	case RouteUnicast, RouteBroadcast:
		return r.From, true
	default:
		return validation.AgentId{}, false
	}
}

// Recipient reports the route's recipient, if this routing kind guarantees
// one.
func (r Route) Recipient() (validation.AgentId, bool) {
	switch r.Kind {
	case RouteUnicast, RouteSystem:
		return r.To, true
	default:
		return validation.AgentId{}, false
	}
}

// HasRecipient reports whether this route targets a specific recipient.
func (r Route) HasRecipient() bool { return r.Kind == RouteUnicast || r.Kind == RouteSystem }

// HasSender reports whether this route has a known agent sender.
func (r Route) HasSender() bool { return r.Kind == RouteUnicast || r.Kind == RouteBroadcast }

func (k RouteKind) String() string {
	switch k {
	case RouteUnicast:
		return "unicast"
	case RouteBroadcast:
		return "broadcast"
	case RouteSystem:
		return "system"
	default:
		return "anonymous"
	}
}

// wireRoute is Route's JSON shape, internally tagged like the source's
// #[serde(tag = "type")] enum.
type wireRoute struct {
	Type string  `json:"type"`
	From *string `json:"from,omitempty"`
	To   *string `json:"to,omitempty"`
}

// MarshalJSON renders Route in the tagged shape {"type":"unicast","from":...,"to":...}.
func (r Route) MarshalJSON() ([]byte, error) {
	w := wireRoute{Type: r.Kind.String()}
	if from, ok := r.Sender(); ok {
		s := from.String()
		w.From = &s
	}
	if to, ok := r.Recipient(); ok {
		s := to.String()
		w.To = &s
	}
	return json.Marshal(w)
}

// UnmarshalJSON parses Route's tagged wire shape, validating that the
// sender/recipient fields required by the tag are present.
func (r *Route) UnmarshalJSON(data []byte) error {
	var w wireRoute
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "unicast":
		if w.From == nil || w.To == nil {
			return fmt.Errorf("mesh: unicast route requires both from and to")
		}
		from, err := validation.NewAgentID(*w.From)
		if err != nil {
			return fmt.Errorf("mesh: route.from: %w", err)
		}
		to, err := validation.NewAgentID(*w.To)
		if err != nil {
			return fmt.Errorf("mesh: route.to: %w", err)
		}
		*r = Unicast(from, to)
	case "broadcast":
		if w.From == nil {
			return fmt.Errorf("mesh: broadcast route requires from")
		}
		from, err := validation.NewAgentID(*w.From)
		if err != nil {
			return fmt.Errorf("mesh: route.from: %w", err)
		}
		*r = Broadcast(from)
	case "system":
		if w.To == nil {
			return fmt.Errorf("mesh: system route requires to")
		}
		to, err := validation.NewAgentID(*w.To)
		if err != nil {
			return fmt.Errorf("mesh: route.to: %w", err)
		}
		*r = SystemRoute(to)
	case "anonymous":
		*r = Anonymous()
	default:
		return fmt.Errorf("mesh: unknown route type %q", w.Type)
	}
	return nil
}

// MessageID is a validated message identifier, always a UUID.
type MessageID struct{ value string }

// NewMessageID generates a random (v4) message identifier.
func NewMessageID() MessageID {
	return MessageID{value: uuid.NewString()}
}

// ParseMessageID validates raw as a UUID and wraps it as a MessageID.
func ParseMessageID(raw string) (MessageID, error) {
	if _, err := uuid.Parse(raw); err != nil {
		return MessageID{}, fmt.Errorf("mesh: invalid message id %q: not a UUID", raw)
	}
	return MessageID{value: raw}, nil
}

func (m MessageID) String() string { return m.value }

func (m MessageID) MarshalJSON() ([]byte, error) { return json.Marshal(m.value) }

func (m *MessageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageID(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PayloadKind discriminates a Payload's content.
type PayloadKind int

const (
	PayloadText PayloadKind = iota
	PayloadJSON
	PayloadBinary
)

// Payload is a message body: free text, an arbitrary JSON document, or raw
// bytes (base64-encoded on the wire). Exactly one field is meaningful,
// selected by Kind, mirroring the source's internally tagged enum.
type Payload struct {
	Kind PayloadKind
	Text string
	JSON json.RawMessage
	Bin  []byte
}

// TextPayload wraps a plain string payload.
func TextPayload(s string) Payload { return Payload{Kind: PayloadText, Text: s} }

// JSONPayload wraps an already-encoded JSON document.
func JSONPayload(raw json.RawMessage) Payload { return Payload{Kind: PayloadJSON, JSON: raw} }

// BinaryPayload wraps raw bytes.
func BinaryPayload(b []byte) Payload { return Payload{Kind: PayloadBinary, Bin: b} }

type wirePayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON renders Payload as {"type":"text"|"json"|"binary","data":...},
// base64-encoding binary data the way the source's serde attribute does.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadText:
		data, err := json.Marshal(p.Text)
		if err != nil {
			return nil, err
		}
		return json.Marshal(wirePayload{Type: "text", Data: data})
	case PayloadJSON:
		data := p.JSON
		if data == nil {
			data = json.RawMessage("null")
		}
		return json.Marshal(wirePayload{Type: "json", Data: data})
	case PayloadBinary:
		encoded, err := json.Marshal(base64.StdEncoding.EncodeToString(p.Bin))
		if err != nil {
			return nil, err
		}
		return json.Marshal(wirePayload{Type: "binary", Data: encoded})
	default:
		return nil, fmt.Errorf("mesh: unknown payload kind %d", p.Kind)
	}
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case "text":
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return fmt.Errorf("mesh: text payload: %w", err)
		}
		*p = TextPayload(s)
	case "json":
		*p = JSONPayload(append(json.RawMessage(nil), w.Data...))
	case "binary":
		var encoded string
		if err := json.Unmarshal(w.Data, &encoded); err != nil {
			return fmt.Errorf("mesh: binary payload: %w", err)
		}
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("mesh: binary payload: invalid base64: %w", err)
		}
		*p = BinaryPayload(raw)
	default:
		return fmt.Errorf("mesh: unknown payload type %q", w.Type)
	}
	return nil
}

// Message is one unit sent between agents in the mesh.
type Message struct {
	ID            MessageID
	Route         Route
	Payload       Payload
	Metadata      map[string]string
	Timestamp     time.Time
	CorrelationID string // empty when unset
}

func newMessage(route Route, payload Payload) Message {
	return Message{
		ID:        NewMessageID(),
		Route:     route,
		Payload:   payload,
		Metadata:  map[string]string{},
		Timestamp: time.Now().UTC(),
	}
}

// NewAnonymousMessage constructs a system-wide infrastructure message.
func NewAnonymousMessage(payload Payload) Message { return newMessage(Anonymous(), payload) }

// NewUnicastMessage constructs a direct agent-to-agent message.
func NewUnicastMessage(from, to validation.AgentId, payload Payload) Message {
	return newMessage(Unicast(from, to), payload)
}

// NewBroadcastMessage constructs a broadcast message from an agent.
func NewBroadcastMessage(from validation.AgentId, payload Payload) Message {
	return newMessage(Broadcast(from), payload)
}

// NewSystemMessage constructs a system-originated message to a specific agent.
func NewSystemMessage(to validation.AgentId, payload Payload) Message {
	return newMessage(SystemRoute(to), payload)
}

// WithMetadata returns a copy of m with key/value added to its metadata.
func (m Message) WithMetadata(key, value string) Message {
	next := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		next[k] = v
	}
	next[key] = value
	m.Metadata = next
	return m
}

// WithCorrelationID returns a copy of m carrying a request/reply
// correlation id.
func (m Message) WithCorrelationID(id string) Message {
	m.CorrelationID = id
	return m
}

// Sender returns the message's sender, if its route guarantees one.
func (m Message) Sender() (validation.AgentId, bool) { return m.Route.Sender() }

// Recipient returns the message's recipient, if its route guarantees one.
func (m Message) Recipient() (validation.AgentId, bool) { return m.Route.Recipient() }

func (m Message) IsUnicast() bool   { return m.Route.Kind == RouteUnicast }
func (m Message) IsBroadcast() bool { return m.Route.Kind == RouteBroadcast }
func (m Message) IsSystem() bool    { return m.Route.Kind == RouteSystem }
func (m Message) IsAnonymous() bool { return m.Route.Kind == RouteAnonymous }

type wireMessage struct {
	ID            MessageID         `json:"id"`
	Route         Route             `json:"route"`
	Payload       Payload           `json:"payload"`
	Metadata      map[string]string `json:"metadata"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID *string           `json:"correlation_id,omitempty"`
}

// ToJSON serializes m to its wire form.
func (m Message) ToJSON() ([]byte, error) {
	w := wireMessage{ID: m.ID, Route: m.Route, Payload: m.Payload, Metadata: m.Metadata, Timestamp: m.Timestamp}
	if m.CorrelationID != "" {
		w.CorrelationID = &m.CorrelationID
	}
	return json.Marshal(w)
}

// MessageFromJSON deserializes a Message from its wire form.
func MessageFromJSON(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, err
	}
	m := Message{ID: w.ID, Route: w.Route, Payload: w.Payload, Metadata: w.Metadata, Timestamp: w.Timestamp}
	if w.CorrelationID != nil {
		m.CorrelationID = *w.CorrelationID
	}
	if m.Metadata == nil {
		m.Metadata = map[string]string{}
	}
	return m, nil
}
