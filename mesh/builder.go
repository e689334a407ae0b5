package mesh

import "github.com/corebound/agentrt/validation"

// Builder starts a message whose routing has not yet been chosen. Go has no
// phantom-type enums like the source's PhantomData<R>, so the typestate
// guarantee is reproduced with distinct concrete builder types per routing
// kind instead of one generic parametrized over a marker: a
// UnicastBuilder exposes Sender/Recipient, a BroadcastBuilder exposes only
// Sender, and so on — the same "no Option unwrapping, wrong accessor
// doesn't compile" guarantee the typestate pattern gives.
type Builder struct {
	payload       Payload
	metadata      map[string]string
	correlationID string
}

// NewBuilder starts building a message carrying payload. Routing must be
// supplied by calling Unicast, Broadcast, System, or Anonymous before the
// message can be built.
func NewBuilder(payload Payload) Builder {
	return Builder{payload: payload, metadata: map[string]string{}}
}

// WithMetadata attaches a metadata entry, carried through to the routed
// builder and the final Message.
func (b Builder) WithMetadata(key, value string) Builder {
	next := make(map[string]string, len(b.metadata)+1)
	for k, v := range b.metadata {
		next[k] = v
	}
	next[key] = value
	b.metadata = next
	return b
}

// WithCorrelationID attaches a request/reply correlation id.
func (b Builder) WithCorrelationID(id string) Builder {
	b.correlationID = id
	return b
}

// Unicast fixes this message's routing to a direct agent-to-agent send.
func (b Builder) Unicast(from, to validation.AgentId) UnicastBuilder {
	return UnicastBuilder{routed(b, Unicast(from, to))}
}

// Broadcast fixes this message's routing to a broadcast from an agent.
func (b Builder) Broadcast(from validation.AgentId) BroadcastBuilder {
	return BroadcastBuilder{routed(b, Broadcast(from))}
}

// System fixes this message's routing to a system-to-agent send.
func (b Builder) System(to validation.AgentId) SystemBuilder {
	return SystemBuilder{routed(b, SystemRoute(to))}
}

// Anonymous fixes this message's routing to a system-wide infrastructure
// send with no sender or recipient.
func (b Builder) Anonymous() AnonymousBuilder {
	return AnonymousBuilder{routed(b, Anonymous())}
}

// routedBuilder holds the state shared by every routed builder variant.
type routedBuilder struct {
	route         Route
	payload       Payload
	metadata      map[string]string
	correlationID string
}

func routed(b Builder, r Route) routedBuilder {
	return routedBuilder{route: r, payload: b.payload, metadata: b.metadata, correlationID: b.correlationID}
}

func (rb routedBuilder) withMetadata(key, value string) routedBuilder {
	next := make(map[string]string, len(rb.metadata)+1)
	for k, v := range rb.metadata {
		next[k] = v
	}
	next[key] = value
	rb.metadata = next
	return rb
}

func (rb routedBuilder) withCorrelationID(id string) routedBuilder {
	rb.correlationID = id
	return rb
}

func (rb routedBuilder) build() Message {
	m := newMessage(rb.route, rb.payload)
	if rb.metadata != nil {
		m.Metadata = rb.metadata
	}
	m.CorrelationID = rb.correlationID
	return m
}

// UnicastBuilder is a Builder routed as a direct agent-to-agent send; both
// Sender and Recipient are guaranteed present.
type UnicastBuilder struct{ routedBuilder }

func (b UnicastBuilder) WithMetadata(key, value string) UnicastBuilder {
	return UnicastBuilder{b.withMetadata(key, value)}
}
func (b UnicastBuilder) WithCorrelationID(id string) UnicastBuilder {
	return UnicastBuilder{b.withCorrelationID(id)}
}
func (b UnicastBuilder) Build() Message { return b.build() }
func (b UnicastBuilder) Sender() validation.AgentId {
	from, _ := b.route.Sender()
	return from
}
func (b UnicastBuilder) Recipient() validation.AgentId {
	to, _ := b.route.Recipient()
	return to
}

// BroadcastBuilder is a Builder routed as a broadcast; only Sender is
// guaranteed present.
type BroadcastBuilder struct{ routedBuilder }

func (b BroadcastBuilder) WithMetadata(key, value string) BroadcastBuilder {
	return BroadcastBuilder{b.withMetadata(key, value)}
}
func (b BroadcastBuilder) WithCorrelationID(id string) BroadcastBuilder {
	return BroadcastBuilder{b.withCorrelationID(id)}
}
func (b BroadcastBuilder) Build() Message { return b.build() }
func (b BroadcastBuilder) Sender() validation.AgentId {
	from, _ := b.route.Sender()
	return from
}

// SystemBuilder is a Builder routed as a system-to-agent send; only
// Recipient is guaranteed present.
type SystemBuilder struct{ routedBuilder }

func (b SystemBuilder) WithMetadata(key, value string) SystemBuilder {
	return SystemBuilder{b.withMetadata(key, value)}
}
func (b SystemBuilder) WithCorrelationID(id string) SystemBuilder {
	return SystemBuilder{b.withCorrelationID(id)}
}
func (b SystemBuilder) Build() Message { return b.build() }
func (b SystemBuilder) Recipient() validation.AgentId {
	to, _ := b.route.Recipient()
	return to
}

// AnonymousBuilder is a Builder routed as a system-wide infrastructure
// send; it has neither a Sender nor a Recipient accessor.
type AnonymousBuilder struct{ routedBuilder }

func (b AnonymousBuilder) WithMetadata(key, value string) AnonymousBuilder {
	return AnonymousBuilder{b.withMetadata(key, value)}
}
func (b AnonymousBuilder) WithCorrelationID(id string) AnonymousBuilder {
	return AnonymousBuilder{b.withCorrelationID(id)}
}
func (b AnonymousBuilder) Build() Message { return b.build() }
