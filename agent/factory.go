package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corebound/agentrt/observability"
	"github.com/corebound/agentrt/validation"
)

// telemetryAware is implemented by coordinators that can be told the agent
// id and telemetry backend they run under once both are known (the
// concrete *coordinator.Coordinator does; declared locally rather than
// imported to avoid a dependency on the coordinator package here).
type telemetryAware interface {
	SetTelemetry(tel observability.Telemetry, agentID string)
}

// Spec is the client-supplied description of an agent to create.
type Spec struct {
	AgentType string
	Name      string
	Config    map[string]interface{}
}

// Endpoints are the computed HTTP paths for a created agent, mirroring
// AgentEndpoints::for_agent.
type Endpoints struct {
	Observe       string
	ObserveStream string
	Batch         string
	Stream        string
	QueueMetrics  string
}

func endpointsFor(id string) Endpoints {
	base := "/agents/" + id
	return Endpoints{
		Observe:       base + "/observe",
		ObserveStream: base + "/observe/stream",
		Batch:         base + "/batch",
		Stream:        base + "/stream",
		QueueMetrics:  base + "/queue/metrics",
	}
}

// CreateResponse is returned by Factory.CreateAgent.
type CreateResponse struct {
	AgentID   string
	Spec      Spec
	Status    Status
	CreatedAt time.Time
	Endpoints Endpoints
}

// Builder constructs coordinators for one agent type. ValidateSpec has a
// sensible default (DefaultValidateSpec) that rejects a mismatched
// AgentType; builders needing extra validation call it first.
type Builder interface {
	AgentType() string
	BuildCoordinator(spec Spec) (Coordinator, error)
	ValidateSpec(spec Spec) error
	DefaultConfig() map[string]interface{}
}

// DefaultValidateSpec is the validation every Builder gets unless it
// overrides ValidateSpec, matching AgentBuilder::validate_spec's default.
func DefaultValidateSpec(b Builder, spec Spec) error {
	if spec.AgentType != b.AgentType() {
		return &FactoryError{Kind: ErrInvalidConfiguration, Detail: fmt.Sprintf("builder for %s cannot handle %s", b.AgentType(), spec.AgentType)}
	}
	return nil
}

// FactoryErrorKind distinguishes Factory failure modes.
type FactoryErrorKind int

const (
	ErrUnknownAgentType FactoryErrorKind = iota
	ErrInvalidAgentID
	ErrAgentAlreadyExists
	ErrCreationFailed
	ErrAgentNotFound
	ErrInvalidConfiguration
)

// FactoryError is the Factory's structured error type.
type FactoryError struct {
	Kind   FactoryErrorKind
	Detail string
}

func (e *FactoryError) Error() string { return e.Detail }

// Factory maintains the AgentType -> Builder mapping and every live
// Instance, matching skreaver's AgentFactory.
type Factory struct {
	mu        sync.RWMutex
	builders  map[string]Builder
	agents    map[string]*Instance
	telemetry observability.Telemetry
}

// NewFactory constructs an empty factory with no-op telemetry; call
// SetTelemetry to attach a real backend before creating agents.
func NewFactory() *Factory {
	return &Factory{builders: make(map[string]Builder), agents: make(map[string]*Instance), telemetry: observability.NoOp{}}
}

// SetTelemetry attaches tel so every coordinator built after this call gets
// per-turn and per-tool-call spans tagged with its agent id.
func (f *Factory) SetTelemetry(tel observability.Telemetry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tel == nil {
		tel = observability.NoOp{}
	}
	f.telemetry = tel
}

// RegisterBuilder adds or replaces the builder for its AgentType().
func (f *Factory) RegisterBuilder(b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[b.AgentType()] = b
}

// SupportedTypes lists every registered agent type.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	return types
}

// CreateAgent looks up the builder, validates spec, generates or parses the
// agent id, guarantees uniqueness, builds the coordinator, records tags and
// config as metadata, stores the instance, and returns its response.
func (f *Factory) CreateAgent(spec Spec, customID string) (CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	builder, ok := f.builders[spec.AgentType]
	if !ok {
		return CreateResponse{}, &FactoryError{Kind: ErrUnknownAgentType, Detail: "unknown agent type: " + spec.AgentType}
	}

	if err := builder.ValidateSpec(spec); err != nil {
		return CreateResponse{}, err
	}

	idStr := customID
	if idStr == "" {
		idStr = uuid.New().String()
	}
	id, err := validation.NewAgentID(idStr)
	if err != nil {
		return CreateResponse{}, &FactoryError{Kind: ErrInvalidAgentID, Detail: "invalid agent id: " + err.Error()}
	}

	if _, exists := f.agents[id.String()]; exists {
		return CreateResponse{}, &FactoryError{Kind: ErrAgentAlreadyExists, Detail: "agent with id '" + id.String() + "' already exists"}
	}

	coordinator, err := builder.BuildCoordinator(spec)
	if err != nil {
		return CreateResponse{}, &FactoryError{Kind: ErrCreationFailed, Detail: fmt.Sprintf("failed to create %s agent: %s", spec.AgentType, err)}
	}
	if ta, ok := coordinator.(telemetryAware); ok {
		ta.SetTelemetry(f.telemetry, id.String())
	}

	instance := New(id, spec.AgentType, coordinator)
	if spec.Name != "" {
		instance.AddTag("name", spec.Name)
	}
	for k, v := range spec.Config {
		instance.AddCustomMetadata("config."+k, v)
	}

	f.agents[id.String()] = instance

	return CreateResponse{
		AgentID:   id.String(),
		Spec:      spec,
		Status:    instance.GetStatus(),
		CreatedAt: instance.CreatedAt,
		Endpoints: endpointsFor(id.String()),
	}, nil
}

// Get returns the instance for id, or (nil, false).
func (f *Factory) Get(id string) (*Instance, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	inst, ok := f.agents[id]
	return inst, ok
}

// HasAgent reports whether id names a live instance.
func (f *Factory) HasAgent(id string) bool {
	_, ok := f.Get(id)
	return ok
}

// RemoveAgent evicts id, failing with ErrAgentNotFound if it isn't present.
// The evicted instance's cleanup hook fires after the map entry is removed,
// so no other goroutine can observe the instance mid-teardown.
func (f *Factory) RemoveAgent(id string) error {
	f.mu.Lock()
	inst, ok := f.agents[id]
	if !ok {
		f.mu.Unlock()
		return &FactoryError{Kind: ErrAgentNotFound, Detail: "agent '" + id + "' not found"}
	}
	delete(f.agents, id)
	f.mu.Unlock()

	inst.Close()
	return nil
}

// ListAgentIDs returns every live instance's id.
func (f *Factory) ListAgentIDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.agents))
	for id := range f.agents {
		ids = append(ids, id)
	}
	return ids
}

// AgentCount reports the number of live instances.
func (f *Factory) AgentCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.agents)
}

// ShutdownAllAgents evicts every instance, fires each one's cleanup hook,
// and returns how many were evicted.
func (f *Factory) ShutdownAllAgents() int {
	f.mu.Lock()
	instances := make([]*Instance, 0, len(f.agents))
	for id, inst := range f.agents {
		instances = append(instances, inst)
		delete(f.agents, id)
	}
	f.mu.Unlock()

	for _, inst := range instances {
		inst.Close()
	}
	return len(instances)
}
