package agent

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corebound/agentrt/validation"
)

// Coordinator is the minimal per-agent turn contract an Instance drives.
// Declared here (rather than importing the coordinator package) so the
// concrete *coordinator.Coordinator satisfies it structurally, avoiding a
// dependency cycle — the same decoupling original_source's
// agent_instance.rs achieves with its local CoordinatorTrait.
type Coordinator interface {
	Step(ctx context.Context, observation validation.ValidatedInput) (string, error)
}

// Metadata is the tag/custom-field bag recorded about an instance: its
// spec's name (as a tag) and its full spec config (as custom fields).
type Metadata struct {
	Tags   map[string]string
	Custom map[string]interface{}
}

// Instance wraps a Coordinator with the status machine, activity clock, and
// observation/tool-call counters spec.md §4.4 requires.
type Instance struct {
	ID        validation.AgentId
	AgentType string
	CreatedAt time.Time

	coordinator Coordinator

	mu           sync.RWMutex
	status       Status
	lastActivity time.Time
	metadata     Metadata
	cleanupHook  func()
	closed       bool

	observationCount uint64
	toolCallCount    uint64
}

// New constructs an Instance in the Ready status.
func New(id validation.AgentId, agentType string, coordinator Coordinator) *Instance {
	now := time.Now()
	return &Instance{
		ID:           id,
		AgentType:    agentType,
		CreatedAt:    now,
		coordinator:  coordinator,
		status:       Ready(),
		lastActivity: now,
		metadata:     Metadata{Tags: make(map[string]string), Custom: make(map[string]interface{})},
	}
}

// SetStatus transitions the instance and refreshes the activity clock. It
// has no effect once the instance is ShuttingDown, which is terminal.
func (i *Instance) SetStatus(status Status) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status.IsShuttingDown() {
		return
	}
	i.status = status
	i.lastActivity = time.Now()
}

func (i *Instance) GetStatus() Status {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.status
}

// CanAcceptObservations queries the single admit-observations predicate.
func (i *Instance) CanAcceptObservations() bool {
	return i.GetStatus().CanAcceptObservations()
}

func (i *Instance) LastActivity() time.Time {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastActivity
}

func (i *Instance) IncrementObservations() { atomic.AddUint64(&i.observationCount, 1) }
func (i *Instance) IncrementToolCalls()    { atomic.AddUint64(&i.toolCallCount, 1) }
func (i *Instance) ObservationCount() uint64 { return atomic.LoadUint64(&i.observationCount) }
func (i *Instance) ToolCallCount() uint64    { return atomic.LoadUint64(&i.toolCallCount) }

// SetCleanupHook registers the function Close runs exactly once. Builders
// whose Coordinator holds closeable resources (a dedicated memory writer, a
// subscription, an open file) register one here instead of relying on GC,
// matching spec.md §4.4's "destroyed on removal or runtime shutdown, at
// which point a cleanup hook fires."
func (i *Instance) SetCleanupHook(hook func()) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cleanupHook = hook
}

// Close transitions the instance to ShuttingDown and fires its cleanup hook
// exactly once. Safe to call more than once; only the first call has
// effect. Called by the Factory when an instance is removed or the runtime
// shuts down, never by the instance itself.
func (i *Instance) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.status = ShuttingDown()
	i.lastActivity = time.Now()
	hook := i.cleanupHook
	i.mu.Unlock()

	if hook != nil {
		hook()
	}
}

func (i *Instance) AddTag(key, value string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.metadata.Tags[key] = value
}

func (i *Instance) AddCustomMetadata(key string, value interface{}) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.metadata.Custom[key] = value
}

func (i *Instance) GetMetadata() Metadata {
	i.mu.RLock()
	defer i.mu.RUnlock()
	tags := make(map[string]string, len(i.metadata.Tags))
	for k, v := range i.metadata.Tags {
		tags[k] = v
	}
	custom := make(map[string]interface{}, len(i.metadata.Custom))
	for k, v := range i.metadata.Custom {
		custom[k] = v
	}
	return Metadata{Tags: tags, Custom: custom}
}

// ExecutionError reports that a turn could not run because the instance's
// status does not admit observations.
type ExecutionError struct {
	AgentID validation.AgentId
	Status  string
}

func (e *ExecutionError) Error() string {
	return "agent " + e.AgentID.String() + " cannot accept observations in status " + e.Status
}

// ExecuteStep checks CanAcceptObservations, transitions to Processing,
// drives the coordinator's turn, and transitions back to Ready on success
// or Error on failure — matching AgentInstance::execute_step.
func (i *Instance) ExecuteStep(ctx context.Context, observation validation.ValidatedInput) (string, error) {
	if !i.CanAcceptObservations() {
		return "", &ExecutionError{AgentID: i.ID, Status: i.GetStatus().String()}
	}

	i.SetStatus(Processing(taskLabel(observation), time.Now()))
	i.IncrementObservations()

	action, err := i.coordinator.Step(ctx, observation)
	if err != nil {
		i.SetStatus(ErrorStatus(err.Error()))
		return "", err
	}

	i.SetStatus(Ready())
	return action, nil
}

const maxTaskLabelLen = 80

// taskLabel bounds the Processing status's task field so a large
// observation payload doesn't balloon into every status response.
func taskLabel(observation validation.ValidatedInput) string {
	s := observation.String()
	if len(s) <= maxTaskLabelLen {
		return s
	}
	return s[:maxTaskLabelLen] + "..."
}
