// Package httpapi exposes the runtime's HTTP surface of spec.md §6: health,
// readiness, metrics, authentication, and the agent CRUD/observe/batch/
// stream endpoints. Grounded on the teacher's (itsneelabh/gomind)
// core.BaseAgent/core.BaseTool ServeMux wiring and ui/transports/sse's
// flusher-driven event streaming, using Go's stdlib http.ServeMux method+
// path patterns rather than a router dependency — none of the example repos
// pull in chi/gorilla/mux for this, they all build directly on net/http.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corebound/agentrt/agent"
	"github.com/corebound/agentrt/auth"
	"github.com/corebound/agentrt/backpressure"
	"github.com/corebound/agentrt/config"
	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/observability"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/runtimelog"
	"github.com/corebound/agentrt/stream"
)

// Version is the runtime's build version, overridable at link time the way
// the teacher's cmd binaries do for their own version strings.
var Version = "dev"

// Server composes every dependency the HTTP surface needs to satisfy
// spec.md §6. Beyond what it was constructed with, it owns only the
// per-agent stream registry, its start time, and a background error counter.
type Server struct {
	factory     *agent.Factory
	backpressure *backpressure.Manager
	validator   *auth.Validator
	cfg         *config.Config
	validated   *config.Validated
	logger      runtimelog.Logger
	telemetry   observability.Telemetry
	mem         memory.Backend
	registry    registry.Registry

	streams *streamRegistry
	started time.Time

	errorCounter uint64
}

// streamRegistry tracks the live stream.Executor for each agent id so
// /agents/{id}/stream can subscribe to updates produced by a concurrently
// running /observe/stream call. A process with no active streaming turn for
// an agent simply has no entry.
type streamRegistry struct {
	mu    sync.RWMutex
	execs map[string]*stream.Executor
}

func newStreamRegistry() *streamRegistry {
	return &streamRegistry{execs: make(map[string]*stream.Executor)}
}

func (r *streamRegistry) getOrCreate(agentID string) *stream.Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex, ok := r.execs[agentID]; ok {
		return ex
	}
	ex := stream.NewExecutor()
	r.execs[agentID] = ex
	return ex
}

// Deps bundles Server's constructor dependencies.
type Deps struct {
	Factory      *agent.Factory
	Backpressure *backpressure.Manager
	Validator    *auth.Validator
	Config       *config.Config
	Validated    *config.Validated
	Logger       runtimelog.Logger
	Telemetry    observability.Telemetry
	Memory       memory.Backend
	Registry     registry.Registry
}

// NewServer constructs a Server from deps, filling NoOp defaults for any
// unset logger/telemetry.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = runtimelog.NoOp{}
	}
	tel := deps.Telemetry
	if tel == nil {
		tel = observability.NoOp{}
	}
	return &Server{
		factory:      deps.Factory,
		backpressure: deps.Backpressure,
		validator:    deps.Validator,
		cfg:          deps.Config,
		validated:    deps.Validated,
		logger:       logger,
		telemetry:    tel,
		mem:          deps.Memory,
		registry:     deps.Registry,
		started:      time.Now(),
		streams:      newStreamRegistry(),
	}
}

// Handler builds the full routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /auth/token", s.handleIssueToken)

	mux.HandleFunc("GET /agents", s.handleListAgents)
	mux.HandleFunc("POST /agents", s.handleCreateAgent)
	mux.HandleFunc("GET /agents/{id}/status", s.handleAgentStatus)
	mux.HandleFunc("DELETE /agents/{id}", s.handleRemoveAgent)
	mux.HandleFunc("POST /agents/{id}/observe", s.handleObserve)
	mux.HandleFunc("POST /agents/{id}/observe/stream", s.handleObserveStream)
	mux.HandleFunc("POST /agents/{id}/batch", s.handleBatch)
	mux.HandleFunc("GET /agents/{id}/stream", s.handleAgentStream)
	mux.HandleFunc("GET /agents/{id}/queue/metrics", s.handleAgentQueueMetrics)
	mux.HandleFunc("GET /queue/metrics", s.handleGlobalQueueMetrics)

	// withRequestID must run before withAuth so the resolved request id is
	// already on the context (and the response header already set) by the
	// time an authentication failure writes its response.
	var handler http.Handler = mux
	handler = s.withAuth(handler)
	handler = s.withRequestID(handler)
	handler = observability.WrapHandler("agentrt.http", handler)
	return handler
}

func (s *Server) incrementErrors() {
	atomic.AddUint64(&s.errorCounter, 1)
}

func (s *Server) errorCount() uint64 {
	return atomic.LoadUint64(&s.errorCounter)
}

// publicPaths are reachable without a credential, per spec.md §6.
var publicPaths = map[string]bool{
	"/health":      true,
	"/ready":       true,
	"/metrics":     true,
	"/auth/token":  true,
}

func isPublic(path string) bool {
	return publicPaths[path]
}

// shutdownContext derives from parent a context that is cancelled after
// timeout.
func shutdownContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}
