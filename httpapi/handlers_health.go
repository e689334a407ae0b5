package httpapi

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/corebound/agentrt/validation"
)

// healthResponse is the /health body: liveness, version, uptime, memory.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	MemoryAllocMB uint64 `json:"memory_alloc_mb"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		MemoryAllocMB: m.Alloc / (1 << 20),
	})
}

// componentHealth is one entry of /ready's structured per-component health,
// per SPEC_FULL.md's supplemented readiness feature.
type componentHealth struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

type readyResponse struct {
	Ready      bool               `json:"ready"`
	Components []componentHealth  `json:"components"`
}

// handleReady probes the memory backend (via a harmless probe Load, since
// memory.Backend exposes no dedicated health method uniformly across
// inprocess/sqlbackend/redisbackend), the tool registry, and agent
// discovery (the factory itself), reporting each independently rather than
// collapsing them into a single boolean.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	components := []componentHealth{
		s.memoryHealth(r),
		s.registryHealth(),
		s.discoveryHealth(),
	}

	allHealthy := true
	for _, c := range components {
		if !c.Healthy {
			allHealthy = false
		}
	}

	status := http.StatusOK
	if !allHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResponse{Ready: allHealthy, Components: components})
}

// readinessProbeKey is a reserved memory key never written by runtime
// logic, used only to exercise the backend's read path during readiness
// checks; a found=false result with no error is just as healthy as found=true.
var readinessProbeKey = mustProbeKey()

func mustProbeKey() validation.MemoryKey {
	k, err := validation.NewMemoryKey("__agentrt_readiness_probe__")
	if err != nil {
		panic(err)
	}
	return k
}

func (s *Server) memoryHealth(r *http.Request) componentHealth {
	if s.mem == nil {
		return componentHealth{Name: "memory", Healthy: false, Detail: "not configured"}
	}
	if _, _, err := s.mem.Load(r.Context(), readinessProbeKey); err != nil {
		return componentHealth{Name: "memory", Healthy: false, Detail: "backend unreachable"}
	}
	return componentHealth{Name: "memory", Healthy: true}
}

func (s *Server) registryHealth() componentHealth {
	if s.registry == nil {
		return componentHealth{Name: "registry", Healthy: false, Detail: "not configured"}
	}
	return componentHealth{Name: "registry", Healthy: true}
}

func (s *Server) discoveryHealth() componentHealth {
	if s.factory == nil {
		return componentHealth{Name: "discovery", Healthy: false, Detail: "not configured"}
	}
	return componentHealth{Name: "discovery", Healthy: true, Detail: fmt.Sprintf("%d agents", s.factory.AgentCount())}
}

// handleMetrics renders a minimal Prometheus text-exposition body covering
// the global queue snapshot and the process error counter; per-agent detail
// is left to /agents/{id}/queue/metrics's JSON shape rather than duplicated
// here as per-label series.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)

	if s.backpressure != nil {
		g := s.backpressure.GlobalSnapshot()
		fmt.Fprintf(w, "# HELP agentrt_queue_active_total Currently active (dequeued, in-flight) requests.\n")
		fmt.Fprintf(w, "# TYPE agentrt_queue_active_total gauge\n")
		fmt.Fprintf(w, "agentrt_queue_active_total %d\n", g.ActiveCount)
		fmt.Fprintf(w, "# HELP agentrt_queue_global_limit Configured global concurrency limit.\n")
		fmt.Fprintf(w, "# TYPE agentrt_queue_global_limit gauge\n")
		fmt.Fprintf(w, "agentrt_queue_global_limit %d\n", g.GlobalLimit)
		fmt.Fprintf(w, "# HELP agentrt_queue_processed_total Requests processed to completion.\n")
		fmt.Fprintf(w, "# TYPE agentrt_queue_processed_total counter\n")
		fmt.Fprintf(w, "agentrt_queue_processed_total %d\n", g.TotalProcessed)
		fmt.Fprintf(w, "# HELP agentrt_queue_timeouts_total Requests that timed out queued or processing.\n")
		fmt.Fprintf(w, "# TYPE agentrt_queue_timeouts_total counter\n")
		fmt.Fprintf(w, "agentrt_queue_timeouts_total %d\n", g.TotalTimeouts)
		fmt.Fprintf(w, "# HELP agentrt_queue_rejections_total Requests rejected (queue full or system overloaded).\n")
		fmt.Fprintf(w, "# TYPE agentrt_queue_rejections_total counter\n")
		fmt.Fprintf(w, "agentrt_queue_rejections_total %d\n", g.TotalRejections)
		fmt.Fprintf(w, "# HELP agentrt_queue_load_factor Active over global limit.\n")
		fmt.Fprintf(w, "# TYPE agentrt_queue_load_factor gauge\n")
		fmt.Fprintf(w, "agentrt_queue_load_factor %f\n", g.LoadFactor)
		fmt.Fprintf(w, "# HELP agentrt_agents_total Live agent instance count.\n")
		fmt.Fprintf(w, "# TYPE agentrt_agents_total gauge\n")
		fmt.Fprintf(w, "agentrt_agents_total %d\n", g.AgentCount)
	}

	fmt.Fprintf(w, "# HELP agentrt_background_errors_total Errors recorded by background/streaming tasks.\n")
	fmt.Fprintf(w, "# TYPE agentrt_background_errors_total counter\n")
	fmt.Fprintf(w, "agentrt_background_errors_total %d\n", s.errorCount())

	if s.validator != nil {
		snap := s.validator.CountersSnapshot()
		fmt.Fprintf(w, "# HELP agentrt_auth_success_total Successful authentications.\n")
		fmt.Fprintf(w, "# TYPE agentrt_auth_success_total counter\n")
		fmt.Fprintf(w, "agentrt_auth_success_total %d\n", snap.Success)
		fmt.Fprintf(w, "# HELP agentrt_auth_failure_total Failed authentications (missing/unknown credential).\n")
		fmt.Fprintf(w, "# TYPE agentrt_auth_failure_total counter\n")
		fmt.Fprintf(w, "agentrt_auth_failure_total %d\n", snap.Failure)
		fmt.Fprintf(w, "# HELP agentrt_auth_invalid_total Authentications rejected for an invalid/tampered credential.\n")
		fmt.Fprintf(w, "# TYPE agentrt_auth_invalid_total counter\n")
		fmt.Fprintf(w, "agentrt_auth_invalid_total %d\n", snap.Invalid)
	}
}
