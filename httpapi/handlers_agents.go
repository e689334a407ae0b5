package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/corebound/agentrt/agent"
	"github.com/corebound/agentrt/backpressure"
	"github.com/corebound/agentrt/rterrors"
	"github.com/corebound/agentrt/stream"
	"github.com/corebound/agentrt/validation"
)

// --- agent lookup shared by every /agents/{id}/... handler ---

func (s *Server) lookupAgent(w http.ResponseWriter, r *http.Request) (*agent.Instance, validation.AgentId, bool) {
	reqID := requestID(r.Context())
	raw := pathAgentID(r)

	id, err := validation.NewAgentID(raw)
	if err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindAgentNotFound, "malformed agent id"))
		return nil, validation.AgentId{}, false
	}
	inst, ok := s.factory.Get(id.String())
	if !ok {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindAgentNotFound, "agent not found"))
		return nil, validation.AgentId{}, false
	}
	return inst, id, true
}

// --- GET/POST /agents ---

type agentSummary struct {
	AgentID   string            `json:"agent_id"`
	AgentType string            `json:"agent_type"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	Endpoints map[string]string `json:"endpoints"`
}

func endpointsMap(id string) map[string]string {
	base := "/agents/" + id
	return map[string]string{
		"observe":        base + "/observe",
		"observe_stream": base + "/observe/stream",
		"batch":          base + "/batch",
		"stream":         base + "/stream",
		"queue_metrics":  base + "/queue/metrics",
	}
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	ids := s.factory.ListAgentIDs()
	summaries := make([]agentSummary, 0, len(ids))
	for _, id := range ids {
		inst, ok := s.factory.Get(id)
		if !ok {
			continue
		}
		summaries = append(summaries, agentSummary{
			AgentID:   id,
			AgentType: inst.AgentType,
			Status:    inst.GetStatus().String(),
			CreatedAt: inst.CreatedAt,
			Endpoints: endpointsMap(id),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": summaries})
}

type createAgentRequest struct {
	AgentType string                 `json:"agent_type"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())

	var body createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInvalidJSON, err.Error()))
		return
	}
	if body.AgentType == "" {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindMissingRequiredField, "agent_type is required").
			WithDetails(map[string]any{"field": "agent_type"}))
		return
	}

	resp, err := s.factory.CreateAgent(agent.Spec{AgentType: body.AgentType, Name: body.Name, Config: body.Config}, body.AgentID)
	if err != nil {
		var ferr *agent.FactoryError
		if errors.As(err, &ferr) {
			writeRuntimeError(w, factoryErrorToRuntime(reqID, ferr))
			return
		}
		writeRuntimeError(w, rterrors.Wrap(reqID, rterrors.KindAgentCreationFailed, err))
		return
	}

	fields := map[string]any{"agent_id": resp.AgentID, "agent_type": resp.Spec.AgentType}
	if authCtx, ok := authFromContext(r.Context()); ok {
		fields["user_id"] = authCtx.UserID
	}
	s.logger.InfoWithContext(r.Context(), "agent created", fields)

	writeJSON(w, http.StatusCreated, agentSummary{
		AgentID:   resp.AgentID,
		AgentType: resp.Spec.AgentType,
		Status:    resp.Status.String(),
		CreatedAt: resp.CreatedAt,
		Endpoints: endpointsMap(resp.AgentID),
	})
}

func factoryErrorToRuntime(reqID validation.RequestId, ferr *agent.FactoryError) *rterrors.RuntimeError {
	switch ferr.Kind {
	case agent.ErrAgentNotFound:
		return rterrors.New(reqID, rterrors.KindAgentNotFound, ferr.Detail)
	case agent.ErrUnknownAgentType, agent.ErrInvalidAgentID, agent.ErrAgentAlreadyExists, agent.ErrInvalidConfiguration:
		return rterrors.New(reqID, rterrors.KindInvalidInput, ferr.Detail).
			WithDetails(map[string]any{"field": "agent_type"})
	default:
		return rterrors.New(reqID, rterrors.KindAgentCreationFailed, ferr.Detail)
	}
}

// --- GET /agents/{id}/status ---

type statusResponse struct {
	AgentID      string `json:"agent_id"`
	Status       string `json:"status"`
	Task         string `json:"task,omitempty"`
	Reason       string `json:"reason,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	inst, id, ok := s.lookupAgent(w, r)
	if !ok {
		return
	}
	status := inst.GetStatus()
	resp := statusResponse{AgentID: id.String(), Status: status.String(), LastActivity: inst.LastActivity()}
	if task, ok := status.Task(); ok {
		resp.Task = task
	}
	if reason, ok := status.Reason(); ok {
		resp.Reason = reason
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- DELETE /agents/{id} ---

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	raw := pathAgentID(r)

	id, err := validation.NewAgentID(raw)
	if err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindAgentNotFound, "malformed agent id"))
		return
	}
	if err := s.factory.RemoveAgent(id.String()); err != nil {
		var ferr *agent.FactoryError
		if errors.As(err, &ferr) {
			writeRuntimeError(w, factoryErrorToRuntime(reqID, ferr))
			return
		}
		writeRuntimeError(w, rterrors.Wrap(reqID, rterrors.KindAgentOperationFailed, err))
		return
	}
	s.logger.InfoWithContext(r.Context(), "agent removed", map[string]any{"agent_id": id.String()})
	w.WriteHeader(http.StatusNoContent)
}

// --- observation submission, shared by /observe, /observe/stream, /batch ---

type observeRequest struct {
	Input    string `json:"input"`
	Priority string `json:"priority,omitempty"`
}

func parsePriority(raw string) backpressure.RequestPriority {
	switch raw {
	case "low":
		return backpressure.PriorityLow
	case "high":
		return backpressure.PriorityHigh
	case "critical":
		return backpressure.PriorityCritical
	default:
		return backpressure.PriorityNormal
	}
}

// submitObservation validates input, submits it to the backpressure
// manager, and blocks until the reply channel completes or ctx is
// cancelled — in which case Submit's own cancellation path (§4.5) removes
// the request from its queue.
func (s *Server) submitObservation(ctx context.Context, reqID validation.RequestId, agentID string, rawInput, priority string) (backpressure.Outcome, *rterrors.RuntimeError) {
	vi, err := validation.NewValidatedInput(rawInput)
	if err != nil {
		return backpressure.Outcome{}, rterrors.New(reqID, rterrors.KindInvalidInput, err.Error()).
			WithDetails(map[string]any{"field": "input", "reason": "input failed validation"})
	}

	ch, err := s.backpressure.Submit(ctx, agentID, vi, parsePriority(priority), time.Time{})
	if err != nil {
		var qerr *backpressure.QueueFullError
		if errors.As(err, &qerr) {
			return backpressure.Outcome{}, queueFullRuntimeError(reqID, qerr, s.retryAfterSeconds())
		}
		var serr *backpressure.SystemOverloadedError
		if errors.As(err, &serr) {
			return backpressure.Outcome{}, systemOverloadedRuntimeError(reqID, serr, s.retryAfterSeconds())
		}
		return backpressure.Outcome{}, rterrors.Wrap(reqID, rterrors.KindAgentOperationFailed, err)
	}

	select {
	case outcome := <-ch:
		return outcome, nil
	case <-ctx.Done():
		return backpressure.Outcome{}, rterrors.New(reqID, rterrors.KindTimeout, "request cancelled")
	}
}

func (s *Server) retryAfterSeconds() int {
	if s.cfg != nil && s.cfg.Backpressure.QueueTimeoutSeconds > 0 {
		return s.cfg.Backpressure.QueueTimeoutSeconds
	}
	return 1
}

func queueFullRuntimeError(reqID validation.RequestId, qerr *backpressure.QueueFullError, retryAfter int) *rterrors.RuntimeError {
	return rterrors.New(reqID, rterrors.KindRateLimitExceeded, qerr.Error()).
		WithDetails(map[string]any{"limit_type": "per_agent_queue", "retry_after_seconds": retryAfter})
}

func systemOverloadedRuntimeError(reqID validation.RequestId, serr *backpressure.SystemOverloadedError, retryAfter int) *rterrors.RuntimeError {
	return rterrors.New(reqID, rterrors.KindRateLimitExceeded, serr.Error()).
		WithDetails(map[string]any{"limit_type": "system", "retry_after_seconds": retryAfter})
}

func outcomeToRuntimeError(reqID validation.RequestId, outcome backpressure.Outcome) *rterrors.RuntimeError {
	switch outcome.Kind {
	case backpressure.OutcomeTimeout:
		return rterrors.Wrap(reqID, rterrors.KindTimeout, outcome.Err)
	default:
		return rterrors.Wrap(reqID, rterrors.KindAgentOperationFailed, outcome.Err)
	}
}

type observeResponse struct {
	AgentID   string    `json:"agent_id"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	_, id, ok := s.lookupAgent(w, r)
	if !ok {
		return
	}

	var body observeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInvalidJSON, err.Error()))
		return
	}

	outcome, rerr := s.submitObservation(r.Context(), reqID, id.String(), body.Input, body.Priority)
	if rerr != nil {
		if rerr.Kind == rterrors.KindRateLimitExceeded {
			if secs, ok := rerr.Details["retry_after_seconds"].(int); ok {
				w.Header().Set("Retry-After", strconv.Itoa(secs))
			}
		}
		writeRuntimeError(w, rerr)
		return
	}
	if outcome.Kind != backpressure.OutcomeSuccess {
		writeRuntimeError(w, outcomeToRuntimeError(reqID, outcome))
		return
	}

	writeJSON(w, http.StatusOK, observeResponse{AgentID: id.String(), Response: outcome.Action, Timestamp: time.Now().UTC()})
}

// --- POST /agents/{id}/observe/stream ---

func (s *Server) handleObserveStream(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	_, id, ok := s.lookupAgent(w, r)
	if !ok {
		return
	}

	var body observeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInvalidJSON, err.Error()))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInternalError, "streaming unsupported by this transport"))
		return
	}

	ex := s.streams.getOrCreate(id.String())
	updates := ex.Subscribe(32)

	pingCtx, cancelPings := context.WithCancel(r.Context())
	defer cancelPings()
	ex.RunWithPings(pingCtx, 15*time.Second)

	ex.Started()

	type submitResult struct {
		outcome backpressure.Outcome
		rerr    *rterrors.RuntimeError
	}
	done := make(chan submitResult, 1)
	go func() {
		outcome, rerr := s.submitObservation(r.Context(), reqID, id.String(), body.Input, body.Priority)
		done <- submitResult{outcome: outcome, rerr: rerr}
	}()

	setSSEHeaders(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case u := <-updates:
			writeSSEUpdate(w, flusher, u)
			if u.Kind == stream.EventCompleted || u.Kind == stream.EventError {
				return
			}
		case res := <-done:
			if res.rerr != nil {
				ex.Error(res.rerr.UserMessage())
			} else if res.outcome.Kind == backpressure.OutcomeSuccess {
				ex.Completed(res.outcome.Action)
			} else {
				s.incrementErrors()
				ex.Error(outcomeToRuntimeError(reqID, res.outcome).UserMessage())
			}
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSEUpdate(w http.ResponseWriter, flusher http.Flusher, u stream.Update) {
	payload := map[string]any{"type": u.Kind.String(), "emitted_at": u.EmittedAt}
	switch u.Kind {
	case stream.EventThinking:
		payload["step"] = u.Step
	case stream.EventToolCall:
		payload["tool_name"], payload["tool_input"] = u.ToolName, u.ToolInput
	case stream.EventToolSuccess:
		payload["tool_name"], payload["tool_output"] = u.ToolName, u.ToolOutput
	case stream.EventToolFailure:
		payload["tool_name"], payload["tool_error"] = u.ToolName, u.ToolError
	case stream.EventPartial:
		payload["content"] = u.Content
	case stream.EventCompleted:
		payload["final"] = u.Final
	case stream.EventError:
		payload["error"] = u.Err
	case stream.EventProgress:
		payload["percent"], payload["status"] = u.Percent, u.Status
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	w.Write([]byte("event: " + u.Kind.String() + "\ndata: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}

// --- GET /agents/{id}/stream ---

func (s *Server) handleAgentStream(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	_, id, ok := s.lookupAgent(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInternalError, "streaming unsupported by this transport"))
		return
	}

	ex := s.streams.getOrCreate(id.String())
	updates := ex.Subscribe(32)

	setSSEHeaders(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case u := <-updates:
			writeSSEUpdate(w, flusher, u)
		}
	}
}

// --- POST /agents/{id}/batch ---

type batchRequest struct {
	Observations []observeRequest `json:"observations"`
	Concurrency  int              `json:"concurrency,omitempty"`
}

type batchResultEntry struct {
	Response string `json:"response,omitempty"`
	Error    *rterrors.SanitizedResponse `json:"error,omitempty"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	_, id, ok := s.lookupAgent(w, r)
	if !ok {
		return
	}

	var body batchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInvalidJSON, err.Error()))
		return
	}

	maxBatch := 100
	if s.cfg != nil && s.cfg.HTTP.MaxBatchSize > 0 {
		maxBatch = s.cfg.HTTP.MaxBatchSize
	}
	if len(body.Observations) == 0 {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindMissingRequiredField, "observations must not be empty").
			WithDetails(map[string]any{"field": "observations"}))
		return
	}
	if len(body.Observations) > maxBatch {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindInvalidInput, "batch too large").
			WithDetails(map[string]any{"field": "observations", "reason": "exceeds maximum batch size"}))
		return
	}

	concurrency := body.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	if concurrency > len(body.Observations) {
		concurrency = len(body.Observations)
	}

	results := make([]batchResultEntry, len(body.Observations))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, obs := range body.Observations {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, obs observeRequest) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, rerr := s.submitObservation(r.Context(), reqID, id.String(), obs.Input, obs.Priority)
			if rerr != nil {
				sanitized := rerr.Sanitize()
				results[i] = batchResultEntry{Error: &sanitized}
				return
			}
			if outcome.Kind != backpressure.OutcomeSuccess {
				sanitized := outcomeToRuntimeError(reqID, outcome).Sanitize()
				results[i] = batchResultEntry{Error: &sanitized}
				return
			}
			results[i] = batchResultEntry{Response: outcome.Action}
		}(i, obs)
	}
	wg.Wait()

	writeJSON(w, http.StatusOK, map[string]any{"agent_id": id.String(), "results": results})
}

// --- GET /agents/{id}/queue/metrics and GET /queue/metrics ---

func (s *Server) handleAgentQueueMetrics(w http.ResponseWriter, r *http.Request) {
	reqID := requestID(r.Context())
	_, id, ok := s.lookupAgent(w, r)
	if !ok {
		return
	}
	snap, ok := s.backpressure.AgentSnapshot(id.String())
	if !ok {
		writeRuntimeError(w, rterrors.New(reqID, rterrors.KindAgentNotFound, "no queue activity recorded for this agent yet"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleGlobalQueueMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backpressure.GlobalSnapshot())
}
