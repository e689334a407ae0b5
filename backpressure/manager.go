package backpressure

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corebound/agentrt/runtimelog"
	"github.com/corebound/agentrt/validation"
)

// ErrQueueTimeout is delivered when a request's total time in the queue
// (before dequeue) exceeds QueueTimeout.
var ErrQueueTimeout = errors.New("request timed out while queued")

// ErrProcessingTimeout is delivered when a dequeued request's handler does
// not return within ProcessingTimeout.
var ErrProcessingTimeout = errors.New("request timed out while processing")

// AgentQueue is the per-agent priority queue and counters of spec.md §4.5:
// an ordered heap of queued requests, an active count bounded by an
// adaptively-tunable effective limit, and rolling statistics.
type AgentQueue struct {
	agentID string

	mu      sync.Mutex
	heap    priorityHeap
	nextSeq uint64

	activeCount    int32
	effectiveLimit int32
	configuredMax  int32

	stats queueStats
}

func newAgentQueue(agentID string, configuredMax int) *AgentQueue {
	return &AgentQueue{
		agentID:        agentID,
		effectiveLimit: int32(configuredMax),
		configuredMax:  int32(configuredMax),
	}
}

func (aq *AgentQueue) queueLen() int {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	return len(aq.heap)
}

// tryPop removes and returns the highest-priority, oldest-enqueued item if
// the agent's effective concurrency limit still has room. The caller must
// already hold a global semaphore token.
func (aq *AgentQueue) tryPop() (*queueItem, bool) {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	if len(aq.heap) == 0 {
		return nil, false
	}
	if atomic.LoadInt32(&aq.activeCount) >= atomic.LoadInt32(&aq.effectiveLimit) {
		return nil, false
	}
	item := heap.Pop(&aq.heap).(*queueItem)
	atomic.AddInt32(&aq.activeCount, 1)
	return item, true
}

// removeIfQueued removes item from the heap if it has not yet been
// dequeued, reporting whether it did so.
func (aq *AgentQueue) removeIfQueued(item *queueItem) bool {
	aq.mu.Lock()
	defer aq.mu.Unlock()
	if item.index == -1 {
		return false
	}
	heap.Remove(&aq.heap, item.index)
	return true
}

// AgentMetrics is the per-agent read-only snapshot of spec.md §4.5's
// Metrics subsection.
type AgentMetrics struct {
	AgentID         string
	QueueLength     int
	ActiveCount     int
	EffectiveLimit  int
	TotalProcessed  uint64
	TotalTimeouts   uint64
	TotalRejections uint64
	TotalCancelled  uint64
	SmoothedMs      float64
	LoadFactor      float64
}

func (aq *AgentQueue) snapshot() AgentMetrics {
	s := aq.stats.snapshot()
	active := atomic.LoadInt32(&aq.activeCount)
	limit := atomic.LoadInt32(&aq.effectiveLimit)
	loadFactor := 0.0
	if limit > 0 {
		loadFactor = float64(active) / float64(limit)
	}
	return AgentMetrics{
		AgentID:         aq.agentID,
		QueueLength:     aq.queueLen(),
		ActiveCount:     int(active),
		EffectiveLimit:  int(limit),
		TotalProcessed:  s.totalProcessed,
		TotalTimeouts:   s.totalTimeouts,
		TotalRejections: s.totalRejections,
		TotalCancelled:  s.totalCancelled,
		SmoothedMs:      s.smoothedMs,
		LoadFactor:      loadFactor,
	}
}

// GlobalMetrics is the runtime-wide read-only snapshot.
type GlobalMetrics struct {
	ActiveCount     int
	GlobalLimit     int
	TotalProcessed  uint64
	TotalTimeouts   uint64
	TotalRejections uint64
	LoadFactor      float64
	Mode            string
	AgentCount      int
}

// Manager is the backpressure-aware request pipeline of spec.md §4.5: a
// priority queue per agent, a semaphore bounding global concurrency, and —
// in AdaptiveMode — a periodic tick that retunes each agent's effective
// concurrency limit from observed load. Grounded on original_source's
// handlers/observations.rs BackpressureManager and styled after the
// teacher's resilience.CircuitBreaker ticker-driven state machine.
type Manager struct {
	cfg     Config
	handler Handler
	logger  runtimelog.Logger

	agentsMu sync.RWMutex
	agents   map[string]*AgentQueue

	globalSem chan struct{}

	globalProcessed  uint64
	globalTimeouts   uint64
	globalRejections uint64

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewManager constructs a Manager and starts its dispatch and (in
// AdaptiveMode) concurrency-retuning goroutines. Callers must call Close to
// release them.
func NewManager(cfg Config, handler Handler, logger runtimelog.Logger) *Manager {
	if logger == nil {
		logger = runtimelog.NoOp{}
	}
	m := &Manager{
		cfg:       cfg,
		handler:   handler,
		logger:    logger,
		agents:    make(map[string]*AgentQueue),
		globalSem: make(chan struct{}, cfg.GlobalMaxConcurrent.Int()),
		wakeCh:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.dispatchLoop()
	if cfg.Mode.IsAdaptive() {
		m.wg.Add(1)
		go m.adaptiveLoop()
	}
	return m
}

func (m *Manager) wake() {
	select {
	case m.wakeCh <- struct{}{}:
	default:
	}
}

// systemOverloadQueueMultiplier bounds total cross-agent pending work once
// the global semaphore is saturated: beyond globalMaxConcurrent times this
// factor, admitting more would only grow unbounded queues, so Submit
// rejects with SystemOverloadedError instead of QueueFullError (which is
// scoped to a single agent).
const systemOverloadQueueMultiplier = 10

func (m *Manager) totalPending() int {
	m.agentsMu.RLock()
	defer m.agentsMu.RUnlock()
	total := 0
	for _, aq := range m.agents {
		total += aq.queueLen()
	}
	return total
}

func (m *Manager) getOrCreateQueue(agentID string) *AgentQueue {
	m.agentsMu.RLock()
	aq, ok := m.agents[agentID]
	m.agentsMu.RUnlock()
	if ok {
		return aq
	}

	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()
	if aq, ok := m.agents[agentID]; ok {
		return aq
	}
	aq = newAgentQueue(agentID, m.cfg.MaxConcurrentPerAgent.Int())
	m.agents[agentID] = aq
	return aq
}

// Submit enqueues req for agentID. It returns a receive-only channel that
// will be completed exactly once — with the agent's action, a timeout, or a
// processing error — or one of QueueFullError/SystemOverloadedError if the
// request cannot be admitted at all. Cancelling ctx before the request
// completes removes it from the queue (if still queued) or lets an
// in-flight turn run to completion with its result discarded, mirroring
// the receiver-drop cancellation semantics of spec.md §4.5.
func (m *Manager) Submit(ctx context.Context, agentID string, input validation.ValidatedInput, priority RequestPriority, deadline time.Time) (<-chan Outcome, error) {
	aq := m.getOrCreateQueue(agentID)

	if active, limit := len(m.globalSem), cap(m.globalSem); active >= limit && m.totalPending() >= limit*systemOverloadQueueMultiplier {
		atomic.AddUint64(&m.globalRejections, 1)
		return nil, &SystemOverloadedError{Active: active, Limit: limit}
	}

	aq.mu.Lock()
	if len(aq.heap) >= m.cfg.MaxQueueSize.Int() {
		aq.mu.Unlock()
		aq.stats.recordRejection()
		atomic.AddUint64(&m.globalRejections, 1)
		return nil, &QueueFullError{AgentID: agentID, Current: len(aq.heap), Limit: m.cfg.MaxQueueSize.Int()}
	}

	reply := make(chan Outcome, 1)
	item := &queueItem{
		req: Request{
			AgentID:    agentID,
			Input:      input,
			Priority:   priority,
			EnqueuedAt: time.Now(),
			Deadline:   deadline,
		},
		reply: reply,
		seq:   aq.nextSeq,
	}
	aq.nextSeq++
	heap.Push(&aq.heap, item)
	aq.mu.Unlock()

	queueTimeout := m.cfg.QueueTimeout
	if !deadline.IsZero() {
		if d := time.Until(deadline); d > 0 {
			queueTimeout = d
		}
	}
	done := make(chan struct{})
	timer := time.AfterFunc(queueTimeout, func() {
		if aq.removeIfQueued(item) {
			aq.stats.recordTimeout()
			atomic.AddUint64(&m.globalTimeouts, 1)
			deliver(reply, Outcome{Kind: OutcomeTimeout, Err: ErrQueueTimeout})
			close(done)
		}
	})
	item.stopTimer = func() bool { return timer.Stop() }
	item.stopCancel = func() bool { close(done); return true }

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			if aq.removeIfQueued(item) {
				timer.Stop()
				aq.stats.recordCancelled()
			}
			// If it was already dequeued, the in-flight turn runs to
			// completion; process() will deliver into reply, which the
			// caller has already stopped listening to.
		case <-done:
		}
	}()

	m.wake()
	return reply, nil
}

func deliver(ch chan Outcome, o Outcome) {
	select {
	case ch <- o:
	default:
	}
}

// dispatchLoop admits queued requests into active processing whenever both
// the global semaphore and an agent's effective limit allow it. It wakes on
// every Submit and every completed turn; no polling is needed in between.
func (m *Manager) dispatchLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.wakeCh:
			m.dispatchAll()
		}
	}
}

func (m *Manager) dispatchAll() {
	m.agentsMu.RLock()
	queues := make([]*AgentQueue, 0, len(m.agents))
	for _, aq := range m.agents {
		queues = append(queues, aq)
	}
	m.agentsMu.RUnlock()

	for _, aq := range queues {
		for {
			select {
			case m.globalSem <- struct{}{}:
			default:
				return
			}
			item, ok := aq.tryPop()
			if !ok {
				<-m.globalSem
				break
			}
			if item.stopTimer != nil {
				item.stopTimer()
			}
			m.wg.Add(1)
			go m.process(aq, item)
		}
	}
}

// process runs exactly one turn via the injected Handler under a
// ProcessingTimeout deadline, then releases both the per-agent and global
// concurrency slots and delivers the outcome to the request's reply
// channel.
func (m *Manager) process(aq *AgentQueue, item *queueItem) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProcessingTimeout)
	defer cancel()

	start := time.Now()
	action, err := m.handler(ctx, item.req.AgentID, item.req.Input)
	duration := time.Since(start)

	atomic.AddInt32(&aq.activeCount, -1)
	<-m.globalSem
	m.wake()

	var outcome Outcome
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		outcome = Outcome{Kind: OutcomeTimeout, Err: ErrProcessingTimeout}
		aq.stats.recordTimeout()
		atomic.AddUint64(&m.globalTimeouts, 1)
	case err != nil:
		outcome = Outcome{Kind: OutcomeFailure, Err: err}
		aq.stats.recordProcessed(duration)
		atomic.AddUint64(&m.globalProcessed, 1)
	default:
		outcome = Outcome{Kind: OutcomeSuccess, Action: action}
		aq.stats.recordProcessed(duration)
		atomic.AddUint64(&m.globalProcessed, 1)
	}

	deliver(item.reply, outcome)
	if item.stopCancel != nil {
		item.stopCancel()
	}
}

// adaptiveLoop retunes each agent's effective concurrency limit once per
// TickInterval, per spec.md §4.5's AdaptiveMode rule: never more than one
// transition per tick, never below 1, never above the configured maximum.
func (m *Manager) adaptiveLoop() {
	defer m.wg.Done()
	interval := m.cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.retuneAll()
		}
	}
}

func (m *Manager) retuneAll() {
	m.agentsMu.RLock()
	queues := make([]*AgentQueue, 0, len(m.agents))
	for _, aq := range m.agents {
		queues = append(queues, aq)
	}
	m.agentsMu.RUnlock()

	threshold := m.cfg.LoadThreshold.Float()
	targetMs := float64(m.cfg.TargetProcessingTime.Milliseconds())

	for _, aq := range queues {
		snap := aq.snapshot()
		limit := int32(snap.EffectiveLimit)

		switch {
		case snap.LoadFactor > threshold && snap.SmoothedMs > targetMs:
			if limit > 1 {
				atomic.AddInt32(&aq.effectiveLimit, -1)
				m.logger.Debug("backpressure: reduced effective concurrency", map[string]any{
					"agent_id": aq.agentID, "new_limit": limit - 1,
				})
			}
		case snap.LoadFactor < threshold*0.5 && snap.SmoothedMs < targetMs:
			if limit < aq.configuredMax {
				atomic.AddInt32(&aq.effectiveLimit, 1)
				m.logger.Debug("backpressure: raised effective concurrency", map[string]any{
					"agent_id": aq.agentID, "new_limit": limit + 1,
				})
			}
		}
	}
}

// AgentSnapshot returns the current metrics for agentID, or false if no
// request has ever been submitted for it.
func (m *Manager) AgentSnapshot(agentID string) (AgentMetrics, bool) {
	m.agentsMu.RLock()
	aq, ok := m.agents[agentID]
	m.agentsMu.RUnlock()
	if !ok {
		return AgentMetrics{}, false
	}
	return aq.snapshot(), true
}

// GlobalSnapshot returns the runtime-wide metrics snapshot.
func (m *Manager) GlobalSnapshot() GlobalMetrics {
	m.agentsMu.RLock()
	agentCount := len(m.agents)
	m.agentsMu.RUnlock()

	// globalSem holds one token per currently-active request (Submit's
	// dispatch path sends to acquire, process() receives to release), so
	// its current length is exactly the active count.
	limit := cap(m.globalSem)
	active := len(m.globalSem)

	loadFactor := 0.0
	if limit > 0 {
		loadFactor = float64(active) / float64(limit)
	}

	return GlobalMetrics{
		ActiveCount:     active,
		GlobalLimit:     limit,
		TotalProcessed:  atomic.LoadUint64(&m.globalProcessed),
		TotalTimeouts:   atomic.LoadUint64(&m.globalTimeouts),
		TotalRejections: atomic.LoadUint64(&m.globalRejections),
		LoadFactor:      loadFactor,
		Mode:            m.cfg.Mode.String(),
		AgentCount:      agentCount,
	}
}

// Close stops the dispatch and adaptive-tick goroutines and waits for every
// in-flight turn to finish. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
}
