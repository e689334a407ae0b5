package backpressure

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corebound/agentrt/validation"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	qs, err := validation.NewQueueSize(10)
	require.NoError(t, err)
	cl, err := validation.NewConcurrencyLimit(1)
	require.NoError(t, err)
	gc, err := validation.NewConcurrencyLimit(4)
	require.NoError(t, err)
	lt, err := validation.NewLoadThreshold(0.8)
	require.NoError(t, err)
	return Config{
		MaxQueueSize:          qs,
		MaxConcurrentPerAgent: cl,
		GlobalMaxConcurrent:   gc,
		LoadThreshold:         lt,
		QueueTimeout:          500 * time.Millisecond,
		ProcessingTimeout:     200 * time.Millisecond,
		TargetProcessingTime:  50 * time.Millisecond,
		TickInterval:          50 * time.Millisecond,
		Mode:                  StaticMode(),
	}
}

func input(t *testing.T, s string) validation.ValidatedInput {
	t.Helper()
	v, err := validation.NewValidatedInput(s)
	require.NoError(t, err)
	return v
}

func TestSubmitRunsHandlerAndDeliversSuccess(t *testing.T) {
	m := NewManager(testConfig(t), func(ctx context.Context, agentID string, in validation.ValidatedInput) (string, error) {
		return "echo:" + in.String(), nil
	}, nil)
	defer m.Close()

	reply, err := m.Submit(context.Background(), "agent-1", input(t, "hello"), PriorityNormal, time.Time{})
	require.NoError(t, err)

	select {
	case outcome := <-reply:
		assert.Equal(t, OutcomeSuccess, outcome.Kind)
		assert.Equal(t, "echo:hello", outcome.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
}

func TestQueueFullRejectsBeyondCapacity(t *testing.T) {
	block := make(chan struct{})
	cfg := testConfig(t)
	qs, _ := validation.NewQueueSize(1)
	cfg.MaxQueueSize = qs

	m := NewManager(cfg, func(ctx context.Context, agentID string, in validation.ValidatedInput) (string, error) {
		<-block
		return "done", nil
	}, nil)
	defer func() {
		close(block)
		m.Close()
	}()

	// First occupies the single concurrency slot; second fills the one
	// queue slot; third must be rejected.
	_, err := m.Submit(context.Background(), "agent-1", input(t, "a"), PriorityNormal, time.Time{})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond) // let the dispatcher pick it up

	_, err = m.Submit(context.Background(), "agent-1", input(t, "b"), PriorityNormal, time.Time{})
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), "agent-1", input(t, "c"), PriorityNormal, time.Time{})
	require.Error(t, err)
	var qfe *QueueFullError
	require.ErrorAs(t, err, &qfe)
	assert.Equal(t, "agent-1", qfe.AgentID)
}

func TestPriorityPreemptsNormalOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	started := make(chan struct{})
	release := make(chan struct{})

	cfg := testConfig(t)
	m := NewManager(cfg, func(ctx context.Context, agentID string, in validation.ValidatedInput) (string, error) {
		if in.String() == "blocker" {
			close(started)
			<-release
		}
		mu.Lock()
		order = append(order, in.String())
		mu.Unlock()
		return in.String(), nil
	}, nil)
	defer m.Close()

	// Occupy the single concurrency slot so subsequent submissions queue
	// instead of racing straight into the handler.
	blockerReply, err := m.Submit(context.Background(), "agent-1", input(t, "blocker"), PriorityNormal, time.Time{})
	require.NoError(t, err)
	<-started

	replies := make([]<-chan Outcome, 0, 3)
	for _, s := range []string{"normal-1", "normal-2"} {
		r, err := m.Submit(context.Background(), "agent-1", input(t, s), PriorityNormal, time.Time{})
		require.NoError(t, err)
		replies = append(replies, r)
	}
	critical, err := m.Submit(context.Background(), "agent-1", input(t, "critical"), PriorityCritical, time.Time{})
	require.NoError(t, err)
	replies = append([]<-chan Outcome{critical}, replies...)
	close(release)

	<-blockerReply
	for _, r := range replies {
		<-r
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 4)
	assert.Equal(t, "blocker", order[0])
	assert.Equal(t, "critical", order[1])
	assert.Equal(t, "normal-1", order[2])
	assert.Equal(t, "normal-2", order[3])
}

func TestQueueTimeoutDeliversTimeoutOutcome(t *testing.T) {
	block := make(chan struct{})
	cfg := testConfig(t)
	cfg.QueueTimeout = 30 * time.Millisecond

	m := NewManager(cfg, func(ctx context.Context, agentID string, in validation.ValidatedInput) (string, error) {
		<-block
		return "done", nil
	}, nil)
	defer func() {
		close(block)
		m.Close()
	}()

	_, err := m.Submit(context.Background(), "agent-1", input(t, "holder"), PriorityNormal, time.Time{})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	reply, err := m.Submit(context.Background(), "agent-1", input(t, "waiter"), PriorityNormal, time.Time{})
	require.NoError(t, err)

	select {
	case outcome := <-reply:
		assert.Equal(t, OutcomeTimeout, outcome.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
}

func TestCancellationBeforeDequeueRemovesFromQueue(t *testing.T) {
	block := make(chan struct{})
	cfg := testConfig(t)

	m := NewManager(cfg, func(ctx context.Context, agentID string, in validation.ValidatedInput) (string, error) {
		<-block
		return "done", nil
	}, nil)
	defer func() {
		close(block)
		m.Close()
	}()

	_, err := m.Submit(context.Background(), "agent-1", input(t, "holder"), PriorityNormal, time.Time{})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = m.Submit(ctx, "agent-1", input(t, "cancel-me"), PriorityNormal, time.Time{})
	require.NoError(t, err)

	snap, ok := m.AgentSnapshot("agent-1")
	require.True(t, ok)
	assert.Equal(t, 1, snap.QueueLength)

	cancel()
	require.Eventually(t, func() bool {
		snap, _ := m.AgentSnapshot("agent-1")
		return snap.TotalCancelled == 1 && snap.QueueLength == 0
	}, time.Second, 10*time.Millisecond)
}

func TestGlobalConcurrencyBoundNeverExceeded(t *testing.T) {
	cfg := testConfig(t)
	gc, _ := validation.NewConcurrencyLimit(2)
	cfg.GlobalMaxConcurrent = gc
	cl, _ := validation.NewConcurrencyLimit(10)
	cfg.MaxConcurrentPerAgent = cl
	qs, _ := validation.NewQueueSize(50)
	cfg.MaxQueueSize = qs

	var mu sync.Mutex
	active, maxObserved := 0, 0
	block := make(chan struct{})

	m := NewManager(cfg, func(ctx context.Context, agentID string, in validation.ValidatedInput) (string, error) {
		mu.Lock()
		active++
		if active > maxObserved {
			maxObserved = active
		}
		mu.Unlock()
		<-block
		mu.Lock()
		active--
		mu.Unlock()
		return "done", nil
	}, nil)
	defer func() {
		close(block)
		m.Close()
	}()

	for i := 0; i < 10; i++ {
		_, err := m.Submit(context.Background(), "agent-1", input(t, "x"), PriorityNormal, time.Time{})
		require.NoError(t, err)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxObserved, 2)
}
