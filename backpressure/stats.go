package backpressure

import (
	"sync"
	"time"
)

// smoothingFactor is the EWMA weight given to each new processing-time
// sample; the same shape as the teacher's sliding-window circuit breaker
// buckets, simplified to a single running average per spec.md §4.5.
const smoothingFactor = 0.2

// queueStats accumulates the per-agent counters and smoothed processing
// time spec.md §4.5's Metrics subsection requires.
type queueStats struct {
	mu              sync.Mutex
	totalProcessed  uint64
	totalTimeouts   uint64
	totalRejections uint64
	totalCancelled  uint64
	smoothedMs      float64
	hasSample       bool
}

func (s *queueStats) recordProcessed(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalProcessed++
	ms := float64(d.Milliseconds())
	if !s.hasSample {
		s.smoothedMs = ms
		s.hasSample = true
		return
	}
	s.smoothedMs = smoothingFactor*ms + (1-smoothingFactor)*s.smoothedMs
}

func (s *queueStats) recordTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalTimeouts++
}

func (s *queueStats) recordRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRejections++
}

func (s *queueStats) recordCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCancelled++
}

type statsSnapshot struct {
	totalProcessed  uint64
	totalTimeouts   uint64
	totalRejections uint64
	totalCancelled  uint64
	smoothedMs      float64
}

func (s *queueStats) snapshot() statsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsSnapshot{
		totalProcessed:  s.totalProcessed,
		totalTimeouts:   s.totalTimeouts,
		totalRejections: s.totalRejections,
		totalCancelled:  s.totalCancelled,
		smoothedMs:      s.smoothedMs,
	}
}
