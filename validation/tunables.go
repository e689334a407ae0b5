package validation

import (
	"fmt"
	"time"
)

// RequestTimeout is a validated HTTP request timeout in [1s, 300s].
type RequestTimeout struct{ d time.Duration }

// NewRequestTimeout enforces the 1-300 second range.
func NewRequestTimeout(d time.Duration) (RequestTimeout, error) {
	if d < time.Second || d > 300*time.Second {
		return RequestTimeout{}, newValidationError("request_timeout", "must be between 1s and 300s")
	}
	return RequestTimeout{d: d}, nil
}

func (t RequestTimeout) Duration() time.Duration { return t.d }

// MaxBodySize is a validated request body size cap in [1, 100 MiB] bytes.
type MaxBodySize struct{ bytes int64 }

const maxBodySizeUpperBound = 100 << 20

// NewMaxBodySize enforces the 1 byte - 100 MiB range.
func NewMaxBodySize(bytes int64) (MaxBodySize, error) {
	if bytes < 1 || bytes > maxBodySizeUpperBound {
		return MaxBodySize{}, newValidationError("max_body_size", fmt.Sprintf("must be between 1 and %d bytes", maxBodySizeUpperBound))
	}
	return MaxBodySize{bytes: bytes}, nil
}

func (m MaxBodySize) Bytes() int64 { return m.bytes }

// QueueSize is a validated per-agent queue capacity, always >= 1.
type QueueSize struct{ n int }

func NewQueueSize(n int) (QueueSize, error) {
	if n < 1 {
		return QueueSize{}, newValidationError("queue_size", "must be at least 1")
	}
	return QueueSize{n: n}, nil
}

func (q QueueSize) Int() int { return q.n }

// ConcurrencyLimit is a validated concurrency bound, always >= 1.
type ConcurrencyLimit struct{ n int }

func NewConcurrencyLimit(n int) (ConcurrencyLimit, error) {
	if n < 1 {
		return ConcurrencyLimit{}, newValidationError("concurrency_limit", "must be at least 1")
	}
	return ConcurrencyLimit{n: n}, nil
}

func (c ConcurrencyLimit) Int() int { return c.n }

// LoadThreshold is a validated load factor threshold in [0.0, 1.0].
type LoadThreshold struct{ v float64 }

func NewLoadThreshold(v float64) (LoadThreshold, error) {
	if v < 0.0 || v > 1.0 {
		return LoadThreshold{}, newValidationError("load_threshold", "must be between 0.0 and 1.0")
	}
	return LoadThreshold{v: v}, nil
}

func (l LoadThreshold) Float() float64 { return l.v }
