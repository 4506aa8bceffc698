// Package metrics collects process-wide counters for API and file
// operations. A single Collector and FileTracker are constructed at
// startup and shared by reference; all mutation is atomic, so callers
// never need external locking.
package metrics

import (
	"time"

	"go.uber.org/atomic"
)

// Snapshot is a point-in-time copy of the API counters.
type Snapshot struct {
	SuccessfulCalls       int64         `json:"successful_calls"`
	FailedCalls           int64         `json:"failed_calls"`
	Retries               int64         `json:"retries"`
	RateLimitHits         int64         `json:"rate_limit_hits"`
	TotalResponseTime     time.Duration `json:"total_response_time_ns"`
	AverageResponseTime   time.Duration `json:"average_response_time_ns"`
	TotalBytesTransferred int64         `json:"total_bytes_transferred"`
}

// TotalCalls returns successes plus failures.
func (s Snapshot) TotalCalls() int64 {
	return s.SuccessfulCalls + s.FailedCalls
}

// SuccessRate returns the success percentage over all calls.
func (s Snapshot) SuccessRate() float64 {
	total := s.TotalCalls()
	if total == 0 {
		return 0
	}
	return float64(s.SuccessfulCalls) / float64(total) * 100
}

// Collector accumulates API call counters.
type Collector struct {
	successfulCalls atomic.Int64
	failedCalls     atomic.Int64
	retries         atomic.Int64
	rateLimitHits   atomic.Int64
	responseNanos   atomic.Int64
	bytes           atomic.Int64
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// RecordSuccess counts a successful call with its duration and payload size.
func (c *Collector) RecordSuccess(d time.Duration, bytesTransferred int64) {
	c.successfulCalls.Inc()
	c.responseNanos.Add(int64(d))
	c.bytes.Add(bytesTransferred)
}

// RecordFailure counts a failed call.
func (c *Collector) RecordFailure(d time.Duration) {
	c.failedCalls.Inc()
	c.responseNanos.Add(int64(d))
}

// RecordRateLimit counts a rate-limited call. It increments both the
// failure counter and the dedicated rate-limit counter.
func (c *Collector) RecordRateLimit(d time.Duration) {
	c.rateLimitHits.Inc()
	c.RecordFailure(d)
}

// RecordRetry counts one retry attempt.
func (c *Collector) RecordRetry() {
	c.retries.Inc()
}

// Snapshot returns a consistent-enough copy of the counters for display.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		SuccessfulCalls:       c.successfulCalls.Load(),
		FailedCalls:           c.failedCalls.Load(),
		Retries:               c.retries.Load(),
		RateLimitHits:         c.rateLimitHits.Load(),
		TotalResponseTime:     time.Duration(c.responseNanos.Load()),
		TotalBytesTransferred: c.bytes.Load(),
	}
	if total := s.TotalCalls(); total > 0 {
		s.AverageResponseTime = s.TotalResponseTime / time.Duration(total)
	}
	return s
}
