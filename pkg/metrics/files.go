package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// relativeAccuracy bounds the error of quantile estimates (1%).
const relativeAccuracy = 0.01

// FileSummary aggregates completed file operations.
type FileSummary struct {
	Count      int64   `json:"count"`
	AvgMs      float64 `json:"avg_ms"`
	P50Ms      float64 `json:"p50_ms"`
	P95Ms      float64 `json:"p95_ms"`
	P99Ms      float64 `json:"p99_ms"`
	TotalBytes int64   `json:"total_bytes"`
	// ThroughputBytesPerSec is total size over total wall time.
	ThroughputBytesPerSec float64 `json:"throughput_bytes_per_sec"`
}

func (s FileSummary) String() string {
	if s.Count == 0 {
		return "file operations: no data"
	}
	return fmt.Sprintf("file operations (n=%d): avg=%.2fms p50=%.2fms p95=%.2fms p99=%.2fms, %d bytes, %.0f B/s",
		s.Count, s.AvgMs, s.P50Ms, s.P95Ms, s.P99Ms, s.TotalBytes, s.ThroughputBytesPerSec)
}

// FileTracker records per-file operation timings and sizes. Quantiles come
// from a DDSketch, so memory stays constant regardless of operation count.
type FileTracker struct {
	mu         sync.Mutex
	durations  *ddsketch.DDSketch
	count      int64
	totalBytes int64
	totalTime  time.Duration
}

// NewFileTracker returns an empty tracker.
func NewFileTracker() *FileTracker {
	sketch, err := ddsketch.LogUnboundedDenseDDSketch(relativeAccuracy)
	if err != nil {
		sketch, _ = ddsketch.NewDefaultDDSketch(relativeAccuracy)
	}
	return &FileTracker{durations: sketch}
}

// Record adds one completed file operation.
func (t *FileTracker) Record(size int64, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	t.totalBytes += size
	t.totalTime += d
	_ = t.durations.Add(float64(d.Microseconds()) / 1000.0)
}

// Summary computes aggregate statistics over everything recorded so far.
func (t *FileTracker) Summary() FileSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := FileSummary{Count: t.count, TotalBytes: t.totalBytes}
	if t.count == 0 {
		return s
	}

	s.AvgMs = float64(t.totalTime.Microseconds()) / 1000.0 / float64(t.count)
	if p50, err := t.durations.GetValueAtQuantile(0.50); err == nil {
		s.P50Ms = p50
	}
	if p95, err := t.durations.GetValueAtQuantile(0.95); err == nil {
		s.P95Ms = p95
	}
	if p99, err := t.durations.GetValueAtQuantile(0.99); err == nil {
		s.P99Ms = p99
	}
	if secs := t.totalTime.Seconds(); secs > 0 {
		s.ThroughputBytesPerSec = float64(t.totalBytes) / secs
	}
	return s
}
