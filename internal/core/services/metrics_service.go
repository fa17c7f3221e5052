package services

import (
	"math"
	"sort"
	"sync"
	"time"

	"peerlens/internal/core/domain"
)

const (
	// DefaultWindowCapacity bounds the retained sample window.
	DefaultWindowCapacity = 100

	// exportSampleCount is how many raw samples Export returns.
	exportSampleCount = 10
)

// MetricsService ingests timestamped frame-processing samples and computes
// rolling latency percentiles and frame rate. All methods are total: they
// never return errors and never panic on any input.
type MetricsService struct {
	mu sync.Mutex

	window   []domain.FrameSample // ring buffer
	head     int                  // next write position
	size     int
	capacity int

	// processed counts every recorded sample; it is never decremented, even
	// as the ring evicts entries.
	processed uint64

	bandwidth domain.BandwidthEstimate

	start time.Time
	now   func() time.Time
}

func NewMetricsService(capacity int) *MetricsService {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	m := &MetricsService{
		window:   make([]domain.FrameSample, capacity),
		capacity: capacity,
		now:      time.Now,
	}
	m.start = m.now()
	return m
}

// RecordSample appends the sample to the window, evicting the oldest entry
// once capacity is exceeded.
func (m *MetricsService) RecordSample(s domain.FrameSample) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window[m.head] = s
	m.head = (m.head + 1) % m.capacity
	if m.size < m.capacity {
		m.size++
	}
	m.processed++
}

// SetBandwidth stores the externally supplied throughput estimate. Synthetic
// estimates stay labeled as such through Snapshot and Export.
func (m *MetricsService) SetBandwidth(est domain.BandwidthEstimate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bandwidth = est
}

// Snapshot computes the aggregate view over the retained window.
func (m *MetricsService) Snapshot() domain.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	latencies := make([]float64, 0, m.size)
	for _, s := range m.retainedLocked() {
		latencies = append(latencies, s.LatencyMs())
	}
	sort.Float64s(latencies)

	elapsed := m.now().Sub(m.start).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(m.processed) / elapsed
	}

	return domain.MetricsSnapshot{
		MedianLatencyMs: percentile(50, latencies),
		P95LatencyMs:    percentile(95, latencies),
		FPS:             fps,
		Bandwidth:       m.bandwidth,
		ProcessedFrames: m.processed,
	}
}

// Reset clears the window, the frame counter and the start time.
func (m *MetricsService) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.head = 0
	m.size = 0
	m.processed = 0
	m.start = m.now()
}

// Export returns a snapshot plus the most recent raw samples.
func (m *MetricsService) Export() domain.MetricsExport {
	snap := m.Snapshot()

	m.mu.Lock()
	retained := m.retainedLocked()
	n := len(retained)
	if n > exportSampleCount {
		retained = retained[n-exportSampleCount:]
	}
	recent := make([]domain.FrameSample, len(retained))
	copy(recent, retained)
	m.mu.Unlock()

	return domain.MetricsExport{Snapshot: snap, RecentSamples: recent}
}

// retainedLocked returns the window contents in insertion order. Caller
// holds m.mu.
func (m *MetricsService) retainedLocked() []domain.FrameSample {
	out := make([]domain.FrameSample, 0, m.size)
	start := m.head - m.size
	if start < 0 {
		start += m.capacity
	}
	for i := 0; i < m.size; i++ {
		out = append(out, m.window[(start+i)%m.capacity])
	}
	return out
}

// percentile linearly interpolates the p-th percentile over sorted values:
// idx = p/100 * (n-1), interpolating between floor(idx) and ceil(idx)
// weighted by the fractional part. An empty input yields 0.
func percentile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
