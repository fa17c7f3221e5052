package services

import (
	"testing"
	"time"

	"peerlens/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWithLatency(id string, latencyMs int64) domain.FrameSample {
	return domain.FrameSample{
		FrameID:   id,
		CaptureTs: 1000,
		DisplayTs: 1000 + latencyMs,
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	latencies := []float64{10, 20, 30, 40}

	assert.InDelta(t, 25.0, percentile(50, latencies), 1e-9)
	assert.InDelta(t, 38.5, percentile(95, latencies), 1e-9)
}

func TestPercentile_Empty(t *testing.T) {
	assert.Equal(t, 0.0, percentile(50, nil))
	assert.Equal(t, 0.0, percentile(95, []float64{}))
}

func TestPercentile_SingleSample(t *testing.T) {
	assert.Equal(t, 42.0, percentile(50, []float64{42}))
	assert.Equal(t, 42.0, percentile(95, []float64{42}))
}

func TestMetrics_SnapshotPercentiles(t *testing.T) {
	m := NewMetricsService(100)
	for i, l := range []int64{10, 20, 30, 40} {
		m.RecordSample(sampleWithLatency(domain.FrameID(int64(i)), l))
	}

	snap := m.Snapshot()
	assert.InDelta(t, 25.0, snap.MedianLatencyMs, 1e-9)
	assert.InDelta(t, 38.5, snap.P95LatencyMs, 1e-9)
}

func TestMetrics_RingEvictsOldestButCounterIsMonotonic(t *testing.T) {
	m := NewMetricsService(100)

	for i := 0; i < 101; i++ {
		m.RecordSample(sampleWithLatency(domain.FrameID(int64(i)), int64(i)))
	}

	snap := m.Snapshot()
	assert.Equal(t, uint64(101), snap.ProcessedFrames, "counter measures total processed, not occupancy")

	export := m.Export()
	require.Len(t, export.RecentSamples, 10)
	// sample 0 was evicted; the newest retained sample is number 100
	assert.Equal(t, domain.FrameID(100), export.RecentSamples[9].FrameID)
	assert.Equal(t, domain.FrameID(91), export.RecentSamples[0].FrameID)

	retained := m.retained()
	require.Len(t, retained, 100)
	assert.Equal(t, domain.FrameID(1), retained[0].FrameID, "oldest sample evicted FIFO")
}

func TestMetrics_FPS(t *testing.T) {
	m := NewMetricsService(100)
	base := time.Now()
	m.now = func() time.Time { return base }
	m.Reset()

	for i := 0; i < 20; i++ {
		m.RecordSample(sampleWithLatency(domain.FrameID(int64(i)), 5))
	}

	m.now = func() time.Time { return base.Add(4 * time.Second) }
	snap := m.Snapshot()
	assert.InDelta(t, 5.0, snap.FPS, 1e-9)
}

func TestMetrics_Reset(t *testing.T) {
	m := NewMetricsService(100)
	m.RecordSample(sampleWithLatency("frame_1", 10))
	m.SetBandwidth(domain.BandwidthEstimate{DownlinkKbps: 1000})

	m.Reset()

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.ProcessedFrames)
	assert.Equal(t, 0.0, snap.MedianLatencyMs)
	assert.Empty(t, m.Export().RecentSamples)
}

func TestMetrics_SyntheticBandwidthStaysLabeled(t *testing.T) {
	m := NewMetricsService(100)
	m.SetBandwidth(domain.BandwidthEstimate{UplinkKbps: 800, DownlinkKbps: 2400, Synthetic: true})

	assert.True(t, m.Snapshot().Bandwidth.Synthetic)
	assert.True(t, m.Export().Snapshot.Bandwidth.Synthetic)
}

func TestMetrics_ToleratesOutOfOrderTimestamps(t *testing.T) {
	m := NewMetricsService(100)

	// displayTs < captureTs: tolerated at ingestion, not rejected
	m.RecordSample(domain.FrameSample{FrameID: "frame_x", CaptureTs: 2000, DisplayTs: 1500})

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.ProcessedFrames)
	assert.Equal(t, -500.0, snap.MedianLatencyMs)
}

// retained exposes the window in insertion order for tests.
func (m *MetricsService) retained() []domain.FrameSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retainedLocked()
}
