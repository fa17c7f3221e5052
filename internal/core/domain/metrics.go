package domain

// MetricsSnapshot is the aggregated view over the retained sample window.
type MetricsSnapshot struct {
	MedianLatencyMs float64           `json:"median_latency_ms"`
	P95LatencyMs    float64           `json:"p95_latency_ms"`
	FPS             float64           `json:"fps"`
	Bandwidth       BandwidthEstimate `json:"bandwidth"`
	ProcessedFrames uint64            `json:"processed_frames"`
}

// MetricsExport is a snapshot plus the most recent raw samples, for
// diagnostics.
type MetricsExport struct {
	Snapshot      MetricsSnapshot `json:"snapshot"`
	RecentSamples []FrameSample   `json:"recent_samples"`
}
