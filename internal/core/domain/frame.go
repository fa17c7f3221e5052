package domain

import "fmt"

// FrameSample holds the four pipeline timestamps for one analyzed frame, in
// Unix milliseconds. The timestamps are assumed monotonically non-decreasing
// (capture <= recv <= inference <= display) but violations are tolerated at
// ingestion, not rejected.
type FrameSample struct {
	FrameID     string `json:"frame_id"`
	CaptureTs   int64  `json:"capture_ts"`
	RecvTs      int64  `json:"recv_ts"`
	InferenceTs int64  `json:"inference_ts"`
	DisplayTs   int64  `json:"display_ts"`
}

// LatencyMs is the end-to-end latency of the sample.
func (s FrameSample) LatencyMs() float64 {
	return float64(s.DisplayTs - s.CaptureTs)
}

// FrameID derives the wire frame id from a capture timestamp.
func FrameID(captureTs int64) string {
	return fmt.Sprintf("frame_%d", captureTs)
}

// Detection is one analysis result box, coordinates normalized to [0,1]
// relative to frame dimensions.
type Detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
	Xmin  float64 `json:"xmin"`
	Ymin  float64 `json:"ymin"`
	Xmax  float64 `json:"xmax"`
	Ymax  float64 `json:"ymax"`
}

// AnalysisRequest is the request sent to the analysis collaborator.
type AnalysisRequest struct {
	Image     []byte `json:"image"`
	CaptureTs int64  `json:"capture_ts"`
	FrameID   string `json:"frame_id"`
}

// AnalysisResult is the collaborator's response for one frame.
type AnalysisResult struct {
	FrameID     string      `json:"frame_id"`
	CaptureTs   int64       `json:"capture_ts"`
	RecvTs      int64       `json:"recv_ts"`
	InferenceTs int64       `json:"inference_ts"`
	Detections  []Detection `json:"detections"`
}

// BandwidthEstimate carries uplink/downlink throughput in kbps. Synthetic
// marks values that were estimated rather than measured from transport byte
// counters; exports must keep the distinction visible.
type BandwidthEstimate struct {
	UplinkKbps   float64 `json:"uplink_kbps"`
	DownlinkKbps float64 `json:"downlink_kbps"`
	Synthetic    bool    `json:"synthetic"`
}
