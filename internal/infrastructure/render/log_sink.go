package render

import (
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"

	"go.uber.org/zap"
)

// LogSink renders analysis results as structured log lines. It stands in for
// an overlay renderer; the fields match what an overlay would draw.
type LogSink struct {
	logger *zap.SugaredLogger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Sugar()}
}

func (s *LogSink) Render(result domain.AnalysisResult) {
	displayTs := time.Now().UnixMilli()

	top := ""
	if len(result.Detections) > 0 {
		best := result.Detections[0]
		for _, d := range result.Detections[1:] {
			if d.Score > best.Score {
				best = d
			}
		}
		top = best.Label
	}

	s.logger.Infow("frame rendered",
		"frame_id", result.FrameID,
		"detections", len(result.Detections),
		"top_label", top,
		"e2e_latency_ms", displayTs-result.CaptureTs,
	)
}

var _ ports.ResultSink = (*LogSink)(nil)
