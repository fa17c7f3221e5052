package ports

import (
	"context"

	"peerlens/internal/core/domain"
)

// Analyzer is the per-frame analysis collaborator. Failures are soft: the
// pipeline substitutes an empty detection set and keeps the session alive.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (domain.AnalysisResult, error)
}

// FrameSource supplies captured frames. Capture itself is an external
// collaborator; errors from it are surfaced, not retried.
type FrameSource interface {
	NextFrame(ctx context.Context) (image []byte, captureTs int64, err error)
}

// ResultSink receives analysis results for rendering. Rendering is an
// external collaborator.
type ResultSink interface {
	Render(result domain.AnalysisResult)
}

// BandwidthSampler periodically produces throughput estimates for the
// metrics aggregator. Implementations must mark synthetic estimates.
type BandwidthSampler interface {
	Sample(ctx context.Context) domain.BandwidthEstimate
}

// PresenceRepository mirrors which roles have joined each session, for the
// diagnostics surface. It never holds connection handles.
type PresenceRepository interface {
	SetJoined(ctx context.Context, id domain.SessionID, role domain.Role) error
	SetLeft(ctx context.Context, id domain.SessionID, role domain.Role) error
	List(ctx context.Context) ([]domain.SessionPresence, error)
}
