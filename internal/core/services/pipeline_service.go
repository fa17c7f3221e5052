package services

import (
	"context"
	"fmt"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/ports"

	"go.uber.org/zap"
)

// PipelineService runs the capture→dispatch→analyze→record→render loop as a
// single logical sequence of cooperative steps; the gate guarantees no two
// dispatch cycles ever overlap.
type PipelineService struct {
	gate     *DispatchGate
	analyzer ports.Analyzer
	metrics  *MetricsService
	source   ports.FrameSource
	sink     ports.ResultSink

	sampler        ports.BandwidthSampler
	sampleInterval time.Duration

	logger *zap.SugaredLogger
}

func NewPipelineService(
	gate *DispatchGate,
	analyzer ports.Analyzer,
	metrics *MetricsService,
	source ports.FrameSource,
	sink ports.ResultSink,
	sampler ports.BandwidthSampler,
	sampleInterval time.Duration,
	logger *zap.Logger,
) *PipelineService {
	return &PipelineService{
		gate:           gate,
		analyzer:       analyzer,
		metrics:        metrics,
		source:         source,
		sink:           sink,
		sampler:        sampler,
		sampleInterval: sampleInterval,
		logger:         logger.Sugar(),
	}
}

// Run blocks until ctx is cancelled or capture fails. Capture failures are
// surfaced to the caller and not retried; analysis failures degrade to an
// empty detection set and never terminate the loop. A dispatch in flight at
// teardown is released, not left dangling.
func (p *PipelineService) Run(ctx context.Context) error {
	if p.sampler != nil {
		go p.sampleBandwidth(ctx)
	}
	defer p.gate.Release()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		image, captureTs, err := p.source.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return domain.NewCaptureError(
				fmt.Errorf("frame capture: %w", err),
				"check device availability and permissions",
			)
		}

		now := time.Now()
		if !p.gate.TryDispatch(now) {
			// gate closed: drop, never queue
			continue
		}

		result := p.analyzeFrame(ctx, image, captureTs)
		p.gate.Release()

		displayTs := time.Now().UnixMilli()
		p.metrics.RecordSample(domain.FrameSample{
			FrameID:     result.FrameID,
			CaptureTs:   result.CaptureTs,
			RecvTs:      result.RecvTs,
			InferenceTs: result.InferenceTs,
			DisplayTs:   displayTs,
		})

		if p.sink != nil {
			p.sink.Render(result)
		}
	}
}

// analyzeFrame performs one analysis round-trip. A collaborator failure or
// malformed response yields an empty detection set for the frame.
func (p *PipelineService) analyzeFrame(ctx context.Context, image []byte, captureTs int64) domain.AnalysisResult {
	req := domain.AnalysisRequest{
		Image:     image,
		CaptureTs: captureTs,
		FrameID:   domain.FrameID(captureTs),
	}

	result, err := p.analyzer.Analyze(ctx, req)
	if err != nil {
		p.logger.Warnw("analysis failed, substituting empty detections",
			"frame_id", req.FrameID, "error", err)
		nowMs := time.Now().UnixMilli()
		return domain.AnalysisResult{
			FrameID:     req.FrameID,
			CaptureTs:   captureTs,
			RecvTs:      nowMs,
			InferenceTs: nowMs,
			Detections:  []domain.Detection{},
		}
	}
	return result
}

func (p *PipelineService) sampleBandwidth(ctx context.Context) {
	ticker := time.NewTicker(p.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.metrics.SetBandwidth(p.sampler.Sample(ctx))
		}
	}
}
