package capture

import (
	"context"
	"encoding/binary"
	"math/rand"
	"time"

	"peerlens/internal/core/ports"
)

// SyntheticSource emits stub frames at a fixed rate. It stands in for a real
// camera: the payload is a deterministic header plus noise bytes sized like a
// downscaled JPEG, which is enough to exercise the dispatch and analysis
// paths end to end.
type SyntheticSource struct {
	interval  time.Duration
	frameSize int
	rng       *rand.Rand
	ticker    *time.Ticker
}

func NewSyntheticSource(interval time.Duration, frameSize int) *SyntheticSource {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	if frameSize <= 0 {
		frameSize = 16 * 1024
	}
	return &SyntheticSource{
		interval:  interval,
		frameSize: frameSize,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SyntheticSource) NextFrame(ctx context.Context) ([]byte, int64, error) {
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.interval)
	}

	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-s.ticker.C:
	}

	captureTs := time.Now().UnixMilli()

	frame := make([]byte, s.frameSize)
	binary.BigEndian.PutUint64(frame[:8], uint64(captureTs))
	s.rng.Read(frame[8:])

	return frame, captureTs, nil
}

// Close stops the internal pacing ticker.
func (s *SyntheticSource) Close() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

var _ ports.FrameSource = (*SyntheticSource)(nil)
