package webrtc

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"peerlens/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// BandwidthSampler derives throughput estimates from the peer connection.
// Downlink is measured from remote-track RTP payload bytes; uplink from the
// connection's outbound stream stats. When the transport exposes neither, a
// synthetic estimate is produced and labeled as such, so consumers can
// always tell estimated values from measured ones.
type BandwidthSampler struct {
	pc *pion.PeerConnection

	mu            sync.Mutex
	bytesDown     uint64
	lastBytesDown uint64
	lastBytesUp   uint64
	lastSampleAt  time.Time
	sawTraffic    bool

	rnd    *rand.Rand
	logger *zap.SugaredLogger
}

func NewBandwidthSampler(transport *PeerTransport, logger *zap.Logger) *BandwidthSampler {
	s := &BandwidthSampler{
		pc:           transport.PeerConnection(),
		lastSampleAt: time.Now(),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:       logger.Sugar(),
	}
	transport.OnTrack(s.observeTrack)
	return s
}

// observeTrack counts payload bytes on the remote track and keeps the RTCP
// feedback path drained so the transport's reports keep flowing.
func (s *BandwidthSampler) observeTrack(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
	s.logger.Infow("observing remote track", "kind", track.Kind().String(), "ssrc", track.SSRC())

	go s.drainRTCP(receiver)

	buf := make([]byte, 1500)
	var pkt rtp.Packet
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debugw("track read ended", "error", err)
			}
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		s.mu.Lock()
		s.bytesDown += uint64(len(pkt.Payload))
		s.sawTraffic = true
		s.mu.Unlock()
	}
}

func (s *BandwidthSampler) drainRTCP(receiver *pion.RTPReceiver) {
	buf := make([]byte, 1500)
	for {
		n, _, err := receiver.Read(buf)
		if err != nil {
			return
		}
		if _, err := rtcp.Unmarshal(buf[:n]); err != nil {
			s.logger.Debugw("rtcp unmarshal", "error", err)
		}
	}
}

// Sample computes the estimate since the previous call. Implements
// ports.BandwidthSampler.
func (s *BandwidthSampler) Sample(ctx context.Context) domain.BandwidthEstimate {
	s.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(s.lastSampleAt).Seconds()
	down := s.bytesDown
	downDelta := down - s.lastBytesDown
	s.lastBytesDown = down
	s.lastSampleAt = now
	sawTraffic := s.sawTraffic
	s.mu.Unlock()

	var up uint64
	if s.pc != nil {
		for _, stat := range s.pc.GetStats() {
			if out, ok := stat.(pion.OutboundRTPStreamStats); ok {
				up += out.BytesSent
			}
		}
	}

	s.mu.Lock()
	upDelta := up - s.lastBytesUp
	if up < s.lastBytesUp {
		upDelta = 0
	}
	s.lastBytesUp = up
	if upDelta > 0 {
		s.sawTraffic = true
		sawTraffic = true
	}
	s.mu.Unlock()

	if !sawTraffic {
		return s.synthetic()
	}
	if elapsed <= 0 {
		elapsed = 1
	}
	return domain.BandwidthEstimate{
		UplinkKbps:   float64(upDelta) * 8 / 1000 / elapsed,
		DownlinkKbps: float64(downDelta) * 8 / 1000 / elapsed,
		Synthetic:    false,
	}
}

// synthetic produces a placeholder estimate for transports that report no
// byte counters. Values are jittered and must never be mistaken for
// measurements; the Synthetic flag travels with them into every export.
func (s *BandwidthSampler) synthetic() domain.BandwidthEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.BandwidthEstimate{
		UplinkKbps:   600 + s.rnd.Float64()*200,
		DownlinkKbps: 1800 + s.rnd.Float64()*600,
		Synthetic:    true,
	}
}
