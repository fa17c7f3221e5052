package services

import (
	"sync"
	"time"
)

// DefaultThrottleInterval targets roughly eight dispatches per second,
// independent of the capture rate.
const DefaultThrottleInterval = 125 * time.Millisecond

// DispatchGate throttles how often a captured frame is handed to analysis
// and guarantees at most one outstanding analysis request at a time. Frames
// arriving while the gate is closed are dropped, never queued: queue depth
// is always 0 or 1, which bounds memory and prevents latency amplification
// under slow analysis.
type DispatchGate struct {
	mu            sync.Mutex
	inFlight      bool
	lastDispatch  time.Time
	throttleEvery time.Duration
}

func NewDispatchGate(throttleInterval time.Duration) *DispatchGate {
	if throttleInterval <= 0 {
		throttleInterval = DefaultThrottleInterval
	}
	return &DispatchGate{throttleEvery: throttleInterval}
}

// TryDispatch admits the frame only when no request is outstanding and the
// throttle interval has elapsed. On admit the caller owns the in-flight
// token and must call Release once the analysis round-trip completes,
// whether it succeeded or failed.
func (g *DispatchGate) TryDispatch(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return false
	}
	if !g.lastDispatch.IsZero() && now.Sub(g.lastDispatch) < g.throttleEvery {
		return false
	}

	g.inFlight = true
	g.lastDispatch = now
	return true
}

// Release clears the in-flight token. Releasing an open gate is a no-op.
func (g *DispatchGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight = false
}
