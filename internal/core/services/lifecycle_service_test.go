package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeTransport scripts transport behavior for the state machine.
type fakeTransport struct {
	mu sync.Mutex

	applied        []string
	candidateErr   error
	restartCalls   int
	restartErr     error
	closed         bool
	acceptedOffer  bool
	acceptedAnswer bool
}

func (f *fakeTransport) CreateOffer(context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"type":"offer"}`), nil
}

func (f *fakeTransport) AcceptOffer(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptedOffer = true
	return json.RawMessage(`{"type":"answer"}`), nil
}

func (f *fakeTransport) AcceptAnswer(context.Context, json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acceptedAnswer = true
	return nil
}

func (f *fakeTransport) AddCandidate(c json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.candidateErr != nil {
		return f.candidateErr
	}
	f.applied = append(f.applied, string(c))
	return nil
}

func (f *fakeTransport) RestartConnectivity(context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restartCalls++
	if f.restartErr != nil {
		return nil, f.restartErr
	}
	return json.RawMessage(`{"type":"offer","restart":true}`), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) restarts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restartCalls
}

// fakeSender collects outbound signaling messages.
type fakeSender struct {
	mu   sync.Mutex
	sent []domain.SignalMessage
}

func (f *fakeSender) Send(msg domain.SignalMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) types() []domain.SignalType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SignalType, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Type
	}
	return out
}

func newMachine(t *testing.T, role domain.Role, tr *fakeTransport, snd *fakeSender, opts ...LifecycleOption) *LifecycleService {
	t.Helper()
	return NewLifecycleService(role, tr, snd, zaptest.NewLogger(t), opts...)
}

func TestLifecycle_ConsumerOffersOnNegotiateNow(t *testing.T) {
	tr := &fakeTransport{}
	snd := &fakeSender{}
	m := newMachine(t, domain.RoleConsumer, tr, snd)

	require.NoError(t, m.HandleSignal(context.Background(), domain.NegotiateNow()))
	require.Equal(t, []domain.SignalType{domain.SignalOffer}, snd.types())
	assert.Equal(t, domain.StatusConnecting, m.Status())
}

func TestLifecycle_ProducerIgnoresNegotiateNow(t *testing.T) {
	tr := &fakeTransport{}
	snd := &fakeSender{}
	m := newMachine(t, domain.RoleProducer, tr, snd)

	require.NoError(t, m.HandleSignal(context.Background(), domain.NegotiateNow()))
	assert.Empty(t, snd.types())
}

func TestLifecycle_ProducerAnswersOffer(t *testing.T) {
	tr := &fakeTransport{}
	snd := &fakeSender{}
	m := newMachine(t, domain.RoleProducer, tr, snd)

	err := m.HandleSignal(context.Background(), domain.SignalMessage{
		Type:  domain.SignalOffer,
		Offer: json.RawMessage(`{"type":"offer"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.SignalType{domain.SignalAnswer}, snd.types())
}

func TestLifecycle_CandidatesBufferedUntilRemoteDescription(t *testing.T) {
	tr := &fakeTransport{}
	snd := &fakeSender{}
	m := newMachine(t, domain.RoleProducer, tr, snd)
	ctx := context.Background()

	m.AddCandidate(ctx, json.RawMessage(`"c1"`))
	m.AddCandidate(ctx, json.RawMessage(`"c2"`))
	m.AddCandidate(ctx, json.RawMessage(`"c3"`))
	assert.Empty(t, tr.applied, "candidates must not touch the transport before remote description")

	require.NoError(t, m.HandleSignal(ctx, domain.SignalMessage{
		Type:  domain.SignalOffer,
		Offer: json.RawMessage(`{"type":"offer"}`),
	}))

	assert.Equal(t, []string{`"c1"`, `"c2"`, `"c3"`}, tr.applied, "buffered candidates replayed in arrival order")

	m.AddCandidate(ctx, json.RawMessage(`"c4"`))
	assert.Equal(t, []string{`"c1"`, `"c2"`, `"c3"`, `"c4"`}, tr.applied)
}

func TestLifecycle_RestartAfterFourthCandidateFailure(t *testing.T) {
	tr := &fakeTransport{candidateErr: errors.New("apply failed")}
	snd := &fakeSender{}
	m := newMachine(t, domain.RoleConsumer, tr, snd)
	ctx := context.Background()

	// remote description applied so candidates go straight to the transport
	require.NoError(t, m.HandleSignal(ctx, domain.SignalMessage{
		Type:   domain.SignalAnswer,
		Answer: json.RawMessage(`{"type":"answer"}`),
	}))

	for i := 0; i < 3; i++ {
		m.AddCandidate(ctx, json.RawMessage(`"bad"`))
		assert.Equal(t, 0, tr.restarts(), "no restart before the limit is exceeded")
	}

	m.AddCandidate(ctx, json.RawMessage(`"bad"`))
	assert.Equal(t, 1, tr.restarts(), "exactly one restart after the 4th failure")

	// the restart offer went out over signaling
	assert.Contains(t, snd.types(), domain.SignalOffer)
}

func TestLifecycle_ConcurrentBreachIssuesOneRestart(t *testing.T) {
	tr := &fakeTransport{candidateErr: errors.New("apply failed")}
	snd := &fakeSender{}
	m := newMachine(t, domain.RoleConsumer, tr, snd)
	ctx := context.Background()

	require.NoError(t, m.HandleSignal(ctx, domain.SignalMessage{
		Type:   domain.SignalAnswer,
		Answer: json.RawMessage(`{"type":"answer"}`),
	}))

	// the counter reset rides in the same critical section as the restart
	// claim, so racing failures see 1..4 and then start over from 1
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddCandidate(ctx, json.RawMessage(`"bad"`))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, tr.restarts(), "racing breaches must not issue a second restart")
	assert.False(t, tr.closed, "no teardown on the first breach")
}

func TestLifecycle_RestartFailureFallsBackToTeardown(t *testing.T) {
	tr := &fakeTransport{
		candidateErr: errors.New("apply failed"),
		restartErr:   errors.New("restart failed"),
	}
	m := newMachine(t, domain.RoleConsumer, tr, &fakeSender{})
	ctx := context.Background()

	require.NoError(t, m.HandleSignal(ctx, domain.SignalMessage{
		Type:   domain.SignalAnswer,
		Answer: json.RawMessage(`{"type":"answer"}`),
	}))
	m.OnTransportSignal(domain.TransportConnecting)

	for i := 0; i < 4; i++ {
		m.AddCandidate(ctx, json.RawMessage(`"bad"`))
	}

	assert.True(t, tr.closed, "failed restart tears the transport down")
	assert.Equal(t, domain.StatusDisconnected, m.Status(), "machine re-initializes from Idle")
}

func TestLifecycle_CounterResetsOnConnected(t *testing.T) {
	tr := &fakeTransport{candidateErr: errors.New("apply failed")}
	m := newMachine(t, domain.RoleConsumer, tr, &fakeSender{})
	ctx := context.Background()

	require.NoError(t, m.HandleSignal(ctx, domain.SignalMessage{
		Type:   domain.SignalAnswer,
		Answer: json.RawMessage(`{"type":"answer"}`),
	}))

	for i := 0; i < 3; i++ {
		m.AddCandidate(ctx, json.RawMessage(`"bad"`))
	}
	m.OnTransportSignal(domain.TransportConnected)

	// three more failures stay under the reset counter's limit
	for i := 0; i < 3; i++ {
		m.AddCandidate(ctx, json.RawMessage(`"bad"`))
	}
	assert.Equal(t, 0, tr.restarts())
}

func TestLifecycle_TransportSignalMapping(t *testing.T) {
	tests := []struct {
		signal domain.TransportSignal
		want   domain.ConnectivityStatus
	}{
		{domain.TransportConnecting, domain.StatusConnecting},
		{domain.TransportConnected, domain.StatusConnected},
		{domain.TransportFailed, domain.StatusConnected}, // Degraded stays coarse-connected
		{domain.TransportDisconnected, domain.StatusDisconnected},
	}

	for _, tt := range tests {
		m := newMachine(t, domain.RoleConsumer, &fakeTransport{}, &fakeSender{})
		m.OnTransportSignal(tt.signal)
		assert.Equal(t, tt.want, m.Status(), "signal %s", tt.signal)
	}
}

func TestLifecycle_ReconnectExhaustionIsTerminal(t *testing.T) {
	m := newMachine(t, domain.RoleConsumer, &fakeTransport{}, &fakeSender{},
		WithReconnectPolicy(retry.Policy{MaxAttempts: 5, BaseDelay: time.Microsecond}))

	attempts := 0
	err := m.RunReconnect(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("dial failed")
	})

	var exhausted *retry.ErrExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 5, attempts, "attempt cap is the total dial count, never a 6th dial")
	assert.Equal(t, domain.StatusDisconnected, m.Status())

	// terminal: negotiation refused until re-initialization
	require.ErrorIs(t, m.HandleSignal(context.Background(), domain.NegotiateNow()), domain.ErrTerminal)

	m.Reinitialize()
	assert.NoError(t, m.HandleSignal(context.Background(), domain.NegotiateNow()))
}
