package services

import (
	"context"
	"testing"
	"time"

	"peerlens/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRelayForTest(t *testing.T, settle time.Duration) (*RelayService, *RegistryService) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	registry := NewRegistryService(logger)
	return NewRelayService(registry, nil, nil, settle, logger), registry
}

func waitForMessage(t *testing.T, h *fakeHandle, ty domain.SignalType, within time.Duration) []domain.SignalMessage {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		for _, m := range h.messages() {
			if m.Type == ty {
				return h.messages()
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s message within %v", ty, within)
	return nil
}

func TestRelay_NegotiateNowGoesToConsumer_ProducerFirst(t *testing.T) {
	relay, _ := newRelayForTest(t, 10*time.Millisecond)
	ctx := context.Background()

	producer := &fakeHandle{}
	consumer := &fakeHandle{}

	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, producer))
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, consumer))

	waitForMessage(t, consumer, domain.SignalNegotiateNow, 150*time.Millisecond)
	assert.Empty(t, producer.messages(), "producer never receives negotiate-now")
}

func TestRelay_NegotiateNowGoesToConsumer_ConsumerFirst(t *testing.T) {
	relay, _ := newRelayForTest(t, 10*time.Millisecond)
	ctx := context.Background()

	producer := &fakeHandle{}
	consumer := &fakeHandle{}

	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, consumer))
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, producer))

	waitForMessage(t, consumer, domain.SignalNegotiateNow, 150*time.Millisecond)
	assert.Empty(t, producer.messages())
}

func TestRelay_ExactlyOneNegotiateNow(t *testing.T) {
	relay, _ := newRelayForTest(t, 20*time.Millisecond)
	ctx := context.Background()

	consumer := &fakeHandle{}
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, &fakeHandle{}))
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, consumer))

	time.Sleep(200 * time.Millisecond)

	count := 0
	for _, m := range consumer.messages() {
		if m.Type == domain.SignalNegotiateNow {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one negotiate-now per pairing")
}

func TestRelay_StaggeredJoinSettlesWithinBound(t *testing.T) {
	relay, _ := newRelayForTest(t, 50*time.Millisecond)
	ctx := context.Background()

	consumer := &fakeHandle{}
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, &fakeHandle{}))

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, consumer))

	waitForMessage(t, consumer, domain.SignalNegotiateNow, 150*time.Millisecond)
	assert.LessOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestRelay_InvalidRoleRejected(t *testing.T) {
	relay, _ := newRelayForTest(t, time.Millisecond)

	err := relay.HandleJoin(context.Background(), "s1", domain.Role("spectator"), &fakeHandle{})
	require.Error(t, err)
	assert.Equal(t, domain.ClassNegotiation, domain.ClassOf(err))
}

func TestRelay_MessageForwardedToCounterpart(t *testing.T) {
	relay, _ := newRelayForTest(t, time.Millisecond)
	ctx := context.Background()

	producer := &fakeHandle{}
	consumer := &fakeHandle{}
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, producer))
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, consumer))

	relay.HandleMessage(ctx, "s1", domain.RoleConsumer, domain.SignalMessage{Type: domain.SignalOffer})
	got := waitForMessage(t, producer, domain.SignalOffer, 100*time.Millisecond)
	assert.Equal(t, domain.SignalOffer, got[0].Type)
}

func TestRelay_NoCounterpartDropsSilently(t *testing.T) {
	relay, _ := newRelayForTest(t, time.Millisecond)
	ctx := context.Background()

	producer := &fakeHandle{}
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, producer))

	// must not panic or surface anything
	relay.HandleMessage(ctx, "s1", domain.RoleProducer, domain.SignalMessage{Type: domain.SignalOffer})
	relay.HandleMessage(ctx, "missing", domain.RoleProducer, domain.SignalMessage{Type: domain.SignalICECandidate})
}

func TestRelay_DisconnectThenRejoinRenegotiates(t *testing.T) {
	relay, _ := newRelayForTest(t, 10*time.Millisecond)
	ctx := context.Background()

	producer := &fakeHandle{}
	consumer := &fakeHandle{}
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleProducer, producer))
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, consumer))
	waitForMessage(t, consumer, domain.SignalNegotiateNow, 150*time.Millisecond)

	relay.HandleDisconnect(ctx, "s1", domain.RoleConsumer, consumer)

	rejoined := &fakeHandle{}
	require.NoError(t, relay.HandleJoin(ctx, "s1", domain.RoleConsumer, rejoined))
	waitForMessage(t, rejoined, domain.SignalNegotiateNow, 150*time.Millisecond)
}
