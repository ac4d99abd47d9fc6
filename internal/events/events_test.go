package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/grccore/internal/reliability/retry"
)

func quotaEvent(tenant string) domain.QuotaExceeded {
	return domain.QuotaExceeded{
		EventHeader: domain.NewEventHeader(domain.EventQuotaExceeded, tenant, "", time.Unix(1700000000, 0).UTC()),
		QuotaType:   domain.QuotaAssessments,
		Usage:       10,
		Limit:       10,
	}
}

func TestBus_IsolatesFailingSubscribers(t *testing.T) {
	bus := NewBus(nil)
	var got []string
	bus.Subscribe("panics", func(context.Context, domain.Event) error { panic("boom") })
	bus.Subscribe("fails", func(context.Context, domain.Event) error { return errors.New("nope") })
	bus.Subscribe("records", func(_ context.Context, e domain.Event) error {
		got = append(got, e.EventName())
		return nil
	})

	bus.Publish(context.Background(), quotaEvent("t1"))
	assert.Equal(t, []string{domain.EventQuotaExceeded}, got)
}

func TestEnvelope_CarriesPayload(t *testing.T) {
	env, err := NewEnvelope(quotaEvent("t1"))
	require.NoError(t, err)
	assert.Equal(t, "t1", env.TenantID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "Assessments", payload["quotaType"])
	assert.Equal(t, 10.0, payload["limit"])
}

type fakePublisher struct {
	mu       sync.Mutex
	failures int
	channels []string
}

func (f *fakePublisher) Publish(_ context.Context, channel string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("redis down")
	}
	f.channels = append(f.channels, channel)
	return nil
}

func TestRedisRelay_RetriesThenPublishes(t *testing.T) {
	pub := &fakePublisher{failures: 1}
	cfg := &retry.Config{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	relay := NewRedisRelay(pub, circuitbreaker.NewCircuitBreaker(3, 1, time.Minute), cfg, nil)

	require.NoError(t, relay.Handle(context.Background(), quotaEvent("t1")))
	assert.Equal(t, []string{"grc:events:t1"}, pub.channels)
}

func TestRedisRelay_BreakerOpensOnOutage(t *testing.T) {
	pub := &fakePublisher{failures: 100}
	cfg := &retry.Config{MaxAttempts: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 1}
	relay := NewRedisRelay(pub, circuitbreaker.NewCircuitBreaker(2, 1, time.Minute), cfg, nil)

	ctx := context.Background()
	assert.Error(t, relay.Handle(ctx, quotaEvent("t1")))
	assert.Error(t, relay.Handle(ctx, quotaEvent("t1")))
	assert.ErrorIs(t, relay.Handle(ctx, quotaEvent("t1")), circuitbreaker.ErrOpen)
}

func TestDecodeMessage_FillsTenantFromChannel(t *testing.T) {
	env, err := DecodeMessage("grc:events:t9", `{"name":"TaskCompleted","payload":{}}`)
	require.NoError(t, err)
	assert.Equal(t, "t9", env.TenantID)

	_, err = DecodeMessage("grc:events:t9", "not json")
	assert.Error(t, err)
}

func TestHub_DeliversOnlyToTenant(t *testing.T) {
	hub := NewHub(4, nil)
	mine, cancelMine := hub.Listen("t1")
	defer cancelMine()
	other, cancelOther := hub.Listen("t2")
	defer cancelOther()

	require.NoError(t, hub.Handle(context.Background(), quotaEvent("t1")))

	select {
	case env := <-mine:
		assert.Equal(t, domain.EventQuotaExceeded, env.Name)
	case <-time.After(time.Second):
		t.Fatal("expected event for t1")
	}
	select {
	case env := <-other:
		t.Fatalf("t2 received %s", env.Name)
	default:
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub(1, nil)
	ch, cancel := hub.Listen("t1")
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	hub.Broadcast(Envelope{TenantID: "t1"})
}
