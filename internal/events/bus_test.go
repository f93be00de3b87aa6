package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupbuy-api/internal/events"
)

func newBus(t *testing.T) (*events.Bus, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return &events.Bus{R: client, Logger: zerolog.Nop(), Prefix: "gb:"}, mr
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	received := make(chan events.OrderCreated, 1)
	sub, err := bus.Subscribe(ctx, events.TopicOrderCreated, func(_ context.Context, payload []byte) {
		var ev events.OrderCreated
		if err := json.Unmarshal(payload, &ev); err == nil {
			received <- ev
		}
	})
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	want := events.OrderCreated{OrderID: "abc", QtyA: 30, QtyB: 20, OccurredAt: time.Now().UTC()}
	require.NoError(t, bus.Publish(ctx, events.TopicOrderCreated, want))

	select {
	case got := <-received:
		require.Equal(t, want.OrderID, got.OrderID)
		require.Equal(t, want.QtyA, got.QtyA)
		require.Equal(t, want.QtyB, got.QtyB)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	received := make(chan struct{}, 4)
	sub, err := bus.Subscribe(ctx, events.TopicSettingChanged, func(context.Context, []byte) {
		received <- struct{}{}
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, events.TopicSettingChanged, events.SettingChanged{Key: "forced_open", Value: true}))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("first notification not delivered")
	}

	require.NoError(t, sub.Close())

	require.NoError(t, bus.Publish(ctx, events.TopicSettingChanged, events.SettingChanged{Key: "forced_open", Value: false}))
	select {
	case <-received:
		t.Fatal("delivery after unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPublishRequiresTopic(t *testing.T) {
	bus, _ := newBus(t)
	require.Error(t, bus.Publish(context.Background(), "  ", nil))
}
