package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupbuy-api/internal/aggregate"
	"github.com/noah-isme/groupbuy-api/internal/events"
	"github.com/noah-isme/groupbuy-api/internal/lock"
)

type stubStore struct {
	totals aggregate.Totals
	err    error
}

func (s stubStore) SumQuantities(context.Context) (aggregate.Totals, error) {
	return s.totals, s.err
}

func newPublisher(t *testing.T, store stubStore) (*Publisher, *events.Bus) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bus := &events.Bus{R: client, Logger: zerolog.Nop(), Prefix: "gb:"}
	return &Publisher{
		Store:  store,
		Bus:    bus,
		Locker: lock.Locker{R: client},
		Logger: zerolog.Nop(),
	}, bus
}

func TestHandleTaskPublishesSnapshot(t *testing.T) {
	pub, bus := newPublisher(t, stubStore{totals: aggregate.Totals{VariantA: 300, VariantB: 210}})
	ctx := context.Background()

	received := make(chan events.AggregateSnapshot, 1)
	sub, err := bus.Subscribe(ctx, events.TopicAggregateSnapshot, func(_ context.Context, payload []byte) {
		var ev events.AggregateSnapshot
		if err := json.Unmarshal(payload, &ev); err == nil {
			received <- ev
		}
	})
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, pub.HandleTask(ctx, NewTask()))

	select {
	case ev := <-received:
		require.Equal(t, int64(300), ev.VariantA)
		require.Equal(t, int64(210), ev.VariantB)
		require.False(t, ev.TakenAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("snapshot not delivered")
	}
}

func TestHandleTaskPropagatesStoreError(t *testing.T) {
	pub, _ := newPublisher(t, stubStore{err: errors.New("db down")})
	require.Error(t, pub.HandleTask(context.Background(), NewTask()))
}
