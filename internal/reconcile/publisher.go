package reconcile

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupbuy-api/internal/aggregate"
	"github.com/noah-isme/groupbuy-api/internal/events"
	"github.com/noah-isme/groupbuy-api/internal/lock"
	"github.com/noah-isme/groupbuy-api/internal/obs"
)

// TaskAggregateSnapshot is the asynq task type for the periodic snapshot.
const TaskAggregateSnapshot = "aggregate:snapshot"

const defaultLockKey = "reconcile:aggregate-snapshot"

// Publisher reads the authoritative sums from the store and broadcasts them
// as a reconciliation snapshot. Trackers replace their state from it, which
// bounds the drift any missed or redelivered insert notification can cause.
type Publisher struct {
	Store   aggregate.Seeder
	Bus     *events.Bus
	Locker  lock.Locker
	LockKey string
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// NewTask builds the task enqueued by the scheduler.
func NewTask() *asynq.Task {
	return asynq.NewTask(TaskAggregateSnapshot, nil)
}

// HandleTask processes one scheduled snapshot under the publisher lock, so
// overlapping workers produce a single snapshot per interval.
func (p *Publisher) HandleTask(ctx context.Context, _ *asynq.Task) error {
	return p.Locker.WithLock(ctx, p.lockKey(), p.LockTTL, p.Publish)
}

// Publish reads the sums and broadcasts one snapshot.
func (p *Publisher) Publish(ctx context.Context) error {
	totals, err := p.Store.SumQuantities(ctx)
	if err != nil {
		obs.CountSnapshotPublished("error")
		p.Logger.Error().Err(err).Msg("snapshot read failed")
		return err
	}

	ev := events.AggregateSnapshot{
		VariantA: totals.VariantA,
		VariantB: totals.VariantB,
		TakenAt:  time.Now().UTC(),
	}
	if err := p.Bus.Publish(ctx, events.TopicAggregateSnapshot, ev); err != nil {
		obs.CountSnapshotPublished("error")
		p.Logger.Error().Err(err).Msg("snapshot publish failed")
		return err
	}

	obs.CountSnapshotPublished("ok")
	p.Logger.Info().Int64("variant_a", totals.VariantA).Int64("variant_b", totals.VariantB).Msg("aggregate snapshot published")
	return nil
}

func (p *Publisher) lockKey() string {
	if p.LockKey != "" {
		return p.LockKey
	}
	return defaultLockKey
}
