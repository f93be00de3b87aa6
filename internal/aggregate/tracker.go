package aggregate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/groupbuy-api/internal/obs"
)

// State describes the tracker lifecycle. A tracker starts Unseeded, enters
// Seeding while the first full read is in flight, and becomes Live once the
// authoritative sums are loaded.
type State string

const (
	StateUnseeded State = "unseeded"
	StateSeeding  State = "seeding"
	StateLive     State = "live"
)

// Totals is the committed quantity split by product variant.
type Totals struct {
	VariantA int64 `json:"variant_a"`
	VariantB int64 `json:"variant_b"`
}

// Sum returns the grand total across both variants.
func (t Totals) Sum() int64 {
	return t.VariantA + t.VariantB
}

// Seeder performs the authoritative full read backing a reseed.
type Seeder interface {
	SumQuantities(ctx context.Context) (Totals, error)
}

// Tracker maintains the running committed totals. It is seeded from a full
// store read, kept current by incremental deltas from insert notifications,
// and periodically re-anchored by reconciliation snapshots. Readers never
// observe a partially applied reseed.
type Tracker struct {
	seeder Seeder
	logger zerolog.Logger

	mu         sync.RWMutex
	state      State
	totals     Totals
	anchoredAt time.Time
}

// NewTracker constructs an unseeded tracker.
func NewTracker(seeder Seeder, logger zerolog.Logger) *Tracker {
	return &Tracker{
		seeder: seeder,
		logger: logger.With().Str("component", "aggregate").Logger(),
		state:  StateUnseeded,
	}
}

// Reseed recomputes both sums from scratch via the seeder and replaces the
// current state atomically. With no intervening inserts a second reseed
// yields identical sums. On failure a live tracker keeps serving its stale
// totals; an unseeded tracker stays in Seeding.
func (t *Tracker) Reseed(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateUnseeded {
		t.state = StateSeeding
	}
	t.mu.Unlock()

	totals, err := t.seeder.SumQuantities(ctx)
	if err != nil {
		obs.CountReseed("reseed", "error")
		t.logger.Error().Err(err).Msg("aggregate reseed failed")
		return err
	}

	t.mu.Lock()
	t.totals = totals
	t.state = StateLive
	t.anchoredAt = time.Now()
	t.mu.Unlock()

	obs.CountReseed("reseed", "ok")
	t.publishGauges(totals)
	t.logger.Info().Int64("variant_a", totals.VariantA).Int64("variant_b", totals.VariantB).Msg("aggregate reseeded")
	return nil
}

// SeedWithRetry reseeds until it succeeds or the context is cancelled,
// doubling the wait between attempts up to max.
func (t *Tracker) SeedWithRetry(ctx context.Context, initial, max time.Duration) error {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	wait := initial
	for {
		if err := t.Reseed(ctx); err == nil {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait *= 2
		if wait > max {
			wait = max
		}
	}
}

// ApplyInsert adds the per-variant deltas from an order-created
// notification. Each notification is applied blindly: the push channel is
// at-least-once and no dedup key is tracked, so a redelivered event
// overcounts until the next snapshot re-anchors the totals.
func (t *Tracker) ApplyInsert(variantA, variantB int64) {
	t.mu.Lock()
	t.totals.VariantA += variantA
	t.totals.VariantB += variantB
	totals := t.totals
	t.mu.Unlock()

	obs.CountNotificationApplied()
	t.publishGauges(totals)
}

// ReplaceFromSnapshot swaps the totals for a reconciliation snapshot. A
// snapshot taken before the current anchor is stale and ignored; it reports
// whether the snapshot was applied.
func (t *Tracker) ReplaceFromSnapshot(totals Totals, takenAt time.Time) bool {
	t.mu.Lock()
	if !takenAt.After(t.anchoredAt) {
		t.mu.Unlock()
		return false
	}
	t.totals = totals
	t.state = StateLive
	t.anchoredAt = takenAt
	t.mu.Unlock()

	obs.CountReseed("snapshot", "ok")
	t.publishGauges(totals)
	return true
}

// Snapshot returns a consistent view of the totals and lifecycle state.
func (t *Tracker) Snapshot() (Totals, State) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totals, t.state
}

func (t *Tracker) publishGauges(totals Totals) {
	obs.SetAggregateQuantity(totals.VariantA, totals.VariantB)
}
