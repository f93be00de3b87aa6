package aggregate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubSeeder struct {
	mu     sync.Mutex
	totals Totals
	err    error
}

func (s *stubSeeder) SumQuantities(context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Totals{}, s.err
	}
	return s.totals, nil
}

func (s *stubSeeder) set(totals Totals, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals = totals
	s.err = err
}

func TestTrackerLifecycle(t *testing.T) {
	seeder := &stubSeeder{totals: Totals{VariantA: 120, VariantB: 70}}
	tracker := NewTracker(seeder, zerolog.Nop())

	_, state := tracker.Snapshot()
	require.Equal(t, StateUnseeded, state)

	require.NoError(t, tracker.Reseed(context.Background()))
	totals, state := tracker.Snapshot()
	require.Equal(t, StateLive, state)
	require.Equal(t, Totals{VariantA: 120, VariantB: 70}, totals)
	require.Equal(t, int64(190), totals.Sum())
}

func TestReseedFailureKeepsSeeding(t *testing.T) {
	seeder := &stubSeeder{err: errors.New("store down")}
	tracker := NewTracker(seeder, zerolog.Nop())

	require.Error(t, tracker.Reseed(context.Background()))
	totals, state := tracker.Snapshot()
	require.Equal(t, StateSeeding, state)
	require.Equal(t, Totals{}, totals)
}

func TestReseedFailureKeepsStaleTotalsWhenLive(t *testing.T) {
	seeder := &stubSeeder{totals: Totals{VariantA: 40}}
	tracker := NewTracker(seeder, zerolog.Nop())
	require.NoError(t, tracker.Reseed(context.Background()))

	seeder.set(Totals{}, errors.New("store down"))
	require.Error(t, tracker.Reseed(context.Background()))

	totals, state := tracker.Snapshot()
	require.Equal(t, StateLive, state)
	require.Equal(t, int64(40), totals.VariantA)
}

func TestReseedIdempotent(t *testing.T) {
	seeder := &stubSeeder{totals: Totals{VariantA: 10, VariantB: 500}}
	tracker := NewTracker(seeder, zerolog.Nop())

	require.NoError(t, tracker.Reseed(context.Background()))
	first, _ := tracker.Snapshot()
	require.NoError(t, tracker.Reseed(context.Background()))
	second, _ := tracker.Snapshot()
	require.Equal(t, first, second)
}

func TestApplyInsertAccumulates(t *testing.T) {
	seeder := &stubSeeder{totals: Totals{VariantA: 100, VariantB: 0}}
	tracker := NewTracker(seeder, zerolog.Nop())
	require.NoError(t, tracker.Reseed(context.Background()))

	tracker.ApplyInsert(30, 20)
	tracker.ApplyInsert(0, 50)

	totals, _ := tracker.Snapshot()
	require.Equal(t, Totals{VariantA: 130, VariantB: 70}, totals)
}

func TestConcurrentApplyConverges(t *testing.T) {
	tracker := NewTracker(&stubSeeder{}, zerolog.Nop())
	require.NoError(t, tracker.Reseed(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.ApplyInsert(10, 1)
		}()
	}
	wg.Wait()

	totals, _ := tracker.Snapshot()
	require.Equal(t, Totals{VariantA: 500, VariantB: 50}, totals)
}

func TestReplaceFromSnapshotIgnoresStale(t *testing.T) {
	seeder := &stubSeeder{totals: Totals{VariantA: 10}}
	tracker := NewTracker(seeder, zerolog.Nop())
	require.NoError(t, tracker.Reseed(context.Background()))

	stale := time.Now().Add(-time.Minute)
	require.False(t, tracker.ReplaceFromSnapshot(Totals{VariantA: 999}, stale))
	totals, _ := tracker.Snapshot()
	require.Equal(t, int64(10), totals.VariantA)

	fresh := time.Now().Add(time.Second)
	require.True(t, tracker.ReplaceFromSnapshot(Totals{VariantA: 25, VariantB: 5}, fresh))
	totals, state := tracker.Snapshot()
	require.Equal(t, Totals{VariantA: 25, VariantB: 5}, totals)
	require.Equal(t, StateLive, state)
}

func TestSeedWithRetryRecovers(t *testing.T) {
	seeder := &stubSeeder{err: errors.New("store down")}
	tracker := NewTracker(seeder, zerolog.Nop())

	go func() {
		time.Sleep(30 * time.Millisecond)
		seeder.set(Totals{VariantA: 7}, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tracker.SeedWithRetry(ctx, 10*time.Millisecond, 50*time.Millisecond))

	totals, state := tracker.Snapshot()
	require.Equal(t, StateLive, state)
	require.Equal(t, int64(7), totals.VariantA)
}

func TestSeedWithRetryHonoursCancellation(t *testing.T) {
	seeder := &stubSeeder{err: errors.New("store down")}
	tracker := NewTracker(seeder, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := tracker.SeedWithRetry(ctx, 10*time.Millisecond, 20*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
