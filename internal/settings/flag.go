package settings

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Getter reads a single boolean setting.
type Getter interface {
	Get(ctx context.Context, key string) (bool, error)
}

// Flag is the process-local cache of one boolean setting. It is loaded at
// startup and refreshed when a setting-changed notification arrives; a failed
// read logs and leaves the cached value in place, so readers may briefly see
// a stale value.
type Flag struct {
	source Getter
	key    string
	logger zerolog.Logger

	mu    sync.RWMutex
	value bool
}

// NewFlag builds a flag cache for the given key, starting at the default false.
func NewFlag(source Getter, key string, logger zerolog.Logger) *Flag {
	return &Flag{
		source: source,
		key:    key,
		logger: logger.With().Str("component", "settings").Str("key", key).Logger(),
	}
}

// Refresh re-reads the setting from the source.
func (f *Flag) Refresh(ctx context.Context) {
	value, err := f.source.Get(ctx, f.key)
	if err != nil {
		f.logger.Error().Err(err).Msg("setting refresh failed, keeping cached value")
		return
	}
	f.Set(value)
}

// Set replaces the cached value, e.g. from a change notification payload.
func (f *Flag) Set(value bool) {
	f.mu.Lock()
	f.value = value
	f.mu.Unlock()
}

// Value returns the cached setting.
func (f *Flag) Value() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}
