package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KeyForcedOpen keeps the ordering window open past the deadline.
const KeyForcedOpen = "forced_open"

// Store persists admin-mutable boolean settings.
type Store struct {
	Pool *pgxpool.Pool
}

// Get reads a setting. An absent row is the default: false.
func (s *Store) Get(ctx context.Context, key string) (bool, error) {
	var value bool
	err := s.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

const upsertSettingSQL = `
INSERT INTO settings (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// Upsert writes a setting, creating the row when missing.
func (s *Store) Upsert(ctx context.Context, key string, value bool) error {
	if _, err := s.Pool.Exec(ctx, upsertSettingSQL, key, value); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}
