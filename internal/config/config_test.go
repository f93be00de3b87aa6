package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":   "postgres://localhost:5432/groupbuy",
		"REDIS_URL":      "redis://localhost:6379/0",
		"ORDER_DEADLINE": "2026-09-15T18:00:00Z",
		"PRICING_TIERS":  "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, int64(10), cfg.QuantityStep)
	require.False(t, cfg.EnforceQuantityStep)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	require.Equal(t, int64(5), cfg.RateLimitMax)
	require.Equal(t, time.Date(2026, 9, 15, 18, 0, 0, 0, time.UTC), cfg.OrderDeadline.UTC())

	// Without PRICING_TIERS the standard table applies.
	tiers := cfg.PricingTiers.Tiers()
	require.Len(t, tiers, 6)
	require.Equal(t, int64(1500), tiers[0].Min)
	require.Equal(t, int64(0), tiers[len(tiers)-1].Min)
}

func TestLoadRequiresDeadline(t *testing.T) {
	env := baseEnv()
	env["ORDER_DEADLINE"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ORDER_DEADLINE")
}

func TestLoadRejectsMalformedTiers(t *testing.T) {
	env := baseEnv()
	env["PRICING_TIERS"] = "1500:4.5,1000"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestLoadParsesCustomTiersAndStep(t *testing.T) {
	env := baseEnv()
	env["PRICING_TIERS"] = "100:2.5,0:3.0"
	env["ORDER_QUANTITY_STEP"] = "5"
	env["ORDER_ENFORCE_QUANTITY_STEP"] = "true"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, int64(5), cfg.QuantityStep)
	require.True(t, cfg.EnforceQuantityStep)
	require.Len(t, cfg.PricingTiers.Tiers(), 2)
}
