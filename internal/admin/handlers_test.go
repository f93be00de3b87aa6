package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/groupbuy-api/internal/aggregate"
	"github.com/noah-isme/groupbuy-api/internal/order"
	"github.com/noah-isme/groupbuy-api/internal/pricing"
	"github.com/noah-isme/groupbuy-api/internal/settings"
)

type fakeOrders struct {
	rows []order.Order
	err  error
}

func (f *fakeOrders) List(_ context.Context, limit, offset int32) ([]order.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	if int(offset) >= len(f.rows) {
		return nil, nil
	}
	end := int(offset) + int(limit)
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func (f *fakeOrders) Count(context.Context) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return int64(len(f.rows)), nil
}

func (f *fakeOrders) SumQuantities(context.Context) (aggregate.Totals, error) {
	if f.err != nil {
		return aggregate.Totals{}, f.err
	}
	var totals aggregate.Totals
	for _, row := range f.rows {
		totals.VariantA += row.QtyA
		totals.VariantB += row.QtyB
	}
	return totals, nil
}

type fakeSettings struct {
	upserts map[string]bool
	err     error
}

func (f *fakeSettings) Upsert(_ context.Context, key string, value bool) error {
	if f.err != nil {
		return f.err
	}
	if f.upserts == nil {
		f.upserts = map[string]bool{}
	}
	f.upserts[key] = value
	return nil
}

func sampleOrders() []order.Order {
	base := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	return []order.Order{
		{ID: "o-2", CreatedAt: base.Add(time.Hour), Name: "Ben", Department: "Ops", QtyA: 200, QtyB: 100, TotalPrice: 2100},
		{ID: "o-1", CreatedAt: base, Name: "Ana", Department: "Finance", QtyA: 150, QtyB: 60, TotalPrice: 1890},
	}
}

func TestListOrdersRepricesEveryRowAtCurrentTier(t *testing.T) {
	h := &Handler{Orders: &fakeOrders{rows: sampleOrders()}, Tiers: pricing.Default(), Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []struct {
			ID             string `json:"id"`
			TotalPrice     int64  `json:"total_price"`
			EstimatedTotal int64  `json:"estimated_total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)

	// Grand total is 510, so every row reprices at the 500-tier price 6.0,
	// regardless of the snapshot charged at submit time.
	require.Equal(t, "o-2", body.Data[0].ID)
	require.Equal(t, int64(1800), body.Data[0].EstimatedTotal)
	require.Equal(t, int64(1260), body.Data[1].EstimatedTotal)
	require.Equal(t, int64(1890), body.Data[1].TotalPrice)
}

func TestListOrdersSurfacesStoreError(t *testing.T) {
	h := &Handler{Orders: &fakeOrders{err: errors.New("db down")}, Tiers: pricing.Default(), Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.ListOrders(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "db down")
}

func TestSummaryReportsTierAndGross(t *testing.T) {
	h := &Handler{Orders: &fakeOrders{rows: sampleOrders()}, Tiers: pricing.Default(), Logger: zerolog.Nop()}

	rec := httptest.NewRecorder()
	h.Summary(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/summary", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Orders         int64 `json:"orders"`
			Total          int64 `json:"total"`
			TierMin        int64 `json:"tier_min"`
			EstimatedGross int64 `json:"estimated_gross"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(2), body.Data.Orders)
	require.Equal(t, int64(510), body.Data.Total)
	require.Equal(t, int64(500), body.Data.TierMin)
	require.Equal(t, int64(3060), body.Data.EstimatedGross)
}

func TestSetForcedOpenUpsertsAndUpdatesFlag(t *testing.T) {
	store := &fakeSettings{}
	flag := settings.NewFlag(nil, settings.KeyForcedOpen, zerolog.Nop())
	h := &Handler{Orders: &fakeOrders{}, Settings: store, Flag: flag, Tiers: pricing.Default(), Logger: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings/forced-open", strings.NewReader(`{"value":true}`))
	rec := httptest.NewRecorder()
	h.SetForcedOpen(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, store.upserts[settings.KeyForcedOpen])
	require.True(t, flag.Value())
}

func TestSetForcedOpenReportsBlockingError(t *testing.T) {
	store := &fakeSettings{err: errors.New(`relation "settings" does not exist`)}
	h := &Handler{Orders: &fakeOrders{}, Settings: store, Tiers: pricing.Default(), Logger: zerolog.Nop()}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings/forced-open", strings.NewReader(`{"value":true}`))
	rec := httptest.NewRecorder()
	h.SetForcedOpen(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "settings table may be missing")
}
