package admin

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/groupbuy-api/internal/aggregate"
	"github.com/noah-isme/groupbuy-api/internal/common"
	"github.com/noah-isme/groupbuy-api/internal/events"
	"github.com/noah-isme/groupbuy-api/internal/order"
	"github.com/noah-isme/groupbuy-api/internal/pricing"
	"github.com/noah-isme/groupbuy-api/internal/settings"
)

// OrderReader is the slice of the order store the admin view reads. Sums are
// re-read from the store on every request rather than trusting the in-memory
// tracker: the admin surface is the audit view.
type OrderReader interface {
	List(ctx context.Context, limit, offset int32) ([]order.Order, error)
	Count(ctx context.Context) (int64, error)
	SumQuantities(ctx context.Context) (aggregate.Totals, error)
}

// SettingWriter persists admin-mutable settings.
type SettingWriter interface {
	Upsert(ctx context.Context, key string, value bool) error
}

// Handler serves the admin surface.
type Handler struct {
	Orders   OrderReader
	Settings SettingWriter
	Flag     *settings.Flag
	Tiers    pricing.Table
	Bus      *events.Bus
	Logger   zerolog.Logger
}

type adminOrder struct {
	order.Order
	// EstimatedTotal reprices the row at the current unit price; it drifts
	// from the stored snapshot as later orders move the tier.
	EstimatedTotal int64 `json:"estimated_total"`
}

// ListOrders handles GET /admin/orders: every order newest first, each repriced
// at the unit price the current grand total commands.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 100)
	if perPage > 500 {
		perPage = 500
	}

	totals, err := h.Orders.SumQuantities(r.Context())
	if err != nil {
		common.RenderError(w, storeError(err))
		return
	}
	count, err := h.Orders.Count(r.Context())
	if err != nil {
		common.RenderError(w, storeError(err))
		return
	}
	rows, err := h.Orders.List(r.Context(), int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.RenderError(w, storeError(err))
		return
	}

	unit := h.Tiers.UnitPrice(totals.Sum())
	response := make([]adminOrder, 0, len(rows))
	for _, row := range rows {
		response = append(response, adminOrder{
			Order:          row,
			EstimatedTotal: repriceAt(unit, row.QtyA+row.QtyB),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": response,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(count),
		},
		"unit_price": unit,
	})
}

// Summary handles GET /admin/summary: grand totals, current tier, and the
// estimated gross at today's price.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Orders.SumQuantities(r.Context())
	if err != nil {
		common.RenderError(w, storeError(err))
		return
	}
	count, err := h.Orders.Count(r.Context())
	if err != nil {
		common.RenderError(w, storeError(err))
		return
	}

	sum := totals.Sum()
	tier := h.Tiers.Resolve(sum)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"orders":          count,
			"variant_a":       totals.VariantA,
			"variant_b":       totals.VariantB,
			"total":           sum,
			"unit_price":      tier.Price,
			"tier_min":        tier.Min,
			"estimated_gross": repriceAt(tier.Price, sum),
		},
	})
}

type forcedOpenRequest struct {
	Value bool `json:"value"`
}

// SetForcedOpen handles PUT /admin/settings/forced-open.
func (h *Handler) SetForcedOpen(w http.ResponseWriter, r *http.Request) {
	var req forcedOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if err := h.Settings.Upsert(r.Context(), settings.KeyForcedOpen, req.Value); err != nil {
		h.Logger.Error().Err(err).Msg("forced-open update failed")
		ae := common.NewAppError("SETTINGS_ERROR",
			"could not update forced-open; the settings table may be missing",
			http.StatusInternalServerError, err)
		ae.Details = err.Error()
		common.RenderError(w, ae)
		return
	}

	if h.Flag != nil {
		h.Flag.Set(req.Value)
	}
	if h.Bus != nil {
		ev := events.SettingChanged{Key: settings.KeyForcedOpen, Value: req.Value}
		if err := h.Bus.Publish(r.Context(), events.TopicSettingChanged, ev); err != nil {
			h.Logger.Warn().Err(err).Msg("setting-changed notification not published")
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"key": settings.KeyForcedOpen, "value": req.Value},
	})
}

func storeError(err error) error {
	return common.NewAppError("STORE_ERROR", err.Error(), http.StatusInternalServerError, err)
}

func repriceAt(unit decimal.Decimal, qty int64) int64 {
	if qty <= 0 {
		return 0
	}
	return unit.Mul(decimal.NewFromInt(qty)).Ceil().IntPart()
}
