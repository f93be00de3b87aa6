package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/groupbuy-api/internal/aggregate"
	"github.com/noah-isme/groupbuy-api/internal/common"
	"github.com/noah-isme/groupbuy-api/internal/events"
	"github.com/noah-isme/groupbuy-api/internal/gate"
	"github.com/noah-isme/groupbuy-api/internal/obs"
	"github.com/noah-isme/groupbuy-api/internal/pricing"
)

// Inserter is the slice of the store the submit handler needs.
type Inserter interface {
	Insert(ctx context.Context, o *Order) error
}

// Handler serves the public ordering surface.
type Handler struct {
	Store    Inserter
	Tracker  *aggregate.Tracker
	Tiers    pricing.Table
	Bus      *events.Bus
	Validate *validator.Validate
	Logger   zerolog.Logger

	Deadline     time.Time
	Forced       func() bool
	QuantityStep int64
	EnforceStep  bool
	Now          func() time.Time
}

// Quantities arrive as RawMessage because the form posts them loosely typed:
// numbers, numeric strings, empty strings, or nothing at all.
type submitRequest struct {
	Name       string          `json:"name" validate:"required,max=120"`
	Department string          `json:"department" validate:"required,max=120"`
	QtyA       json.RawMessage `json:"qty_a"`
	QtyB       json.RawMessage `json:"qty_b"`
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) forcedOpen() bool {
	return h.Forced != nil && h.Forced()
}

// Submit handles POST /orders.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Department = strings.TrimSpace(req.Department)
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "name and department are required", validationDetails(err))
		return
	}

	qtyA := common.CoerceQuantity(req.QtyA)
	qtyB := common.CoerceQuantity(req.QtyB)
	qty := qtyA + qtyB
	if qty <= 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "order at least one unit", nil)
		return
	}

	if !gate.Allowed(h.now(), h.Deadline, h.forcedOpen()) {
		obs.CountOrderSubmitted("closed")
		common.JSONError(w, http.StatusUnprocessableEntity, "SUBMISSIONS_CLOSED", "the ordering window has closed", nil)
		return
	}

	warnings := h.stepWarnings(qtyA, qtyB)
	if h.EnforceStep && len(warnings) > 0 {
		common.JSONError(w, http.StatusUnprocessableEntity, "QUANTITY_STEP", "quantities must be ordered in full packs", warnings)
		return
	}

	totals, _ := h.Tracker.Snapshot()
	before := totals.Sum()
	unit := h.Tiers.UnitPrice(before + qty)
	ord := &Order{
		Name:       req.Name,
		Department: req.Department,
		QtyA:       qtyA,
		QtyB:       qtyB,
		TotalPrice: h.Tiers.OrderTotal(before, qty),
	}
	if err := h.Store.Insert(r.Context(), ord); err != nil {
		obs.CountOrderSubmitted("error")
		h.Logger.Error().Err(err).Msg("order insert failed")
		// The raw store message is surfaced so the submitter can report it.
		common.RenderError(w, storeError(err))
		return
	}

	if h.Bus != nil {
		ev := events.OrderCreated{OrderID: ord.ID, QtyA: ord.QtyA, QtyB: ord.QtyB, OccurredAt: ord.CreatedAt}
		if err := h.Bus.Publish(r.Context(), events.TopicOrderCreated, ev); err != nil {
			h.Logger.Warn().Err(err).Str("order_id", ord.ID).Msg("order-created notification not published")
		}
	}

	obs.CountOrderSubmitted("ok")
	common.JSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{
			"order": ord,
			"pricing": map[string]any{
				"unit_price":        unit,
				"tier_min":          h.Tiers.Resolve(before + qty).Min,
				"grand_total_after": before + qty,
			},
		},
		"warnings": warnings,
	})
}

func (h *Handler) stepWarnings(qtyA, qtyB int64) []string {
	step := h.QuantityStep
	if step <= 0 {
		return nil
	}
	var warnings []string
	if qtyA%step != 0 {
		warnings = append(warnings, fmt.Sprintf("variant A quantity %d is not a multiple of %d", qtyA, step))
	}
	if qtyB%step != 0 {
		warnings = append(warnings, fmt.Sprintf("variant B quantity %d is not a multiple of %d", qtyB, step))
	}
	return warnings
}

// Quote handles GET /orders/quote: prospective pricing without committing.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	qtyA := int64(common.AtoiDefault(r.URL.Query().Get("qty_a"), 0))
	qtyB := int64(common.AtoiDefault(r.URL.Query().Get("qty_b"), 0))
	if qtyA < 0 {
		qtyA = 0
	}
	if qtyB < 0 {
		qtyB = 0
	}
	qty := qtyA + qtyB

	totals, state := h.Tracker.Snapshot()
	before := totals.Sum()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"qty_a":              qtyA,
			"qty_b":              qtyB,
			"unit_price":         h.Tiers.UnitPrice(before + qty),
			"tier_min":           h.Tiers.Resolve(before + qty).Min,
			"estimated_total":    h.Tiers.OrderTotal(before, qty),
			"grand_total_before": before,
			"grand_total_after":  before + qty,
			"aggregate_state":    state,
		},
	})
}

// Aggregate handles GET /aggregate: the live committed totals.
func (h *Handler) Aggregate(w http.ResponseWriter, r *http.Request) {
	totals, state := h.Tracker.Snapshot()
	sum := totals.Sum()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"variant_a":  totals.VariantA,
			"variant_b":  totals.VariantB,
			"total":      sum,
			"unit_price": h.Tiers.UnitPrice(sum),
			"tier_min":   h.Tiers.Resolve(sum).Min,
			"state":      state,
		},
	})
}

// Window handles GET /window: the submission window as shown to clients.
func (h *Handler) Window(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{
		"data": gate.Describe(h.now(), h.Deadline, h.forcedOpen()),
	})
}

// PricingTiers handles GET /pricing/tiers.
func (h *Handler) PricingTiers(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.Tiers.Tiers()})
}

func storeError(err error) error {
	return common.NewAppError("STORE_ERROR", err.Error(), http.StatusInternalServerError, err)
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return fields
}
