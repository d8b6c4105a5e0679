package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/copytrade/fleet/internal/dispatch"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Dispatcher is the handlers' view of the dispatch engine, narrowed
// for testability.
type Dispatcher interface {
	Dispatch(ctx context.Context, intent domain.OrderIntent) (*dispatch.Result, error)
	ExitAll(symbol, exitOption string) error
	Records() *dispatch.Store
}

// DispatchHandlers serves the dashboard's trading endpoints.
type DispatchHandlers struct {
	engine Dispatcher
	log    zerolog.Logger
}

// NewDispatchHandlers creates the dashboard dispatch handlers.
func NewDispatchHandlers(engine Dispatcher, log zerolog.Logger) *DispatchHandlers {
	return &DispatchHandlers{
		engine: engine,
		log:    log.With().Str("handler", "dispatch").Logger(),
	}
}

// dispatchRequest is the dashboard's JSON body.
type dispatchRequest struct {
	Symbol         string  `json:"symbol"`
	Quantity       float64 `json:"quantity"`
	Action         string  `json:"action"`
	OrderType      string  `json:"order_type"`
	LimitPrice     float64 `json:"limit_price"`
	StopPrice      float64 `json:"stop_price"`
	TickSize       float64 `json:"tick_size"`
	Account        string  `json:"account"`
	EnableTP       bool    `json:"enable_tp"`
	EnableSL       bool    `json:"enable_sl"`
	TPTicks        int     `json:"tp_ticks"`
	SLTicks        int     `json:"sl_ticks"`
	ScaleInEnabled bool    `json:"scale_in_enabled"`
	ScaleInLevels  int     `json:"scale_in_levels"`
	ScaleInTicks   int     `json:"scale_in_ticks"`
}

// toIntent maps the wire body onto a domain intent. Action arrives in
// dashboard casing ("Buy"/"Sell"); order type defaults to MARKET.
func (req dispatchRequest) toIntent() domain.OrderIntent {
	intent := domain.OrderIntent{
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		Side:       strings.ToUpper(req.Action),
		OrderType:  strings.ToUpper(req.OrderType),
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		TickSize:   req.TickSize,
		Account:    req.Account,
	}
	if intent.OrderType == "" {
		intent.OrderType = domain.OrderTypeMarket
	}
	if req.EnableTP {
		intent.TakeProfit = req.TPTicks
	}
	if req.EnableSL {
		intent.StopLoss = req.SLTicks
	}
	intent.Bracket = req.EnableTP || req.EnableSL
	if req.ScaleInEnabled {
		intent.ScaleLevels = req.ScaleInLevels
		intent.ScaleInTicks = req.ScaleInTicks
	}
	return intent
}

// HandleDispatch accepts one trading intent and returns the aggregate
// plus per-account outcomes. Structural validation failures (including
// the scale-in divisibility rule) return 400 before any fan-out.
// POST /api/dispatch
func (h *DispatchHandlers) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := h.engine.Dispatch(r.Context(), req.toIntent())
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			h.log.Warn().Str("field", verr.Field).Str("reason", verr.Reason).Msg("intent rejected")
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.log.Error().Err(err).Msg("dispatch failed")
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleExit flattens a symbol across every eligible session.
// POST /api/exit
func (h *DispatchHandlers) HandleExit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol     string `json:"symbol"`
		ExitOption string `json:"exit_option"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	if err := h.engine.ExitAll(req.Symbol, req.ExitOption); err != nil {
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("exit fan-out failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

// HandleOrdersByIntent returns every OrderRecord materialized from an
// intent, children included.
// GET /api/orders/{intentID}
func (h *DispatchHandlers) HandleOrdersByIntent(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentID")
	records := h.engine.Records().ByIntent(intentID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"intent_id": intentID,
		"records":   records,
		"count":     len(records),
	})
}
