package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/copytrade/fleet/internal/dispatch"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/rs/zerolog"
)

// WebhookHandlers receives TradingView-style alerts. The payload is
// the dashboard's shape plus a passphrase and an optional tradeType.
type WebhookHandlers struct {
	engine     Dispatcher
	passphrase string
	log        zerolog.Logger
}

// NewWebhookHandlers creates the webhook receiver. An empty
// passphrase disables the endpoint entirely rather than running open.
func NewWebhookHandlers(engine Dispatcher, passphrase string, log zerolog.Logger) *WebhookHandlers {
	return &WebhookHandlers{
		engine:     engine,
		passphrase: passphrase,
		log:        log.With().Str("handler", "webhook").Logger(),
	}
}

// webhookRequest extends the dashboard body with webhook-only fields.
type webhookRequest struct {
	dispatchRequest
	Passphrase string `json:"passphrase"`
	TradeType  string `json:"tradeType"`
}

// HandleTradingView accepts one alert: 401 on a missing or wrong
// passphrase, 400 on a malformed body or invalid intent.
// POST /api/webhook/tradingview
func (h *WebhookHandlers) HandleTradingView(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if h.passphrase == "" {
		h.log.Warn().Msg("webhook hit but no passphrase configured, rejecting")
		writeError(w, http.StatusUnauthorized, "webhook not configured")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Passphrase), []byte(h.passphrase)) != 1 {
		h.log.Warn().Str("symbol", req.Symbol).Msg("webhook passphrase mismatch")
		writeError(w, http.StatusUnauthorized, "invalid passphrase")
		return
	}

	intent := req.toIntent()
	switch strings.ToLower(req.TradeType) {
	case "", "market":
		intent.OrderType = domain.OrderTypeMarket
	case "limit":
		intent.OrderType = domain.OrderTypeLimit
	case "bracket":
		intent.Bracket = true
	default:
		writeError(w, http.StatusBadRequest, "tradeType must be market, limit or bracket")
		return
	}

	result, err := h.engine.Dispatch(r.Context(), intent)
	if err != nil {
		var verr *dispatch.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.log.Error().Err(err).Msg("webhook dispatch failed")
		writeJSON(w, http.StatusOK, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
