package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/copytrade/fleet/internal/dispatch"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a canned Dispatcher: it validates like the real
// engine, then fabricates a per-account result without touching any
// session.
type fakeEngine struct {
	lastIntent *domain.OrderIntent
	records    *dispatch.Store
	exitCalls  int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{records: dispatch.NewStore()}
}

func (f *fakeEngine) Dispatch(ctx context.Context, intent domain.OrderIntent) (*dispatch.Result, error) {
	if err := dispatch.ValidateIntent(intent); err != nil {
		return &dispatch.Result{Aggregate: domain.OutcomeFailure}, err
	}
	f.lastIntent = &intent
	return &dispatch.Result{
		Aggregate: domain.OutcomeSuccess,
		PerAccount: []dispatch.AccountOutcome{
			{Account: "alice", Phase: domain.RecordFilled},
			{Account: "bob", Phase: domain.RecordFilled},
		},
	}, nil
}

func (f *fakeEngine) ExitAll(symbol, exitOption string) error {
	f.exitCalls++
	return nil
}

func (f *fakeEngine) Records() *dispatch.Store { return f.records }

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"symbol":   "NQ",
		"quantity": 4,
		"action":   "Buy",
	}
}

func TestHandleDispatch_Success(t *testing.T) {
	engine := newFakeEngine()
	h := NewDispatchHandlers(engine, zerolog.Nop())

	body := validBody()
	body["tick_size"] = 0.25
	body["enable_tp"] = true
	body["enable_sl"] = true
	body["tp_ticks"] = 100
	body["sl_ticks"] = 40
	body["scale_in_enabled"] = true
	body["scale_in_levels"] = 4
	body["scale_in_ticks"] = 20
	body["account"] = "all"

	rec := postJSON(t, h.HandleDispatch, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result dispatch.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.OutcomeSuccess, result.Aggregate)
	assert.Len(t, result.PerAccount, 2)

	// The wire body mapped onto the intent correctly.
	require.NotNil(t, engine.lastIntent)
	assert.Equal(t, domain.SideBuy, engine.lastIntent.Side)
	assert.Equal(t, domain.OrderTypeMarket, engine.lastIntent.OrderType)
	assert.True(t, engine.lastIntent.Bracket)
	assert.Equal(t, 100, engine.lastIntent.TakeProfit)
	assert.Equal(t, 40, engine.lastIntent.StopLoss)
	assert.Equal(t, 4, engine.lastIntent.ScaleLevels)
	assert.Equal(t, 20, engine.lastIntent.ScaleInTicks)
}

func TestHandleDispatch_ScaleInDivisibilityReturns400(t *testing.T) {
	engine := newFakeEngine()
	h := NewDispatchHandlers(engine, zerolog.Nop())

	body := validBody()
	body["quantity"] = 1
	body["scale_in_enabled"] = true
	body["scale_in_levels"] = 4
	body["scale_in_ticks"] = 20

	rec := postJSON(t, h.HandleDispatch, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "scale_in_levels")
	// Validation failed before fan-out: the engine never saw the intent.
	assert.Nil(t, engine.lastIntent)
}

func TestHandleDispatch_MalformedBodyReturns400(t *testing.T) {
	h := NewDispatchHandlers(newFakeEngine(), zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.HandleDispatch(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExit(t *testing.T) {
	engine := newFakeEngine()
	h := NewDispatchHandlers(engine, zerolog.Nop())

	rec := postJSON(t, h.HandleExit, map[string]interface{}{"symbol": "NQ"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, engine.exitCalls)

	rec = postJSON(t, h.HandleExit, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_PassphraseGate(t *testing.T) {
	engine := newFakeEngine()
	h := NewWebhookHandlers(engine, "s3cret", zerolog.Nop())

	// Wrong passphrase: 401, no dispatch.
	body := validBody()
	body["passphrase"] = "wrong"
	rec := postJSON(t, h.HandleTradingView, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, engine.lastIntent)

	// Missing passphrase: 401.
	rec = postJSON(t, h.HandleTradingView, validBody())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct passphrase: dispatched.
	body["passphrase"] = "s3cret"
	rec = postJSON(t, h.HandleTradingView, body)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, engine.lastIntent)
}

func TestWebhook_TradeTypeMapping(t *testing.T) {
	engine := newFakeEngine()
	h := NewWebhookHandlers(engine, "s3cret", zerolog.Nop())

	body := validBody()
	body["passphrase"] = "s3cret"
	body["tradeType"] = "bracket"
	body["tp_ticks"] = 10
	body["enable_tp"] = true
	rec := postJSON(t, h.HandleTradingView, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, engine.lastIntent.Bracket)

	body["tradeType"] = "hedge"
	rec = postJSON(t, h.HandleTradingView, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_MalformedBodyReturns400(t *testing.T) {
	h := NewWebhookHandlers(newFakeEngine(), "s3cret", zerolog.Nop())
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{")))
	rec := httptest.NewRecorder()
	h.HandleTradingView(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnconfiguredPassphraseRejects(t *testing.T) {
	engine := newFakeEngine()
	h := NewWebhookHandlers(engine, "", zerolog.Nop())

	body := validBody()
	body["passphrase"] = "anything"
	rec := postJSON(t, h.HandleTradingView, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, engine.lastIntent)
}
