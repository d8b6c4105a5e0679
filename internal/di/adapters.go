/**
 * Package di provides small adapters bridging components that must not
 * import each other directly.
 */
package di

import (
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/fleet"
	"github.com/rs/zerolog"
)

// contextRecorder keeps each session's TradingContext current with the
// last executed intent and flushes it to the recovery file, so the
// on-disk snapshot is never more than one intent behind live state.
type contextRecorder struct {
	registry *fleet.Registry
	recovery *fleet.RecoveryStore
	log      zerolog.Logger
}

func newContextRecorder(registry *fleet.Registry, recovery *fleet.RecoveryStore, log zerolog.Logger) *contextRecorder {
	return &contextRecorder{
		registry: registry,
		recovery: recovery,
		log:      log.With().Str("component", "context_recorder").Logger(),
	}
}

// RecordIntent implements dispatch.ContextRecorder.
func (r *contextRecorder) RecordIntent(accountID string, intent domain.OrderIntent, inFlight []string) {
	var snapshot domain.TradingContext
	err := r.registry.Update(accountID, func(s *domain.Session) {
		s.Context.Symbol = intent.Symbol
		s.Context.Quantity = intent.Quantity
		if intent.TakeProfit > 0 {
			s.Context.TakeProfitTicks = intent.TakeProfit
		}
		if intent.StopLoss > 0 {
			s.Context.StopLossTicks = intent.StopLoss
		}
		if intent.TickSize > 0 {
			s.Context.TickSize = intent.TickSize
		}
		s.Context.InFlightFingerprints = inFlight
		s.Context.UpdatedAt = time.Now()
		snapshot = s.Context
	})
	if err != nil {
		r.log.Warn().Err(err).Str("account_id", accountID).Msg("no live session to record context against")
		return
	}
	if err := r.recovery.Save(snapshot); err != nil {
		r.log.Error().Err(err).Str("account_id", accountID).Msg("failed to persist trading context")
	}
}
