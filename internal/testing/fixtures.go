package testing

import (
	"time"

	"github.com/copytrade/fleet/internal/domain"
)

// ReadySession builds a READY+HEALTHY session fixture.
func ReadySession(accountID string, port int) domain.Session {
	return domain.Session{
		AccountID:  accountID,
		DebugPort:  port,
		BackupPort: port + 1,
		PID:        1000 + port,
		Phase:      domain.PhaseReady,
		Health:     domain.HealthHealthy,
		Context: domain.TradingContext{
			AccountID: accountID,
			Symbol:    "NQ",
			Quantity:  1,
			TickSize:  0.25,
			UpdatedAt: time.Now(),
		},
		CreatedAt: time.Now(),
	}
}

// MarketIntent builds a plain market-order intent fixture.
func MarketIntent(id string) domain.OrderIntent {
	return domain.OrderIntent{
		ID:         id,
		Symbol:     "NQ",
		Side:       domain.SideBuy,
		Quantity:   2,
		OrderType:  domain.OrderTypeMarket,
		ReceivedAt: time.Now(),
	}
}

// FilledRecord builds a terminal FILLED record fixture with a
// consistent event log.
func FilledRecord(accountID, intentID string) *domain.OrderRecord {
	now := time.Now()
	rec := &domain.OrderRecord{
		Fingerprint: domain.NewFingerprint(accountID, intentID),
		IntentID:    intentID,
		AccountID:   accountID,
		SubmittedAt: now,
	}
	rec.RecordPhase(domain.RecordPreValidated, now)
	rec.RecordPhase(domain.RecordSubmitted, now)
	rec.RecordPhase(domain.RecordAcknowledged, now)
	rec.RecordPhase(domain.RecordFilled, now)
	rec.CompletedAt = now
	return rec
}
