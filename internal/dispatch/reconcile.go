package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/queue"
)

// scheduleReconcile enqueues a deferred reconciliation job for one
// account's slice of an intent. The job fires after ReconcileDelay so
// a slow-but-real fill has had time to appear in the account table.
func (e *Engine) scheduleReconcile(accountID string, intent domain.OrderIntent) {
	job := &queue.Job{
		ID:       fmt.Sprintf("reconcile-%s-%s", accountID, intent.ID),
		Type:     queue.JobTypeReconcile,
		Priority: queue.PriorityHigh,
		Payload: map[string]interface{}{
			"account_id": accountID,
			"intent_id":  intent.ID,
			"symbol":     intent.Symbol,
		},
		CreatedAt:   time.Now(),
		AvailableAt: time.Now().Add(e.cfg.ReconcileDelay),
		MaxRetries:  2,
	}
	if err := e.jobs.Enqueue(job); err != nil {
		e.log.Error().Err(err).Str("account_id", accountID).Msg("failed to schedule reconciliation")
	}
}

// handleReconcile inspects every non-terminal record this account
// holds for the intent and settles each: a position visible in the
// scraped table promotes SUBMITTED to FILLED; otherwise the record is
// forced to ORPHANED and an operator alert fires. The account table is
// treated as the source of truth for post-hoc fill discovery — when it
// disagrees with what the submit looked like, the disagreement itself
// is surfaced rather than guessed away.
func (e *Engine) handleReconcile(job *queue.Job) error {
	accountID, _ := job.Payload["account_id"].(string)
	intentID, _ := job.Payload["intent_id"].(string)
	symbol, _ := job.Payload["symbol"].(string)

	open := e.openRecordsFor(accountID, intentID)
	if len(open) == 0 {
		return nil
	}

	lock := e.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OperationBudget)
	defer cancel()

	positions, err := e.exec.ScrapePositions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("dispatch: reconcile scrape for %s: %w", accountID, err)
	}

	filled := false
	for _, p := range positions {
		if p.Symbol == symbol && p.Quantity != 0 {
			filled = true
			break
		}
	}

	now := time.Now()
	for _, rec := range open {
		// A record that never reached SUBMITTED cannot be orphaned —
		// nothing was sent. Close it out instead.
		if rec.Phase == domain.RecordPreValidated {
			if err := e.records.Advance(rec.Fingerprint, domain.RecordCancelled, now); err != nil {
				e.log.Warn().Err(err).Str("fingerprint", rec.Fingerprint).Msg("reconcile close-out refused")
			}
			continue
		}

		if filled && (rec.Phase == domain.RecordSubmitted || rec.Phase == domain.RecordAcknowledged) {
			if err := e.records.Advance(rec.Fingerprint, domain.RecordFilled, now); err != nil {
				e.log.Warn().Err(err).Str("fingerprint", rec.Fingerprint).Msg("reconcile promotion refused")
				continue
			}
			e.log.Info().Str("fingerprint", rec.Fingerprint).Str("account_id", accountID).Msg("reconciled submitted order to filled")
			e.bus.Emit(events.OrderRecordPhaseChanged, "dispatch", map[string]interface{}{
				"fingerprint": rec.Fingerprint,
				"account_id":  accountID,
				"phase":       string(domain.RecordFilled),
			})
			continue
		}

		if err := e.records.Advance(rec.Fingerprint, domain.RecordOrphaned, now); err != nil {
			e.log.Warn().Err(err).Str("fingerprint", rec.Fingerprint).Msg("reconcile orphaning refused")
			continue
		}
		e.bus.Emit(events.AlertRaised, "dispatch", map[string]interface{}{
			"kind":       "orphaned_order",
			"account_id": accountID,
			"detail":     fmt.Sprintf("no fill discovered during reconciliation, fingerprint %s", rec.Fingerprint),
		})
	}
	return nil
}

// openRecordsFor returns the account's non-terminal records for an
// intent, children included.
func (e *Engine) openRecordsFor(accountID, intentID string) []domain.OrderRecord {
	var out []domain.OrderRecord
	for _, rec := range e.records.ByIntent(intentID) {
		if rec.AccountID != accountID {
			continue
		}
		if IsTerminal(rec.Phase) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
