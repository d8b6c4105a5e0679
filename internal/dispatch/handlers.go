package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/driver"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/queue"
)

// RegisterHandlers binds the engine's execution paths into the job
// registry the worker pool drains. Submission jobs carry no retry of
// their own: the retry-vs-surface decision belongs to the error
// taxonomy, and the reconciliation job covers the ambiguous cases.
func RegisterHandlers(registry *queue.Registry, e *Engine) {
	registry.Register(queue.JobTypeSubmitOrder, e.handleSubmission)
	registry.Register(queue.JobTypeSubmitBracket, e.handleSubmission)
	registry.Register(queue.JobTypeExitPosition, e.handleExit)
	registry.Register(queue.JobTypeReconcile, e.handleReconcile)
}

// handleSubmission executes one (session, intent) pair under the
// session's lock, records the outcome, and signals the waiting
// Dispatch call.
func (e *Engine) handleSubmission(job *queue.Job) error {
	opID, _ := job.Payload["op_id"].(string)
	e.mu.Lock()
	op, ok := e.pending[opID]
	delete(e.pending, opID)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("dispatch: no pending operation %s", opID)
	}

	outcome := e.execute(op.accountID, op.intent)

	if e.recorder != nil {
		e.recorder.RecordIntent(op.accountID, op.intent, e.records.OpenFingerprints(op.accountID))
	}

	op.done <- outcome
	return nil
}

// execute runs the driver operation for one account with the
// per-session lock held and the per-session deadline applied.
func (e *Engine) execute(accountID string, intent domain.OrderIntent) AccountOutcome {
	lock := e.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OperationBudget)
	defer cancel()

	var (
		parent   *domain.OrderRecord
		children []*domain.OrderRecord
		err      error
	)
	switch {
	case intent.ScaleLevels > 1:
		var recs []*domain.OrderRecord
		recs, err = e.exec.SubmitScaleIn(ctx, accountID, intent)
		if len(recs) > 0 {
			parent = recs[0]
			children = recs[1:]
		}
	case intent.Bracket:
		parent, children, err = e.exec.SubmitBracket(ctx, accountID, intent)
	default:
		parent, err = e.exec.SubmitOrder(ctx, accountID, intent)
	}

	e.storeRecords(parent, children)

	if parent == nil {
		reason := "no record produced"
		if err != nil {
			reason = err.Error()
		}
		return AccountOutcome{Account: accountID, Phase: domain.RecordRejected, Reason: reason}
	}

	outcome := AccountOutcome{
		Account:     accountID,
		Phase:       parent.Phase,
		Fingerprint: parent.Fingerprint,
	}
	if err != nil {
		outcome.Reason = rejectionReason(parent, err)
		if parent.Phase == domain.RecordOrphaned || parent.Phase == domain.RecordSubmitted {
			e.raiseOrphanAlert(accountID, parent)
			e.scheduleReconcile(accountID, intent)
		}
	}
	return outcome
}

func rejectionReason(rec *domain.OrderRecord, err error) string {
	if rec.RejectionReason != "" {
		return rec.RejectionReason
	}
	var stageErr *driver.StageError
	if errors.As(err, &stageErr) {
		return string(stageErr.Kind)
	}
	return err.Error()
}

// storeRecords persists every materialized record and emits a phase
// event for each, so the dashboard stream sees children as well as
// parents.
func (e *Engine) storeRecords(parent *domain.OrderRecord, children []*domain.OrderRecord) {
	all := make([]*domain.OrderRecord, 0, 1+len(children))
	if parent != nil {
		all = append(all, parent)
	}
	for _, c := range children {
		if c != nil {
			all = append(all, c)
		}
	}
	for _, rec := range all {
		if err := e.records.Put(rec); err != nil {
			e.log.Error().Err(err).Str("fingerprint", rec.Fingerprint).Msg("failed to store order record")
			continue
		}
		e.bus.Emit(events.OrderRecordPhaseChanged, "dispatch", map[string]interface{}{
			"fingerprint": rec.Fingerprint,
			"account_id":  rec.AccountID,
			"phase":       string(rec.Phase),
		})
	}
}

func (e *Engine) raiseOrphanAlert(accountID string, rec *domain.OrderRecord) {
	e.bus.Emit(events.AlertRaised, "dispatch", map[string]interface{}{
		"kind":       "orphaned_order",
		"account_id": accountID,
		"detail":     fmt.Sprintf("submit without acknowledgment, fingerprint %s", rec.Fingerprint),
	})
}

// handleExit drives one ExitPosition call. Exit jobs come from the
// dashboard's flatten controls, not from intent fan-out, so there is
// no pending operation to signal.
func (e *Engine) handleExit(job *queue.Job) error {
	accountID, _ := job.Payload["account_id"].(string)
	symbol, _ := job.Payload["symbol"].(string)
	option, _ := job.Payload["exit_option"].(string)
	if option == "" {
		option = "close_all"
	}

	lock := e.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.OperationBudget)
	defer cancel()
	return e.exec.ExitPosition(ctx, accountID, symbol, option)
}

// ExitAll enqueues an exit job for every eligible session.
func (e *Engine) ExitAll(symbol, exitOption string) error {
	var errs error
	for _, accountID := range e.sessions.Eligible() {
		job := &queue.Job{
			ID:          fmt.Sprintf("exit-%s-%d", accountID, time.Now().UnixNano()),
			Type:        queue.JobTypeExitPosition,
			Priority:    queue.PriorityCritical,
			Payload:     map[string]interface{}{"account_id": accountID, "symbol": symbol, "exit_option": exitOption},
			CreatedAt:   time.Now(),
			AvailableAt: time.Now(),
			MaxRetries:  1,
		}
		if err := e.jobs.Enqueue(job); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
