package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/queue"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

// EligibleSource is the engine's read-only view of the fleet registry:
// which accounts may receive intents right now. The Health Monitor is
// the only writer of the state this view derives from, so consulting
// it immediately before fan-out is the gate the monitor controls.
type EligibleSource interface {
	Eligible() []string
	Get(accountID string) (domain.Session, bool)
}

// Config bounds the engine's per-session execution deadline and the
// delay before the reconciliation pass inspects a non-terminal record.
type Config struct {
	OperationBudget time.Duration
	Grace           time.Duration
	ReconcileDelay  time.Duration
}

// DefaultConfig gives each per-session execution the operation budget
// plus two seconds of grace, and reconciles ten seconds after submit.
func DefaultConfig() Config {
	return Config{
		OperationBudget: 10 * time.Second,
		Grace:           2 * time.Second,
		ReconcileDelay:  10 * time.Second,
	}
}

// AccountOutcome is one account's result for one intent.
type AccountOutcome struct {
	Account     string                  `json:"account"`
	Phase       domain.OrderRecordPhase `json:"phase"`
	Fingerprint string                  `json:"fingerprint,omitempty"`
	Reason      string                  `json:"reason,omitempty"`
}

// Result is the aggregate verdict returned to the intent producer.
type Result struct {
	Aggregate  domain.DispatchOutcome `json:"aggregate"`
	PerAccount []AccountOutcome       `json:"per_account"`
}

// pendingOp carries one (session, intent) execution from Dispatch to
// the queue handler and back. Jobs reference pending operations by ID
// instead of marshaling intents into payload maps.
type pendingOp struct {
	accountID string
	intent    domain.OrderIntent
	done      chan AccountOutcome
}

// ContextRecorder persists an account's last-known trading context
// after every executed intent, keeping the on-disk snapshot at most
// one intent behind live state. Nil disables recording (tests).
type ContextRecorder interface {
	RecordIntent(accountID string, intent domain.OrderIntent, inFlight []string)
}

// Engine is the Order Dispatch & Validation Engine.
type Engine struct {
	cfg      Config
	sessions EligibleSource
	exec     Executor
	records  *Store
	bus      *events.Bus
	jobs     *queue.Manager
	recorder ContextRecorder
	log      zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingOp
	// sessionLocks serializes operations per session: one in-flight
	// operation per account at any time, regardless of how many queue
	// workers are draining jobs.
	sessionLocks map[string]*sync.Mutex
}

// NewEngine wires the engine against the fleet registry view, an
// executor, the shared record store, the event bus and the job queue.
func NewEngine(cfg Config, sessions EligibleSource, exec Executor, records *Store, bus *events.Bus, jobs *queue.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		sessions:     sessions,
		exec:         exec,
		records:      records,
		bus:          bus,
		jobs:         jobs,
		log:          log.With().Str("component", "dispatch").Logger(),
		pending:      make(map[string]*pendingOp),
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// Records exposes the engine's record store for reconciliation and the
// dashboard's order views.
func (e *Engine) Records() *Store { return e.records }

// SetContextRecorder attaches the trading-context persistence hook.
func (e *Engine) SetContextRecorder(r ContextRecorder) { e.recorder = r }

func (e *Engine) lockFor(accountID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.sessionLocks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.sessionLocks[accountID] = l
	}
	return l
}

// Dispatch validates intent, fans it out to every eligible session (or
// the one named account), waits for all per-session executions up to
// the budget plus grace, and returns the aggregated result. Copy-trade
// semantics are unconditional: no strategy excludes a healthy account.
func (e *Engine) Dispatch(ctx context.Context, intent domain.OrderIntent) (*Result, error) {
	if err := ValidateIntent(intent); err != nil {
		return &Result{Aggregate: domain.OutcomeFailure}, err
	}
	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}
	if intent.ReceivedAt.IsZero() {
		intent.ReceivedAt = time.Now()
	}

	targets, err := e.resolveTargets(intent)
	if err != nil {
		return &Result{Aggregate: domain.OutcomeFailure}, err
	}

	e.log.Info().
		Str("intent_id", intent.ID).
		Str("symbol", intent.Symbol).
		Str("side", intent.Side).
		Float64("quantity", intent.Quantity).
		Int("accounts", len(targets)).
		Msg("fanning out intent")

	deadline := e.cfg.OperationBudget + e.cfg.Grace
	outcomes := make([]AccountOutcome, 0, len(targets))
	waits := make([]*pendingOp, 0, len(targets))

	for _, accountID := range targets {
		op := &pendingOp{
			accountID: accountID,
			intent:    intent,
			done:      make(chan AccountOutcome, 1),
		}
		opID := uuid.New().String()
		e.mu.Lock()
		e.pending[opID] = op
		e.mu.Unlock()

		job := &queue.Job{
			ID:          opID,
			Type:        jobTypeFor(intent),
			Priority:    queue.PriorityCritical,
			Payload:     map[string]interface{}{"op_id": opID, "account_id": accountID, "intent_id": intent.ID},
			CreatedAt:   time.Now(),
			AvailableAt: time.Now(),
			MaxRetries:  0,
		}
		if err := e.jobs.Enqueue(job); err != nil {
			e.mu.Lock()
			delete(e.pending, opID)
			e.mu.Unlock()
			outcomes = append(outcomes, AccountOutcome{
				Account: accountID,
				Phase:   domain.RecordRejected,
				Reason:  fmt.Sprintf("enqueue failed: %v", err),
			})
			continue
		}
		waits = append(waits, op)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	for _, op := range waits {
		select {
		case out := <-op.done:
			outcomes = append(outcomes, out)
		case <-timer.C:
			outcomes = append(outcomes, AccountOutcome{
				Account: op.accountID,
				Phase:   domain.RecordOrphaned,
				Reason:  "no result within budget",
			})
			e.scheduleReconcile(op.accountID, intent)
		case <-ctx.Done():
			outcomes = append(outcomes, AccountOutcome{
				Account: op.accountID,
				Phase:   domain.RecordCancelled,
				Reason:  "dispatch cancelled",
			})
		}
	}

	result, aggErr := aggregate(outcomes)
	if aggErr != nil {
		e.log.Warn().Err(aggErr).Str("intent_id", intent.ID).Str("aggregate", string(result.Aggregate)).Msg("per-account failures during fan-out")
	}
	e.bus.Emit(events.DispatchCompleted, "dispatch", map[string]interface{}{
		"intent_id": intent.ID,
		"outcome":   string(result.Aggregate),
	})
	return result, nil
}

// resolveTargets maps the intent's account selector onto the eligible
// set. A named account must itself be eligible; "all" (or empty) takes
// the whole set. An empty eligible set is a failure, not a no-op.
func (e *Engine) resolveTargets(intent domain.OrderIntent) ([]string, error) {
	eligible := e.sessions.Eligible()
	if intent.Account == "" || intent.Account == domain.AccountAll {
		if len(eligible) == 0 {
			return nil, fmt.Errorf("dispatch: no eligible sessions")
		}
		return eligible, nil
	}
	for _, id := range eligible {
		if id == intent.Account {
			return []string{id}, nil
		}
	}
	if s, ok := e.sessions.Get(intent.Account); ok {
		return nil, fmt.Errorf("dispatch: account %s not eligible (phase=%s health=%s)", intent.Account, s.Phase, s.Health)
	}
	return nil, fmt.Errorf("dispatch: unknown account %s", intent.Account)
}

func jobTypeFor(intent domain.OrderIntent) queue.JobType {
	switch {
	case intent.ScaleLevels > 1:
		return queue.JobTypeSubmitOrder
	case intent.Bracket:
		return queue.JobTypeSubmitBracket
	default:
		return queue.JobTypeSubmitOrder
	}
}

// aggregate folds per-account outcomes into the intent verdict:
// SUCCESS iff every account landed terminal-successful, PARTIAL if at
// least one did, FAILURE if none did. The returned error collects
// every per-account failure without losing which account it was.
func aggregate(outcomes []AccountOutcome) (*Result, error) {
	succeeded := 0
	var errs *multierror.Error
	for _, out := range outcomes {
		switch out.Phase {
		case domain.RecordFilled:
			succeeded++
		default:
			errs = multierror.Append(errs, fmt.Errorf("%s: %s (%s)", out.Account, out.Phase, out.Reason))
		}
	}

	result := &Result{PerAccount: outcomes}
	switch {
	case len(outcomes) == 0 || succeeded == 0:
		result.Aggregate = domain.OutcomeFailure
	case succeeded == len(outcomes):
		result.Aggregate = domain.OutcomeSuccess
	default:
		result.Aggregate = domain.OutcomePartial
	}
	return result, errs.ErrorOrNil()
}
