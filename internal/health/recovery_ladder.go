package health

import (
	"context"
	"fmt"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/driver"
)

// LadderStep is one rung of the recovery ladder, attempted in order
// until one succeeds or the ladder is exhausted.
type LadderStep string

const (
	StepResetBridge    LadderStep = "reset_bridge"
	StepReinjectDriver LadderStep = "reinject_driver"
	StepReauthenticate LadderStep = "reauthenticate"
	StepFailoverBackup LadderStep = "failover_backup"
	StepRequestRestart LadderStep = "request_restart"
)

// RestartRequester lets the ladder ask the Supervisor to restart a
// Session once every channel-level remedy has failed, without the
// health package importing the fleet package.
type RestartRequester interface {
	RequestRestart(accountID string) error
}

// Ladder runs the recovery strategy for one degraded/failed channel:
// reset bridge -> re-inject driver -> re-authenticate -> failover to
// backup -> request a Supervisor restart, verifying with a probe after
// each attempt.
type Ladder struct {
	pool       *driver.Pool
	supervisor RestartRequester
	verify     func(ctx context.Context, accountID string) bool
}

// NewLadder builds a Ladder. verify should run a bounded ProbeRuntime
// (or equivalent) check against the account's current channel.
func NewLadder(pool *driver.Pool, supervisor RestartRequester, verify func(ctx context.Context, accountID string) bool) *Ladder {
	return &Ladder{pool: pool, supervisor: supervisor, verify: verify}
}

// Run attempts each step in order against accountID's primary/backup
// wsURLs, stopping as soon as a verification probe passes.
func (l *Ladder) Run(ctx context.Context, accountID, primaryWS, backupWS string) (LadderStep, error) {
	steps := []struct {
		step LadderStep
		do   func(context.Context) error
	}{
		{StepResetBridge, func(c context.Context) error { return l.resetBridge(c, accountID, primaryWS) }},
		{StepReinjectDriver, func(c context.Context) error { return l.reinjectDriver(c, accountID) }},
		{StepReauthenticate, func(c context.Context) error { return l.reauthenticate(c, accountID) }},
		{StepFailoverBackup, func(c context.Context) error { return l.failoverBackup(c, accountID, backupWS) }},
		{StepRequestRestart, func(c context.Context) error { return l.supervisor.RequestRestart(accountID) }},
	}

	for _, s := range steps {
		stepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.do(stepCtx)
		cancel()
		if err != nil {
			continue
		}
		if l.verify(ctx, accountID) {
			return s.step, nil
		}
	}
	return StepRequestRestart, fmt.Errorf("health: recovery ladder exhausted for %s", accountID)
}

func (l *Ladder) resetBridge(ctx context.Context, accountID, wsURL string) error {
	if wsURL == "" {
		return fmt.Errorf("health: no websocket url to reset bridge against")
	}
	_, _, err := l.pool.Attach(ctx, accountID, wsURL)
	return err
}

func (l *Ladder) reinjectDriver(ctx context.Context, accountID string) error {
	bridge, ok := l.pool.Get(accountID)
	if !ok {
		return fmt.Errorf("health: no bridge to re-inject driver into")
	}
	return bridge.Eval(ctx, `window.__driver && window.__driver.reinject && window.__driver.reinject()`, nil)
}

func (l *Ladder) reauthenticate(ctx context.Context, accountID string) error {
	bridge, ok := l.pool.Get(accountID)
	if !ok {
		return fmt.Errorf("health: no bridge to reauthenticate")
	}
	var state string
	if err := bridge.Eval(ctx, `window.__driver.authState()`, &state); err != nil {
		return err
	}
	if state != "authenticated" {
		return fmt.Errorf("health: reauthentication did not converge, state=%s", state)
	}
	return nil
}

func (l *Ladder) failoverBackup(ctx context.Context, accountID, backupWS string) error {
	if backupWS == "" {
		return fmt.Errorf("health: no backup channel configured")
	}
	_, _, err := l.pool.Attach(ctx, accountID, backupWS)
	return err
}

// SyncContext copies the trading context from a reachable primary, or
// falls back to the on-disk recovery snapshot, after a failover.
func SyncContext(live *domain.TradingContext, onDisk domain.TradingContext) domain.TradingContext {
	if live != nil {
		return *live
	}
	return onDisk
}
