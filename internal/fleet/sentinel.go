package fleet

import (
	"context"
	"time"

	"github.com/copytrade/fleet/internal/credentials"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/driver"
	"github.com/copytrade/fleet/internal/events"
)

// sentinelInterval is how often the login sentinel re-verifies page
// status once a Session has reached READY.
const sentinelInterval = 15 * time.Second

// runSentinel periodically re-verifies the page status and re-runs
// authentication if it finds the login form again, returning only
// when the underlying process dies or ctx is cancelled — at which
// point runOnce's caller (Start) decides whether to restart.
func (sup *Supervisor) runSentinel(ctx context.Context, accountID string, cred credentials.Credential, bridge *driver.JSBridge, pid int) error {
	ticker := time.NewTicker(sentinelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !ProcessAlive(pid) {
				sup.bus.Emit(events.SessionCrashed, "sentinel", map[string]interface{}{
					"account_id": accountID,
					"pid":        pid,
				})
				sup.snapshotBeforeCrash(accountID)
				sup.transition(accountID, domain.PhaseCrashed, domain.HealthFailed)
				return errSessionCrashed(accountID)
			}

			var state string
			checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := bridge.Eval(checkCtx, `window.__driver.authState()`, &state)
			cancel()
			if err != nil {
				continue
			}
			if state == "login_form" {
				sup.transition(accountID, domain.PhaseAuthenticating, domain.HealthDegraded)
				sup.log.Warn().Str("account_id", accountID).Msg("sentinel found login form, re-authenticating")
				if err := sup.authenticate(ctx, bridge, cred); err != nil {
					sup.log.Error().Err(err).Str("account_id", accountID).Msg("sentinel re-authentication failed")
					continue
				}
				sup.transition(accountID, domain.PhaseReady, domain.HealthHealthy)
			}
		}
	}
}

func (sup *Supervisor) snapshotBeforeCrash(accountID string) {
	snapshot, ok := sup.registry.Get(accountID)
	if !ok {
		return
	}
	snapshot.Context.UpdatedAt = time.Now()
	if err := sup.recovery.Save(snapshot.Context); err != nil {
		sup.log.Error().Err(err).Str("account_id", accountID).Msg("failed to snapshot trading context before crash")
	}
}

type crashError struct{ accountID string }

func (e *crashError) Error() string { return "fleet: session " + e.accountID + " crashed" }

func errSessionCrashed(accountID string) error { return &crashError{accountID: accountID} }
