package fleet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/copytrade/fleet/internal/credentials"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/driver"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/probe"
	"github.com/rs/zerolog"
)

// SupervisorConfig bounds phase budgets and the Chrome binary/app URL
// every Session launches against.
type SupervisorConfig struct {
	ChromeBinary  string
	AppURL        string
	ProfileRoot   string
	PhaseBudget   time.Duration
	RestartPolicy RestartPolicy
}

// Supervisor owns one goroutine per Session: it launches the browser
// process, drives the LifecyclePhase lattice from INITIAL to READY,
// runs the per-session login sentinel, and restarts on crash while
// preserving the last-known TradingContext.
type Supervisor struct {
	cfg      SupervisorConfig
	registry *Registry
	ports    *PortAllocator
	recovery *RecoveryStore
	bus      *events.Bus
	drivers  *driver.Pool
	log      zerolog.Logger

	mu   sync.Mutex
	cmds map[string]sessionProc
}

type sessionProc struct {
	pid    int
	cancel context.CancelFunc
}

// NewSupervisor wires a Supervisor against a shared registry, port
// allocator, recovery store and driver pool.
func NewSupervisor(cfg SupervisorConfig, registry *Registry, ports *PortAllocator, recovery *RecoveryStore, bus *events.Bus, drivers *driver.Pool, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		ports:    ports,
		recovery: recovery,
		bus:      bus,
		drivers:  drivers,
		log:      log.With().Str("component", "supervisor").Logger(),
		cmds:     make(map[string]sessionProc),
	}
}

// Start launches and supervises a Session for one credential, running
// until ctx is cancelled. It is meant to be called as `go sup.Start(...)`
// once per credential.
func (sup *Supervisor) Start(ctx context.Context, cred credentials.Credential) {
	label := cred.Label()
	logger := sup.log.With().Str("account_id", label).Logger()

	attempt := 0
	for {
		attempt++
		if err := sup.runOnce(ctx, cred); err != nil {
			logger.Warn().Err(err).Int("attempt", attempt).Msg("session run ended")
		}

		if ctx.Err() != nil {
			return
		}

		if attempt >= sup.cfg.RestartPolicy.MaxAttempts {
			sup.transition(label, domain.PhaseRetired, domain.HealthFailed)
			sup.bus.Emit(events.SessionRetired, "supervisor", map[string]interface{}{
				"account_id":    label,
				"restart_count": attempt,
			})
			logger.Error().Int("attempts", attempt).Msg("restart budget exhausted, session retired")
			return
		}

		backoff := sup.cfg.RestartPolicy.Backoff(attempt)
		logger.Info().Dur("backoff", backoff).Msg("restarting session")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// runOnce drives one full attempt: launch, reach READY, then run the
// login sentinel until the process dies or ctx is cancelled.
func (sup *Supervisor) runOnce(ctx context.Context, cred credentials.Credential) error {
	label := cred.Label()

	primaryPort, backupPort := sup.ports.Allocate()
	defer sup.ports.Release(primaryPort, backupPort)

	profileDir := fmt.Sprintf("%s/%s-%d", sup.cfg.ProfileRoot, label, time.Now().UnixNano())

	session, err := NewSession(cred, profileDir, primaryPort, backupPort, sup.recovery)
	if err != nil {
		return fmt.Errorf("fleet: build session: %w", err)
	}
	sup.registry.Register(session)

	sup.transition(label, domain.PhaseLaunching, domain.HealthUnknown)
	cmd, err := LaunchChrome(sup.cfg.ChromeBinary, primaryPort, profileDir, sup.cfg.AppURL)
	if err != nil {
		return fmt.Errorf("fleet: launch: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	sup.mu.Lock()
	sup.cmds[label] = sessionProc{pid: cmd.Process.Pid, cancel: cancel}
	sup.mu.Unlock()

	_ = sup.registry.Update(label, func(s *domain.Session) {
		s.PID = cmd.Process.Pid
		s.LaunchedAt = time.Now()
	})

	if err := sup.waitConnecting(runCtx, primaryPort); err != nil {
		return err
	}
	sup.transition(label, domain.PhaseConnecting, domain.HealthUnknown)
	sup.transition(label, domain.PhaseLoading, domain.HealthUnknown)

	wsURL, err := sup.discoverTarget(runCtx, primaryPort)
	if err != nil {
		return err
	}

	sup.transition(label, domain.PhaseAuthenticating, domain.HealthUnknown)
	bridge, cancelBridge, err := sup.drivers.Attach(runCtx, label, wsURL)
	if err != nil {
		return fmt.Errorf("fleet: attach driver: %w", err)
	}
	defer cancelBridge()

	if err := driver.Inject(runCtx, bridge); err != nil {
		return err
	}

	if err := sup.authenticate(runCtx, bridge, cred); err != nil {
		return err
	}

	if err := driver.VerifyABI(runCtx, bridge); err != nil {
		return fmt.Errorf("fleet: driver abi verification: %w", err)
	}

	if err := sup.restoreContext(runCtx, bridge, session.Context); err != nil {
		sup.log.Warn().Err(err).Str("account_id", label).Msg("context restore failed, continuing")
	}

	sup.transition(label, domain.PhaseReady, domain.HealthHealthy)
	_ = sup.registry.Update(label, func(s *domain.Session) {
		s.LastReadyAt = time.Now()
	})

	return sup.runSentinel(runCtx, label, cred, bridge, cmd.Process.Pid)
}

func (sup *Supervisor) waitConnecting(ctx context.Context, port int) error {
	deadline := time.Now().Add(sup.cfg.PhaseBudget)
	for {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		res := probe.ProbeHTTP(checkCtx, port)
		cancel()
		if res.OK {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fleet: debug endpoint never came up on port %d", port)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (sup *Supervisor) discoverTarget(ctx context.Context, port int) (string, error) {
	checkCtx, cancel := context.WithTimeout(ctx, sup.cfg.PhaseBudget)
	defer cancel()
	res := probe.ProbeHTTP(checkCtx, port)
	if !res.OK {
		return "", fmt.Errorf("fleet: no page target discovered: %w", res.Err)
	}
	return res.Detail, nil
}

// authenticate performs credential replay. The exact DOM classification
// of login-form vs account-chooser vs already-authenticated is a
// Driver-level concern exposed through the injected resident script;
// here the Supervisor just drives the retry loop around it.
func (sup *Supervisor) authenticate(ctx context.Context, bridge *driver.JSBridge, cred credentials.Credential) error {
	deadline := time.Now().Add(sup.cfg.PhaseBudget)
	for {
		var state string
		authCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := bridge.Eval(authCtx, `window.__driver.authState()`, &state)
		cancel()
		if err == nil && state == "authenticated" {
			return nil
		}
		if err == nil && state == "login_form" {
			loginCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			expr := fmt.Sprintf(`window.__driver.login(%q, %q)`, cred.Identity, cred.Secret)
			_ = bridge.Eval(loginCtx, expr, nil)
			cancel()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("fleet: authentication did not complete within budget")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (sup *Supervisor) restoreContext(ctx context.Context, bridge *driver.JSBridge, tc domain.TradingContext) error {
	if tc.Symbol == "" {
		return nil
	}
	restoreCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	expr := fmt.Sprintf(`window.__driver.restoreTicket(%q, %f, %d, %d)`, tc.Symbol, tc.Quantity, tc.TakeProfitTicks, tc.StopLossTicks)
	return bridge.Eval(restoreCtx, expr, nil)
}

// RequestRestart cancels the running session's goroutine so Start's
// restart loop picks it back up, satisfying health.RestartRequester
// for the recovery ladder's last-resort step.
func (sup *Supervisor) RequestRestart(accountID string) error {
	sup.mu.Lock()
	proc, ok := sup.cmds[accountID]
	sup.mu.Unlock()
	if !ok {
		return fmt.Errorf("fleet: no running process for %s to restart", accountID)
	}
	proc.cancel()
	return nil
}

func (sup *Supervisor) transition(accountID string, phase domain.LifecyclePhase, health domain.HealthState) {
	var from domain.LifecyclePhase
	_ = sup.registry.Update(accountID, func(s *domain.Session) {
		from = s.Phase
		s.Phase = phase
		s.Health = health
	})
	sup.bus.Emit(events.SessionPhaseChanged, "supervisor", map[string]interface{}{
		"account_id": accountID,
		"from":       string(from),
		"to":         string(phase),
	})
}
