package driver

import (
	"context"
	"fmt"

	"github.com/copytrade/fleet/internal/domain"
)

// Fault names one failure the in-page error simulator can arm. The
// resident script intercepts the next matching operation and fakes the
// failure, which is how silent-failure detection and rejection-surface
// behavior get exercised against a live page.
type Fault string

const (
	// FaultSilentSubmit makes the next submit click succeed without
	// ever raising an acknowledgment or error banner.
	FaultSilentSubmit Fault = "silent_submit"
	// FaultInsufficientFunds makes the next PRE_VALIDATE report the
	// funds banner text.
	FaultInsufficientFunds Fault = "insufficient_funds"
	// FaultMarketClosed injects the market-closed rejection text.
	FaultMarketClosed Fault = "market_closed"
	// FaultSlowTicket can be armed like any other fault, but the
	// resident script has no handling for it: no ticket interaction is
	// delayed while it is armed.
	FaultSlowTicket Fault = "slow_ticket"
)

// InjectFault arms one fault in the page's error simulator. The
// resident script always carries the simulator; the call fails only
// when the page has no errorSim object (e.g. the script was never
// injected).
func (d *Driver) InjectFault(ctx context.Context, bridge Bridge, fault Fault) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var armed bool
	expr := fmt.Sprintf(`window.__driver.errorSim && window.__driver.errorSim.arm(%q)`, string(fault))
	if err := bridge.Eval(stageCtx, expr, &armed); err != nil {
		return fmt.Errorf("driver: inject fault: %w", err)
	}
	if !armed {
		return fmt.Errorf("driver: error simulator not present in this session")
	}
	return nil
}

// ClearFaults disarms every armed fault.
func (d *Driver) ClearFaults(ctx context.Context, bridge Bridge) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	return bridge.Eval(stageCtx, `window.__driver.errorSim && window.__driver.errorSim.clear()`, nil)
}

// RecoveryHint maps an ErrorKind to what the caller should do about
// it: retry the operation, surface it to the operator, or abort the
// session's participation in this intent.
type RecoveryHint string

const (
	HintRetry   RecoveryHint = "retry"
	HintSurface RecoveryHint = "surface"
	HintAbort   RecoveryHint = "abort"
)

// HintFor returns the recovery hint for kind. Funds, market-closed and
// order rejections are surfaced without retry; connection and
// validation timeouts are retryable; everything else aborts this
// account's attempt.
func HintFor(kind domain.ErrorKind) RecoveryHint {
	switch kind {
	case domain.ErrInsufficientFunds, domain.ErrMarketClosed, domain.ErrOrderRejection:
		return HintSurface
	case domain.ErrConnectionTimeout, domain.ErrValidationTimeout:
		return HintRetry
	default:
		return HintAbort
	}
}
