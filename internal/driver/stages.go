package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/copytrade/fleet/internal/domain"
)

// pageTextError carries error text observed on the page, so the
// caller can run it through the pluggable Classifier instead of
// falling back to the structural taxonomy.
type pageTextError struct{ text string }

func (e *pageTextError) Error() string { return "driver: page reported: " + e.text }

// preValidateResult is what the resident script's preValidate returns:
// a verdict plus the blocking banner's text when one is present.
type preValidateResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// preValidate evaluates the DOM Intelligence predicate: required
// inputs present, quantity within instrument bounds, no blocking
// modal, no stale "insufficient funds" banner.
func (d *Driver) preValidate(ctx context.Context, bridge Bridge, intent domain.OrderIntent) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var res preValidateResult
	expr := fmt.Sprintf(`window.__driver.preValidate(%q, %f)`, intent.Symbol, intent.Quantity)
	if err := bridge.Eval(stageCtx, expr, &res); err != nil {
		return fmt.Errorf("driver: preValidate: %w", err)
	}
	if !res.OK {
		if res.Reason != "" {
			return &pageTextError{text: res.Reason}
		}
		return fmt.Errorf("driver: preValidate: ticket not ready")
	}
	return nil
}

// selectOrderType opens the order-type dropdown and picks the option
// matching intent.OrderType.
func (d *Driver) selectOrderType(ctx context.Context, bridge Bridge, intent domain.OrderIntent) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var opened bool
	if err := bridge.Eval(stageCtx, `window.__driver.ticket.openTypeDropdown()`, &opened); err != nil {
		return fmt.Errorf("driver: openDropdown: %w", err)
	}
	if !opened {
		return fmt.Errorf("driver: openDropdown: dropdown did not open")
	}

	var picked bool
	expr := fmt.Sprintf(`window.__driver.ticket.pickType(%q)`, intent.OrderType)
	if err := bridge.Eval(stageCtx, expr, &picked); err != nil {
		return fmt.Errorf("driver: pickOption: %w", err)
	}
	if !picked {
		return fmt.Errorf("driver: pickOption: option %q not found", intent.OrderType)
	}
	return nil
}

// writePrice programs the limit/stop price input with a write-verify
// loop.
func (d *Driver) writePrice(ctx context.Context, bridge Bridge, intent domain.OrderIntent) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	want := formatFloat(intent.LimitPrice)
	setExpr := fmt.Sprintf(`window.__driver.ticket.setPrice(%q)`, want)
	readExpr := `window.__driver.ticket.readPrice()`
	return bridge.WriteVerify(stageCtx, setExpr, readExpr, want, d.cfg.WriteRetries, d.cfg.WriteBackoff)
}

// verifyPrice re-reads the price field once more immediately before
// submit, catching a UI-side reformat/reset that write-verify's
// earlier pass would not have seen.
func (d *Driver) verifyPrice(ctx context.Context, bridge Bridge, intent domain.OrderIntent) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var got string
	if err := bridge.Eval(stageCtx, `window.__driver.ticket.readPrice()`, &got); err != nil {
		return fmt.Errorf("driver: verifyPrice: %w", err)
	}
	want := formatFloat(intent.LimitPrice)
	if got != want {
		return fmt.Errorf("driver: verifyPrice: mismatch got %q want %q", got, want)
	}
	return nil
}

// submit clicks the submit control, tolerating the transient disabled
// state with a bounded poll.
func (d *Driver) submit(ctx context.Context, bridge Bridge) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()

	deadline := time.Now().Add(d.cfg.StageDeadline)
	for {
		var clicked bool
		if err := bridge.Eval(stageCtx, `window.__driver.ticket.clickSubmit()`, &clicked); err != nil {
			return fmt.Errorf("driver: submit: %w", err)
		}
		if clicked {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("driver: submit: control remained disabled past deadline")
		}
		select {
		case <-stageCtx.Done():
			return fmt.Errorf("driver: submit: %w", stageCtx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// fillReadback is what the resident script reports about the fill
// attached to the acknowledgment toast.
type fillReadback struct {
	Px  float64 `json:"px"`
	Qty float64 `json:"qty"`
}

// readFill reads the acknowledged fill's price and size off the page.
// Best-effort: a missing or unparseable toast yields no fill detail,
// not a failed submission.
func (d *Driver) readFill(ctx context.Context, bridge Bridge) *domain.Fill {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var fb fillReadback
	if err := bridge.Eval(stageCtx, `window.__driver.ticket.lastFill()`, &fb); err != nil {
		return nil
	}
	if fb.Qty == 0 {
		return nil
	}
	return &domain.Fill{Timestamp: time.Now(), Price: fb.Px, Quantity: fb.Qty}
}

// postValidate scans for known error strings after submit. Returning
// ackd=false with errText="" means the submit looked clean but no
// acknowledgment or error text surfaced within the budget — the
// silent-failure case the caller turns into ORPHANED.
func (d *Driver) postValidate(ctx context.Context, bridge Bridge) (ackd bool, errText string, err error) {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()

	if d.governor.ShouldRunDeepChecks() {
		if scanErr := bridge.Eval(stageCtx, `window.__driver.ticket.scanErrorBanner()`, &errText); scanErr != nil {
			return false, "", fmt.Errorf("driver: postValidate scan: %w", scanErr)
		}
		if errText != "" {
			return false, errText, nil
		}
	}

	if scanErr := bridge.Eval(stageCtx, `window.__driver.ticket.acknowledged()`, &ackd); scanErr != nil {
		return false, "", fmt.Errorf("driver: postValidate ack: %w", scanErr)
	}
	return ackd, "", nil
}
