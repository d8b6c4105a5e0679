package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/copytrade/fleet/internal/domain"
)

// orderState is one stage of the submitOrder state machine. All
// stages share a per-operation deadline budget. Every stage runs in
// every governor mode except VERIFY_PRICE and POST_VALIDATE's
// error-banner scan, which run only while the governor is OPTIMAL.
type orderState int

const (
	statePreValidate orderState = iota
	stateSelectType
	stateOpenDropdown
	statePickOption
	stateWritePrice
	stateVerifyPrice
	stateSubmit
	statePostValidate
	stateDone
)

func (s orderState) String() string {
	switch s {
	case statePreValidate:
		return "PRE_VALIDATE"
	case stateSelectType:
		return "SELECT_TYPE"
	case stateOpenDropdown:
		return "OPEN_DROPDOWN"
	case statePickOption:
		return "PICK_OPTION"
	case stateWritePrice:
		return "WRITE_PRICE"
	case stateVerifyPrice:
		return "VERIFY_PRICE"
	case stateSubmit:
		return "SUBMIT"
	case statePostValidate:
		return "POST_VALIDATE"
	default:
		return "DONE"
	}
}

// StageError carries which stage of the submitOrder machine failed,
// so callers can distinguish "never reached the exchange" failures
// (PRE_VALIDATE) from "submitted but unacknowledged" (POST_VALIDATE).
type StageError struct {
	Stage orderState
	Kind  domain.ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("driver: stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// submitOrderRun drives one pass of the order-submission FSM against
// bridge for intent, returning a populated OrderRecord. Stage deadlines
// and the governor come from the Driver, so the machine can skip
// non-essential checks under DEGRADED/CRITICAL.
func (d *Driver) submitOrderRun(ctx context.Context, bridge Bridge, intent domain.OrderIntent, fingerprint string) (*domain.OrderRecord, error) {
	record := &domain.OrderRecord{
		Fingerprint:    fingerprint,
		IntentID:       intent.ID,
		Phase:          domain.RecordPreValidated,
		RequestedPrice: intent.LimitPrice,
	}
	started := time.Now()
	record.RecordPhase(domain.RecordPreValidated, started)
	defer func() {
		d.governor.Record(time.Since(started))
	}()

	mode := d.governor.Mode()

	if err := d.preValidate(ctx, bridge, intent); err != nil {
		kind := classifyStageErr(err)
		if pte, ok := err.(*pageTextError); ok {
			kind = d.classifier.Classify(pte.text)
			record.RejectionReason = pte.text
			record.RecordPhase(domain.RecordRejected, time.Now())
		}
		record.ErrorKind = kind
		return record, &StageError{Stage: statePreValidate, Kind: kind, Err: err}
	}

	if err := d.selectOrderType(ctx, bridge, intent); err != nil {
		record.ErrorKind = classifyStageErr(err)
		return record, &StageError{Stage: stateSelectType, Kind: record.ErrorKind, Err: err}
	}

	if intent.OrderType != "MARKET" {
		if err := d.writePrice(ctx, bridge, intent); err != nil {
			record.ErrorKind = classifyStageErr(err)
			return record, &StageError{Stage: stateWritePrice, Kind: record.ErrorKind, Err: err}
		}
		if mode == ModeOptimal {
			if err := d.verifyPrice(ctx, bridge, intent); err != nil {
				record.ErrorKind = classifyStageErr(err)
				return record, &StageError{Stage: stateVerifyPrice, Kind: record.ErrorKind, Err: err}
			}
		}
	}

	record.SubmittedAt = time.Now()
	record.RecordPhase(domain.RecordSubmitted, record.SubmittedAt)
	if err := d.submit(ctx, bridge); err != nil {
		record.ErrorKind = classifyStageErr(err)
		return record, &StageError{Stage: stateSubmit, Kind: record.ErrorKind, Err: err}
	}

	ackd, errText, err := d.postValidate(ctx, bridge)
	if err != nil {
		record.ErrorKind = classifyStageErr(err)
		return record, &StageError{Stage: statePostValidate, Kind: record.ErrorKind, Err: err}
	}
	if errText != "" {
		record.ErrorKind = d.classifier.Classify(errText)
		record.RecordPhase(domain.RecordRejected, time.Now())
		record.RejectionReason = errText
		return record, &StageError{Stage: statePostValidate, Kind: record.ErrorKind, Err: fmt.Errorf("%s", errText)}
	}
	if !ackd {
		// Looked successful but no acknowledgment surfaced within the
		// budget: this is the silent-failure case, not a clean submit.
		record.RecordPhase(domain.RecordOrphaned, time.Now())
		return record, &StageError{Stage: statePostValidate, Kind: domain.ErrValidationTimeout, Err: fmt.Errorf("no acknowledgment observed")}
	}

	record.RecordPhase(domain.RecordAcknowledged, time.Now())

	if fill := d.readFill(ctx, bridge); fill != nil {
		record.Fills = append(record.Fills, *fill)
		record.FirstFillAt = fill.Timestamp
		record.AverageFillPrice = fill.Price
		if intent.LimitPrice != 0 {
			record.Slippage = fill.Price - intent.LimitPrice
		}
	}

	record.RecordPhase(domain.RecordFilled, time.Now())

	return record, nil
}

// classifyStageErr assigns a default ErrorKind for failures raised by
// the FSM itself (missing elements, deadline overruns) as opposed to
// page-text-driven classification, which goes through d.classifier.
func classifyStageErr(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrUnknown
	}
	if dl, ok := err.(interface{ Timeout() bool }); ok && dl.Timeout() {
		return domain.ErrValidationTimeout
	}
	return domain.ErrDOMElementMissing
}
