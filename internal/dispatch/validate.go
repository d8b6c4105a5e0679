// Package dispatch implements the Order Dispatch & Validation Engine:
// structural intent validation, eligibility resolution, parallel
// fan-out across healthy sessions through the job queue, per-account
// outcome aggregation, and the post-deadline reconciliation pass.
package dispatch

import (
	"fmt"
	"math"

	"github.com/copytrade/fleet/internal/domain"
)

// ValidationError is a structural rejection: the intent never reached
// fan-out and no OrderRecord was created for it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("dispatch: invalid intent: %s: %s", e.Field, e.Reason)
}

// ValidateIntent applies the structural rules every intent must pass
// before any session is touched. Failures here have no side effects.
func ValidateIntent(intent domain.OrderIntent) error {
	if intent.Symbol == "" {
		return &ValidationError{Field: "symbol", Reason: "required"}
	}
	if intent.Side != domain.SideBuy && intent.Side != domain.SideSell {
		return &ValidationError{Field: "action", Reason: fmt.Sprintf("must be %s or %s", domain.SideBuy, domain.SideSell)}
	}
	if intent.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if intent.Quantity != math.Trunc(intent.Quantity) {
		return &ValidationError{Field: "quantity", Reason: "must be a whole number of contracts"}
	}

	switch intent.OrderType {
	case domain.OrderTypeMarket:
	case domain.OrderTypeLimit:
		if intent.LimitPrice <= 0 {
			return &ValidationError{Field: "limit_price", Reason: "required for LIMIT orders"}
		}
	case domain.OrderTypeStop:
		if intent.StopPrice <= 0 {
			return &ValidationError{Field: "stop_price", Reason: "required for STOP orders"}
		}
	default:
		return &ValidationError{Field: "order_type", Reason: "must be MARKET, LIMIT or STOP"}
	}

	if intent.TakeProfit < 0 {
		return &ValidationError{Field: "tp_ticks", Reason: "must be non-negative"}
	}
	if intent.StopLoss < 0 {
		return &ValidationError{Field: "sl_ticks", Reason: "must be non-negative"}
	}

	if intent.ScaleLevels > 1 {
		levels := float64(intent.ScaleLevels)
		if intent.Quantity < levels {
			return &ValidationError{Field: "scale_in_levels", Reason: "quantity smaller than level count"}
		}
		if math.Mod(intent.Quantity, levels) != 0 {
			return &ValidationError{
				Field:  "scale_in_levels",
				Reason: fmt.Sprintf("quantity %v not divisible into %d levels", intent.Quantity, intent.ScaleLevels),
			}
		}
		if intent.ScaleInTicks <= 0 {
			return &ValidationError{Field: "scale_in_ticks", Reason: "must be positive when scaling in"}
		}
	}

	return nil
}
