package driver

import (
	"context"
	"fmt"

	"github.com/copytrade/fleet/internal/catalog"
	"github.com/copytrade/fleet/internal/domain"
)

// SubmitScaleIn decomposes a parent intent into ScaleLevels sub-intents
// of Quantity/ScaleLevels contracts each, spaced ScaleInTicks apart,
// and submits them sequentially. The caller must have already validated
// divisibility; an indivisible quantity here is a programming error.
//
// Direction of the spacing follows the side: a BUY ladder steps down
// from the reference price, a SELL ladder steps up, so later levels
// only fill if the market moves against the first. Spacing is applied
// to LimitPrice only: levels of an intent without a limit price (e.g.
// MARKET) all carry no price and are not spaced.
func (d *Driver) SubmitScaleIn(ctx context.Context, bridge Bridge, accountID string, intent domain.OrderIntent) ([]*domain.OrderRecord, error) {
	levels := intent.ScaleLevels
	if levels < 1 {
		levels = 1
	}
	if levels > 1 && (intent.Quantity < float64(levels) || int(intent.Quantity)%levels != 0) {
		return nil, fmt.Errorf("driver: scale-in quantity %v not divisible into %d levels", intent.Quantity, levels)
	}

	tick := catalog.TickSize(rootSymbol(intent.Symbol), intent.TickSize)
	offset := float64(intent.ScaleInTicks) * tick
	if intent.Side == domain.SideBuy {
		offset = -offset
	}

	perLevel := intent.Quantity / float64(levels)
	records := make([]*domain.OrderRecord, 0, levels)

	for i := 0; i < levels; i++ {
		child := intent
		child.ID = fmt.Sprintf("%s-L%d", intent.ID, i+1)
		child.Quantity = perLevel
		child.ScaleLevels = 0
		child.ScaleInTicks = 0
		if child.LimitPrice != 0 {
			child.LimitPrice += float64(i) * offset
		}

		rec, err := d.SubmitOrder(ctx, bridge, accountID, child)
		records = append(records, rec)
		if err != nil {
			return records, fmt.Errorf("driver: scale-in level %d/%d: %w", i+1, levels, err)
		}
	}

	return records, nil
}
