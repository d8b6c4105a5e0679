package dispatch

import (
	"testing"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntent() domain.OrderIntent {
	return domain.OrderIntent{
		Symbol:    "NQ",
		Side:      domain.SideBuy,
		Quantity:  4,
		OrderType: domain.OrderTypeMarket,
	}
}

func TestValidateIntent_Accepts(t *testing.T) {
	assert.NoError(t, ValidateIntent(validIntent()))

	scaled := validIntent()
	scaled.ScaleLevels = 4
	scaled.ScaleInTicks = 20
	assert.NoError(t, ValidateIntent(scaled))
}

func TestValidateIntent_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.OrderIntent)
		field  string
	}{
		{"missing symbol", func(i *domain.OrderIntent) { i.Symbol = "" }, "symbol"},
		{"bad side", func(i *domain.OrderIntent) { i.Side = "HOLD" }, "action"},
		{"zero quantity", func(i *domain.OrderIntent) { i.Quantity = 0 }, "quantity"},
		{"fractional quantity", func(i *domain.OrderIntent) { i.Quantity = 1.5 }, "quantity"},
		{"bad order type", func(i *domain.OrderIntent) { i.OrderType = "TRAILING" }, "order_type"},
		{"limit without price", func(i *domain.OrderIntent) { i.OrderType = domain.OrderTypeLimit }, "limit_price"},
		{"stop without price", func(i *domain.OrderIntent) { i.OrderType = domain.OrderTypeStop }, "stop_price"},
		{"negative tp", func(i *domain.OrderIntent) { i.TakeProfit = -1 }, "tp_ticks"},
		{"negative sl", func(i *domain.OrderIntent) { i.StopLoss = -1 }, "sl_ticks"},
		{"indivisible scale-in", func(i *domain.OrderIntent) { i.Quantity = 1; i.ScaleLevels = 4; i.ScaleInTicks = 20 }, "scale_in_levels"},
		{"uneven scale-in", func(i *domain.OrderIntent) { i.Quantity = 6; i.ScaleLevels = 4; i.ScaleInTicks = 20 }, "scale_in_levels"},
		{"scale-in without spacing", func(i *domain.OrderIntent) { i.ScaleLevels = 4; i.ScaleInTicks = 0 }, "scale_in_ticks"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			intent := validIntent()
			tc.mutate(&intent)
			err := ValidateIntent(intent)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}
