package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeSymbol_TicketScopedAndVerified(t *testing.T) {
	bridge := newFakeBridge()
	// The analyzer holds NQ; the ticket reads back whatever was set.
	bridge.respond("readAnalyzerSymbol", "NQ")
	bridge.respond("readSymbol", "ES")
	d := New(DefaultConfig(), nil)

	var analyzerBefore string
	require.NoError(t, bridge.Eval(context.Background(), `window.__driver.ticket.readAnalyzerSymbol()`, &analyzerBefore))

	require.NoError(t, d.ChangeSymbol(context.Background(), bridge, "ES"))

	// Only the ticket's input was written; the analyzer was never
	// addressed, so its value is unchanged.
	assert.Equal(t, 1, bridge.callsMatching("ticket.setSymbol"))
	assert.Zero(t, bridge.callsMatching("analyzer.setSymbol"))

	var analyzerAfter string
	require.NoError(t, bridge.Eval(context.Background(), `window.__driver.ticket.readAnalyzerSymbol()`, &analyzerAfter))
	assert.Equal(t, analyzerBefore, analyzerAfter)
}

func TestChangeSymbol_ReadBackMismatchFails(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("readSymbol", "NQ")
	d := New(DefaultConfig(), nil)

	err := d.ChangeSymbol(context.Background(), bridge, "ES")
	require.Error(t, err)
}

func TestSwitchAccount(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("switchAccount", "alice")
	d := New(DefaultConfig(), nil)

	assert.NoError(t, d.SwitchAccount(context.Background(), bridge, "alice"))
	assert.Error(t, d.SwitchAccount(context.Background(), bridge, "bob"))
}

func TestExitPosition(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("exitPosition", true)
	d := New(DefaultConfig(), nil)
	assert.NoError(t, d.ExitPosition(context.Background(), bridge, "NQ", "close_all"))

	bridge2 := newFakeBridge()
	bridge2.respond("exitPosition", false)
	assert.Error(t, d.ExitPosition(context.Background(), bridge2, "NQ", "close_all"))
}

func TestScrapeAccounts(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("scrapeAccounts", []AccountSnapshot{
		{Label: "alice", Equity: 52000, Balance: 50000},
		{Label: "bob", Equity: 48000, Balance: 50000},
	})
	d := New(DefaultConfig(), nil)

	rows, err := d.ScrapeAccounts(context.Background(), bridge)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].Label)
}

func TestScrapePositions(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("scrapePositions", []PositionSnapshot{{Symbol: "NQ", Quantity: 4, AvgPrice: 18000.25}})
	d := New(DefaultConfig(), nil)

	rows, err := d.ScrapePositions(context.Background(), bridge)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 4.0, rows[0].Quantity)
}

func TestVerifyABI_RejectsVersionMismatch(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("abiVersion", ABIVersion-1)

	err := VerifyABI(context.Background(), bridge)
	require.Error(t, err)
}

func TestVerifyABI_RejectsMissingEntryPoint(t *testing.T) {
	bridge := newFakeBridge()
	bridge.respond("abiVersion", ABIVersion)
	bridge.respond("typeof window.__driver", true)
	bridge.respond(`typeof window.__driver["scrapePositions"]`, false)

	err := VerifyABI(context.Background(), bridge)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scrapePositions")
}
