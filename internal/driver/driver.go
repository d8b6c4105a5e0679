package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/copytrade/fleet/internal/catalog"
	"github.com/copytrade/fleet/internal/domain"
)

// Config bounds the stage deadlines and write-verify tuning the Driver
// applies to every operation.
type Config struct {
	StageDeadline  time.Duration
	WriteRetries   int
	WriteBackoff   time.Duration
	GovernorConfig GovernorConfig
}

// DefaultConfig is the tuning used in production: stage deadlines well
// under the operation budget, three write attempts with a short pause.
func DefaultConfig() Config {
	return Config{
		StageDeadline:  500 * time.Millisecond,
		WriteRetries:   3,
		WriteBackoff:   25 * time.Millisecond,
		GovernorConfig: DefaultGovernorConfig(),
	}
}

// Driver is the out-of-process half of the resident in-page script
// contract: SubmitOrder, SubmitBracket, ExitPosition, ChangeSymbol,
// SwitchAccount, ScrapeAccounts, each evaluating one small piece of
// injected JS through a JSBridge and validating the result.
type Driver struct {
	cfg        Config
	classifier Classifier
	governor   *Governor
}

// New builds a Driver with the DefaultClassifier unless overridden.
func New(cfg Config, classifier Classifier) *Driver {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Driver{
		cfg:        cfg,
		classifier: classifier,
		governor:   NewGovernor(cfg.GovernorConfig),
	}
}

// Governor exposes the Driver's adaptive performance governor so the
// Supervisor can decide whether to keep fanning work into this session.
func (d *Driver) Governor() *Governor { return d.governor }

func (d *Driver) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.cfg.StageDeadline)
}

// SubmitOrder drives the full PRE_VALIDATE..DONE state machine for a
// single, non-bracket intent.
func (d *Driver) SubmitOrder(ctx context.Context, bridge Bridge, accountID string, intent domain.OrderIntent) (*domain.OrderRecord, error) {
	fingerprint := domain.NewFingerprint(accountID, intent.ID)
	record, err := d.submitOrderRun(ctx, bridge, intent, fingerprint)
	record.AccountID = accountID
	return record, err
}

// SubmitBracket composes three SubmitOrder runs (parent, take-profit
// child, stop-loss child) sharing a parent fingerprint. A failed child
// triggers a best-effort cancel of the already-submitted legs and the
// aggregate outcome is surfaced as PARTIAL, never silently SUCCESS.
func (d *Driver) SubmitBracket(ctx context.Context, bridge Bridge, accountID string, intent domain.OrderIntent) (*domain.OrderRecord, []*domain.OrderRecord, error) {
	tp, sl := catalog.DefaultTicks(rootSymbol(intent.Symbol), intent.TakeProfit, intent.StopLoss)

	parent, err := d.SubmitOrder(ctx, bridge, accountID, intent)
	if err != nil {
		return parent, nil, fmt.Errorf("driver: bracket parent: %w", err)
	}

	tpIntent := intent
	tpIntent.ID = intent.ID + "-tp"
	tpIntent.TakeProfit = tp
	slIntent := intent
	slIntent.ID = intent.ID + "-sl"
	slIntent.StopLoss = sl

	var children []*domain.OrderRecord
	for _, child := range []domain.OrderIntent{tpIntent, slIntent} {
		rec, err := d.SubmitOrder(ctx, bridge, accountID, child)
		children = append(children, rec)
		parent.BracketChildren = append(parent.BracketChildren, rec.Fingerprint)
		if err != nil {
			d.cancelBestEffort(ctx, bridge, parent, children)
			parent.RecordPhase(domain.RecordPartial, time.Now())
			return parent, children, fmt.Errorf("driver: bracket child %s: %w", child.ID, err)
		}
	}

	return parent, children, nil
}

func (d *Driver) cancelBestEffort(ctx context.Context, bridge Bridge, parent *domain.OrderRecord, children []*domain.OrderRecord) {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	_ = bridge.Eval(stageCtx, fmt.Sprintf(`window.__driver.cancelOrder(%q)`, parent.Fingerprint), nil)
	for _, c := range children {
		if c.Phase == domain.RecordRejected || c.Phase == domain.RecordOrphaned {
			continue
		}
		_ = bridge.Eval(stageCtx, fmt.Sprintf(`window.__driver.cancelOrder(%q)`, c.Fingerprint), nil)
	}
}

// ExitPosition confirms the UI exit action for symbol using exitOption
// (e.g. "close_all", "close_half").
func (d *Driver) ExitPosition(ctx context.Context, bridge Bridge, symbol, exitOption string) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var confirmed bool
	expr := fmt.Sprintf(`window.__driver.exitPosition(%q, %q)`, symbol, exitOption)
	if err := bridge.Eval(stageCtx, expr, &confirmed); err != nil {
		return fmt.Errorf("driver: exitPosition: %w", err)
	}
	if !confirmed {
		return fmt.Errorf("driver: exitPosition: not confirmed")
	}
	return nil
}

// ChangeSymbol writes symbol into the order ticket's symbol input,
// scoped to the ticket container so the market analyzer's input is
// never touched, and verifies the read-back.
func (d *Driver) ChangeSymbol(ctx context.Context, bridge Bridge, symbol string) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	setExpr := fmt.Sprintf(`window.__driver.ticket.setSymbol(%q)`, symbol)
	readExpr := `window.__driver.ticket.readSymbol()`
	return bridge.WriteVerify(stageCtx, setExpr, readExpr, symbol, d.cfg.WriteRetries, d.cfg.WriteBackoff)
}

// SwitchAccount selects account in the account dropdown and confirms
// the selection took effect and the dropdown closed.
func (d *Driver) SwitchAccount(ctx context.Context, bridge Bridge, account string) error {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var selected string
	expr := fmt.Sprintf(`window.__driver.switchAccount(%q)`, account)
	if err := bridge.Eval(stageCtx, expr, &selected); err != nil {
		return fmt.Errorf("driver: switchAccount: %w", err)
	}
	if selected != account {
		return fmt.Errorf("driver: switchAccount: selected %q, want %q", selected, account)
	}
	return nil
}

// AccountSnapshot is one row of the scraped account table.
type AccountSnapshot struct {
	Label   string  `json:"label"`
	Equity  float64 `json:"equity"`
	Balance float64 `json:"balance"`
}

// ScrapeAccounts returns a structured snapshot of the account table.
func (d *Driver) ScrapeAccounts(ctx context.Context, bridge Bridge) ([]AccountSnapshot, error) {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var rows []AccountSnapshot
	if err := bridge.Eval(stageCtx, `window.__driver.scrapeAccounts()`, &rows); err != nil {
		return nil, fmt.Errorf("driver: scrapeAccounts: %w", err)
	}
	return rows, nil
}

// PositionSnapshot is one row of the scraped positions table, the
// source of truth the reconciliation pass consults for post-hoc fills.
type PositionSnapshot struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"qty"`
	AvgPrice float64 `json:"avg_px"`
}

// ScrapePositions returns a structured snapshot of the open-positions
// table.
func (d *Driver) ScrapePositions(ctx context.Context, bridge Bridge) ([]PositionSnapshot, error) {
	stageCtx, cancel := d.deadline(ctx)
	defer cancel()
	var rows []PositionSnapshot
	if err := bridge.Eval(stageCtx, `window.__driver.scrapePositions()`, &rows); err != nil {
		return nil, fmt.Errorf("driver: scrapePositions: %w", err)
	}
	return rows, nil
}

func rootSymbol(symbol string) string {
	for i, r := range symbol {
		if r >= '0' && r <= '9' {
			return symbol[:i]
		}
	}
	return symbol
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
