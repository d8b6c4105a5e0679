package dispatch

import (
	"context"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/driver"
)

// Executor is the dispatch engine's view of one session's driver
// operations. Production wiring uses BridgeExecutor; tests substitute
// a fake so fan-out and aggregation run without a browser.
type Executor interface {
	SubmitOrder(ctx context.Context, accountID string, intent domain.OrderIntent) (*domain.OrderRecord, error)
	SubmitBracket(ctx context.Context, accountID string, intent domain.OrderIntent) (*domain.OrderRecord, []*domain.OrderRecord, error)
	SubmitScaleIn(ctx context.Context, accountID string, intent domain.OrderIntent) ([]*domain.OrderRecord, error)
	ExitPosition(ctx context.Context, accountID, symbol, exitOption string) error
	ScrapePositions(ctx context.Context, accountID string) ([]driver.PositionSnapshot, error)
}

// BridgeExecutor resolves each account's live channel from the driver
// pool and delegates to the Driver. A session whose bridge is gone
// (crashed between eligibility check and execution) fails fast rather
// than blocking the fan-out.
type BridgeExecutor struct {
	driver *driver.Driver
	pool   *driver.Pool
}

// NewBridgeExecutor wires an Executor over the shared driver pool.
func NewBridgeExecutor(d *driver.Driver, pool *driver.Pool) *BridgeExecutor {
	return &BridgeExecutor{driver: d, pool: pool}
}

func (e *BridgeExecutor) bridge(accountID string) (driver.Bridge, error) {
	b, ok := e.pool.Get(accountID)
	if !ok {
		return nil, driver.ErrNotAttached(accountID)
	}
	return b, nil
}

func (e *BridgeExecutor) SubmitOrder(ctx context.Context, accountID string, intent domain.OrderIntent) (*domain.OrderRecord, error) {
	b, err := e.bridge(accountID)
	if err != nil {
		return nil, err
	}
	return e.driver.SubmitOrder(ctx, b, accountID, intent)
}

func (e *BridgeExecutor) SubmitBracket(ctx context.Context, accountID string, intent domain.OrderIntent) (*domain.OrderRecord, []*domain.OrderRecord, error) {
	b, err := e.bridge(accountID)
	if err != nil {
		return nil, nil, err
	}
	return e.driver.SubmitBracket(ctx, b, accountID, intent)
}

func (e *BridgeExecutor) SubmitScaleIn(ctx context.Context, accountID string, intent domain.OrderIntent) ([]*domain.OrderRecord, error) {
	b, err := e.bridge(accountID)
	if err != nil {
		return nil, err
	}
	return e.driver.SubmitScaleIn(ctx, b, accountID, intent)
}

func (e *BridgeExecutor) ExitPosition(ctx context.Context, accountID, symbol, exitOption string) error {
	b, err := e.bridge(accountID)
	if err != nil {
		return err
	}
	return e.driver.ExitPosition(ctx, b, symbol, exitOption)
}

func (e *BridgeExecutor) ScrapePositions(ctx context.Context, accountID string) ([]driver.PositionSnapshot, error) {
	b, err := e.bridge(accountID)
	if err != nil {
		return nil, err
	}
	return e.driver.ScrapePositions(ctx, b)
}
