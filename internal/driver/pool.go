package driver

import (
	"context"
	"fmt"
	"sync"
)

// Pool owns the live JSBridge for each account, so the Supervisor,
// the Health Monitor's recovery ladder, and the Dispatcher all reach
// the same channel instead of each opening their own chromedp context
// against the same tab.
type Pool struct {
	mu      sync.Mutex
	bridges map[string]*JSBridge
	cancels map[string]context.CancelFunc
}

// NewPool builds an empty Pool.
func NewPool() *Pool {
	return &Pool{
		bridges: make(map[string]*JSBridge),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Attach opens a new JSBridge for accountID against wsURL, replacing
// and releasing any prior bridge for that account (the reset-bridge
// step of the recovery ladder).
func (p *Pool) Attach(ctx context.Context, accountID, wsURL string) (*JSBridge, context.CancelFunc, error) {
	bridge, cancel := NewJSBridge(ctx, wsURL)

	p.mu.Lock()
	if oldCancel, ok := p.cancels[accountID]; ok {
		oldCancel()
	}
	p.bridges[accountID] = bridge
	p.cancels[accountID] = cancel
	p.mu.Unlock()

	return bridge, func() {
		p.mu.Lock()
		if p.bridges[accountID] == bridge {
			delete(p.bridges, accountID)
			delete(p.cancels, accountID)
		}
		p.mu.Unlock()
		cancel()
	}, nil
}

// Get returns the live JSBridge for accountID, if one is attached.
func (p *Pool) Get(accountID string) (*JSBridge, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.bridges[accountID]
	return b, ok
}

// Detach releases accountID's bridge, if any.
func (p *Pool) Detach(accountID string) {
	p.mu.Lock()
	cancel, ok := p.cancels[accountID]
	delete(p.bridges, accountID)
	delete(p.cancels, accountID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

// ErrNotAttached is returned by callers that need a bridge that was
// never attached (e.g. dispatch racing a session that just crashed).
func ErrNotAttached(accountID string) error {
	return fmt.Errorf("driver: no bridge attached for account %s", accountID)
}
