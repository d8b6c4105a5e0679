// Package testing provides shared mocks and fixtures for fleet tests:
// a scripted Bridge double, canned session sources, and builders for
// the domain structures tests assemble repeatedly.
package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/copytrade/fleet/internal/domain"
)

// MockBridge is a scripted driver.Bridge: responses are keyed by a
// substring of the evaluated expression, first match wins. Unmatched
// expressions decode the zero value.
type MockBridge struct {
	mu    sync.Mutex
	rules []bridgeRule
	calls []string
}

type bridgeRule struct {
	substr string
	value  interface{}
	err    error
}

// NewMockBridge creates an empty MockBridge.
func NewMockBridge() *MockBridge {
	return &MockBridge{}
}

// Respond registers a canned value for expressions containing substr.
// Later registrations win over earlier ones.
func (b *MockBridge) Respond(substr string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append([]bridgeRule{{substr: substr, value: value}}, b.rules...)
}

// Fail registers an error for expressions containing substr.
func (b *MockBridge) Fail(substr string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append([]bridgeRule{{substr: substr, err: err}}, b.rules...)
}

// Calls returns every evaluated expression, in order.
func (b *MockBridge) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallsMatching counts evaluated expressions containing substr.
func (b *MockBridge) CallsMatching(substr string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if strings.Contains(c, substr) {
			n++
		}
	}
	return n
}

// Eval implements driver.Bridge.
func (b *MockBridge) Eval(ctx context.Context, expr string, out interface{}) error {
	b.mu.Lock()
	b.calls = append(b.calls, expr)
	rules := b.rules
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range rules {
		if !strings.Contains(expr, r.substr) {
			continue
		}
		if r.err != nil {
			return r.err
		}
		if out == nil {
			return nil
		}
		data, err := json.Marshal(r.value)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	return nil
}

// EvalException implements driver.Bridge.
func (b *MockBridge) EvalException(ctx context.Context, expr string, out interface{}) (string, error) {
	return "", b.Eval(ctx, expr, out)
}

// WriteVerify implements driver.Bridge: the write goes through Eval,
// then the read-back is compared against want.
func (b *MockBridge) WriteVerify(ctx context.Context, setExpr, readExpr, want string, maxAttempts int, backoff time.Duration) error {
	if err := b.Eval(ctx, setExpr, nil); err != nil {
		return err
	}
	var got string
	if err := b.Eval(ctx, readExpr, &got); err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("write-verify mismatch: got %q want %q", got, want)
	}
	return nil
}

// MockSessionSource is a canned registry view satisfying the
// SessionSource/EligibleSource interfaces across packages.
type MockSessionSource struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	order    []string
}

// NewMockSessionSource creates an empty source.
func NewMockSessionSource() *MockSessionSource {
	return &MockSessionSource{sessions: make(map[string]domain.Session)}
}

// Add registers or replaces a session.
func (m *MockSessionSource) Add(s domain.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.AccountID]; !ok {
		m.order = append(m.order, s.AccountID)
	}
	m.sessions[s.AccountID] = s
}

// All returns every session in insertion order.
func (m *MockSessionSource) All() []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.sessions[id])
	}
	return out
}

// Get returns one session by account.
func (m *MockSessionSource) Get(accountID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[accountID]
	return s, ok
}

// Eligible returns the READY+HEALTHY account ids in insertion order.
func (m *MockSessionSource) Eligible() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, id := range m.order {
		s := m.sessions[id]
		if domain.Eligible(s.Phase, s.Health) {
			out = append(out, id)
		}
	}
	return out
}

// Update applies fn to the stored session, satisfying the monitor's
// SessionSource interface.
func (m *MockSessionSource) Update(accountID string, fn func(*domain.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[accountID]
	if !ok {
		return fmt.Errorf("no session %s", accountID)
	}
	fn(&s)
	m.sessions[accountID] = s
	return nil
}

// MockRestartRequester records restart requests from the recovery
// ladder.
type MockRestartRequester struct {
	mu       sync.Mutex
	Requests []string
	Err      error
}

// RequestRestart implements health.RestartRequester.
func (m *MockRestartRequester) RequestRestart(accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, accountID)
	return m.Err
}

// Requested reports how many restarts were asked for.
func (m *MockRestartRequester) Requested() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}
