package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakeBridge is a scripted Bridge for exercising the submission state
// machine without a browser. Responses are keyed by a substring of the
// evaluated expression; the first matching rule wins. Unmatched
// expressions return the zero value, which for most predicates reads
// as "not present".
type fakeBridge struct {
	mu    sync.Mutex
	rules []fakeRule
	calls []string
	delay time.Duration
}

type fakeRule struct {
	substr string
	value  interface{}
	err    error
}

func newFakeBridge() *fakeBridge { return &fakeBridge{} }

// respond registers a canned value for expressions containing substr.
func (b *fakeBridge) respond(substr string, value interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append([]fakeRule{{substr: substr, value: value}}, b.rules...)
}

// fail registers an error for expressions containing substr.
func (b *fakeBridge) fail(substr string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rules = append([]fakeRule{{substr: substr, err: err}}, b.rules...)
}

// happyTicket wires the full set of responses a clean market-order
// submission needs.
func (b *fakeBridge) happyTicket() {
	b.respond("preValidate", preValidateResult{OK: true})
	b.respond("openTypeDropdown", true)
	b.respond("pickType", true)
	b.respond("clickSubmit", true)
	b.respond("scanErrorBanner", "")
	b.respond("acknowledged", true)
}

func (b *fakeBridge) callsMatching(substr string) int {
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

func (b *fakeBridge) Eval(ctx context.Context, expr string, out interface{}) error {
	b.mu.Lock()
	b.calls = append(b.calls, expr)
	rules := b.rules
	delay := b.delay
	b.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
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

func (b *fakeBridge) EvalException(ctx context.Context, expr string, out interface{}) (string, error) {
	return "", b.Eval(ctx, expr, out)
}

func (b *fakeBridge) WriteVerify(ctx context.Context, setExpr, readExpr, want string, maxAttempts int, backoff time.Duration) error {
	if err := b.Eval(ctx, setExpr, nil); err != nil {
		return err
	}
	var got string
	if err := b.Eval(ctx, readExpr, &got); err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("driver: write-verify mismatch after %d attempts: got %q want %q", maxAttempts, got, want)
	}
	return nil
}
