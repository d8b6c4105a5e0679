// Package driver implements the out-of-process half of the in-page
// driver contract: the order submission state machine, the adaptive
// performance governor, and the write-verify loop used to program
// form inputs, all evaluated against a live browser target through a
// chromedp execution context.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Bridge is the script-evaluation channel into one session's live
// runtime. Production code uses JSBridge; tests substitute a scripted
// fake so the submission state machine runs without a browser.
type Bridge interface {
	Eval(ctx context.Context, expr string, out interface{}) error
	EvalException(ctx context.Context, expr string, out interface{}) (exceptionText string, err error)
	WriteVerify(ctx context.Context, setExpr, readExpr string, want string, maxAttempts int, backoff time.Duration) error
}

// JSBridge is the single channel between this process and the
// resident script running inside one browser tab. Every call is
// bounded by the caller's context deadline; the bridge applies none of
// its own, matching the "no hidden retries" discipline of the probe
// kit one layer below.
type JSBridge struct {
	taskCtx context.Context
}

var _ Bridge = (*JSBridge)(nil)

// NewJSBridge attaches to an already-running browser target discovered
// by internal/probe.ProbeHTTP.
func NewJSBridge(parent context.Context, wsURL string) (*JSBridge, context.CancelFunc) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(parent, wsURL)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	return &JSBridge{taskCtx: taskCtx}, func() {
		cancelTask()
		cancelAlloc()
	}
}

// Eval runs expr in the page and decodes the result into out. A
// deadline must already be set on ctx by the caller.
func (b *JSBridge) Eval(ctx context.Context, expr string, out interface{}) error {
	runCtx, cancel := context.WithCancel(b.taskCtx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, chromedp.Evaluate(expr, out))
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("driver: eval deadline exceeded: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("driver: eval: %w", err)
		}
		return nil
	}
}

// EvalException is like Eval but surfaces a page-thrown exception's
// text instead of turning it into a Go error, so the caller's
// Classifier can inspect it.
func (b *JSBridge) EvalException(ctx context.Context, expr string, out interface{}) (exceptionText string, err error) {
	runCtx, cancel := context.WithCancel(b.taskCtx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
			res, exc, evalErr := runtime.Evaluate(expr).Do(c)
			if evalErr != nil {
				return evalErr
			}
			if exc != nil {
				exceptionText = exc.Text
				return nil
			}
			if out == nil || res == nil {
				return nil
			}
			return json.Unmarshal(res.Value, out)
		}))
	}()
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("driver: eval deadline exceeded: %w", ctx.Err())
	case runErr := <-done:
		return exceptionText, runErr
	}
}

// WriteVerify programs a form field via setExpr, then reads it back
// with readExpr and compares against want, retrying up to maxAttempts
// times with a small backoff between tries. This is the "write-verify
// loop" the order ticket's numeric/text inputs require: a native
// setter write does not reliably fire the framework's own change
// detection on the first attempt.
func (b *JSBridge) WriteVerify(ctx context.Context, setExpr, readExpr string, want string, maxAttempts int, backoff time.Duration) error {
	var last string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("driver: write-verify deadline exceeded: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}
		if err := b.Eval(ctx, setExpr, nil); err != nil {
			return err
		}
		if err := b.Eval(ctx, readExpr, &last); err != nil {
			return err
		}
		if last == want {
			return nil
		}
	}
	return fmt.Errorf("driver: write-verify mismatch after %d attempts: got %q want %q", maxAttempts, last, want)
}
