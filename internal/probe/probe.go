// Package probe implements the five layered health checks the fleet
// runs against a session's Chrome process: TCP reachability, the
// DevTools HTTP endpoint, the JS runtime, the DOM, and the trading
// application itself. Each probe is a stateless function bound to a
// caller-supplied deadline with no internal retry — retrying belongs
// to internal/health, one layer up.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Result is the uniform outcome of any probe in the kit.
type Result struct {
	OK      bool
	Latency time.Duration
	Detail  string
	Err     error
}

func measure(start time.Time, err error, detail string) Result {
	return Result{
		OK:      err == nil,
		Latency: time.Since(start),
		Detail:  detail,
		Err:     err,
	}
}

// ProbeTCP dials the debug port and confirms something is listening.
// It does not inspect protocol content — that is ProbeHTTP's job.
func ProbeTCP(ctx context.Context, port int) Result {
	start := time.Now()
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return measure(start, fmt.Errorf("probe: tcp dial %s: %w", addr, err), "")
	}
	_ = conn.Close()
	return measure(start, nil, "tcp reachable")
}

// devtoolsTarget is the subset of /json/list's response this probe
// cares about.
type devtoolsTarget struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// ProbeHTTP GETs the Chrome DevTools HTTP endpoint (`/json/list`) and
// confirms at least one page target is present. It returns the
// discovered websocket URL in Detail for ProbeRuntime/ProbeDOM to use.
func ProbeHTTP(ctx context.Context, port int) Result {
	start := time.Now()
	url := fmt.Sprintf("http://127.0.0.1:%d/json/list", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return measure(start, err, "")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return measure(start, fmt.Errorf("probe: devtools endpoint: %w", err), "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return measure(start, fmt.Errorf("probe: devtools endpoint status %d", resp.StatusCode), "")
	}

	var targets []devtoolsTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return measure(start, fmt.Errorf("probe: decode targets: %w", err), "")
	}
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			return measure(start, nil, t.WebSocketDebuggerURL)
		}
	}
	return measure(start, fmt.Errorf("probe: no page target on port %d", port), "")
}

// attach opens a chromedp context against an already-running browser
// target discovered via ProbeHTTP, without launching a new browser.
func attach(ctx context.Context, wsURL string) (context.Context, context.CancelFunc) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, wsURL)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	return taskCtx, func() {
		cancelTask()
		cancelAlloc()
	}
}

// ProbeRuntime confirms the JS runtime inside the page responds to a
// trivial evaluation within the caller's deadline.
func ProbeRuntime(ctx context.Context, wsURL string) Result {
	start := time.Now()
	taskCtx, cancel := attach(ctx, wsURL)
	defer cancel()

	var alive bool
	err := chromedp.Run(taskCtx, chromedp.Evaluate(`true`, &alive))
	if err != nil {
		return measure(start, fmt.Errorf("probe: runtime evaluate: %w", err), "")
	}
	if !alive {
		return measure(start, fmt.Errorf("probe: runtime returned false"), "")
	}
	return measure(start, nil, "runtime responsive")
}

// ProbeDOM confirms the order-entry surface the Driver depends on is
// present in the DOM. exprPresence should evaluate to a boolean.
func ProbeDOM(ctx context.Context, wsURL, exprPresence string) Result {
	start := time.Now()
	taskCtx, cancel := attach(ctx, wsURL)
	defer cancel()

	var present bool
	err := chromedp.Run(taskCtx, chromedp.Evaluate(exprPresence, &present))
	if err != nil {
		return measure(start, fmt.Errorf("probe: dom evaluate: %w", err), "")
	}
	if !present {
		return measure(start, fmt.Errorf("probe: dom element missing"), "")
	}
	return measure(start, nil, "dom element present")
}

// ProbeApplication runs an application-level liveness expression
// (e.g. account balance widget populated, no blocking error modal).
func ProbeApplication(ctx context.Context, wsURL, exprLive string) Result {
	start := time.Now()
	taskCtx, cancel := attach(ctx, wsURL)
	defer cancel()

	var live bool
	var exceptionText string
	err := chromedp.Run(taskCtx, chromedp.ActionFunc(func(c context.Context) error {
		res, exc, err := runtime.Evaluate(exprLive).Do(c)
		if err != nil {
			return err
		}
		if exc != nil {
			exceptionText = exc.Text
			return nil
		}
		return json.Unmarshal(res.Value, &live)
	}))
	if err != nil {
		return measure(start, fmt.Errorf("probe: application evaluate: %w", err), "")
	}
	if exceptionText != "" {
		return measure(start, fmt.Errorf("probe: application exception: %s", exceptionText), "")
	}
	if !live {
		return measure(start, fmt.Errorf("probe: application stale"), "")
	}
	return measure(start, nil, "application live")
}
