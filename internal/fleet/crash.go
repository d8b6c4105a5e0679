package fleet

import (
	"context"
	"math"
	"os"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// RestartPolicy bounds the Supervisor's restart loop: up to MaxAttempts
// with exponential backoff between Base and Cap.
type RestartPolicy struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
}

// DefaultRestartPolicy allows three attempts, backing off from 2s up
// to a 30s cap.
func DefaultRestartPolicy() RestartPolicy {
	return RestartPolicy{MaxAttempts: 3, Base: 2 * time.Second, Cap: 30 * time.Second}
}

// Backoff returns the delay before restart attempt n (1-indexed).
func (p RestartPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.Base) * math.Pow(2, float64(attempt-1)))
	if d > p.Cap {
		return p.Cap
	}
	return d
}

// ProcessAlive reports whether pid still corresponds to a running
// process, using gopsutil so the same liveness check works whether the
// Supervisor or an external watchdog asks.
func ProcessAlive(pid int) bool {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := proc.IsRunning()
	return err == nil && running
}

// Terminate attempts a graceful shutdown of pid, escalating to a force
// kill if it is still alive after deadline.
func Terminate(ctx context.Context, pid int, deadline time.Duration) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	_ = proc.Signal(syscall.SIGTERM)

	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if !ProcessAlive(pid) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return proc.Kill()
		case <-ticker.C:
		}
	}
}
