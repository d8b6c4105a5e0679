// Package work provides the registry and scheduler for recurring
// background work: recovery-snapshot backups, reconciliation sweeps,
// profile-directory cleanup, and cache checkpointing. Work types
// are registered once at wiring time and executed on their intervals
// by the Scheduler.
package work

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MarketTiming constrains when a work type may run relative to the
// trading session, as reported by the Scheduler's MarketClock.
type MarketTiming int

const (
	// AnyTime work runs whenever its interval elapses.
	AnyTime MarketTiming = iota
	// MarketHoursOnly work runs only while the market is open.
	MarketHoursOnly
	// AfterMarketClose work runs only outside market hours.
	AfterMarketClose
)

// ProgressReporter lets long-running work types surface per-subject
// progress into the structured log without owning a logger themselves.
type ProgressReporter struct {
	WorkID string
	log    zerolog.Logger
}

// NewProgressReporter builds a reporter bound to one work execution.
func NewProgressReporter(workID string, log zerolog.Logger) *ProgressReporter {
	return &ProgressReporter{WorkID: workID, log: log.With().Str("work_id", workID).Logger()}
}

// Report logs one progress step.
func (p *ProgressReporter) Report(subject, message string) {
	if p == nil {
		return
	}
	p.log.Debug().Str("subject", subject).Msg(message)
}

// WorkType describes one registered kind of background work.
//
// FindSubjects enumerates what to run against this tick — account IDs
// for per-account work, or a single "" for global work. Execute runs
// one subject. A work type with DependsOn entries is skipped for a
// tick when any dependency failed its own run that tick.
type WorkType struct {
	ID           string
	Description  string
	MarketTiming MarketTiming
	// Interval is how often the scheduler re-runs this work. Zero
	// means every scheduler tick.
	Interval  time.Duration
	DependsOn []string

	FindSubjects func() []string
	Execute      func(ctx context.Context, subject string, progress *ProgressReporter) error
}
