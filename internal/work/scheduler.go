package work

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// MarketClock reports whether the market is currently open, gating
// MarketTiming-constrained work. The fleet's wiring supplies a clock
// that always reports open; tests substitute a fixed answer.
type MarketClock interface {
	MarketOpen() bool
}

// alwaysOpen is the fallback clock when none is wired: treat the
// market as open so MarketHoursOnly work never silently starves.
type alwaysOpen struct{}

func (alwaysOpen) MarketOpen() bool { return true }

// Scheduler ticks on a cron schedule and runs every due work type in
// registration order. Interval throttling is persisted through the
// cache table, so a restart does not re-run work that already ran
// inside its interval.
type Scheduler struct {
	registry *Registry
	cache    *Cache
	clock    MarketClock
	log      zerolog.Logger
	cron     *cron.Cron
	tickSpec string
}

// NewScheduler builds a Scheduler ticking every tick duration. cache
// may be nil, in which case interval throttling is skipped.
func NewScheduler(registry *Registry, cache *Cache, clock MarketClock, tick time.Duration, log zerolog.Logger) *Scheduler {
	if clock == nil {
		clock = alwaysOpen{}
	}
	if tick < time.Second {
		tick = time.Second
	}
	return &Scheduler{
		registry: registry,
		cache:    cache,
		clock:    clock,
		log:      log.With().Str("component", "work.scheduler").Logger(),
		tickSpec: "@every " + tick.String(),
	}
}

// Start begins ticking until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithSeconds())
	_, err := s.cron.AddFunc(s.tickSpec, func() { s.Tick(ctx) })
	if err != nil {
		return err
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Tick runs one scheduling pass: every registered work type, in
// registration order, that is due, timing-allowed, and whose
// dependencies did not fail this pass.
func (s *Scheduler) Tick(ctx context.Context) {
	failed := make(map[string]bool)

	for _, wt := range s.registry.All() {
		if !s.timingAllowed(wt) {
			continue
		}
		if !s.due(wt) {
			continue
		}
		if s.dependencyFailed(wt, failed) {
			s.log.Debug().Str("work_id", wt.ID).Msg("skipping work, dependency failed this tick")
			continue
		}

		if err := s.runOne(ctx, wt); err != nil {
			failed[wt.ID] = true
			s.log.Error().Err(err).Str("work_id", wt.ID).Msg("work execution failed")
			continue
		}
		s.markRan(wt)
	}
}

func (s *Scheduler) timingAllowed(wt *WorkType) bool {
	switch wt.MarketTiming {
	case MarketHoursOnly:
		return s.clock.MarketOpen()
	case AfterMarketClose:
		return !s.clock.MarketOpen()
	default:
		return true
	}
}

func (s *Scheduler) due(wt *WorkType) bool {
	if wt.Interval <= 0 || s.cache == nil {
		return true
	}
	return s.cache.GetExpiresAt("work:"+wt.ID) < time.Now().Unix()
}

func (s *Scheduler) markRan(wt *WorkType) {
	if wt.Interval <= 0 || s.cache == nil {
		return
	}
	if err := s.cache.Set("work:"+wt.ID, time.Now().Add(wt.Interval).Unix()); err != nil {
		s.log.Warn().Err(err).Str("work_id", wt.ID).Msg("failed to record work run")
	}
}

func (s *Scheduler) dependencyFailed(wt *WorkType, failed map[string]bool) bool {
	for _, dep := range wt.DependsOn {
		if failed[dep] {
			return true
		}
	}
	return false
}

func (s *Scheduler) runOne(ctx context.Context, wt *WorkType) error {
	subjects := []string{""}
	if wt.FindSubjects != nil {
		subjects = wt.FindSubjects()
	}

	progress := NewProgressReporter(wt.ID, s.log)
	for _, subject := range subjects {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if wt.Execute == nil {
			continue
		}
		if err := wt.Execute(ctx, subject, progress); err != nil {
			return err
		}
	}
	return nil
}
