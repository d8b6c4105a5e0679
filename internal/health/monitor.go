package health

import (
	"context"
	"sync"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/driver"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/probe"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ChannelTarget is what the Monitor needs to probe one Session's
// channel: the account, the port, and whether it is the backup
// channel. The websocket URL is discovered by ProbeHTTP on each check.
type ChannelTarget struct {
	AccountID string
	Port      int
	IsBackup  bool
}

// SessionSource lets the Monitor enumerate registered Sessions without
// importing the fleet package; fleet.Registry satisfies it.
type SessionSource interface {
	All() []domain.Session
	Update(accountID string, fn func(*domain.Session)) error
}

// Monitor is the cooperatively scheduled background worker driving the
// Connection Health Monitor: it ticks on a robfig/cron schedule, runs
// the Probe Kit chain per channel with a bounded fan-out, derives
// HealthState, and invokes the recovery ladder on failure.
type Monitor struct {
	cfg      Thresholds
	sessions SessionSource
	pool     *driver.Pool
	ladder   *Ladder
	bus      *events.Bus
	log      zerolog.Logger

	fanoutCap int

	mu      sync.Mutex
	metrics map[string]*ChannelMetrics
	cron    *cron.Cron
}

// NewMonitor builds a Monitor. fanoutCap bounds how many channel
// checks run concurrently per tick.
func NewMonitor(cfg Thresholds, sessions SessionSource, pool *driver.Pool, ladder *Ladder, bus *events.Bus, fanoutCap int, log zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:       cfg,
		sessions:  sessions,
		pool:      pool,
		ladder:    ladder,
		bus:       bus,
		fanoutCap: fanoutCap,
		metrics:   make(map[string]*ChannelMetrics),
		log:       log.With().Str("component", "health.monitor").Logger(),
	}
}

// Start schedules the monitor's tick on cfg.CheckInterval via
// robfig/cron, the same scheduler the recurring maintenance jobs use.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New(cron.WithSeconds())
	spec := everySpec(m.cfg.CheckInterval)
	_, err := m.cron.AddFunc(spec, func() {
		m.tick(ctx)
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	go func() {
		<-ctx.Done()
		m.cron.Stop()
	}()
	return nil
}

func everySpec(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return "@every " + time.Duration(seconds*int(time.Second)).String()
}

func (m *Monitor) metricsFor(key string) *ChannelMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	cm, ok := m.metrics[key]
	if !ok {
		cm = NewChannelMetrics(m.cfg)
		m.metrics[key] = cm
	}
	return cm
}

// tick builds the schedule (primary channels first, backups second),
// staggers the fan-out to at most fanoutCap concurrent checks, and
// updates each Session's HealthState.
func (m *Monitor) tick(ctx context.Context) {
	sessions := m.sessions.All()
	byAccount := make(map[string]domain.Session, len(sessions))

	var schedule []ChannelTarget
	for _, s := range sessions {
		byAccount[s.AccountID] = s
		schedule = append(schedule, ChannelTarget{AccountID: s.AccountID, Port: s.DebugPort})
	}
	for _, s := range sessions {
		if s.BackupPort != 0 {
			schedule = append(schedule, ChannelTarget{AccountID: s.AccountID, Port: s.BackupPort, IsBackup: true})
		}
	}

	sem := make(chan struct{}, m.fanoutCap)
	var wg sync.WaitGroup

	for _, target := range schedule {
		target := target
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if target.IsBackup {
				m.checkBackup(ctx, target)
			} else {
				m.checkSession(ctx, byAccount[target.AccountID])
			}
		}()
	}
	wg.Wait()
}

// checkBackup keeps readiness metrics for the backup channel. Backups
// carry no driver until failover, so only the transport layers are
// probed; their metrics live under a separate key and never flip the
// session's HealthState.
func (m *Monitor) checkBackup(ctx context.Context, target ChannelTarget) {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckInterval)
	defer cancel()

	start := time.Now()
	res := probe.ProbeTCP(checkCtx, target.Port)

	cm := m.metricsFor(target.AccountID + "/backup")
	cm.Record(domain.HealthMetric{
		Timestamp: start,
		Latency:   time.Since(start),
		Success:   res.OK,
	})
}

func (m *Monitor) checkSession(ctx context.Context, s domain.Session) {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckInterval)
	defer cancel()

	start := time.Now()
	tcp := probe.ProbeTCP(checkCtx, s.DebugPort)
	httpRes := tcp.OK
	var httpResult probe.Result
	if httpRes {
		httpResult = probe.ProbeHTTP(checkCtx, s.DebugPort)
	}

	var runtimeRes, domRes, appRes probe.Result
	if httpResult.OK {
		_, ok := m.pool.Get(s.AccountID)
		if ok {
			runtimeRes = probe.ProbeRuntime(checkCtx, httpResult.Detail)
			if runtimeRes.OK {
				domRes = probe.ProbeDOM(checkCtx, httpResult.Detail, `!!document.querySelector('.order-ticket')`)
			}
			if domRes.OK {
				appRes = probe.ProbeApplication(checkCtx, httpResult.Detail, `window.__driver && window.__driver.isLive && window.__driver.isLive()`)
			}
		}
	}

	ok, layer, failing := RunChain(tcp, httpResult, runtimeRes, domRes, appRes)

	cm := m.metricsFor(s.AccountID)
	kind := domain.ErrUnknown
	if !ok {
		kind = domain.ErrConnectionTimeout
	}
	cm.Record(domain.HealthMetric{
		Timestamp: start,
		Latency:   time.Since(start),
		Success:   ok,
		Kind:      kind,
	})

	newState := cm.Derive()

	var oldState domain.HealthState
	_ = m.sessions.Update(s.AccountID, func(session *domain.Session) {
		oldState = session.Health
		session.Health = newState
	})

	if oldState == newState {
		return
	}

	m.bus.Emit(events.SessionHealthChanged, "health.monitor", map[string]interface{}{
		"account_id": s.AccountID,
		"from":       string(oldState),
		"to":         string(newState),
	})

	if newState == domain.HealthFailed {
		alive := ProcessAliveFunc(s.PID)
		class, severity := Classify(layer, alive, cm.ConsecutiveFailures())
		m.log.Warn().
			Str("account_id", s.AccountID).
			Str("failure_class", string(class)).
			Int("severity", severity).
			Err(failing.Err).
			Msg("channel failed, running recovery ladder")

		if m.ladder != nil {
			backupWS := ""
			_, _ = m.ladder.Run(ctx, s.AccountID, httpResult.Detail, backupWS)
		}
	}

	if newState == domain.HealthHealthy && oldState != domain.HealthUnknown {
		m.log.Info().Str("account_id", s.AccountID).Msg("channel recovered, resuming dispatch eligibility")
	}
}

// ProcessAliveFunc is overridable by tests; production wiring points
// it at fleet.ProcessAlive, so health itself does not import fleet.
var ProcessAliveFunc = func(pid int) bool { return pid != 0 }
