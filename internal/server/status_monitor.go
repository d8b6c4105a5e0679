package server

import (
	"time"

	"github.com/copytrade/fleet/internal/events"
	"github.com/rs/zerolog"
)

// StatusMonitor periodically recomputes the aggregate fleet status
// and emits an event only when it changed, so the dashboard's event
// stream is quiet while nothing moves.
type StatusMonitor struct {
	bus            *events.Bus
	systemHandlers *SystemHandlers
	log            zerolog.Logger

	lastSystemStatus *SystemStatusResponse

	// Dependency injection for testing
	getSystemStatus func() (SystemStatusResponse, error)
}

// NewStatusMonitor creates a new status monitor.
func NewStatusMonitor(bus *events.Bus, systemHandlers *SystemHandlers, log zerolog.Logger) *StatusMonitor {
	return &StatusMonitor{
		bus:            bus,
		systemHandlers: systemHandlers,
		log:            log.With().Str("component", "status_monitor").Logger(),
		getSystemStatus: func() (SystemStatusResponse, error) {
			if systemHandlers == nil {
				return SystemStatusResponse{}, nil
			}
			return systemHandlers.GetSystemStatusSnapshot()
		},
	}
}

// Start begins periodic status monitoring.
func (m *StatusMonitor) Start(interval time.Duration) {
	go m.monitor(interval)
}

func (m *StatusMonitor) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do initial check
	m.checkSystemStatus()

	for range ticker.C {
		m.checkSystemStatus()
	}
}

// checkSystemStatus polls the snapshot and emits only on change.
func (m *StatusMonitor) checkSystemStatus() {
	status, err := m.getSystemStatus()
	if err != nil {
		m.log.Error().Err(err).Msg("failed to get system status")
		return
	}

	if m.lastSystemStatus != nil && statusEqual(*m.lastSystemStatus, status) {
		return
	}
	m.lastSystemStatus = &status

	m.bus.Emit(events.SystemStatusChanged, "status_monitor", map[string]interface{}{
		"status":         status.Status,
		"session_count":  status.SessionCount,
		"ready_count":    status.ReadyCount,
		"healthy_count":  status.HealthyCount,
		"eligible_count": status.EligibleCount,
		"retired_count":  status.RetiredCount,
		"open_orders":    status.OpenOrders,
	})
}

// statusEqual ignores LastCheck: a fresh timestamp alone is not a
// change worth broadcasting.
func statusEqual(a, b SystemStatusResponse) bool {
	a.LastCheck = ""
	b.LastCheck = ""
	return a == b
}
