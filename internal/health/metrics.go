// Package health implements the Connection Health Monitor: periodic
// layered probing, rolling per-channel metrics, failure classification,
// and the recovery ladder that bridges back to a healthy channel.
package health

import (
	"sync"
	"time"

	"github.com/copytrade/fleet/internal/domain"
)

// Thresholds configures the rules metrics.go uses to derive a
// HealthState from a rolling metric window.
type Thresholds struct {
	CheckInterval     time.Duration
	FailureThreshold  int
	RecoveryThreshold int
	DegradedResponse  time.Duration
	FailedResponse    time.Duration
	WindowSize        int
}

// DefaultThresholds is the production tuning: three consecutive
// failures fail a channel, two consecutive successes recover it.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CheckInterval:     5 * time.Second,
		FailureThreshold:  3,
		RecoveryThreshold: 2,
		DegradedResponse:  2 * time.Second,
		FailedResponse:    5 * time.Second,
		WindowSize:        20,
	}
}

// ChannelMetrics is the rolling health record for one Session channel
// (primary or backup), guarded by its own lock so per-channel updates
// never contend with the registry lock used for registration.
type ChannelMetrics struct {
	mu                  sync.Mutex
	window              []domain.HealthMetric
	consecutiveFailures int
	consecutiveSuccess  int
	lastSuccess         time.Time
	lastFailure         time.Time
	cfg                 Thresholds
}

// NewChannelMetrics builds an empty metrics record.
func NewChannelMetrics(cfg Thresholds) *ChannelMetrics {
	return &ChannelMetrics{cfg: cfg}
}

// Record appends one HealthMetric sample and updates the consecutive
// success/failure streaks.
func (m *ChannelMetrics) Record(sample domain.HealthMetric) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, sample)
	if len(m.window) > m.cfg.WindowSize {
		m.window = m.window[len(m.window)-m.cfg.WindowSize:]
	}

	if sample.Success {
		m.consecutiveSuccess++
		m.consecutiveFailures = 0
		m.lastSuccess = sample.Timestamp
	} else {
		m.consecutiveFailures++
		m.consecutiveSuccess = 0
		m.lastFailure = sample.Timestamp
	}
}

// Derive turns the current streaks and most recent latency sample
// into a HealthState.
func (m *ChannelMetrics) Derive() domain.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.window) == 0 {
		return domain.HealthUnknown
	}

	if m.consecutiveFailures >= m.cfg.FailureThreshold {
		return domain.HealthFailed
	}

	last := m.window[len(m.window)-1]
	if last.Latency > m.cfg.DegradedResponse || (m.consecutiveFailures >= 1 && m.consecutiveFailures < m.cfg.FailureThreshold) {
		return domain.HealthDegraded
	}

	if m.consecutiveFailures == 0 && m.consecutiveSuccess >= m.cfg.RecoveryThreshold {
		return domain.HealthHealthy
	}

	return domain.HealthDegraded
}

// ConsecutiveFailures reports the current failure streak length.
func (m *ChannelMetrics) ConsecutiveFailures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveFailures
}
