package events

import "time"

// EventType names one kind of event flowing through the Bus.
type EventType string

const (
	// SessionPhaseChanged fires on every LifecyclePhase transition.
	// Data: {"account_id", "from", "to"}.
	SessionPhaseChanged EventType = "session_phase_changed"
	// SessionHealthChanged fires on every HealthState transition.
	// Data: {"account_id", "from", "to"}.
	SessionHealthChanged EventType = "session_health_changed"
	// SessionCrashed fires when the Supervisor detects a dead process.
	// Data: {"account_id", "pid"}.
	SessionCrashed EventType = "session_crashed"
	// SessionRetired fires when a Session exhausts its restart budget.
	// Data: {"account_id", "restart_count"}.
	SessionRetired EventType = "session_retired"
	// OrderRecordPhaseChanged fires on every OrderRecord phase
	// transition. Data: {"fingerprint", "account_id", "phase"}.
	OrderRecordPhaseChanged EventType = "order_record_phase_changed"
	// DispatchCompleted fires once an intent's fan-out has aggregated.
	// Data: {"intent_id", "outcome"}.
	DispatchCompleted EventType = "dispatch_completed"
	// AlertRaised fires for conditions an operator must see: orphaned
	// orders, retired sessions, exhausted recovery ladders.
	// Data: {"kind", "account_id", "detail"}.
	AlertRaised EventType = "alert_raised"
	// SystemStatusChanged fires when the aggregate fleet status
	// (counts, overall verdict) differs from the last poll.
	// Data: the SystemStatusResponse fields.
	SystemStatusChanged EventType = "system_status_changed"
)

// Event is one message published on the Bus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Module    string
	Data      map[string]interface{}
}
