package domain

import "time"

// Session is the fleet's view of a single broker account's browser
// process: its identity, where it is in the lifecycle lattice, and
// the last health verdict reported against it. One Session exists per
// configured credential for the life of the fleet; it is destroyed
// only on operator shutdown or after exhausting its restart budget.
type Session struct {
	AccountID    string
	DebugPort    int
	BackupPort   int
	ProfileDir   string
	PID          int
	Phase        LifecyclePhase
	Health       HealthState
	Context      TradingContext
	RestartCount int
	CreatedAt    time.Time
	LaunchedAt   time.Time
	LastReadyAt  time.Time
	LastError    error
}

// TradingContext is the durable, per-account snapshot restored after a
// crash or restart so a resumed session knows what it was last doing.
// It is persisted with a write-temp-then-rename so a crash mid-write
// never leaves a half-written file behind.
type TradingContext struct {
	AccountID            string    `json:"account_id"`
	Symbol               string    `json:"symbol"`
	Quantity             float64   `json:"quantity"`
	TakeProfitTicks      int       `json:"tp"`
	StopLossTicks        int       `json:"sl"`
	TickSize             float64   `json:"tick"`
	AuthIdentity         string    `json:"auth_identity"`
	InFlightFingerprints []string  `json:"in_flight_fingerprints"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// OrderIntent is the caller-submitted request before any per-account
// materialization: one intent fans out into one OrderRecord per
// eligible session. Account is either a specific account label or
// "all" (the default) for full copy-trade fan-out.
type OrderIntent struct {
	ID           string
	Account      string
	Symbol       string
	Side         string
	Quantity     float64
	OrderType    string
	LimitPrice   float64
	StopPrice    float64
	TickSize     float64
	Bracket      bool
	TakeProfit   int
	StopLoss     int
	ScaleLevels  int
	ScaleInTicks int
	ReceivedAt   time.Time
}

// AccountAll is the Account value meaning "every eligible session".
const AccountAll = "all"

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeStop   = "STOP"
)

// Fill is one partial or complete execution against an OrderRecord.
type Fill struct {
	Timestamp time.Time
	Price     float64
	Quantity  float64
}

// OrderRecordPhase tracks one OrderRecord through submission.
type OrderRecordPhase string

const (
	RecordPreValidated OrderRecordPhase = "PRE_VALIDATED"
	RecordSubmitted    OrderRecordPhase = "SUBMITTED"
	RecordAcknowledged OrderRecordPhase = "ACKNOWLEDGED"
	RecordFilled       OrderRecordPhase = "FILLED"
	RecordPartial      OrderRecordPhase = "PARTIAL"
	RecordRejected     OrderRecordPhase = "REJECTED"
	RecordCancelled    OrderRecordPhase = "CANCELLED"
	RecordOrphaned     OrderRecordPhase = "ORPHANED"
)

// PhaseTransition is one entry in an OrderRecord's event log.
type PhaseTransition struct {
	Phase OrderRecordPhase
	At    time.Time
}

// OrderRecord is the per-account materialization of an OrderIntent:
// what was actually attempted against one session, and how it landed.
// Fingerprint is a hash of session+intent+monotonic sequence, stable
// enough to dedupe and to link bracket children back to their parent.
type OrderRecord struct {
	Fingerprint      string
	IntentID         string
	AccountID        string
	Phase            OrderRecordPhase
	SubmittedAt      time.Time
	FirstFillAt      time.Time
	CompletedAt      time.Time
	Fills            []Fill
	RequestedPrice   float64
	AverageFillPrice float64
	Slippage         float64
	BracketChildren  []string
	RejectionCode    string
	RejectionReason  string
	ErrorKind        ErrorKind
	Events           []PhaseTransition
}

// RecordPhase appends a PhaseTransition and updates the current Phase.
func (r *OrderRecord) RecordPhase(phase OrderRecordPhase, at time.Time) {
	r.Phase = phase
	r.Events = append(r.Events, PhaseTransition{Phase: phase, At: at})
}

// DispatchOutcome is the aggregate verdict over all OrderRecords
// produced from one OrderIntent.
type DispatchOutcome string

const (
	OutcomeSuccess DispatchOutcome = "SUCCESS"
	OutcomePartial DispatchOutcome = "PARTIAL"
	OutcomeFailure DispatchOutcome = "FAILURE"
)

// HealthMetric is one sample in a session's rolling health window.
type HealthMetric struct {
	Timestamp time.Time
	Latency   time.Duration
	Success   bool
	Kind      ErrorKind
}
