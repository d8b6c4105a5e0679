// Package auditlog persists the fleet's operational history — phase
// transitions, health changes, failure classifications, alerts — into
// the append-only audit database. It is an operator trail, not an
// order ledger: OrderRecords stay in memory and die with the process.
package auditlog

import (
	"context"
	"time"

	"github.com/copytrade/fleet/internal/database"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/utils"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Store writes audit rows and serves the dashboard's recent-events
// queries. Event payloads are msgpack-encoded: compact, schemaless,
// and decodable without knowing the event's shape up front.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// Entry is one decoded audit row.
type Entry struct {
	ID        int64                  `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"event_type"`
	Module    string                 `json:"module"`
	AccountID string                 `json:"account_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewStore builds a Store over the audit database.
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "auditlog").Logger()}
}

// Record appends one event. Failures are logged, never propagated:
// the audit trail must not be able to fail an operation it observes.
func (s *Store) Record(eventType, module, accountID string, payload map[string]interface{}) {
	var blob []byte
	if len(payload) > 0 {
		data, err := msgpack.Marshal(payload)
		if err != nil {
			s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to encode audit payload")
		} else {
			blob = data
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO audit_events (ts, event_type, module, account_id, payload) VALUES (?, ?, ?, ?, ?)`,
		utils.ToUnix(time.Now()), eventType, module, accountID, blob,
	)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to write audit event")
	}
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, event_type, module, account_id, payload
		 FROM audit_events ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var blob []byte
		if err := rows.Scan(&e.ID, &ts, &e.EventType, &e.Module, &e.AccountID, &blob); err != nil {
			return nil, err
		}
		e.Timestamp = utils.FromUnix(ts)
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &e.Payload); err != nil {
				s.log.Warn().Err(err).Int64("id", e.ID).Msg("failed to decode audit payload")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentForAccount returns up to limit entries for one account,
// newest first.
func (s *Store) RecentForAccount(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, event_type, module, account_id, payload
		 FROM audit_events WHERE account_id = ? ORDER BY ts DESC, id DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts int64
		var blob []byte
		if err := rows.Scan(&e.ID, &ts, &e.EventType, &e.Module, &e.AccountID, &blob); err != nil {
			return nil, err
		}
		e.Timestamp = utils.FromUnix(ts)
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &e.Payload); err != nil {
				s.log.Warn().Err(err).Int64("id", e.ID).Msg("failed to decode audit payload")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// auditedEvents are the bus events worth keeping on disk. The
// high-frequency OrderRecordPhaseChanged stream stays memory-only.
var auditedEvents = []events.EventType{
	events.SessionPhaseChanged,
	events.SessionHealthChanged,
	events.SessionCrashed,
	events.SessionRetired,
	events.DispatchCompleted,
	events.AlertRaised,
}

// Attach subscribes the store to the event bus so every audited event
// is persisted as it happens.
func (s *Store) Attach(bus *events.Bus) {
	for _, et := range auditedEvents {
		et := et
		_ = bus.Subscribe(et, func(event *events.Event) {
			accountID, _ := event.Data["account_id"].(string)
			s.Record(string(event.Type), event.Module, accountID, event.Data)
		})
	}
}
