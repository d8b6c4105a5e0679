package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/copytrade/fleet/internal/domain"
)

// recordRank orders OrderRecord phases for the monotonicity guard.
// Terminal phases share the top rank: once terminal, nothing moves.
var recordRank = map[domain.OrderRecordPhase]int{
	domain.RecordPreValidated: 0,
	domain.RecordSubmitted:    1,
	domain.RecordAcknowledged: 2,
	domain.RecordPartial:      4,
	domain.RecordFilled:       4,
	domain.RecordRejected:     4,
	domain.RecordCancelled:    4,
	domain.RecordOrphaned:     4,
}

// terminalPhases are the phases from which a record never moves again.
var terminalPhases = map[domain.OrderRecordPhase]bool{
	domain.RecordFilled:    true,
	domain.RecordPartial:   true,
	domain.RecordRejected:  true,
	domain.RecordCancelled: true,
	domain.RecordOrphaned:  true,
}

// IsTerminal reports whether phase closes a record.
func IsTerminal(phase domain.OrderRecordPhase) bool { return terminalPhases[phase] }

// Store owns every OrderRecord produced by fan-out, keyed by
// fingerprint. Readers get copies; mutation flows through Advance and
// Put, which enforce the forward-only phase discipline.
type Store struct {
	mu      sync.RWMutex
	records map[string]*domain.OrderRecord
}

// NewStore builds an empty record store.
func NewStore() *Store {
	return &Store{records: make(map[string]*domain.OrderRecord)}
}

// Put inserts or replaces the record under its fingerprint. Replacing
// with a phase-regressed copy of an existing record is refused.
func (s *Store) Put(rec *domain.OrderRecord) error {
	if rec == nil || rec.Fingerprint == "" {
		return fmt.Errorf("dispatch: record without fingerprint")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.Fingerprint]; ok {
		if recordRank[rec.Phase] < recordRank[existing.Phase] {
			return fmt.Errorf("dispatch: refusing phase regression %s -> %s for %s",
				existing.Phase, rec.Phase, rec.Fingerprint)
		}
	}
	s.records[rec.Fingerprint] = rec
	return nil
}

// Get returns a copy of the record for fingerprint.
func (s *Store) Get(fingerprint string) (domain.OrderRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return domain.OrderRecord{}, false
	}
	return *rec, true
}

// Advance moves the record to phase, appending to its event log. A
// backward move, a repeat of the current phase, or any move out of a
// terminal phase is an error.
func (s *Store) Advance(fingerprint string, phase domain.OrderRecordPhase, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[fingerprint]
	if !ok {
		return fmt.Errorf("dispatch: no record %s", fingerprint)
	}
	if terminalPhases[rec.Phase] {
		return fmt.Errorf("dispatch: record %s already terminal at %s", fingerprint, rec.Phase)
	}
	if recordRank[phase] <= recordRank[rec.Phase] {
		return fmt.Errorf("dispatch: refusing phase regression %s -> %s for %s", rec.Phase, phase, fingerprint)
	}
	rec.RecordPhase(phase, at)
	if terminalPhases[phase] {
		rec.CompletedAt = at
	}
	return nil
}

// ByIntent returns copies of every record materialized from intentID,
// including bracket and scale-in children (their IntentID carries the
// parent's ID as a prefix).
func (s *Store) ByIntent(intentID string) []domain.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OrderRecord
	for _, rec := range s.records {
		if rec.IntentID == intentID || hasIntentPrefix(rec.IntentID, intentID) {
			out = append(out, *rec)
		}
	}
	return out
}

// NonTerminal returns copies of every open record older than cutoff,
// the candidates for the reconciliation pass.
func (s *Store) NonTerminal(cutoff time.Time) []domain.OrderRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.OrderRecord
	for _, rec := range s.records {
		if terminalPhases[rec.Phase] {
			continue
		}
		if !rec.SubmittedAt.IsZero() && rec.SubmittedAt.Before(cutoff) {
			out = append(out, *rec)
		}
	}
	return out
}

// OpenFingerprints returns the fingerprints of the account's
// non-terminal records, for the in-flight set carried in the
// persisted TradingContext.
func (s *Store) OpenFingerprints(accountID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, rec := range s.records {
		if rec.AccountID == accountID && !terminalPhases[rec.Phase] {
			out = append(out, rec.Fingerprint)
		}
	}
	return out
}

// Count reports how many records the store holds.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func hasIntentPrefix(id, parent string) bool {
	return len(id) > len(parent)+1 && id[:len(parent)] == parent && id[len(parent)] == '-'
}
