package dispatch

import (
	"testing"
	"time"

	"github.com/copytrade/fleet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storedRecord(t *testing.T, s *Store, fp string, phase domain.OrderRecordPhase) {
	t.Helper()
	rec := &domain.OrderRecord{Fingerprint: fp, IntentID: "i1", AccountID: "alice", Phase: phase, SubmittedAt: time.Now()}
	require.NoError(t, s.Put(rec))
}

func TestStore_AdvanceForwardOnly(t *testing.T) {
	s := NewStore()
	storedRecord(t, s, "fp-1", domain.RecordSubmitted)

	require.NoError(t, s.Advance("fp-1", domain.RecordAcknowledged, time.Now()))
	require.NoError(t, s.Advance("fp-1", domain.RecordFilled, time.Now()))

	// Terminal: no further movement, not even a repeat.
	assert.Error(t, s.Advance("fp-1", domain.RecordFilled, time.Now()))
	assert.Error(t, s.Advance("fp-1", domain.RecordOrphaned, time.Now()))

	rec, ok := s.Get("fp-1")
	require.True(t, ok)
	assert.Equal(t, domain.RecordFilled, rec.Phase)
	assert.False(t, rec.CompletedAt.IsZero())
}

func TestStore_AdvanceRefusesRegression(t *testing.T) {
	s := NewStore()
	storedRecord(t, s, "fp-2", domain.RecordAcknowledged)
	assert.Error(t, s.Advance("fp-2", domain.RecordSubmitted, time.Now()))
	assert.Error(t, s.Advance("fp-2", domain.RecordAcknowledged, time.Now()))
}

func TestStore_ByIntentIncludesChildren(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "p", IntentID: "i1"}))
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "c1", IntentID: "i1-tp"}))
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "c2", IntentID: "i1-L2"}))
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "other", IntentID: "i199"}))

	got := s.ByIntent("i1")
	assert.Len(t, got, 3)
}

func TestStore_NonTerminal(t *testing.T) {
	s := NewStore()
	old := time.Now().Add(-time.Minute)
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "open", IntentID: "i1", Phase: domain.RecordSubmitted, SubmittedAt: old}))
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "closed", IntentID: "i1", Phase: domain.RecordFilled, SubmittedAt: old}))
	require.NoError(t, s.Put(&domain.OrderRecord{Fingerprint: "fresh", IntentID: "i1", Phase: domain.RecordSubmitted, SubmittedAt: time.Now().Add(time.Minute)}))

	got := s.NonTerminal(time.Now())
	require.Len(t, got, 1)
	assert.Equal(t, "open", got[0].Fingerprint)
}

func TestStore_PutRefusesTerminalReplacementRegression(t *testing.T) {
	s := NewStore()
	storedRecord(t, s, "fp-3", domain.RecordFilled)
	err := s.Put(&domain.OrderRecord{Fingerprint: "fp-3", Phase: domain.RecordSubmitted})
	assert.Error(t, err)
}
