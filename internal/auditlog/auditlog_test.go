package auditlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/copytrade/fleet/internal/database"
	"github.com/copytrade/fleet/internal/events"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "audit.db"),
		Profile: database.ProfileCache,
		Name:    "audit",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())
	return NewStore(db, zerolog.Nop())
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := testStore(t)

	s.Record("session_phase_changed", "supervisor", "alice", map[string]interface{}{
		"from": "LAUNCHING",
		"to":   "CONNECTING",
	})
	s.Record("alert_raised", "dispatch", "bob", map[string]interface{}{
		"kind": "orphaned_order",
	})

	entries, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first; payload survives the msgpack round trip.
	assert.Equal(t, "alert_raised", entries[0].EventType)
	assert.Equal(t, "orphaned_order", entries[0].Payload["kind"])
	assert.Equal(t, "CONNECTING", entries[1].Payload["to"])
}

func TestStore_RecentForAccount(t *testing.T) {
	s := testStore(t)

	s.Record("session_crashed", "sentinel", "alice", nil)
	s.Record("session_crashed", "sentinel", "bob", nil)

	entries, err := s.RecentForAccount(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].AccountID)
}

func TestStore_AttachPersistsBusEvents(t *testing.T) {
	s := testStore(t)
	bus := events.NewBus(zerolog.Nop())
	s.Attach(bus)

	bus.Emit(events.SessionRetired, "supervisor", map[string]interface{}{
		"account_id":    "alice",
		"restart_count": 3,
	})

	require.Eventually(t, func() bool {
		entries, err := s.Recent(context.Background(), 10)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 20*time.Millisecond)

	entries, _ := s.Recent(context.Background(), 10)
	assert.Equal(t, string(events.SessionRetired), entries[0].EventType)
	assert.Equal(t, "alice", entries[0].AccountID)
}
