package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func auditTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			module TEXT NOT NULL,
			account_id TEXT NOT NULL DEFAULT '',
			payload BLOB
		) STRICT
	`)
	require.NoError(t, err)
	return db
}

func TestRestoreValidator_CleanDatabase(t *testing.T) {
	db := auditTestDB(t)
	_, err := db.Exec(`INSERT INTO audit_events (ts, event_type, module, account_id) VALUES (?, 'session_phase_changed', 'supervisor', 'alice')`, time.Now().Unix())
	require.NoError(t, err)

	result, err := NewRestoreValidator(db).ValidateAll()
	require.NoError(t, err)
	assert.True(t, result.IsValid)
	assert.Empty(t, result.MalformedRows)
	assert.Empty(t, result.FutureRows)
	assert.Empty(t, result.IntegrityError)
}

func TestRestoreValidator_FlagsMalformedRows(t *testing.T) {
	db := auditTestDB(t)
	_, err := db.Exec(`INSERT INTO audit_events (ts, event_type, module) VALUES (?, '', 'supervisor')`, time.Now().Unix())
	require.NoError(t, err)

	result, err := NewRestoreValidator(db).ValidateAll()
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Len(t, result.MalformedRows, 1)
}

func TestRestoreValidator_FlagsFutureTimestamps(t *testing.T) {
	db := auditTestDB(t)
	future := time.Now().Add(48 * time.Hour).Unix()
	_, err := db.Exec(`INSERT INTO audit_events (ts, event_type, module) VALUES (?, 'alert_raised', 'dispatch')`, future)
	require.NoError(t, err)

	result, err := NewRestoreValidator(db).ValidateAll()
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.Len(t, result.FutureRows, 1)
}
