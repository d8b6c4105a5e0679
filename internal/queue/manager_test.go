package queue

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestManager_RecordExecutionWithoutHistoryIsNoOp(t *testing.T) {
	m := NewManager(NewMemoryQueue())
	assert.NoError(t, m.RecordExecution(JobTypeSubmitOrder, "success"))
}

func TestManager_RecordExecutionUpserts(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE job_history (
			job_type TEXT PRIMARY KEY,
			last_run_at TEXT NOT NULL,
			last_status TEXT NOT NULL DEFAULT 'success'
		) STRICT
	`)
	require.NoError(t, err)

	m := NewManager(NewMemoryQueue()).WithHistory(db)

	require.NoError(t, m.RecordExecution(JobTypeBackupSnapshot, "failed"))
	require.NoError(t, m.RecordExecution(JobTypeBackupSnapshot, "success"))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM job_history`).Scan(&count))
	assert.Equal(t, 1, count)

	var status string
	require.NoError(t, db.QueryRow(`SELECT last_status FROM job_history WHERE job_type = ?`, string(JobTypeBackupSnapshot)).Scan(&status))
	assert.Equal(t, "success", status)
}
