package queue

import (
	"database/sql"
	"time"
)

// Manager coordinates queue operations for the worker pool and the
// handlers it dispatches to, and records per-type execution outcomes
// into the cache database's job_history table when one is attached.
type Manager struct {
	queue   *MemoryQueue
	history *sql.DB
}

// NewManager creates a new queue manager
func NewManager(queue *MemoryQueue) *Manager {
	return &Manager{queue: queue}
}

// WithHistory attaches the cache database so job outcomes survive for
// the dashboard's maintenance view. Without it, outcomes are only in
// the logs.
func (m *Manager) WithHistory(db *sql.DB) *Manager {
	m.history = db
	return m
}

// Enqueue adds a job to the queue
func (m *Manager) Enqueue(job *Job) error {
	return m.queue.Enqueue(job)
}

// Dequeue removes and returns the highest priority ready job
func (m *Manager) Dequeue() (*Job, error) {
	return m.queue.Dequeue()
}

// Size returns the number of jobs in the queue
func (m *Manager) Size() int {
	return m.queue.Size()
}

// RecordExecution upserts the last run time and status for a job type.
func (m *Manager) RecordExecution(jobType JobType, status string) error {
	if m.history == nil {
		return nil
	}
	_, err := m.history.Exec(`
		INSERT INTO job_history (job_type, last_run_at, last_status)
		VALUES (?, ?, ?)
		ON CONFLICT(job_type) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_status = excluded.last_status
	`, string(jobType), time.Now().UTC().Format(time.RFC3339), status)
	return err
}
