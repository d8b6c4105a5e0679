// Package queue provides an event queue system for asynchronous job
// processing: dispatch fan-out operations are enqueued as Jobs and
// drained by a WorkerPool.
package queue

import "time"

// JobType represents the kind of background work item the dispatch
// engine's worker pool processes.
type JobType string

const (
	// JobTypeSubmitOrder drives one Driver.SubmitOrder call against
	// one eligible Session.
	JobTypeSubmitOrder JobType = "submit_order"
	// JobTypeSubmitBracket drives one Driver.SubmitBracket call.
	JobTypeSubmitBracket JobType = "submit_bracket"
	// JobTypeExitPosition drives one Driver.ExitPosition call.
	JobTypeExitPosition JobType = "exit_position"
	// JobTypeReconcile is the post-deadline scrapeAccounts pass for a
	// non-terminal OrderRecord.
	JobTypeReconcile JobType = "reconcile_order"
	// JobTypeBackupSnapshot triggers an R2 snapshot of recovery state.
	JobTypeBackupSnapshot JobType = "backup_snapshot"
)

// Priority represents job priority
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// Job represents a queued job
type Job struct {
	ID          string
	Type        JobType
	Priority    Priority
	Payload     map[string]interface{}
	CreatedAt   time.Time
	AvailableAt time.Time
	Retries     int
	MaxRetries  int
}

// Queue interface for job queue operations
type Queue interface {
	Enqueue(job *Job) error
	Dequeue() (*Job, error)
	Size() int
}
