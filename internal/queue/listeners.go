package queue

import (
	"fmt"

	"github.com/copytrade/fleet/internal/events"
	"github.com/rs/zerolog"
)

// RegisterListeners subscribes the job queue to the event bus: fleet
// events that imply deferred work become jobs instead of inline calls,
// so the emitting component never blocks on the follow-up.
func RegisterListeners(bus *events.Bus, manager *Manager, log zerolog.Logger) {
	log = log.With().Str("component", "event_listeners").Logger()

	// SessionCrashed -> backup_snapshot (HIGH). A crash is exactly the
	// moment the on-disk recovery state is worth shipping off-box.
	_ = bus.Subscribe(events.SessionCrashed, func(event *events.Event) {
		job := &Job{
			ID:          fmt.Sprintf("%s-%d", JobTypeBackupSnapshot, event.Timestamp.UnixNano()),
			Type:        JobTypeBackupSnapshot,
			Priority:    PriorityHigh,
			Payload:     event.Data,
			CreatedAt:   event.Timestamp,
			AvailableAt: event.Timestamp,
			MaxRetries:  3,
		}
		if err := manager.Enqueue(job); err != nil {
			log.Error().
				Err(err).
				Str("event_type", string(events.SessionCrashed)).
				Str("job_id", job.ID).
				Msg("failed to enqueue backup snapshot after crash")
		}
	})

	// SessionRetired -> backup_snapshot (MEDIUM). The retired session's
	// context file is the only trace of what it was doing.
	_ = bus.Subscribe(events.SessionRetired, func(event *events.Event) {
		job := &Job{
			ID:          fmt.Sprintf("%s-retired-%d", JobTypeBackupSnapshot, event.Timestamp.UnixNano()),
			Type:        JobTypeBackupSnapshot,
			Priority:    PriorityMedium,
			Payload:     event.Data,
			CreatedAt:   event.Timestamp,
			AvailableAt: event.Timestamp,
			MaxRetries:  3,
		}
		if err := manager.Enqueue(job); err != nil {
			log.Error().
				Err(err).
				Str("event_type", string(events.SessionRetired)).
				Str("job_id", job.ID).
				Msg("failed to enqueue backup snapshot after retirement")
		}
	})
}
