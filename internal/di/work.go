/**
 * Package di provides work-processor and job-queue registration.
 *
 * Recurring work types (backups, rotation, reconciliation sweeps,
 * profile cleanup) are registered here, along with the queue handlers
 * that execute dispatch and backup jobs, and the bus listeners that
 * turn fleet events into queued work.
 */
package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/copytrade/fleet/internal/config"
	"github.com/copytrade/fleet/internal/dispatch"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/queue"
	"github.com/copytrade/fleet/internal/work"
	"github.com/rs/zerolog"
)

// fleetMarketClock treats the market as always open: index futures
// trade nearly around the clock, so time-of-day gating here would
// starve the sweeps that settle in-flight orders. Maintenance work
// uses intervals instead of market timing.
type fleetMarketClock struct{}

func (fleetMarketClock) MarketOpen() bool { return true }

/**
 * InitializeWork registers the recurring work types, the queue
 * handlers, and the event-to-job listeners. The container must
 * already hold core services.
 */
func InitializeWork(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.WorkRegistry == nil {
		return fmt.Errorf("work registry not initialized")
	}

	container.WorkCache = work.NewCache(container.CacheDB.Conn())
	container.WorkScheduler = work.NewScheduler(container.WorkRegistry, container.WorkCache, fleetMarketClock{}, time.Minute, log)

	registerBackupWork(container, cfg)
	registerReconcileWork(container)
	registerMaintenanceWork(container, cfg, log)

	// Queue plumbing: dispatch handlers plus the backup-snapshot job.
	dispatch.RegisterHandlers(container.QueueRegistry, container.Engine)
	container.QueueRegistry.Register(queue.JobTypeBackupSnapshot, func(job *queue.Job) error {
		if err := container.BackupService.DailyBackup(); err != nil {
			return err
		}
		if container.R2BackupService != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()
			return container.R2BackupService.CreateAndUploadBackup(ctx)
		}
		return nil
	})

	queue.RegisterListeners(container.Bus, container.QueueManager, log)

	log.Debug().Msg("Work types and queue handlers registered")
	return nil
}

// registerBackupWork wires the daily local backup, the R2 upload, and
// the retention rotation that depends on it.
func registerBackupWork(container *Container, cfg *config.Config) {
	container.WorkRegistry.Register(&work.WorkType{
		ID:          "backup:local",
		Description: "Daily local copy of audit db and recovery snapshots",
		Interval:    24 * time.Hour,
		Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
			return container.BackupService.DailyBackup()
		},
	})

	if container.R2BackupService == nil {
		return
	}

	container.WorkRegistry.Register(&work.WorkType{
		ID:          "backup:r2",
		Description: "Ship the backup set to R2",
		Interval:    6 * time.Hour,
		DependsOn:   []string{"backup:local"},
		Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
			return container.R2BackupService.CreateAndUploadBackup(ctx)
		},
	})

	container.WorkRegistry.Register(&work.WorkType{
		ID:          "backup:rotate",
		Description: "Delete R2 backups past retention",
		Interval:    24 * time.Hour,
		DependsOn:   []string{"backup:r2"},
		Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
			return container.R2BackupService.RotateOldBackups(ctx, cfg.BackupRetentionDays)
		},
	})
}

// registerReconcileWork wires the safety-net sweep: any record still
// open well past its deadline gets a reconciliation job, even if the
// per-intent schedule was lost to a crash.
func registerReconcileWork(container *Container) {
	container.WorkRegistry.Register(&work.WorkType{
		ID:          "reconcile:sweep",
		Description: "Re-queue reconciliation for stale open orders",
		Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
			cutoff := time.Now().Add(-time.Minute)
			for _, rec := range container.Records.NonTerminal(cutoff) {
				job := &queue.Job{
					ID:       fmt.Sprintf("reconcile-sweep-%s", rec.Fingerprint),
					Type:     queue.JobTypeReconcile,
					Priority: queue.PriorityMedium,
					Payload: map[string]interface{}{
						"account_id": rec.AccountID,
						"intent_id":  rec.IntentID,
					},
					CreatedAt:   time.Now(),
					AvailableAt: time.Now(),
					MaxRetries:  1,
				}
				if err := container.QueueManager.Enqueue(job); err != nil {
					return err
				}
				progress.Report(rec.AccountID, "queued stale-order reconciliation")
			}
			return nil
		},
	})
}

// registerMaintenanceWork wires profile-directory cleanup and cache
// checkpointing.
func registerMaintenanceWork(container *Container, cfg *config.Config, log zerolog.Logger) {
	container.WorkRegistry.Register(&work.WorkType{
		ID:          "maintenance:profiles",
		Description: "Delete profile directories of sessions no longer registered",
		Interval:    24 * time.Hour,
		Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
			return cleanupOrphanProfiles(container, cfg.DataDir+"/profiles")
		},
	})

	container.WorkRegistry.Register(&work.WorkType{
		ID:          "maintenance:checkpoint",
		Description: "WAL-checkpoint the cache database",
		Interval:    6 * time.Hour,
		Execute: func(ctx context.Context, subject string, progress *work.ProgressReporter) error {
			return container.CacheDB.WALCheckpoint("")
		},
	})
}

// cleanupOrphanProfiles removes profile directories whose session is
// gone. Live profile paths come from the registry; any other directory
// under the profile root whose name has the <label>-<timestamp> shape
// of a launch attempt is removed. Names without a '-' are left alone.
func cleanupOrphanProfiles(container *Container, profileRoot string) error {
	live := map[string]bool{}
	for _, s := range container.Registry.All() {
		live[filepath.Base(s.ProfileDir)] = true
	}

	entries, err := os.ReadDir(profileRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || live[entry.Name()] {
			continue
		}
		if !strings.Contains(entry.Name(), "-") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(profileRoot, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// StartBackground launches the long-running workers: supervisors (one
// per credential), the health monitor, the worker pool, the scheduler
// and the status monitor. The caller owns ctx; cancelling it stops
// everything.
func StartBackground(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.WorkerPool.Start()

	if err := container.Monitor.Start(ctx); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	if err := container.WorkScheduler.Start(ctx); err != nil {
		return fmt.Errorf("start work scheduler: %w", err)
	}
	container.StatusMonitor.Start(cfg.HealthCheckPeriod)

	for _, cred := range container.Credentials.All() {
		cred := cred
		go container.Supervisor.Start(ctx, cred)
	}

	log.Info().Int("sessions", container.Credentials.Len()).Msg("Fleet supervisors started")
	return nil
}

// EligibleCount is used by main to decide the startup exit code.
func (c *Container) EligibleCount() int {
	count := 0
	for _, s := range c.Registry.All() {
		if domain.Eligible(s.Phase, s.Health) {
			count++
		}
	}
	return count
}
