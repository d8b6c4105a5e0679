/**
 * Package di provides core service initialization for the container.
 *
 * Services are created in strict dependency order: event bus and audit
 * log first (everything emits events), then the fleet core (registry,
 * ports, recovery, driver pool, supervisor), the health monitor over
 * it, the dispatch engine over both, and finally the HTTP surface.
 */
package di

import (
	"context"
	"fmt"

	"github.com/copytrade/fleet/internal/auditlog"
	"github.com/copytrade/fleet/internal/config"
	"github.com/copytrade/fleet/internal/credentials"
	"github.com/copytrade/fleet/internal/dispatch"
	"github.com/copytrade/fleet/internal/driver"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/fleet"
	"github.com/copytrade/fleet/internal/health"
	"github.com/copytrade/fleet/internal/probe"
	"github.com/copytrade/fleet/internal/queue"
	"github.com/copytrade/fleet/internal/reliability"
	"github.com/copytrade/fleet/internal/server"
	"github.com/copytrade/fleet/internal/work"
	"github.com/rs/zerolog"
)

/**
 * InitializeServices wires everything between the databases and the
 * work processor. The container must already hold open databases.
 */
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	// Event bus + audit trail. The audit log subscribes before any
	// other component exists, so no early event is lost.
	container.Bus = events.NewBus(log)
	container.AuditLog = auditlog.NewStore(container.AuditDB, log)
	container.AuditLog.Attach(container.Bus)

	// Credentials, frozen at load.
	creds, err := credentials.Load(cfg.CredentialsPath)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	container.Credentials = creds

	// Fleet core.
	container.Registry = fleet.NewRegistry()
	container.Ports = fleet.NewPortAllocator(cfg.SessionPortBase)
	recovery, err := fleet.NewRecoveryStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("create recovery store: %w", err)
	}
	container.Recovery = recovery
	container.DriverPool = driver.NewPool()
	container.Driver = driver.New(driver.DefaultConfig(), nil)

	container.Supervisor = fleet.NewSupervisor(fleet.SupervisorConfig{
		ChromeBinary:  cfg.ChromePath,
		AppURL:        cfg.AppURL,
		ProfileRoot:   cfg.DataDir + "/profiles",
		PhaseBudget:   cfg.PhaseBudget,
		RestartPolicy: fleet.DefaultRestartPolicy(),
	}, container.Registry, container.Ports, container.Recovery, container.Bus, container.DriverPool, log)

	// Health monitor over the fleet. The ladder's verification probe
	// is a bounded runtime check against the session's current port.
	health.ProcessAliveFunc = fleet.ProcessAlive
	verify := func(ctx context.Context, accountID string) bool {
		s, ok := container.Registry.Get(accountID)
		if !ok {
			return false
		}
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
		defer cancel()
		res := probe.ProbeHTTP(probeCtx, s.DebugPort)
		if !res.OK {
			return false
		}
		return probe.ProbeRuntime(probeCtx, res.Detail).OK
	}
	container.Ladder = health.NewLadder(container.DriverPool, container.Supervisor, verify)

	thresholds := health.DefaultThresholds()
	thresholds.CheckInterval = cfg.HealthCheckPeriod
	container.Monitor = health.NewMonitor(thresholds, container.Registry, container.DriverPool, container.Ladder, container.Bus, cfg.ProbeFanout, log)

	// Dispatch engine over the job queue.
	container.Records = dispatch.NewStore()
	container.QueueManager = queue.NewManager(queue.NewMemoryQueue()).WithHistory(container.CacheDB.Conn())
	container.QueueRegistry = queue.NewRegistry()
	container.WorkerPool = queue.NewWorkerPool(container.QueueManager, container.QueueRegistry, cfg.DispatchWorkers)
	container.WorkerPool.SetLogger(log)

	executor := dispatch.NewBridgeExecutor(container.Driver, container.DriverPool)
	container.Engine = dispatch.NewEngine(dispatch.DefaultConfig(), container.Registry, executor, container.Records, container.Bus, container.QueueManager, log)
	container.Engine.SetContextRecorder(newContextRecorder(container.Registry, container.Recovery, log))

	// Reliability: local backups always, R2 only when configured.
	container.BackupService = reliability.NewBackupService(cfg.DataDir, log)
	if cfg.R2AccountID != "" {
		r2Client, err := reliability.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, log)
		if err != nil {
			return fmt.Errorf("create r2 client: %w", err)
		}
		container.R2BackupService = reliability.NewR2BackupService(r2Client, container.BackupService, cfg.DataDir, log)
		container.RestoreService = reliability.NewRestoreService(r2Client, cfg.DataDir, log)
	} else {
		log.Info().Msg("R2 credentials not configured, cloud backup disabled")
	}

	// The work registry exists before the HTTP surface so the jobs
	// endpoint can render it; InitializeWork fills it in afterwards.
	container.WorkRegistry = work.NewRegistry()

	// HTTP surface.
	dispatchHandlers := server.NewDispatchHandlers(container.Engine, log)
	webhookHandlers := server.NewWebhookHandlers(container.Engine, cfg.WebhookPassphrase, log)
	fleetHandlers := server.NewFleetHandlers(container.Registry, container.AuditLog, log)
	systemHandlers := server.NewSystemHandlers(container.Registry, container.Records, container.WorkRegistry, log)
	eventsHandler := server.NewEventsStreamHandler(container.Bus, log)

	var r2Handlers *server.R2BackupHandlers
	if container.R2BackupService != nil {
		r2Handlers = server.NewR2BackupHandlers(container.R2BackupService, container.RestoreService, container.QueueManager, log)
	}

	container.Server = server.New(cfg.HTTPPort, server.Handlers{
		Dispatch: dispatchHandlers,
		Webhook:  webhookHandlers,
		Fleet:    fleetHandlers,
		System:   systemHandlers,
		Events:   eventsHandler,
		R2Backup: r2Handlers,
	}, log)
	container.StatusMonitor = server.NewStatusMonitor(container.Bus, systemHandlers, log)

	log.Debug().Msg("Core services initialized")
	return nil
}
