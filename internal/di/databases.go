/**
 * Package di provides database initialization for the container.
 *
 * Two databases back the fleet:
 * - audit.db (ledger profile): append-only operational audit trail
 * - cache.db (cache profile): work-scheduler throttles and job history
 */
package di

import (
	"fmt"
	"path/filepath"

	"github.com/copytrade/fleet/internal/auditlog"
	"github.com/copytrade/fleet/internal/config"
	"github.com/copytrade/fleet/internal/credentials"
	"github.com/copytrade/fleet/internal/database"
	"github.com/copytrade/fleet/internal/dispatch"
	"github.com/copytrade/fleet/internal/driver"
	"github.com/copytrade/fleet/internal/events"
	"github.com/copytrade/fleet/internal/fleet"
	"github.com/copytrade/fleet/internal/health"
	"github.com/copytrade/fleet/internal/queue"
	"github.com/copytrade/fleet/internal/reliability"
	"github.com/copytrade/fleet/internal/server"
	"github.com/copytrade/fleet/internal/work"
	"github.com/rs/zerolog"
)

// Container holds every wired component. Fields are populated in
// dependency order by InitializeDatabases, InitializeServices and
// InitializeWork.
type Container struct {
	// Databases
	AuditDB *database.DB
	CacheDB *database.DB

	// Ambient services
	AuditLog    *auditlog.Store
	Bus         *events.Bus
	Credentials *credentials.Store

	// Fleet core
	Registry   *fleet.Registry
	Ports      *fleet.PortAllocator
	Recovery   *fleet.RecoveryStore
	DriverPool *driver.Pool
	Driver     *driver.Driver
	Supervisor *fleet.Supervisor
	Ladder     *health.Ladder
	Monitor    *health.Monitor

	// Dispatch
	Records       *dispatch.Store
	QueueManager  *queue.Manager
	QueueRegistry *queue.Registry
	WorkerPool    *queue.WorkerPool
	Engine        *dispatch.Engine

	// Background work
	WorkRegistry  *work.Registry
	WorkCache     *work.Cache
	WorkScheduler *work.Scheduler

	// Reliability
	BackupService   *reliability.BackupService
	R2BackupService *reliability.R2BackupService
	RestoreService  *reliability.RestoreService

	// HTTP
	Server        *server.Server
	StatusMonitor *server.StatusMonitor
}

/**
 * InitializeDatabases opens and migrates the audit and cache
 * databases, returning a container with only the database fields set.
 */
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	auditDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "audit.db"),
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := auditDB.Migrate(); err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	if err := cacheDB.Migrate(); err != nil {
		auditDB.Close()
		cacheDB.Close()
		return nil, fmt.Errorf("migrate cache database: %w", err)
	}

	log.Debug().Msg("Databases initialized")
	return &Container{AuditDB: auditDB, CacheDB: cacheDB}, nil
}

// CloseDatabases closes every open database, for error-path cleanup
// and shutdown.
func (c *Container) CloseDatabases() {
	if c.AuditDB != nil {
		c.AuditDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
