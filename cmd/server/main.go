// Command server runs the copy-trade fleet: it supervises one headed
// browser session per configured credential, monitors their health,
// and serves the dashboard/webhook HTTP API that fans trading intents
// out across every healthy session.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/copytrade/fleet/internal/config"
	"github.com/copytrade/fleet/internal/di"
	"github.com/copytrade/fleet/internal/domain"
	"github.com/copytrade/fleet/internal/reliability"
	"github.com/copytrade/fleet/pkg/logger"
	"github.com/rs/zerolog"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; this is the one place stderr is written raw.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		return 1
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Str("data_dir", cfg.DataDir).Msg("fleet starting")

	// Phase 2 of a staged restore runs before anything opens the
	// databases or reads recovery snapshots.
	if err := applyPendingRestore(cfg, log); err != nil {
		log.Error().Err(err).Msg("staged restore failed")
		return 1
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("wiring failed")
		return 1
	}
	defer container.CloseDatabases()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := di.StartBackground(ctx, container, cfg, log); err != nil {
		log.Error().Err(err).Msg("failed to start background workers")
		return 1
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- container.Server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
			// A listener failure before any session came up is a
			// startup failure, not a normal shutdown.
			if container.EligibleCount() == 0 {
				cancel()
				return 1
			}
		}
	}

	return shutdown(cancel, container, log)
}

// shutdown cancels every worker, flushes trading context snapshots,
// and drains the HTTP listener.
func shutdown(cancel context.CancelFunc, container *di.Container, log zerolog.Logger) int {
	// Snapshot every session's trading context before the supervisors
	// die with the context cancellation.
	for _, s := range container.Registry.All() {
		if s.Phase == domain.PhaseRetired {
			continue
		}
		snapshot := s.Context
		snapshot.UpdatedAt = time.Now()
		if err := container.Recovery.Save(snapshot); err != nil {
			log.Warn().Err(err).Str("account_id", s.AccountID).Msg("failed to flush trading context")
		}
	}

	cancel()
	container.WorkerPool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := container.Server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}

	log.Info().Msg("fleet stopped")
	return 0
}

// applyPendingRestore executes phase 2 of a staged R2 restore, if one
// is flagged.
func applyPendingRestore(cfg *config.Config, log zerolog.Logger) error {
	if cfg.R2AccountID == "" {
		return nil
	}
	r2Client, err := reliability.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, log)
	if err != nil {
		return err
	}
	restore := reliability.NewRestoreService(r2Client, cfg.DataDir, log)

	pending, err := restore.CheckPendingRestore()
	if err != nil {
		return err
	}
	if !pending {
		return nil
	}

	log.Warn().Msg("pending restore found, applying before startup")
	return restore.ExecuteStagedRestore()
}
