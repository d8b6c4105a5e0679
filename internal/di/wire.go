/**
 * Package di provides dependency injection wiring and initialization.
 *
 * This package implements a clean architecture dependency injection container
 * that wires all fleet components in the correct dependency order.
 *
 * Architecture:
 * - Databases are initialized first (audit + cache)
 * - Credentials and the instrument catalog are loaded and frozen
 * - Core services are created with constructor injection
 *   (event bus -> registry -> driver pool -> supervisor -> monitor ->
 *    dispatch engine -> HTTP handlers)
 * - Work processor is registered with all recurring job types
 *
 * The container follows clean architecture principles:
 * - Domain layer is pure (no infrastructure dependencies)
 * - Dependency flows inward (handlers -> engine -> driver -> domain)
 * - Constructor injection only
 */
package di

import (
	"fmt"

	"github.com/copytrade/fleet/internal/config"
	"github.com/rs/zerolog"
)

/**
 * Wire initializes all dependencies and returns a fully configured container.
 *
 * This is the main entry point for dependency injection. It orchestrates
 * the initialization of all fleet components in the correct order:
 *
 * 1. Initialize databases (audit + cache)
 * 2. Load credentials (frozen at init)
 * 3. Initialize core services (bus, fleet, health, driver, dispatch, server)
 * 4. Initialize the work processor and job queue handlers
 *
 * The function ensures proper cleanup on error by closing the databases
 * that were successfully initialized before the error occurred.
 */
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2 + 3: Initialize credentials and core services
	if err := InitializeServices(container, cfg, log); err != nil {
		container.CloseDatabases()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 4: Initialize the work processor and queue handlers
	if err := InitializeWork(container, cfg, log); err != nil {
		container.CloseDatabases()
		return nil, fmt.Errorf("failed to initialize work processor: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
