package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imyashkale/fleetctl/internal/audit"
	"github.com/imyashkale/fleetctl/internal/config"
	"github.com/imyashkale/fleetctl/internal/database"
	"github.com/imyashkale/fleetctl/internal/events"
	"github.com/imyashkale/fleetctl/internal/handlers"
	"github.com/imyashkale/fleetctl/internal/logger"
	"github.com/imyashkale/fleetctl/internal/registry"
	"github.com/imyashkale/fleetctl/internal/repository"
	"github.com/imyashkale/fleetctl/internal/router"
	"github.com/imyashkale/fleetctl/internal/services"
	"github.com/imyashkale/fleetctl/internal/sshclient"
)

const shutdownTimeout = 45 * time.Second

func main() {

	ctx := context.Background()

	// Load application configuration
	cfg := config.New()
	logger.Init(cfg.LogLevel)
	logger.Info("Configuration loaded successfully")

	// Event bus shared by the lifecycle controller, the streams and the audit recorder
	bus := events.NewBus(events.DefaultSubscriberBuffer)

	// Audit sink: DynamoDB when a table is configured, log-only otherwise
	var auditRepo repository.AuditRepository
	if cfg.AuditEnabled() {
		dbConfig := database.NewConfig(cfg)
		logger.WithFields(map[string]interface{}{
			"table":  dbConfig.TableName,
			"region": dbConfig.Region,
		}).Info("Initializing DynamoDB audit sink")

		dbClient, err := database.NewClient(ctx, dbConfig)
		if err != nil {
			logger.Fatalf("Failed to initialize DynamoDB client: %v", err)
		}
		auditRepo = repository.NewAuditRepository(database.NewAuditOperations(dbClient))
	} else {
		logger.Info("AUDIT_TABLE_NAME not set, audit records are kept in memory")
		auditRepo = repository.NewMemoryAuditRepository(repository.DefaultMemoryRecords)
	}

	recorder := audit.NewRecorder(bus, auditRepo, audit.Options{
		Workers:        cfg.AuditWorkers,
		IncludeConsole: cfg.AuditConsole,
	})
	if err := recorder.Start(ctx); err != nil {
		logger.Fatalf("Failed to start audit recorder: %v", err)
	}

	// Remote shell transport
	provider, err := sshclient.NewSSHProvider(sshclient.Options{
		CredentialsDir: cfg.CredentialsDir,
		KnownHostsFile: cfg.KnownHostsFile,
		ConnectTimeout: cfg.SSHConnectTimeout,
		ExecTimeout:    cfg.SSHExecTimeout,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize SSH provider: %v", err)
	}

	// Lifecycle controller over the registry
	reg := registry.New()
	opts := services.DefaultLifecycleOptions()
	opts.ConsoleCapacity = cfg.ConsoleBufferLines
	opts.StartupGrace = cfg.StartupGrace
	opts.StopTimeout = cfg.StopTimeout
	opts.ConnectAttempts = cfg.SSHConnectAttempts
	opts.DefaultMaxMemory = cfg.DefaultMaxMemory
	lifecycle := services.NewLifecycleService(reg, provider, bus, opts)

	// Seed the fleet
	seeds, err := config.LoadServers(cfg.ServersFile)
	if err != nil {
		logger.Fatalf("Failed to load servers file: %v", err)
	}
	for _, seed := range seeds {
		if _, err := lifecycle.RegisterServer(seed.ServerConfig, seed.StartupFile); err != nil {
			logger.WithServer(seed.ID).WithField("error", err.Error()).Error("Skipping server from servers file")
		}
	}
	logger.WithFields(map[string]interface{}{
		"file":    cfg.ServersFile,
		"servers": len(reg.List()),
	}).Info("Fleet loaded")

	// Initialize handlers
	checkOrigin := originChecker(cfg.CORSOrigins)
	r := router.Setup(router.Handlers{
		Health:  handlers.NewHealthHandler(),
		Servers: handlers.NewServerHandler(lifecycle),
		Console: handlers.NewConsoleHandler(lifecycle, checkOrigin),
		Events:  handlers.NewEventsHandler(bus, checkOrigin),
		Audit:   handlers.NewAuditHandler(lifecycle, recorder),
	}, router.Options{
		JWTSecret:   []byte(cfg.JWTSecret),
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Setup graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err.Error()).Warn("HTTP server shutdown incomplete")
		}

		// Stop every running server before the transport goes away
		if err := lifecycle.Shutdown(shutdownCtx); err != nil {
			logger.WithField("error", err.Error()).Error("Some servers did not stop cleanly")
		}

		// Flush audit records, then close the bus
		recorder.Stop()
		if err := bus.Close(); err != nil {
			logger.WithField("error", err.Error()).Warn("Event bus close failed")
		}
		logger.Info("Shutdown complete")
	}()

	// Start server
	logger.Infof("Starting server on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Failed to start server: %v", err)
	}
	<-stopped
}

// originChecker accepts websocket upgrades from the configured origins, or
// from anywhere when none are configured
func originChecker(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
