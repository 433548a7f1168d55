package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/architect"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/config"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/crypto"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/database"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/executor"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/handlers"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/investigator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/lineage"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/llm"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/logging"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/middleware"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/notifier"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/orchestrator"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/repositories"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/scanner"
	"github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/sentinels"

	_ "github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse/mssql"
	_ "github.com/OpenAgents-Illinois/Aegis-Data-Intelligence/pkg/warehouse/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck // stderr sync is best-effort

	logger.Info("starting aegis",
		zap.String("version", cfg.Version),
		zap.String("bind", cfg.BindAddr+":"+cfg.Port),
		zap.Bool("llm_enabled", cfg.LLM.Enabled()))

	ctx := context.Background()

	// Migrations run on a throwaway database/sql handle; the service
	// itself uses the pgx pool.
	migrationDB, err := sql.Open("pgx", cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store for migrations", zap.Error(err))
		return 1
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Error("migrations failed", zap.Error(err))
		migrationDB.Close()
		return 1
	}
	migrationDB.Close()

	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.DBPath})
	if err != nil {
		logger.Error("store unreachable", zap.String("error", logging.SanitizeError(err)))
		return 1
	}
	defer db.Close()

	encryptor, err := crypto.NewCredentialEncryptor(cfg.EncryptionKey)
	if err != nil {
		logger.Error("invalid encryption key", zap.Error(err))
		return 1
	}

	// Repositories
	connectionRepo := repositories.NewConnectionRepository(db)
	tableRepo := repositories.NewTableRepository(db)
	snapshotRepo := repositories.NewSnapshotRepository(db)
	anomalyRepo := repositories.NewAnomalyRepository(db)
	incidentRepo := repositories.NewIncidentRepository(db)
	lineageRepo := repositories.NewLineageRepository(db)

	// Core services
	events := notifier.New(cfg.EventBuffer, logger)
	lineageSvc := lineage.NewService(lineageRepo, logger)
	chatClient := llm.NewFromConfig(&cfg.LLM, logger)

	arch := architect.New(chatClient, lineageSvc, anomalyRepo, tableRepo, snapshotRepo, logger)
	exec := executor.New()
	orch := orchestrator.New(incidentRepo, anomalyRepo, tableRepo, arch, exec, events, logger)
	inv := investigator.New(chatClient, lineageSvc, tableRepo, logger)

	schemaSentinel := sentinels.NewSchemaSentinel(db, snapshotRepo, anomalyRepo, logger)
	freshnessSentinel := sentinels.NewFreshnessSentinel(anomalyRepo, logger)

	scan := scanner.New(scanner.Config{
		ScanInterval:        cfg.ScanInterval(),
		LineageInterval:     cfg.LineageRefreshInterval(),
		RediscoveryInterval: cfg.RediscoveryInterval(),
		Workers:             cfg.ScanWorkers,
	}, connectionRepo, tableRepo, schemaSentinel, freshnessSentinel, orch, lineageSvc, inv, encryptor, events, logger)
	scan.Start(ctx)

	// HTTP surface
	api := http.NewServeMux()
	handlers.NewConnectionsHandler(connectionRepo, tableRepo, encryptor, inv, events, logger).RegisterRoutes(api)
	handlers.NewTablesHandler(tableRepo, logger).RegisterRoutes(api)
	handlers.NewIncidentsHandler(incidentRepo, orch, logger).RegisterRoutes(api)
	handlers.NewLineageHandler(lineageSvc, logger).RegisterRoutes(api)
	handlers.NewStatsHandler(connectionRepo, tableRepo, incidentRepo, lineageSvc, scan, logger).RegisterRoutes(api)
	handlers.NewWSHandler(events, logger).RegisterRoutes(api)

	root := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(root)
	root.Handle("/api/v1/", middleware.APIKeyAuth(cfg.APIKey, api))

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info("listening", zap.String("addr", server.Addr))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server failed to start", zap.Error(err))
		scan.Stop()
		events.Close()
		return 1
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", zap.Error(err))
	}

	scan.Stop()
	events.Close()
	return 0
}
