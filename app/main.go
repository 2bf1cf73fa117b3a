package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kanselarij/public-export-service/app/api"
	"github.com/kanselarij/public-export-service/app/catalog"
	"github.com/kanselarij/public-export-service/app/cfg"
	"github.com/kanselarij/public-export-service/app/export"
	"github.com/kanselarij/public-export-service/app/jobs"
	"github.com/kanselarij/public-export-service/app/sparql"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting public-export-service", "version", appCfg.Version)

	specCatalog, err := catalog.Load()
	if err != nil {
		log.Fatalf("Failed to load specification catalog: %v", err)
	}
	slog.Info("Loaded specification catalog", "specs", specCatalog.Len())

	if err := os.MkdirAll(appCfg.ExportDir, 0755); err != nil {
		log.Fatalf("Failed to create export directory %s: %v", appCfg.ExportDir, err)
	}

	httpClient := &http.Client{}
	sourceClient := sparql.NewClient(appCfg.SourceEndpoint, httpClient, appCfg.UserAgent)
	workingClient := sparql.NewClient(appCfg.WorkingEndpoint, httpClient, appCfg.UserAgent)

	store := jobs.NewStore(workingClient)

	exportCfg := export.Config{
		ExportDir:            appCfg.ExportDir,
		BatchSize:            appCfg.ExportBatchSize,
		SourceGraph:          appCfg.SourceGraph,
		PublicGraph:          appCfg.PublicGraph,
		ExportSince:          export.DefaultExportSince,
		AnnouncementsSince:   export.DefaultAnnouncementsSince,
		DocumentsSince:       export.DefaultDocumentsSince,
		CleanupFailedExports: appCfg.CleanupFailedExports,
	}

	pipeline := export.NewPipeline(sourceClient, workingClient, specCatalog, store, exportCfg)
	notifier := export.NewDeltaTaskCreator(workingClient, appCfg.PublicGraph)

	runner := jobs.NewRunner(store, pipeline, notifier, time.Duration(appCfg.JobPollInterval)*time.Second)
	runner.Start()
	defer runner.Stop()
	slog.Info("Job runner started", "pollInterval", appCfg.JobPollInterval)

	handler := api.NewHandler(sourceClient, specCatalog, store, runner, appCfg.SourceGraph)
	server := api.NewServer(handler)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Runner is stopped via defer. A job in flight gets its context
	// cancelled and ends up failed, never retried.
	slog.Info("Shutdown complete")
}
