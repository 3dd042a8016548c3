// Package main provides the veritest server: HTTP surface plus the export
// batch worker.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jfellner/veritest-go/internal/config"
	"github.com/jfellner/veritest-go/internal/db"
	"github.com/jfellner/veritest-go/internal/evidence"
	"github.com/jfellner/veritest-go/internal/export"
	"github.com/jfellner/veritest-go/internal/metrics"
	"github.com/jfellner/veritest-go/internal/pipeline"
	"github.com/jfellner/veritest-go/internal/progress"
	"github.com/jfellner/veritest-go/internal/queue"
	"github.com/jfellner/veritest-go/internal/secrets"
	"github.com/jfellner/veritest-go/internal/server"
	"github.com/jfellner/veritest-go/internal/tracker"
)

func main() {
	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	// Misconfiguration is fatal: the process must not serve traffic without
	// a tracker endpoint, queue, or audit store to point at.
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting veritest-server", "port", cfg.ServerPort)

	mc := metrics.NewCollector()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		slog.Error("failed to connect to audit store", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		slog.Error("failed to initialize audit schema", "error", err)
		os.Exit(1)
	}

	resolver, err := secrets.NewManager(ctx, cfg.AWSRegion)
	cancel()
	if err != nil {
		slog.Error("failed to create secret resolver", "error", err)
		os.Exit(1)
	}

	fieldMap, err := tracker.LoadFieldMap(cfg.FieldMapPath)
	if err != nil {
		slog.Error("failed to load tracker field map", "error", err)
		os.Exit(1)
	}
	trackerClient := tracker.NewClient(cfg.JiraBaseURL, cfg.JiraProjectKey, cfg.JiraIssueType, fieldMap)

	queueClient, err := queue.NewClient(queue.Config{
		URL:     cfg.NATSURL,
		Stream:  cfg.ExportStream,
		Subject: cfg.ExportSubject,
	})
	if err != nil {
		slog.Error("failed to connect to export queue", "error", err)
		os.Exit(1)
	}
	defer queueClient.Close()

	broadcaster := progress.NewBroadcaster()

	exporter := export.New(resolver, trackerClient, dbClient, broadcaster, mc,
		cfg.UserSecretName, cfg.TokenSecretName)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	consumer, err := queueClient.StartConsumer(consumerCtx, exporter.ExportBatch)
	if err != nil {
		slog.Error("failed to start export consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Stop()

	// Generation is optional: without an API key the export pipeline still
	// runs, only /api/generate is unavailable.
	var processor server.DocumentProcessor
	if cfg.GeminiAPIKey != "" {
		generator, err := pipeline.NewGenerator(context.Background(), cfg, mc)
		if err != nil {
			slog.Error("failed to create generator", "error", err)
			os.Exit(1)
		}
		processor = pipeline.NewOrchestrator(generator, broadcaster, cfg.ResultsPath)
	} else {
		slog.Warn("no Gemini API key configured, generation disabled")
	}

	assembler := evidence.NewAssembler(dbClient, mc)

	srv := server.New(queueClient, assembler, dbClient, broadcaster, processor, mc, logger, cfg.BatchSize)

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // evidence streaming and generation
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := dbClient.Close(shutdownCtx); err != nil {
		slog.Error("failed to close audit store", "error", err)
	}

	slog.Info("server stopped")
}
