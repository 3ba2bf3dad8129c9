// hargalist-api ingests supplier price lists into a unified, searchable
// catalog. With file arguments it runs a one-shot ingestion and prints the
// migration report; without arguments it runs as a daemon with scheduled
// catalog maintenance.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hargalist/hargalist-api/internal/domain/ingest"
	"github.com/hargalist/hargalist-api/pkg/config"
)

func main() {
	supplier := flag.String("supplier", "", "supplier name for one-shot file ingestion")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger, *supplier, flag.Args()); err != nil {
		logger.Error("fatal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(logger *slog.Logger, supplier string, files []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := InitDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()

	if len(files) > 0 {
		return runMigration(ctx, deps, supplier, files)
	}
	return runDaemon(ctx, deps)
}

// runMigration ingests the given files for one supplier and prints the report.
func runMigration(ctx context.Context, deps *Dependencies, supplier string, files []string) error {
	if supplier == "" {
		return fmt.Errorf("-supplier is required when ingesting files")
	}

	// Each source file is archived first; ingestion reads the archived copy
	// so the original document stays available for later review.
	tasks := make([]ingest.Task, 0, len(files))
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		info, err := deps.FileArchive.Store(ctx, supplier, path, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("archive %s: %w", path, err)
		}

		archived, _, err := deps.FileArchive.Open(ctx, info.ID)
		if err != nil {
			return fmt.Errorf("reopen archived %s: %w", path, err)
		}
		defer archived.Close()
		tasks = append(tasks, ingest.Task{Supplier: supplier, Filename: path, Reader: archived})
	}

	migration := &ingest.Migration{Service: deps.Ingest}
	report, _, err := migration.Run(ctx, tasks)
	if report != nil {
		if data, jsonErr := report.JSON(); jsonErr == nil {
			fmt.Println(string(data))
		}
	}
	if err != nil {
		return err
	}

	// Newly ingested products get a match sweep and catalog rebuild right away.
	if _, err := deps.Matching.ProcessAll(ctx, 200); err != nil {
		deps.Logger.Warn("post-ingest match sweep failed", slog.Any("error", err))
	}
	if _, err := deps.Unified.UpdateCatalogPrices(ctx); err != nil {
		deps.Logger.Warn("post-ingest catalog refresh failed", slog.Any("error", err))
	}
	return nil
}

// runDaemon serves metrics and runs scheduled maintenance until interrupted.
func runDaemon(ctx context.Context, deps *Dependencies) error {
	if err := deps.Scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var metricsServer *http.Server
	if deps.Config.Observability.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", deps.Config.Observability.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			deps.Logger.Info("metrics server listening", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				deps.Logger.Error("metrics server failed", slog.Any("error", err))
			}
		}()
	}

	deps.Logger.Info("daemon running")
	<-ctx.Done()
	deps.Logger.Info("shutdown signal received")

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Warn("metrics server shutdown failed", slog.Any("error", err))
		}
	}
	return nil
}
