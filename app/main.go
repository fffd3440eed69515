package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"webnotify/app/api"
	"webnotify/app/cfg"
	"webnotify/app/database"
	"webnotify/app/detect"
	"webnotify/app/fetch"
	"webnotify/app/signal"
	"webnotify/app/source"
	"webnotify/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
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

	slog.Info("Starting webnotify server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	sourceRepo := database.NewSourceRepo(db)
	notifRepo := database.NewNotificationRepo(db)

	seedSources(appCfg.SourcesDir, sourceRepo)

	renderer := fetch.NewRenderer(appCfg.BrowserHeadless, appCfg.BrowserProfileDir, appCfg.UserAgent)
	fetcher := fetch.New(renderer, appCfg.UserAgent)
	extractor := signal.NewExtractor()
	evaluator := detect.NewEvaluator()

	slog.Info("Starting background scheduler", "workers", appCfg.WorkerCount, "interval_seconds", appCfg.SchedulerInterval)
	scheduler := tasks.NewScheduler(sourceRepo, notifRepo, fetcher, extractor, evaluator)
	scheduler.Start()
	defer scheduler.Stop()

	handler := api.NewHandler(sourceRepo, notifRepo, scheduler, appCfg.Version)
	server := api.NewServer(handler, appCfg.APIAccessKey)

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
	ossignal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// seedSources registers YAML-defined sources in the database. Seeds are
// upserted by user and name, so editing a seed file updates the stored
// source without disturbing its baseline.
func seedSources(sourcesDir string, sourceRepo database.SourceRepository) {
	loader := source.NewLoader(sourcesDir)
	seeds, err := loader.LoadAll()
	if err != nil {
		slog.Warn("Failed to load source seeds", "dir", sourcesDir, "error", err)
		return
	}
	if len(seeds) == 0 {
		slog.Debug("No source seed files found", "dir", sourcesDir)
		return
	}

	registered := 0
	for _, seed := range seeds {
		id, err := sourceRepo.UpsertSeed(seed)
		if err != nil {
			slog.Warn("Failed to register source", "source", seed.Name, "error", err)
			continue
		}
		slog.Info("Registered source", "source", seed.Name, "user", seed.User, "id", id)
		registered++
	}
	slog.Info("Source seeding complete", "registered", registered, "total", len(seeds))
}
