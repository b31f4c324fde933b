package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "docextract/internal/config"
	"docextract/internal/dispatch"
	"docextract/internal/extract"
	"docextract/internal/health"
	"docextract/internal/logging"
	"docextract/internal/pool"
	"docextract/internal/resultstore"
	"docextract/internal/server"
	"docextract/internal/statuscache"
	"docextract/internal/storage"
	httpapi "docextract/internal/transport/http"
)

func main() {
	cfg := appconfig.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	slog.Info("starting docextract",
		"addr", cfg.HTTPAddr,
		"cpu_workers", cfg.CPUWorkers,
		"io_workers", cfg.IOWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := resultstore.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "err", err)
		os.Exit(1)
	}

	cache, err := statuscache.NewRedis(cfg.RedisURL, cfg.StatusTTL)
	if err != nil {
		slog.Error("failed to connect to Redis", "err", err)
		os.Exit(1)
	}
	defer cache.Close()

	archive, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	slog.Info("storage initialized", "type", storage.StorageType(cfg))

	reg := extract.BuildRegistry(extract.RegistryConfig{
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		VisionModel:    cfg.VisionModel,
		TesseractLangs: cfg.TesseractLangs,
	})

	p := pool.New(pool.Config{
		CPUWorkers:      cfg.CPUWorkers,
		IOWorkers:       cfg.IOWorkers,
		QueueBuf:        cfg.QueueBuf,
		MaxTaskDuration: cfg.JobMaxDuration,
	})
	defer p.Close()

	dispatcher := dispatch.New(cache, store, p, reg, archive)

	agg := health.New(cfg.HealthTimeout, cfg.HealthSlowAfter)
	agg.AddProbe("database", store.Ping)
	agg.AddProbe("redis", cache.Ping)
	agg.AddQueue(p.Len, cfg.QueueWarnDepth)

	handlers := &httpapi.Handlers{
		Dispatcher: dispatcher,
		Health:     agg,
		Config:     cfg,
	}
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}
