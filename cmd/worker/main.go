package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"basegraph.app/pagebot/common/id"
	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/common/otel"
	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/app"
	"basegraph.app/pagebot/internal/http/handler"
	httprouter "basegraph.app/pagebot/internal/http/router"
	"basegraph.app/pagebot/internal/queue"
	"basegraph.app/pagebot/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "pagebot worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	if err := id.Init(id.NodeWorker); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	redisClient, err := app.NewRedisClient(ctx, cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	engine, err := app.StartEngine(runCtx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	consumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer,
		DLQStream: cfg.Pipeline.RedisDLQStream,
		BatchSize: 10,
		Block:     5 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	// The reclaimer claims under its own name so its entries are not read
	// back by the main loop.
	reclaimConsumer, err := queue.NewRedisConsumer(ctx, redisClient, queue.ConsumerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		DLQStream: cfg.Pipeline.RedisDLQStream,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create reclaim consumer", "error", err)
		os.Exit(1)
	}

	w := worker.New(consumer, engine.Service, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})
	reclaimer := worker.NewReclaimer(reclaimConsumer, w, worker.ReclaimerConfig{})

	go func() {
		if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker stopped with error", "error", err)
		}
	}()
	go reclaimer.Run(runCtx)

	// Probes, metrics and the operator surface.
	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: app.NewRouter(cfg, httprouter.RouterConfig{
			Admin: handler.NewAdminHandler(engine.Admin),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Reclaimer first (quick), then the worker, which may be mid-batch.
	stopped := make(chan struct{})
	go func() {
		reclaimer.Stop()
		w.Stop()
		close(stopped)
	}()
	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case <-stopped:
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	stopRun()
	engine.Wait()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
 ___  _   ___ ___ ___  ___ _____
| _ \/_\ / __| __| _ )/ _ \_   _|
|  _/ _ \ (_ | _|| _ \ (_) || |
|_|/_/ \_\___|___|___/\___/ |_|   worker
`
