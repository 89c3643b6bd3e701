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

	"github.com/redis/go-redis/v9"

	"basegraph.app/pagebot/common/id"
	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/common/otel"
	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/app"
	"basegraph.app/pagebot/internal/http/handler"
	"basegraph.app/pagebot/internal/http/handler/webhook"
	httprouter "basegraph.app/pagebot/internal/http/router"
	"basegraph.app/pagebot/internal/mapper"
	"basegraph.app/pagebot/internal/queue"
	"basegraph.app/pagebot/internal/service"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel before the logger: the production handler exports through it.
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "pagebot server starting",
		"env", cfg.Env,
		"intake_mode", cfg.Intake.Mode,
		"tenants", len(cfg.Tenants))

	if err := id.Init(id.NodeServer); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var (
		routes    httprouter.RouterConfig
		engine    *app.Engine
		inline    *service.InlineSubmitter
		submitter service.Submitter
		redisConn *redis.Client
	)

	if cfg.RunsEngine(config.ServiceTypeServer) {
		engine, err = app.StartEngine(runCtx, cfg)
		if err != nil {
			slog.ErrorContext(ctx, "failed to start engine", "error", err)
			os.Exit(1)
		}
		inline = service.NewInlineSubmitter(engine.Service, slog.Default())
		submitter = inline
		routes.Admin = handler.NewAdminHandler(engine.Admin)
	} else {
		redisConn, err = app.NewRedisClient(ctx, cfg.Pipeline.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

		submitter = service.NewStreamSubmitter(queue.NewRedisProducer(redisConn, queue.ProducerConfig{
			Stream: cfg.Pipeline.RedisStream,
			MaxLen: cfg.Pipeline.RedisMaxLen,
		}, slog.Default()))
	}

	routes.Webhook = webhook.NewMetaWebhookHandler(mapper.NewMetaFeedMapper(), submitter, webhook.MetaConfig{
		VerifyToken: cfg.Intake.VerifyToken,
		AppSecret:   cfg.Intake.AppSecret,
	})
	if cfg.Intake.AppSecret == "" {
		slog.WarnContext(ctx, "FB_APP_SECRET not set, webhook signatures are not verified")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.NewRouter(cfg, routes),
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if engine != nil {
		// Let accepted deliveries finish admission before schedulers stop.
		inline.Wait()
		stopRun()
		engine.Wait()
		engine.Close()
	}
	if redisConn != nil {
		_ = redisConn.Close()
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

const banner = `
 ___  _   ___ ___ ___  ___ _____
| _ \/_\ / __| __| _ )/ _ \_   _|
|  _/ _ \ (_ | _|| _ \ (_) || |
|_|/_/ \_\___|___|___/\___/ |_|   server
`
