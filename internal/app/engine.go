// Package app assembles the long-lived components shared by the server and
// worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/pagebot/common/llm"
	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/core/db"
	"basegraph.app/pagebot/internal/actions"
	"basegraph.app/pagebot/internal/admission"
	"basegraph.app/pagebot/internal/brain"
	"basegraph.app/pagebot/internal/graph"
	"basegraph.app/pagebot/internal/killswitch"
	"basegraph.app/pagebot/internal/metrics"
	"basegraph.app/pagebot/internal/service"
	"basegraph.app/pagebot/internal/store"
	"basegraph.app/pagebot/internal/tenant"
)

// Engine is the admission and scheduling core of one process.
type Engine struct {
	Switch   *killswitch.Switch
	Registry *tenant.Registry
	Service  service.EngineService
	Admin    service.AdminService

	database *db.DB
}

// StartEngine connects collaborators, builds every tenant and starts their
// schedulers. Schedulers stop when ctx ends; call Close after Wait.
func StartEngine(ctx context.Context, cfg config.Config) (*Engine, error) {
	sw := NewKillSwitch(ctx, cfg.KillSwitch)

	var (
		database *db.DB
		logs     store.ActionLogStore
	)
	if cfg.DB.Enabled() {
		var err error
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		logs = store.NewActionLogStore(database.Pool())
		slog.InfoContext(ctx, "database connected, action log enabled")
	} else {
		slog.InfoContext(ctx, "no database configured, action log disabled")
	}

	llmClient, err := llm.New(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		if database != nil {
			database.Close()
		}
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	platform := graph.New(cfg.Graph)
	composer := brain.NewComposer(llmClient, cfg.LLM)
	dispatcher := actions.NewDispatcher(platform, composer, logs)

	registry := tenant.NewRegistry(ctx, cfg.Tenants, tenant.Deps{
		Limits:     cfg.Limits,
		Dispatcher: dispatcher,
		Switch:     sw,
		Logger:     slog.Default(),
	})
	if err := registry.WarmUp(); err != nil {
		if database != nil {
			database.Close()
		}
		return nil, fmt.Errorf("building tenant state: %w", err)
	}
	slog.InfoContext(ctx, "tenants ready", "count", len(cfg.Tenants), "model", llmClient.Model())

	pipeline := admission.New(platform, admission.WithLogger(slog.Default()))

	return &Engine{
		Switch:   sw,
		Registry: registry,
		Service:  service.NewEngineService(registry, pipeline, slog.Default()),
		Admin:    service.NewAdminService(registry, sw, logs),
		database: database,
	}, nil
}

// Wait blocks until every tenant scheduler has stopped.
func (e *Engine) Wait() {
	e.Registry.Wait()
}

func (e *Engine) Close() {
	if e.database != nil {
		e.database.Close()
	}
}

// NewKillSwitch returns the process switch. A configured flag file is
// authoritative and is watched until ctx ends; otherwise BOT_DISABLED sets
// the initial state.
func NewKillSwitch(ctx context.Context, cfg config.KillSwitchConfig) *killswitch.Switch {
	engaged := cfg.Disabled
	if cfg.File != "" {
		engaged = killswitch.FileEngaged(cfg.File)
	}

	sw := killswitch.New(engaged)
	setGauge := func(on bool) {
		if on {
			metrics.KillSwitchEngaged.Set(1)
			return
		}
		metrics.KillSwitchEngaged.Set(0)
	}
	setGauge(engaged)
	sw.OnChange(setGauge)

	if engaged {
		slog.WarnContext(ctx, "kill switch engaged at startup")
	}

	if cfg.File != "" {
		go func() {
			if err := killswitch.Watch(ctx, sw, cfg.File); err != nil {
				slog.ErrorContext(ctx, "kill switch watcher stopped", "error", err, "path", cfg.File)
			}
		}()
	}
	return sw
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}
