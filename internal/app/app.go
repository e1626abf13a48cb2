// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the HouseHunt chat server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"househunt/config"
	"househunt/internal/core"
	"househunt/internal/observability"
	"househunt/internal/persona"
	"househunt/internal/pkg/llmclient"
	"househunt/internal/providers"
	"househunt/internal/server"
	"househunt/internal/usage"
)

// App represents the main application with all its dependencies.
type App struct {
	config   *config.Config
	provider core.ChatProvider
	usage    *usage.Result
	server   *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	// AppConfig is the configuration produced by config.Load.
	AppConfig *config.Config

	// Factory provides the ProviderFactory used to construct the chat provider.
	Factory *providers.ProviderFactory
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("factory is required")
	}
	appCfg := cfg.AppConfig

	p, err := persona.Load(appCfg.Persona.PromptFile, appCfg.Persona.Acknowledgement)
	if err != nil {
		return nil, err
	}

	var hooks llmclient.Hooks
	if appCfg.Metrics.Enabled {
		hooks = observability.NewPrometheusHooks()
	}

	provider, err := providers.Init(appCfg, cfg.Factory, providers.InitConfig{Persona: p, Hooks: hooks})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	usageResult, err := usage.New(ctx, appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}

	app := &App{
		config:   appCfg,
		provider: provider,
		usage:    usageResult,
	}
	app.logStartupInfo()

	app.server = server.New(provider, &server.Config{
		ChatPath:        appCfg.Server.ChatPath,
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
		UsageLogger:     usageResult.Logger,
	})

	return app, nil
}

// Provider returns the configured chat provider.
func (a *App) Provider() core.ChatProvider {
	return a.provider
}

// UsageLogger returns the usage logger interface.
func (a *App) UsageLogger() usage.LoggerInterface {
	if a.usage == nil {
		return nil
	}
	return a.usage.Logger
}

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr, "chat_path", a.config.Server.ChatPath)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, letting in-flight streams finish within ctx,
// then flushes usage tracking. It is idempotent and joins the errors of every step.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}
	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			slog.Error("usage logger close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	slog.Info("application shutdown complete")
	return nil
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Usage.Enabled {
		slog.Info("usage tracking enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		slog.Info("usage tracking disabled")
	}
}
