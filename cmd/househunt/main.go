// Package main is the entry point for the HouseHunt chat server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"househunt/config"
	"househunt/internal/app"
	"househunt/internal/logging"
	"househunt/internal/providers"
	"househunt/internal/providers/gemini"
	"househunt/internal/providers/openai"
	"househunt/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file (optional)")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	slog.Info("starting househunt",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	factory := providers.NewProviderFactory()
	factory.Add(gemini.Registration)
	factory.Add(openai.Registration)

	application, err := app.New(context.Background(), app.Config{
		AppConfig: cfg,
		Factory:   factory,
	})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- application.Start(":" + cfg.Server.Port) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			slog.Error("server failed", "error", err)
			exitCode = 1
		}
	case sig := <-quit:
		slog.Info("received signal", "signal", sig.String())
	}

	// In-flight streams get the grace period to finish before usage is flushed.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		exitCode = 1
	}
	if exitCode != 0 {
		cancel()
		os.Exit(exitCode)
	}
}
