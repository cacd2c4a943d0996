// Package main provides the HTTP API server for podsearch.
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

	"github.com/raphaelgruber/podsearch/internal/app"
	"github.com/raphaelgruber/podsearch/internal/config"
	"github.com/raphaelgruber/podsearch/internal/server"
)

// version is set at build time.
var version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (default $XDG_CONFIG_HOME/podsearch/config.toml)")
	port := flag.Int("port", 0, "listen port (overrides server_port)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port > 0 {
		cfg.ServerPort = *port
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting podsearch-server", "port", cfg.ServerPort, "db", cfg.DBPath)

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.Open(initCtx, cfg, logger)
	if err != nil {
		cancel()
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	// Providers are created up front so misconfiguration fails at startup
	err = a.InitAll(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("init services: %w", err)
	}

	search, err := a.Searcher()
	if err != nil {
		return err
	}
	chat, err := a.Chatter(ctx)
	if err != nil {
		return err
	}
	jobs, err := a.Jobs(ctx)
	if err != nil {
		return err
	}

	srv := server.New(server.Deps{
		DB:      a.DB,
		Search:  search,
		Chat:    chat,
		Jobs:    jobs,
		Metrics: a.Metrics,
		Version: version,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	return srv.ListenAndServe(ctx, addr, cfg.ReadTimeout, cfg.WriteTimeout)
}
