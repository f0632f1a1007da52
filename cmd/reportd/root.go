package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-report-cache/internal/telemetry"
	"github.com/goliatone/go-report-cache/pkg/config"
	"github.com/goliatone/go-report-cache/pkg/di"
)

const serviceName = "reportd"

var configPath string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Cached reporting service",
	Long: `reportd serves report endpoints backed by a TTL cache and
pre-aggregated materialized views, and keeps those views refreshed.

Configuration is read from an optional YAML file (--config or REPORT_CONFIG)
and REPORT_* environment variables.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
}

// app is the process wide state shared by subcommands.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *bun.DB
	container *di.Container
	shutdown  func(context.Context) error
}

// bootstrap resolves config, logging, tracing and the container.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	shutdown, err := telemetry.Setup(ctx, serviceName, cfg.OTelEndpoint)
	if err != nil {
		return nil, err
	}

	db, err := di.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}

	container, err := di.NewContainer(cfg, db, di.WithLogger(logger))
	if err != nil {
		db.Close()
		shutdown(ctx)
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		container: container,
		shutdown:  shutdown,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", slog.String("error", err.Error()))
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush traces", slog.String("error", err.Error()))
	}
}
