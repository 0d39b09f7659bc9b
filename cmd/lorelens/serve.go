package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/lorelens/internal/app"
	"github.com/MrWong99/lorelens/internal/observe"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

The config file is watched for edits: log level, pipeline thresholds, retry
policy and the character database path apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), v)
		},
	}
}

func runServe(parent context.Context, v *viper.Viper) error {
	cfg, cfgPath, err := loadConfig(v)
	if err != nil {
		return err
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	lv := new(slog.LevelVar)
	lv.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger, closeLog, err := app.NewLogger(os.Stderr, cfg.Server.LogFile, lv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lorelens: %v, logging to stderr only\n", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("lorelens starting",
		"version", version,
		"config", cfgPath,
		"listen_addr", cfg.Server.ListenAddr,
		"characters", cfg.Characters.Path,
		"learned_backend", cfg.Learned.Backend,
		"backends", len(cfg.Translate.Backends),
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		RuntimeMetrics: true,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── App ───────────────────────────────────────────────────────────────────
	opts := []app.Option{
		app.WithLevelVar(lv),
		app.WithMetricsHandler(tel.Handler()),
	}
	if cfgPath != "" {
		opts = append(opts, app.WithConfigPath(cfgPath))
	}
	application, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	} else {
		runErr = nil
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown: %w", err))
	}
	slog.Info("goodbye")
	return runErr
}
