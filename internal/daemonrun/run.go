// Package daemonrun hosts the `coursedrop serve` runtime loop.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"coursedrop/internal/config"
	"coursedrop/internal/daemon"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the daemon and blocks until SIGINT/SIGTERM or ctx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	level := cfg.Logging.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", cfg.LogFilePath()},
		ErrorOutputPaths: []string{"stderr", cfg.LogFilePath()},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("coursedrop daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("staging_dir", cfg.Paths.StagingDir),
		logging.String("coursework_dir", cfg.Paths.CourseworkDir),
		logging.String("selfwork_dir", cfg.Paths.SelfworkDir),
		logging.Any("years", cfg.Sorting.Years),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Int("max_upload_mb", cfg.Server.MaxUploadMB),
		logging.Bool("remove_failed", cfg.Staging.RemoveFailed),
		logging.Bool("watch_enabled", cfg.Watch.Enabled),
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
		logging.Bool("mirror_enabled", cfg.Mirror.Enabled),
	)
}
