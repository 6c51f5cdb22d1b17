package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"coursedrop/internal/config"
	"coursedrop/internal/history"
	"coursedrop/internal/logging"
	"coursedrop/internal/preflight"
	"coursedrop/internal/receiver"
	"coursedrop/internal/server"
	"coursedrop/internal/watcher"
)

// Daemon owns the server and watcher lifecycle and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *history.Store
	server  *server.Server
	watcher *watcher.Watcher

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	cancel   context.CancelFunc
	watchers sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Address       string
	Watching      bool
	HistoryDBPath string
	LockFilePath  string
	Preflight     []preflight.Result
}

// New constructs a daemon around an open ledger.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and history store")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	pipeline, err := receiver.NewFromConfig(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		server:   server.New(cfg, pipeline, store, logger),
		lockPath: cfg.LockFilePath(),
		lock:     flock.New(cfg.LockFilePath()),
	}
	if cfg.Watch.Enabled {
		w, err := watcher.New(cfg.Paths.InboxDir, time.Duration(cfg.Watch.DebounceMS)*time.Millisecond, pipeline, logger)
		if err != nil {
			return nil, fmt.Errorf("create inbox watcher: %w", err)
		}
		d.watcher = w
	}
	return d, nil
}

// Start acquires the lock, ensures the directory tree, and starts serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another coursedrop instance is already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("ensure directories: %w", err)
	}
	for _, result := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "fix directory permissions or mirror settings"),
			logging.String(logging.FieldImpact, "uploads to this destination will fail"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.server.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start server: %w", err)
	}
	d.cancel = cancel

	if d.watcher != nil {
		d.watchers.Add(1)
		go func() {
			defer d.watchers.Done()
			if err := d.watcher.Run(runCtx); err != nil {
				d.logger.Error("inbox watcher failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "watcher_failed"),
				)
			}
		}()
	}

	d.running.Store(true)
	d.logger.Info("coursedrop daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.server.Addr()),
		logging.Bool("watching", d.watcher != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop shuts down the server and watcher and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.Stop()
	d.watchers.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("coursedrop daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and closes the ledger.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the address the HTTP server is bound to.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:       d.running.Load(),
		Address:       d.server.Addr(),
		Watching:      d.watcher != nil,
		HistoryDBPath: d.store.Path(),
		LockFilePath:  d.lockPath,
		Preflight:     preflight.RunAll(ctx, d.cfg),
	}
}
