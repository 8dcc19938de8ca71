package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"log/slog"

	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/preflight"
	"renote/internal/queue"
	"renote/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	watch    *watchMonitor
	health   *healthLogger
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	Watch        preflight.WatchProbe
}

// New constructs a daemon with initialized dependencies. The hub carries
// recent log events into the periodic queue health summary and may be nil.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, hub *logging.StreamHub) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	lockPath := cfg.DaemonLockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		watch:    newWatchMonitor(cfg, store, logger),
		health:   newHealthLogger(store, logger, hub),
		logPath:  filepath.Join(cfg.Paths.LogDir, "renote.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, verifies the environment, and launches the
// workflow manager plus the watch monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another renote daemon instance is already running")
	}

	results := preflight.RunAll(ctx, d.cfg)
	for _, result := range results {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		d.logger.Error("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported path or database, then restart the daemon"),
		)
	}
	if !preflight.Passed(results) {
		_ = d.lock.Unlock()
		return errors.New("preflight checks failed")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	// Items left in a processing status by a previous run re-enter at their
	// stage entry status before any lane can claim them.
	if reset, err := d.store.ResetStuckProcessing(d.ctx); err != nil {
		d.logger.Warn("failed to reset stuck processing items",
			logging.Error(err),
			logging.String(logging.FieldEventType, "stuck_reset_failed"),
			logging.String(logging.FieldErrorHint, "run renote queue health to inspect the database"),
		)
	} else if reset > 0 {
		d.logger.Info("reset stuck processing items", logging.Int64("count", reset))
	}

	if err := d.workflow.Start(d.ctx); err != nil {
		d.teardownStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if d.watch != nil {
		if err := d.watch.Start(d.ctx); err != nil {
			d.workflow.Stop()
			d.teardownStart()
			return fmt.Errorf("start watch monitor: %w", err)
		}
	}
	if d.health != nil {
		d.health.Start(d.ctx)
	}

	d.running.Store(true)
	d.logger.Info("renote daemon started", logging.String("lock", d.lockPath))
	return nil
}

func (d *Daemon) teardownStart() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
	_ = d.lock.Unlock()
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.watch != nil {
		d.watch.Stop()
	}
	if d.health != nil {
		d.health.Stop()
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("renote daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		Workflow:     summary,
		QueueDBPath:  d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Watch:        preflight.ProbeWatchDir(d.cfg),
	}
}
