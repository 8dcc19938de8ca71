package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"renote/internal/config"
	"renote/internal/logging"
	"renote/internal/queue"
	"renote/internal/sources"
)

const defaultSettleDelay = 10 * time.Second

// watchMonitor polls the watch directory for new session directories and
// enqueues them as they appear.
type watchMonitor struct {
	store  *queue.Store
	logger *slog.Logger

	watchDir     string
	pollInterval time.Duration
	settleDelay  time.Duration

	mu      sync.Mutex
	running bool
	seen    map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWatchMonitor(cfg *config.Config, store *queue.Store, logger *slog.Logger) *watchMonitor {
	if cfg == nil || store == nil {
		return nil
	}

	watchDir := strings.TrimSpace(cfg.Paths.WatchDir)
	if watchDir == "" {
		return nil
	}

	poll := time.Duration(cfg.Workflow.WatchPollInterval) * time.Second
	if poll <= 0 {
		poll = 15 * time.Second
	}

	monitorLogger := logger
	if monitorLogger != nil {
		monitorLogger = monitorLogger.With(logging.String(logging.FieldComponent, "watch-monitor"))
	}

	return &watchMonitor{
		store:        store,
		logger:       monitorLogger,
		watchDir:     watchDir,
		pollInterval: poll,
		settleDelay:  defaultSettleDelay,
		seen:         make(map[string]struct{}),
	}
}

func (m *watchMonitor) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("watch monitor unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return errors.New("watch monitor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop()
	return nil
}

func (m *watchMonitor) Stop() {
	if m == nil {
		return
	}
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *watchMonitor) loop() {
	defer m.wg.Done()

	m.poll()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *watchMonitor) poll() {
	ctx := m.ctx
	if ctx == nil {
		return
	}

	entries, err := os.ReadDir(m.watchDir)
	if err != nil {
		m.log().Warn("watch directory scan failed; will retry",
			logging.Error(err),
			logging.String(logging.FieldEventType, "watch_scan_failed"),
			logging.String(logging.FieldErrorHint, "check the watch directory path and permissions"),
		)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(m.watchDir, entry.Name())
		if m.alreadySeen(path) {
			continue
		}
		if !m.settled(entry) {
			continue
		}
		m.register(ctx, path)
	}
}

// settled reports whether the session directory has been quiet long enough
// for an in-progress copy to have finished. Directory mtime changes whenever
// entries land, so enqueueing waits until writes stop.
func (m *watchMonitor) settled(entry os.DirEntry) bool {
	if m.settleDelay <= 0 {
		return true
	}
	info, err := entry.Info()
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) >= m.settleDelay
}

func (m *watchMonitor) register(ctx context.Context, path string) {
	streams, err := sources.DiscoverSources(path)
	if err != nil {
		m.log().Warn("watched session scan failed; will retry",
			logging.Error(err),
			logging.String("session_path", path),
			logging.String(logging.FieldEventType, "watch_scan_failed"),
		)
		return
	}
	if len(streams) == 0 {
		// Not a session yet. Leave it unmarked so later polls pick it
		// up once model output lands.
		return
	}

	item, created, err := sources.RegisterSession(ctx, m.store, path)
	if err != nil {
		m.log().Warn("failed to queue watched session; will retry",
			logging.Error(err),
			logging.String("session_path", path),
			logging.String(logging.FieldEventType, "watch_enqueue_failed"),
		)
		return
	}

	m.markSeen(path)
	if created {
		m.log().Info("session queued from watch directory",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String("piece_title", item.PieceTitle),
			logging.String("session_path", item.SessionPath),
			logging.String(logging.FieldEventType, "session_queued"),
		)
		return
	}
	m.log().Debug("watched session already queued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("session_path", item.SessionPath),
	)
}

func (m *watchMonitor) alreadySeen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seen[path]
	return ok
}

func (m *watchMonitor) markSeen(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[path] = struct{}{}
}

func (m *watchMonitor) log() *slog.Logger {
	if m.logger == nil {
		return logging.NewNop()
	}
	return m.logger
}
