package daemon

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"renote/internal/logging"
	"renote/internal/queue"
)

const defaultHealthInterval = 5 * time.Minute

// healthLogger periodically records a queue snapshot so long-running daemons
// leave a trail in the logs even when nothing is being processed.
type healthLogger struct {
	store    *queue.Store
	logger   *slog.Logger
	hub      *logging.StreamHub
	interval time.Duration

	mu      sync.Mutex
	running bool
	lastSeq uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHealthLogger(store *queue.Store, logger *slog.Logger, hub *logging.StreamHub) *healthLogger {
	if store == nil || logger == nil {
		return nil
	}
	return &healthLogger{
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "queue-health")),
		hub:      hub,
		interval: defaultHealthInterval,
	}
}

func (h *healthLogger) Start(ctx context.Context) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.ctx = runCtx
	h.cancel = cancel
	h.running = true
	if h.hub != nil {
		_, h.lastSeq = h.hub.Tail(1)
	}

	h.wg.Add(1)
	go h.loop()
}

func (h *healthLogger) Stop() {
	if h == nil {
		return
	}
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	cancel := h.cancel
	h.running = false
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	h.wg.Wait()
}

func (h *healthLogger) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.logSnapshot(h.ctx)
		}
	}
}

func (h *healthLogger) logSnapshot(ctx context.Context) {
	summary, err := h.store.Health(ctx)
	if err != nil {
		h.logger.Warn("queue health snapshot failed", logging.Error(err))
		return
	}

	var delta uint64
	if h.hub != nil {
		_, nextSeq := h.hub.Tail(1)
		h.mu.Lock()
		if nextSeq > h.lastSeq {
			delta = nextSeq - h.lastSeq
		}
		h.lastSeq = nextSeq
		h.mu.Unlock()
	}

	attrs := []logging.Attr{
		logging.Int("total", summary.Total),
		logging.Int("pending", summary.Pending),
		logging.Int("processing", summary.Processing),
		logging.Int("failed", summary.Failed),
		logging.Int("review", summary.Review),
		logging.Int("completed", summary.Completed),
		logging.Uint64("log_events", delta),
		logging.String(logging.FieldEventType, "queue_health"),
	}
	args := logging.Args(attrs...)
	if summary.Total == 0 && delta == 0 {
		h.logger.Debug("queue health", args...)
		return
	}
	h.logger.Info("queue health", args...)
}
