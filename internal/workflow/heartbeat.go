package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"renote/internal/logging"
	"renote/internal/queue"
)

// HeartbeatMonitor manages item heartbeats and stale item reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStaleItems identifies items that have stopped sending heartbeats and resets them.
func (h *HeartbeatMonitor) ReclaimStaleItems(ctx context.Context, logger *slog.Logger, statuses []queue.Status) error {
	if h.heartbeatTimeout <= 0 {
		return nil
	}
	if len(statuses) == 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff, statuses...)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale items", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop runs a heartbeat updater for a specific item until context
// cancellation. Each tick also surfaces the item's persisted progress in the
// daemon log, sampled so long stages do not repeat identical lines.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, itemID int64) {
	defer wg.Done()
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))
	sampler := logging.NewProgressSampler(0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, itemID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("daemon shutting down, heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
				continue
			}
			h.logSampledProgress(ctx, logger, sampler, itemID)
		}
	}
}

// logSampledProgress logs the item's current progress when the sampler says
// the stage changed or the percentage crossed a bucket boundary.
func (h *HeartbeatMonitor) logSampledProgress(ctx context.Context, logger *slog.Logger, sampler *logging.ProgressSampler, itemID int64) {
	item, err := h.store.GetByID(ctx, itemID)
	if err != nil || item == nil {
		return
	}
	if !sampler.ShouldLog(item.ProgressPercent, item.ProgressStage, item.ProgressMessage) {
		return
	}
	logger.Info("stage progress",
		logging.String(logging.FieldEventType, "stage_progress"),
		logging.String(logging.FieldProgressStage, strings.TrimSpace(item.ProgressStage)),
		logging.Float64(logging.FieldProgressPercent, item.ProgressPercent),
		logging.String(logging.FieldProgressMessage, strings.TrimSpace(item.ProgressMessage)),
	)
}
