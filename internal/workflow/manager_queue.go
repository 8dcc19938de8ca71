package workflow

import (
	"context"
	"errors"
	"time"

	"renote/internal/logging"
	"renote/internal/queue"
)

// noteRunStarted records the start of a queue run the first time a foreground
// item enters processing, so the matching completion log can report how long
// the whole batch took.
func (m *Manager) noteRunStarted(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not read queue stats for run start")
		} else {
			m.logger.Warn("queue stats unavailable for run tracking",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "queue run duration will not be reported"),
			)
		}
		return
	}
	m.mu.Lock()
	if m.runActive {
		m.mu.Unlock()
		return
	}
	m.runActive = true
	m.runStart = time.Now()
	m.mu.Unlock()

	m.logger.Info("queue run started",
		logging.Int("items", activeItems(stats)),
		logging.String(logging.FieldEventType, "queue_run_started"),
	)
}

// checkRunCompletion logs a summary once no actionable items remain.
func (m *Manager) checkRunCompletion(ctx context.Context) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not check queue run completion")
		} else {
			m.logger.Warn("queue stats unavailable for run tracking",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "queue run completion will not be reported"),
			)
		}
		return
	}
	if activeItems(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.runActive {
		m.mu.Unlock()
		return
	}
	start := m.runStart
	m.runActive = false
	m.runStart = time.Time{}
	m.mu.Unlock()

	duration := time.Duration(0)
	if !start.IsZero() {
		duration = time.Since(start)
	}
	m.logger.Info("queue run completed",
		logging.Int("completed", stats[queue.StatusCompleted]),
		logging.Int("failed", stats[queue.StatusFailed]),
		logging.Int("review", stats[queue.StatusReview]),
		logging.Duration("duration", duration),
		logging.String(logging.FieldEventType, "queue_run_completed"),
	)
}

// activeItems counts queue entries the workflow can still advance. Review
// items wait on an operator, so they do not hold a run open.
func activeItems(stats map[queue.Status]int) int {
	total := 0
	for status, count := range stats {
		switch status {
		case queue.StatusCompleted, queue.StatusFailed, queue.StatusReview:
		default:
			total += count
		}
	}
	return total
}
