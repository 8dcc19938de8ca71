package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"renote/internal/logging"
	"renote/internal/queue"
	"renote/internal/services"
)

func (m *Manager) handleStageFailure(ctx context.Context, stageName string, item *queue.Item, stageErr error) {
	base := m.logger
	if base == nil {
		base = logging.NewNop()
	}
	logger := m.stageLoggerForLane(ctx, nil, base, item).With(logging.String(logging.FieldComponent, "workflow-manager"))

	message := m.classifyStageFailure(stageName, stageErr)
	resolved := services.FailureStatus(stageErr)
	setItemFailureState(item, resolved, message)

	logger.Error("stage failed",
		logging.String("resolved_status", string(resolved)),
		logging.String("error_message", strings.TrimSpace(message)),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String(logging.FieldErrorHint, failureHint(resolved)),
	)

	if err := m.store.Update(ctx, item); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not update stage failure")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}

	m.setLastItem(item)
	m.checkRunCompletion(ctx)
}

func (m *Manager) classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return stageFailureMessage(stageName, "failed without error detail")
	}
	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = stageFailureMessage(stageName, "failed")
	}
	return message
}

func stageFailureMessage(stageName, defaultMsg string) string {
	if stageName != "" {
		return fmt.Sprintf("%s %s", stageName, defaultMsg)
	}
	return fmt.Sprintf("workflow %s", defaultMsg)
}

// setItemFailureState routes validation, configuration, and not-found
// failures to review so an operator can correct the session, and everything
// else to failed so a retry can pick it up.
func setItemFailureState(item *queue.Item, resolved queue.Status, message string) {
	if resolved == queue.StatusReview {
		item.SetReview(message)
		return
	}
	item.SetFailed(message)
}

func failureHint(resolved queue.Status) string {
	if resolved == queue.StatusReview {
		return "inspect the session inputs, then rerun with renote run"
	}
	return "requeue with renote queue retry once the underlying issue clears"
}
