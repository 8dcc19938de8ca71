package stage

import (
	"context"
	"log/slog"

	"renote/internal/queue"
)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}

// LoggerAware is implemented by stages that accept an item-scoped logger
// before Prepare runs.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
