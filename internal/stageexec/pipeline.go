package stageexec

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"renote/internal/queue"
	"renote/internal/services"
)

// Pipeline bundles the full renotation chain so one-shot commands can march
// an item from its current status to completion without the daemon.
type Pipeline struct {
	Logger         *slog.Logger
	Store          *queue.Store
	Loader         Handler
	Merger         Handler
	TempoEstimator Handler
	Quantizer      Handler
	PedalInferrer  Handler
	HandSplitter   Handler
	Assembler      Handler
}

type stageSpec struct {
	name       string
	handler    Handler
	start      queue.Status
	processing queue.Status
	done       queue.Status
}

func (p Pipeline) specs() []stageSpec {
	return []stageSpec{
		{name: "load", handler: p.Loader, start: queue.StatusPending, processing: queue.StatusLoading, done: queue.StatusLoaded},
		{name: "merge", handler: p.Merger, start: queue.StatusLoaded, processing: queue.StatusMerging, done: queue.StatusMerged},
		{name: "tempo", handler: p.TempoEstimator, start: queue.StatusMerged, processing: queue.StatusTempoEstimating, done: queue.StatusTempoEstimated},
		{name: "quantize", handler: p.Quantizer, start: queue.StatusTempoEstimated, processing: queue.StatusQuantizing, done: queue.StatusQuantized},
		{name: "pedal", handler: p.PedalInferrer, start: queue.StatusQuantized, processing: queue.StatusPedalInferring, done: queue.StatusPedalInferred},
		{name: "hands", handler: p.HandSplitter, start: queue.StatusPedalInferred, processing: queue.StatusHandSplitting, done: queue.StatusHandsSplit},
		{name: "assemble", handler: p.Assembler, start: queue.StatusHandsSplit, processing: queue.StatusAssembling, done: queue.StatusCompleted},
	}
}

func (p Pipeline) stageFor(status queue.Status) (stageSpec, bool) {
	for _, spec := range p.specs() {
		if spec.start == status {
			return spec, true
		}
	}
	return stageSpec{}, false
}

// RunRemaining advances the item through every stage left between its
// current status and completion. Items parked in failed or review restart
// from pending: operators rerun after correcting session inputs, so staged
// artifacts must be rebuilt rather than resumed. A stage failure during the
// run stops the chain and leaves the item parked for the next rerun.
func (p Pipeline) RunRemaining(ctx context.Context, item *queue.Item) error {
	if p.Store == nil {
		return fmt.Errorf("queue store is required")
	}
	if item == nil {
		return fmt.Errorf("queue item is required")
	}

	runCtx := services.WithItemID(ctx, item.ID)
	if item.Status == queue.StatusFailed || item.Status == queue.StatusReview {
		restartForRun(item)
		if err := p.Store.Update(runCtx, item); err != nil {
			return fmt.Errorf("persist rerun transition: %w", err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch item.Status {
		case queue.StatusCompleted:
			return nil
		case queue.StatusFailed:
			return fmt.Errorf("item %d failed: %s", item.ID, strings.TrimSpace(item.ErrorMessage))
		case queue.StatusReview:
			return fmt.Errorf("item %d needs review: %s", item.ID, strings.TrimSpace(item.ReviewReason))
		}
		// An interrupted daemon claim re-enters at the stage entry status.
		if rollback, ok := queue.RollbackStatus(item.Status); ok {
			item.Status = rollback
		}
		spec, ok := p.stageFor(item.Status)
		if !ok {
			return fmt.Errorf("no stage handles status %q", item.Status)
		}
		if err := Run(runCtx, Options{
			Logger:     p.Logger,
			Store:      p.Store,
			Handler:    spec.handler,
			StageName:  spec.name,
			Processing: spec.processing,
			Done:       spec.done,
			Item:       item,
		}); err != nil {
			return err
		}
	}
}

// restartForRun mirrors the queue retry reset so reruns and retries present
// the same way in listings.
func restartForRun(item *queue.Item) {
	item.Status = queue.StatusPending
	item.NeedsReview = false
	item.ReviewReason = ""
	item.ErrorMessage = ""
	item.ProgressStage = "Retry requested"
	item.ProgressPercent = 0
	item.ProgressMessage = ""
	item.LastHeartbeat = nil
}
