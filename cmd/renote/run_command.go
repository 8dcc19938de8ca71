package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"log/slog"

	"github.com/spf13/cobra"

	"renote/internal/assemble"
	"renote/internal/audiofeat"
	"renote/internal/config"
	"renote/internal/hands"
	"renote/internal/merge"
	"renote/internal/pedal"
	"renote/internal/quantize"
	"renote/internal/queue"
	"renote/internal/session"
	"renote/internal/sources"
	"renote/internal/stageexec"
	"renote/internal/tempo"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run [itemID]",
		Short: "Process one queue item through its remaining stages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, err := resolveRunTarget(cmd.Context(), store, args)
				if err != nil {
					return err
				}
				logger, err := newRunLogger(cfg)
				if err != nil {
					return err
				}
				pipeline := buildPipeline(cfg, store, logger)
				runErr := pipeline.RunRemaining(cmd.Context(), item)
				if jsonOut {
					if err := writeJSON(cmd, newRunResultView(item)); err != nil {
						return err
					}
					return runErr
				}
				printRunResult(cmd.OutOrStdout(), item)
				return runErr
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func resolveRunTarget(ctx context.Context, store *queue.Store, args []string) (*queue.Item, error) {
	if len(args) == 1 {
		ids, err := parsePositiveIDs(args)
		if err != nil {
			return nil, err
		}
		item, err := store.GetByID(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		if item == nil {
			return nil, fmt.Errorf("item %d not found", ids[0])
		}
		return item, nil
	}

	item, err := store.NextForStatuses(ctx, queue.StatusPending)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errors.New("queue has no pending items; pass an item id to rerun a specific item")
	}
	return item, nil
}

func buildPipeline(cfg *config.Config, store *queue.Store, logger *slog.Logger) stageexec.Pipeline {
	cache := audiofeat.NewCache(cfg.Paths.FeatureCacheDir, logger)
	return stageexec.Pipeline{
		Logger:         logger,
		Store:          store,
		Loader:         sources.NewLoader(cfg, store, cache, logger),
		Merger:         merge.NewMerger(cfg, store, logger),
		TempoEstimator: tempo.NewEstimator(cfg, store, cache, logger),
		Quantizer:      quantize.NewQuantizer(cfg, store, logger),
		PedalInferrer:  pedal.NewInferrer(cfg, store, cache, logger),
		HandSplitter:   hands.NewSplitter(cfg, store, logger),
		Assembler:      assemble.NewAssembler(cfg, store, logger),
	}
}

func printRunResult(out io.Writer, item *queue.Item) {
	fmt.Fprintf(out, "Item #%d (%s) %s\n", item.ID, displayTitle(item), formatStatusLabel(string(item.Status)))
	env, err := session.Parse(item.EnvelopeData)
	if err != nil {
		return
	}
	if env.Artifacts.Score != "" {
		fmt.Fprintf(out, "  Score:   %s\n", env.Artifacts.Score)
	}
	if env.Artifacts.Preview != "" {
		fmt.Fprintf(out, "  Preview: %s\n", env.Artifacts.Preview)
	}
}

func newRunResultView(item *queue.Item) map[string]any {
	view := map[string]any{
		"id":     item.ID,
		"title":  displayTitle(item),
		"status": string(item.Status),
	}
	if env, err := session.Parse(item.EnvelopeData); err == nil {
		if env.Artifacts.Score != "" {
			view["score_file"] = env.Artifacts.Score
		}
		if env.Artifacts.Preview != "" {
			view["preview_file"] = env.Artifacts.Preview
		}
	}
	if item.ErrorMessage != "" {
		view["error"] = item.ErrorMessage
	}
	if item.NeedsReview {
		view["review_reason"] = item.ReviewReason
	}
	return view
}
