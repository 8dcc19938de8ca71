package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"renote/internal/config"
	"renote/internal/queue"
	"renote/internal/sources"
)

// fuse is the one-shot path: queue the session and drive it through every
// remaining stage without a daemon.
func newFuseCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "fuse <session-dir>",
		Short: "Queue a session directory and process it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, created, err := sources.RegisterSession(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !jsonOut {
					if created {
						fmt.Fprintf(out, "Queued session as item #%d (%s)\n", item.ID, displayTitle(item))
					} else {
						fmt.Fprintf(out, "Session already queued as item #%d (%s)\n", item.ID, displayTitle(item))
					}
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
				printRunResult(out, item)
				return runErr
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
