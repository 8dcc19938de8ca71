package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"renote/internal/config"
	"renote/internal/queue"
	"renote/internal/sources"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "add <session-dir>",
		Short: "Add a transcription session directory to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, created, err := sources.RegisterSession(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"id":           item.ID,
						"title":        displayTitle(item),
						"session_path": item.SessionPath,
						"status":       string(item.Status),
						"created":      created,
					})
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Queued session as item #%d (%s)\n", item.ID, displayTitle(item))
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Session already queued as item #%d (%s)\n", item.ID, displayTitle(item))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
