package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"renote/internal/config"
	"renote/internal/queue"
	"renote/internal/session"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "report <itemID>",
		Short: "Show the inter-source agreement report for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, err := store.GetByID(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", ids[0])
				}
				env, err := session.Parse(item.EnvelopeData)
				if err != nil {
					return fmt.Errorf("parse item envelope: %w", err)
				}
				report := env.Agreement
				if report == nil || (len(report.Pairs) == 0 && len(report.Sources) == 0) {
					return fmt.Errorf("item %d has no agreement report yet; the merge stage produces it", item.ID)
				}
				if jsonOut {
					return writeJSON(cmd, report)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Agreement report for item #%d (%s)\n", item.ID, displayTitle(item))

				if len(report.Pairs) > 0 {
					rows := make([][]string, 0, len(report.Pairs))
					for _, pair := range report.Pairs {
						rows = append(rows, []string{
							pair.SourceA,
							pair.SourceB,
							fmt.Sprintf("%d", pair.Matched),
							fmt.Sprintf("%.0f%%", pair.Agreement*100),
						})
					}
					fmt.Fprintln(out, "\nPairs:")
					fmt.Fprintln(out, renderTable(out,
						[]string{"Source A", "Source B", "Matched", "Agreement"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
					))
				}

				if len(report.Sources) > 0 {
					rows := make([][]string, 0, len(report.Sources))
					for _, src := range report.Sources {
						rows = append(rows, []string{
							src.Model,
							fmt.Sprintf("%d", src.Notes),
							fmt.Sprintf("%d", src.Singletons),
							fmt.Sprintf("%.0f%%", src.SingletonRate*100),
						})
					}
					fmt.Fprintln(out, "\nSources:")
					fmt.Fprintln(out, renderTable(out,
						[]string{"Model", "Notes", "Singletons", "Singleton Rate"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
					))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
