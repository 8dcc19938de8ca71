package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"renote/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Verify the environment is ready for processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			probe := preflight.ProbeWatchDir(cfg)
			passed := preflight.Passed(results)

			if jsonOut {
				type resultView struct {
					Name   string `json:"name"`
					Passed bool   `json:"passed"`
					Detail string `json:"detail"`
				}
				views := make([]resultView, 0, len(results))
				for _, result := range results {
					views = append(views, resultView{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
				}
				if err := writeJSON(cmd, map[string]any{
					"checks": views,
					"passed": passed,
					"watch": map[string]any{
						"configured": probe.Configured,
						"path":       probe.Path,
						"sessions":   probe.Sessions,
					},
				}); err != nil {
					return err
				}
				if !passed {
					return errors.New("preflight checks failed")
				}
				return nil
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, result := range results {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Watch", statusInfo, probe.Detail(), colorize))
			if !passed {
				return errors.New("preflight checks failed")
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}
