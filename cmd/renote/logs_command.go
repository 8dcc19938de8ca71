package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"renote/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOut bool
		tail    int
		file    string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Replay the daemon's structured event journal",
		Long: "Reads the event journal the daemon writes alongside its log file and prints " +
			"the recorded events, newest journal first unless --file picks a specific run.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := strings.TrimSpace(file)
			if path == "" {
				path, err = latestEventJournal(cfg.Paths.LogDir)
				if err != nil {
					return err
				}
			}
			events, _, err := logging.ReadEventJournal(path, 0, 0)
			if err != nil {
				return err
			}
			if tail > 0 && len(events) > tail {
				events = events[len(events)-tail:]
			}
			if jsonOut {
				return writeJSON(cmd, map[string]any{
					"journal": path,
					"events":  events,
				})
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintf(out, "No events recorded in %s\n", path)
				return nil
			}
			fmt.Fprintf(out, "Events from %s\n", path)
			for _, evt := range events {
				fmt.Fprintln(out, formatEventLine(evt))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	cmd.Flags().IntVar(&tail, "tail", 0, "Show only the last N events")
	cmd.Flags().StringVar(&file, "file", "", "Read a specific journal file instead of the newest")
	return cmd
}

// latestEventJournal picks the newest journal in the log directory. Run IDs
// are UTC timestamps, so lexical order is chronological order.
func latestEventJournal(logDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(logDir, "renote-*.events"))
	if err != nil {
		return "", fmt.Errorf("scan log dir: %w", err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no event journals under %s; the daemon writes one per run", logDir)
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func formatEventLine(evt logging.LogEvent) string {
	var b strings.Builder
	b.WriteString(statusIndent)
	b.WriteString(evt.Timestamp.Format("15:04:05.000"))
	fmt.Fprintf(&b, " %-5s", strings.ToUpper(evt.Level))
	if evt.Component != "" {
		fmt.Fprintf(&b, " [%s]", evt.Component)
	}
	if evt.ItemID > 0 {
		fmt.Fprintf(&b, " item=%d", evt.ItemID)
	}
	if evt.Stage != "" {
		fmt.Fprintf(&b, " stage=%s", evt.Stage)
	}
	b.WriteString(" ")
	b.WriteString(evt.Message)
	return b.String()
}
