package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"renote/internal/config"
	"renote/internal/queue"
	"renote/internal/session"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show one queue item in detail",
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
				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"item":     newItemView(item),
						"envelope": env,
					})
				}
				printItemDetail(cmd.OutOrStdout(), item, env)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit machine-readable JSON")
	return cmd
}

func printItemDetail(out io.Writer, item *queue.Item, env session.Envelope) {
	fmt.Fprintf(out, "Item #%d: %s\n", item.ID, displayTitle(item))
	detailLine(out, "Status", formatStatusLabel(string(item.Status)))
	detailLine(out, "Session", item.SessionPath)
	if progress := formatProgress(item); progress != "" {
		detailLine(out, "Progress", progress)
	}
	if item.ProgressMessage != "" && item.ProgressMessage != item.ProgressStage {
		detailLine(out, "Message", item.ProgressMessage)
	}
	if item.SourceCount > 0 {
		detailLine(out, "Sources", fmt.Sprintf("%d", item.SourceCount))
	}
	if item.NoteCount > 0 {
		detailLine(out, "Notes", fmt.Sprintf("%d", item.NoteCount))
	}
	if item.FeatureFingerprint != "" {
		detailLine(out, "Fingerprint", formatFingerprint(item.FeatureFingerprint))
	}
	if item.NeedsReview {
		detailLine(out, "Review reason", item.ReviewReason)
	}
	if item.ErrorMessage != "" && item.ErrorMessage != item.ReviewReason {
		detailLine(out, "Error", item.ErrorMessage)
	}
	detailLine(out, "Created", formatDisplayTime(item.CreatedAt))
	detailLine(out, "Updated", formatDisplayTime(item.UpdatedAt))

	printEnvelopeSources(out, env)
	printEnvelopeMetrics(out, env)
	printEnvelopeAgreement(out, item.ID, env)
	printEnvelopeArtifacts(out, env)

	if len(env.Diagnostics) > 0 {
		fmt.Fprintf(out, "\nDiagnostics: %d (see `renote show %d --json`)\n", len(env.Diagnostics), item.ID)
	}
}

func detailLine(out io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, label+":", value)
}

func printEnvelopeSources(out io.Writer, env session.Envelope) {
	if len(env.Sources) == 0 {
		return
	}
	rows := make([][]string, 0, len(env.Sources))
	for _, src := range env.Sources {
		rows = append(rows, []string{
			src.Model,
			src.Format,
			fmt.Sprintf("%d", src.Notes),
			fmt.Sprintf("%d", src.Dropped),
			fmt.Sprintf("%.2f", src.MeanConfidence),
		})
	}
	fmt.Fprintln(out, "\nSources:")
	fmt.Fprintln(out, renderTable(out,
		[]string{"Model", "Format", "Notes", "Dropped", "Confidence"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight},
	))
}

func printEnvelopeMetrics(out io.Writer, env session.Envelope) {
	m := env.Metrics
	if m.Merge == nil && m.Tempo == nil && m.Quantize == nil && m.Pedal == nil && m.Hands == nil {
		return
	}
	fmt.Fprintln(out, "\nMetrics:")
	if v := m.Merge; v != nil {
		detailLine(out, "Merge", fmt.Sprintf("%d notes from %d inputs (%d matched groups, %d singletons)",
			v.MergedNotes, v.InputNotes, v.MatchedGroups, v.Singletons))
	}
	if v := m.Tempo; v != nil {
		label := fmt.Sprintf("median %.1f BPM across %d segments", v.MedianBPM, v.Segments)
		if v.Fallback {
			label += " (fallback)"
		}
		detailLine(out, "Tempo", label)
	}
	if v := m.Quantize; v != nil {
		detailLine(out, "Quantize", fmt.Sprintf("%d notes, %d tied, max residual %.1f ms",
			v.Notes, v.TiedNotes, v.MaxResidualMS))
	}
	if v := m.Pedal; v != nil {
		detailLine(out, "Pedal", fmt.Sprintf("%d events (%s)", v.Events, v.Source))
	}
	if v := m.Hands; v != nil {
		detailLine(out, "Hands", fmt.Sprintf("treble %d / bass %d, %d switches",
			v.TrebleNotes, v.BassNotes, v.Switches))
	}
}

func printEnvelopeAgreement(out io.Writer, id int64, env session.Envelope) {
	report := env.Agreement
	if report == nil || len(report.Pairs) == 0 {
		return
	}
	var sum float64
	for _, pair := range report.Pairs {
		sum += pair.Agreement
	}
	mean := sum / float64(len(report.Pairs))
	fmt.Fprintln(out)
	detailLine(out, "Agreement", fmt.Sprintf("%.0f%% mean across %d source pairs (`renote report %d`)",
		mean*100, len(report.Pairs), id))
}

func printEnvelopeArtifacts(out io.Writer, env session.Envelope) {
	artifacts := []struct {
		label string
		path  string
	}{
		{"Streams", env.Artifacts.Streams},
		{"Merged", env.Artifacts.Merged},
		{"Tempo", env.Artifacts.Tempo},
		{"Quantized", env.Artifacts.Quantized},
		{"Pedal", env.Artifacts.Pedal},
		{"Hands", env.Artifacts.Hands},
		{"Score", env.Artifacts.Score},
		{"Preview", env.Artifacts.Preview},
	}
	printed := false
	for _, artifact := range artifacts {
		if artifact.path == "" {
			continue
		}
		if !printed {
			fmt.Fprintln(out, "\nArtifacts:")
			printed = true
		}
		detailLine(out, artifact.label, artifact.path)
	}
}
