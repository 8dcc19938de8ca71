// Package assemble composes the final score document from the artifacts the
// earlier stages staged, and optionally renders a preview MIDI file so the
// fusion can be auditioned before an external renderer runs.
package assemble

import (
	"sort"
	"time"

	"renote/internal/notes"
	"renote/internal/session"
)

// ScoreNote is one fused note with its full renotation: the consensus event
// fields plus grid position, staff, and the quantization residual.
type ScoreNote struct {
	notes.NoteEvent
	Measure  int            `json:"measure"`
	Beat     notes.Rational `json:"beat"`
	Duration notes.Rational `json:"duration"`
	Tie      bool           `json:"tie"`
	Staff    notes.Staff    `json:"staff"`
	HandCost float64        `json:"hand_cost"`
	Residual float64        `json:"residual_s"`
}

// ScoreDocument is the assembled output written to score.json and published
// into the library.
type ScoreDocument struct {
	Title       string                  `json:"title"`
	GeneratedAt time.Time               `json:"generated_at"`
	Sources     []session.SourceSummary `json:"sources,omitempty"`
	Notes       []ScoreNote             `json:"notes"`
	Pedals      []notes.PedalEvent      `json:"pedals"`
	TempoCurve  []notes.TempoPoint      `json:"tempo_curve"`
	Diagnostics []notes.Diagnostic      `json:"diagnostics"`
}

// Input gathers the per-stage artifacts the builder joins into a score.
type Input struct {
	Title       string
	GeneratedAt time.Time
	SplitPoint  int
	Sources     []session.SourceSummary
	Notes       []notes.NoteEvent
	Grid        []notes.QuantizedNote
	Staves      []notes.HandAssignment
	Pedals      []notes.PedalEvent
	Tempo       notes.TempoCurve
}

// Result carries the assembled document and the diagnostics the join raised.
// Document.Diagnostics is left empty; the stage stamps the full cross-stage
// set after recording Result.Diagnostics in the envelope.
type Result struct {
	Document    ScoreDocument
	Diagnostics []notes.Diagnostic
}

// Build joins the merged notes with their grid positions and staff
// assignments, orders everything for rendering, and returns the score
// document. A note the pipeline lost along the way degrades the output
// instead of failing it: a missing grid position drops the note with a
// diagnostic, a missing staff assignment falls back to the register around
// the configured split point.
func Build(in Input) Result {
	grid := make(map[string]notes.QuantizedNote, len(in.Grid))
	for _, q := range in.Grid {
		grid[q.NoteID] = q
	}
	staves := make(map[string]notes.HandAssignment, len(in.Staves))
	for _, a := range in.Staves {
		staves[a.NoteID] = a
	}

	var diags []notes.Diagnostic
	scored := make([]ScoreNote, 0, len(in.Notes))
	for _, event := range in.Notes {
		placed, ok := grid[event.ID]
		if !ok {
			diags = append(diags, notes.Diagnostic{
				Stage:   "assemble",
				NoteRef: event.ID,
				Message: "note has no grid position; dropped from the score",
			})
			continue
		}
		scoreNote := ScoreNote{
			NoteEvent: event,
			Measure:   placed.Measure,
			Beat:      placed.Beat,
			Duration:  placed.Duration,
			Tie:       placed.Tie,
			Residual:  placed.Residual,
		}
		if assignment, ok := staves[event.ID]; ok {
			scoreNote.Staff = assignment.Staff
			scoreNote.HandCost = assignment.Cost
		} else {
			scoreNote.Staff = notes.StaffBass
			if event.Pitch >= in.SplitPoint {
				scoreNote.Staff = notes.StaffTreble
			}
			diags = append(diags, notes.Diagnostic{
				Stage:   "assemble",
				NoteRef: event.ID,
				Message: "note has no staff assignment; placed by register",
			})
		}
		scored = append(scored, scoreNote)
	}
	if len(in.Notes) == 0 {
		diags = append(diags, notes.Diagnostic{
			Stage:   "assemble",
			Message: "no notes detected; score is empty",
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Onset != scored[j].Onset {
			return scored[i].Onset < scored[j].Onset
		}
		if scored[i].Pitch != scored[j].Pitch {
			return scored[i].Pitch < scored[j].Pitch
		}
		return scored[i].ID < scored[j].ID
	})

	pedals := make([]notes.PedalEvent, len(in.Pedals))
	copy(pedals, in.Pedals)
	notes.SortPedals(pedals)

	curve := make([]notes.TempoPoint, len(in.Tempo.Points))
	copy(curve, in.Tempo.Points)

	doc := ScoreDocument{
		Title:       in.Title,
		GeneratedAt: in.GeneratedAt,
		Sources:     in.Sources,
		Notes:       scored,
		Pedals:      pedals,
		TempoCurve:  curve,
		Diagnostics: []notes.Diagnostic{},
	}
	return Result{Document: doc, Diagnostics: diags}
}
