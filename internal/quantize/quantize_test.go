package quantize

import (
	"math"
	"strings"
	"testing"

	"renote/internal/notes"
)

func mkEvent(id string, onset, offset float64) notes.NoteEvent {
	return notes.NoteEvent{
		ID:         id,
		Pitch:      60,
		Onset:      onset,
		Offset:     offset,
		Velocity:   80,
		Confidence: 0.9,
	}
}

func defaultQuantizeOptions() Options {
	return Options{
		Subdivisions:     []int{1, 2, 3, 4, 6, 8, 12, 16, 24, 32},
		ComplexityWeight: 0.002,
		TieEpsilonMS:     3.0,
		MinDurationBeats: 0.03125,
		BeatsPerMeasure:  4,
	}
}

func wantRational(t *testing.T, got notes.Rational, num, den int64, what string) {
	t.Helper()
	if want := notes.NewRational(num, den); got.Cmp(want) != 0 {
		t.Fatalf("%s = %s, want %s", what, got, want)
	}
}

func TestQuantizeExactBeatZeroResidual(t *testing.T) {
	curve := notes.ConstantTempo(120)
	result := Quantize([]notes.NoteEvent{mkEvent("m_0000", 1.00, 1.50)}, curve, defaultQuantizeOptions())

	if len(result.Notes) != 1 {
		t.Fatalf("expected 1 quantized note, got %d", len(result.Notes))
	}
	got := result.Notes[0]
	if got.NoteID != "m_0000" {
		t.Fatalf("note id = %q", got.NoteID)
	}
	if got.Measure != 0 {
		t.Fatalf("measure = %d, want 0", got.Measure)
	}
	wantRational(t, got.Beat, 2, 1, "beat")
	wantRational(t, got.Duration, 1, 1, "duration")
	if got.Tie {
		t.Fatal("note inside one measure should not tie")
	}
	if math.Abs(got.Residual) > 1e-9 {
		t.Fatalf("residual = %g, want 0", got.Residual)
	}
	if result.Metrics.MaxResidualMS > 1e-6 {
		t.Fatalf("max residual = %g ms, want 0", result.Metrics.MaxResidualMS)
	}
	if result.Metrics.Subdivisions[1] != 1 {
		t.Fatalf("subdivision histogram = %v, want whole-beat grid", result.Metrics.Subdivisions)
	}
}

func TestQuantizeIdempotent(t *testing.T) {
	curve := notes.ConstantTempo(120)
	input := []notes.NoteEvent{
		mkEvent("m_0000", 0.01, 0.26),
		mkEvent("m_0001", 0.24, 0.50),
		mkEvent("m_0002", 0.76, 0.99),
	}
	opts := defaultQuantizeOptions()

	first := Quantize(input, curve, opts)
	if len(first.Notes) != 3 {
		t.Fatalf("expected 3 notes, got %d", len(first.Notes))
	}
	if first.Metrics.Subdivisions[2] != 3 {
		t.Fatalf("subdivision histogram = %v, want eighth grid for all notes", first.Metrics.Subdivisions)
	}

	// Render the snapped positions back to seconds and quantize again.
	resnapped := make([]notes.NoteEvent, len(first.Notes))
	for i, q := range first.Notes {
		onsetBeat := float64(q.Measure)*float64(opts.BeatsPerMeasure) + q.Beat.Float64()
		resnapped[i] = mkEvent(q.NoteID, curve.TimeAt(onsetBeat), curve.TimeAt(onsetBeat+q.Duration.Float64()))
	}
	second := Quantize(resnapped, curve, opts)

	for i, want := range first.Notes {
		got := second.Notes[i]
		if got.Measure != want.Measure {
			t.Fatalf("note %s measure changed: %d -> %d", want.NoteID, want.Measure, got.Measure)
		}
		if got.Beat.Cmp(want.Beat) != 0 {
			t.Fatalf("note %s beat changed: %s -> %s", want.NoteID, want.Beat, got.Beat)
		}
		if got.Duration.Cmp(want.Duration) != 0 {
			t.Fatalf("note %s duration changed: %s -> %s", want.NoteID, want.Duration, got.Duration)
		}
		if got.Tie != want.Tie {
			t.Fatalf("note %s tie changed: %v -> %v", want.NoteID, want.Tie, got.Tie)
		}
		if math.Abs(got.Residual) > 1e-9 {
			t.Fatalf("note %s second-pass residual = %g, want 0", want.NoteID, got.Residual)
		}
	}
}

func TestQuantizeClampsCollapsedDurations(t *testing.T) {
	curve := notes.ConstantTempo(120)
	result := Quantize([]notes.NoteEvent{mkEvent("m_0000", 1.00, 1.01)}, curve, defaultQuantizeOptions())

	if result.Metrics.ClampedNotes != 1 {
		t.Fatalf("clamped notes = %d, want 1", result.Metrics.ClampedNotes)
	}
	got := result.Notes[0]
	wantRational(t, got.Duration, 1, 32, "clamped duration")
	// Onset snaps exactly; the floored offset lands at beat 2 + 1/32.
	wantResidual := curve.TimeAt(2.0+1.0/32) - 1.01
	if math.Abs(got.Residual-wantResidual) > 1e-9 {
		t.Fatalf("residual = %g, want %g", got.Residual, wantResidual)
	}
	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(result.Diagnostics))
	}
	diag := result.Diagnostics[0]
	if diag.Stage != "quantize" || diag.NoteRef != "m_0000" {
		t.Fatalf("diagnostic = %+v", diag)
	}
	if !strings.Contains(diag.Message, "floored") {
		t.Fatalf("diagnostic message = %q", diag.Message)
	}
	if math.Abs(result.Metrics.MaxResidualMS-wantResidual*1000) > 1e-6 {
		t.Fatalf("max residual = %g ms, want %g", result.Metrics.MaxResidualMS, wantResidual*1000)
	}
}

func TestQuantizeSelectsTripletGrid(t *testing.T) {
	curve := notes.ConstantTempo(120)
	events := make([]notes.NoteEvent, 6)
	for i := range events {
		onset := float64(i) / 6
		events[i] = mkEvent("m_000"+string(rune('0'+i)), onset, onset+1.0/6)
	}
	result := Quantize(events, curve, defaultQuantizeOptions())

	if result.Metrics.Subdivisions[3] != 6 {
		t.Fatalf("subdivision histogram = %v, want triplet grid for all notes", result.Metrics.Subdivisions)
	}
	for i, q := range result.Notes {
		if q.Measure != 0 {
			t.Fatalf("note %d measure = %d", i, q.Measure)
		}
		wantRational(t, q.Beat, int64(i), 3, "beat")
		wantRational(t, q.Duration, 1, 3, "duration")
		if math.Abs(q.Residual) > 1e-9 {
			t.Fatalf("note %d residual = %g, want 0", i, q.Residual)
		}
	}
}

func TestQuantizeTieSpansMeasureBoundary(t *testing.T) {
	curve := notes.ConstantTempo(120)
	events := []notes.NoteEvent{
		mkEvent("m_0000", 0.50, 1.00), // beats 1..2, inside the measure
		mkEvent("m_0001", 1.75, 2.25), // beats 3.5..4.5, crosses into measure 1
	}
	result := Quantize(events, curve, defaultQuantizeOptions())

	inside, crossing := result.Notes[0], result.Notes[1]
	if inside.Tie {
		t.Fatal("note ending inside the measure should not tie")
	}
	if !crossing.Tie {
		t.Fatal("note crossing the barline should tie")
	}
	if crossing.Measure != 0 {
		t.Fatalf("crossing note measure = %d, want 0", crossing.Measure)
	}
	wantRational(t, crossing.Beat, 7, 2, "crossing beat")
	wantRational(t, crossing.Duration, 1, 1, "crossing duration")
	if result.Metrics.TiedNotes != 1 {
		t.Fatalf("tied notes = %d, want 1", result.Metrics.TiedNotes)
	}
}

func TestQuantizeCoarserGridWinsTies(t *testing.T) {
	// A note flush on the whole-beat grid has zero residual on every
	// candidate, so the coarsest candidate must win.
	curve := notes.ConstantTempo(120)
	result := Quantize([]notes.NoteEvent{mkEvent("m_0000", 0.50, 1.00)}, curve, defaultQuantizeOptions())

	if len(result.Metrics.Subdivisions) != 1 || result.Metrics.Subdivisions[1] != 1 {
		t.Fatalf("subdivision histogram = %v, want only the whole-beat grid", result.Metrics.Subdivisions)
	}
}

func TestQuantizeWindowsChooseGridsIndependently(t *testing.T) {
	curve := notes.ConstantTempo(120)
	var events []notes.NoteEvent
	// Measure 0 carries straight eighths.
	for i := 0; i < 3; i++ {
		onset := float64(i) * 0.25
		events = append(events, mkEvent("e_000"+string(rune('0'+i)), onset, onset+0.25))
	}
	// Measure 1 carries triplets starting at beat 4.
	for i := 0; i < 3; i++ {
		onset := 2.0 + float64(i)/6
		events = append(events, mkEvent("t_000"+string(rune('0'+i)), onset, onset+1.0/6))
	}
	result := Quantize(events, curve, defaultQuantizeOptions())

	if result.Metrics.Subdivisions[2] != 3 || result.Metrics.Subdivisions[3] != 3 {
		t.Fatalf("subdivision histogram = %v, want eighths and triplets side by side", result.Metrics.Subdivisions)
	}
	first := result.Notes[3]
	if first.Measure != 1 {
		t.Fatalf("triplet measure = %d, want 1", first.Measure)
	}
	wantRational(t, first.Beat, 0, 1, "first triplet beat")
	second := result.Notes[4]
	if second.Measure != 1 {
		t.Fatalf("second triplet measure = %d, want 1", second.Measure)
	}
	wantRational(t, second.Beat, 1, 3, "second triplet beat")
}

func TestQuantizeEmptyInput(t *testing.T) {
	result := Quantize(nil, notes.ConstantTempo(120), defaultQuantizeOptions())
	if len(result.Notes) != 0 {
		t.Fatalf("expected no notes, got %d", len(result.Notes))
	}
	if result.Metrics.Notes != 0 || len(result.Diagnostics) != 0 {
		t.Fatalf("expected empty metrics, got %+v", result.Metrics)
	}
}
