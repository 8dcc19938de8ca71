package tempo

import (
	"math"
	"testing"

	"renote/internal/audiofeat"
	"renote/internal/notes"
)

func approx(t *testing.T, got, want float64, what string) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %.9f, want %.9f", what, got, want)
	}
}

func noteAt(onset float64) notes.NoteEvent {
	return notes.NoteEvent{
		Pitch:      60,
		Onset:      onset,
		Offset:     onset + 0.2,
		Velocity:   80,
		Confidence: 0.9,
	}
}

func notesAt(onsets ...float64) []notes.NoteEvent {
	events := make([]notes.NoteEvent, len(onsets))
	for i, onset := range onsets {
		events[i] = noteAt(onset)
	}
	return events
}

func steadyOnsets(start, step float64, count int) []float64 {
	onsets := make([]float64, count)
	for i := range onsets {
		onsets[i] = start + step*float64(i)
	}
	return onsets
}

func defaultTempoOptions() Options {
	return Options{MinBPM: 20, MaxBPM: 300, FallbackBPM: 120, SegmentPenalty: 0.35, MaxRampBPMPerS: 30}
}

func TestEstimateFlatPerformance(t *testing.T) {
	events := notesAt(steadyOnsets(0, 0.5, 11)...)

	result := Estimate(events, nil, defaultTempoOptions())
	if result.Metrics.Fallback {
		t.Fatal("steady onsets must not fall back")
	}
	if result.Metrics.Segments != 1 {
		t.Fatalf("segments = %d, want 1", result.Metrics.Segments)
	}
	pts := result.Curve.Points
	if len(pts) != 2 {
		t.Fatalf("points = %+v", pts)
	}
	approx(t, pts[0].Time, 0, "first point time")
	approx(t, pts[0].BPM, 120, "first point bpm")
	approx(t, pts[1].Time, 5.0, "last point time")
	approx(t, pts[1].BPM, 120, "last point bpm")
	approx(t, result.Metrics.MedianBPM, 120, "median bpm")
	if err := result.Curve.Validate(20, 300); err != nil {
		t.Errorf("curve invariant: %v", err)
	}
}

// A sudden jump from 120 to 200 bpm splits into two segments, and the
// transition ramp between them is capped at the configured slope.
func TestEstimateDetectsTempoChangeWithCappedRamp(t *testing.T) {
	onsets := steadyOnsets(0, 0.5, 5)
	onsets = append(onsets, steadyOnsets(2.0, 0.3, 13)[1:]...)
	events := notesAt(onsets...)

	result := Estimate(events, nil, defaultTempoOptions())
	if result.Metrics.Segments != 2 {
		t.Fatalf("segments = %d, want 2 (points %+v)", result.Metrics.Segments, result.Curve.Points)
	}
	pts := result.Curve.Points
	if len(pts) != 4 {
		t.Fatalf("points = %+v", pts)
	}
	approx(t, pts[0].BPM, 120, "opening bpm")
	approx(t, pts[1].Time, 2.0, "first segment end time")
	approx(t, pts[1].BPM, 120, "first segment end bpm")
	// The jump lands 0.3s later; 30 bpm/s allows only +9 across that gap.
	approx(t, pts[2].Time, 2.3, "transition time")
	approx(t, pts[2].BPM, 129, "capped transition bpm")
	approx(t, pts[3].Time, 5.6, "second segment end time")
	approx(t, pts[3].BPM, 200, "recovered bpm")
	approx(t, result.Metrics.MedianBPM, 124.5, "median bpm")
	if err := result.Curve.Validate(20, 300); err != nil {
		t.Errorf("curve invariant: %v", err)
	}
}

func TestEstimateFallsBackOnSparseOnsets(t *testing.T) {
	cases := []struct {
		name   string
		events []notes.NoteEvent
	}{
		{"no notes", nil},
		{"single note", notesAt(1.0)},
		{"distant notes", notesAt(0, 10.0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Estimate(tc.events, nil, defaultTempoOptions())
			if !result.Metrics.Fallback {
				t.Fatal("expected fallback curve")
			}
			pts := result.Curve.Points
			if len(pts) != 1 || pts[0].BPM != 120 {
				t.Fatalf("points = %+v", pts)
			}
			if len(result.Diagnostics) != 1 || result.Diagnostics[0].Stage != "tempo" {
				t.Errorf("diagnostics = %+v", result.Diagnostics)
			}
		})
	}
}

// A long rest in the middle of a steady performance must not split the curve
// or distort the tempo; the gap simply carries no votes.
func TestEstimateBridgesRests(t *testing.T) {
	onsets := steadyOnsets(0, 0.5, 5)
	onsets = append(onsets, steadyOnsets(8.0, 0.5, 5)...)
	events := notesAt(onsets...)

	result := Estimate(events, nil, defaultTempoOptions())
	if result.Metrics.Segments != 1 {
		t.Fatalf("segments = %d, want 1", result.Metrics.Segments)
	}
	pts := result.Curve.Points
	if len(pts) != 2 {
		t.Fatalf("points = %+v", pts)
	}
	approx(t, pts[0].BPM, 120, "bpm before rest")
	approx(t, pts[1].Time, 10.0, "end time")
	approx(t, pts[1].BPM, 120, "bpm after rest")
}

// Uniform onset strength scales every weight identically, so the estimate
// must match the unweighted run.
func TestEstimateUniformFeatureWeightingIsNeutral(t *testing.T) {
	events := notesAt(steadyOnsets(0, 0.5, 11)...)
	strength := make([]float64, 60)
	for i := range strength {
		strength[i] = 0.8
	}
	features := &audiofeat.FeatureSet{Fingerprint: "fp", FrameRate: 10, OnsetStrength: strength}

	plain := Estimate(events, nil, defaultTempoOptions())
	weighted := Estimate(events, features, defaultTempoOptions())
	if len(plain.Curve.Points) != len(weighted.Curve.Points) {
		t.Fatalf("point counts diverge: %d vs %d", len(plain.Curve.Points), len(weighted.Curve.Points))
	}
	for i := range plain.Curve.Points {
		approx(t, weighted.Curve.Points[i].Time, plain.Curve.Points[i].Time, "point time")
		approx(t, weighted.Curve.Points[i].BPM, plain.Curve.Points[i].BPM, "point bpm")
	}
}

func TestFoldPeriod(t *testing.T) {
	cases := []struct {
		gap, want float64
	}{
		{0.5, 0.5},
		{0.1, 0.2},
		{0.05, 0.2},
		{4.0, 2.0},
		{3.0, 3.0},
	}
	for _, tc := range cases {
		got := foldPeriod(tc.gap, 0.2, 3.0)
		approx(t, got, tc.want, "folded period")
	}
}

func TestWeightedMedian(t *testing.T) {
	if got := weightedMedian(nil, nil); got != 0 {
		t.Errorf("empty median = %v", got)
	}
	got := weightedMedian([]float64{0.3, 0.5, 0.5}, []float64{3, 1, 1})
	approx(t, got, 0.3, "weight-dominated median")
	got = weightedMedian([]float64{0.3, 0, 0.5}, []float64{1, 9, 1})
	approx(t, got, 0.3, "median skips unusable intervals")
}

// Heavier onsets pull the period cluster toward their interval population.
func TestClusterPeriodFollowsWeight(t *testing.T) {
	periods := []float64{0.4, 0.4, 0.4, 0.4, 0.6, 0.6, 0.6}

	uniform := clusterPeriod(periods, []float64{1, 1, 1, 1, 1, 1, 1})
	approx(t, uniform, 0.4, "majority period")

	weighted := clusterPeriod(periods, []float64{0.7, 0.7, 0.7, 0.7, 2.1, 2.1, 2.1})
	approx(t, weighted, 0.6, "weight-dominated period")
}

func TestCollectOnsetsCoalescesChords(t *testing.T) {
	events := []notes.NoteEvent{
		{Pitch: 60, Onset: 1.00, Offset: 1.4, Velocity: 80, Confidence: 0.9},
		{Pitch: 64, Onset: 1.01, Offset: 1.4, Velocity: 80, Confidence: 0.5},
		{Pitch: 67, Onset: 1.02, Offset: 1.4, Velocity: 80, Confidence: 0.95},
		{Pitch: 72, Onset: 2.00, Offset: 2.4, Velocity: 80, Confidence: 0.6},
	}

	onsets := collectOnsets(events, nil)
	if len(onsets) != 2 {
		t.Fatalf("onsets = %+v", onsets)
	}
	approx(t, onsets[0].time, 1.0, "chord anchor time")
	approx(t, onsets[0].weight, 1.45, "chord weight uses best confidence")
	approx(t, onsets[1].time, 2.0, "second event time")
	approx(t, onsets[1].weight, 1.1, "second event weight")
}

func TestCollectOnsetsAppliesOnsetStrength(t *testing.T) {
	events := notesAt(1.0, 2.0)
	features := &audiofeat.FeatureSet{
		Fingerprint:   "fp",
		FrameRate:     1,
		OnsetStrength: []float64{0.2, 1.0, 0.0},
	}

	onsets := collectOnsets(events, features)
	if len(onsets) != 2 {
		t.Fatalf("onsets = %+v", onsets)
	}
	// base weight 1.4, scaled by 0.5 + strength at the onset frame
	approx(t, onsets[0].weight, 1.4*1.5, "strong onset weight")
	approx(t, onsets[1].weight, 1.4*0.5, "weak onset weight")
}
