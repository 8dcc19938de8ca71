package notes

import (
	"math"
	"testing"
)

func TestConstantTempoBeatMapping(t *testing.T) {
	curve := ConstantTempo(120)
	if got := curve.BeatAt(1.0); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("BeatAt(1.0) at 120 bpm = %v, expected 2.0", got)
	}
	if got := curve.TimeAt(2.0); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("TimeAt(2.0) at 120 bpm = %v, expected 1.0", got)
	}
	if got := curve.BPMAt(42); got != 120 {
		t.Fatalf("BPMAt = %v, expected 120", got)
	}
}

func TestBeatAtIntegratesRamp(t *testing.T) {
	// 60 bpm at t=0 ramping to 120 bpm at t=10: average 90 bpm over the span.
	curve := TempoCurve{Points: []TempoPoint{{Time: 0, BPM: 60}, {Time: 10, BPM: 120}}}
	if got := curve.BeatAt(10); math.Abs(got-15.0) > 1e-9 {
		t.Fatalf("BeatAt(10) over ramp = %v, expected 15.0", got)
	}
	// First half covers 60->90 bpm, average 75, so 6.25 beats.
	if got := curve.BeatAt(5); math.Abs(got-6.25) > 1e-9 {
		t.Fatalf("BeatAt(5) over ramp = %v, expected 6.25", got)
	}
}

func TestTimeAtInvertsBeatAt(t *testing.T) {
	curve := TempoCurve{Points: []TempoPoint{
		{Time: 0, BPM: 60},
		{Time: 10, BPM: 120},
		{Time: 20, BPM: 90},
	}}
	for _, tm := range []float64{0, 0.5, 3.3, 9.99, 10, 14.2, 19.9, 25, 40} {
		beats := curve.BeatAt(tm)
		back := curve.TimeAt(beats)
		if math.Abs(back-tm) > 1e-6 {
			t.Fatalf("TimeAt(BeatAt(%v)) = %v, expected round trip", tm, back)
		}
	}
}

func TestBeatAtFlatBeforeFirstPoint(t *testing.T) {
	curve := TempoCurve{Points: []TempoPoint{{Time: 2, BPM: 60}, {Time: 4, BPM: 60}}}
	if got := curve.BeatAt(1.0); math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("BeatAt(1.0) before first point = %v, expected 1.0", got)
	}
}

func TestTempoCurveValidate(t *testing.T) {
	valid := TempoCurve{Points: []TempoPoint{{Time: 0, BPM: 100}, {Time: 5, BPM: 110}}}
	if err := valid.Validate(20, 300); err != nil {
		t.Fatalf("expected valid curve, got %v", err)
	}
	empty := TempoCurve{}
	if err := empty.Validate(20, 300); err == nil {
		t.Fatal("expected empty curve to fail validation")
	}
	unordered := TempoCurve{Points: []TempoPoint{{Time: 5, BPM: 100}, {Time: 5, BPM: 110}}}
	if err := unordered.Validate(20, 300); err == nil {
		t.Fatal("expected non-increasing times to fail validation")
	}
	outOfBand := TempoCurve{Points: []TempoPoint{{Time: 0, BPM: 500}}}
	if err := outOfBand.Validate(20, 300); err == nil {
		t.Fatal("expected out-of-band bpm to fail validation")
	}
}
