package notes

import (
	"fmt"
	"math"
)

// fallbackBPM keeps time math defined when a curve has no control points.
// Estimation always emits at least one point; this only guards decoded data.
const fallbackBPM = 120

// TempoPoint is one control point of a tempo curve.
type TempoPoint struct {
	Time float64 `json:"time_s"`
	BPM  float64 `json:"bpm"`
}

// TempoCurve maps wall-clock time to tempo. BPM is flat before the first
// control point and after the last, and linearly interpolated between
// adjacent points, so the beat integral is continuous everywhere.
type TempoCurve struct {
	Points []TempoPoint `json:"points"`
}

// ConstantTempo builds a flat curve at the given tempo.
func ConstantTempo(bpm float64) TempoCurve {
	return TempoCurve{Points: []TempoPoint{{Time: 0, BPM: bpm}}}
}

// BPMAt returns the instantaneous tempo at time t.
func (c TempoCurve) BPMAt(t float64) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return fallbackBPM
	}
	if t <= pts[0].Time {
		return pts[0].BPM
	}
	for i := 1; i < len(pts); i++ {
		if t <= pts[i].Time {
			prev, next := pts[i-1], pts[i]
			span := next.Time - prev.Time
			if span <= 0 {
				return next.BPM
			}
			frac := (t - prev.Time) / span
			return prev.BPM + (next.BPM-prev.BPM)*frac
		}
	}
	return pts[len(pts)-1].BPM
}

// BeatAt integrates the curve from time zero to t and returns the cumulative
// beat count. The integral is exact for the piecewise-linear interpolation.
func (c TempoCurve) BeatAt(t float64) float64 {
	if t <= 0 {
		return 0
	}
	pts := c.Points
	if len(pts) == 0 {
		return t * fallbackBPM / 60
	}
	beats := 0.0
	prevTime := 0.0
	prevBPM := pts[0].BPM
	for _, pt := range pts {
		if pt.Time <= prevTime {
			prevBPM = pt.BPM
			continue
		}
		if t <= pt.Time {
			atT := interpolateBPM(prevTime, prevBPM, pt.Time, pt.BPM, t)
			return beats + segmentBeats(prevBPM, atT, t-prevTime)
		}
		beats += segmentBeats(prevBPM, pt.BPM, pt.Time-prevTime)
		prevTime = pt.Time
		prevBPM = pt.BPM
	}
	return beats + (t-prevTime)*prevBPM/60
}

// TimeAt inverts BeatAt: it returns the time at which the cumulative beat
// count reaches beat.
func (c TempoCurve) TimeAt(beat float64) float64 {
	if beat <= 0 {
		return 0
	}
	pts := c.Points
	if len(pts) == 0 {
		return beat * 60 / fallbackBPM
	}
	prevTime := 0.0
	prevBPM := pts[0].BPM
	remaining := beat
	for _, pt := range pts {
		if pt.Time <= prevTime {
			prevBPM = pt.BPM
			continue
		}
		span := pt.Time - prevTime
		segBeats := segmentBeats(prevBPM, pt.BPM, span)
		if remaining <= segBeats {
			return prevTime + solveSegment(prevBPM, pt.BPM, span, remaining)
		}
		remaining -= segBeats
		prevTime = pt.Time
		prevBPM = pt.BPM
	}
	return prevTime + remaining*60/prevBPM
}

// Validate checks the structural invariants: at least one control point,
// strictly increasing times, non-negative start, tempo within [minBPM, maxBPM].
func (c TempoCurve) Validate(minBPM, maxBPM float64) error {
	if len(c.Points) == 0 {
		return fmt.Errorf("tempo curve has no control points")
	}
	prev := math.Inf(-1)
	for i, pt := range c.Points {
		if pt.Time < 0 {
			return fmt.Errorf("control point %d has negative time %.4f", i, pt.Time)
		}
		if pt.Time <= prev {
			return fmt.Errorf("control point %d time %.4f not after %.4f", i, pt.Time, prev)
		}
		if pt.BPM < minBPM || pt.BPM > maxBPM {
			return fmt.Errorf("control point %d bpm %.2f outside %.0f-%.0f", i, pt.BPM, minBPM, maxBPM)
		}
		prev = pt.Time
	}
	return nil
}

// segmentBeats is the trapezoid integral of a linear bpm ramp over seconds.
func segmentBeats(fromBPM, toBPM, seconds float64) float64 {
	return seconds * (fromBPM + toBPM) / 120
}

func interpolateBPM(t0, b0, t1, b1, t float64) float64 {
	span := t1 - t0
	if span <= 0 {
		return b1
	}
	return b0 + (b1-b0)*(t-t0)/span
}

// solveSegment finds the offset into a linear bpm ramp at which the beat
// integral reaches beats. The quadratic always has a real root because the
// target never exceeds the full-segment integral.
func solveSegment(fromBPM, toBPM, span, beats float64) float64 {
	target := beats * 60
	slope := (toBPM - fromBPM) / span
	if math.Abs(slope) < 1e-9 {
		if fromBPM <= 0 {
			return span
		}
		dt := target / fromBPM
		return math.Min(dt, span)
	}
	disc := fromBPM*fromBPM + 2*slope*target
	if disc < 0 {
		disc = 0
	}
	dt := (math.Sqrt(disc) - fromBPM) / slope
	if dt < 0 {
		dt = 0
	}
	if dt > span {
		dt = span
	}
	return dt
}
