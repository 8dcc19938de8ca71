package quantize

import (
	"fmt"
	"math"
	"sort"

	"renote/internal/notes"
	"renote/internal/session"
)

// Defaults applied when Options fields are unset, mirroring the
// configuration defaults.
var defaultSubdivisions = []int{1, 2, 3, 4, 6, 8, 12, 16, 24, 32}

const (
	defaultComplexityWeight = 0.002
	defaultTieEpsilonMS     = 3.0
	defaultMinDuration      = 0.03125
	defaultBeatsPerMeasure  = 4
)

// rationalScale converts float beat fractions to exact rationals. It carries
// enough binary and triplet resolution for every supported subdivision.
const rationalScale = 3072

// Options control grid selection and snapping.
type Options struct {
	Subdivisions     []int
	ComplexityWeight float64
	TieEpsilonMS     float64
	MinDurationBeats float64
	BeatsPerMeasure  int
}

// Result is the rhythmic projection of a consensus note list.
type Result struct {
	Notes       []notes.QuantizedNote
	Diagnostics []notes.Diagnostic
	Metrics     session.QuantizeMetrics
}

// beatNote caches the raw beat mapping of one event so grid scoring never
// re-integrates the tempo curve.
type beatNote struct {
	index     int
	onsetBeat float64
	offBeat   float64
}

// Quantize maps every note onto the rational grid that best explains its
// measure, using the tempo curve to translate between seconds and beats.
// Grid choice is per measure: total timing residual in seconds plus a
// complexity penalty growing with subdivision fineness, with ties inside the
// epsilon going to the coarser grid.
func Quantize(events []notes.NoteEvent, curve notes.TempoCurve, opts Options) Result {
	opts = opts.normalized()

	var result Result
	if len(events) == 0 {
		return result
	}

	beats := make([]beatNote, len(events))
	windows := make(map[int][]int)
	for i, n := range events {
		beats[i] = beatNote{
			index:     i,
			onsetBeat: curve.BeatAt(n.Onset),
			offBeat:   curve.BeatAt(n.Offset),
		}
		m := int(beats[i].onsetBeat) / opts.BeatsPerMeasure
		windows[m] = append(windows[m], i)
	}

	chosen := make(map[int]int, len(windows))
	measures := make([]int, 0, len(windows))
	for m := range windows {
		measures = append(measures, m)
	}
	sort.Ints(measures)
	for _, m := range measures {
		chosen[m] = selectSubdivision(events, beats, windows[m], curve, opts)
	}

	minDur := floatRational(opts.MinDurationBeats)
	bpm := int64(opts.BeatsPerMeasure)
	result.Notes = make([]notes.QuantizedNote, 0, len(events))
	result.Metrics.Subdivisions = make(map[int]int)
	for i, n := range events {
		window := int(beats[i].onsetBeat) / opts.BeatsPerMeasure
		sub := chosen[window]

		onset := snapBeat(beats[i].onsetBeat, sub)
		offset := snapBeat(beats[i].offBeat, sub)
		duration := offset.Sub(onset)
		residual := math.Abs(curve.TimeAt(onset.Float64())-n.Onset) +
			math.Abs(curve.TimeAt(offset.Float64())-n.Offset)

		if duration.Cmp(minDur) < 0 {
			duration = minDur
			floored := onset.Add(duration)
			residual = math.Abs(curve.TimeAt(onset.Float64())-n.Onset) +
				math.Abs(curve.TimeAt(floored.Float64())-n.Offset)
			result.Metrics.ClampedNotes++
			result.Diagnostics = append(result.Diagnostics, notes.Diagnostic{
				Stage:   "quantize",
				NoteRef: n.ID,
				Message: fmt.Sprintf("duration collapsed on the 1/%d grid; floored to %s beat(s)", sub, minDur),
			})
		}

		measure := onset.Num / (onset.Den * bpm)
		beat := onset.Sub(notes.NewRational(measure*bpm, 1))
		end := onset.Add(duration)
		tie := end.Cmp(notes.NewRational((measure+1)*bpm, 1)) > 0

		result.Notes = append(result.Notes, notes.QuantizedNote{
			NoteID:   n.ID,
			Measure:  int(measure),
			Beat:     beat,
			Duration: duration,
			Tie:      tie,
			Residual: residual,
		})
		result.Metrics.Subdivisions[sub]++
		if tie {
			result.Metrics.TiedNotes++
		}
		if ms := residual * 1000; ms > result.Metrics.MaxResidualMS {
			result.Metrics.MaxResidualMS = ms
		}
	}
	result.Metrics.Notes = len(result.Notes)
	return result
}

func (o Options) normalized() Options {
	if len(o.Subdivisions) == 0 {
		o.Subdivisions = defaultSubdivisions
	}
	subs := make([]int, 0, len(o.Subdivisions))
	for _, s := range o.Subdivisions {
		if s > 0 {
			subs = append(subs, s)
		}
	}
	if len(subs) == 0 {
		subs = defaultSubdivisions
	}
	sort.Ints(subs)
	o.Subdivisions = subs
	if o.ComplexityWeight < 0 {
		o.ComplexityWeight = defaultComplexityWeight
	}
	if o.TieEpsilonMS < 0 {
		o.TieEpsilonMS = defaultTieEpsilonMS
	}
	if o.MinDurationBeats <= 0 {
		o.MinDurationBeats = defaultMinDuration
	}
	if o.BeatsPerMeasure <= 0 {
		o.BeatsPerMeasure = defaultBeatsPerMeasure
	}
	return o
}

// selectSubdivision scores every candidate grid over one measure window and
// returns the winner. Candidates are ordered coarse to fine; a finer grid
// wins only when its cost is lower and it reduces the residual by more than
// the tie epsilon.
func selectSubdivision(events []notes.NoteEvent, beats []beatNote, window []int, curve notes.TempoCurve, opts Options) int {
	epsilon := opts.TieEpsilonMS / 1000

	score := func(sub int) (cost, residual float64) {
		total := 0.0
		for _, i := range window {
			on := snapFloat(beats[i].onsetBeat, sub)
			off := snapFloat(beats[i].offBeat, sub)
			total += math.Abs(curve.TimeAt(on) - events[i].Onset)
			total += math.Abs(curve.TimeAt(off) - events[i].Offset)
		}
		mean := total / float64(2*len(window))
		return mean + opts.ComplexityWeight*float64(sub), mean
	}

	best := opts.Subdivisions[0]
	bestCost, bestResidual := score(best)
	for _, sub := range opts.Subdivisions[1:] {
		cost, residual := score(sub)
		if cost < bestCost && bestResidual-residual > epsilon {
			best, bestCost, bestResidual = sub, cost, residual
		}
	}
	return best
}

// snapBeat rounds a raw beat position to the nearest 1/sub grid line as an
// exact rational.
func snapBeat(beat float64, sub int) notes.Rational {
	steps := int64(math.Round(beat * float64(sub)))
	if steps < 0 {
		steps = 0
	}
	return notes.NewRational(steps, int64(sub))
}

func snapFloat(beat float64, sub int) float64 {
	snapped := math.Round(beat*float64(sub)) / float64(sub)
	if snapped < 0 {
		return 0
	}
	return snapped
}

// floatRational converts a float beat count to an exact rational on a grid
// fine enough for binary and triplet fractions.
func floatRational(beats float64) notes.Rational {
	return notes.NewRational(int64(math.Round(beats*rationalScale)), rationalScale)
}
