package hands

import (
	"fmt"
	"sort"

	"renote/internal/notes"
	"renote/internal/session"
)

// Defaults applied when Options fields are unset, mirroring the
// configuration defaults.
const (
	defaultSplitPoint   = 60
	defaultMaxSpan      = 16
	defaultSwitchCost   = 1.0
	defaultCrossingCost = 2.0
	defaultRangeWeight  = 0.05
	defaultRestResetS   = 1.0
)

// A voice continues across adjacent chords when its pitch moves at most this
// many semitones; only continuing voices can incur the switch penalty.
const switchProximity = 2

// Costs within this distance count as equal, sending the decision to the
// fewest-switches tie break.
const costEpsilon = 1e-9

// Options control the ergonomic cost model.
type Options struct {
	SplitPoint       int
	MaxSpanSemitones int
	SwitchPenalty    float64
	CrossingPenalty  float64
	RangeWeight      float64
	RestResetS       float64
}

// Result is the staff assignment for one session.
type Result struct {
	Assignments []notes.HandAssignment
	Metrics     session.HandsMetrics
	Diagnostics []notes.Diagnostic
}

// voice pairs a quantized note with its source event fields used by the
// cost model.
type voice struct {
	id     string
	pitch  int
	onset  float64
	offset float64
}

// chord is one simultaneous group on the quantized grid. Voices are ordered
// by ascending pitch, so a split index k sends voices[:k] to the bass staff
// and voices[k:] to the treble staff.
type chord struct {
	measure    int
	beat       notes.Rational
	voices     []voice
	onset      float64
	end        float64
	candidates []int
	strain     int
}

type cell struct {
	cost     float64
	switches int
	parent   int
}

// Split assigns every quantized note to a staff by minimizing range, span,
// voice-crossing, and hand-switch penalties over the whole piece with a
// forward dynamic program. Equal-cost paths resolve to the one with fewer
// hand switches.
func Split(quantized []notes.QuantizedNote, events []notes.NoteEvent, opts Options) Result {
	opts = opts.normalized()

	var result Result
	chords := groupChords(quantized, events, &result)
	if len(chords) == 0 {
		return result
	}
	for i := range chords {
		chooseCandidates(&chords[i], opts, &result)
	}

	layers := make([][]cell, len(chords))
	for ci := range chords {
		cur := &chords[ci]
		layers[ci] = make([]cell, len(cur.candidates))
		for ki, k := range cur.candidates {
			if ci == 0 {
				per, switches, _ := edgeCosts(nil, 0, cur, k, opts)
				layers[ci][ki] = cell{cost: sum(per), switches: switches, parent: -1}
				continue
			}
			prev := &chords[ci-1]
			best := cell{parent: -1}
			for pi, pk := range prev.candidates {
				per, switches, _ := edgeCosts(prev, pk, cur, k, opts)
				candidate := cell{
					cost:     layers[ci-1][pi].cost + sum(per),
					switches: layers[ci-1][pi].switches + switches,
					parent:   pi,
				}
				if best.parent < 0 || better(candidate, best) {
					best = candidate
				}
			}
			layers[ci][ki] = best
		}
	}

	last := len(chords) - 1
	pick := 0
	for ki := 1; ki < len(layers[last]); ki++ {
		if better(layers[last][ki], layers[last][pick]) {
			pick = ki
		}
	}
	chosen := make([]int, len(chords))
	for ci := last; ci >= 0; ci-- {
		chosen[ci] = chords[ci].candidates[pick]
		pick = layers[ci][pick].parent
	}

	// Replay the chosen path to attribute costs per note and count events.
	for ci := range chords {
		cur := &chords[ci]
		k := chosen[ci]
		var prev *chord
		pk := 0
		if ci > 0 {
			prev = &chords[ci-1]
			pk = chosen[ci-1]
		}
		per, switches, crossings := edgeCosts(prev, pk, cur, k, opts)
		result.Metrics.Switches += switches
		result.Metrics.Crossings += crossings
		for vi, v := range cur.voices {
			staff := notes.StaffTreble
			if vi < k {
				staff = notes.StaffBass
				result.Metrics.BassNotes++
			} else {
				result.Metrics.TrebleNotes++
			}
			result.Assignments = append(result.Assignments, notes.HandAssignment{
				NoteID: v.id,
				Staff:  staff,
				Cost:   per[vi],
			})
		}
	}
	return result
}

func (o Options) normalized() Options {
	if o.SplitPoint <= 0 {
		o.SplitPoint = defaultSplitPoint
	}
	if o.MaxSpanSemitones <= 0 {
		o.MaxSpanSemitones = defaultMaxSpan
	}
	if o.SwitchPenalty < 0 {
		o.SwitchPenalty = defaultSwitchCost
	}
	if o.CrossingPenalty < 0 {
		o.CrossingPenalty = defaultCrossingCost
	}
	if o.RangeWeight < 0 {
		o.RangeWeight = defaultRangeWeight
	}
	if o.RestResetS <= 0 {
		o.RestResetS = defaultRestResetS
	}
	return o
}

// groupChords joins quantized notes with their source events and collects
// them into simultaneous groups ordered by grid position.
func groupChords(quantized []notes.QuantizedNote, events []notes.NoteEvent, result *Result) []chord {
	sources := make(map[string]notes.NoteEvent, len(events))
	for _, n := range events {
		sources[n.ID] = n
	}

	type key struct {
		measure  int
		num, den int64
	}
	index := make(map[key]int)
	var chords []chord
	for _, q := range quantized {
		src, ok := sources[q.NoteID]
		if !ok {
			result.Diagnostics = append(result.Diagnostics, notes.Diagnostic{
				Stage:   "hands",
				NoteRef: q.NoteID,
				Message: "no source event for quantized note; left unassigned",
			})
			continue
		}
		k := key{measure: q.Measure, num: q.Beat.Num, den: q.Beat.Den}
		ci, ok := index[k]
		if !ok {
			ci = len(chords)
			index[k] = ci
			chords = append(chords, chord{measure: q.Measure, beat: q.Beat})
		}
		c := &chords[ci]
		c.voices = append(c.voices, voice{
			id:     q.NoteID,
			pitch:  src.Pitch,
			onset:  src.Onset,
			offset: src.Offset,
		})
	}

	for i := range chords {
		c := &chords[i]
		sort.Slice(c.voices, func(a, b int) bool {
			if c.voices[a].pitch != c.voices[b].pitch {
				return c.voices[a].pitch < c.voices[b].pitch
			}
			return c.voices[a].id < c.voices[b].id
		})
		c.onset = c.voices[0].onset
		c.end = c.voices[0].offset
		for _, v := range c.voices[1:] {
			if v.onset < c.onset {
				c.onset = v.onset
			}
			if v.offset > c.end {
				c.end = v.offset
			}
		}
	}
	sort.Slice(chords, func(a, b int) bool {
		if chords[a].measure != chords[b].measure {
			return chords[a].measure < chords[b].measure
		}
		return chords[a].beat.Cmp(chords[b].beat) < 0
	})
	return chords
}

// chooseCandidates keeps the split indexes whose hand spans fit the maximum.
// A chord no split can fit keeps the least-stretched splits instead and is
// reported once.
func chooseCandidates(c *chord, opts Options, result *Result) {
	type scored struct {
		k      int
		excess int
	}
	all := make([]scored, 0, len(c.voices)+1)
	minExcess := -1
	for k := 0; k <= len(c.voices); k++ {
		excess := spanExcess(c.voices[:k], opts.MaxSpanSemitones) +
			spanExcess(c.voices[k:], opts.MaxSpanSemitones)
		all = append(all, scored{k: k, excess: excess})
		if minExcess < 0 || excess < minExcess {
			minExcess = excess
		}
	}
	for _, s := range all {
		if s.excess == minExcess {
			c.candidates = append(c.candidates, s.k)
		}
	}
	c.strain = minExcess
	if minExcess > 0 {
		span := c.voices[len(c.voices)-1].pitch - c.voices[0].pitch
		result.Diagnostics = append(result.Diagnostics, notes.Diagnostic{
			Stage:   "hands",
			NoteRef: c.voices[0].id,
			Message: fmt.Sprintf("chord at measure %d spans %d semitones; no split fits a %d semitone hand",
				c.measure, span, opts.MaxSpanSemitones),
		})
	}
}

func spanExcess(voices []voice, maxSpan int) int {
	if len(voices) < 2 {
		return 0
	}
	span := voices[len(voices)-1].pitch - voices[0].pitch
	if span <= maxSpan {
		return 0
	}
	return span - maxSpan
}

// edgeCosts returns the cost contribution of cur under split k given the
// previous chord's split, aligned with cur.voices, plus the switch and
// crossing counts the transition incurs. prev is nil for the first chord.
func edgeCosts(prev *chord, pk int, cur *chord, k int, opts Options) ([]float64, int, int) {
	per := make([]float64, len(cur.voices))

	// Register mismatch: bass reaching above the split point or treble
	// reaching below it.
	for vi, v := range cur.voices {
		if vi < k {
			if v.pitch > opts.SplitPoint {
				per[vi] += float64(v.pitch-opts.SplitPoint) * opts.RangeWeight
			}
		} else if v.pitch < opts.SplitPoint {
			per[vi] += float64(opts.SplitPoint-v.pitch) * opts.RangeWeight
		}
	}
	if cur.strain > 0 {
		share := float64(cur.strain) * opts.RangeWeight / float64(len(cur.voices))
		for vi := range per {
			per[vi] += share
		}
	}
	if prev == nil {
		return per, 0, 0
	}

	resting := cur.onset-prev.end >= opts.RestResetS
	switches, crossings := 0, 0
	for vi, v := range cur.voices {
		bass := vi < k

		// Crossing against previous voices still sounding at this onset.
		for pi, p := range prev.voices {
			if p.offset <= cur.onset {
				continue
			}
			prevBass := pi < pk
			if prevBass && !bass && v.pitch < p.pitch || !prevBass && bass && v.pitch > p.pitch {
				crossings++
				per[vi] += opts.CrossingPenalty
			}
		}

		// Switch when a continuing voice changes hands without a rest.
		if resting {
			continue
		}
		nearest, nearestBass := -1, false
		for pi, p := range prev.voices {
			d := v.pitch - p.pitch
			if d < 0 {
				d = -d
			}
			if nearest < 0 || d < nearest {
				nearest, nearestBass = d, pi < pk
			}
		}
		if nearest >= 0 && nearest <= switchProximity && nearestBass != bass {
			switches++
			per[vi] += opts.SwitchPenalty
		}
	}

	// Stretch of a hand holding earlier notes while playing this chord.
	for _, bass := range []bool{true, false} {
		lo, hi, curCount := 0, 0, 0
		for vi, v := range cur.voices {
			if (vi < k) != bass {
				continue
			}
			if curCount == 0 || v.pitch < lo {
				lo = v.pitch
			}
			if curCount == 0 || v.pitch > hi {
				hi = v.pitch
			}
			curCount++
		}
		if curCount == 0 {
			continue
		}
		aloneExcess := 0
		if hi-lo > opts.MaxSpanSemitones {
			aloneExcess = hi - lo - opts.MaxSpanSemitones
		}
		for pi, p := range prev.voices {
			if (pi < pk) != bass || p.offset <= cur.onset {
				continue
			}
			if p.pitch < lo {
				lo = p.pitch
			}
			if p.pitch > hi {
				hi = p.pitch
			}
		}
		if excess := hi - lo - opts.MaxSpanSemitones; excess > aloneExcess {
			share := float64(excess-aloneExcess) * opts.RangeWeight / float64(curCount)
			for vi := range cur.voices {
				if (vi < k) == bass {
					per[vi] += share
				}
			}
		}
	}
	return per, switches, crossings
}

func better(a, b cell) bool {
	if a.cost < b.cost-costEpsilon {
		return true
	}
	if a.cost > b.cost+costEpsilon {
		return false
	}
	return a.switches < b.switches
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
