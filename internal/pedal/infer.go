package pedal

import (
	"sort"

	"renote/internal/audiofeat"
	"renote/internal/notes"
	"renote/internal/session"
)

// Inference sources recorded in pedal.json and the session metrics.
const (
	SourceResonance = "resonance"
	SourceOverlap   = "overlap"
)

// Defaults applied when Options fields are unset, mirroring the
// configuration defaults.
const (
	defaultMergeGapMS     = 80
	defaultHysteresisMS   = 150
	defaultHoldThresholdS = 2.0
	defaultResonanceOn    = 0.6
	defaultResonanceOff   = 0.35
)

// Envelope evidence is direct, overlap evidence circumstantial. The gap
// keeps the overlap path below the resonance path per the stage contract.
const (
	confidenceResonance = 0.8
	confidenceOverlap   = 0.35
)

// Options control pedal inference thresholds.
type Options struct {
	MergeGapMS     int
	HysteresisMS   int
	HoldThresholdS float64
	ResonanceOn    float64
	ResonanceOff   float64
}

// Result is the inferred pedal track for one session.
type Result struct {
	Events      []notes.PedalEvent
	Source      string
	Metrics     session.PedalMetrics
	Diagnostics []notes.Diagnostic
}

// Infer produces sustain pedal intervals. With a usable resonance envelope it
// runs a two-threshold trigger over the signal; without one it falls back to
// note-overlap evidence at reduced confidence. Either way the output is
// coalesced so intervals of one kind never overlap.
func Infer(events []notes.NoteEvent, features *audiofeat.FeatureSet, opts Options) Result {
	opts = opts.normalized()

	var result Result
	var raw []notes.PedalEvent
	if features.HasResonance() {
		result.Source = SourceResonance
		raw = inferResonance(features, opts)
	} else {
		result.Source = SourceOverlap
		raw = inferOverlap(events, opts)
		result.Diagnostics = append(result.Diagnostics, notes.Diagnostic{
			Stage:   "pedal",
			Message: "no usable resonance envelope; inferred pedal from note overlap at reduced confidence",
		})
	}

	coalesced, merged := coalesce(raw, float64(opts.MergeGapMS)/1000)
	result.Events = coalesced
	result.Metrics = session.PedalMetrics{
		Events:    len(coalesced),
		Source:    result.Source,
		Coalesced: merged,
	}
	return result
}

func (o Options) normalized() Options {
	if o.MergeGapMS < 0 {
		o.MergeGapMS = defaultMergeGapMS
	}
	if o.HysteresisMS < 0 {
		o.HysteresisMS = defaultHysteresisMS
	}
	if o.HoldThresholdS <= 0 {
		o.HoldThresholdS = defaultHoldThresholdS
	}
	if o.ResonanceOn <= 0 {
		o.ResonanceOn = defaultResonanceOn
	}
	if o.ResonanceOff <= 0 || o.ResonanceOff >= o.ResonanceOn {
		o.ResonanceOff = o.ResonanceOn / 2
	}
	return o
}

// inferResonance walks the envelope with a two-threshold trigger. The pedal
// engages when resonance reaches the on threshold and releases once it has
// stayed below the off threshold for the full hysteresis window; the release
// time is the moment the envelope first fell, not the end of the window.
func inferResonance(features *audiofeat.FeatureSet, opts Options) []notes.PedalEvent {
	step := 1 / features.FrameRate
	hysteresis := float64(opts.HysteresisMS) / 1000

	var out []notes.PedalEvent
	var start, belowSince float64
	open, below := false, false
	for i, v := range features.Resonance {
		t := float64(i) * step
		switch {
		case !open:
			if v >= opts.ResonanceOn {
				open, start = true, t
				below = false
			}
		case v < opts.ResonanceOff:
			if !below {
				below, belowSince = true, t
			}
			if t-belowSince >= hysteresis {
				out = appendInterval(out, start, belowSince)
				open, below = false, false
			}
		default:
			below = false
		}
	}
	if open {
		end := float64(len(features.Resonance)) / features.FrameRate
		if below {
			end = belowSince
		}
		out = appendInterval(out, start, end)
	}
	return out
}

func appendInterval(out []notes.PedalEvent, start, end float64) []notes.PedalEvent {
	if end <= start {
		return out
	}
	return append(out, notes.PedalEvent{
		Kind:       notes.PedalSustain,
		Start:      start,
		End:        end,
		Confidence: confidenceResonance,
	})
}

// inferOverlap reads pedal engagement from the notes alone. A note sounding
// past the hold threshold implies the pedal carried it beyond natural decay,
// from the threshold crossing to its offset. A same-pitch repeat struck while
// the previous strike still sounds implies the damper was up across the
// overlap.
func inferOverlap(events []notes.NoteEvent, opts Options) []notes.PedalEvent {
	var out []notes.PedalEvent
	byPitch := make(map[int][]int)
	for i, n := range events {
		if n.Duration() > opts.HoldThresholdS {
			out = append(out, notes.PedalEvent{
				Kind:       notes.PedalSustain,
				Start:      n.Onset + opts.HoldThresholdS,
				End:        n.Offset,
				Confidence: confidenceOverlap,
			})
		}
		byPitch[n.Pitch] = append(byPitch[n.Pitch], i)
	}

	for _, idxs := range byPitch {
		if len(idxs) < 2 {
			continue
		}
		sort.Slice(idxs, func(a, b int) bool {
			return events[idxs[a]].Onset < events[idxs[b]].Onset
		})
		for k := 1; k < len(idxs); k++ {
			prev, next := events[idxs[k-1]], events[idxs[k]]
			end := prev.Offset
			if next.Offset < end {
				end = next.Offset
			}
			if end <= next.Onset {
				continue
			}
			out = append(out, notes.PedalEvent{
				Kind:       notes.PedalSustain,
				Start:      next.Onset,
				End:        end,
				Confidence: confidenceOverlap,
			})
		}
	}
	return out
}

// coalesce merges intervals of the same kind that overlap or sit closer than
// the merge gap, keeping the strongest confidence. The returned count is the
// number of intervals absorbed into a neighbor.
func coalesce(events []notes.PedalEvent, gap float64) ([]notes.PedalEvent, int) {
	if len(events) == 0 {
		return nil, 0
	}

	byKind := make(map[notes.PedalKind][]notes.PedalEvent)
	for _, e := range events {
		byKind[e.Kind] = append(byKind[e.Kind], e)
	}

	var out []notes.PedalEvent
	merged := 0
	for _, group := range byKind {
		notes.SortPedals(group)
		run := group[0]
		for _, e := range group[1:] {
			if e.Start-run.End < gap {
				if e.End > run.End {
					run.End = e.End
				}
				if e.Confidence > run.Confidence {
					run.Confidence = e.Confidence
				}
				merged++
				continue
			}
			out = append(out, run)
			run = e
		}
		out = append(out, run)
	}
	notes.SortPedals(out)
	return out, merged
}
