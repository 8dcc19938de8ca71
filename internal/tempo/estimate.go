package tempo

import (
	"math"
	"sort"

	"renote/internal/audiofeat"
	"renote/internal/notes"
	"renote/internal/session"
)

// Defaults applied when Options fields are unset, mirroring the
// configuration defaults.
const (
	defaultMinBPM         = 20
	defaultMaxBPM         = 300
	defaultFallbackBPM    = 120
	defaultSegmentPenalty = 0.35
	defaultMaxRamp        = 30
)

// chordGlueS groups onsets closer than this into one rhythmic event, so a
// chord counts once in the interval statistics instead of once per voice.
const chordGlueS = 0.025

// maxUsableIOIS bounds the inter-onset intervals that inform tempo. Longer
// gaps are rests and carry no pulse information.
const maxUsableIOIS = 4.0

// maxBoundaries caps the segmentation breakpoint grid so the dynamic program
// stays near-linear in the onset count.
const maxBoundaries = 64

// Options bound the tempo search.
type Options struct {
	MinBPM         float64
	MaxBPM         float64
	FallbackBPM    float64
	SegmentPenalty float64
	MaxRampBPMPerS float64
}

// Result is the estimated curve plus reporting metrics.
type Result struct {
	Curve       notes.TempoCurve
	Metrics     session.TempoMetrics
	Diagnostics []notes.Diagnostic
}

// onsetEvent is one rhythmic event after chord coalescing. Weight blends note
// confidence with the audio onset strength envelope when one is available.
type onsetEvent struct {
	time   float64
	weight float64
}

// intervalSet holds the folded inter-onset intervals the estimator works on.
// periods[i] spans onsets[i] to onsets[i+1]; a zero period marks a rest gap
// excluded from the statistics.
type intervalSet struct {
	onsets  []onsetEvent
	periods []float64
	weights []float64
	usable  int
	global  float64
}

// segmentSpan is one constant-tempo region selected by the segmentation,
// expressed as a half-open interval index range.
type segmentSpan struct {
	from, to int
	period   float64
	residual float64
}

// Estimate derives a tempo curve from the merged note onsets. Onset strength
// features, when present, weight the interval statistics. Fewer than two
// usable onsets yields a flat fallback curve, never an error.
func Estimate(events []notes.NoteEvent, features *audiofeat.FeatureSet, opts Options) Result {
	opts = opts.normalized()

	onsets := collectOnsets(events, features)
	if len(onsets) < 2 {
		return fallbackResult(opts, "fewer than two usable onsets")
	}

	set := measureIntervals(onsets, opts)
	if set.usable == 0 {
		return fallbackResult(opts, "onsets too far apart to carry a pulse")
	}

	spans := segment(set, opts)
	curve := buildCurve(set, spans, opts)

	bpms := make([]float64, len(curve.Points))
	for i, pt := range curve.Points {
		bpms[i] = pt.BPM
	}
	return Result{
		Curve: curve,
		Metrics: session.TempoMetrics{
			Points:    len(curve.Points),
			Segments:  len(spans),
			MedianBPM: median(bpms),
		},
	}
}

func (o Options) normalized() Options {
	if o.MinBPM <= 0 {
		o.MinBPM = defaultMinBPM
	}
	if o.MaxBPM <= o.MinBPM {
		o.MaxBPM = defaultMaxBPM
	}
	if o.MaxBPM <= o.MinBPM {
		o.MaxBPM = o.MinBPM * 2
	}
	if o.FallbackBPM < o.MinBPM || o.FallbackBPM > o.MaxBPM {
		o.FallbackBPM = clampBPM(defaultFallbackBPM, o)
	}
	if o.SegmentPenalty <= 0 {
		o.SegmentPenalty = defaultSegmentPenalty
	}
	if o.MaxRampBPMPerS <= 0 {
		o.MaxRampBPMPerS = defaultMaxRamp
	}
	return o
}

func fallbackResult(opts Options, reason string) Result {
	return Result{
		Curve: notes.ConstantTempo(opts.FallbackBPM),
		Metrics: session.TempoMetrics{
			Points:    1,
			MedianBPM: opts.FallbackBPM,
			Fallback:  true,
		},
		Diagnostics: []notes.Diagnostic{{
			Stage:   "tempo",
			Message: reason + "; emitting flat fallback tempo",
		}},
	}
}

// collectOnsets sorts note onsets and coalesces chord tones into single
// weighted events. The weight is the best confidence in the group, scaled by
// the onset strength envelope when features carry one.
func collectOnsets(events []notes.NoteEvent, features *audiofeat.FeatureSet) []onsetEvent {
	type raw struct{ t, conf float64 }
	raws := make([]raw, 0, len(events))
	for _, n := range events {
		if n.Onset < 0 {
			continue
		}
		raws = append(raws, raw{t: n.Onset, conf: n.Confidence})
	}
	sort.Slice(raws, func(i, j int) bool { return raws[i].t < raws[j].t })

	var out []onsetEvent
	for i := 0; i < len(raws); {
		conf := raws[i].conf
		j := i + 1
		for j < len(raws) && raws[j].t-raws[i].t <= chordGlueS {
			if raws[j].conf > conf {
				conf = raws[j].conf
			}
			j++
		}
		w := 0.5 + clamp01(conf)
		if features.HasOnsetStrength() {
			w *= 0.5 + clamp01(features.OnsetStrengthAt(raws[i].t))
		}
		out = append(out, onsetEvent{time: raws[i].t, weight: w})
		i = j
	}
	return out
}

func measureIntervals(onsets []onsetEvent, opts Options) intervalSet {
	set := intervalSet{
		onsets:  onsets,
		periods: make([]float64, len(onsets)-1),
		weights: make([]float64, len(onsets)-1),
	}
	lo := 60 / opts.MaxBPM
	hi := 60 / opts.MinBPM
	for i := 0; i+1 < len(onsets); i++ {
		gap := onsets[i+1].time - onsets[i].time
		if gap <= 0 || gap > maxUsableIOIS {
			continue
		}
		set.periods[i] = foldPeriod(gap, lo, hi)
		set.weights[i] = onsets[i+1].weight
		set.usable++
	}
	set.global = clusterPeriod(set.periods, set.weights)
	return set
}

// foldPeriod maps an interval into the plausible beat period band by octave
// doubling and halving, so eighth notes and half notes vote for the same
// pulse.
func foldPeriod(gap, lo, hi float64) float64 {
	p := gap
	for p < lo {
		p *= 2
	}
	for p > hi {
		p /= 2
	}
	if p < lo {
		p = lo
	}
	return p
}

// clusterPeriod finds the dominant folded period: a weighted histogram vote
// at 10ms resolution, refined by the weighted mean of intervals near the
// winning bin.
func clusterPeriod(periods, weights []float64) float64 {
	const bin = 0.010
	votes := make(map[int]float64)
	best, bestVote := 0, 0.0
	for i, p := range periods {
		if p <= 0 {
			continue
		}
		b := int(p / bin)
		votes[b] += weights[i]
		if votes[b] > bestVote {
			best, bestVote = b, votes[b]
		}
	}
	if bestVote == 0 {
		return 0
	}
	center := (float64(best) + 0.5) * bin
	sum, wsum := 0.0, 0.0
	for i, p := range periods {
		if p <= 0 || math.Abs(p-center) > center*0.2 {
			continue
		}
		sum += p * weights[i]
		wsum += weights[i]
	}
	if wsum == 0 {
		return center
	}
	return sum / wsum
}

// segment selects breakpoints minimizing total grid residual plus a fixed
// penalty per segment, so splits happen only where they pay for themselves.
func segment(set intervalSet, opts Options) []segmentSpan {
	bounds := boundaryGrid(len(set.periods))
	type edge struct{ period, residual float64 }
	costs := make([][]edge, len(bounds))
	for i := range costs {
		costs[i] = make([]edge, len(bounds))
	}
	best := make([]float64, len(bounds))
	parent := make([]int, len(bounds))
	for bi := 1; bi < len(bounds); bi++ {
		best[bi] = math.MaxFloat64
		for ai := 0; ai < bi; ai++ {
			period, residual := segmentStats(set, bounds[ai], bounds[bi])
			costs[ai][bi] = edge{period, residual}
			if c := best[ai] + residual + opts.SegmentPenalty; c < best[bi] {
				best[bi] = c
				parent[bi] = ai
			}
		}
	}

	var spans []segmentSpan
	for bi := len(bounds) - 1; bi > 0; bi = parent[bi] {
		ai := parent[bi]
		spans = append(spans, segmentSpan{
			from:     bounds[ai],
			to:       bounds[bi],
			period:   costs[ai][bi].period,
			residual: costs[ai][bi].residual,
		})
	}
	for i, j := 0, len(spans)-1; i < j; i, j = i+1, j-1 {
		spans[i], spans[j] = spans[j], spans[i]
	}
	return spans
}

func boundaryGrid(m int) []int {
	stride := 1
	if m > maxBoundaries {
		stride = (m + maxBoundaries - 1) / maxBoundaries
	}
	bounds := make([]int, 0, m/stride+2)
	for i := 0; i < m; i += stride {
		bounds = append(bounds, i)
	}
	return append(bounds, m)
}

// segmentStats estimates the beat period for one interval range and the
// weighted residual of its onsets against the grid under that period. Grid
// positions are integer beat multiples, so half notes cost nothing.
func segmentStats(set intervalSet, from, to int) (float64, float64) {
	period := weightedMedian(set.periods[from:to], set.weights[from:to])
	if period <= 0 {
		period = set.global
	}
	if period <= 0 {
		return 0, 0
	}
	residual := 0.0
	for k := from; k < to; k++ {
		if set.periods[k] <= 0 {
			continue
		}
		gap := set.onsets[k+1].time - set.onsets[k].time
		m := math.Round(gap / period)
		if m < 1 {
			m = 1
		}
		residual += set.weights[k] * math.Abs(gap-m*period)
	}
	return period, residual
}

func weightedMedian(values, weights []float64) float64 {
	type vw struct{ v, w float64 }
	items := make([]vw, 0, len(values))
	total := 0.0
	for i, v := range values {
		if v <= 0 || weights[i] <= 0 {
			continue
		}
		items = append(items, vw{v, weights[i]})
		total += weights[i]
	}
	if len(items) == 0 {
		return 0
	}
	sort.Slice(items, func(i, j int) bool { return items[i].v < items[j].v })
	half := total / 2
	cum := 0.0
	for _, it := range items {
		cum += it.w
		if cum >= half {
			return it.v
		}
	}
	return items[len(items)-1].v
}

// buildCurve turns segments into control points: each segment contributes a
// flat pair, with the tempo transition ramping across the first interval of
// the incoming segment. A final pass caps the slope between adjacent points.
func buildCurve(set intervalSet, spans []segmentSpan, opts Options) notes.TempoCurve {
	onsets := set.onsets
	var pts []notes.TempoPoint
	for k, span := range spans {
		bpm := clampBPM(60/span.period, opts)
		start := onsets[span.from].time
		if k > 0 {
			start = onsets[span.from+1].time
		}
		end := onsets[span.to].time
		if start < end {
			pts = append(pts,
				notes.TempoPoint{Time: start, BPM: bpm},
				notes.TempoPoint{Time: end, BPM: bpm})
		} else {
			pts = append(pts, notes.TempoPoint{Time: end, BPM: bpm})
		}
	}
	for i := 1; i < len(pts); i++ {
		limit := opts.MaxRampBPMPerS * (pts[i].Time - pts[i-1].Time)
		delta := pts[i].BPM - pts[i-1].BPM
		if delta > limit {
			pts[i].BPM = pts[i-1].BPM + limit
		} else if delta < -limit {
			pts[i].BPM = pts[i-1].BPM - limit
		}
	}
	return notes.TempoCurve{Points: pts}
}

func clampBPM(bpm float64, opts Options) float64 {
	if bpm < opts.MinBPM {
		return opts.MinBPM
	}
	if bpm > opts.MaxBPM {
		return opts.MaxBPM
	}
	return bpm
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
