package merge

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"renote/internal/notes"
	"renote/internal/session"
)

// Options carries the fusion thresholds.
type Options struct {
	// OnsetWindow is the maximum onset distance in seconds for two equal-pitch
	// notes from different sources to count as one performed note. Offsets may
	// differ by up to twice this value.
	OnsetWindow float64
	// SingletonScale discounts the confidence of notes only one source saw,
	// and floors the consensus factor of corroborated clusters so agreement
	// never scores below a singleton. It applies only when the session has
	// at least two sources.
	SingletonScale float64
	// TotalSources is the number of streams in the session. Support fractions
	// are computed against it; zero means "derive from the input".
	TotalSources int
}

// DefaultOnsetWindow is used when Options leaves the window unset.
const DefaultOnsetWindow = 0.04

// minWeight keeps zero-confidence notes from collapsing the weighted
// averages to 0/0.
const minWeight = 1e-3

// Result is the consensus stream produced from all sources.
type Result struct {
	Notes       []notes.NoteEvent
	Diagnostics []notes.Diagnostic
	Metrics     session.MergeMetrics
}

type taggedNote struct {
	note   notes.NoteEvent
	source string
}

type groupResult struct {
	notes      []notes.NoteEvent
	matched    int
	singletons int
}

// Merge fuses the per-model streams into one consensus stream. Candidate
// notes group by pitch; within a pitch group, union-find clusters notes from
// different sources whose onsets lie within the window and whose offsets lie
// within twice the window. Pitch groups are disjoint, so they merge
// concurrently. Identical inputs always produce identical output.
func Merge(streams []session.Stream, opts Options) Result {
	if opts.OnsetWindow <= 0 {
		opts.OnsetWindow = DefaultOnsetWindow
	}
	if opts.TotalSources <= 0 {
		opts.TotalSources = len(streams)
	}
	if opts.SingletonScale <= 0 || opts.SingletonScale > 1 {
		opts.SingletonScale = 1
	}

	var result Result
	groups := make([][]taggedNote, notes.MaxPitch+1)
	inputCount := 0
	for _, stream := range streams {
		for _, n := range stream.Notes {
			if err := n.Validate(); err != nil {
				result.Diagnostics = append(result.Diagnostics, notes.Diagnostic{
					Stage:   "merge",
					Source:  stream.Model,
					NoteRef: n.ID,
					Message: err.Error(),
				})
				continue
			}
			inputCount++
			groups[n.Pitch] = append(groups[n.Pitch], taggedNote{note: n, source: stream.Model})
		}
	}

	// Pitch groups are independent; fan them out and collect into
	// pitch-indexed slots so the outcome does not depend on scheduling.
	results := make([]groupResult, len(groups))
	pitches := make(chan int)
	var wg sync.WaitGroup
	workers := runtime.GOMAXPROCS(0)
	if workers > len(groups) {
		workers = len(groups)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pitch := range pitches {
				results[pitch] = mergePitchGroup(groups[pitch], opts)
			}
		}()
	}
	for pitch, group := range groups {
		if len(group) > 0 {
			pitches <- pitch
		}
	}
	close(pitches)
	wg.Wait()

	var merged []notes.NoteEvent
	for _, gr := range results {
		merged = append(merged, gr.notes...)
		result.Metrics.MatchedGroups += gr.matched
		result.Metrics.Singletons += gr.singletons
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Onset != merged[j].Onset {
			return merged[i].Onset < merged[j].Onset
		}
		return merged[i].Pitch < merged[j].Pitch
	})
	confidenceSum := 0.0
	for idx := range merged {
		merged[idx].ID = fmt.Sprintf("m_%04d", idx)
		confidenceSum += merged[idx].Confidence
	}

	result.Notes = merged
	result.Metrics.InputNotes = inputCount
	result.Metrics.MergedNotes = len(merged)
	if len(merged) > 0 {
		result.Metrics.MeanConfidence = confidenceSum / float64(len(merged))
	}
	return result
}

// mergePitchGroup clusters one pitch's candidates and reduces each cluster
// to a consensus note.
func mergePitchGroup(group []taggedNote, opts Options) groupResult {
	sort.SliceStable(group, func(i, j int) bool {
		if group[i].note.Onset != group[j].note.Onset {
			return group[i].note.Onset < group[j].note.Onset
		}
		if group[i].source != group[j].source {
			return group[i].source < group[j].source
		}
		return group[i].note.ID < group[j].note.ID
	})

	uf := newUnionFind(len(group))
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			if group[j].note.Onset-group[i].note.Onset > opts.OnsetWindow {
				break
			}
			if group[i].source == group[j].source {
				continue
			}
			if math.Abs(group[j].note.Offset-group[i].note.Offset) <= 2*opts.OnsetWindow {
				uf.union(i, j)
			}
		}
	}

	clusterOrder := make([]int, 0, len(group))
	clusters := make(map[int][]int)
	for i := range group {
		root := uf.find(i)
		if _, seen := clusters[root]; !seen {
			clusterOrder = append(clusterOrder, root)
		}
		clusters[root] = append(clusters[root], i)
	}

	var gr groupResult
	for _, root := range clusterOrder {
		members := clusters[root]
		consensus, sources := reduceCluster(group, members, opts)
		gr.notes = append(gr.notes, consensus)
		if sources > 1 {
			gr.matched++
		} else {
			gr.singletons++
		}
	}
	return gr
}

// reduceCluster folds cluster members into one consensus note. Onset, offset,
// and velocity are confidence-weighted averages; confidence grows with both
// the fraction of sources that detected the note and the tightness of their
// onset agreement.
func reduceCluster(group []taggedNote, members []int, opts Options) (notes.NoteEvent, int) {
	var (
		weightSum  float64
		onsetSum   float64
		offsetSum  float64
		velocity   float64
		confSum    float64
		minOnset   = math.MaxFloat64
		maxOnset   = -math.MaxFloat64
		sourcesSet = make(map[string]struct{})
	)
	for _, idx := range members {
		member := group[idx]
		w := member.note.Confidence
		if w < minWeight {
			w = minWeight
		}
		weightSum += w
		onsetSum += w * member.note.Onset
		offsetSum += w * member.note.Offset
		velocity += w * float64(member.note.Velocity)
		confSum += member.note.Confidence
		minOnset = math.Min(minOnset, member.note.Onset)
		maxOnset = math.Max(maxOnset, member.note.Onset)
		sourcesSet[member.source] = struct{}{}
	}

	provenance := make([]string, 0, len(sourcesSet))
	for source := range sourcesSet {
		provenance = append(provenance, source)
	}
	sort.Strings(provenance)

	meanConf := confSum / float64(len(members))
	confidence := meanConf
	if len(provenance) == 1 {
		if opts.TotalSources > 1 {
			confidence = meanConf * opts.SingletonScale
		}
	} else {
		support := float64(len(provenance)) / float64(opts.TotalSources)
		tightness := 1 - clamp01((maxOnset-minOnset)/opts.OnsetWindow)
		factor := support * (0.75 + 0.25*tightness)
		// Corroboration never scores below a singleton: in sessions with
		// many sources a loose two-way match would otherwise undercut the
		// singleton scale.
		if factor < opts.SingletonScale {
			factor = opts.SingletonScale
		}
		confidence = meanConf * factor
	}

	pitch := group[members[0]].note.Pitch
	return notes.NoteEvent{
		Pitch:      pitch,
		Onset:      onsetSum / weightSum,
		Offset:     offsetSum / weightSum,
		Velocity:   clampVelocity(int(math.Round(velocity / weightSum))),
		Confidence: clamp01(confidence),
		Provenance: provenance,
	}, len(provenance)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func clampVelocity(v int) int {
	switch {
	case v < notes.MinVelocity:
		return notes.MinVelocity
	case v > notes.MaxVelocity:
		return notes.MaxVelocity
	default:
		return v
	}
}
