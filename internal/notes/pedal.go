package notes

import (
	"fmt"
	"sort"
	"strings"
)

// PedalKind identifies which pedal an interval describes.
type PedalKind string

const (
	PedalSustain   PedalKind = "sustain"
	PedalSostenuto PedalKind = "sostenuto"
	PedalSoft      PedalKind = "soft"
)

var pedalKinds = map[PedalKind]struct{}{
	PedalSustain:   {},
	PedalSostenuto: {},
	PedalSoft:      {},
}

// ParsePedalKind converts a string into a known pedal kind.
func ParsePedalKind(value string) (PedalKind, bool) {
	kind := PedalKind(strings.ToLower(strings.TrimSpace(value)))
	_, ok := pedalKinds[kind]
	return kind, ok
}

// PedalEvent is one inferred pedal engagement interval. Intervals of the same
// kind never overlap once the inference stage has coalesced its output.
type PedalEvent struct {
	Kind       PedalKind `json:"kind"`
	Start      float64   `json:"start_s"`
	End        float64   `json:"end_s"`
	Confidence float64   `json:"confidence"`
}

// Duration returns the engaged length in seconds.
func (p PedalEvent) Duration() float64 {
	return p.End - p.Start
}

// Validate reports the first structural violation, if any.
func (p PedalEvent) Validate() error {
	if _, ok := pedalKinds[p.Kind]; !ok {
		return fmt.Errorf("unknown pedal kind %q", p.Kind)
	}
	if p.End <= p.Start {
		return fmt.Errorf("end %.4fs not after start %.4fs", p.End, p.Start)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %.4f outside [0, 1]", p.Confidence)
	}
	return nil
}

// SortPedals orders intervals by start time, then kind.
func SortPedals(events []PedalEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Start != events[j].Start {
			return events[i].Start < events[j].Start
		}
		return events[i].Kind < events[j].Kind
	})
}
