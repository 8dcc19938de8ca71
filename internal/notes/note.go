package notes

import (
	"fmt"
	"sort"
	"strings"
)

// MIDI pitch and velocity bounds accepted from upstream sources.
const (
	MinPitch    = 0
	MaxPitch    = 127
	MinVelocity = 0
	MaxVelocity = 127
)

// DefaultVelocity is substituted when a source does not estimate dynamics.
const DefaultVelocity = 64

// NoteEvent is one consensus note produced by the ensemble merger. Events are
// immutable once created; later stages derive projections that reference the
// event by ID instead of mutating it.
type NoteEvent struct {
	ID         string   `json:"id"`
	Pitch      int      `json:"pitch"`
	Onset      float64  `json:"onset_s"`
	Offset     float64  `json:"offset_s"`
	Velocity   int      `json:"velocity"`
	Confidence float64  `json:"confidence"`
	Provenance []string `json:"provenance"`
}

// Duration returns the sounded length in seconds.
func (n NoteEvent) Duration() float64 {
	return n.Offset - n.Onset
}

// Validate reports the first structural violation, if any.
func (n NoteEvent) Validate() error {
	if n.Pitch < MinPitch || n.Pitch > MaxPitch {
		return fmt.Errorf("pitch %d outside MIDI range %d-%d", n.Pitch, MinPitch, MaxPitch)
	}
	if n.Offset <= n.Onset {
		return fmt.Errorf("offset %.4fs not after onset %.4fs", n.Offset, n.Onset)
	}
	if n.Velocity < MinVelocity || n.Velocity > MaxVelocity {
		return fmt.Errorf("velocity %d outside range %d-%d", n.Velocity, MinVelocity, MaxVelocity)
	}
	if n.Confidence < 0 || n.Confidence > 1 {
		return fmt.Errorf("confidence %.4f outside [0, 1]", n.Confidence)
	}
	return nil
}

// HasSource reports whether the named source contributed to this event.
func (n NoteEvent) HasSource(source string) bool {
	for _, s := range n.Provenance {
		if strings.EqualFold(s, source) {
			return true
		}
	}
	return false
}

// SortEvents orders events by onset, then pitch, then ID. The ordering is
// total so identical inputs always serialize identically.
func SortEvents(events []NoteEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Onset != events[j].Onset {
			return events[i].Onset < events[j].Onset
		}
		if events[i].Pitch != events[j].Pitch {
			return events[i].Pitch < events[j].Pitch
		}
		return events[i].ID < events[j].ID
	})
}
