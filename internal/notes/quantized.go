package notes

import "fmt"

// QuantizedNote is the rhythmic projection of one NoteEvent. It references the
// source event by ID; the event itself is kept for confidence and provenance
// display and is never rewritten.
type QuantizedNote struct {
	NoteID   string   `json:"note_id"`
	Measure  int      `json:"measure"`
	Beat     Rational `json:"beat"`
	Duration Rational `json:"duration"`
	Tie      bool     `json:"tie"`
	Residual float64  `json:"residual_s"`
}

// Validate reports the first structural violation, if any.
func (q QuantizedNote) Validate() error {
	if q.NoteID == "" {
		return fmt.Errorf("missing note reference")
	}
	if q.Measure < 0 {
		return fmt.Errorf("negative measure %d", q.Measure)
	}
	if q.Beat.Cmp(Rational{Num: 0, Den: 1}) < 0 {
		return fmt.Errorf("negative beat position %s", q.Beat)
	}
	if q.Duration.Cmp(Rational{Num: 0, Den: 1}) <= 0 {
		return fmt.Errorf("non-positive duration %s", q.Duration)
	}
	return nil
}

// Staff names the target staff for a hand assignment.
type Staff string

const (
	StaffTreble Staff = "treble"
	StaffBass   Staff = "bass"
)

// HandAssignment maps one note to a staff along with the realized dynamic
// programming transition cost, kept for debugging and visualization.
type HandAssignment struct {
	NoteID string  `json:"note_id"`
	Staff  Staff   `json:"staff"`
	Cost   float64 `json:"cost"`
}
