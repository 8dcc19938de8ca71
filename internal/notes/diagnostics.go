package notes

import "fmt"

// Diagnostic records an input that was dropped or corrected instead of
// failing the run. Diagnostics accumulate across stages and surface in the
// assembled document.
type Diagnostic struct {
	Stage   string `json:"stage"`
	Source  string `json:"source,omitempty"`
	NoteRef string `json:"note_ref,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	switch {
	case d.Source != "" && d.NoteRef != "":
		return fmt.Sprintf("%s: %s %s: %s", d.Stage, d.Source, d.NoteRef, d.Message)
	case d.Source != "":
		return fmt.Sprintf("%s: %s: %s", d.Stage, d.Source, d.Message)
	case d.NoteRef != "":
		return fmt.Sprintf("%s: %s: %s", d.Stage, d.NoteRef, d.Message)
	default:
		return fmt.Sprintf("%s: %s", d.Stage, d.Message)
	}
}
