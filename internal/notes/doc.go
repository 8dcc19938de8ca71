// Package notes defines the shared data model flowing through the fusion
// pipeline: consensus note events, pedal intervals, tempo curves, quantized
// projections, hand assignments, and the diagnostics that record dropped or
// corrected input.
//
// Values here are plain records with explicit fields. A NoteEvent is immutable
// once the merger produces it; later stages build projections (QuantizedNote,
// HandAssignment) that reference the event by ID rather than mutating it, so a
// rerun replaces artifacts wholesale instead of editing them in place.
//
// Keep this package free of algorithm code and configuration; it is imported
// by every stage and by the artifact serialization layer.
package notes
