// Package session defines the structured payload shared between workflow stages.
//
// The Envelope type captures source summaries, the audio feature fingerprint,
// per-stage artifact paths, and per-stage metrics as items progress through
// loading, merging, tempo estimation, quantization, pedal inference, hand
// splitting, and assembly. Stages read and extend the envelope rather than
// maintaining separate state, so it becomes the single source of truth for
// what a session contains and what has been produced from it.
//
// # Key Types
//
// Envelope: root container with Fingerprint, Sources, Artifacts, Metrics,
// Agreement, and Diagnostics. Persisted as JSON in queue.envelope_data.
//
// SourceSummary: one transcription stream (model, path, format, counts).
//
// Artifacts: realized file paths per stage inside the item's staging
// directory.
//
// Metrics: typed per-stage outcome data rendered by "renote show" and
// "renote report".
//
// AgreementReport: pairwise inter-source agreement computed after merging.
//
// # Lifecycle
//
// Loading populates Fingerprint, Sources, and Artifacts.Streams. Merging adds
// Artifacts.Merged, Metrics.Merge, and the Agreement report. Each later stage
// adds its artifact path and metrics; assembly records the final score and
// preview paths. Diagnostics accumulate across every stage and surface in the
// assembled document.
//
// # Entry Points
//
// Parse: load envelope from JSON (returns empty envelope on blank input).
// Envelope.Encode: serialize envelope to JSON for persistence.
// Envelope.UpsertSource/SourceByModel: record and locate source summaries.
// WriteArtifact/ReadArtifact: persist and reload stage interchange documents.
package session
