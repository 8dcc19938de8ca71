// Package audiofeat loads and caches optional audio feature series.
//
// Sessions may carry a features.json file produced by the external audio
// analysis step: a fingerprint, a frame rate, and per-frame onset strength
// and resonance envelopes. Tempo estimation and pedal inference consume
// these when present and fall back to note-derived heuristics when absent,
// so a missing or malformed feature file never fails a job.
//
// # Storage
//
// The cache stores one JSON file per fingerprint under a configurable
// directory. A set is written once, when a session referencing the recording
// is first loaded, and is immutable afterwards: concurrent jobs for the same
// recording share a single in-memory FeatureSet pointer.
//
// # Entry Points
//
// Load: read a session's features.json (missing file reports ok=false, not
// an error). Cache.Lookup/Store: fingerprint-keyed shared access.
// FeatureSet.ResonanceAt/OnsetStrengthAt: frame-rate-aware sampling.
package audiofeat
