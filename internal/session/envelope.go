package session

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"renote/internal/notes"
)

// Envelope captures the structured payload shared between the load, merge,
// tempo, quantize, pedal, hand-split, and assemble stages.
type Envelope struct {
	Fingerprint string             `json:"fingerprint,omitempty"`
	Sources     []SourceSummary    `json:"sources,omitempty"`
	Artifacts   Artifacts          `json:"artifacts,omitempty"`
	Metrics     Metrics            `json:"metrics,omitempty"`
	Agreement   *AgreementReport   `json:"agreement,omitempty"`
	Diagnostics []notes.Diagnostic `json:"diagnostics,omitempty"`
}

// SourceSummary records one transcription stream discovered during loading.
type SourceSummary struct {
	Model          string  `json:"model"`
	Path           string  `json:"path"`
	Format         string  `json:"format"`
	Notes          int     `json:"notes"`
	Pedals         int     `json:"pedals,omitempty"`
	Dropped        int     `json:"dropped,omitempty"`
	MeanConfidence float64 `json:"mean_confidence,omitempty"`
}

// Artifacts captures realised file paths for each stage.
type Artifacts struct {
	Streams   string `json:"streams,omitempty"`
	Merged    string `json:"merged,omitempty"`
	Tempo     string `json:"tempo,omitempty"`
	Quantized string `json:"quantized,omitempty"`
	Pedal     string `json:"pedal,omitempty"`
	Hands     string `json:"hands,omitempty"`
	Score     string `json:"score,omitempty"`
	Preview   string `json:"preview,omitempty"`
}

// Metrics carries typed per-stage outcome data for reporting.
type Metrics struct {
	Merge    *MergeMetrics    `json:"merge,omitempty"`
	Tempo    *TempoMetrics    `json:"tempo,omitempty"`
	Quantize *QuantizeMetrics `json:"quantize,omitempty"`
	Pedal    *PedalMetrics    `json:"pedal,omitempty"`
	Hands    *HandsMetrics    `json:"hands,omitempty"`
}

// MergeMetrics summarizes the ensemble fusion outcome.
type MergeMetrics struct {
	InputNotes     int     `json:"input_notes"`
	MergedNotes    int     `json:"merged_notes"`
	MatchedGroups  int     `json:"matched_groups"`
	Singletons     int     `json:"singletons"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// TempoMetrics summarizes the estimated tempo curve.
type TempoMetrics struct {
	Points    int     `json:"points"`
	Segments  int     `json:"segments"`
	MedianBPM float64 `json:"median_bpm"`
	Fallback  bool    `json:"fallback,omitempty"`
}

// QuantizeMetrics summarizes the rhythmic projection.
type QuantizeMetrics struct {
	Notes         int         `json:"notes"`
	TiedNotes     int         `json:"tied_notes"`
	ClampedNotes  int         `json:"clamped_notes,omitempty"`
	MaxResidualMS float64     `json:"max_residual_ms"`
	Subdivisions  map[int]int `json:"subdivisions,omitempty"`
}

// PedalMetrics summarizes pedal inference.
type PedalMetrics struct {
	Events    int    `json:"events"`
	Source    string `json:"source"`
	Coalesced int    `json:"coalesced,omitempty"`
}

// HandsMetrics summarizes the staff assignment.
type HandsMetrics struct {
	TrebleNotes int `json:"treble_notes"`
	BassNotes   int `json:"bass_notes"`
	Switches    int `json:"switches"`
	Crossings   int `json:"crossings"`
}

// AgreementReport captures pairwise inter-source agreement computed after
// merging. Pairs are ordered by source name; Sources mirrors the envelope's
// source list with singleton statistics.
type AgreementReport struct {
	Pairs   []AgreementPair   `json:"pairs,omitempty"`
	Sources []SourceAgreement `json:"sources,omitempty"`
}

// AgreementPair records the match fraction between two sources.
type AgreementPair struct {
	SourceA   string  `json:"source_a"`
	SourceB   string  `json:"source_b"`
	Matched   int     `json:"matched"`
	Agreement float64 `json:"agreement"`
}

// SourceAgreement records how often one source stood alone in the consensus.
type SourceAgreement struct {
	Model         string  `json:"model"`
	Notes         int     `json:"notes"`
	Singletons    int     `json:"singletons"`
	SingletonRate float64 `json:"singleton_rate"`
}

// Parse loads a session envelope from JSON, returning an empty envelope on
// blank input.
func Parse(raw string) (Envelope, error) {
	var env Envelope
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return env, nil
	}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, err
	}
	env.Sources = slices.Clone(env.Sources)
	env.Diagnostics = slices.Clone(env.Diagnostics)
	env.Agreement = env.Agreement.Clone()
	return env, nil
}

// Encode serialises the envelope to JSON.
func (e Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SourceByModel returns a pointer to the summary for the named model.
func (e *Envelope) SourceByModel(model string) *SourceSummary {
	if e == nil {
		return nil
	}
	for idx := range e.Sources {
		if strings.EqualFold(e.Sources[idx].Model, model) {
			return &e.Sources[idx]
		}
	}
	return nil
}

// UpsertSource records a source summary, replacing any prior entry for the
// same model and keeping the list sorted by model name.
func (e *Envelope) UpsertSource(src SourceSummary) {
	if e == nil {
		return
	}
	replaced := false
	for idx := range e.Sources {
		if strings.EqualFold(e.Sources[idx].Model, src.Model) {
			e.Sources[idx] = src
			replaced = true
			break
		}
	}
	if !replaced {
		e.Sources = append(e.Sources, src)
	}
	sort.SliceStable(e.Sources, func(i, j int) bool {
		return e.Sources[i].Model < e.Sources[j].Model
	})
}

// AddDiagnostics appends dropped-input records accumulated by a stage.
func (e *Envelope) AddDiagnostics(diags ...notes.Diagnostic) {
	if e == nil || len(diags) == 0 {
		return
	}
	e.Diagnostics = append(e.Diagnostics, diags...)
}

// ReplaceStageDiagnostics swaps all records owned by one stage for the given
// set. Stages call this instead of AddDiagnostics so a rerun never
// accumulates duplicates.
func (e *Envelope) ReplaceStageDiagnostics(stage string, diags ...notes.Diagnostic) {
	if e == nil {
		return
	}
	kept := e.Diagnostics[:0]
	for _, d := range e.Diagnostics {
		if !strings.EqualFold(d.Stage, stage) {
			kept = append(kept, d)
		}
	}
	e.Diagnostics = append(kept, diags...)
}

// DiagnosticsForStage filters the accumulated diagnostics by stage name.
func (e *Envelope) DiagnosticsForStage(stage string) []notes.Diagnostic {
	if e == nil {
		return nil
	}
	var out []notes.Diagnostic
	for _, d := range e.Diagnostics {
		if strings.EqualFold(d.Stage, stage) {
			out = append(out, d)
		}
	}
	return out
}

// Clone creates a deep copy of the agreement report.
func (r *AgreementReport) Clone() *AgreementReport {
	if r == nil {
		return nil
	}
	return &AgreementReport{
		Pairs:   slices.Clone(r.Pairs),
		Sources: slices.Clone(r.Sources),
	}
}
