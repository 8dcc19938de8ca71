package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"renote/internal/audiofeat"
	"renote/internal/notes"
	"renote/internal/session"
)

// defaultConfidence is substituted when a source does not score its notes.
// Matches the wrapper-side default so JSON and re-ingested values agree.
const defaultConfidence = 0.5

// SourceFile describes one discovered transcription stream input.
type SourceFile struct {
	Model  string
	Path   string
	Format string
}

// Stream input formats.
const (
	FormatJSON = "json"
	FormatSMF  = "midi"
)

// DiscoverSources scans a session directory for per-model stream files.
// A `<model>.json` wrapper output is preferred; `<model>.mid` is used only
// when no JSON exists for that model. The feature file is never a source.
func DiscoverSources(dir string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	found := make(map[string]SourceFile)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		if strings.EqualFold(name, audiofeat.FeaturesFileName) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		model := normalizeModel(strings.TrimSuffix(name, filepath.Ext(name)))
		if model == "" {
			continue
		}
		switch ext {
		case ".json":
			found[model] = SourceFile{Model: model, Path: filepath.Join(dir, name), Format: FormatJSON}
		case ".mid", ".midi":
			if existing, ok := found[model]; ok && existing.Format == FormatJSON {
				continue
			}
			found[model] = SourceFile{Model: model, Path: filepath.Join(dir, name), Format: FormatSMF}
		}
	}

	sources := make([]SourceFile, 0, len(found))
	for _, src := range found {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Model < sources[j].Model })
	return sources, nil
}

func normalizeModel(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// wireNote mirrors the wrapper JSON note shape.
type wireNote struct {
	ID         string   `json:"id"`
	Pitch      int      `json:"pitch_midi"`
	Onset      float64  `json:"onset_time_s"`
	Offset     float64  `json:"offset_time_s"`
	Velocity   int      `json:"velocity"`
	Confidence *float64 `json:"confidence"`
	Provenance []string `json:"model_provenance"`
}

// wireStream mirrors the wrapper JSON document shape.
type wireStream struct {
	Model      string             `json:"model"`
	Notes      []wireNote         `json:"notes"`
	Pedals     []notes.PedalEvent `json:"pedals"`
	TempoCurve []notes.TempoPoint `json:"tempo_curve"`
	Metadata   map[string]any     `json:"metadata"`
}

// ParseStats counts sanitizer outcomes for one stream.
type ParseStats struct {
	Seen    int
	Dropped int
}

// ParseJSONStream reads one wrapper output file and normalizes it into a
// sanitized session stream. Malformed individual notes and pedals are dropped
// with diagnostics; only an unreadable or undecodable file is an error.
func ParseJSONStream(path, fallbackModel string) (session.Stream, ParseStats, []notes.Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Stream{}, ParseStats{}, nil, fmt.Errorf("read stream: %w", err)
	}
	var wire wireStream
	if err := json.Unmarshal(data, &wire); err != nil {
		return session.Stream{}, ParseStats{}, nil, fmt.Errorf("decode stream %s: %w", filepath.Base(path), err)
	}

	model := normalizeModel(wire.Model)
	if model == "" {
		model = normalizeModel(fallbackModel)
	}

	stream := session.Stream{Model: model}
	stats := ParseStats{Seen: len(wire.Notes)}
	var diags []notes.Diagnostic
	for idx, wn := range wire.Notes {
		event, drop, noteDiags := sanitizeNote(model, idx, wn)
		diags = append(diags, noteDiags...)
		if drop {
			stats.Dropped++
			continue
		}
		stream.Notes = append(stream.Notes, event)
	}
	notes.SortEvents(stream.Notes)

	for idx, pedal := range wire.Pedals {
		if pedal.Confidence == 0 {
			pedal.Confidence = defaultConfidence
		}
		if err := pedal.Validate(); err != nil {
			diags = append(diags, notes.Diagnostic{
				Stage:   "load",
				Source:  model,
				NoteRef: fmt.Sprintf("pedal[%d]", idx),
				Message: err.Error(),
			})
			continue
		}
		stream.Pedals = append(stream.Pedals, pedal)
	}
	notes.SortPedals(stream.Pedals)

	for idx, point := range wire.TempoCurve {
		if point.BPM <= 0 {
			diags = append(diags, notes.Diagnostic{
				Stage:   "load",
				Source:  model,
				NoteRef: fmt.Sprintf("tempo[%d]", idx),
				Message: fmt.Sprintf("tempo point bpm %.2f must be positive", point.BPM),
			})
			continue
		}
		stream.Tempo = append(stream.Tempo, point)
	}

	return stream, stats, diags, nil
}

// sanitizeNote applies the load-stage failure rules: notes with a
// non-positive duration or an out-of-range pitch are dropped, velocity and
// confidence are defaulted or clamped into range.
func sanitizeNote(model string, idx int, wn wireNote) (notes.NoteEvent, bool, []notes.Diagnostic) {
	ref := strings.TrimSpace(wn.ID)
	if ref == "" {
		ref = fmt.Sprintf("%s_%d", model, idx)
	}

	var diags []notes.Diagnostic
	drop := func(message string) (notes.NoteEvent, bool, []notes.Diagnostic) {
		diags = append(diags, notes.Diagnostic{Stage: "load", Source: model, NoteRef: ref, Message: message})
		return notes.NoteEvent{}, true, diags
	}

	if wn.Pitch < notes.MinPitch || wn.Pitch > notes.MaxPitch {
		return drop(fmt.Sprintf("pitch %d outside MIDI range", wn.Pitch))
	}
	if wn.Offset <= wn.Onset {
		return drop(fmt.Sprintf("offset %.4fs not after onset %.4fs", wn.Offset, wn.Onset))
	}
	if wn.Onset < 0 {
		return drop(fmt.Sprintf("onset %.4fs is negative", wn.Onset))
	}

	velocity := wn.Velocity
	switch {
	case velocity <= 0:
		velocity = notes.DefaultVelocity
	case velocity > notes.MaxVelocity:
		diags = append(diags, notes.Diagnostic{
			Stage:   "load",
			Source:  model,
			NoteRef: ref,
			Message: fmt.Sprintf("velocity %d clamped to %d", velocity, notes.MaxVelocity),
		})
		velocity = notes.MaxVelocity
	}

	confidence := defaultConfidence
	if wn.Confidence != nil {
		confidence = *wn.Confidence
		switch {
		case confidence < 0:
			diags = append(diags, notes.Diagnostic{
				Stage:   "load",
				Source:  model,
				NoteRef: ref,
				Message: fmt.Sprintf("confidence %.4f clamped to 0", confidence),
			})
			confidence = 0
		case confidence > 1:
			diags = append(diags, notes.Diagnostic{
				Stage:   "load",
				Source:  model,
				NoteRef: ref,
				Message: fmt.Sprintf("confidence %.4f clamped to 1", confidence),
			})
			confidence = 1
		}
	}

	return notes.NoteEvent{
		ID:         ref,
		Pitch:      wn.Pitch,
		Onset:      wn.Onset,
		Offset:     wn.Offset,
		Velocity:   velocity,
		Confidence: confidence,
		Provenance: []string{model},
	}, false, diags
}
