package sources

import (
	"path/filepath"
	"testing"

	"renote/internal/notes"
	"renote/internal/testsupport"
)

func TestDiscoverSourcesPrefersJSON(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteJSON(t, filepath.Join(dir, "basic_pitch.json"), map[string]any{"model": "basic_pitch"})
	testsupport.WriteFile(t, filepath.Join(dir, "basic_pitch.mid"), []byte("MThd"))
	testsupport.WriteFile(t, filepath.Join(dir, "crepe_onset.mid"), []byte("MThd"))
	testsupport.WriteJSON(t, filepath.Join(dir, "features.json"), map[string]any{"frame_rate_hz": 10})
	testsupport.WriteFile(t, filepath.Join(dir, ".hidden.json"), []byte("{}"))
	testsupport.WriteFile(t, filepath.Join(dir, "notes.txt"), []byte("ignore"))

	sources, err := DiscoverSources(dir)
	if err != nil {
		t.Fatalf("DiscoverSources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d: %+v", len(sources), sources)
	}
	if sources[0].Model != "basic_pitch" || sources[0].Format != FormatJSON {
		t.Errorf("expected basic_pitch json first, got %+v", sources[0])
	}
	if sources[1].Model != "crepe_onset" || sources[1].Format != FormatSMF {
		t.Errorf("expected crepe_onset midi second, got %+v", sources[1])
	}
}

func TestDiscoverSourcesMissingDirectory(t *testing.T) {
	if _, err := DiscoverSources(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestParseJSONStreamSanitizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "basic_pitch.json")
	testsupport.WriteJSON(t, path, map[string]any{
		"model": "basic_pitch",
		"notes": []map[string]any{
			{"id": "basic_pitch_0", "pitch_midi": 60, "onset_time_s": 0.0, "offset_time_s": 0.5, "velocity": 80, "confidence": 0.9},
			{"id": "basic_pitch_1", "pitch_midi": 200, "onset_time_s": 0.1, "offset_time_s": 0.4, "velocity": 64, "confidence": 0.9},
			{"id": "basic_pitch_2", "pitch_midi": 62, "onset_time_s": 0.5, "offset_time_s": 0.5, "velocity": 64, "confidence": 0.9},
			{"id": "basic_pitch_3", "pitch_midi": 64, "onset_time_s": 0.6, "offset_time_s": 0.9},
			{"id": "basic_pitch_4", "pitch_midi": 65, "onset_time_s": 0.7, "offset_time_s": 1.1, "velocity": 250, "confidence": 1.5},
		},
		"pedals": []map[string]any{
			{"kind": "sustain", "start_s": 0.0, "end_s": 1.0, "confidence": 0.6},
			{"kind": "sustain", "start_s": 2.0, "end_s": 1.5, "confidence": 0.6},
		},
		"tempo_curve": []map[string]any{
			{"time_s": 0.0, "bpm": 118.0},
			{"time_s": 4.0, "bpm": -3.0},
		},
	})

	stream, stats, diags, err := ParseJSONStream(path, "basic_pitch")
	if err != nil {
		t.Fatalf("ParseJSONStream: %v", err)
	}
	if stream.Model != "basic_pitch" {
		t.Errorf("model = %q", stream.Model)
	}
	if stats.Seen != 5 || stats.Dropped != 2 {
		t.Errorf("stats = %+v, want Seen 5 Dropped 2", stats)
	}
	if len(stream.Notes) != 3 {
		t.Fatalf("expected 3 kept notes, got %d", len(stream.Notes))
	}

	byID := make(map[string]notes.NoteEvent)
	for _, n := range stream.Notes {
		byID[n.ID] = n
		if err := n.Validate(); err != nil {
			t.Errorf("kept note %s invalid: %v", n.ID, err)
		}
		if len(n.Provenance) != 1 || n.Provenance[0] != "basic_pitch" {
			t.Errorf("note %s provenance = %v", n.ID, n.Provenance)
		}
	}
	if _, ok := byID["basic_pitch_1"]; ok {
		t.Error("out-of-range pitch should be dropped")
	}
	if _, ok := byID["basic_pitch_2"]; ok {
		t.Error("zero-duration note should be dropped")
	}
	if got := byID["basic_pitch_3"]; got.Velocity != notes.DefaultVelocity {
		t.Errorf("missing velocity should default to %d, got %d", notes.DefaultVelocity, got.Velocity)
	}
	if got := byID["basic_pitch_3"]; got.Confidence != 0.5 {
		t.Errorf("missing confidence should default to 0.5, got %.2f", got.Confidence)
	}
	if got := byID["basic_pitch_4"]; got.Velocity != notes.MaxVelocity || got.Confidence != 1 {
		t.Errorf("out-of-range fields should clamp, got velocity %d confidence %.2f", got.Velocity, got.Confidence)
	}

	if len(stream.Pedals) != 1 {
		t.Errorf("expected 1 kept pedal, got %d", len(stream.Pedals))
	}
	if len(stream.Tempo) != 1 || stream.Tempo[0].BPM != 118 {
		t.Errorf("expected 1 kept tempo point at 118 bpm, got %+v", stream.Tempo)
	}
	if len(diags) == 0 {
		t.Error("expected sanitizer diagnostics")
	}
	for _, d := range diags {
		if d.Stage != "load" || d.Source != "basic_pitch" {
			t.Errorf("diagnostic missing stage/source: %+v", d)
		}
	}
}

func TestParseJSONStreamModelFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "piano_transformer.json")
	testsupport.WriteJSON(t, path, map[string]any{
		"notes": []map[string]any{
			{"pitch_midi": 60, "onset_time_s": 0.0, "offset_time_s": 0.25},
		},
	})

	stream, _, _, err := ParseJSONStream(path, "Piano_Transformer")
	if err != nil {
		t.Fatalf("ParseJSONStream: %v", err)
	}
	if stream.Model != "piano_transformer" {
		t.Errorf("model fallback = %q, want piano_transformer", stream.Model)
	}
	if len(stream.Notes) != 1 || stream.Notes[0].ID != "piano_transformer_0" {
		t.Errorf("expected generated note id, got %+v", stream.Notes)
	}
}

func TestParseJSONStreamRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	testsupport.WriteFile(t, path, []byte("{not json"))

	if _, _, _, err := ParseJSONStream(path, "broken"); err == nil {
		t.Fatal("expected decode error")
	}
}
