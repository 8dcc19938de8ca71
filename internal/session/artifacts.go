package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"renote/internal/notes"
)

// Artifact file names inside an item's staging directory. Stages write these
// via WriteArtifact and record the absolute path in Envelope.Artifacts.
const (
	StreamsFile   = "streams.json"
	MergedFile    = "merged.json"
	TempoFile     = "tempo.json"
	QuantizedFile = "quantized.json"
	PedalFile     = "pedal.json"
	HandsFile     = "hands.json"
	ScoreFile     = "score.json"
	PreviewFile   = "preview.mid"
)

// Stream is one model's sanitized note stream staged for merging. Notes are
// normalized into the internal event shape with provenance set to the source
// model, so the merger never consults the raw wrapper output again.
type Stream struct {
	Model  string             `json:"model"`
	Notes  []notes.NoteEvent  `json:"notes"`
	Pedals []notes.PedalEvent `json:"pedals,omitempty"`
	Tempo  []notes.TempoPoint `json:"tempo_curve,omitempty"`
}

// StreamsDocument is the load stage artifact consumed by the merger.
type StreamsDocument struct {
	Title   string   `json:"title,omitempty"`
	Streams []Stream `json:"streams"`
}

// MergedDocument is the consensus note list produced by the merge stage.
type MergedDocument struct {
	Notes []notes.NoteEvent `json:"notes"`
}

// QuantizedDocument is the rhythmic projection produced by quantization.
type QuantizedDocument struct {
	Notes []notes.QuantizedNote `json:"notes"`
}

// PedalDocument records inferred pedal intervals and which inference path
// produced them ("resonance" or "overlap").
type PedalDocument struct {
	Source string             `json:"source"`
	Events []notes.PedalEvent `json:"events"`
}

// HandsDocument records the staff assignment per note.
type HandsDocument struct {
	Assignments []notes.HandAssignment `json:"assignments"`
}

// WriteArtifact marshals payload as indented JSON and replaces path
// atomically, creating parent directories as needed.
func WriteArtifact(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encode artifact: %w", err)
	}
	return WriteRawArtifact(path, append(data, '\n'))
}

// WriteRawArtifact replaces path atomically with the given bytes. The
// preview render and other non-JSON artifacts go through here.
func WriteRawArtifact(path string, data []byte) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("session: artifact path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: ensure artifact dir: %w", err)
	}
	tmp := filepath.Join(dir, fmt.Sprintf(".renote-artifact-%d.tmp", time.Now().UnixNano()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session: write artifact temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("session: rename artifact: %w", err)
	}
	return nil
}

// ReadArtifact loads a JSON artifact written by an earlier stage.
func ReadArtifact(path string, target any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("session: artifact path is empty")
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("session: read artifact: %w", err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("session: decode artifact %s: %w", filepath.Base(path), err)
	}
	return nil
}
