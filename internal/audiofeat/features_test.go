package audiofeat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesFeatureFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FeaturesFileName)
	payload := `{
  "fingerprint": "fp-etude",
  "frame_rate_hz": 100,
  "onset_strength": [0.1, 0.9, 0.2],
  "resonance": [0.5, 0.6, 0.4, 0.3]
}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	set, ok, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatal("expected ok for existing file")
	}
	if set.Fingerprint != "fp-etude" {
		t.Errorf("fingerprint mismatch: got %q", set.Fingerprint)
	}
	if !set.HasResonance() || !set.HasOnsetStrength() {
		t.Errorf("expected both series present: %+v", set)
	}
	if set.Duration() != 0.04 {
		t.Errorf("duration mismatch: got %v", set.Duration())
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	set, ok, err := Load(filepath.Join(t.TempDir(), FeaturesFileName))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok || set != nil {
		t.Fatalf("expected miss, got ok=%v set=%+v", ok, set)
	}
}

func TestLoadMalformedFileReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FeaturesFileName)
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	_, ok, err := Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !ok {
		t.Error("expected ok=true so callers can report the file exists but is unusable")
	}
}

func TestLoadRejectsSeriesWithoutFrameRate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FeaturesFileName)
	if err := os.WriteFile(path, []byte(`{"resonance": [0.5]}`), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if _, _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing frame rate")
	}
}

func TestLoadComputesFingerprintWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FeaturesFileName)
	payload := []byte(`{"frame_rate_hz": 50, "resonance": [0.1, 0.2]}`)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	set, _, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if set.Fingerprint != Fingerprint(payload) {
		t.Errorf("expected content digest fingerprint, got %q", set.Fingerprint)
	}
	if len(set.Fingerprint) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(set.Fingerprint))
	}
}

func TestResonanceAtClampsToSpan(t *testing.T) {
	set := &FeatureSet{FrameRate: 10, Resonance: []float64{0.1, 0.2, 0.3, 0.4}}

	tests := []struct {
		name string
		t    float64
		want float64
	}{
		{"before start", -1.0, 0.1},
		{"first frame", 0.0, 0.1},
		{"mid series", 0.25, 0.3},
		{"last frame", 0.3, 0.4},
		{"past end", 5.0, 0.4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := set.ResonanceAt(tc.t); got != tc.want {
				t.Errorf("ResonanceAt(%v) = %v, want %v", tc.t, got, tc.want)
			}
		})
	}
}

func TestSamplingOnNilSetReturnsZero(t *testing.T) {
	var set *FeatureSet
	if set.ResonanceAt(1.0) != 0 || set.OnsetStrengthAt(1.0) != 0 {
		t.Error("expected zero samples from nil set")
	}
	if set.HasResonance() || set.HasOnsetStrength() {
		t.Error("expected nil set to report no series")
	}
	if set.Duration() != 0 {
		t.Error("expected zero duration from nil set")
	}
}
