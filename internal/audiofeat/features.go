package audiofeat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FeaturesFileName is the optional per-session audio feature file produced by
// the external extraction step.
const FeaturesFileName = "features.json"

// FeatureSet holds extracted audio features for one recording. Sets are
// immutable once stored in the cache; concurrent jobs share the same pointer.
type FeatureSet struct {
	Fingerprint   string    `json:"fingerprint"`
	FrameRate     float64   `json:"frame_rate_hz"`
	OnsetStrength []float64 `json:"onset_strength,omitempty"`
	Resonance     []float64 `json:"resonance,omitempty"`
}

// HasResonance reports whether the set carries a usable resonance envelope.
func (f *FeatureSet) HasResonance() bool {
	return f != nil && f.FrameRate > 0 && len(f.Resonance) > 0
}

// HasOnsetStrength reports whether the set carries an onset strength series.
func (f *FeatureSet) HasOnsetStrength() bool {
	return f != nil && f.FrameRate > 0 && len(f.OnsetStrength) > 0
}

// Duration returns the covered time span in seconds.
func (f *FeatureSet) Duration() float64 {
	if f == nil || f.FrameRate <= 0 {
		return 0
	}
	frames := len(f.Resonance)
	if len(f.OnsetStrength) > frames {
		frames = len(f.OnsetStrength)
	}
	return float64(frames) / f.FrameRate
}

// ResonanceAt samples the resonance envelope at time t. Times outside the
// covered span return the nearest frame value; an empty envelope returns 0.
func (f *FeatureSet) ResonanceAt(t float64) float64 {
	return sampleAt(f, f.resonanceOrNil(), t)
}

// OnsetStrengthAt samples the onset strength series at time t.
func (f *FeatureSet) OnsetStrengthAt(t float64) float64 {
	return sampleAt(f, f.onsetOrNil(), t)
}

func (f *FeatureSet) resonanceOrNil() []float64 {
	if f == nil {
		return nil
	}
	return f.Resonance
}

func (f *FeatureSet) onsetOrNil() []float64 {
	if f == nil {
		return nil
	}
	return f.OnsetStrength
}

func sampleAt(f *FeatureSet, series []float64, t float64) float64 {
	if f == nil || f.FrameRate <= 0 || len(series) == 0 {
		return 0
	}
	idx := int(t * f.FrameRate)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(series) {
		idx = len(series) - 1
	}
	return series[idx]
}

// Validate reports the first structural violation, if any.
func (f *FeatureSet) Validate() error {
	if f == nil {
		return errors.New("nil feature set")
	}
	if len(f.OnsetStrength) > 0 || len(f.Resonance) > 0 {
		if f.FrameRate <= 0 {
			return fmt.Errorf("frame rate %.2f must be positive when series are present", f.FrameRate)
		}
	}
	for i, v := range f.Resonance {
		if v < 0 {
			return fmt.Errorf("resonance[%d] = %.4f is negative", i, v)
		}
	}
	return nil
}

// Fingerprint computes the hex SHA-256 digest of data. Used both for feature
// payloads and for session identity when no feature file exists.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FingerprintFiles digests the named files, in order, into one session
// fingerprint. Each file's base name participates so renaming a stream
// changes the identity even when its payload does not.
func FingerprintFiles(paths ...string) (string, error) {
	h := sha256.New()
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", filepath.Base(path), err)
		}
		h.Write([]byte(filepath.Base(path)))
		h.Write([]byte{0})
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load reads a feature file. A missing file is not an error: ok reports
// whether the file existed. Malformed payloads return an error so the caller
// can record a diagnostic and continue without features.
func Load(path string) (*FeatureSet, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read features: %w", err)
	}
	var set FeatureSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, true, fmt.Errorf("parse features: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid features: %w", err)
	}
	if strings.TrimSpace(set.Fingerprint) == "" {
		set.Fingerprint = Fingerprint(data)
	}
	return &set, true, nil
}
