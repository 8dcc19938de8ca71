package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file location configuration.
type Paths struct {
	StagingDir      string `toml:"staging_dir"`
	LibraryDir      string `toml:"library_dir"`
	LogDir          string `toml:"log_dir"`
	WatchDir        string `toml:"watch_dir"`
	FeatureCacheDir string `toml:"feature_cache_dir"`
	DBPath          string `toml:"db_path"`
	LockPath        string `toml:"lock_path"`
}

// Merge contains thresholds for fusing note streams from multiple
// transcription models into a single consensus stream.
type Merge struct {
	OnsetWindowMS            int     `toml:"onset_window_ms"`
	SingletonConfidenceScale float64 `toml:"singleton_confidence_scale"`
}

// Tempo contains bounds and penalties for tempo curve estimation.
type Tempo struct {
	MinBPM           float64 `toml:"min_bpm"`
	MaxBPM           float64 `toml:"max_bpm"`
	FallbackBPM      float64 `toml:"fallback_bpm"`
	SegmentPenalty   float64 `toml:"segment_penalty"`
	MaxRampBPMPerSec float64 `toml:"max_ramp_bpm_per_s"`
}

// Quantize contains the grid candidates and scoring weights for snapping
// note times to metrical positions.
type Quantize struct {
	Subdivisions     []int   `toml:"subdivisions"`
	ComplexityWeight float64 `toml:"complexity_weight"`
	TieEpsilonMS     float64 `toml:"tie_epsilon_ms"`
	MinDurationBeats float64 `toml:"min_duration_beats"`
	BeatsPerMeasure  int     `toml:"beats_per_measure"`
}

// Pedal contains thresholds for inferring pedal events from audio features
// or, when features are absent, from note overlap.
type Pedal struct {
	MergeGapMS     int     `toml:"merge_gap_ms"`
	HysteresisMS   int     `toml:"hysteresis_ms"`
	HoldThresholdS float64 `toml:"hold_threshold_s"`
	ResonanceOn    float64 `toml:"resonance_on"`
	ResonanceOff   float64 `toml:"resonance_off"`
}

// Hands contains penalties for assigning notes to treble and bass staves.
type Hands struct {
	SplitPoint       int     `toml:"split_point"`
	MaxSpanSemitones int     `toml:"max_span_semitones"`
	SwitchPenalty    float64 `toml:"switch_penalty"`
	CrossingPenalty  float64 `toml:"crossing_penalty"`
	RangeWeight      float64 `toml:"range_weight"`
	RestResetS       float64 `toml:"rest_reset_s"`
}

// Workflow contains configuration for daemon timing and intervals. All
// values are seconds.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
	WatchPollInterval  int `toml:"watch_poll_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Output controls which score artifacts the assembler produces.
type Output struct {
	RenderMIDI     bool `toml:"render_midi"`
	MIDIProgram    int  `toml:"midi_program"`
	PublishLibrary bool `toml:"publish_library"`
}

// Config encapsulates all configuration values for Renote.
//
// Configuration sections by subsystem:
//   - Paths: staging, library, watch, and cache directories
//   - Merge: ensemble fusion thresholds
//   - Tempo: tempo curve estimation bounds
//   - Quantize: metrical grid selection
//   - Pedal: pedal inference thresholds
//   - Hands: staff assignment penalties
//   - Workflow: daemon polling intervals and timeouts
//   - Logging: log format, level, and retention
//   - Output: score artifact toggles
type Config struct {
	Paths    Paths    `toml:"paths"`
	Merge    Merge    `toml:"merge"`
	Tempo    Tempo    `toml:"tempo"`
	Quantize Quantize `toml:"quantize"`
	Pedal    Pedal    `toml:"pedal"`
	Hands    Hands    `toml:"hands"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
	Output   Output   `toml:"output"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/renote/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/renote/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("renote.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.FeatureCacheDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		// Best-effort to avoid failing config load when storage is offline.
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	if strings.TrimSpace(c.Paths.WatchDir) != "" {
		if err := os.MkdirAll(c.Paths.WatchDir, 0o755); err != nil {
			return fmt.Errorf("create watch directory %q: %w", c.Paths.WatchDir, err)
		}
	}
	return nil
}

// DatabasePath returns the queue database location, derived from the staging
// directory unless paths.db_path overrides it.
func (c *Config) DatabasePath() string {
	if strings.TrimSpace(c.Paths.DBPath) != "" {
		return c.Paths.DBPath
	}
	return filepath.Join(c.Paths.StagingDir, "queue.db")
}

// DaemonLockPath returns the lock file location guarding single-daemon
// operation, derived from the staging directory unless paths.lock_path
// overrides it.
func (c *Config) DaemonLockPath() string {
	if strings.TrimSpace(c.Paths.LockPath) != "" {
		return c.Paths.LockPath
	}
	return filepath.Join(c.Paths.StagingDir, "renote.lock")
}

// OnsetWindow returns the merge onset window in seconds.
func (c *Config) OnsetWindow() float64 {
	return float64(c.Merge.OnsetWindowMS) / 1000.0
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultFeatureCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "renote", "features")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/renote/features"
	}
	return filepath.Join(home, ".cache", "renote", "features")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
