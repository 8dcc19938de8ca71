package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"renote/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CACHE_HOME", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "renote", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Paths.LibraryDir != filepath.Join(tempHome, "scores") {
		t.Fatalf("unexpected library dir: %q", cfg.Paths.LibraryDir)
	}
	if cfg.DatabasePath() != filepath.Join(wantStaging, "queue.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.DaemonLockPath() != filepath.Join(wantStaging, "renote.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.DaemonLockPath())
	}
	if cfg.Merge.OnsetWindowMS != 40 {
		t.Fatalf("unexpected onset window: %d", cfg.Merge.OnsetWindowMS)
	}
	if got := cfg.OnsetWindow(); got != 0.04 {
		t.Fatalf("unexpected onset window seconds: %v", got)
	}
	if cfg.Tempo.FallbackBPM != 120 {
		t.Fatalf("unexpected fallback bpm: %v", cfg.Tempo.FallbackBPM)
	}
	if len(cfg.Quantize.Subdivisions) == 0 || cfg.Quantize.Subdivisions[0] != 1 {
		t.Fatalf("unexpected subdivisions: %v", cfg.Quantize.Subdivisions)
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("unexpected logging format: %q", cfg.Logging.Format)
	}
	if !cfg.Output.RenderMIDI {
		t.Fatal("expected MIDI rendering enabled by default")
	}
	if cfg.Workflow.HeartbeatTimeout <= cfg.Workflow.HeartbeatInterval {
		t.Fatalf("heartbeat defaults inverted: interval=%d timeout=%d",
			cfg.Workflow.HeartbeatInterval, cfg.Workflow.HeartbeatTimeout)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LibraryDir, cfg.Paths.LogDir, cfg.Paths.FeatureCacheDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "renote.toml")

	type payload struct {
		Paths struct {
			StagingDir string `toml:"staging_dir"`
			DBPath     string `toml:"db_path"`
		} `toml:"paths"`
		Merge struct {
			OnsetWindowMS int `toml:"onset_window_ms"`
		} `toml:"merge"`
		Hands struct {
			SplitPoint int `toml:"split_point"`
		} `toml:"hands"`
	}
	custom := payload{}
	custom.Paths.StagingDir = filepath.Join(tempDir, "work")
	custom.Paths.DBPath = filepath.Join(tempDir, "custom.db")
	custom.Merge.OnsetWindowMS = 25
	custom.Hands.SplitPoint = 62
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.StagingDir != custom.Paths.StagingDir {
		t.Fatalf("expected staging override, got %q", cfg.Paths.StagingDir)
	}
	if cfg.DatabasePath() != custom.Paths.DBPath {
		t.Fatalf("expected db path override, got %q", cfg.DatabasePath())
	}
	if cfg.Merge.OnsetWindowMS != 25 {
		t.Fatalf("expected onset window 25, got %d", cfg.Merge.OnsetWindowMS)
	}
	if cfg.Hands.SplitPoint != 62 {
		t.Fatalf("expected split point 62, got %d", cfg.Hands.SplitPoint)
	}
	if cfg.Tempo.MaxBPM != 300 {
		t.Fatalf("expected untouched sections to keep defaults, got max_bpm=%v", cfg.Tempo.MaxBPM)
	}
}

func TestNormalizeQuantizeSortsAndDedupes(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "renote.toml")
	body := "[quantize]\nsubdivisions = [8, 2, 8, 0, -3, 4]\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []int{2, 4, 8}
	if len(cfg.Quantize.Subdivisions) != len(want) {
		t.Fatalf("unexpected subdivisions: %v", cfg.Quantize.Subdivisions)
	}
	for i, sub := range want {
		if cfg.Quantize.Subdivisions[i] != sub {
			t.Fatalf("unexpected subdivisions: %v", cfg.Quantize.Subdivisions)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "onset_window_ms") {
		t.Fatalf("sample config missing merge keys: %s", contents)
	}

	// Validate it decodes
	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.StagingDir, "renote") {
		t.Fatalf("expected staging dir to mention renote, got %q", cfg.Paths.StagingDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"onset window too small", func(c *config.Config) { c.Merge.OnsetWindowMS = 2 }},
		{"onset window too large", func(c *config.Config) { c.Merge.OnsetWindowMS = 500 }},
		{"singleton scale above one", func(c *config.Config) { c.Merge.SingletonConfidenceScale = 1.5 }},
		{"max bpm below min", func(c *config.Config) { c.Tempo.MaxBPM = c.Tempo.MinBPM - 1 }},
		{"fallback outside band", func(c *config.Config) { c.Tempo.FallbackBPM = 1000 }},
		{"segment penalty zero", func(c *config.Config) { c.Tempo.SegmentPenalty = 0 }},
		{"min duration zero", func(c *config.Config) { c.Quantize.MinDurationBeats = 0 }},
		{"beats per measure zero", func(c *config.Config) { c.Quantize.BeatsPerMeasure = 0 }},
		{"resonance thresholds inverted", func(c *config.Config) {
			c.Pedal.ResonanceOn = 0.2
			c.Pedal.ResonanceOff = 0.4
		}},
		{"hold threshold zero", func(c *config.Config) { c.Pedal.HoldThresholdS = 0 }},
		{"split point off keyboard", func(c *config.Config) { c.Hands.SplitPoint = 10 }},
		{"heartbeat timeout below interval", func(c *config.Config) {
			c.Workflow.HeartbeatTimeout = c.Workflow.HeartbeatInterval
		}},
		{"queue poll zero", func(c *config.Config) { c.Workflow.QueuePollInterval = 0 }},
		{"midi program out of range", func(c *config.Config) { c.Output.MIDIProgram = 200 }},
		{"bogus stage override level", func(c *config.Config) {
			c.Logging.StageOverrides = map[string]string{"quantizing": "loud"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	valid := config.Default()
	if err := valid.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}
