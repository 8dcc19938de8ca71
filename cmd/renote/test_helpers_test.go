package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"renote/internal/audiofeat"
	"renote/internal/config"
	"renote/internal/queue"
	"renote/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	configPath string
	baseDir    string
}

// setupCLITestEnv builds an isolated config rooted in temp dirs, persists it
// as a TOML file, and opens the queue store the assertions read from. The
// store stays open across runCLI calls; SQLite serializes the writers.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	cfg := testsupport.NewConfig(t)

	configPath := filepath.Join(homeDir, ".config", "renote", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: configPath,
		baseDir:    base,
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cliArgs := args
	if configPath != "" {
		cliArgs = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(cliArgs)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func sessionNote(id string, pitch int, onset, offset float64, velocity int) map[string]any {
	return map[string]any{
		"id":            id,
		"pitch_midi":    pitch,
		"onset_time_s":  onset,
		"offset_time_s": offset,
		"velocity":      velocity,
		"confidence":    0.9,
	}
}

// writeSessionFixture lays out a two-source session the full pipeline
// completes on: a quarter-note melody over held bass notes at 120 BPM plus a
// resonance curve for pedal inference.
func writeSessionFixture(t *testing.T, dir string) {
	t.Helper()

	melody := func(prefix string, jitter float64) []map[string]any {
		return []map[string]any{
			sessionNote(prefix+"_0", 72, 0.00+jitter, 0.45+jitter, 80),
			sessionNote(prefix+"_1", 74, 0.50+jitter, 0.95+jitter, 78),
			sessionNote(prefix+"_2", 76, 1.00+jitter, 1.45+jitter, 82),
			sessionNote(prefix+"_3", 79, 1.50+jitter, 1.95+jitter, 84),
			sessionNote(prefix+"_4", 48, 0.00+jitter, 1.90+jitter, 70),
			sessionNote(prefix+"_5", 43, 2.00+jitter, 3.80+jitter, 68),
		}
	}

	testsupport.WriteJSON(t, filepath.Join(dir, "basic_pitch.json"), map[string]any{
		"model": "basic_pitch",
		"notes": melody("basic_pitch", 0.0),
	})
	testsupport.WriteJSON(t, filepath.Join(dir, "onsets_frames.json"), map[string]any{
		"model": "onsets_frames",
		"notes": melody("onsets_frames", 0.01),
	})
	resonance := make([]float64, 40)
	for i := range resonance {
		if i < 20 {
			resonance[i] = 0.8
		} else {
			resonance[i] = 0.1
		}
	}
	testsupport.WriteJSON(t, filepath.Join(dir, audiofeat.FeaturesFileName), map[string]any{
		"fingerprint":   "cafef00dcafef00d",
		"frame_rate_hz": 10.0,
		"resonance":     resonance,
	})
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q to not contain %q", output, substr)
	}
}
