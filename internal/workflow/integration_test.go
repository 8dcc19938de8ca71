package workflow_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"renote/internal/assemble"
	"renote/internal/audiofeat"
	"renote/internal/hands"
	"renote/internal/logging"
	"renote/internal/merge"
	"renote/internal/notes"
	"renote/internal/pedal"
	"renote/internal/quantize"
	"renote/internal/queue"
	"renote/internal/session"
	"renote/internal/sources"
	"renote/internal/tempo"
	"renote/internal/testsupport"
	"renote/internal/workflow"
)

func streamNote(id string, pitch int, onset, offset float64, velocity int) map[string]any {
	return map[string]any{
		"id":            id,
		"pitch_midi":    pitch,
		"onset_time_s":  onset,
		"offset_time_s": offset,
		"velocity":      velocity,
		"confidence":    0.9,
	}
}

// writeSessionFixture lays out a small two-source session: a quarter-note
// melody over two held bass notes at 120 BPM, with a resonance curve that
// covers the first measure.
func writeSessionFixture(t *testing.T, dir string) {
	t.Helper()

	melody := func(prefix string, jitter float64) []map[string]any {
		return []map[string]any{
			streamNote(prefix+"_0", 72, 0.00+jitter, 0.45+jitter, 80),
			streamNote(prefix+"_1", 74, 0.50+jitter, 0.95+jitter, 78),
			streamNote(prefix+"_2", 76, 1.00+jitter, 1.45+jitter, 82),
			streamNote(prefix+"_3", 79, 1.50+jitter, 1.95+jitter, 84),
			streamNote(prefix+"_4", 48, 0.00+jitter, 1.90+jitter, 70),
			streamNote(prefix+"_5", 43, 2.00+jitter, 3.80+jitter, 68),
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

func TestWorkflowIntegrationEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 0
	store := testsupport.MustOpenStore(t, cfg)

	logger := logging.NewNop()
	cache := audiofeat.NewCache(cfg.Paths.FeatureCacheDir, logger)

	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{
		Loader:         sources.NewLoader(cfg, store, cache, logger),
		Merger:         merge.NewMerger(cfg, store, logger),
		TempoEstimator: tempo.NewEstimator(cfg, store, cache, logger),
		Quantizer:      quantize.NewQuantizer(cfg, store, logger),
		PedalInferrer:  pedal.NewInferrer(cfg, store, cache, logger),
		HandSplitter:   hands.NewSplitter(cfg, store, logger),
		Assembler:      assemble.NewAssembler(cfg, store, logger),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	sessionDir := filepath.Join(testsupport.BaseDir(cfg), "sessions", "waltz_fragment")
	writeSessionFixture(t, sessionDir)

	item := testsupport.NewSession(t, store, sessionDir, "")
	final := waitForStatus(t, store, item.ID, queue.StatusCompleted)

	if final.PieceTitle != "Waltz Fragment" {
		t.Errorf("PieceTitle = %q, want Waltz Fragment", final.PieceTitle)
	}
	if final.SourceCount != 2 {
		t.Errorf("SourceCount = %d, want 2", final.SourceCount)
	}
	if final.NoteCount == 0 {
		t.Error("expected fused note count to be recorded")
	}
	if final.FeatureFingerprint != "cafef00dcafef00d" {
		t.Errorf("FeatureFingerprint = %q", final.FeatureFingerprint)
	}

	env, err := session.Parse(final.EnvelopeData)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	staged := []struct {
		name string
		path string
	}{
		{"streams", env.Artifacts.Streams},
		{"merged", env.Artifacts.Merged},
		{"tempo", env.Artifacts.Tempo},
		{"quantized", env.Artifacts.Quantized},
		{"pedal", env.Artifacts.Pedal},
		{"hands", env.Artifacts.Hands},
		{"score", env.Artifacts.Score},
		{"preview", env.Artifacts.Preview},
	}
	for _, artifact := range staged {
		if artifact.path == "" {
			t.Errorf("artifact %s not recorded in envelope", artifact.name)
			continue
		}
		if _, err := os.Stat(artifact.path); err != nil {
			t.Errorf("artifact %s missing on disk: %v", artifact.name, err)
		}
	}
	if env.Metrics.Merge == nil || env.Metrics.Tempo == nil || env.Metrics.Quantize == nil ||
		env.Metrics.Pedal == nil || env.Metrics.Hands == nil {
		t.Errorf("expected all stage metrics recorded, got %+v", env.Metrics)
	}

	if final.ScoreFile == "" {
		t.Fatal("expected published score file on item")
	}
	data, err := os.ReadFile(final.ScoreFile)
	if err != nil {
		t.Fatalf("read published score: %v", err)
	}
	var doc assemble.ScoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode published score: %v", err)
	}
	if doc.Title != "Waltz Fragment" {
		t.Errorf("score title = %q", doc.Title)
	}
	if len(doc.Notes) != final.NoteCount {
		t.Errorf("score has %d notes, item records %d", len(doc.Notes), final.NoteCount)
	}
	for _, note := range doc.Notes {
		if note.Staff != notes.StaffTreble && note.Staff != notes.StaffBass {
			t.Errorf("note %s has no staff assignment", note.ID)
		}
	}
	if len(doc.TempoCurve) == 0 {
		t.Error("expected a tempo curve in the score document")
	}

	if final.BackgroundLogPath == "" {
		t.Fatal("expected background log path")
	}
	if info, err := os.Stat(final.BackgroundLogPath); err != nil {
		t.Errorf("background log missing: %v", err)
	} else if info.Size() == 0 {
		t.Error("background log is empty")
	}
}
